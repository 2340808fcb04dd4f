package trusted

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/edgeup/edgeup-backend/pkg/db/models"
	"github.com/edgeup/edgeup-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.TrustedRequest{}))
	return conn
}

func seedRequest(t *testing.T, conn *gorm.DB, userID uuid.UUID, status enums.TrustedRequestStatus, createdAt time.Time) *models.TrustedRequest {
	t.Helper()
	request := &models.TrustedRequest{
		ID:        uuid.New(),
		UserID:    userID,
		Pitch:     "let me sell",
		Status:    status,
		CreatedAt: createdAt,
	}
	require.NoError(t, conn.Create(request).Error)
	return request
}

func TestHasPending(t *testing.T) {
	conn := openTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	userID := uuid.New()
	seedRequest(t, conn, userID, enums.TrustedRequestStatusRejected, time.Now().UTC())

	pending, err := repo.HasPending(ctx, userID)
	require.NoError(t, err)
	assert.False(t, pending)

	seedRequest(t, conn, userID, enums.TrustedRequestStatusPending, time.Now().UTC())
	pending, err = repo.HasPending(ctx, userID)
	require.NoError(t, err)
	assert.True(t, pending)
}

func TestListPendingSkipsDecided(t *testing.T) {
	conn := openTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	base := time.Now().UTC()
	newest := seedRequest(t, conn, uuid.New(), enums.TrustedRequestStatusPending, base)
	oldest := seedRequest(t, conn, uuid.New(), enums.TrustedRequestStatusPending, base.Add(-time.Hour))
	seedRequest(t, conn, uuid.New(), enums.TrustedRequestStatusApproved, base.Add(-time.Minute))

	rows, cursor, err := repo.ListPending(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Nil(t, cursor)
	assert.Equal(t, newest.ID, rows[0].ID)
	assert.Equal(t, oldest.ID, rows[1].ID)
}

func TestDecideOnlyFromPending(t *testing.T) {
	conn := openTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	request := seedRequest(t, conn, uuid.New(), enums.TrustedRequestStatusPending, time.Now().UTC())
	decidedAt := time.Now().UTC()

	decided, err := repo.Decide(ctx, request.ID, enums.TrustedRequestStatusApproved, decidedAt)
	require.NoError(t, err)
	assert.True(t, decided)

	// Losing side of a concurrent decision sees zero rows.
	decided, err = repo.Decide(ctx, request.ID, enums.TrustedRequestStatusRejected, decidedAt)
	require.NoError(t, err)
	assert.False(t, decided)

	stored, err := repo.FindByID(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.TrustedRequestStatusApproved, stored.Status)
	require.NotNil(t, stored.DecidedAt)
}
