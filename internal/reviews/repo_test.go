package reviews

import (
	"context"
	"fmt"
	"testing"

	"github.com/edgeup/edgeup-backend/pkg/db"
	"github.com/edgeup/edgeup-backend/pkg/db/models"
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
	require.NoError(t, conn.AutoMigrate(&models.Review{}))
	return conn
}

func TestCreateEnforcesOneReviewPerAuthor(t *testing.T) {
	conn := openTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	productID := uuid.New()
	authorID := uuid.New()

	first := &models.Review{ID: uuid.New(), ProductID: productID, AuthorID: authorID, Rating: 4}
	require.NoError(t, repo.Create(ctx, first))

	second := &models.Review{ID: uuid.New(), ProductID: productID, AuthorID: authorID, Rating: 1}
	err := repo.Create(ctx, second)
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err, ""))
}

func TestRatingStats(t *testing.T) {
	conn := openTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	productID := uuid.New()

	for _, rating := range []int{5, 4, 4} {
		require.NoError(t, repo.Create(ctx, &models.Review{
			ID:        uuid.New(),
			ProductID: productID,
			AuthorID:  uuid.New(),
			Rating:    rating,
		}))
	}

	sum, count, err := repo.RatingStats(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, int64(13), sum)
	assert.Equal(t, int64(3), count)
}

func TestRatingStatsEmpty(t *testing.T) {
	conn := openTestDB(t)
	repo := NewRepository(conn)

	sum, count, err := repo.RatingStats(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Zero(t, sum)
	assert.Zero(t, count)
}
