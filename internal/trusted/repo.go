package trusted

import (
	"context"
	"time"

	"github.com/edgeup/edgeup-backend/pkg/db/models"
	"github.com/edgeup/edgeup-backend/pkg/enums"
	"github.com/edgeup/edgeup-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository exposes trusted-seller application persistence operations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, request *models.TrustedRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.TrustedRequest, error)
	HasPending(ctx context.Context, userID uuid.UUID) (bool, error)
	ListPending(ctx context.Context, params ListFilter) ([]models.TrustedRequest, *pagination.Cursor, error)
	Decide(ctx context.Context, id uuid.UUID, status enums.TrustedRequestStatus, decidedAt time.Time) (bool, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository constructs a trusted-seller repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

type ListFilter struct {
	Limit  int
	Cursor *pagination.Cursor
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, request *models.TrustedRequest) error {
	if request.ID == uuid.Nil {
		request.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.TrustedRequest, error) {
	var request models.TrustedRequest
	if err := r.db.WithContext(ctx).First(&request, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repositoryImpl) HasPending(ctx context.Context, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.TrustedRequest{}).
		Where("user_id = ? AND status = ?", userID, enums.TrustedRequestStatusPending).
		Count(&count).Error
	return count > 0, err
}

func (r *repositoryImpl) ListPending(ctx context.Context, params ListFilter) ([]models.TrustedRequest, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).
		Model(&models.TrustedRequest{}).
		Where("status = ?", enums.TrustedRequestStatusPending)
	if params.Cursor != nil {
		query = query.Where(
			"created_at < ? OR (created_at = ? AND id < ?)",
			params.Cursor.CreatedAt, params.Cursor.CreatedAt, params.Cursor.ID,
		)
	}

	var rows []models.TrustedRequest
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, nil, err
	}

	if len(rows) > normalized {
		next := rows[normalized]
		rows = rows[:normalized]
		return rows, &pagination.Cursor{CreatedAt: next.CreatedAt, ID: next.ID}, nil
	}
	return rows, nil, nil
}

// Decide flips a pending application to its final status. The status guard in
// the WHERE clause makes a concurrent second decision lose.
func (r *repositoryImpl) Decide(ctx context.Context, id uuid.UUID, status enums.TrustedRequestStatus, decidedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.TrustedRequest{}).
		Where("id = ? AND status = ?", id, enums.TrustedRequestStatusPending).
		Updates(map[string]any{"status": status, "decided_at": decidedAt})
	return result.RowsAffected > 0, result.Error
}
