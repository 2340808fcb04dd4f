package negotiations

import (
	"context"
	"errors"

	"github.com/edgeup/edgeup-backend/pkg/db/models"
	"github.com/edgeup/edgeup-backend/pkg/enums"
	"github.com/edgeup/edgeup-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository exposes negotiation persistence operations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, negotiation *models.Negotiation) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Negotiation, error)
	FindLatestForBuyer(ctx context.Context, productID, buyerID uuid.UUID) (*models.Negotiation, error)
	List(ctx context.Context, params ListFilter) ([]models.Negotiation, *pagination.Cursor, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.NegotiationStatus) (bool, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository constructs a negotiations repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

type ListFilter struct {
	UserID uuid.UUID
	Side   Side
	Limit  int
	Cursor *pagination.Cursor
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, negotiation *models.Negotiation) error {
	if negotiation.ID == uuid.Nil {
		negotiation.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(negotiation).Error
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.Negotiation, error) {
	var negotiation models.Negotiation
	if err := r.db.WithContext(ctx).First(&negotiation, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &negotiation, nil
}

// FindLatestForBuyer returns nil without error when the buyer never offered
// on the product.
func (r *repositoryImpl) FindLatestForBuyer(ctx context.Context, productID, buyerID uuid.UUID) (*models.Negotiation, error) {
	var negotiation models.Negotiation
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND buyer_id = ?", productID, buyerID).
		Order("created_at DESC, id DESC").
		First(&negotiation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &negotiation, nil
}

func (r *repositoryImpl) List(ctx context.Context, params ListFilter) ([]models.Negotiation, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).Model(&models.Negotiation{})
	switch params.Side {
	case SideBuyer:
		query = query.Where("buyer_id = ?", params.UserID)
	case SideSeller:
		query = query.Where("seller_id = ?", params.UserID)
	default:
		query = query.Where("buyer_id = ? OR seller_id = ?", params.UserID, params.UserID)
	}
	if params.Cursor != nil {
		query = query.Where(
			"created_at < ? OR (created_at = ? AND id < ?)",
			params.Cursor.CreatedAt, params.Cursor.CreatedAt, params.Cursor.ID,
		)
	}

	var rows []models.Negotiation
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

// UpdateStatus moves the row only when it still holds the expected state, so
// two concurrent decisions cannot both win.
func (r *repositoryImpl) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.NegotiationStatus) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Negotiation{}).
		Where("id = ? AND status = ?", id, from).
		UpdateColumn("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
