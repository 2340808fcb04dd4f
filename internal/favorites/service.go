package favorites

import (
	"context"
	"errors"
	"time"

	"github.com/edgeup/edgeup-backend/pkg/db"
	"github.com/edgeup/edgeup-backend/pkg/db/models"
	pkgerrors "github.com/edgeup/edgeup-backend/pkg/errors"
	"github.com/edgeup/edgeup-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// productSource is the slice of the catalog surface favorites need.
type productSource interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
}

// FavoriteView is a bookmark joined with the product's display fields.
type FavoriteView struct {
	ID         uuid.UUID `json:"id"`
	ProductID  uuid.UUID `json:"productId"`
	Title      string    `json:"title,omitempty"`
	PriceCents int       `json:"priceCents,omitempty"`
	ImageURL   *string   `json:"imageUrl,omitempty"`
	Status     string    `json:"status,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ListParams configures one favorites page.
type ListParams struct {
	UserID uuid.UUID
	Limit  int
	Cursor string
}

// ListResult is one favorites page plus the cursor for the next.
type ListResult struct {
	Items  []FavoriteView `json:"items"`
	Cursor string         `json:"cursor"`
}

// Service manages the caller's product bookmarks.
type Service interface {
	Add(ctx context.Context, userID, productID uuid.UUID) (*models.Favorite, error)
	Remove(ctx context.Context, userID, productID uuid.UUID) error
	List(ctx context.Context, params ListParams) (*ListResult, error)
}

type service struct {
	repo     Repository
	products productSource
}

// NewService wires favorites dependencies.
func NewService(repo Repository, products productSource) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "favorites repository required")
	}
	if products == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "products source required")
	}
	return &service{repo: repo, products: products}, nil
}

func (s *service) Add(ctx context.Context, userID, productID uuid.UUID) (*models.Favorite, error) {
	if userID == uuid.Nil || productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user and product ids required")
	}

	if _, err := s.products.FindByID(ctx, productID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}

	favorite := &models.Favorite{ID: uuid.New(), UserID: userID, ProductID: productID}
	if err := s.repo.Create(ctx, favorite); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "product already in favorites")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add favorite")
	}
	return favorite, nil
}

func (s *service) Remove(ctx context.Context, userID, productID uuid.UUID) error {
	if userID == uuid.Nil || productID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user and product ids required")
	}

	found, err := s.repo.Delete(ctx, userID, productID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove favorite")
	}
	if !found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "favorite not found")
	}
	return nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	query := ListFilter{UserID: params.UserID, Limit: params.Limit}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list favorites")
	}

	productIDs := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		productIDs = append(productIDs, row.ProductID)
	}
	productsByID, err := s.products.FindByIDs(ctx, productIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}

	views := make([]FavoriteView, 0, len(rows))
	for _, row := range rows {
		view := FavoriteView{ID: row.ID, ProductID: row.ProductID, CreatedAt: row.CreatedAt}
		if product, ok := productsByID[row.ProductID]; ok {
			view.Title = product.Title
			view.PriceCents = product.PriceCents
			view.ImageURL = product.ImageURL
			view.Status = string(product.Status)
		}
		views = append(views, view)
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: views, Cursor: cursor}, nil
}
