package products

import (
	"context"
	"errors"
	"strings"

	"github.com/edgeup/edgeup-backend/pkg/db/models"
	"github.com/edgeup/edgeup-backend/pkg/enums"
	pkgerrors "github.com/edgeup/edgeup-backend/pkg/errors"
	"github.com/edgeup/edgeup-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service exposes catalog management and public search.
type Service interface {
	Create(ctx context.Context, sellerID uuid.UUID, role enums.UserRole, input CreateProductInput) (*models.Product, error)
	Update(ctx context.Context, callerID uuid.UUID, role enums.UserRole, productID uuid.UUID, input UpdateProductInput) (*models.Product, error)
	Archive(ctx context.Context, callerID uuid.UUID, role enums.UserRole, productID uuid.UUID) (*models.Product, error)
	GetByID(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	Search(ctx context.Context, params SearchParams) (*ProductListResult, error)
	Categories(ctx context.Context) []enums.ProductCategory
}

type service struct {
	repo Repository
}

// NewService wires catalog dependencies.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "products repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Create(ctx context.Context, sellerID uuid.UUID, role enums.UserRole, input CreateProductInput) (*models.Product, error) {
	if sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id required")
	}
	if !role.CanSell() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only trusted sellers may create listings")
	}
	if err := validateListing(input.Title, input.PriceCents, input.Stock, input.Category); err != nil {
		return nil, err
	}

	product := &models.Product{
		ID:          uuid.New(),
		SellerID:    sellerID,
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		PriceCents:  input.PriceCents,
		Category:    input.Category,
		ImageURL:    input.ImageURL,
		Stock:       input.Stock,
		Status:      enums.ProductStatusActive,
	}
	if err := s.repo.Create(ctx, product); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create product")
	}
	return product, nil
}

func (s *service) Update(ctx context.Context, callerID uuid.UUID, role enums.UserRole, productID uuid.UUID, input UpdateProductInput) (*models.Product, error) {
	product, err := s.ownedProduct(ctx, callerID, role, productID)
	if err != nil {
		return nil, err
	}

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "title must not be empty")
		}
		product.Title = title
	}
	if input.Description != nil {
		product.Description = strings.TrimSpace(*input.Description)
	}
	if input.PriceCents != nil {
		if *input.PriceCents < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
		}
		product.PriceCents = *input.PriceCents
	}
	if input.Category != nil {
		if !input.Category.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid category")
		}
		product.Category = *input.Category
	}
	if input.ImageURL != nil {
		if *input.ImageURL == "" {
			product.ImageURL = nil
		} else {
			product.ImageURL = input.ImageURL
		}
	}

	if err := s.repo.Update(ctx, product); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update product")
	}
	return product, nil
}

func (s *service) Archive(ctx context.Context, callerID uuid.UUID, role enums.UserRole, productID uuid.UUID) (*models.Product, error) {
	product, err := s.ownedProduct(ctx, callerID, role, productID)
	if err != nil {
		return nil, err
	}
	if product.Status == enums.ProductStatusArchived {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "product already archived")
	}

	product.Status = enums.ProductStatusArchived
	if err := s.repo.Update(ctx, product); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "archive product")
	}
	return product, nil
}

func (s *service) GetByID(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	product, err := s.repo.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return product, nil
}

func (s *service) Search(ctx context.Context, params SearchParams) (*ProductListResult, error) {
	if params.Category != nil && !params.Category.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid category")
	}
	if params.MinPriceCents != nil && params.MaxPriceCents != nil && *params.MinPriceCents > *params.MaxPriceCents {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "min price exceeds max price")
	}

	query := SearchFilter{
		Category:      params.Category,
		Query:         params.Query,
		MinPriceCents: params.MinPriceCents,
		MaxPriceCents: params.MaxPriceCents,
		SellerID:      params.SellerID,
		Limit:         params.Limit,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.Search(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "search products")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ProductListResult{Items: rows, Cursor: cursor}, nil
}

func (s *service) Categories(ctx context.Context) []enums.ProductCategory {
	return enums.AllProductCategories()
}

func (s *service) ownedProduct(ctx context.Context, callerID uuid.UUID, role enums.UserRole, productID uuid.UUID) (*models.Product, error) {
	product, err := s.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product.SellerID != callerID && role != enums.UserRoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not the product owner")
	}
	return product, nil
}

func validateListing(title string, priceCents, stock int, category enums.ProductCategory) error {
	if strings.TrimSpace(title) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "title required")
	}
	if priceCents < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
	}
	if stock < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "stock must not be negative")
	}
	if !category.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid category")
	}
	return nil
}
