package reviews

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/edgeup/edgeup-backend/internal/notifications"
	"github.com/edgeup/edgeup-backend/internal/users"
	"github.com/edgeup/edgeup-backend/pkg/db"
	"github.com/edgeup/edgeup-backend/pkg/db/models"
	"github.com/edgeup/edgeup-backend/pkg/enums"
	pkgerrors "github.com/edgeup/edgeup-backend/pkg/errors"
	"github.com/edgeup/edgeup-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// karmaPerReview is the fixed boost a seller earns per review received.
const karmaPerReview = 10

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// productSource is the slice of the catalog surface reviews need.
type productSource interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

// CreateReviewInput holds the validated payload for a new review.
type CreateReviewInput struct {
	ProductID uuid.UUID
	Rating    int
	Comment   string
}

// UpdateReviewInput holds optional mutation values for a review.
type UpdateReviewInput struct {
	Rating  *int
	Comment *string
}

// AuthorSummary is the reviewer shown next to a review.
type AuthorSummary struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	AvatarURL *string   `json:"avatarUrl,omitempty"`
}

// ReviewView is a review joined with its author's display fields.
type ReviewView struct {
	ID        uuid.UUID      `json:"id"`
	ProductID uuid.UUID      `json:"productId"`
	Rating    int            `json:"rating"`
	Comment   string         `json:"comment,omitempty"`
	Author    *AuthorSummary `json:"author,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// ListParams configures one review page for a product.
type ListParams struct {
	ProductID uuid.UUID
	Limit     int
	Cursor    string
}

// ListResult is one review page plus the product's average rating.
type ListResult struct {
	Items         []ReviewView `json:"items"`
	AverageRating string       `json:"averageRating"`
	Cursor        string       `json:"cursor"`
}

// Service manages product reviews and the seller karma they feed.
type Service interface {
	Create(ctx context.Context, authorID uuid.UUID, input CreateReviewInput) (*models.Review, error)
	Update(ctx context.Context, authorID, reviewID uuid.UUID, input UpdateReviewInput) (*models.Review, error)
	ListForProduct(ctx context.Context, params ListParams) (*ListResult, error)
}

type service struct {
	repo       Repository
	products   productSource
	users      users.Repository
	dispatcher notifications.Dispatcher
	tx         txRunner
}

// NewService wires review dependencies.
func NewService(repo Repository, products productSource, usersRepo users.Repository, dispatcher notifications.Dispatcher, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "reviews repository required")
	}
	if products == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "products source required")
	}
	if usersRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "users repository required")
	}
	if dispatcher == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notification dispatcher required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	return &service{repo: repo, products: products, users: usersRepo, dispatcher: dispatcher, tx: tx}, nil
}

// Create inserts the review, bumps the seller's karma, and records the
// "review" notification in one transaction.
func (s *service) Create(ctx context.Context, authorID uuid.UUID, input CreateReviewInput) (*models.Review, error) {
	if authorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "author id required")
	}
	if input.Rating < 1 || input.Rating > 5 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rating must be between 1 and 5")
	}

	product, err := s.products.FindByID(ctx, input.ProductID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if product.SellerID == authorID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sellers cannot review their own listing")
	}

	review := &models.Review{
		ID:        uuid.New(),
		ProductID: product.ID,
		AuthorID:  authorID,
		Rating:    input.Rating,
		Comment:   strings.TrimSpace(input.Comment),
	}

	var notification *models.Notification
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, review); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "you already reviewed this product")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create review")
		}
		if err := s.users.WithTx(tx).AddKarma(ctx, product.SellerID, karmaPerReview); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "bump seller karma")
		}

		var err error
		notification, err = s.dispatcher.Record(ctx, tx, notifications.DispatchInput{
			UserID:  product.SellerID,
			Type:    enums.NotificationTypeReview,
			Title:   "New review",
			Message: fmt.Sprintf("Your listing %q received a %d-star review.", product.Title, review.Rating),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.dispatcher.Push(ctx, notification)
	return review, nil
}

func (s *service) Update(ctx context.Context, authorID, reviewID uuid.UUID, input UpdateReviewInput) (*models.Review, error) {
	if reviewID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "review id required")
	}

	review, err := s.repo.FindByID(ctx, reviewID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "review not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load review")
	}
	if review.AuthorID != authorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not the review author")
	}

	if input.Rating != nil {
		if *input.Rating < 1 || *input.Rating > 5 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "rating must be between 1 and 5")
		}
		review.Rating = *input.Rating
	}
	if input.Comment != nil {
		review.Comment = strings.TrimSpace(*input.Comment)
	}

	if err := s.repo.Update(ctx, review); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update review")
	}
	return review, nil
}

func (s *service) ListForProduct(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}

	query := ListFilter{ProductID: params.ProductID, Limit: params.Limit}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.ListByProduct(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list reviews")
	}

	authorIDs := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		authorIDs = append(authorIDs, row.AuthorID)
	}
	authorsByID, err := s.users.FindByIDs(ctx, authorIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load authors")
	}

	views := make([]ReviewView, 0, len(rows))
	for _, row := range rows {
		view := ReviewView{
			ID:        row.ID,
			ProductID: row.ProductID,
			Rating:    row.Rating,
			Comment:   row.Comment,
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
		}
		if author, ok := authorsByID[row.AuthorID]; ok {
			view.Author = &AuthorSummary{ID: author.ID, Name: author.Name, AvatarURL: author.AvatarURL}
		}
		views = append(views, view)
	}

	average, err := s.averageRating(ctx, params.ProductID)
	if err != nil {
		return nil, err
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: views, AverageRating: average, Cursor: cursor}, nil
}

// averageRating divides exactly and rounds to two places; float AVG drifts on
// some drivers.
func (s *service) averageRating(ctx context.Context, productID uuid.UUID) (string, error) {
	sum, count, err := s.repo.RatingStats(ctx, productID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rating stats")
	}
	if count == 0 {
		return "0", nil
	}
	average := decimal.NewFromInt(sum).Div(decimal.NewFromInt(count)).Round(2)
	return average.String(), nil
}
