package negotiations

import (
	"context"
	"errors"
	"fmt"

	"github.com/edgeup/edgeup-backend/internal/notifications"
	"github.com/edgeup/edgeup-backend/pkg/db/models"
	"github.com/edgeup/edgeup-backend/pkg/enums"
	pkgerrors "github.com/edgeup/edgeup-backend/pkg/errors"
	"github.com/edgeup/edgeup-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// productReader is the slice of the catalog surface this service needs.
type productReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

// Service drives the offer lifecycle: PENDING moves to ACCEPTED or REJECTED
// by the seller, ACCEPTED moves to ORDERED by order placement. Price and
// quantity are immutable after creation.
type Service interface {
	Create(ctx context.Context, buyerID uuid.UUID, input CreateNegotiationInput) (*models.Negotiation, error)
	Accept(ctx context.Context, sellerID, negotiationID uuid.UUID) (*models.Negotiation, error)
	Decline(ctx context.Context, sellerID, negotiationID uuid.UUID) (*models.Negotiation, error)
	GetByID(ctx context.Context, callerID, negotiationID uuid.UUID) (*models.Negotiation, error)
	LatestForProduct(ctx context.Context, buyerID, productID uuid.UUID) (*models.Negotiation, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
}

type service struct {
	repo       Repository
	products   productReader
	dispatcher notifications.Dispatcher
	tx         txRunner
}

// NewService wires negotiation dependencies.
func NewService(repo Repository, productsRepo productReader, dispatcher notifications.Dispatcher, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "negotiations repository required")
	}
	if productsRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "products repository required")
	}
	if dispatcher == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notification dispatcher required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	return &service{repo: repo, products: productsRepo, dispatcher: dispatcher, tx: tx}, nil
}

func (s *service) Create(ctx context.Context, buyerID uuid.UUID, input CreateNegotiationInput) (*models.Negotiation, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	if input.Quantity == 0 {
		input.Quantity = 1
	}
	if input.Quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	if input.OfferedPriceCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "offered price must not be negative")
	}

	product, err := s.products.FindByID(ctx, input.ProductID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if product.Status != enums.ProductStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product is not active")
	}
	if product.Stock < input.Quantity {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "not enough stock for the requested quantity")
	}
	if product.SellerID == buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sellers cannot negotiate on their own listing")
	}

	negotiation := &models.Negotiation{
		ID:                uuid.New(),
		ProductID:         product.ID,
		BuyerID:           buyerID,
		SellerID:          product.SellerID,
		OfferedPriceCents: input.OfferedPriceCents,
		Quantity:          input.Quantity,
		Status:            enums.NegotiationStatusPending,
	}
	if err := s.repo.Create(ctx, negotiation); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create negotiation")
	}
	return negotiation, nil
}

func (s *service) Accept(ctx context.Context, sellerID, negotiationID uuid.UUID) (*models.Negotiation, error) {
	negotiation, err := s.sellerDecision(ctx, sellerID, negotiationID)
	if err != nil {
		return nil, err
	}

	product, err := s.products.FindByID(ctx, negotiation.ProductID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if product.Status != enums.ProductStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product is no longer active")
	}
	if product.Stock < negotiation.Quantity {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "not enough stock to honor the offer")
	}

	notification, err := s.decide(ctx, negotiation, enums.NegotiationStatusAccepted, notifications.DispatchInput{
		UserID:  negotiation.BuyerID,
		Type:    enums.NotificationTypeDeal,
		Title:   "Offer accepted",
		Message: fmt.Sprintf("Your offer on %q was accepted. You can place the order now.", product.Title),
	})
	if err != nil {
		return nil, err
	}

	negotiation.Status = enums.NegotiationStatusAccepted
	s.dispatcher.Push(ctx, notification)
	return negotiation, nil
}

func (s *service) Decline(ctx context.Context, sellerID, negotiationID uuid.UUID) (*models.Negotiation, error) {
	negotiation, err := s.sellerDecision(ctx, sellerID, negotiationID)
	if err != nil {
		return nil, err
	}

	notification, err := s.decide(ctx, negotiation, enums.NegotiationStatusRejected, notifications.DispatchInput{
		UserID:  negotiation.BuyerID,
		Type:    enums.NotificationTypeDeal,
		Title:   "Offer declined",
		Message: "The seller declined your offer.",
	})
	if err != nil {
		return nil, err
	}

	negotiation.Status = enums.NegotiationStatusRejected
	s.dispatcher.Push(ctx, notification)
	return negotiation, nil
}

// decide flips PENDING to the target state and records the buyer notification
// in the same transaction. The conditional update loses against a concurrent
// decision, in which case nothing is recorded and no notification re-fires.
func (s *service) decide(ctx context.Context, negotiation *models.Negotiation, target enums.NegotiationStatus, input notifications.DispatchInput) (*models.Notification, error) {
	var notification *models.Notification
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		moved, err := s.repo.WithTx(tx).UpdateStatus(ctx, negotiation.ID, enums.NegotiationStatusPending, target)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update negotiation status")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "negotiation is no longer pending")
		}

		notification, err = s.dispatcher.Record(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return notification, nil
}

func (s *service) sellerDecision(ctx context.Context, sellerID, negotiationID uuid.UUID) (*models.Negotiation, error) {
	negotiation, err := s.loadNegotiation(ctx, negotiationID)
	if err != nil {
		return nil, err
	}
	if negotiation.SellerID != sellerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the seller may decide this offer")
	}
	if negotiation.Status != enums.NegotiationStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "negotiation is no longer pending")
	}
	return negotiation, nil
}

func (s *service) GetByID(ctx context.Context, callerID, negotiationID uuid.UUID) (*models.Negotiation, error) {
	negotiation, err := s.loadNegotiation(ctx, negotiationID)
	if err != nil {
		return nil, err
	}
	// Outsiders get the same answer as a missing row so ids do not leak.
	if negotiation.BuyerID != callerID && negotiation.SellerID != callerID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "negotiation not found")
	}
	return negotiation, nil
}

// LatestForProduct returns nil without error when the buyer has no offer on
// the product; the transport layer renders that as a 200 with a null body.
func (s *service) LatestForProduct(ctx context.Context, buyerID, productID uuid.UUID) (*models.Negotiation, error) {
	if buyerID == uuid.Nil || productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer and product ids required")
	}
	negotiation, err := s.repo.FindLatestForBuyer(ctx, productID, buyerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load latest negotiation")
	}
	return negotiation, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if params.Side != SideAll && params.Side != SideBuyer && params.Side != SideSeller {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid side filter")
	}

	query := ListFilter{UserID: params.UserID, Side: params.Side, Limit: params.Limit}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list negotiations")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: rows, Cursor: cursor}, nil
}

func (s *service) loadNegotiation(ctx context.Context, id uuid.UUID) (*models.Negotiation, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "negotiation id required")
	}
	negotiation, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "negotiation not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load negotiation")
	}
	return negotiation, nil
}
