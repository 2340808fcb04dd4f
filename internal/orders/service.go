package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/edgeup/edgeup-backend/internal/negotiations"
	"github.com/edgeup/edgeup-backend/internal/notifications"
	"github.com/edgeup/edgeup-backend/internal/products"
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

// userSource is the slice of the users surface order listings need.
type userSource interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.User, error)
}

// Service places orders and drives the shipping lifecycle. Stock moves
// exactly once per order, inside the same transaction as the insert, and is
// never restored on cancellation.
type Service interface {
	Create(ctx context.Context, buyerID uuid.UUID, input CreateOrderInput) (*models.Order, error)
	GetByID(ctx context.Context, callerID, orderID uuid.UUID) (*OrderView, error)
	ListBuying(ctx context.Context, params ListParams) (*ListResult, error)
	ListSelling(ctx context.Context, params ListParams) (*ListResult, error)
	UpdateStatus(ctx context.Context, callerID, orderID uuid.UUID, target enums.OrderStatus) (*models.Order, error)
}

type service struct {
	repo         Repository
	products     products.Repository
	negotiations negotiations.Repository
	users        userSource
	dispatcher   notifications.Dispatcher
	tx           txRunner
}

// NewService wires order dependencies.
func NewService(
	repo Repository,
	productsRepo products.Repository,
	negotiationsRepo negotiations.Repository,
	users userSource,
	dispatcher notifications.Dispatcher,
	tx txRunner,
) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "orders repository required")
	}
	if productsRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "products repository required")
	}
	if negotiationsRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "negotiations repository required")
	}
	if users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "users source required")
	}
	if dispatcher == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notification dispatcher required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	return &service{
		repo:         repo,
		products:     productsRepo,
		negotiations: negotiationsRepo,
		users:        users,
		dispatcher:   dispatcher,
		tx:           tx,
	}, nil
}

func (s *service) Create(ctx context.Context, buyerID uuid.UUID, input CreateOrderInput) (*models.Order, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	if strings.TrimSpace(input.ShippingAddress) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping address required")
	}

	if input.NegotiationID != nil {
		return s.createNegotiated(ctx, buyerID, *input.NegotiationID, input.ShippingAddress)
	}
	if input.ProductID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id or negotiation id required")
	}
	return s.createDirect(ctx, buyerID, *input.ProductID, input.Quantity, input.ShippingAddress)
}

// createNegotiated locks price and quantity from the accepted offer. The
// stock take, the negotiation's move to ORDERED, the order insert, and the
// seller notification all commit or roll back together.
func (s *service) createNegotiated(ctx context.Context, buyerID, negotiationID uuid.UUID, shippingAddress string) (*models.Order, error) {
	negotiation, err := s.negotiations.FindByID(ctx, negotiationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "negotiation not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load negotiation")
	}
	if negotiation.BuyerID != buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the negotiation buyer may order from it")
	}
	switch negotiation.Status {
	case enums.NegotiationStatusAccepted:
	case enums.NegotiationStatusPending:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "negotiation has not been accepted")
	default:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "negotiation is closed")
	}

	order := &models.Order{
		ID:              uuid.New(),
		BuyerID:         buyerID,
		ProductID:       negotiation.ProductID,
		NegotiationID:   &negotiation.ID,
		UnitPriceCents:  negotiation.OfferedPriceCents,
		Quantity:        negotiation.Quantity,
		TotalCents:      negotiation.OfferedPriceCents * negotiation.Quantity,
		Status:          enums.OrderStatusPending,
		ShippingAddress: strings.TrimSpace(shippingAddress),
	}

	notification, err := s.placeOrder(ctx, order, negotiation.SellerID, func(tx *gorm.DB) error {
		moved, err := s.negotiations.WithTx(tx).UpdateStatus(ctx, negotiation.ID, enums.NegotiationStatusAccepted, enums.NegotiationStatusOrdered)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close negotiation")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "negotiation is no longer accepted")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.dispatcher.Push(ctx, notification)
	return order, nil
}

func (s *service) createDirect(ctx context.Context, buyerID, productID uuid.UUID, quantity int, shippingAddress string) (*models.Order, error) {
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if product.Status != enums.ProductStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product is not active")
	}
	if product.SellerID == buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sellers cannot order their own listing")
	}

	order := &models.Order{
		ID:              uuid.New(),
		BuyerID:         buyerID,
		ProductID:       product.ID,
		UnitPriceCents:  product.PriceCents,
		Quantity:        quantity,
		TotalCents:      product.PriceCents * quantity,
		Status:          enums.OrderStatusPending,
		ShippingAddress: strings.TrimSpace(shippingAddress),
	}

	notification, err := s.placeOrder(ctx, order, product.SellerID, nil)
	if err != nil {
		return nil, err
	}

	s.dispatcher.Push(ctx, notification)
	return order, nil
}

// placeOrder runs the shared transactional tail of both order paths: the
// conditional stock take, any extra step, the insert, and the seller
// notification.
func (s *service) placeOrder(ctx context.Context, order *models.Order, sellerID uuid.UUID, extra func(tx *gorm.DB) error) (*models.Notification, error) {
	var notification *models.Notification
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		taken, err := s.products.WithTx(tx).DecrementStock(ctx, order.ProductID, order.Quantity)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement stock")
		}
		if !taken {
			// The decrement also refuses archived listings; tell them apart.
			product, perr := s.products.WithTx(tx).FindByID(ctx, order.ProductID)
			if perr == nil && product.Status != enums.ProductStatusActive {
				return pkgerrors.New(pkgerrors.CodeValidation, "product is not active")
			}
			return pkgerrors.New(pkgerrors.CodeValidation, "not enough stock for the requested quantity")
		}

		if extra != nil {
			if err := extra(tx); err != nil {
				return err
			}
		}

		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		notification, err = s.dispatcher.Record(ctx, tx, notifications.DispatchInput{
			UserID:  sellerID,
			Type:    enums.NotificationTypeOrder,
			Title:   "New order",
			Message: fmt.Sprintf("You received an order for %d item(s).", order.Quantity),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return notification, nil
}

func (s *service) GetByID(ctx context.Context, callerID, orderID uuid.UUID) (*OrderView, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	product, err := s.products.FindByID(ctx, order.ProductID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}

	view := &OrderView{Order: *order, Product: productSummaryFrom(*product)}
	switch callerID {
	case order.BuyerID:
		view.Role = roleBuyer
	case product.SellerID:
		view.Role = roleSeller
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not a party to this order")
	}
	return view, nil
}

func (s *service) ListBuying(ctx context.Context, params ListParams) (*ListResult, error) {
	return s.list(ctx, params, roleBuyer)
}

func (s *service) ListSelling(ctx context.Context, params ListParams) (*ListResult, error) {
	return s.list(ctx, params, roleSeller)
}

func (s *service) list(ctx context.Context, params ListParams, role string) (*ListResult, error) {
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

	var (
		rows []models.Order
		next *pagination.Cursor
		err  error
	)
	if role == roleBuyer {
		rows, next, err = s.repo.ListBuying(ctx, query)
	} else {
		rows, next, err = s.repo.ListSelling(ctx, query)
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}

	views, err := s.enrich(ctx, rows, role)
	if err != nil {
		return nil, err
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: views, Cursor: cursor}, nil
}

// enrich joins product and counterpart display data onto the page.
func (s *service) enrich(ctx context.Context, rows []models.Order, role string) ([]OrderView, error) {
	productIDs := make([]uuid.UUID, 0, len(rows))
	for _, order := range rows {
		productIDs = append(productIDs, order.ProductID)
	}
	productsByID, err := s.products.FindByIDs(ctx, productIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}

	counterpartIDs := make([]uuid.UUID, 0, len(rows))
	for _, order := range rows {
		if role == roleBuyer {
			if product, ok := productsByID[order.ProductID]; ok {
				counterpartIDs = append(counterpartIDs, product.SellerID)
			}
		} else {
			counterpartIDs = append(counterpartIDs, order.BuyerID)
		}
	}
	usersByID, err := s.users.FindByIDs(ctx, counterpartIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load counterparts")
	}

	views := make([]OrderView, 0, len(rows))
	for _, order := range rows {
		view := OrderView{Order: order, Role: role}
		if product, ok := productsByID[order.ProductID]; ok {
			view.Product = productSummaryFrom(product)
			counterpartID := order.BuyerID
			if role == roleBuyer {
				counterpartID = product.SellerID
			}
			if user, ok := usersByID[counterpartID]; ok {
				view.Counterpart = userSummaryFrom(user)
			}
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *service) UpdateStatus(ctx context.Context, callerID, orderID uuid.UUID, target enums.OrderStatus) (*models.Order, error) {
	if !target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	product, err := s.products.FindByID(ctx, order.ProductID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if product.SellerID != callerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the seller may update order status")
	}
	if !order.Status.CanTransitionTo(target) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot move order from %s to %s", order.Status, target))
	}

	title, message := statusNotification(target, product.Title)
	var notification *models.Notification
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		moved, err := s.repo.WithTx(tx).UpdateStatus(ctx, order.ID, order.Status, target)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order state changed concurrently")
		}

		notification, err = s.dispatcher.Record(ctx, tx, notifications.DispatchInput{
			UserID:  order.BuyerID,
			Type:    enums.NotificationTypeOrder,
			Title:   title,
			Message: message,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	order.Status = target
	s.dispatcher.Push(ctx, notification)
	return order, nil
}

func statusNotification(target enums.OrderStatus, productTitle string) (title, message string) {
	switch target {
	case enums.OrderStatusShipped:
		return "Order shipped", fmt.Sprintf("Your order for %q is on its way.", productTitle)
	case enums.OrderStatusDelivered:
		return "Order delivered", fmt.Sprintf("Your order for %q was delivered.", productTitle)
	default:
		return "Order updated", fmt.Sprintf("Your order for %q is now %s.", productTitle, target)
	}
}

func (s *service) loadOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}
