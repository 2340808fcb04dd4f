package orders

import (
	"context"
	"testing"

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

type fakeOrdersRepo struct {
	rows map[uuid.UUID]*models.Order
}

func newFakeOrdersRepo() *fakeOrdersRepo {
	return &fakeOrdersRepo{rows: map[uuid.UUID]*models.Order{}}
}

func (f *fakeOrdersRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeOrdersRepo) Create(ctx context.Context, order *models.Order) error {
	f.rows[order.ID] = order
	return nil
}

func (f *fakeOrdersRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *row
	return &copied, nil
}

func (f *fakeOrdersRepo) ListBuying(ctx context.Context, params ListFilter) ([]models.Order, *pagination.Cursor, error) {
	var rows []models.Order
	for _, row := range f.rows {
		if row.BuyerID == params.UserID {
			rows = append(rows, *row)
		}
	}
	return rows, nil, nil
}

func (f *fakeOrdersRepo) ListSelling(ctx context.Context, params ListFilter) ([]models.Order, *pagination.Cursor, error) {
	return nil, nil, nil
}

func (f *fakeOrdersRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus) (bool, error) {
	row, ok := f.rows[id]
	if !ok || row.Status != from {
		return false, nil
	}
	row.Status = to
	return true, nil
}

type fakeProductsRepo struct {
	rows map[uuid.UUID]*models.Product
}

func (f *fakeProductsRepo) WithTx(tx *gorm.DB) products.Repository { return f }

func (f *fakeProductsRepo) Create(ctx context.Context, product *models.Product) error {
	f.rows[product.ID] = product
	return nil
}

func (f *fakeProductsRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *row
	return &copied, nil
}

func (f *fakeProductsRepo) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	out := make(map[uuid.UUID]models.Product, len(ids))
	for _, id := range ids {
		if row, ok := f.rows[id]; ok {
			out[id] = *row
		}
	}
	return out, nil
}

func (f *fakeProductsRepo) Update(ctx context.Context, product *models.Product) error {
	f.rows[product.ID] = product
	return nil
}

func (f *fakeProductsRepo) Search(ctx context.Context, params products.SearchFilter) ([]models.Product, *pagination.Cursor, error) {
	return nil, nil, nil
}

func (f *fakeProductsRepo) DecrementStock(ctx context.Context, id uuid.UUID, quantity int) (bool, error) {
	row, ok := f.rows[id]
	if !ok || row.Status != enums.ProductStatusActive || row.Stock < quantity {
		return false, nil
	}
	row.Stock -= quantity
	return true, nil
}

type fakeNegotiationsRepo struct {
	rows map[uuid.UUID]*models.Negotiation
}

func (f *fakeNegotiationsRepo) WithTx(tx *gorm.DB) negotiations.Repository { return f }

func (f *fakeNegotiationsRepo) Create(ctx context.Context, negotiation *models.Negotiation) error {
	f.rows[negotiation.ID] = negotiation
	return nil
}

func (f *fakeNegotiationsRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Negotiation, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *row
	return &copied, nil
}

func (f *fakeNegotiationsRepo) FindLatestForBuyer(ctx context.Context, productID, buyerID uuid.UUID) (*models.Negotiation, error) {
	return nil, nil
}

func (f *fakeNegotiationsRepo) List(ctx context.Context, params negotiations.ListFilter) ([]models.Negotiation, *pagination.Cursor, error) {
	return nil, nil, nil
}

func (f *fakeNegotiationsRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.NegotiationStatus) (bool, error) {
	row, ok := f.rows[id]
	if !ok || row.Status != from {
		return false, nil
	}
	row.Status = to
	return true, nil
}

type fakeUserSource struct {
	rows map[uuid.UUID]models.User
}

func (f *fakeUserSource) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.User, error) {
	out := make(map[uuid.UUID]models.User, len(ids))
	for _, id := range ids {
		if row, ok := f.rows[id]; ok {
			out[id] = row
		}
	}
	return out, nil
}

type fakeDispatcher struct {
	recorded []notifications.DispatchInput
	pushed   int
}

func (f *fakeDispatcher) Record(ctx context.Context, tx *gorm.DB, input notifications.DispatchInput) (*models.Notification, error) {
	f.recorded = append(f.recorded, input)
	return &models.Notification{ID: uuid.New(), UserID: input.UserID, Type: input.Type}, nil
}

func (f *fakeDispatcher) Push(ctx context.Context, notification *models.Notification) {
	if notification != nil {
		f.pushed++
	}
}

// fakeTxRunner mimics rollback semantics: repo mutations inside a failed fn
// are not unwound, so fixtures assert on state the same way sqlite tests
// would only when fn succeeds.
type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fixture struct {
	svc          Service
	orders       *fakeOrdersRepo
	products     *fakeProductsRepo
	negotiations *fakeNegotiationsRepo
	dispatcher   *fakeDispatcher

	seller  models.User
	buyer   models.User
	product *models.Product
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	seller := models.User{ID: uuid.New(), Name: "Sam Seller", Role: enums.UserRoleTrusted}
	buyer := models.User{ID: uuid.New(), Name: "Bea Buyer"}
	product := &models.Product{
		ID:         uuid.New(),
		SellerID:   seller.ID,
		Title:      "Road bike",
		PriceCents: 45000,
		Category:   enums.ProductCategorySports,
		Stock:      5,
		Status:     enums.ProductStatusActive,
	}

	ordersRepo := newFakeOrdersRepo()
	productsRepo := &fakeProductsRepo{rows: map[uuid.UUID]*models.Product{product.ID: product}}
	negotiationsRepo := &fakeNegotiationsRepo{rows: map[uuid.UUID]*models.Negotiation{}}
	userSrc := &fakeUserSource{rows: map[uuid.UUID]models.User{seller.ID: seller, buyer.ID: buyer}}
	dispatcher := &fakeDispatcher{}

	svc, err := NewService(ordersRepo, productsRepo, negotiationsRepo, userSrc, dispatcher, fakeTxRunner{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &fixture{
		svc:          svc,
		orders:       ordersRepo,
		products:     productsRepo,
		negotiations: negotiationsRepo,
		dispatcher:   dispatcher,
		seller:       seller,
		buyer:        buyer,
		product:      product,
	}
}

func (fx *fixture) acceptedNegotiation(priceCents, quantity int) *models.Negotiation {
	negotiation := &models.Negotiation{
		ID:                uuid.New(),
		ProductID:         fx.product.ID,
		BuyerID:           fx.buyer.ID,
		SellerID:          fx.seller.ID,
		OfferedPriceCents: priceCents,
		Quantity:          quantity,
		Status:            enums.NegotiationStatusAccepted,
	}
	fx.negotiations.rows[negotiation.ID] = negotiation
	return negotiation
}

func TestCreateNegotiatedLocksPriceAndQuantity(t *testing.T) {
	fx := newFixture(t)
	negotiation := fx.acceptedNegotiation(40000, 2)

	order, err := fx.svc.Create(context.Background(), fx.buyer.ID, CreateOrderInput{
		NegotiationID:   &negotiation.ID,
		Quantity:        99, // ignored on the negotiated path
		ShippingAddress: "1 Main St",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if order.UnitPriceCents != 40000 || order.Quantity != 2 || order.TotalCents != 80000 {
		t.Fatalf("expected locked pricing, got %+v", order)
	}
	if order.NegotiationID == nil || *order.NegotiationID != negotiation.ID {
		t.Fatal("expected negotiation back-reference")
	}
	if fx.negotiations.rows[negotiation.ID].Status != enums.NegotiationStatusOrdered {
		t.Fatal("expected negotiation moved to ORDERED")
	}
	if fx.product.Stock != 3 {
		t.Fatalf("expected stock decremented to 3, got %d", fx.product.Stock)
	}
	if order.Status != enums.OrderStatusPending {
		t.Fatalf("unexpected status %s", order.Status)
	}
}

func TestCreateNegotiatedNotifiesSeller(t *testing.T) {
	fx := newFixture(t)
	negotiation := fx.acceptedNegotiation(40000, 1)

	_, err := fx.svc.Create(context.Background(), fx.buyer.ID, CreateOrderInput{
		NegotiationID:   &negotiation.ID,
		ShippingAddress: "1 Main St",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(fx.dispatcher.recorded) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(fx.dispatcher.recorded))
	}
	got := fx.dispatcher.recorded[0]
	if got.UserID != fx.seller.ID || got.Type != enums.NotificationTypeOrder {
		t.Fatalf("unexpected notification %+v", got)
	}
	if fx.dispatcher.pushed != 1 {
		t.Fatalf("expected 1 push, got %d", fx.dispatcher.pushed)
	}
}

func TestCreateNegotiatedByWrongBuyerForbidden(t *testing.T) {
	fx := newFixture(t)
	negotiation := fx.acceptedNegotiation(40000, 1)

	_, err := fx.svc.Create(context.Background(), uuid.New(), CreateOrderInput{
		NegotiationID:   &negotiation.ID,
		ShippingAddress: "1 Main St",
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestCreateNegotiatedRequiresAcceptedState(t *testing.T) {
	fx := newFixture(t)
	negotiation := fx.acceptedNegotiation(40000, 1)
	negotiation.Status = enums.NegotiationStatusPending

	_, err := fx.svc.Create(context.Background(), fx.buyer.ID, CreateOrderInput{
		NegotiationID:   &negotiation.ID,
		ShippingAddress: "1 Main St",
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for pending negotiation, got %v", err)
	}

	negotiation.Status = enums.NegotiationStatusOrdered
	_, err = fx.svc.Create(context.Background(), fx.buyer.ID, CreateOrderInput{
		NegotiationID:   &negotiation.ID,
		ShippingAddress: "1 Main St",
	})
	typed = pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict for closed negotiation, got %v", err)
	}
}

func TestCreateNegotiatedUnderstockedKeepsNegotiationAccepted(t *testing.T) {
	fx := newFixture(t)
	fx.product.Stock = 1
	negotiation := fx.acceptedNegotiation(40000, 2)

	_, err := fx.svc.Create(context.Background(), fx.buyer.ID, CreateOrderInput{
		NegotiationID:   &negotiation.ID,
		ShippingAddress: "1 Main St",
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if fx.negotiations.rows[negotiation.ID].Status != enums.NegotiationStatusAccepted {
		t.Fatal("expected negotiation to stay ACCEPTED")
	}
	if fx.product.Stock != 1 {
		t.Fatalf("expected stock untouched, got %d", fx.product.Stock)
	}
	if len(fx.orders.rows) != 0 {
		t.Fatal("expected no order created")
	}
}

func TestCreateNegotiatedArchivedProductReportsInactive(t *testing.T) {
	fx := newFixture(t)
	negotiation := fx.acceptedNegotiation(40000, 1)
	fx.product.Status = enums.ProductStatusArchived

	_, err := fx.svc.Create(context.Background(), fx.buyer.ID, CreateOrderInput{
		NegotiationID:   &negotiation.ID,
		ShippingAddress: "1 Main St",
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if typed.Message() != "product is not active" {
		t.Fatalf("expected inactive-product message, got %q", typed.Message())
	}
}

func TestCreateDirectUsesLivePriceAndDefaultQuantity(t *testing.T) {
	fx := newFixture(t)

	order, err := fx.svc.Create(context.Background(), fx.buyer.ID, CreateOrderInput{
		ProductID:       &fx.product.ID,
		ShippingAddress: "1 Main St",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if order.Quantity != 1 {
		t.Fatalf("expected default quantity 1, got %d", order.Quantity)
	}
	if order.UnitPriceCents != fx.product.PriceCents || order.TotalCents != fx.product.PriceCents {
		t.Fatalf("expected live price, got %+v", order)
	}
	if order.NegotiationID != nil {
		t.Fatal("direct orders carry no negotiation reference")
	}
}

func TestCreateRequiresShippingAddress(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.svc.Create(context.Background(), fx.buyer.ID, CreateOrderInput{
		ProductID: &fx.product.ID,
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateDirectRejectsOwnListing(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.svc.Create(context.Background(), fx.seller.ID, CreateOrderInput{
		ProductID:       &fx.product.ID,
		ShippingAddress: "1 Main St",
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGetByIDTagsCallerRole(t *testing.T) {
	fx := newFixture(t)
	order, err := fx.svc.Create(context.Background(), fx.buyer.ID, CreateOrderInput{
		ProductID:       &fx.product.ID,
		ShippingAddress: "1 Main St",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	asBuyer, err := fx.svc.GetByID(context.Background(), fx.buyer.ID, order.ID)
	if err != nil || asBuyer.Role != roleBuyer {
		t.Fatalf("expected buyer view, got %+v err=%v", asBuyer, err)
	}

	asSeller, err := fx.svc.GetByID(context.Background(), fx.seller.ID, order.ID)
	if err != nil || asSeller.Role != roleSeller {
		t.Fatalf("expected seller view, got %+v err=%v", asSeller, err)
	}

	_, err = fx.svc.GetByID(context.Background(), uuid.New(), order.ID)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden for strangers, got %v", err)
	}
}

func TestUpdateStatusFollowsLifecycle(t *testing.T) {
	fx := newFixture(t)
	order, err := fx.svc.Create(context.Background(), fx.buyer.ID, CreateOrderInput{
		ProductID:       &fx.product.ID,
		ShippingAddress: "1 Main St",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	for _, target := range []enums.OrderStatus{enums.OrderStatusPaid, enums.OrderStatusShipped, enums.OrderStatusDelivered} {
		updated, err := fx.svc.UpdateStatus(context.Background(), fx.seller.ID, order.ID, target)
		if err != nil {
			t.Fatalf("transition to %s: %v", target, err)
		}
		if updated.Status != target {
			t.Fatalf("expected %s, got %s", target, updated.Status)
		}
	}

	_, err = fx.svc.UpdateStatus(context.Background(), fx.seller.ID, order.ID, enums.OrderStatusCancelled)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict after delivery, got %v", err)
	}
}

func TestUpdateStatusRejectsSkippedStates(t *testing.T) {
	fx := newFixture(t)
	order, _ := fx.svc.Create(context.Background(), fx.buyer.ID, CreateOrderInput{
		ProductID:       &fx.product.ID,
		ShippingAddress: "1 Main St",
	})

	_, err := fx.svc.UpdateStatus(context.Background(), fx.seller.ID, order.ID, enums.OrderStatusDelivered)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestUpdateStatusSellerOnly(t *testing.T) {
	fx := newFixture(t)
	order, _ := fx.svc.Create(context.Background(), fx.buyer.ID, CreateOrderInput{
		ProductID:       &fx.product.ID,
		ShippingAddress: "1 Main St",
	})

	_, err := fx.svc.UpdateStatus(context.Background(), fx.buyer.ID, order.ID, enums.OrderStatusPaid)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestCancellationDoesNotRestock(t *testing.T) {
	fx := newFixture(t)
	order, err := fx.svc.Create(context.Background(), fx.buyer.ID, CreateOrderInput{
		ProductID:       &fx.product.ID,
		Quantity:        2,
		ShippingAddress: "1 Main St",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	stockAfterOrder := fx.product.Stock

	if _, err := fx.svc.UpdateStatus(context.Background(), fx.seller.ID, order.ID, enums.OrderStatusCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if fx.product.Stock != stockAfterOrder {
		t.Fatalf("cancellation must not restock: had %d, got %d", stockAfterOrder, fx.product.Stock)
	}
}

func TestUpdateStatusNotifiesBuyerPerTarget(t *testing.T) {
	fx := newFixture(t)
	order, _ := fx.svc.Create(context.Background(), fx.buyer.ID, CreateOrderInput{
		ProductID:       &fx.product.ID,
		ShippingAddress: "1 Main St",
	})
	fx.dispatcher.recorded = nil

	if _, err := fx.svc.UpdateStatus(context.Background(), fx.seller.ID, order.ID, enums.OrderStatusPaid); err != nil {
		t.Fatalf("paid: %v", err)
	}
	if _, err := fx.svc.UpdateStatus(context.Background(), fx.seller.ID, order.ID, enums.OrderStatusShipped); err != nil {
		t.Fatalf("shipped: %v", err)
	}

	if len(fx.dispatcher.recorded) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(fx.dispatcher.recorded))
	}
	if fx.dispatcher.recorded[0].Title != "Order updated" {
		t.Fatalf("expected generic title, got %q", fx.dispatcher.recorded[0].Title)
	}
	if fx.dispatcher.recorded[1].Title != "Order shipped" {
		t.Fatalf("expected shipped title, got %q", fx.dispatcher.recorded[1].Title)
	}
	for _, input := range fx.dispatcher.recorded {
		if input.UserID != fx.buyer.ID {
			t.Fatalf("expected buyer notifications, got %+v", input)
		}
	}
}

func TestListBuyingJoinsProductAndCounterpart(t *testing.T) {
	fx := newFixture(t)
	if _, err := fx.svc.Create(context.Background(), fx.buyer.ID, CreateOrderInput{
		ProductID:       &fx.product.ID,
		ShippingAddress: "1 Main St",
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	result, err := fx.svc.ListBuying(context.Background(), ListParams{UserID: fx.buyer.ID})
	if err != nil {
		t.Fatalf("list buying: %v", err)
	}
	if len(result.Items) != 1 {
		t.Fatalf("expected 1 order, got %d", len(result.Items))
	}
	view := result.Items[0]
	if view.Role != roleBuyer {
		t.Fatalf("unexpected role %q", view.Role)
	}
	if view.Product == nil || view.Product.Title != fx.product.Title {
		t.Fatalf("expected product summary, got %+v", view.Product)
	}
	if view.Counterpart == nil || view.Counterpart.ID != fx.seller.ID {
		t.Fatalf("expected seller counterpart, got %+v", view.Counterpart)
	}
}
