package negotiations

import (
	"context"
	"testing"

	"github.com/edgeup/edgeup-backend/internal/notifications"
	"github.com/edgeup/edgeup-backend/pkg/db/models"
	"github.com/edgeup/edgeup-backend/pkg/enums"
	pkgerrors "github.com/edgeup/edgeup-backend/pkg/errors"
	"github.com/edgeup/edgeup-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type fakeNegotiationsRepo struct {
	rows map[uuid.UUID]*models.Negotiation
}

func newFakeNegotiationsRepo(seed ...*models.Negotiation) *fakeNegotiationsRepo {
	repo := &fakeNegotiationsRepo{rows: map[uuid.UUID]*models.Negotiation{}}
	for _, row := range seed {
		repo.rows[row.ID] = row
	}
	return repo
}

func (f *fakeNegotiationsRepo) WithTx(tx *gorm.DB) Repository { return f }

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
	var latest *models.Negotiation
	for _, row := range f.rows {
		if row.ProductID != productID || row.BuyerID != buyerID {
			continue
		}
		if latest == nil || row.CreatedAt.After(latest.CreatedAt) {
			latest = row
		}
	}
	if latest == nil {
		return nil, nil
	}
	copied := *latest
	return &copied, nil
}

func (f *fakeNegotiationsRepo) List(ctx context.Context, params ListFilter) ([]models.Negotiation, *pagination.Cursor, error) {
	var rows []models.Negotiation
	for _, row := range f.rows {
		switch params.Side {
		case SideBuyer:
			if row.BuyerID != params.UserID {
				continue
			}
		case SideSeller:
			if row.SellerID != params.UserID {
				continue
			}
		default:
			if row.BuyerID != params.UserID && row.SellerID != params.UserID {
				continue
			}
		}
		rows = append(rows, *row)
	}
	return rows, nil, nil
}

func (f *fakeNegotiationsRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.NegotiationStatus) (bool, error) {
	row, ok := f.rows[id]
	if !ok || row.Status != from {
		return false, nil
	}
	row.Status = to
	return true, nil
}

type fakeProductsSource struct {
	products map[uuid.UUID]*models.Product
}

func (f *fakeProductsSource) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	product, ok := f.products[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *product
	return &copied, nil
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

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fixture struct {
	svc        Service
	repo       *fakeNegotiationsRepo
	dispatcher *fakeDispatcher
	product    *models.Product
}

func newFixture(t *testing.T, seed ...*models.Negotiation) *fixture {
	t.Helper()
	product := &models.Product{
		ID:         uuid.New(),
		SellerID:   uuid.New(),
		Title:      "Road bike",
		PriceCents: 45000,
		Category:   enums.ProductCategorySports,
		Stock:      5,
		Status:     enums.ProductStatusActive,
	}
	repo := newFakeNegotiationsRepo(seed...)
	dispatcher := &fakeDispatcher{}
	svc, err := NewService(repo, &fakeProductsSource{products: map[uuid.UUID]*models.Product{product.ID: product}}, dispatcher, fakeTxRunner{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &fixture{svc: svc, repo: repo, dispatcher: dispatcher, product: product}
}

func TestCreateDeniesSelfNegotiation(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.svc.Create(context.Background(), fx.product.SellerID, CreateNegotiationInput{
		ProductID:         fx.product.ID,
		OfferedPriceCents: 40000,
		Quantity:          1,
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateMissingProductIs404(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.svc.Create(context.Background(), uuid.New(), CreateNegotiationInput{
		ProductID:         uuid.New(),
		OfferedPriceCents: 100,
		Quantity:          1,
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateRejectsUnderstockedOffer(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.svc.Create(context.Background(), uuid.New(), CreateNegotiationInput{
		ProductID:         fx.product.ID,
		OfferedPriceCents: 100,
		Quantity:          fx.product.Stock + 1,
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateDefaultsQuantityToOne(t *testing.T) {
	fx := newFixture(t)

	negotiation, err := fx.svc.Create(context.Background(), uuid.New(), CreateNegotiationInput{
		ProductID:         fx.product.ID,
		OfferedPriceCents: 40000,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if negotiation.Quantity != 1 {
		t.Fatalf("expected quantity 1, got %d", negotiation.Quantity)
	}
	if negotiation.Status != enums.NegotiationStatusPending {
		t.Fatalf("unexpected status %s", negotiation.Status)
	}
}

func TestCreateDenormalizesSeller(t *testing.T) {
	fx := newFixture(t)
	buyerID := uuid.New()

	negotiation, err := fx.svc.Create(context.Background(), buyerID, CreateNegotiationInput{
		ProductID:         fx.product.ID,
		OfferedPriceCents: 40000,
		Quantity:          2,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if negotiation.SellerID != fx.product.SellerID {
		t.Fatal("expected seller id copied from product")
	}
	if negotiation.Status != enums.NegotiationStatusPending {
		t.Fatalf("unexpected status %s", negotiation.Status)
	}
}

func TestAcceptBySellerNotifiesBuyer(t *testing.T) {
	buyerID := uuid.New()
	fx := newFixture(t)
	negotiation := &models.Negotiation{
		ID: uuid.New(), ProductID: fx.product.ID, BuyerID: buyerID,
		SellerID: fx.product.SellerID, OfferedPriceCents: 40000, Quantity: 2,
		Status: enums.NegotiationStatusPending,
	}
	fx.repo.rows[negotiation.ID] = negotiation

	accepted, err := fx.svc.Accept(context.Background(), fx.product.SellerID, negotiation.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.Status != enums.NegotiationStatusAccepted {
		t.Fatalf("unexpected status %s", accepted.Status)
	}
	if len(fx.dispatcher.recorded) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(fx.dispatcher.recorded))
	}
	if fx.dispatcher.recorded[0].UserID != buyerID || fx.dispatcher.recorded[0].Type != enums.NotificationTypeDeal {
		t.Fatalf("unexpected notification %+v", fx.dispatcher.recorded[0])
	}
	if fx.dispatcher.pushed != 1 {
		t.Fatalf("expected 1 push, got %d", fx.dispatcher.pushed)
	}
}

func TestAcceptByNonSellerForbidden(t *testing.T) {
	fx := newFixture(t)
	negotiation := &models.Negotiation{
		ID: uuid.New(), ProductID: fx.product.ID, BuyerID: uuid.New(),
		SellerID: fx.product.SellerID, Status: enums.NegotiationStatusPending, Quantity: 1,
	}
	fx.repo.rows[negotiation.ID] = negotiation

	_, err := fx.svc.Accept(context.Background(), uuid.New(), negotiation.ID)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestAcceptUnderstockedKeepsPending(t *testing.T) {
	fx := newFixture(t)
	negotiation := &models.Negotiation{
		ID: uuid.New(), ProductID: fx.product.ID, BuyerID: uuid.New(),
		SellerID: fx.product.SellerID, Quantity: fx.product.Stock + 1,
		Status: enums.NegotiationStatusPending,
	}
	fx.repo.rows[negotiation.ID] = negotiation

	_, err := fx.svc.Accept(context.Background(), fx.product.SellerID, negotiation.ID)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if fx.repo.rows[negotiation.ID].Status != enums.NegotiationStatusPending {
		t.Fatal("expected negotiation to stay pending")
	}
	if len(fx.dispatcher.recorded) != 0 {
		t.Fatal("expected no notification")
	}
}

func TestDeclineNotifiesBuyer(t *testing.T) {
	buyerID := uuid.New()
	fx := newFixture(t)
	negotiation := &models.Negotiation{
		ID: uuid.New(), ProductID: fx.product.ID, BuyerID: buyerID,
		SellerID: fx.product.SellerID, Quantity: 1,
		Status: enums.NegotiationStatusPending,
	}
	fx.repo.rows[negotiation.ID] = negotiation

	declined, err := fx.svc.Decline(context.Background(), fx.product.SellerID, negotiation.ID)
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if declined.Status != enums.NegotiationStatusRejected {
		t.Fatalf("unexpected status %s", declined.Status)
	}
	if len(fx.dispatcher.recorded) != 1 || fx.dispatcher.recorded[0].UserID != buyerID {
		t.Fatalf("expected buyer notification, got %+v", fx.dispatcher.recorded)
	}
}

func TestDecisionOnTerminalStateConflicts(t *testing.T) {
	fx := newFixture(t)
	negotiation := &models.Negotiation{
		ID: uuid.New(), ProductID: fx.product.ID, BuyerID: uuid.New(),
		SellerID: fx.product.SellerID, Quantity: 1,
		Status: enums.NegotiationStatusRejected,
	}
	fx.repo.rows[negotiation.ID] = negotiation

	_, err := fx.svc.Accept(context.Background(), fx.product.SellerID, negotiation.ID)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
	if len(fx.dispatcher.recorded) != 0 {
		t.Fatal("terminal decisions must not re-fire notifications")
	}
}

func TestLatestForProductReturnsNilWhenAbsent(t *testing.T) {
	fx := newFixture(t)

	negotiation, err := fx.svc.LatestForProduct(context.Background(), uuid.New(), fx.product.ID)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if negotiation != nil {
		t.Fatalf("expected nil, got %+v", negotiation)
	}
}

func TestGetByIDPartyOnly(t *testing.T) {
	fx := newFixture(t)
	negotiation := &models.Negotiation{
		ID: uuid.New(), ProductID: fx.product.ID, BuyerID: uuid.New(),
		SellerID: fx.product.SellerID, Quantity: 1,
		Status: enums.NegotiationStatusPending,
	}
	fx.repo.rows[negotiation.ID] = negotiation

	_, err := fx.svc.GetByID(context.Background(), uuid.New(), negotiation.ID)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found for outsiders, got %v", err)
	}

	got, err := fx.svc.GetByID(context.Background(), negotiation.BuyerID, negotiation.ID)
	if err != nil || got.ID != negotiation.ID {
		t.Fatalf("expected lookup by buyer to succeed, got %v", err)
	}
}
