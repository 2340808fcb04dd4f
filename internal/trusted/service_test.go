package trusted

import (
	"context"
	"testing"
	"time"

	"github.com/edgeup/edgeup-backend/internal/notifications"
	"github.com/edgeup/edgeup-backend/internal/users"
	"github.com/edgeup/edgeup-backend/pkg/db/models"
	"github.com/edgeup/edgeup-backend/pkg/enums"
	pkgerrors "github.com/edgeup/edgeup-backend/pkg/errors"
	"github.com/edgeup/edgeup-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type fakeTrustedRepo struct {
	rows map[uuid.UUID]*models.TrustedRequest
}

func newFakeTrustedRepo() *fakeTrustedRepo {
	return &fakeTrustedRepo{rows: map[uuid.UUID]*models.TrustedRequest{}}
}

func (f *fakeTrustedRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeTrustedRepo) Create(ctx context.Context, request *models.TrustedRequest) error {
	request.CreatedAt = time.Now().UTC()
	copied := *request
	f.rows[request.ID] = &copied
	return nil
}

func (f *fakeTrustedRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.TrustedRequest, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *row
	return &copied, nil
}

func (f *fakeTrustedRepo) HasPending(ctx context.Context, userID uuid.UUID) (bool, error) {
	for _, row := range f.rows {
		if row.UserID == userID && row.Status == enums.TrustedRequestStatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeTrustedRepo) ListPending(ctx context.Context, params ListFilter) ([]models.TrustedRequest, *pagination.Cursor, error) {
	var rows []models.TrustedRequest
	for _, row := range f.rows {
		if row.Status == enums.TrustedRequestStatusPending {
			rows = append(rows, *row)
		}
	}
	return rows, nil, nil
}

func (f *fakeTrustedRepo) Decide(ctx context.Context, id uuid.UUID, status enums.TrustedRequestStatus, decidedAt time.Time) (bool, error) {
	row, ok := f.rows[id]
	if !ok || row.Status != enums.TrustedRequestStatusPending {
		return false, nil
	}
	row.Status = status
	stamp := decidedAt
	row.DecidedAt = &stamp
	return true, nil
}

type fakeUsersRepo struct {
	rows map[uuid.UUID]*models.User
}

func newFakeUsers(seed ...*models.User) *fakeUsersRepo {
	repo := &fakeUsersRepo{rows: map[uuid.UUID]*models.User{}}
	for _, user := range seed {
		repo.rows[user.ID] = user
	}
	return repo
}

func (f *fakeUsersRepo) WithTx(tx *gorm.DB) users.Repository { return f }

func (f *fakeUsersRepo) Create(ctx context.Context, user *models.User) error {
	f.rows[user.ID] = user
	return nil
}

func (f *fakeUsersRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *row
	return &copied, nil
}

func (f *fakeUsersRepo) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.User, error) {
	out := make(map[uuid.UUID]models.User, len(ids))
	for _, id := range ids {
		if row, ok := f.rows[id]; ok {
			out[id] = *row
		}
	}
	return out, nil
}

func (f *fakeUsersRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, row := range f.rows {
		if row.Email == email {
			copied := *row
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUsersRepo) Update(ctx context.Context, user *models.User) error {
	f.rows[user.ID] = user
	return nil
}

func (f *fakeUsersRepo) AddKarma(ctx context.Context, id uuid.UUID, delta int) error {
	if row, ok := f.rows[id]; ok {
		row.Karma += delta
	}
	return nil
}

func (f *fakeUsersRepo) UpdateRole(ctx context.Context, id uuid.UUID, role enums.UserRole) error {
	if row, ok := f.rows[id]; ok {
		row.Role = role
	}
	return nil
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
	repo       *fakeTrustedRepo
	usersRepo  *fakeUsersRepo
	dispatcher *fakeDispatcher
	applicant  *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	applicant := &models.User{
		ID:      uuid.New(),
		Name:    "Pat Applicant",
		Email:   "pat@example.com",
		Role:    enums.UserRoleUntrusted,
		Country: "ES",
		Karma:   30,
	}
	repo := newFakeTrustedRepo()
	usersRepo := newFakeUsers(applicant)
	dispatcher := &fakeDispatcher{}

	svc, err := NewService(repo, usersRepo, dispatcher, fakeTxRunner{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &fixture{svc: svc, repo: repo, usersRepo: usersRepo, dispatcher: dispatcher, applicant: applicant}
}

func TestApplyCreatesPendingRequest(t *testing.T) {
	fx := newFixture(t)

	request, err := fx.svc.Apply(context.Background(), fx.applicant.ID, "  I sell restored bikes.  ")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if request.Status != enums.TrustedRequestStatusPending {
		t.Fatalf("unexpected status %s", request.Status)
	}
	if request.Pitch != "I sell restored bikes." {
		t.Fatalf("pitch not trimmed: %q", request.Pitch)
	}
}

func TestApplyRejectsSecondPending(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	if _, err := fx.svc.Apply(ctx, fx.applicant.ID, "first pitch"); err != nil {
		t.Fatalf("apply: %v", err)
	}

	_, err := fx.svc.Apply(ctx, fx.applicant.ID, "second pitch")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestApplyRejectsSellersAndEmptyPitch(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Apply(ctx, fx.applicant.ID, "   ")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	fx.applicant.Role = enums.UserRoleTrusted
	_, err = fx.svc.Apply(ctx, fx.applicant.ID, "promote me again")
	typed = pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestApprovePromotesAndNotifies(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	request, err := fx.svc.Apply(ctx, fx.applicant.ID, "pitch")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	decided, err := fx.svc.Approve(ctx, request.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if decided.Status != enums.TrustedRequestStatusApproved || decided.DecidedAt == nil {
		t.Fatalf("unexpected decision %+v", decided)
	}
	if fx.applicant.Role != enums.UserRoleTrusted {
		t.Fatalf("applicant not promoted, role %s", fx.applicant.Role)
	}
	if len(fx.dispatcher.recorded) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(fx.dispatcher.recorded))
	}
	got := fx.dispatcher.recorded[0]
	if got.UserID != fx.applicant.ID || got.Type != enums.NotificationTypeSystem {
		t.Fatalf("unexpected notification %+v", got)
	}
	if fx.dispatcher.pushed != 1 {
		t.Fatalf("expected 1 push, got %d", fx.dispatcher.pushed)
	}
}

func TestRejectNotifiesWithoutPromotion(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	request, err := fx.svc.Apply(ctx, fx.applicant.ID, "pitch")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	decided, err := fx.svc.Reject(ctx, request.ID)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if decided.Status != enums.TrustedRequestStatusRejected {
		t.Fatalf("unexpected status %s", decided.Status)
	}
	if fx.applicant.Role != enums.UserRoleUntrusted {
		t.Fatalf("reject must not promote, role %s", fx.applicant.Role)
	}
	if len(fx.dispatcher.recorded) != 1 || fx.dispatcher.recorded[0].Type != enums.NotificationTypeSystem {
		t.Fatalf("expected system notification, got %+v", fx.dispatcher.recorded)
	}
}

func TestDecideTerminalConflicts(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	request, err := fx.svc.Apply(ctx, fx.applicant.ID, "pitch")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, err := fx.svc.Reject(ctx, request.ID); err != nil {
		t.Fatalf("reject: %v", err)
	}

	_, err = fx.svc.Approve(ctx, request.ID)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
	if len(fx.dispatcher.recorded) != 1 {
		t.Fatalf("decision notification re-fired: %d", len(fx.dispatcher.recorded))
	}
}

func TestDecideUnknownRequestNotFound(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.svc.Approve(context.Background(), uuid.New())
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListPendingJoinsApplicant(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	if _, err := fx.svc.Apply(ctx, fx.applicant.ID, "pitch"); err != nil {
		t.Fatalf("apply: %v", err)
	}

	result, err := fx.svc.ListPending(ctx, ListParams{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(result.Items) != 1 {
		t.Fatalf("expected 1 pending, got %d", len(result.Items))
	}
	applicant := result.Items[0].Applicant
	if applicant == nil || applicant.Name != "Pat Applicant" || applicant.Karma != 30 {
		t.Fatalf("unexpected applicant %+v", applicant)
	}
}
