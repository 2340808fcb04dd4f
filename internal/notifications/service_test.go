package notifications

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/edgeup/edgeup-backend/internal/events"
	"github.com/edgeup/edgeup-backend/pkg/db/models"
	"github.com/edgeup/edgeup-backend/pkg/enums"
	pkgerrors "github.com/edgeup/edgeup-backend/pkg/errors"
	"github.com/edgeup/edgeup-backend/pkg/logger"
	"github.com/edgeup/edgeup-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type fakeNotificationsRepo struct {
	created     []models.Notification
	listed      []models.Notification
	listParams  ListFilter
	markResult  MarkResult
	markAll     int64
	deleteFound bool
	err         error
}

func (f *fakeNotificationsRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeNotificationsRepo) Create(ctx context.Context, notification *models.Notification) error {
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, *notification)
	return nil
}

func (f *fakeNotificationsRepo) List(ctx context.Context, params ListFilter) ([]models.Notification, *pagination.Cursor, error) {
	f.listParams = params
	return f.listed, nil, f.err
}

func (f *fakeNotificationsRepo) MarkRead(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (MarkResult, error) {
	return f.markResult, f.err
}

func (f *fakeNotificationsRepo) MarkAllRead(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	return f.markAll, f.err
}

func (f *fakeNotificationsRepo) Delete(ctx context.Context, userID, notificationID uuid.UUID) (bool, error) {
	return f.deleteFound, f.err
}

func TestServiceListRejectsBadCursor(t *testing.T) {
	svc, err := NewService(&fakeNotificationsRepo{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	_, err = svc.List(context.Background(), ListParams{UserID: uuid.New(), Cursor: "not-base64!!"})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestServiceListPassesUnreadFilter(t *testing.T) {
	repo := &fakeNotificationsRepo{}
	svc, _ := NewService(repo)

	_, err := svc.List(context.Background(), ListParams{UserID: uuid.New(), UnreadOnly: true})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !repo.listParams.UnreadOnly {
		t.Fatal("expected unread filter to reach the repository")
	}
}

func TestServiceMarkReadNotFound(t *testing.T) {
	repo := &fakeNotificationsRepo{markResult: MarkResult{Found: false}}
	svc, _ := NewService(repo)

	err := svc.MarkRead(context.Background(), uuid.New(), uuid.New())
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestServiceMarkReadIdempotent(t *testing.T) {
	repo := &fakeNotificationsRepo{markResult: MarkResult{Found: true, Updated: false}}
	svc, _ := NewService(repo)

	if err := svc.MarkRead(context.Background(), uuid.New(), uuid.New()); err != nil {
		t.Fatalf("expected already-read to succeed, got %v", err)
	}
}

func TestServiceDeleteNotFound(t *testing.T) {
	repo := &fakeNotificationsRepo{deleteFound: false}
	svc, _ := NewService(repo)

	err := svc.Delete(context.Background(), uuid.New(), uuid.New())
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func newTestDispatcher(t *testing.T, repo Repository, hub *events.Hub) Dispatcher {
	t.Helper()
	disp, err := NewDispatcher(repo, hub, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	return disp
}

func TestDispatcherRecordValidatesType(t *testing.T) {
	disp := newTestDispatcher(t, &fakeNotificationsRepo{}, nil)

	_, err := disp.Record(context.Background(), nil, DispatchInput{
		UserID: uuid.New(),
		Type:   enums.NotificationType("bogus"),
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDispatcherRecordPersists(t *testing.T) {
	repo := &fakeNotificationsRepo{}
	disp := newTestDispatcher(t, repo, nil)

	notification, err := disp.Record(context.Background(), nil, DispatchInput{
		UserID:  uuid.New(),
		Type:    enums.NotificationTypeDeal,
		Title:   "Offer accepted",
		Message: "Your offer was accepted",
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if notification.ID == uuid.Nil {
		t.Fatal("expected an assigned id")
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected 1 persisted notification, got %d", len(repo.created))
	}
}

func TestDispatcherPushWithoutHubIsNoop(t *testing.T) {
	disp := newTestDispatcher(t, &fakeNotificationsRepo{}, nil)
	disp.Push(context.Background(), &models.Notification{ID: uuid.New(), UserID: uuid.New()})
}

func TestDispatcherPushReachesSubscriber(t *testing.T) {
	hub := events.NewHub(4)
	disp := newTestDispatcher(t, &fakeNotificationsRepo{}, hub)

	userID := uuid.New()
	sub := hub.Subscribe(userID)
	defer sub.Close()

	disp.Push(context.Background(), &models.Notification{ID: uuid.New(), UserID: userID})

	select {
	case event := <-sub.Events():
		if event.Type != "notification" {
			t.Fatalf("unexpected event type %q", event.Type)
		}
	default:
		t.Fatal("expected a live event")
	}
}
