package notifications

import (
	"context"

	"github.com/edgeup/edgeup-backend/internal/events"
	"github.com/edgeup/edgeup-backend/pkg/db/models"
	"github.com/edgeup/edgeup-backend/pkg/enums"
	pkgerrors "github.com/edgeup/edgeup-backend/pkg/errors"
	"github.com/edgeup/edgeup-backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Dispatcher persists notifications and pushes them to live listeners.
// Record runs inside the caller's transaction so the notification commits or
// rolls back with the business write that triggered it. Push happens after
// commit and never fails the caller: a dead hub only costs the live update,
// the row is already durable.
type Dispatcher interface {
	Record(ctx context.Context, tx *gorm.DB, input DispatchInput) (*models.Notification, error)
	Push(ctx context.Context, notification *models.Notification)
}

// DispatchInput describes one notification to record.
type DispatchInput struct {
	UserID  uuid.UUID
	Type    enums.NotificationType
	Title   string
	Message string
}

type dispatcher struct {
	repo Repository
	hub  *events.Hub
	logg *logger.Logger
}

// NewDispatcher wires the notification dispatcher. The hub may be nil when
// live push is disabled.
func NewDispatcher(repo Repository, hub *events.Hub, logg *logger.Logger) (Dispatcher, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &dispatcher{repo: repo, hub: hub, logg: logg}, nil
}

func (d *dispatcher) Record(ctx context.Context, tx *gorm.DB, input DispatchInput) (*models.Notification, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notification user id required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid notification type")
	}

	notification := &models.Notification{
		ID:      uuid.New(),
		UserID:  input.UserID,
		Type:    input.Type,
		Title:   input.Title,
		Message: input.Message,
	}
	if err := d.repo.WithTx(tx).Create(ctx, notification); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record notification")
	}
	return notification, nil
}

func (d *dispatcher) Push(ctx context.Context, notification *models.Notification) {
	if notification == nil || d.hub == nil {
		return
	}

	delivered, dropped := d.hub.Publish(notification.UserID, events.Event{
		Type:    "notification",
		Payload: notification,
	})
	if dropped > 0 {
		ctx = d.logg.WithFields(ctx, map[string]any{
			"notification_id": notification.ID.String(),
			"delivered":       delivered,
			"dropped":         dropped,
		})
		d.logg.Warn(ctx, "notification push dropped for slow listeners")
	}
}
