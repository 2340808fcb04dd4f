package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/edgeup/edgeup-backend/pkg/enums"
)

// TrustedRequest is a seller application pitch awaiting admin review. A user
// may hold at most one pending request at a time, enforced at insert.
type TrustedRequest struct {
	ID        uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID                  `gorm:"column:user_id;type:uuid;not null;index" json:"userId"`
	Pitch     string                     `gorm:"column:pitch;type:text;not null" json:"pitch"`
	Status    enums.TrustedRequestStatus `gorm:"column:status;type:text;not null;default:'pending'" json:"status"`
	DecidedAt *time.Time                 `gorm:"column:decided_at" json:"decidedAt,omitempty"`
	CreatedAt time.Time                  `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time                  `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}
