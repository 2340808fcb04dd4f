package messaging

import (
	"context"
	"time"

	"github.com/edgeup/edgeup-backend/pkg/db/models"
	"github.com/edgeup/edgeup-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository exposes conversation and message persistence operations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindConversationByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	FindConversationBetween(ctx context.Context, a, b uuid.UUID) (*models.Conversation, error)
	CreateConversation(ctx context.Context, conversation *models.Conversation) error
	TouchConversation(ctx context.Context, id uuid.UUID, at time.Time) error
	ListConversations(ctx context.Context, params ConversationFilter) ([]models.Conversation, *pagination.Cursor, error)
	CreateMessage(ctx context.Context, message *models.Message) error
	ListMessages(ctx context.Context, params MessageFilter) ([]models.Message, *pagination.Cursor, error)
	MarkMessagesRead(ctx context.Context, conversationID, recipientID uuid.UUID, at time.Time) (int64, error)
	UnreadCounts(ctx context.Context, recipientID uuid.UUID, conversationIDs []uuid.UUID) (map[uuid.UUID]int64, error)
	LastMessages(ctx context.Context, conversationIDs []uuid.UUID) (map[uuid.UUID]models.Message, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository constructs a messaging repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

// ConversationFilter selects one page of a member's threads, most recently
// active first.
type ConversationFilter struct {
	UserID uuid.UUID
	Limit  int
	Cursor *pagination.Cursor
}

type MessageFilter struct {
	ConversationID uuid.UUID
	Limit          int
	Cursor         *pagination.Cursor
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) FindConversationByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	var conversation models.Conversation
	if err := r.db.WithContext(ctx).First(&conversation, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &conversation, nil
}

// FindConversationBetween matches either orientation of the pair so a thread
// opened by one side is found by the other.
func (r *repositoryImpl) FindConversationBetween(ctx context.Context, a, b uuid.UUID) (*models.Conversation, error) {
	var conversation models.Conversation
	err := r.db.WithContext(ctx).
		Where("(buyer_id = ? AND seller_id = ?) OR (buyer_id = ? AND seller_id = ?)", a, b, b, a).
		First(&conversation).Error
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

func (r *repositoryImpl) CreateConversation(ctx context.Context, conversation *models.Conversation) error {
	if conversation.ID == uuid.Nil {
		conversation.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(conversation).Error
}

// TouchConversation bumps updated_at so the thread surfaces at the top of the
// member's list.
func (r *repositoryImpl) TouchConversation(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("id = ?", id).
		Update("updated_at", at).Error
}

func (r *repositoryImpl) ListConversations(ctx context.Context, params ConversationFilter) ([]models.Conversation, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("buyer_id = ? OR seller_id = ?", params.UserID, params.UserID)
	if params.Cursor != nil {
		query = query.Where(
			"updated_at < ? OR (updated_at = ? AND id < ?)",
			params.Cursor.CreatedAt, params.Cursor.CreatedAt, params.Cursor.ID,
		)
	}

	var rows []models.Conversation
	if err := query.Order("updated_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, nil, err
	}

	if len(rows) > normalized {
		next := rows[normalized]
		rows = rows[:normalized]
		return rows, &pagination.Cursor{CreatedAt: next.UpdatedAt, ID: next.ID}, nil
	}
	return rows, nil, nil
}

func (r *repositoryImpl) CreateMessage(ctx context.Context, message *models.Message) error {
	if message.ID == uuid.Nil {
		message.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(message).Error
}

func (r *repositoryImpl) ListMessages(ctx context.Context, params MessageFilter) ([]models.Message, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("conversation_id = ?", params.ConversationID)
	if params.Cursor != nil {
		query = query.Where(
			"created_at < ? OR (created_at = ? AND id < ?)",
			params.Cursor.CreatedAt, params.Cursor.CreatedAt, params.Cursor.ID,
		)
	}

	var rows []models.Message
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, nil, err
	}

	if len(rows) > normalized {
		next := rows[normalized]
		rows = rows[:normalized]
		return rows, &pagination.Cursor{CreatedAt: next.CreatedAt, ID: next.ID}, nil
	}
	return rows, nil, nil
}

func (r *repositoryImpl) MarkMessagesRead(ctx context.Context, conversationID, recipientID uuid.UUID, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("conversation_id = ? AND recipient_id = ? AND read_at IS NULL", conversationID, recipientID).
		Update("read_at", at)
	return result.RowsAffected, result.Error
}

func (r *repositoryImpl) UnreadCounts(ctx context.Context, recipientID uuid.UUID, conversationIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	counts := make(map[uuid.UUID]int64, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		ConversationID uuid.UUID
		Total          int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Select("conversation_id, COUNT(*) AS total").
		Where("recipient_id = ? AND read_at IS NULL AND conversation_id IN ?", recipientID, conversationIDs).
		Group("conversation_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.ConversationID] = row.Total
	}
	return counts, nil
}

// LastMessages returns the newest message per conversation for list previews.
func (r *repositoryImpl) LastMessages(ctx context.Context, conversationIDs []uuid.UUID) (map[uuid.UUID]models.Message, error) {
	latest := make(map[uuid.UUID]models.Message, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return latest, nil
	}

	sub := r.db.Model(&models.Message{}).
		Select("conversation_id, MAX(created_at) AS max_created").
		Where("conversation_id IN ?", conversationIDs).
		Group("conversation_id")

	var rows []models.Message
	err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Joins("JOIN (?) newest ON messages.conversation_id = newest.conversation_id AND messages.created_at = newest.max_created", sub).
		Order("messages.created_at DESC, messages.id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if _, ok := latest[row.ConversationID]; !ok {
			latest[row.ConversationID] = row
		}
	}
	return latest, nil
}
