package messaging

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/edgeup/edgeup-backend/pkg/db"
	"github.com/edgeup/edgeup-backend/pkg/db/models"
	pkgerrors "github.com/edgeup/edgeup-backend/pkg/errors"
	"github.com/edgeup/edgeup-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const maxMessageLength = 4000

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// userSource is the slice of the users surface messaging needs.
type userSource interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.User, error)
}

// SendInput holds the validated payload for a new message.
type SendInput struct {
	RecipientID uuid.UUID
	Body        string
}

// CounterpartSummary is the other party shown on a conversation.
type CounterpartSummary struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	AvatarURL *string   `json:"avatarUrl,omitempty"`
}

// ConversationView is a thread joined with its counterpart, last message, and
// the caller's unread count.
type ConversationView struct {
	ID          uuid.UUID           `json:"id"`
	Counterpart *CounterpartSummary `json:"counterpart,omitempty"`
	LastMessage *models.Message     `json:"lastMessage,omitempty"`
	UnreadCount int64               `json:"unreadCount"`
	CreatedAt   time.Time           `json:"createdAt"`
	UpdatedAt   time.Time           `json:"updatedAt"`
}

// ListConversationsParams configures one page of the caller's threads.
type ListConversationsParams struct {
	UserID uuid.UUID
	Limit  int
	Cursor string
}

// ConversationListResult is one page of threads plus the cursor for the next.
type ConversationListResult struct {
	Items  []ConversationView `json:"items"`
	Cursor string             `json:"cursor"`
}

// ListMessagesParams configures one message page within a thread.
type ListMessagesParams struct {
	ConversationID uuid.UUID
	Limit          int
	Cursor         string
}

// MessageListResult is one message page, newest first.
type MessageListResult struct {
	Items  []models.Message `json:"items"`
	Cursor string           `json:"cursor"`
}

// Service manages buyer and seller direct messaging.
type Service interface {
	Send(ctx context.Context, senderID uuid.UUID, input SendInput) (*models.Message, error)
	ListConversations(ctx context.Context, params ListConversationsParams) (*ConversationListResult, error)
	ListMessages(ctx context.Context, userID uuid.UUID, params ListMessagesParams) (*MessageListResult, error)
}

type service struct {
	repo  Repository
	users userSource
	tx    txRunner
}

// NewService wires messaging dependencies.
func NewService(repo Repository, users userSource, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "messaging repository required")
	}
	if users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "user source required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	return &service{repo: repo, users: users, tx: tx}, nil
}

// Send delivers a message to the recipient, opening the conversation on first
// contact. The sender becomes the thread's buyer side when it is created.
func (s *service) Send(ctx context.Context, senderID uuid.UUID, input SendInput) (*models.Message, error) {
	if senderID == uuid.Nil || input.RecipientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sender and recipient ids required")
	}
	if senderID == input.RecipientID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot message yourself")
	}
	body := strings.TrimSpace(input.Body)
	if body == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "message body required")
	}
	if len(body) > maxMessageLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "message body too long")
	}

	if _, err := s.users.FindByID(ctx, input.RecipientID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "recipient not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load recipient")
	}

	var message *models.Message
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		conversation, err := s.conversationFor(ctx, repo, senderID, input.RecipientID)
		if err != nil {
			return err
		}

		message = &models.Message{
			ID:             uuid.New(),
			ConversationID: conversation.ID,
			SenderID:       senderID,
			RecipientID:    conversation.CounterpartOf(senderID),
			Body:           body,
		}
		if err := repo.CreateMessage(ctx, message); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create message")
		}
		if err := repo.TouchConversation(ctx, conversation.ID, time.Now().UTC()); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "touch conversation")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return message, nil
}

// conversationFor finds the thread between the two parties, creating it when
// absent. A lost insert race falls back to the winner's row.
func (s *service) conversationFor(ctx context.Context, repo Repository, senderID, recipientID uuid.UUID) (*models.Conversation, error) {
	conversation, err := repo.FindConversationBetween(ctx, senderID, recipientID)
	if err == nil {
		return conversation, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load conversation")
	}

	conversation = &models.Conversation{ID: uuid.New(), BuyerID: senderID, SellerID: recipientID}
	if err := repo.CreateConversation(ctx, conversation); err != nil {
		if db.IsUniqueViolation(err, "") {
			return repo.FindConversationBetween(ctx, senderID, recipientID)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create conversation")
	}
	return conversation, nil
}

func (s *service) ListConversations(ctx context.Context, params ListConversationsParams) (*ConversationListResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	query := ConversationFilter{UserID: params.UserID, Limit: params.Limit}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.ListConversations(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list conversations")
	}

	conversationIDs := make([]uuid.UUID, 0, len(rows))
	counterpartIDs := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		conversationIDs = append(conversationIDs, row.ID)
		counterpartIDs = append(counterpartIDs, row.CounterpartOf(params.UserID))
	}

	unread, err := s.repo.UnreadCounts(ctx, params.UserID, conversationIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "unread counts")
	}
	previews, err := s.repo.LastMessages(ctx, conversationIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "last messages")
	}
	counterparts, err := s.users.FindByIDs(ctx, counterpartIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load counterparts")
	}

	views := make([]ConversationView, 0, len(rows))
	for _, row := range rows {
		view := ConversationView{
			ID:          row.ID,
			UnreadCount: unread[row.ID],
			CreatedAt:   row.CreatedAt,
			UpdatedAt:   row.UpdatedAt,
		}
		if counterpart, ok := counterparts[row.CounterpartOf(params.UserID)]; ok {
			view.Counterpart = &CounterpartSummary{
				ID:        counterpart.ID,
				Name:      counterpart.Name,
				AvatarURL: counterpart.AvatarURL,
			}
		}
		if preview, ok := previews[row.ID]; ok {
			copied := preview
			view.LastMessage = &copied
		}
		views = append(views, view)
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ConversationListResult{Items: views, Cursor: cursor}, nil
}

// ListMessages returns one page of the thread and marks the messages addressed
// to the caller as read.
func (s *service) ListMessages(ctx context.Context, userID uuid.UUID, params ListMessagesParams) (*MessageListResult, error) {
	if userID == uuid.Nil || params.ConversationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user and conversation ids required")
	}

	conversation, err := s.repo.FindConversationByID(ctx, params.ConversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "conversation not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load conversation")
	}
	if !conversation.HasMember(userID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not a conversation member")
	}

	if _, err := s.repo.MarkMessagesRead(ctx, conversation.ID, userID, time.Now().UTC()); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark messages read")
	}

	query := MessageFilter{ConversationID: conversation.ID, Limit: params.Limit}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.ListMessages(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list messages")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &MessageListResult{Items: rows, Cursor: cursor}, nil
}
