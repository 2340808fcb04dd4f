package messaging

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/edgeup/edgeup-backend/pkg/db/models"
	pkgerrors "github.com/edgeup/edgeup-backend/pkg/errors"
	"github.com/edgeup/edgeup-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type fakeMessagingRepo struct {
	conversations map[uuid.UUID]*models.Conversation
	messages      map[uuid.UUID]*models.Message
}

func newFakeMessagingRepo() *fakeMessagingRepo {
	return &fakeMessagingRepo{
		conversations: map[uuid.UUID]*models.Conversation{},
		messages:      map[uuid.UUID]*models.Message{},
	}
}

func (f *fakeMessagingRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeMessagingRepo) FindConversationByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	row, ok := f.conversations[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *row
	return &copied, nil
}

func (f *fakeMessagingRepo) FindConversationBetween(ctx context.Context, a, b uuid.UUID) (*models.Conversation, error) {
	for _, row := range f.conversations {
		if (row.BuyerID == a && row.SellerID == b) || (row.BuyerID == b && row.SellerID == a) {
			copied := *row
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeMessagingRepo) CreateConversation(ctx context.Context, conversation *models.Conversation) error {
	now := time.Now().UTC()
	conversation.CreatedAt = now
	conversation.UpdatedAt = now
	copied := *conversation
	f.conversations[conversation.ID] = &copied
	return nil
}

func (f *fakeMessagingRepo) TouchConversation(ctx context.Context, id uuid.UUID, at time.Time) error {
	if row, ok := f.conversations[id]; ok {
		row.UpdatedAt = at
	}
	return nil
}

func (f *fakeMessagingRepo) ListConversations(ctx context.Context, params ConversationFilter) ([]models.Conversation, *pagination.Cursor, error) {
	var rows []models.Conversation
	for _, row := range f.conversations {
		if row.BuyerID == params.UserID || row.SellerID == params.UserID {
			rows = append(rows, *row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].UpdatedAt.After(rows[j].UpdatedAt) })
	return rows, nil, nil
}

func (f *fakeMessagingRepo) CreateMessage(ctx context.Context, message *models.Message) error {
	message.CreatedAt = time.Now().UTC()
	copied := *message
	f.messages[message.ID] = &copied
	return nil
}

func (f *fakeMessagingRepo) ListMessages(ctx context.Context, params MessageFilter) ([]models.Message, *pagination.Cursor, error) {
	var rows []models.Message
	for _, row := range f.messages {
		if row.ConversationID == params.ConversationID {
			rows = append(rows, *row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.After(rows[j].CreatedAt) })
	return rows, nil, nil
}

func (f *fakeMessagingRepo) MarkMessagesRead(ctx context.Context, conversationID, recipientID uuid.UUID, at time.Time) (int64, error) {
	var updated int64
	for _, row := range f.messages {
		if row.ConversationID == conversationID && row.RecipientID == recipientID && row.ReadAt == nil {
			stamp := at
			row.ReadAt = &stamp
			updated++
		}
	}
	return updated, nil
}

func (f *fakeMessagingRepo) UnreadCounts(ctx context.Context, recipientID uuid.UUID, conversationIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	counts := map[uuid.UUID]int64{}
	for _, row := range f.messages {
		if row.RecipientID == recipientID && row.ReadAt == nil {
			counts[row.ConversationID]++
		}
	}
	return counts, nil
}

func (f *fakeMessagingRepo) LastMessages(ctx context.Context, conversationIDs []uuid.UUID) (map[uuid.UUID]models.Message, error) {
	latest := map[uuid.UUID]models.Message{}
	for _, row := range f.messages {
		current, ok := latest[row.ConversationID]
		if !ok || row.CreatedAt.After(current.CreatedAt) {
			latest[row.ConversationID] = *row
		}
	}
	return latest, nil
}

type fakeUserSource struct {
	rows map[uuid.UUID]*models.User
}

func (f *fakeUserSource) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *row
	return &copied, nil
}

func (f *fakeUserSource) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.User, error) {
	out := make(map[uuid.UUID]models.User, len(ids))
	for _, id := range ids {
		if row, ok := f.rows[id]; ok {
			out[id] = *row
		}
	}
	return out, nil
}

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fixture struct {
	svc   Service
	repo  *fakeMessagingRepo
	alice *models.User
	bob   *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	alice := &models.User{ID: uuid.New(), Name: "Alice"}
	bob := &models.User{ID: uuid.New(), Name: "Bob"}

	repo := newFakeMessagingRepo()
	svc, err := NewService(
		repo,
		&fakeUserSource{rows: map[uuid.UUID]*models.User{alice.ID: alice, bob.ID: bob}},
		fakeTxRunner{},
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &fixture{svc: svc, repo: repo, alice: alice, bob: bob}
}

func TestSendOpensConversationLazily(t *testing.T) {
	fx := newFixture(t)

	message, err := fx.svc.Send(context.Background(), fx.alice.ID, SendInput{
		RecipientID: fx.bob.ID,
		Body:        "  hi, is the bike still available?  ",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if message.Body != "hi, is the bike still available?" {
		t.Fatalf("body not trimmed: %q", message.Body)
	}
	if message.RecipientID != fx.bob.ID {
		t.Fatalf("unexpected recipient %s", message.RecipientID)
	}
	if len(fx.repo.conversations) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(fx.repo.conversations))
	}
}

func TestSendReusesConversationFromEitherSide(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	first, err := fx.svc.Send(ctx, fx.alice.ID, SendInput{RecipientID: fx.bob.ID, Body: "hello"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	reply, err := fx.svc.Send(ctx, fx.bob.ID, SendInput{RecipientID: fx.alice.ID, Body: "hi back"})
	if err != nil {
		t.Fatalf("reply: %v", err)
	}

	if first.ConversationID != reply.ConversationID {
		t.Fatalf("reply opened a second conversation")
	}
	if reply.RecipientID != fx.alice.ID {
		t.Fatalf("unexpected reply recipient %s", reply.RecipientID)
	}
}

func TestSendRejectsSelfAndEmptyBody(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Send(ctx, fx.alice.ID, SendInput{RecipientID: fx.alice.ID, Body: "note to self"})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	_, err = fx.svc.Send(ctx, fx.alice.ID, SendInput{RecipientID: fx.bob.ID, Body: "   "})
	typed = pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSendUnknownRecipientNotFound(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.svc.Send(context.Background(), fx.alice.ID, SendInput{
		RecipientID: uuid.New(),
		Body:        "anyone there?",
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListConversationsJoinsUnreadAndPreview(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	if _, err := fx.svc.Send(ctx, fx.alice.ID, SendInput{RecipientID: fx.bob.ID, Body: "first"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := fx.svc.Send(ctx, fx.alice.ID, SendInput{RecipientID: fx.bob.ID, Body: "second"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	result, err := fx.svc.ListConversations(ctx, ListConversationsParams{UserID: fx.bob.ID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(result.Items) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(result.Items))
	}
	view := result.Items[0]
	if view.UnreadCount != 2 {
		t.Fatalf("expected 2 unread, got %d", view.UnreadCount)
	}
	if view.Counterpart == nil || view.Counterpart.Name != "Alice" {
		t.Fatalf("unexpected counterpart %+v", view.Counterpart)
	}
	if view.LastMessage == nil || view.LastMessage.Body != "second" {
		t.Fatalf("unexpected preview %+v", view.LastMessage)
	}
}

func TestListMessagesMarksCounterpartRead(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	message, err := fx.svc.Send(ctx, fx.alice.ID, SendInput{RecipientID: fx.bob.ID, Body: "ping"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	result, err := fx.svc.ListMessages(ctx, fx.bob.ID, ListMessagesParams{ConversationID: message.ConversationID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(result.Items) != 1 {
		t.Fatalf("expected 1 message, got %d", len(result.Items))
	}
	if fx.repo.messages[message.ID].ReadAt == nil {
		t.Fatalf("message not marked read")
	}

	conversations, err := fx.svc.ListConversations(ctx, ListConversationsParams{UserID: fx.bob.ID})
	if err != nil {
		t.Fatalf("conversations: %v", err)
	}
	if conversations.Items[0].UnreadCount != 0 {
		t.Fatalf("expected unread count reset, got %d", conversations.Items[0].UnreadCount)
	}
}

func TestListMessagesMemberOnly(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	message, err := fx.svc.Send(ctx, fx.alice.ID, SendInput{RecipientID: fx.bob.ID, Body: "private"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	_, err = fx.svc.ListMessages(ctx, uuid.New(), ListMessagesParams{ConversationID: message.ConversationID})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}

	_, err = fx.svc.ListMessages(ctx, fx.bob.ID, ListMessagesParams{ConversationID: uuid.New()})
	typed = pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}
