package trusted

import (
	"context"
	"errors"
	"strings"
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

const maxPitchLength = 2000

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ApplicantSummary is the requesting user shown next to a pending application.
type ApplicantSummary struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Email   string    `json:"email"`
	Country string    `json:"country,omitempty"`
	Karma   int       `json:"karma"`
}

// RequestView is an application joined with its applicant.
type RequestView struct {
	models.TrustedRequest
	Applicant *ApplicantSummary `json:"applicant,omitempty"`
}

// ListParams configures one page of pending applications.
type ListParams struct {
	Limit  int
	Cursor string
}

// ListResult is one page of pending applications plus the next cursor.
type ListResult struct {
	Items  []RequestView `json:"items"`
	Cursor string        `json:"cursor"`
}

// Service manages the trusted-seller application workflow.
type Service interface {
	Apply(ctx context.Context, userID uuid.UUID, pitch string) (*models.TrustedRequest, error)
	ListPending(ctx context.Context, params ListParams) (*ListResult, error)
	Approve(ctx context.Context, requestID uuid.UUID) (*models.TrustedRequest, error)
	Reject(ctx context.Context, requestID uuid.UUID) (*models.TrustedRequest, error)
}

type service struct {
	repo       Repository
	users      users.Repository
	dispatcher notifications.Dispatcher
	tx         txRunner
}

// NewService wires trusted-seller workflow dependencies.
func NewService(repo Repository, usersRepo users.Repository, dispatcher notifications.Dispatcher, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "trusted repository required")
	}
	if usersRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "users repository required")
	}
	if dispatcher == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notification dispatcher required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	return &service{repo: repo, users: usersRepo, dispatcher: dispatcher, tx: tx}, nil
}

func (s *service) Apply(ctx context.Context, userID uuid.UUID, pitch string) (*models.TrustedRequest, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	pitch = strings.TrimSpace(pitch)
	if pitch == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pitch required")
	}
	if len(pitch) > maxPitchLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pitch too long")
	}

	applicant, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load applicant")
	}
	if applicant.Role.CanSell() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account can already sell")
	}

	pending, err := s.repo.HasPending(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check pending application")
	}
	if pending {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "an application is already pending")
	}

	request := &models.TrustedRequest{
		ID:     uuid.New(),
		UserID: userID,
		Pitch:  pitch,
		Status: enums.TrustedRequestStatusPending,
	}
	if err := s.repo.Create(ctx, request); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create application")
	}
	return request, nil
}

func (s *service) ListPending(ctx context.Context, params ListParams) (*ListResult, error) {
	query := ListFilter{Limit: params.Limit}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.ListPending(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list applications")
	}

	applicantIDs := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		applicantIDs = append(applicantIDs, row.UserID)
	}
	applicants, err := s.users.FindByIDs(ctx, applicantIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load applicants")
	}

	views := make([]RequestView, 0, len(rows))
	for _, row := range rows {
		view := RequestView{TrustedRequest: row}
		if applicant, ok := applicants[row.UserID]; ok {
			view.Applicant = &ApplicantSummary{
				ID:      applicant.ID,
				Name:    applicant.Name,
				Email:   applicant.Email,
				Country: applicant.Country,
				Karma:   applicant.Karma,
			}
		}
		views = append(views, view)
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: views, Cursor: cursor}, nil
}

// Approve promotes the applicant to the trusted role and records the decision
// notification in one transaction.
func (s *service) Approve(ctx context.Context, requestID uuid.UUID) (*models.TrustedRequest, error) {
	return s.decide(ctx, requestID, enums.TrustedRequestStatusApproved)
}

// Reject closes the application without a role change.
func (s *service) Reject(ctx context.Context, requestID uuid.UUID) (*models.TrustedRequest, error) {
	return s.decide(ctx, requestID, enums.TrustedRequestStatusRejected)
}

func (s *service) decide(ctx context.Context, requestID uuid.UUID, status enums.TrustedRequestStatus) (*models.TrustedRequest, error) {
	if requestID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id required")
	}

	request, err := s.repo.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "application not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load application")
	}
	if request.Status != enums.TrustedRequestStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "application already decided")
	}

	decidedAt := time.Now().UTC()
	var notification *models.Notification
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		decided, err := s.repo.WithTx(tx).Decide(ctx, request.ID, status, decidedAt)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decide application")
		}
		if !decided {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "application already decided")
		}

		title := "Application rejected"
		message := "Your trusted seller application was not approved this time."
		if status == enums.TrustedRequestStatusApproved {
			if err := s.users.WithTx(tx).UpdateRole(ctx, request.UserID, enums.UserRoleTrusted); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "promote applicant")
			}
			title = "Application approved"
			message = "Congratulations, you are now a trusted seller and can create listings."
		}

		notification, err = s.dispatcher.Record(ctx, tx, notifications.DispatchInput{
			UserID:  request.UserID,
			Type:    enums.NotificationTypeSystem,
			Title:   title,
			Message: message,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.dispatcher.Push(ctx, notification)

	request.Status = status
	request.DecidedAt = &decidedAt
	return request, nil
}
