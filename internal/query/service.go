// Package query provides the scoped read side of the workflow: listings,
// details, the approver inbox and audit history. It enforces the same
// ownership rules as the engine — a request outside the caller's scope is
// reported as not found, never as forbidden.
package query

import (
	"database/sql"

	"github.com/example/expense-workflow/internal/models"
	"github.com/example/expense-workflow/internal/workflow"
	"go.uber.org/zap"
)

// RequestReader is the scoped read surface the service needs from the
// request repository
type RequestReader interface {
	ListByApplicant(applicantID int64) ([]models.RequestSummary, error)
	ListInbox(approverID int64) ([]models.InboxItem, error)
	GetByIDForApplicant(tx *sql.Tx, id, applicantID int64) (*models.Request, error)
	GetByIDForApprover(tx *sql.Tx, id, approverID int64) (*models.Request, error)
}

// ActionReader reads the audit history of a request
type ActionReader interface {
	ListByRequestForApplicant(requestID, applicantID int64) ([]models.RequestAction, error)
}

// Service answers scoped read queries over requests and their history
type Service struct {
	requests RequestReader
	actions  ActionReader
	logger   *zap.Logger
}

// NewService creates a new query service
func NewService(requests RequestReader, actions ActionReader, logger *zap.Logger) *Service {
	return &Service{
		requests: requests,
		actions:  actions,
		logger:   logger,
	}
}

// ListForApplicant returns all requests owned by the user, in insertion
// order. The order is stable across repeated calls with no intervening
// writes.
func (s *Service) ListForApplicant(userID int64) ([]models.RequestSummary, error) {
	summaries, err := s.requests.ListByApplicant(userID)
	if err != nil {
		return nil, err
	}
	if summaries == nil {
		summaries = []models.RequestSummary{}
	}
	return summaries, nil
}

// GetDetailForApplicant returns the full request only when it is owned by
// the user; anything else is ErrNotFoundOrForbidden.
func (s *Service) GetDetailForApplicant(userID, requestID int64) (*models.Request, error) {
	request, err := s.requests.GetByIDForApplicant(nil, requestID, userID)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, workflow.ErrNotFoundOrForbidden
	}
	return request, nil
}

// GetDetailForApprover returns the full request only when it is currently
// assigned to the approver; anything else is ErrNotFoundOrForbidden.
func (s *Service) GetDetailForApprover(approverID, requestID int64) (*models.Request, error) {
	request, err := s.requests.GetByIDForApprover(nil, requestID, approverID)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, workflow.ErrNotFoundOrForbidden
	}
	return request, nil
}

// GetInboxForApprover returns the requests currently awaiting the
// approver's action
func (s *Service) GetInboxForApprover(approverID int64) ([]models.InboxItem, error) {
	items, err := s.requests.ListInbox(approverID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.InboxItem{}
	}
	return items, nil
}

// GetHistory returns the audit trail of an owned request, oldest first.
// An unowned or unknown request is ErrNotFoundOrForbidden, so history
// existence leaks nothing about other users' requests.
func (s *Service) GetHistory(userID, requestID int64) ([]models.RequestAction, error) {
	request, err := s.requests.GetByIDForApplicant(nil, requestID, userID)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, workflow.ErrNotFoundOrForbidden
	}

	actions, err := s.actions.ListByRequestForApplicant(requestID, userID)
	if err != nil {
		return nil, err
	}
	if actions == nil {
		actions = []models.RequestAction{}
	}
	return actions, nil
}
