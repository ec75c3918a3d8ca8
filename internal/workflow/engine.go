package workflow

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/example/expense-workflow/internal/identity"
	"github.com/example/expense-workflow/internal/models"
	"github.com/example/expense-workflow/pkg/utils"
	"go.uber.org/zap"
)

// RequestStore is the conditional-update surface the engine needs from the
// request repository. Mutating methods return the affected-row count; the
// engine treats anything other than exactly one row as a uniform failure.
type RequestStore interface {
	Create(tx *sql.Tx, request *models.Request) error
	GetByIDForApplicant(tx *sql.Tx, id, applicantID int64) (*models.Request, error)
	GetByIDForApprover(tx *sql.Tx, id, approverID int64) (*models.Request, error)
	MarkSubmitted(tx *sql.Tx, id, applicantID int64, fromStatus string, approverID int64, now time.Time) (int64, error)
	MarkApproved(tx *sql.Tx, id, approverID int64, now time.Time) (int64, error)
	MarkReturned(tx *sql.Tx, id, approverID int64, comment string, now time.Time) (int64, error)
	MarkRejected(tx *sql.Tx, id, approverID int64, now time.Time) (int64, error)
	MarkWithdrawn(tx *sql.Tx, id, applicantID int64, fromStatus string, now time.Time) (int64, error)
	UpdateEditableFields(tx *sql.Tx, id, applicantID int64, title string, amount int64, note string, now time.Time) (int64, error)
}

// ActionStore appends audit records of workflow transitions
type ActionStore interface {
	Create(tx *sql.Tx, action *models.RequestAction) error
}

// UserStore resolves users for approver derivation
type UserStore interface {
	GetByID(id int64) (*models.User, error)
}

// TransactionRunner executes a function within a database transaction
type TransactionRunner interface {
	WithTransaction(fn func(*sql.Tx) error) error
}

// Engine validates and executes every status transition of a request. It
// holds no state between calls; each operation is an atomic conditional
// read-modify-write against the repository, so two concurrent conflicting
// transitions on the same request can never both succeed.
//
// Every successful transition appends exactly one action record in the same
// transaction as the status update. Create and Edit are not transitions and
// append nothing.
type Engine struct {
	db       TransactionRunner
	requests RequestStore
	actions  ActionStore
	users    UserStore
	logger   *zap.Logger
}

// NewEngine creates a new workflow engine
func NewEngine(
	db TransactionRunner,
	requests RequestStore,
	actions ActionStore,
	users UserStore,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		db:       db,
		requests: requests,
		actions:  actions,
		users:    users,
		logger:   logger,
	}
}

// Create persists a new request in DRAFT with no approver assigned.
// Creation is not an audited action: the history of a request starts with
// its first transition.
func (e *Engine) Create(caller identity.Identity, title string, amount int64, note string) (*models.Request, error) {
	title = utils.SanitizeString(title)
	note = utils.SanitizeString(note)

	if err := utils.ValidateTitle(title); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := utils.ValidateAmount(amount); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	request := &models.Request{
		ApplicantID: caller.UserID,
		Title:       title,
		Amount:      amount,
		Note:        note,
		Status:      models.StatusDraft,
	}

	if err := e.requests.Create(nil, request); err != nil {
		return nil, err
	}

	e.logger.Info("Request created",
		zap.Int64("request_id", request.ID),
		zap.Int64("applicant_id", caller.UserID))
	return request, nil
}

// Submit transitions an owned DRAFT or RETURNED request to SUBMITTED,
// deriving the approver from the applicant's manager. A missing manager is
// a policy violation, distinct from both "not found" and access failures,
// so the caller can fix the precondition. The last return comment is
// retained across re-submission until overwritten by a later return.
func (e *Engine) Submit(caller identity.Identity, requestID int64) error {
	applicant, err := e.users.GetByID(caller.UserID)
	if err != nil {
		return err
	}
	if applicant == nil {
		return ErrNotFoundOrForbidden
	}
	if applicant.ManagerID == nil {
		return fmt.Errorf("%w: no approver configured for applicant %d", ErrPolicyViolation, caller.UserID)
	}
	approverID := *applicant.ManagerID

	err = e.db.WithTransaction(func(tx *sql.Tx) error {
		request, err := e.requests.GetByIDForApplicant(tx, requestID, caller.UserID)
		if err != nil {
			return err
		}
		if request == nil {
			return ErrNotFoundOrForbidden
		}

		machine := NewLifecycleMachine(State(request.Status))
		if err := machine.Fire(TriggerSubmit); err != nil {
			return ErrNotFoundOrForbidden
		}

		now := time.Now()
		affected, err := e.requests.MarkSubmitted(tx, requestID, caller.UserID, request.Status, approverID, now)
		if err != nil {
			return err
		}
		if affected != 1 {
			return ErrNotFoundOrForbidden
		}

		return e.actions.Create(tx, &models.RequestAction{
			RequestID:  requestID,
			ActorID:    caller.UserID,
			Action:     models.ActionSubmit,
			FromStatus: request.Status,
			ToStatus:   models.StatusSubmitted,
			CreatedAt:  now,
		})
	})
	if err != nil {
		return err
	}

	e.logger.Info("Request submitted",
		zap.Int64("request_id", requestID),
		zap.Int64("applicant_id", caller.UserID),
		zap.Int64("approver_id", approverID))
	return nil
}

// Approve transitions a SUBMITTED request to APPROVED. Legal only for the
// request's current approver.
func (e *Engine) Approve(caller identity.Identity, requestID int64) error {
	err := e.fireForApprover(caller, requestID, TriggerApprove, nil)
	if err != nil {
		return err
	}

	e.logger.Info("Request approved",
		zap.Int64("request_id", requestID),
		zap.Int64("approver_id", caller.UserID))
	return nil
}

// Return transitions a SUBMITTED request to RETURNED, recording the
// comment on the request and on the appended action record. A missing
// comment is stored as the empty string. The status update and the audit
// append succeed or fail together.
func (e *Engine) Return(caller identity.Identity, requestID int64, comment string) error {
	comment = utils.SanitizeString(comment)

	err := e.fireForApprover(caller, requestID, TriggerReturn, &comment)
	if err != nil {
		return err
	}

	e.logger.Info("Request returned",
		zap.Int64("request_id", requestID),
		zap.Int64("approver_id", caller.UserID))
	return nil
}

// Reject transitions a SUBMITTED request to the terminal REJECTED state.
// Legal only for the request's current approver.
func (e *Engine) Reject(caller identity.Identity, requestID int64) error {
	err := e.fireForApprover(caller, requestID, TriggerReject, nil)
	if err != nil {
		return err
	}

	e.logger.Info("Request rejected",
		zap.Int64("request_id", requestID),
		zap.Int64("approver_id", caller.UserID))
	return nil
}

// fireForApprover runs one approver-side transition (APPROVE, RETURN or
// REJECT) as a single atomic unit: scoped read, lifecycle validation,
// conditional update, audit append.
func (e *Engine) fireForApprover(caller identity.Identity, requestID int64, trigger Trigger, comment *string) error {
	return e.db.WithTransaction(func(tx *sql.Tx) error {
		request, err := e.requests.GetByIDForApprover(tx, requestID, caller.UserID)
		if err != nil {
			return err
		}
		if request == nil {
			return ErrNotFoundOrForbidden
		}

		machine := NewLifecycleMachine(State(request.Status))
		if err := machine.Fire(trigger); err != nil {
			return ErrNotFoundOrForbidden
		}
		toStatus := machine.State().String()

		now := time.Now()
		var affected int64
		switch trigger {
		case TriggerApprove:
			affected, err = e.requests.MarkApproved(tx, requestID, caller.UserID, now)
		case TriggerReturn:
			affected, err = e.requests.MarkReturned(tx, requestID, caller.UserID, *comment, now)
		case TriggerReject:
			affected, err = e.requests.MarkRejected(tx, requestID, caller.UserID, now)
		default:
			return fmt.Errorf("%w: trigger %s is not an approver action", ErrInvalidTransition, trigger)
		}
		if err != nil {
			return err
		}
		if affected != 1 {
			return ErrNotFoundOrForbidden
		}

		return e.actions.Create(tx, &models.RequestAction{
			RequestID:  requestID,
			ActorID:    caller.UserID,
			Action:     trigger.String(),
			FromStatus: request.Status,
			ToStatus:   toStatus,
			Comment:    comment,
			CreatedAt:  now,
		})
	})
}

// Withdraw transitions an owned DRAFT or RETURNED request to the terminal
// WITHDRAWN state. The row is kept; withdrawal is a transition, not a
// deletion.
func (e *Engine) Withdraw(caller identity.Identity, requestID int64) error {
	err := e.db.WithTransaction(func(tx *sql.Tx) error {
		request, err := e.requests.GetByIDForApplicant(tx, requestID, caller.UserID)
		if err != nil {
			return err
		}
		if request == nil {
			return ErrNotFoundOrForbidden
		}

		machine := NewLifecycleMachine(State(request.Status))
		if err := machine.Fire(TriggerWithdraw); err != nil {
			return ErrNotFoundOrForbidden
		}

		now := time.Now()
		affected, err := e.requests.MarkWithdrawn(tx, requestID, caller.UserID, request.Status, now)
		if err != nil {
			return err
		}
		if affected != 1 {
			return ErrNotFoundOrForbidden
		}

		return e.actions.Create(tx, &models.RequestAction{
			RequestID:  requestID,
			ActorID:    caller.UserID,
			Action:     models.ActionWithdraw,
			FromStatus: request.Status,
			ToStatus:   models.StatusWithdrawn,
			CreatedAt:  now,
		})
	})
	if err != nil {
		return err
	}

	e.logger.Info("Request withdrawn",
		zap.Int64("request_id", requestID),
		zap.Int64("applicant_id", caller.UserID))
	return nil
}

// Edit updates title/amount/note of an owned RETURNED request in place.
// The status and the last return comment are left untouched; the applicant
// is expected to re-submit afterward.
func (e *Engine) Edit(caller identity.Identity, requestID int64, title string, amount int64, note string) error {
	title = utils.SanitizeString(title)
	note = utils.SanitizeString(note)

	if err := utils.ValidateTitle(title); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := utils.ValidateAmount(amount); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	affected, err := e.requests.UpdateEditableFields(nil, requestID, caller.UserID, title, amount, note, time.Now())
	if err != nil {
		return err
	}
	if affected != 1 {
		return ErrNotFoundOrForbidden
	}

	e.logger.Info("Request edited",
		zap.Int64("request_id", requestID),
		zap.Int64("applicant_id", caller.UserID))
	return nil
}
