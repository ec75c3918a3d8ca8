package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/example/expense-workflow/internal/models"
	"go.uber.org/zap"
)

// RequestRepository handles expense request database operations.
//
// Every mutating method is a single conditional UPDATE whose predicate
// encodes id, ownership or approver assignment, and the required current
// status. Callers receive the affected-row count and treat anything other
// than exactly one row as a uniform failure, so a wrong id, wrong actor and
// wrong state are indistinguishable from the outside.
type RequestRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db *sql.DB, logger *zap.Logger) *RequestRepository {
	return &RequestRepository{
		db:     db,
		logger: logger,
	}
}

func (r *RequestRepository) exec(tx *sql.Tx, query string, args ...interface{}) (sql.Result, error) {
	if tx != nil {
		return tx.Exec(query, args...)
	}
	return r.db.Exec(query, args...)
}

func (r *RequestRepository) queryRow(tx *sql.Tx, query string, args ...interface{}) *sql.Row {
	if tx != nil {
		return tx.QueryRow(query, args...)
	}
	return r.db.QueryRow(query, args...)
}

// Create inserts a new request and sets its generated id
func (r *RequestRepository) Create(tx *sql.Tx, request *models.Request) error {
	query := `
		INSERT INTO expense_requests (
			applicant_id, current_approver_id, title, amount, note, status,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now()
	result, err := r.exec(tx, query,
		request.ApplicantID,
		request.CurrentApproverID,
		request.Title,
		request.Amount,
		request.Note,
		request.Status,
		now,
		now,
	)
	if err != nil {
		r.logger.Error("Failed to create request", zap.Error(err))
		return fmt.Errorf("failed to create request: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	request.ID = id
	request.CreatedAt = now
	request.UpdatedAt = now
	return nil
}

const requestColumns = `
	id, applicant_id, current_approver_id, title, amount, note, status,
	submitted_at, approved_at, last_returned_at, last_return_comment,
	created_at, updated_at
`

func (r *RequestRepository) scanRequest(row *sql.Row) (*models.Request, error) {
	var request models.Request
	var approverID sql.NullInt64
	var submittedAt, approvedAt, lastReturnedAt sql.NullTime
	var lastReturnComment sql.NullString

	err := row.Scan(
		&request.ID,
		&request.ApplicantID,
		&approverID,
		&request.Title,
		&request.Amount,
		&request.Note,
		&request.Status,
		&submittedAt,
		&approvedAt,
		&lastReturnedAt,
		&lastReturnComment,
		&request.CreatedAt,
		&request.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan request: %w", err)
	}

	if approverID.Valid {
		request.CurrentApproverID = &approverID.Int64
	}
	if submittedAt.Valid {
		request.SubmittedAt = &submittedAt.Time
	}
	if approvedAt.Valid {
		request.ApprovedAt = &approvedAt.Time
	}
	if lastReturnedAt.Valid {
		request.LastReturnedAt = &lastReturnedAt.Time
	}
	if lastReturnComment.Valid {
		request.LastReturnComment = &lastReturnComment.String
	}

	return &request, nil
}

// GetByIDForApplicant retrieves a request only if it is owned by the given
// applicant. Returns nil when the id or ownership does not match.
func (r *RequestRepository) GetByIDForApplicant(tx *sql.Tx, id, applicantID int64) (*models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM expense_requests WHERE id = ? AND applicant_id = ?`

	request, err := r.scanRequest(r.queryRow(tx, query, id, applicantID))
	if err != nil {
		r.logger.Error("Failed to get request for applicant", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return request, nil
}

// GetByIDForApprover retrieves a request only if it is currently assigned
// to the given approver. Returns nil when the id or assignment does not match.
func (r *RequestRepository) GetByIDForApprover(tx *sql.Tx, id, approverID int64) (*models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM expense_requests WHERE id = ? AND current_approver_id = ?`

	request, err := r.scanRequest(r.queryRow(tx, query, id, approverID))
	if err != nil {
		r.logger.Error("Failed to get request for approver", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return request, nil
}

// MarkSubmitted transitions an owned request from the given status to
// SUBMITTED, assigning the approver and stamping submitted_at. Returns the
// affected-row count.
func (r *RequestRepository) MarkSubmitted(tx *sql.Tx, id, applicantID int64, fromStatus string, approverID int64, now time.Time) (int64, error) {
	query := `
		UPDATE expense_requests
		SET status = ?, current_approver_id = ?, submitted_at = ?, updated_at = ?
		WHERE id = ? AND applicant_id = ? AND status = ?
	`

	result, err := r.exec(tx, query, models.StatusSubmitted, approverID, now, now, id, applicantID, fromStatus)
	if err != nil {
		r.logger.Error("Failed to mark request submitted", zap.Int64("id", id), zap.Error(err))
		return 0, fmt.Errorf("failed to mark request submitted: %w", err)
	}
	return result.RowsAffected()
}

// MarkApproved transitions an assigned request from SUBMITTED to APPROVED,
// stamping approved_at. Returns the affected-row count.
func (r *RequestRepository) MarkApproved(tx *sql.Tx, id, approverID int64, now time.Time) (int64, error) {
	query := `
		UPDATE expense_requests
		SET status = ?, approved_at = ?, updated_at = ?
		WHERE id = ? AND current_approver_id = ? AND status = ?
	`

	result, err := r.exec(tx, query, models.StatusApproved, now, now, id, approverID, models.StatusSubmitted)
	if err != nil {
		r.logger.Error("Failed to mark request approved", zap.Int64("id", id), zap.Error(err))
		return 0, fmt.Errorf("failed to mark request approved: %w", err)
	}
	return result.RowsAffected()
}

// MarkReturned transitions an assigned request from SUBMITTED to RETURNED,
// recording the return comment and last_returned_at. Returns the
// affected-row count.
func (r *RequestRepository) MarkReturned(tx *sql.Tx, id, approverID int64, comment string, now time.Time) (int64, error) {
	query := `
		UPDATE expense_requests
		SET status = ?, last_return_comment = ?, last_returned_at = ?, updated_at = ?
		WHERE id = ? AND current_approver_id = ? AND status = ?
	`

	result, err := r.exec(tx, query, models.StatusReturned, comment, now, now, id, approverID, models.StatusSubmitted)
	if err != nil {
		r.logger.Error("Failed to mark request returned", zap.Int64("id", id), zap.Error(err))
		return 0, fmt.Errorf("failed to mark request returned: %w", err)
	}
	return result.RowsAffected()
}

// MarkRejected transitions an assigned request from SUBMITTED to REJECTED.
// Returns the affected-row count.
func (r *RequestRepository) MarkRejected(tx *sql.Tx, id, approverID int64, now time.Time) (int64, error) {
	query := `
		UPDATE expense_requests
		SET status = ?, updated_at = ?
		WHERE id = ? AND current_approver_id = ? AND status = ?
	`

	result, err := r.exec(tx, query, models.StatusRejected, now, id, approverID, models.StatusSubmitted)
	if err != nil {
		r.logger.Error("Failed to mark request rejected", zap.Int64("id", id), zap.Error(err))
		return 0, fmt.Errorf("failed to mark request rejected: %w", err)
	}
	return result.RowsAffected()
}

// MarkWithdrawn transitions an owned request from the given status to
// WITHDRAWN. Returns the affected-row count.
func (r *RequestRepository) MarkWithdrawn(tx *sql.Tx, id, applicantID int64, fromStatus string, now time.Time) (int64, error) {
	query := `
		UPDATE expense_requests
		SET status = ?, updated_at = ?
		WHERE id = ? AND applicant_id = ? AND status = ?
	`

	result, err := r.exec(tx, query, models.StatusWithdrawn, now, id, applicantID, fromStatus)
	if err != nil {
		r.logger.Error("Failed to mark request withdrawn", zap.Int64("id", id), zap.Error(err))
		return 0, fmt.Errorf("failed to mark request withdrawn: %w", err)
	}
	return result.RowsAffected()
}

// UpdateEditableFields updates title/amount/note of an owned RETURNED
// request without changing its status or return comment. Returns the
// affected-row count.
func (r *RequestRepository) UpdateEditableFields(tx *sql.Tx, id, applicantID int64, title string, amount int64, note string, now time.Time) (int64, error) {
	query := `
		UPDATE expense_requests
		SET title = ?, amount = ?, note = ?, updated_at = ?
		WHERE id = ? AND applicant_id = ? AND status = ?
	`

	result, err := r.exec(tx, query, title, amount, note, now, id, applicantID, models.StatusReturned)
	if err != nil {
		r.logger.Error("Failed to update request fields", zap.Int64("id", id), zap.Error(err))
		return 0, fmt.Errorf("failed to update request fields: %w", err)
	}
	return result.RowsAffected()
}

// ListByApplicant returns summaries of all requests owned by the applicant,
// in insertion order.
func (r *RequestRepository) ListByApplicant(applicantID int64) ([]models.RequestSummary, error) {
	query := `
		SELECT id, title, amount, status, note, last_return_comment
		FROM expense_requests
		WHERE applicant_id = ?
		ORDER BY id ASC
	`

	rows, err := r.db.Query(query, applicantID)
	if err != nil {
		r.logger.Error("Failed to list requests", zap.Int64("applicant_id", applicantID), zap.Error(err))
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	var summaries []models.RequestSummary
	for rows.Next() {
		var summary models.RequestSummary
		var lastReturnComment sql.NullString

		err := rows.Scan(
			&summary.ID,
			&summary.Title,
			&summary.Amount,
			&summary.Status,
			&summary.Note,
			&lastReturnComment,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request summary: %w", err)
		}

		if lastReturnComment.Valid {
			summary.LastReturnComment = &lastReturnComment.String
		}
		summaries = append(summaries, summary)
	}

	return summaries, rows.Err()
}

// ListInbox returns the requests currently awaiting the approver's action,
// in insertion order.
func (r *RequestRepository) ListInbox(approverID int64) ([]models.InboxItem, error) {
	query := `
		SELECT id, applicant_id, title, amount, status, submitted_at
		FROM expense_requests
		WHERE current_approver_id = ? AND status = ?
		ORDER BY id ASC
	`

	rows, err := r.db.Query(query, approverID, models.StatusSubmitted)
	if err != nil {
		r.logger.Error("Failed to list inbox", zap.Int64("approver_id", approverID), zap.Error(err))
		return nil, fmt.Errorf("failed to list inbox: %w", err)
	}
	defer rows.Close()

	var items []models.InboxItem
	for rows.Next() {
		var item models.InboxItem
		var submittedAt sql.NullTime

		err := rows.Scan(
			&item.ID,
			&item.ApplicantID,
			&item.Title,
			&item.Amount,
			&item.Status,
			&submittedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan inbox item: %w", err)
		}

		if submittedAt.Valid {
			item.SubmittedAt = &submittedAt.Time
		}
		items = append(items, item)
	}

	return items, rows.Err()
}
