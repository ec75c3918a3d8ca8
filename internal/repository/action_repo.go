package repository

import (
	"database/sql"
	"fmt"

	"github.com/example/expense-workflow/internal/models"
	"go.uber.org/zap"
)

// ActionRepository handles the append-only audit trail of workflow
// transitions. Rows are only ever inserted.
type ActionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewActionRepository creates a new action repository
func NewActionRepository(db *sql.DB, logger *zap.Logger) *ActionRepository {
	return &ActionRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends a new action record and sets its generated id
func (r *ActionRepository) Create(tx *sql.Tx, action *models.RequestAction) error {
	query := `
		INSERT INTO expense_request_actions (
			request_id, actor_id, action, from_status, to_status, comment, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	var result sql.Result
	var err error

	if tx != nil {
		result, err = tx.Exec(query,
			action.RequestID,
			action.ActorID,
			action.Action,
			action.FromStatus,
			action.ToStatus,
			action.Comment,
			action.CreatedAt,
		)
	} else {
		result, err = r.db.Exec(query,
			action.RequestID,
			action.ActorID,
			action.Action,
			action.FromStatus,
			action.ToStatus,
			action.Comment,
			action.CreatedAt,
		)
	}

	if err != nil {
		r.logger.Error("Failed to create action record", zap.Int64("request_id", action.RequestID), zap.Error(err))
		return fmt.Errorf("failed to create action: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	action.ID = id
	return nil
}

// ListByRequestForApplicant returns the action history of a request,
// oldest first, only when the request is owned by the given applicant. An
// unowned or unknown request yields an empty result, not an error.
func (r *ActionRepository) ListByRequestForApplicant(requestID, applicantID int64) ([]models.RequestAction, error) {
	query := `
		SELECT a.id, a.request_id, a.actor_id, a.action, a.from_status,
			a.to_status, a.comment, a.created_at
		FROM expense_request_actions a
		JOIN expense_requests r ON r.id = a.request_id
		WHERE a.request_id = ? AND r.applicant_id = ?
		ORDER BY a.id ASC
	`

	rows, err := r.db.Query(query, requestID, applicantID)
	if err != nil {
		r.logger.Error("Failed to list actions", zap.Int64("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	defer rows.Close()

	var actions []models.RequestAction
	for rows.Next() {
		var action models.RequestAction
		var comment sql.NullString

		err := rows.Scan(
			&action.ID,
			&action.RequestID,
			&action.ActorID,
			&action.Action,
			&action.FromStatus,
			&action.ToStatus,
			&comment,
			&action.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}

		if comment.Valid {
			action.Comment = &comment.String
		}
		actions = append(actions, action)
	}

	return actions, rows.Err()
}
