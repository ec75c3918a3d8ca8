package repository

import (
	"database/sql"
	"fmt"

	"github.com/example/expense-workflow/internal/models"
	"go.uber.org/zap"
)

// UserRepository handles user database operations
type UserRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sql.DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

func (r *UserRepository) scanUser(row *sql.Row) (*models.User, error) {
	var user models.User
	var managerID sql.NullInt64

	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Role,
		&managerID,
		&user.Active,
		&user.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	if managerID.Valid {
		user.ManagerID = &managerID.Int64
	}
	return &user, nil
}

// GetByID retrieves a user by id, or nil if none exists
func (r *UserRepository) GetByID(id int64) (*models.User, error) {
	query := `
		SELECT id, name, email, role, manager_id, active, created_at
		FROM users
		WHERE id = ?
	`

	user, err := r.scanUser(r.db.QueryRow(query, id))
	if err != nil {
		r.logger.Error("Failed to get user by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// Authenticate retrieves an active user matching the given credentials, or
// nil when none matches. Credential storage is a demo-grade scheme; the
// engine only ever sees the resolved identity.
func (r *UserRepository) Authenticate(email, password string) (*models.User, error) {
	query := `
		SELECT id, name, email, role, manager_id, active, created_at
		FROM users
		WHERE email = ? AND password = ? AND active = 1
	`

	user, err := r.scanUser(r.db.QueryRow(query, email, password))
	if err != nil {
		r.logger.Error("Failed to authenticate user", zap.String("email", email), zap.Error(err))
		return nil, fmt.Errorf("failed to authenticate user: %w", err)
	}
	return user, nil
}
