package models

import "time"

// User role constants
const (
	RoleApplicant = "APPLICANT"
	RoleApprover  = "APPROVER"
	RoleAdmin     = "ADMIN"
)

// User represents an account that can author or act on requests
type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	ManagerID *int64    `json:"manager_id,omitempty"` // approver resolved at submit time
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
