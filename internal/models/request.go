package models

import "time"

// Request status constants
const (
	StatusDraft     = "DRAFT"
	StatusSubmitted = "SUBMITTED"
	StatusApproved  = "APPROVED"
	StatusReturned  = "RETURNED"
	StatusRejected  = "REJECTED"
	StatusWithdrawn = "WITHDRAWN"
)

// Request represents an expense reimbursement request
type Request struct {
	ID                int64      `json:"id"`
	ApplicantID       int64      `json:"applicant_id"`
	CurrentApproverID *int64     `json:"current_approver_id,omitempty"` // nil until first submission
	Title             string     `json:"title"`
	Amount            int64      `json:"amount"` // minor currency units
	Note              string     `json:"note"`
	Status            string     `json:"status"`
	SubmittedAt       *time.Time `json:"submitted_at,omitempty"`
	ApprovedAt        *time.Time `json:"approved_at,omitempty"`
	LastReturnedAt    *time.Time `json:"last_returned_at,omitempty"`
	LastReturnComment *string    `json:"last_return_comment,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// RequestSummary is the list-view projection of a request
type RequestSummary struct {
	ID                int64   `json:"id"`
	Title             string  `json:"title"`
	Amount            int64   `json:"amount"`
	Status            string  `json:"status"`
	Note              string  `json:"note"`
	LastReturnComment *string `json:"last_return_comment,omitempty"`
}

// InboxItem is a request awaiting a specific approver's action
type InboxItem struct {
	ID          int64      `json:"id"`
	ApplicantID int64      `json:"applicant_id"`
	Title       string     `json:"title"`
	Amount      int64      `json:"amount"`
	Status      string     `json:"status"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
}
