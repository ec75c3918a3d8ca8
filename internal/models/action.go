package models

import "time"

// Action constants, one per workflow transition
const (
	ActionSubmit   = "SUBMIT"
	ActionApprove  = "APPROVE"
	ActionReturn   = "RETURN"
	ActionReject   = "REJECT"
	ActionWithdraw = "WITHDRAW"
)

// RequestAction is one append-only audit record of a workflow transition.
// Rows are never updated or deleted; together they form the authoritative
// history of a request.
type RequestAction struct {
	ID         int64     `json:"id"`
	RequestID  int64     `json:"request_id"`
	ActorID    int64     `json:"actor_id"`
	Action     string    `json:"action"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	Comment    *string   `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
