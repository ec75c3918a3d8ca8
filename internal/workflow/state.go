package workflow

// State represents a request status in the reimbursement lifecycle
type State string

const (
	StateDraft     State = "DRAFT"
	StateSubmitted State = "SUBMITTED"
	StateApproved  State = "APPROVED"
	StateReturned  State = "RETURNED"
	StateRejected  State = "REJECTED"
	StateWithdrawn State = "WITHDRAWN"
)

var validStates = map[State]bool{
	StateDraft:     true,
	StateSubmitted: true,
	StateApproved:  true,
	StateReturned:  true,
	StateRejected:  true,
	StateWithdrawn: true,
}

var terminalStates = map[State]bool{
	StateApproved:  true,
	StateRejected:  true,
	StateWithdrawn: true,
}

// IsTerminal returns true if the state permits no further transitions
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// IsValid returns true if the state is a valid lifecycle state
func (s State) IsValid() bool {
	return validStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}
