// Package applications records that a user acted on a posting. Any recorded
// application, whatever its status, keeps the posting out of retention.
//
// Valid status graph:
//
//	TO_APPLY ──► APPLIED ──► INTERVIEW ──► OFFER ──► HIRED
//	    │            │             │           │
//	    └────────────┴─────────────┴───────────┴──► REJECTED
//
// HIRED and REJECTED are terminal states.
package applications

import (
	"errors"
	"fmt"
)

// Status values mirror the application_status enum in PostgreSQL.
type Status string

const (
	StatusToApply   Status = "TO_APPLY"
	StatusApplied   Status = "APPLIED"
	StatusInterview Status = "INTERVIEW"
	StatusOffer     Status = "OFFER"
	StatusHired     Status = "HIRED"
	StatusRejected  Status = "REJECTED"
)

var (
	// ErrInvalidStatus is returned for values outside the enum.
	ErrInvalidStatus = errors.New("applications: invalid status")

	// ErrForbiddenTransition is returned when the state machine rejects a move.
	ErrForbiddenTransition = errors.New("applications: transition not allowed")
)

var validTransitions = map[Status][]Status{
	StatusToApply:   {StatusApplied, StatusRejected},
	StatusApplied:   {StatusInterview, StatusRejected},
	StatusInterview: {StatusOffer, StatusRejected},
	StatusOffer:     {StatusHired, StatusRejected},
}

// ParseStatus converts a raw string to a Status. Matching is exact.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusToApply, StatusApplied, StatusInterview, StatusOffer, StatusHired, StatusRejected:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// IsTransitionAllowed reports whether moving from → to is permitted.
func IsTransitionAllowed(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s has no outgoing transitions.
func IsTerminal(s Status) bool {
	_, ok := validTransitions[s]
	return !ok
}
