package credential

import "fmt"

// Kind enumerates the error categories the core surfaces to callers, per the
// propagation policy: Store reports the first-touching error, Refresh
// Coordinator classifies upstream errors, Failure Policy never throws.
type Kind string

const (
	KindNotFound             Kind = "not_found"
	KindConflict             Kind = "conflict"
	KindPrecondition         Kind = "precondition"
	KindRefreshRejected      Kind = "refresh_rejected"
	KindRefreshTransient     Kind = "refresh_transient"
	KindNoEligibleCredential Kind = "no_eligible_credential"
	KindPersistenceFailed    Kind = "persistence_failed"
)

// Error is the core's uniform error type; the admin HTTP layer translates
// Kind to an HTTP status without needing to inspect the message.
type Error struct {
	Kind   Kind
	Reason string
	ID     int
}

func (e *Error) Error() string {
	if e.ID != 0 {
		return fmt.Sprintf("%s: id=%d %s", e.Kind, e.ID, e.Reason)
	}
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	return string(e.Kind)
}

func errNotFound(id int) error {
	return &Error{Kind: KindNotFound, ID: id, Reason: "unknown credential id"}
}

func errConflict(reason string) error {
	return &Error{Kind: KindConflict, Reason: reason}
}

func errPrecondition(reason string) error {
	return &Error{Kind: KindPrecondition, Reason: reason}
}

func errRefreshRejected(reason string) error {
	return &Error{Kind: KindRefreshRejected, Reason: reason}
}

func errRefreshTransient(reason string) error {
	return &Error{Kind: KindRefreshTransient, Reason: reason}
}

func errNoEligibleCredential() error {
	return &Error{Kind: KindNoEligibleCredential, Reason: "no eligible credential"}
}

// AsError extracts the core *Error from a generic error, if it is one.
func AsError(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}
