package coreerr

import (
	"errors"
	"fmt"
)

// Kind enumerates the abstract failure kinds described by the
// coordination core's error taxonomy. Callers should branch on Kind,
// never on the formatted message.
type Kind string

const (
	// BackendUnavailable means neither the networked KV nor the
	// fallback backend could be reached or used.
	BackendUnavailable Kind = "backend_unavailable"
	// UnknownAgent means the referenced agent id has no registry record.
	UnknownAgent Kind = "unknown_agent"
	// UnknownTask means the referenced task id does not exist.
	UnknownTask Kind = "unknown_task"
	// UnknownApproval means the referenced approval id does not exist.
	UnknownApproval Kind = "unknown_approval"
	// IllegalStateTransition means the operation is not legal from the
	// record's current status.
	IllegalStateTransition Kind = "illegal_state_transition"
	// LockBusy means a file lock is already held by another agent.
	LockBusy Kind = "lock_busy"
	// LockStolen means a lock_id no longer matches the stored lock,
	// usually because the TTL expired and someone else acquired it.
	LockStolen Kind = "lock_stolen"
	// PermissionDenied means an approval policy predicate rejected
	// the caller.
	PermissionDenied Kind = "permission_denied"
	// Timeout means a blocking operation's deadline was reached
	// without the awaited condition becoming true.
	Timeout Kind = "timeout"
	// BudgetExceeded means an LLM semaphore or cost-cap check refused
	// to grant a slot.
	BudgetExceeded Kind = "budget_exceeded"
)

// CoreError is the concrete error type returned by every public
// coordination-core operation. It always carries an enumerated Kind
// and a human-readable Message, and optionally wraps an underlying
// cause.
type CoreError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *CoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *CoreError) Unwrap() error {
	return e.Err
}

// Is allows errors.Is(err, coreerr.New(kind, "")) to match on Kind
// alone, ignoring Message/Err.
func (e *CoreError) Is(target error) bool {
	var ce *CoreError
	if errors.As(target, &ce) {
		return ce.Kind == e.Kind
	}
	return false
}

// New constructs a CoreError with no wrapped cause.
func New(kind Kind, message string) *CoreError {
	return &CoreError{Kind: kind, Message: message}
}

// Wrap constructs a CoreError wrapping an underlying cause.
func Wrap(kind Kind, message string, err error) *CoreError {
	return &CoreError{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the Kind from err, or the empty Kind if err is not
// (or does not wrap) a *CoreError.
func KindOf(err error) Kind {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// Has reports whether err's Kind equals kind.
func Has(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// sentinel helpers used by tests and callers that want errors.Is
// against a bare kind without constructing a message.
var (
	ErrBackendUnavailable     = New(BackendUnavailable, "backend unavailable")
	ErrUnknownAgent           = New(UnknownAgent, "unknown agent")
	ErrUnknownTask            = New(UnknownTask, "unknown task")
	ErrUnknownApproval        = New(UnknownApproval, "unknown approval")
	ErrIllegalStateTransition = New(IllegalStateTransition, "illegal state transition")
	ErrLockBusy               = New(LockBusy, "lock busy")
	ErrLockStolen             = New(LockStolen, "lock stolen")
	ErrPermissionDenied       = New(PermissionDenied, "permission denied")
	ErrTimeout                = New(Timeout, "timeout")
	ErrBudgetExceeded         = New(BudgetExceeded, "budget exceeded")
)
