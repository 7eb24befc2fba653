// Package fault defines the closed error taxonomy raised by the proposal
// pipeline. Every failure carries exactly one Kind so the boundary can map
// it to a response without inspecting error strings.
package fault

import (
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
)

// Kind discriminates the failure classes the pipeline can raise.
type Kind string

const (
	// KindPrecondition covers fatal setup problems (empty catalog, invalid
	// request, inconsistent canonical data). Never retried.
	KindPrecondition Kind = "precondition"

	// KindProvider covers provider calls that failed after the client's own
	// retry policy was exhausted.
	KindProvider Kind = "provider"

	// KindRateLimited is a provider exhaustion caused by rate limiting; it
	// carries the wait the caller should observe before trying again.
	KindRateLimited Kind = "rate_limited"

	// KindRejection is a verification/business-rule rejection that survived
	// the feedback retry rounds. The caller's request was not itself invalid.
	KindRejection Kind = "rejection"

	// KindLogging marks an interaction-log write failure. Always fatal: the
	// audit record is a correctness requirement.
	KindLogging Kind = "logging"

	// KindPersistence marks a proposal write failure.
	KindPersistence Kind = "persistence"
)

// Fault is a classified pipeline failure. Reason is always human-readable
// and precise enough to feed back into a retry prompt or an API response.
type Fault struct {
	Kind       Kind
	Reason     string
	RetryAfter time.Duration // populated for KindRateLimited only
	cause      error
}

func (f *Fault) Error() string {
	if f.cause != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Reason, f.cause)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Reason)
}

func (f *Fault) Unwrap() error { return f.cause }

// New creates a Fault of the given kind with no underlying cause.
func New(kind Kind, reason string) *Fault {
	return &Fault{Kind: kind, Reason: reason}
}

// Newf creates a Fault with a formatted reason.
func Newf(kind Kind, format string, args ...any) *Fault {
	return &Fault{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Wrap creates a Fault wrapping an underlying cause. The cause is preserved
// for errors.Is/As and eris trace formatting.
func Wrap(kind Kind, err error, reason string) *Fault {
	return &Fault{Kind: kind, Reason: reason, cause: eris.Wrap(err, reason)}
}

// RateLimited creates a rate-limit exhaustion fault carrying the computed
// wait duration.
func RateLimited(wait time.Duration, reason string) *Fault {
	return &Fault{Kind: KindRateLimited, Reason: reason, RetryAfter: wait}
}

// Rejection creates a verification rejection with the given reason. The
// reason doubles as feedback for the next retry round.
func Rejection(reason string) *Fault {
	return &Fault{Kind: KindRejection, Reason: reason}
}

// Rejectionf creates a verification rejection with a formatted reason.
func Rejectionf(format string, args ...any) *Fault {
	return Rejection(fmt.Sprintf(format, args...))
}

// As extracts a *Fault from an error chain.
func As(err error) (*Fault, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// IsKind reports whether err carries a Fault of the given kind.
func IsKind(err error, kind Kind) bool {
	if f, ok := As(err); ok {
		return f.Kind == kind
	}
	return false
}
