// Package trust verifies that a sync request really originates from the
// agent it claims to speak for. Verification runs before any core logic and
// its outcome is combined with the configured enforcement mode.
package trust

import (
	"context"
	"net/http"
)

// Mode controls how a verification outcome is enforced.
type Mode string

const (
	// ModeNone skips verification entirely.
	ModeNone Mode = "none"
	// ModeFailOpen verifies but only logs failures and errors.
	ModeFailOpen Mode = "fail_open"
	// ModeFailClosed rejects any request that does not verify.
	ModeFailClosed Mode = "fail_closed"
)

// Status is the outcome of one verification attempt.
type Status int

const (
	StatusSkipped Status = iota
	StatusVerified
	StatusFailed
	StatusErrored
)

// Result carries the verification status and, for failures and errors, the
// cause.
type Result struct {
	Status Status
	Err    error
}

// Verifier checks that the request is authorized to act as hostID.
type Verifier interface {
	Verify(ctx context.Context, r *http.Request, hostID string) Result
}

// Decision is what the caller should do with the request.
type Decision int

const (
	Proceed Decision = iota
	Reject
)

// Decide applies the enforcement mode to a verification result. Unrecognized
// mode values enforce as fail-closed: an unverified request is rejected.
func Decide(res Result, mode Mode) Decision {
	if mode == ModeNone || res.Status == StatusSkipped || res.Status == StatusVerified {
		return Proceed
	}
	if mode == ModeFailOpen {
		return Proceed
	}
	return Reject
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(ctx context.Context, r *http.Request, hostID string) Result

func (f VerifierFunc) Verify(ctx context.Context, r *http.Request, hostID string) Result {
	return f(ctx, r, hostID)
}

// NoopVerifier always reports skipped. Used when verification is disabled.
func NoopVerifier() Verifier {
	return VerifierFunc(func(ctx context.Context, r *http.Request, hostID string) Result {
		return Result{Status: StatusSkipped}
	})
}
