package trust

import (
	"errors"
	"testing"
)

func TestDecide(t *testing.T) {
	failed := Result{Status: StatusFailed, Err: errors.New("bad token")}
	errored := Result{Status: StatusErrored, Err: errors.New("issuer down")}

	tests := []struct {
		name string
		res  Result
		mode Mode
		want Decision
	}{
		{"disabled skips everything", failed, ModeNone, Proceed},
		{"verified always proceeds", Result{Status: StatusVerified}, ModeFailClosed, Proceed},
		{"skipped always proceeds", Result{Status: StatusSkipped}, ModeFailClosed, Proceed},
		{"fail-open lets failures through", failed, ModeFailOpen, Proceed},
		{"fail-open lets errors through", errored, ModeFailOpen, Proceed},
		{"fail-closed rejects failures", failed, ModeFailClosed, Reject},
		{"fail-closed rejects errors", errored, ModeFailClosed, Reject},
		{"unrecognized mode enforces fail-closed", failed, Mode("strict?"), Reject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(tt.res, tt.mode); got != tt.want {
				t.Errorf("Decide(%v, %q) = %v, want %v", tt.res.Status, tt.mode, got, tt.want)
			}
		})
	}
}
