package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/execguard/syncd/internal/audit"
	"github.com/execguard/syncd/internal/domain"
	"github.com/execguard/syncd/internal/storage/memory"
)

func TestHandleErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", domain.ErrNotFound, http.StatusNotFound},
		{"invalid input", domain.ErrInvalidInput, http.StatusBadRequest},
		{"forbidden", domain.ErrForbidden, http.StatusForbidden},
		{"wrapped forbidden", fmt.Errorf("agent check: %w", domain.ErrForbidden), http.StatusForbidden},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			handleError(rr, tt.err)
			if rr.Code != tt.want {
				t.Errorf("handleError(%v) status = %d, want %d", tt.err, rr.Code, tt.want)
			}
			var apiErr domain.APIError
			if err := json.Unmarshal(rr.Body.Bytes(), &apiErr); err != nil {
				t.Fatalf("decoding error body: %v", err)
			}
			if apiErr.Code != tt.want {
				t.Errorf("body code = %d, want %d", apiErr.Code, tt.want)
			}
		})
	}
}

// A request that reaches a phase handler without a resolved host is refused.
func TestPostflightRejectsMissingHostContext(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewPostflightHandler(memory.New(), audit.NewEmitter(audit.NewMemorySink(), logger), logger)

	rr := httptest.NewRecorder()
	h.Handle(rr, httptest.NewRequest("POST", "/postflight/host-1", nil))
	if rr.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 without a resolved host, got %d", rr.Code)
	}
}
