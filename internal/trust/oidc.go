package trust

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
)

// OIDCVerifier validates a bearer ID token presented by the agent. The token
// subject must match the host id the request addresses, so a stolen token
// cannot impersonate another host.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier discovers the issuer's keys and builds a verifier for the
// given audience.
func NewOIDCVerifier(ctx context.Context, issuerURL, audience string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("discovering OIDC issuer: %w", err)
	}
	return &OIDCVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: audience}),
	}, nil
}

func (v *OIDCVerifier) Verify(ctx context.Context, r *http.Request, hostID string) Result {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return Result{Status: StatusFailed, Err: errors.New("missing authorization header")}
	}
	raw := strings.TrimPrefix(authHeader, "Bearer ")
	if raw == authHeader || raw == "" {
		return Result{Status: StatusFailed, Err: errors.New("malformed authorization header")}
	}

	token, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return Result{Status: StatusErrored, Err: err}
	}
	if token.Subject != hostID {
		return Result{Status: StatusFailed, Err: fmt.Errorf("token subject %q does not match host", token.Subject)}
	}
	return Result{Status: StatusVerified}
}
