package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTokenInfoEndpoint = "https://oauth2.googleapis.com/tokeninfo"

// GoogleIdentity is the subset of the provider's token-info response the
// federation adapter consumes.
type GoogleIdentity struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
}

// GoogleVerifier validates a provider-issued identity assertion.
type GoogleVerifier interface {
	Verify(ctx context.Context, idToken string) (GoogleIdentity, error)
}

// GoogleTokenVerifier verifies Google ID tokens against the tokeninfo
// endpoint over HTTPS.
type GoogleTokenVerifier struct {
	endpoint string
	client   *http.Client
}

// GoogleVerifierOption configures GoogleTokenVerifier.
type GoogleVerifierOption func(*GoogleTokenVerifier)

// WithTokenInfoEndpoint overrides the verification endpoint (tests).
func WithTokenInfoEndpoint(endpoint string) GoogleVerifierOption {
	return func(v *GoogleTokenVerifier) {
		if endpoint != "" {
			v.endpoint = endpoint
		}
	}
}

// NewGoogleTokenVerifier constructs a verifier with a bounded HTTP client.
func NewGoogleTokenVerifier(opts ...GoogleVerifierOption) *GoogleTokenVerifier {
	v := &GoogleTokenVerifier{
		endpoint: defaultTokenInfoEndpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify exchanges the raw ID token for the asserted identity. Any provider
// rejection maps to ErrInvalidToken.
func (v *GoogleTokenVerifier) Verify(ctx context.Context, idToken string) (GoogleIdentity, error) {
	idToken = strings.TrimSpace(idToken)
	if idToken == "" {
		return GoogleIdentity{}, ErrNoTokenProvided
	}

	u := v.endpoint + "?id_token=" + url.QueryEscape(idToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return GoogleIdentity{}, fmt.Errorf("build tokeninfo request: %w", err)
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return GoogleIdentity{}, fmt.Errorf("tokeninfo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return GoogleIdentity{}, ErrInvalidToken
	}
	var identity GoogleIdentity
	if err := json.NewDecoder(resp.Body).Decode(&identity); err != nil {
		return GoogleIdentity{}, fmt.Errorf("decode tokeninfo response: %w", err)
	}
	if identity.Subject == "" || identity.Email == "" {
		return GoogleIdentity{}, ErrInvalidToken
	}
	return identity, nil
}
