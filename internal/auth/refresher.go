package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dtroode/expensekeeper-client/internal/model"
)

const maxRefreshBody = 1 << 20

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

var _ model.Refresher = (*HTTPRefresher)(nil)

// HTTPRefresher calls the remote refresh endpoint.
// Its client must not be wrapped by the auth transport.
type HTTPRefresher struct {
	client    *http.Client
	endpoint  string
	inspector model.TokenInspector
	now       func() time.Time
}

// NewHTTPRefresher creates a refresher posting to endpoint.
// inspector is consulted when the response carries no expires_in.
func NewHTTPRefresher(client *http.Client, endpoint string, inspector model.TokenInspector) *HTTPRefresher {
	return &HTTPRefresher{
		client:    client,
		endpoint:  endpoint,
		inspector: inspector,
		now:       time.Now,
	}
}

// Refresh exchanges refreshToken for a new token.
func (r *HTTPRefresher) Refresh(ctx context.Context, refreshToken string) (model.Token, error) {
	payload, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return model.Token{}, fmt.Errorf("failed to encode refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		return model.Token{}, fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return model.Token{}, fmt.Errorf("%w: %w", model.ErrRefreshNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRefreshBody))
	if err != nil {
		return model.Token{}, fmt.Errorf("%w: failed to read response: %w", model.ErrRefreshNetwork, err)
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden:
		return model.Token{}, fmt.Errorf("%w: status %d", model.ErrRefreshRejected, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return model.Token{}, fmt.Errorf("%w: status %d", model.ErrRefreshNetwork, resp.StatusCode)
	}

	var parsed refreshResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return model.Token{}, fmt.Errorf("%w: %w", model.ErrRefreshMalformed, err)
	}
	if parsed.AccessToken == "" {
		return model.Token{}, fmt.Errorf("%w: empty access_token", model.ErrRefreshMalformed)
	}

	token := model.Token{
		AccessToken:  parsed.AccessToken,
		RefreshToken: parsed.RefreshToken,
		TokenType:    parsed.TokenType,
	}
	if token.TokenType == "" {
		token.TokenType = "Bearer"
	}

	if parsed.ExpiresIn > 0 {
		now := r.now()
		token.IssuedAt = now
		token.ExpiresAt = now.Add(time.Duration(parsed.ExpiresIn) * time.Second)
	} else if r.inspector != nil {
		if exp, iat, err := r.inspector.Metadata(parsed.AccessToken); err == nil {
			token.ExpiresAt, token.IssuedAt = exp, iat
		}
	}

	return token, nil
}
