// Package venue adapts the broker's REST API into the typed gateway the
// executor consumes. All response normalization happens here; raw venue
// shapes never leave this package.
package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/arbx-trading/arbx/internal/domain"
)

// SessionConfig holds broker credentials.
type SessionConfig struct {
	BaseURL    string
	APIKey     string
	ClientID   string
	Pin        string
	TOTPSecret string
}

// Session owns the authenticated broker credential state. It replaces any
// ambient global session: the executor and feed receive the session by
// injection and call Ensure before touching the wire.
type Session struct {
	cfg        SessionConfig
	httpClient *http.Client
	logger     *slog.Logger

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	feedToken    string
}

// NewSession creates an unauthenticated Session.
func NewSession(cfg SessionConfig, logger *slog.Logger) *Session {
	return &Session{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger.With(slog.String("component", "session")),
	}
}

// Ensure returns nil when a valid session exists, authenticating first if
// needed.
func (s *Session) Ensure(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accessToken != "" {
		return nil
	}
	return s.authenticateLocked(ctx)
}

// Refresh exchanges the refresh token for a new access token, falling back
// to a full login when no refresh token is held.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refreshToken == "" {
		return s.authenticateLocked(ctx)
	}

	var data struct {
		JWTToken     string `json:"jwtToken"`
		RefreshToken string `json:"refreshToken"`
	}
	err := s.post(ctx, "/auth/refresh", map[string]string{
		"refreshToken": s.refreshToken,
	}, &data)
	if err != nil {
		return fmt.Errorf("venue: refresh session: %w", err)
	}
	s.accessToken = data.JWTToken
	s.refreshToken = data.RefreshToken
	s.logger.Info("session refreshed")
	return nil
}

// AccessToken returns the current access token, empty before Ensure.
func (s *Session) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken
}

// FeedToken returns the market-data feed token obtained at login.
func (s *Session) FeedToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feedToken
}

// authenticateLocked performs a TOTP login. Callers hold s.mu.
func (s *Session) authenticateLocked(ctx context.Context) error {
	code, err := totp.GenerateCode(s.cfg.TOTPSecret, time.Now())
	if err != nil {
		return fmt.Errorf("venue: generate totp: %w", err)
	}

	var data struct {
		JWTToken     string `json:"jwtToken"`
		RefreshToken string `json:"refreshToken"`
		FeedToken    string `json:"feedToken"`
	}
	err = s.post(ctx, "/auth/login", map[string]string{
		"clientcode": s.cfg.ClientID,
		"pin":        s.cfg.Pin,
		"totp":       code,
	}, &data)
	if err != nil {
		return fmt.Errorf("venue: %w: %v", domain.ErrSessionUnavailable, err)
	}
	if data.JWTToken == "" {
		return fmt.Errorf("venue: %w: login returned no token", domain.ErrSessionUnavailable)
	}

	s.accessToken = data.JWTToken
	s.refreshToken = data.RefreshToken
	s.feedToken = data.FeedToken
	s.logger.Info("session established", slog.String("client_id", s.cfg.ClientID))
	return nil
}

// post sends a JSON request to the auth endpoints and decodes the envelope's
// data into out.
func (s *Session) post(ctx context.Context, path string, reqBody any, out any) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", s.cfg.APIKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	env, err := decodeEnvelope(resp)
	if err != nil {
		return err
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}
