package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// ErrTokenInvalid reports that the upstream rejected or could not validate an
// access token. The caller treats this as fatal for the current tick.
var ErrTokenInvalid = errors.New("twitch access token could not be validated")

// AuthClient obtains and validates app access (client credentials) tokens.
type AuthClient struct {
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client
}

func (a *AuthClient) http() *http.Client {
	if a.HTTPClient != nil {
		return a.HTTPClient
	}
	return http.DefaultClient
}

// FetchAppToken returns a usable app access token and its remaining lifetime
// in seconds. When a prior token is supplied and still validates upstream, it
// is reused instead of minting a new one.
func (a *AuthClient) FetchAppToken(ctx context.Context, prior string) (string, int, error) {
	if prior != "" {
		if expiresIn, err := a.Validate(ctx, prior); err == nil {
			return prior, expiresIn, nil
		} else if !errors.Is(err, ErrTokenInvalid) {
			return "", 0, err
		}
		slog.Debug("prior access token no longer valid, requesting a new one")
	}

	if a.ClientID == "" || a.ClientSecret == "" {
		return "", 0, errors.New("missing client id/secret for twitch app token")
	}
	form := url.Values{}
	form.Set("client_id", a.ClientID)
	form.Set("client_secret", a.ClientSecret)
	form.Set("grant_type", "client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://id.twitch.tv/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := a.http().Do(req)
	if err != nil {
		return "", 0, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", 0, fmt.Errorf("twitch token request failed: %s: %s", resp.Status, string(b))
	}
	var at struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		TokenType   string `json:"token_type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&at); err != nil {
		return "", 0, err
	}
	if at.AccessToken == "" {
		return "", 0, errors.New("empty access_token in twitch response")
	}
	return at.AccessToken, at.ExpiresIn, nil
}

// Validate checks a token against the upstream validation endpoint and returns
// its remaining lifetime in seconds. A rejected token yields ErrTokenInvalid.
func (a *AuthClient) Validate(ctx context.Context, token string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://id.twitch.tv/oauth2/validate", nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "OAuth "+token)
	resp, err := a.http().Do(req)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode == http.StatusUnauthorized {
		return 0, ErrTokenInvalid
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("twitch token validation failed: %s: %s", resp.Status, string(b))
	}
	var body struct {
		ClientID  string `json:"client_id"`
		ExpiresIn int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, err
	}
	return body.ExpiresIn, nil
}
