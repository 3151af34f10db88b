package clips

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/onnwee/clipherald/store"
)

// TokenStore is the access-token persistence consumed by the credential
// manager, implemented by store.Store.
type TokenStore interface {
	CurrentAccessToken(ctx context.Context) (*store.AccessToken, error)
	AccessTokenByValue(ctx context.Context, token string) (*store.AccessToken, error)
	AddAccessToken(ctx context.Context, token string, expiresAt time.Time, isExpired bool) error
	MarkAccessTokenExpired(ctx context.Context, token string) error
}

// AuthAPI is the upstream credential surface, implemented by twitchapi.AuthClient.
type AuthAPI interface {
	FetchAppToken(ctx context.Context, prior string) (string, int, error)
	Validate(ctx context.Context, token string) (int, error)
}

// CredentialManager maintains the app access token across ticks: stored rows
// track expiry so a restart can resume with a still-valid token.
type CredentialManager struct {
	Store TokenStore
	Auth  AuthAPI

	now func() time.Time
}

func (m *CredentialManager) clock() time.Time {
	if m.now != nil {
		return m.now()
	}
	return time.Now().UTC()
}

// EnsureActiveToken returns a validated app access token, persisting its
// expiry state. Runs once at the start of every tick; a failure here aborts
// the whole tick since no channel can proceed without a credential.
func (m *CredentialManager) EnsureActiveToken(ctx context.Context) (string, error) {
	current, err := m.Store.CurrentAccessToken(ctx)
	if err != nil {
		return "", err
	}
	prior := ""
	if current != nil {
		prior = current.Token
	}

	token, _, err := m.Auth.FetchAppToken(ctx, prior)
	if err != nil {
		return "", fmt.Errorf("fetch app token: %w", err)
	}
	expiresIn, err := m.Auth.Validate(ctx, token)
	if err != nil {
		return "", fmt.Errorf("validate app token: %w", err)
	}

	now := m.clock()
	row, err := m.Store.AccessTokenByValue(ctx, token)
	if err != nil {
		return "", err
	}
	switch {
	case row == nil:
		expires := now.Add(time.Duration(expiresIn) * time.Second)
		if err := m.Store.AddAccessToken(ctx, token, expires, !expires.After(now)); err != nil {
			return "", err
		}
		slog.Info("stored new access token", slog.Time("expires", expires), slog.String("component", "credentials"))
	case !row.ExpiresAt.After(now):
		if err := m.Store.MarkAccessTokenExpired(ctx, token); err != nil {
			return "", err
		}
	}
	return token, nil
}
