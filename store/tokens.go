package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CurrentAccessToken returns the stored token with the latest expiry that is
// neither marked expired nor past its expiry instant, or nil when none
// qualifies. Old rows are kept; at most one token is treated as current.
func (s *Store) CurrentAccessToken(ctx context.Context) (*AccessToken, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT access_token, expires_at, is_expired, created_at, updated_at
		FROM access_tokens WHERE expires_at > $1 AND NOT is_expired
		ORDER BY expires_at DESC LIMIT 1`, s.now())
	var t AccessToken
	err := row.Scan(&t.Token, &t.ExpiresAt, &t.IsExpired, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query current access token: %w", err)
	}
	return &t, nil
}

// AccessTokenByValue returns the stored row for a token string, or nil.
func (s *Store) AccessTokenByValue(ctx context.Context, token string) (*AccessToken, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT access_token, expires_at, is_expired, created_at, updated_at
		FROM access_tokens WHERE access_token=$1`, token)
	var t AccessToken
	err := row.Scan(&t.Token, &t.ExpiresAt, &t.IsExpired, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query access token: %w", err)
	}
	return &t, nil
}

// AddAccessToken persists a freshly obtained token with its expiry instant.
func (s *Store) AddAccessToken(ctx context.Context, token string, expiresAt time.Time, isExpired bool) error {
	now := s.stamp()
	_, err := s.DB.ExecContext(ctx, `INSERT INTO access_tokens (access_token, expires_at, is_expired, created_at, updated_at) VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (access_token) DO NOTHING`, token, expiresAt, isExpired, now, now)
	if err != nil {
		return fmt.Errorf("insert access token: %w", err)
	}
	return nil
}

// MarkAccessTokenExpired flags a token whose expiry instant has passed.
func (s *Store) MarkAccessTokenExpired(ctx context.Context, token string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE access_tokens SET is_expired=TRUE, updated_at=$1 WHERE access_token=$2`, s.stamp(), token)
	if err != nil {
		return fmt.Errorf("mark access token expired: %w", err)
	}
	return nil
}

// SetKV upserts a bookkeeping value (job timestamps and similar).
func (s *Store) SetKV(ctx context.Context, key, value string) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO kv (key, value, updated_at) VALUES ($1,$2,NOW())
		ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()`, key, value)
	return err
}

// GetKV returns a bookkeeping value or empty string when absent.
func (s *Store) GetKV(ctx context.Context, key string) (string, error) {
	var v sql.NullString
	err := s.DB.QueryRowContext(ctx, `SELECT value FROM kv WHERE key=$1`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return v.String, nil
}
