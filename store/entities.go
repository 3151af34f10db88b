package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// GamesByIDs returns the persisted games among the requested ids.
func (s *Store) GamesByIDs(ctx context.Context, ids []string) ([]Game, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT game_id, name, box_art_url, igdb_id, created_at, updated_at FROM games WHERE game_id IN (`+strings.Join(placeholders, ",")+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query games: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Game
	for rows.Next() {
		var g Game
		if err := rows.Scan(&g.ID, &g.Name, &g.BoxArtURL, &g.IgdbID, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// AddGames persists a batch of games in one transaction with the same
// count-verified commit semantics as the clip ingest: a mismatch rolls back
// and yields an empty result.
func (s *Store) AddGames(ctx context.Context, games []Game) ([]Game, error) {
	if len(games) == 0 {
		return nil, nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin games tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.stamp()
	var sb strings.Builder
	sb.WriteString(`INSERT INTO games (game_id, name, box_art_url, igdb_id, created_at, updated_at) VALUES `)
	args := make([]any, 0, len(games)*6)
	for i, g := range games {
		if i > 0 {
			sb.WriteString(",")
		}
		base := i * 6
		fmt.Fprintf(&sb, "($%d,$%d,$%d,$%d,$%d,$%d)", base+1, base+2, base+3, base+4, base+5, base+6)
		args = append(args, g.ID, g.Name, g.BoxArtURL, g.IgdbID, now, now)
	}
	sb.WriteString(` ON CONFLICT (game_id) DO NOTHING`)

	res, err := tx.ExecContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("insert games: %w", err)
	}
	added, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if added != int64(len(games)) {
		slog.Error("could not add all new games, rolling back",
			slog.Int("candidates", len(games)), slog.Int64("added", added))
		return nil, nil
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit games tx: %w", err)
	}
	for i := range games {
		games[i].CreatedAt = now
		games[i].UpdatedAt = now
	}
	slog.Info("added games to the database", slog.Int("count", len(games)))
	return games, nil
}

// UserByID returns the persisted user, or nil when unknown.
func (s *Store) UserByID(ctx context.Context, id string) (*User, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT user_id, username, profile_image_url, created_at, updated_at FROM users WHERE user_id=$1`, id)
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.ProfileImageURL, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

// AddUser persists a user created lazily on first reference. Inserting an id
// that already exists is a no-op returning the stored row.
func (s *Store) AddUser(ctx context.Context, u User) (*User, error) {
	now := s.stamp()
	_, err := s.DB.ExecContext(ctx, `INSERT INTO users (user_id, username, profile_image_url, created_at, updated_at) VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (user_id) DO NOTHING`, u.ID, u.Username, u.ProfileImageURL, now, now)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return s.UserByID(ctx, u.ID)
}
