package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// LatestClip returns the most recently created clip for a broadcaster, or nil
// when the broadcaster has no persisted clips yet.
func (s *Store) LatestClip(ctx context.Context, broadcasterID string) (*Clip, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT clip_id, title, broadcaster_id, creator_id, game_id, url, thumbnail_url, clip_created_at, view_count, duration, vod_offset, created_at, updated_at
		FROM clips WHERE broadcaster_id=$1 ORDER BY clip_created_at DESC LIMIT 1`, broadcasterID)
	var c Clip
	err := row.Scan(&c.ID, &c.Title, &c.BroadcasterID, &c.CreatorID, &c.GameID, &c.URL, &c.ThumbnailURL, &c.ClipCreatedAt, &c.ViewCount, &c.Duration, &c.VodOffset, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest clip: %w", err)
	}
	return &c, nil
}

// ClipCount returns the total number of persisted clips.
func (s *Store) ClipCount(ctx context.Context) (int, error) {
	var n int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(1) FROM clips`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// AddNewClips persists the candidate clips that are not already present,
// inside one transaction: re-check existing ids, batch insert the remainder,
// and verify the write count. A count mismatch rolls the whole batch back and
// yields no new clips; partial success is never reported.
func (s *Store) AddNewClips(ctx context.Context, candidates []Clip) ([]Clip, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin ingest tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	remaining, err := filterExistingClips(ctx, tx, candidates)
	if err != nil {
		return nil, err
	}
	if len(remaining) == 0 {
		return nil, nil
	}

	now := s.stamp()
	inserted, err := insertClips(ctx, tx, remaining, now)
	if err != nil {
		return nil, err
	}
	if inserted != int64(len(remaining)) {
		slog.Error("could not add all new clips, rolling back",
			slog.Int("candidates", len(remaining)), slog.Int64("added", inserted))
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit ingest tx: %w", err)
	}
	for i := range remaining {
		remaining[i].CreatedAt = now
		remaining[i].UpdatedAt = now
	}
	slog.Info("added clips to the database", slog.Int("count", len(remaining)))
	return remaining, nil
}

// querier is the subset of sql.Tx used by the ingest helpers. Kept narrow so
// the helpers can be exercised with stubs.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// filterExistingClips drops candidates whose ids are already persisted. Runs
// inside the ingest transaction so a retried tick or an overlapping upstream
// page cannot duplicate rows.
func filterExistingClips(ctx context.Context, q querier, candidates []Clip) ([]Clip, error) {
	ids := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		ids = append(ids, c.ID)
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	rows, err := q.QueryContext(ctx, `SELECT clip_id FROM clips WHERE clip_id IN (`+strings.Join(placeholders, ",")+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query existing clips: %w", err)
	}
	defer func() { _ = rows.Close() }()

	existing := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		existing[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	remaining := make([]Clip, 0, len(candidates))
	kept := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		if _, ok := existing[c.ID]; ok {
			continue
		}
		if _, ok := kept[c.ID]; ok {
			continue
		}
		kept[c.ID] = struct{}{}
		remaining = append(remaining, c)
	}
	return remaining, nil
}

// insertClips writes the batch in one statement and returns the row count the
// database reports as written.
func insertClips(ctx context.Context, q querier, clips []Clip, now time.Time) (int64, error) {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO clips (clip_id, title, broadcaster_id, creator_id, game_id, url, thumbnail_url, clip_created_at, view_count, duration, vod_offset, created_at, updated_at) VALUES `)
	args := make([]any, 0, len(clips)*13)
	for i, c := range clips {
		if i > 0 {
			sb.WriteString(",")
		}
		base := i * 13
		sb.WriteString("(")
		for j := 1; j <= 13; j++ {
			if j > 1 {
				sb.WriteString(",")
			}
			fmt.Fprintf(&sb, "$%d", base+j)
		}
		sb.WriteString(")")
		args = append(args, c.ID, c.Title, c.BroadcasterID, c.CreatorID, c.GameID, c.URL, c.ThumbnailURL, c.ClipCreatedAt, c.ViewCount, c.Duration, c.VodOffset, now, now)
	}
	sb.WriteString(` ON CONFLICT (clip_id) DO NOTHING`)

	res, err := q.ExecContext(ctx, sb.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("insert clips: %w", err)
	}
	return res.RowsAffected()
}

// ClipsByIDs returns the full clip records for the given ids with broadcaster,
// creator, and game resolved. Ids absent from the store are simply missing
// from the result; the caller decides whether that is an error.
func (s *Store) ClipsByIDs(ctx context.Context, ids []string) ([]Clip, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	q := `SELECT c.clip_id, c.title, c.broadcaster_id, c.creator_id, c.game_id, c.url, c.thumbnail_url, c.clip_created_at, c.view_count, c.duration, c.vod_offset, c.created_at, c.updated_at,
			b.username, b.profile_image_url,
			cr.username, cr.profile_image_url,
			g.name, g.box_art_url, g.igdb_id
		FROM clips c
		JOIN users b ON b.user_id = c.broadcaster_id
		JOIN users cr ON cr.user_id = c.creator_id
		JOIN games g ON g.game_id = c.game_id
		WHERE c.clip_id IN (` + strings.Join(placeholders, ",") + `)`
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query clips by ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Clip
	for rows.Next() {
		var c Clip
		b := &User{}
		cr := &User{}
		g := &Game{}
		if err := rows.Scan(&c.ID, &c.Title, &c.BroadcasterID, &c.CreatorID, &c.GameID, &c.URL, &c.ThumbnailURL, &c.ClipCreatedAt, &c.ViewCount, &c.Duration, &c.VodOffset, &c.CreatedAt, &c.UpdatedAt,
			&b.Username, &b.ProfileImageURL,
			&cr.Username, &cr.ProfileImageURL,
			&g.Name, &g.BoxArtURL, &g.IgdbID); err != nil {
			return nil, err
		}
		b.ID = c.BroadcasterID
		cr.ID = c.CreatorID
		g.ID = c.GameID
		c.Broadcaster, c.Creator, c.Game = b, cr, g
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteClips removes the given clips. Used only by the compensating path
// after a failed webhook delivery.
func (s *Store) DeleteClips(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	_, err := s.DB.ExecContext(ctx, `DELETE FROM clips WHERE clip_id IN (`+strings.Join(placeholders, ",")+`)`, args...)
	if err != nil {
		return fmt.Errorf("delete clips: %w", err)
	}
	return nil
}
