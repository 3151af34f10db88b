package clips

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/onnwee/clipherald/store"
	"github.com/onnwee/clipherald/twitchapi"
)

// ClipStore is the clip persistence consumed by the ingestor, implemented by
// store.Store.
type ClipStore interface {
	AddNewClips(ctx context.Context, candidates []store.Clip) ([]store.Clip, error)
}

// EntityResolver is the resolution surface the ingestor uses, implemented by
// Resolver.
type EntityResolver interface {
	ResolveGames(ctx context.Context, ids []string) ([]store.Game, error)
	ResolveUser(ctx context.Context, id string) (*store.User, error)
}

// Ingestor turns raw fetched clips into validated, deduplicated, persisted
// records. Games and users are resolved and persisted before the referencing
// clip so foreign keys always land on existing rows.
type Ingestor struct {
	Store    ClipStore
	Resolver EntityResolver
}

// Ingest validates and persists a batch of raw clips and returns only the
// newly added records. A single malformed clip is skipped and logged without
// aborting the batch; unknown games or users abort the batch for this channel.
func (ing *Ingestor) Ingest(ctx context.Context, raw []twitchapi.Clip) ([]store.Clip, error) {
	candidates, err := ing.buildCandidates(ctx, raw)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		slog.Info("no clips remaining after building candidates")
		return nil, nil
	}
	return ing.Store.AddNewClips(ctx, candidates)
}

func (ing *Ingestor) buildCandidates(ctx context.Context, raw []twitchapi.Clip) ([]store.Clip, error) {
	gameIDs := distinctGameIDs(raw)
	var games []store.Game
	if len(gameIDs) > 0 {
		var err error
		games, err = ing.Resolver.ResolveGames(ctx, gameIDs)
		if err != nil {
			return nil, err
		}
	}
	gameSet := make(map[string]struct{}, len(games))
	for _, g := range games {
		gameSet[g.ID] = struct{}{}
	}

	candidates := make([]store.Clip, 0, len(raw))
	for _, c := range raw {
		if c.BroadcasterID == "" || c.CreatorID == "" || c.GameID == "" {
			slog.Error("skipping clip with missing references",
				slog.String("clip_id", c.ID),
				slog.String("broadcaster_id", c.BroadcasterID),
				slog.String("creator_id", c.CreatorID),
				slog.String("game_id", c.GameID))
			continue
		}
		createdAt, err := time.Parse(clipTimeLayout, c.CreatedAt)
		if err != nil {
			slog.Error("skipping clip with unparseable created_at",
				slog.String("clip_id", c.ID), slog.String("created_at", c.CreatedAt))
			continue
		}
		if _, ok := gameSet[c.GameID]; !ok {
			slog.Error("skipping clip with unresolvable game",
				slog.String("clip_id", c.ID), slog.String("game_id", c.GameID))
			continue
		}

		broadcaster, err := ing.Resolver.ResolveUser(ctx, c.BroadcasterID)
		if err != nil {
			return nil, err
		}
		creator, err := ing.Resolver.ResolveUser(ctx, c.CreatorID)
		if err != nil {
			return nil, err
		}

		candidate := store.Clip{
			ID:            c.ID,
			Title:         c.Title,
			BroadcasterID: broadcaster.ID,
			CreatorID:     creator.ID,
			GameID:        c.GameID,
			URL:           c.URL,
			ThumbnailURL:  c.ThumbnailURL,
			ClipCreatedAt: createdAt,
			ViewCount:     c.ViewCount,
			Duration:      c.Duration,
		}
		if c.VodOffset != nil {
			candidate.VodOffset = sql.NullInt32{Int32: int32(*c.VodOffset), Valid: true}
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

func distinctGameIDs(raw []twitchapi.Clip) []string {
	seen := make(map[string]struct{}, len(raw))
	var ids []string
	for _, c := range raw {
		if c.GameID == "" {
			continue
		}
		if _, ok := seen[c.GameID]; ok {
			continue
		}
		seen[c.GameID] = struct{}{}
		ids = append(ids, c.GameID)
	}
	return ids
}
