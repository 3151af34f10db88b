package clips

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/onnwee/clipherald/store"
	"github.com/onnwee/clipherald/twitchapi"
)

// EntityStore is the game/user persistence consumed by the resolver,
// implemented by store.Store.
type EntityStore interface {
	GamesByIDs(ctx context.Context, ids []string) ([]store.Game, error)
	AddGames(ctx context.Context, games []store.Game) ([]store.Game, error)
	UserByID(ctx context.Context, id string) (*store.User, error)
	AddUser(ctx context.Context, u store.User) (*store.User, error)
}

// EntityAPI is the upstream lookup surface, implemented by twitchapi.HelixClient.
type EntityAPI interface {
	GetGames(ctx context.Context, ids []string) ([]twitchapi.Game, error)
	GetUsers(ctx context.Context, ids []string) ([]twitchapi.User, error)
}

// Resolver fills in game and user references with cache-aside semantics: the
// store answers first, misses are fetched upstream in bulk and written back.
type Resolver struct {
	Store EntityStore
	Helix EntityAPI
}

// ResolveGames returns one Game per requested id, fetching and persisting the
// ones the store does not know yet. A wholly-unknown batch upstream fails with
// UnknownGamesError; individual malformed records are skipped and logged.
func (r *Resolver) ResolveGames(ctx context.Context, ids []string) ([]store.Game, error) {
	known, err := r.Store.GamesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	knownSet := make(map[string]struct{}, len(known))
	for _, g := range known {
		knownSet[g.ID] = struct{}{}
	}
	var missing []string
	for _, id := range ids {
		if _, ok := knownSet[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return dedupGames(known), nil
	}

	fetched, err := r.Helix.GetGames(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("get games: %w", err)
	}
	if len(fetched) == 0 {
		return nil, &UnknownGamesError{GameIDs: missing}
	}
	fetchedSet := make(map[string]struct{}, len(fetched))
	for _, g := range fetched {
		fetchedSet[g.ID] = struct{}{}
	}
	for _, id := range missing {
		if _, ok := fetchedSet[id]; !ok {
			slog.Warn("some games could not be queried from twitch", slog.String("game_id", id))
		}
	}

	candidates := make([]store.Game, 0, len(fetched))
	for _, g := range fetched {
		if g.ID == "" || g.Name == "" {
			slog.Error("skipping game with missing required fields", slog.String("game_id", g.ID), slog.String("name", g.Name))
			continue
		}
		candidates = append(candidates, store.Game{
			ID:        g.ID,
			Name:      g.Name,
			BoxArtURL: g.BoxArtURL,
			IgdbID:    sql.NullString{String: g.IgdbID, Valid: g.IgdbID != ""},
		})
	}
	added, err := r.Store.AddGames(ctx, candidates)
	if err != nil {
		return nil, err
	}
	return dedupGames(append(known, added...)), nil
}

// ResolveUser returns the user for an id, lazily creating the local record on
// first reference. An id unknown upstream fails with UnknownUserError.
func (r *Resolver) ResolveUser(ctx context.Context, id string) (*store.User, error) {
	u, err := r.Store.UserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u != nil {
		return u, nil
	}

	users, err := r.Helix.GetUsers(ctx, []string{id})
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if len(users) == 0 {
		return nil, &UnknownUserError{UserID: id}
	}
	remote := users[0]
	return r.Store.AddUser(ctx, store.User{
		ID:              remote.ID,
		Username:        remote.DisplayName,
		ProfileImageURL: remote.ProfileImageURL,
	})
}

func dedupGames(games []store.Game) []store.Game {
	seen := make(map[string]struct{}, len(games))
	out := games[:0]
	for _, g := range games {
		if _, ok := seen[g.ID]; ok {
			continue
		}
		seen[g.ID] = struct{}{}
		out = append(out, g)
	}
	return out
}
