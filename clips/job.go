// Package clips implements the discovery-and-dispatch pipeline: credential
// upkeep, windowed clip fetching, entity resolution, transactional ingestion,
// and webhook dispatch with compensating deletion.
package clips

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/clipherald/config"
	"github.com/onnwee/clipherald/store"
	"github.com/onnwee/clipherald/telemetry"
	"github.com/onnwee/clipherald/twitchapi"
)

// SyncStore is the bookkeeping surface the scheduler needs, implemented by
// store.Store.
type SyncStore interface {
	LatestClip(ctx context.Context, broadcasterID string) (*store.Clip, error)
	SetKV(ctx context.Context, key, value string) error
}

// CredentialSource produces a validated access token for a tick.
type CredentialSource interface {
	EnsureActiveToken(ctx context.Context) (string, error)
}

// TokenSink receives the active token for subsequent upstream calls.
type TokenSink interface {
	SetToken(token string)
}

// ClipFetcher retrieves new raw clips for one broadcaster.
type ClipFetcher interface {
	FetchNewClips(ctx context.Context, broadcasterID, lastClipID string, lastClipAt time.Time) ([]twitchapi.Clip, error)
}

// ClipIngestor persists raw clips and returns the newly added records.
type ClipIngestor interface {
	Ingest(ctx context.Context, raw []twitchapi.Clip) ([]store.Clip, error)
}

// ClipDispatcher announces newly persisted clips.
type ClipDispatcher interface {
	Dispatch(ctx context.Context, ch config.Channel, clipIDs []string, firstLoad bool) error
}

// Sync runs the whole pipeline once per tick. Channels are processed
// sequentially: they share the store and a rate-limited webhook target, and a
// single logical writer keeps transaction scoping simple.
type Sync struct {
	Creds      CredentialSource
	Helix      TokenSink
	Store      SyncStore
	Fetcher    ClipFetcher
	Ingestor   ClipIngestor
	Dispatcher ClipDispatcher
	Channels   []config.Channel
}

// NewSync wires the pipeline against the real store and Twitch clients.
func NewSync(database *sql.DB, cfg *config.Config) *Sync {
	st := store.New(database)
	helix := &twitchapi.HelixClient{ClientID: cfg.TwitchClientID}
	auth := &twitchapi.AuthClient{ClientID: cfg.TwitchClientID, ClientSecret: cfg.TwitchClientSecret}
	resolver := &Resolver{Store: st, Helix: helix}
	return &Sync{
		Creds:      &CredentialManager{Store: st, Auth: auth},
		Helix:      helix,
		Store:      st,
		Fetcher:    &Fetcher{Helix: helix},
		Ingestor:   &Ingestor{Store: st, Resolver: resolver},
		Dispatcher: &Dispatcher{Store: st},
		Channels:   cfg.Channels,
	}
}

// StartClipSyncJob runs the pipeline on a fixed interval until the context is
// cancelled. Runs execute inline in the loop, so a slow tick delays the next
// one instead of overlapping it.
func StartClipSyncJob(ctx context.Context, database *sql.DB, cfg *config.Config) {
	s := NewSync(database, cfg)
	interval := cfg.Interval
	if interval < config.MinInterval {
		interval = config.MinInterval
	}
	slog.Info("clip sync job starting", slog.Duration("interval", interval), slog.Int("channels", len(s.Channels)))
	telemetry.SetWatchedChannels(len(s.Channels))

	// Kick an immediate run so we don't wait a full interval after boot.
	if err := s.RunTick(ctx); err != nil {
		slog.Warn("clip sync tick", slog.Any("err", err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("clip sync job stopped")
			return
		case <-ticker.C:
			if err := s.RunTick(ctx); err != nil {
				slog.Warn("clip sync tick", slog.Any("err", err))
			}
		}
	}
}

// RunTick refreshes the credential once, then processes every configured
// channel. A credential failure aborts the tick; a failure inside one channel
// is logged and does not touch the others.
func (s *Sync) RunTick(ctx context.Context) error {
	ctx = telemetry.WithCorrelation(ctx, uuid.New().String())
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "clip_sync"))
	telemetry.TicksStarted.Inc()
	ctx, span := telemetry.StartSpan(ctx, "clipherald/clips", "sync.tick")
	defer span.End()
	start := time.Now()

	token, err := s.Creds.EnsureActiveToken(ctx)
	if err != nil {
		logger.Error("could not obtain access token, aborting tick", slog.Any("err", err))
		telemetry.CredentialFailures.Inc()
		telemetry.RecordError(span, err)
		return err
	}
	s.Helix.SetToken(token)

	for _, ch := range s.Channels {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.syncChannel(ctx, ch); err != nil {
			logger.Error("channel sync failed", slog.String("broadcaster_id", ch.BroadcasterID), slog.Any("err", err))
			telemetry.ChannelSyncFailed.Inc()
		}
	}

	if err := s.Store.SetKV(ctx, "clip_sync_last", time.Now().UTC().Format(time.RFC3339)); err != nil {
		logger.Warn("could not record tick time", slog.Any("err", err))
	}
	telemetry.TickDuration.Observe(time.Since(start).Seconds())
	telemetry.SetSpanSuccess(span)
	return nil
}

func (s *Sync) syncChannel(ctx context.Context, ch config.Channel) error {
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("broadcaster_id", ch.BroadcasterID), slog.String("component", "clip_sync"))
	logger.Info("starting clip search")

	latest, err := s.Store.LatestClip(ctx, ch.BroadcasterID)
	if err != nil {
		return err
	}
	// No persisted clips means this is likely the very first successful tick
	// for the channel.
	firstLoad := latest == nil

	var lastID string
	var lastAt time.Time
	if latest != nil {
		lastID = latest.ID
		lastAt = latest.ClipCreatedAt
	}

	raw, err := s.Fetcher.FetchNewClips(ctx, ch.BroadcasterID, lastID, lastAt)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		logger.Info("no new clips found, continuing to next channel")
		return nil
	}
	telemetry.AddClipsDiscovered(len(raw))

	added, err := s.Ingestor.Ingest(ctx, raw)
	if err != nil {
		return err
	}
	if len(added) == 0 {
		logger.Info("no new clips after ingestion, continuing to next channel")
		return nil
	}
	telemetry.AddClipsIngested(len(added))

	ids := make([]string, 0, len(added))
	for _, c := range added {
		ids = append(ids, c.ID)
	}
	return s.Dispatcher.Dispatch(ctx, ch, ids, firstLoad)
}
