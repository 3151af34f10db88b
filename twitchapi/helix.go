// Package twitchapi contains minimal helpers to interact with Twitch Helix
// APIs for clip discovery and game/user resolution, using an app access token.
package twitchapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// MaxPageSize is the upstream limit for clips per page.
const MaxPageSize = 100

// HelixClient provides the methods needed for clip discovery. The bearer
// token is set once per tick by the credential manager.
type HelixClient struct {
	ClientID   string
	HTTPClient *http.Client

	mu    sync.RWMutex
	token string
}

// SetToken installs the active bearer token for subsequent calls.
func (hc *HelixClient) SetToken(token string) {
	hc.mu.Lock()
	hc.token = token
	hc.mu.Unlock()
}

func (hc *HelixClient) bearer() string {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.token
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

// Clip is a raw clip record as returned by the upstream. CreatedAt is kept as
// the wire string; the ingestion pipeline parses and validates it.
type Clip struct {
	ID            string  `json:"id"`
	URL           string  `json:"url"`
	BroadcasterID string  `json:"broadcaster_id"`
	CreatorID     string  `json:"creator_id"`
	GameID        string  `json:"game_id"`
	Title         string  `json:"title"`
	ViewCount     int     `json:"view_count"`
	CreatedAt     string  `json:"created_at"`
	ThumbnailURL  string  `json:"thumbnail_url"`
	Duration      float64 `json:"duration"`
	VodOffset     *int    `json:"vod_offset"`
}

// Game is a raw game record from the games endpoint.
type Game struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	BoxArtURL string `json:"box_art_url"`
	IgdbID    string `json:"igdb_id"`
}

// User is a raw user record from the users endpoint.
type User struct {
	ID              string `json:"id"`
	DisplayName     string `json:"display_name"`
	ProfileImageURL string `json:"profile_image_url"`
}

// ClipParams bounds one clips page request.
type ClipParams struct {
	BroadcasterID string
	First         int
	StartedAt     time.Time
	EndedAt       time.Time
	After         string
}

// GetClips fetches one page of clips for a broadcaster within a time window
// and returns the page plus the pagination cursor (empty on the last page).
func (hc *HelixClient) GetClips(ctx context.Context, p ClipParams) ([]Clip, string, error) {
	if p.BroadcasterID == "" {
		return nil, "", fmt.Errorf("broadcasterID empty")
	}
	if p.First <= 0 || p.First > MaxPageSize {
		p.First = MaxPageSize
	}
	req, err := hc.newRequest(ctx, "https://api.twitch.tv/helix/clips")
	if err != nil {
		return nil, "", err
	}
	q := req.URL.Query()
	q.Set("broadcaster_id", p.BroadcasterID)
	q.Set("first", fmt.Sprintf("%d", p.First))
	if !p.StartedAt.IsZero() {
		q.Set("started_at", p.StartedAt.UTC().Format(time.RFC3339))
	}
	if !p.EndedAt.IsZero() {
		q.Set("ended_at", p.EndedAt.UTC().Format(time.RFC3339))
	}
	if p.After != "" {
		q.Set("after", p.After)
	}
	req.URL.RawQuery = q.Encode()

	var body struct {
		Data       []Clip `json:"data"`
		Pagination struct {
			Cursor string `json:"cursor"`
		} `json:"pagination"`
	}
	if err := hc.do(req, &body); err != nil {
		return nil, "", err
	}
	return body.Data, body.Pagination.Cursor, nil
}

// GetGames fetches games by id in bulk.
func (hc *HelixClient) GetGames(ctx context.Context, ids []string) ([]Game, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	req, err := hc.newRequest(ctx, "https://api.twitch.tv/helix/games")
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	for _, id := range ids {
		q.Add("id", id)
	}
	req.URL.RawQuery = q.Encode()

	var body struct {
		Data []Game `json:"data"`
	}
	if err := hc.do(req, &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

// GetUsers fetches users by id in bulk.
func (hc *HelixClient) GetUsers(ctx context.Context, ids []string) ([]User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	req, err := hc.newRequest(ctx, "https://api.twitch.tv/helix/users")
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	for _, id := range ids {
		q.Add("id", id)
	}
	req.URL.RawQuery = q.Encode()

	var body struct {
		Data []User `json:"data"`
	}
	if err := hc.do(req, &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

func (hc *HelixClient) newRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+hc.bearer())
	return req, nil
}

func (hc *HelixClient) do(req *http.Request, out any) error {
	resp, err := hc.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("helix request failed: %s: %s", resp.Status, string(b))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
