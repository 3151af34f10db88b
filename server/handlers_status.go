package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// HandleStatus returns a lightweight status summary: clip counts per watched
// broadcaster, credential expiry, and the last sync tick time.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	resp := map[string]any{}

	var total int
	_ = h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM clips`).Scan(&total)
	resp["clips"] = total

	// Per-broadcaster breakdown
	type channelStatus struct {
		BroadcasterID string `json:"broadcaster_id"`
		Clips         int    `json:"clips"`
		LatestClipAt  string `json:"latest_clip_at,omitempty"`
	}
	var channels []channelStatus
	rows, err := h.db.QueryContext(ctx, `
		SELECT broadcaster_id, COUNT(*) AS clips, COALESCE(MAX(clip_created_at)::text, '')
		FROM clips
		GROUP BY broadcaster_id
		ORDER BY broadcaster_id
	`)
	if err == nil {
		defer func() {
			if err := rows.Close(); err != nil {
				slog.Warn("failed to close rows", slog.Any("err", err))
			}
		}()
		for rows.Next() {
			var cs channelStatus
			if err := rows.Scan(&cs.BroadcasterID, &cs.Clips, &cs.LatestClipAt); err == nil {
				channels = append(channels, cs)
			}
		}
	}
	if len(channels) > 0 {
		resp["channels"] = channels
	}

	// Active credential expiry, if one exists
	var tokenExpiry string
	_ = h.db.QueryRowContext(ctx, `
		SELECT expires_at::text FROM access_tokens
		WHERE NOT is_expired AND expires_at > NOW()
		ORDER BY expires_at DESC LIMIT 1
	`).Scan(&tokenExpiry)
	if tokenExpiry != "" {
		resp["token_expires_at"] = tokenExpiry
	}

	// Last sync tick timestamp
	var last string
	_ = h.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key='clip_sync_last'`).Scan(&last)
	if last != "" {
		resp["last_sync_run"] = last
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
