package discord

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_Send(t *testing.T) {
	var got Message
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %s, want application/json", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := &Client{WebhookURL: server.URL}
	msg := Message{
		Content:   "A new clip was created!",
		Username:  "ClipHerald",
		AvatarURL: "https://example.com/avatar.png",
		Embeds: []Embed{{
			Title:     "Nice play",
			URL:       "https://clips.twitch.tv/NicePlay",
			Timestamp: "2024-05-01T10:00:00Z",
			Image:     &EmbedImage{URL: "https://example.com/thumb.jpg"},
			Author:    &EmbedAuthor{Name: "Creator", URL: "https://www.twitch.tv/Creator"},
			Fields:    []EmbedField{{Name: "Game", Value: "Some Game", Inline: true}},
			Footer:    &EmbedFooter{Text: "footer"},
		}},
	}
	if err := c.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got.Content != msg.Content || got.Username != msg.Username {
		t.Errorf("delivered message = %+v", got)
	}
	if len(got.Embeds) != 1 || got.Embeds[0].Title != "Nice play" {
		t.Errorf("delivered embeds = %+v", got.Embeds)
	}
	if got.Embeds[0].Fields[0].Name != "Game" {
		t.Errorf("delivered fields = %+v", got.Embeds[0].Fields)
	}
}

func TestClient_Send_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := &Client{WebhookURL: server.URL}
	if err := c.Send(context.Background(), Message{Content: "hi"}); err == nil {
		t.Fatal("Send() error = nil, want error on non-2xx status")
	}
}

func TestClient_Send_TooManyEmbeds(t *testing.T) {
	c := &Client{WebhookURL: "https://discord.com/api/webhooks/1/t"}
	msg := Message{Embeds: make([]Embed, MaxEmbedsPerMessage+1)}
	if err := c.Send(context.Background(), msg); err == nil {
		t.Fatal("Send() error = nil, want embed limit error")
	}
}
