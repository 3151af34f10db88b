package clips

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/onnwee/clipherald/config"
	"github.com/onnwee/clipherald/discord"
	"github.com/onnwee/clipherald/store"
	"github.com/onnwee/clipherald/telemetry"
)

const (
	// dispatchChunkSize is how many clips go into one webhook message.
	dispatchChunkSize = 5
	// firstLoadThreshold is the clip count above which a channel's very first
	// successful tick is treated as a backfill and not announced.
	firstLoadThreshold = 5
	// chunkDelay paces consecutive webhook messages for one channel.
	chunkDelay = 1 * time.Second

	embedDescription = ":arrow_double_up: **click to watch** :arrow_double_up:"
	embedFooterText  = "Made with ☕ and ❤️"
	embedSourceLink  = "[ℹ️](https://github.com/onnwee/clipherald)"
)

// DispatchStore is the clip read/delete surface used during dispatch,
// implemented by store.Store.
type DispatchStore interface {
	ClipsByIDs(ctx context.Context, ids []string) ([]store.Clip, error)
	DeleteClips(ctx context.Context, ids []string) error
}

// WebhookSender delivers one webhook message, implemented by discord.Client.
type WebhookSender interface {
	Send(ctx context.Context, msg discord.Message) error
}

// Dispatcher announces newly persisted clips to a channel's webhook. Delivery
// is at-most-once: a chunk whose send fails is deleted from the store so it
// cannot wedge the channel's latest-clip bookkeeping.
type Dispatcher struct {
	Store DispatchStore

	// NewSender builds the webhook client for a channel. Overridable in tests.
	NewSender func(webhookURL string) WebhookSender

	// sleep paces chunks; overridable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func (d *Dispatcher) sender(url string) WebhookSender {
	if d.NewSender != nil {
		return d.NewSender(url)
	}
	return &discord.Client{WebhookURL: url}
}

func (d *Dispatcher) pause(ctx context.Context, dur time.Duration) error {
	if d.sleep != nil {
		return d.sleep(ctx, dur)
	}
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Dispatch sends the given clips to the channel's webhook in paced chunks.
// When firstLoad is set and the batch exceeds the threshold, nothing is sent:
// the clips are assumed to be historical backfill and stay persisted silently.
func (d *Dispatcher) Dispatch(ctx context.Context, ch config.Channel, clipIDs []string, firstLoad bool) error {
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("broadcaster_id", ch.BroadcasterID), slog.String("component", "dispatch"))

	if firstLoad && ch.SuppressFirstLoad() && len(clipIDs) > firstLoadThreshold {
		logger.Info("skipping webhook, likely a first load for this channel", slog.Int("clips", len(clipIDs)))
		return nil
	}

	sender := d.sender(ch.WebhookURL)
	for i, chunk := range chunkIDs(clipIDs, dispatchChunkSize) {
		if i > 0 {
			if err := d.pause(ctx, chunkDelay); err != nil {
				return err
			}
		}

		records, err := d.Store.ClipsByIDs(ctx, chunk)
		if err != nil {
			return err
		}
		if len(records) != len(chunk) {
			return &MissingClipsError{ClipIDs: missingIDs(chunk, records)}
		}

		msg := buildMessage(ch, records)
		if err := sender.Send(ctx, msg); err != nil {
			logger.Error("webhook delivery failed, deleting clips from this batch",
				slog.Any("err", err), slog.Any("clip_ids", chunk))
			telemetry.WebhooksFailed.Inc()
			if delErr := d.Store.DeleteClips(ctx, chunk); delErr != nil {
				logger.Error("compensating clip deletion failed", slog.Any("err", delErr), slog.Any("clip_ids", chunk))
			} else {
				telemetry.AddClipsDeleted(len(chunk))
			}
			continue
		}
		telemetry.WebhooksSent.Inc()
		logger.Info("sent webhook message", slog.Int("clips", len(chunk)))
	}
	return nil
}

func chunkIDs(ids []string, size int) [][]string {
	var chunks [][]string
	for len(ids) > size {
		chunks = append(chunks, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		chunks = append(chunks, ids)
	}
	return chunks
}

func missingIDs(requested []string, found []store.Clip) []string {
	have := make(map[string]struct{}, len(found))
	for _, c := range found {
		have[c.ID] = struct{}{}
	}
	var missing []string
	for _, id := range requested {
		if _, ok := have[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// buildMessage assembles the webhook payload: a summary line plus one rich
// embed per clip. The avatar override uses the watched broadcaster's profile
// image when one of the clips carries it.
func buildMessage(ch config.Channel, records []store.Clip) discord.Message {
	content := fmt.Sprintf("%d new clips were created!", len(records))
	if len(records) == 1 {
		content = "A new clip was created!"
	}

	avatar := ""
	for _, c := range records {
		if c.BroadcasterID == ch.BroadcasterID && c.Broadcaster != nil {
			avatar = c.Broadcaster.ProfileImageURL
			break
		}
	}

	embeds := make([]discord.Embed, 0, len(records))
	for _, c := range records {
		embeds = append(embeds, buildEmbed(c))
	}
	return discord.Message{
		Content:   content,
		Username:  ch.ProfileName(),
		AvatarURL: avatar,
		Embeds:    embeds,
	}
}

func buildEmbed(c store.Clip) discord.Embed {
	e := discord.Embed{
		Title:       c.Title,
		Description: embedDescription,
		URL:         c.URL,
		Timestamp:   c.ClipCreatedAt.UTC().Format(time.RFC3339),
		Image:       &discord.EmbedImage{URL: c.ThumbnailURL},
	}
	if c.Creator != nil {
		e.Author = &discord.EmbedAuthor{
			Name:    c.Creator.Username,
			URL:     "https://www.twitch.tv/" + c.Creator.Username,
			IconURL: c.Creator.ProfileImageURL,
		}
		e.Fields = append(e.Fields, discord.EmbedField{Name: "Creator", Value: c.Creator.Username, Inline: true})
	}
	if c.Game != nil {
		// Game first, creator second, source last; keep the field order stable.
		fields := []discord.EmbedField{{Name: "Game", Value: c.Game.Name, Inline: true}}
		e.Fields = append(fields, e.Fields...)
	}
	e.Fields = append(e.Fields, discord.EmbedField{Name: "Source", Value: embedSourceLink, Inline: true})
	if c.Broadcaster != nil {
		e.Footer = &discord.EmbedFooter{Text: embedFooterText, IconURL: c.Broadcaster.ProfileImageURL}
	}
	return e
}
