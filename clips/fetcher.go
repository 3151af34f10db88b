package clips

import (
	"context"
	"fmt"
	"time"

	"github.com/onnwee/clipherald/twitchapi"
)

// clipTimeLayout is the fixed timestamp format the upstream uses for clip
// creation instants.
const clipTimeLayout = "2006-01-02T15:04:05Z"

// maxFetchPages bounds a single fetch so a cursor chain that never terminates
// cannot grow without limit.
const maxFetchPages = 50

// ClipLister is the single Helix call the fetcher depends on.
type ClipLister interface {
	GetClips(ctx context.Context, p twitchapi.ClipParams) ([]twitchapi.Clip, string, error)
}

// Fetcher retrieves new clips for one broadcaster via time-windowed,
// cursor-paginated requests.
type Fetcher struct {
	Helix ClipLister

	now func() time.Time
}

func (f *Fetcher) clock() time.Time {
	if f.now != nil {
		return f.now()
	}
	return time.Now().UTC()
}

// FetchNewClips pages through clips created since the last known clip. The
// window starts at the last known clip time (or January 1st of the current
// year on a first run, to bound the history scanned) and ends at the start of
// tomorrow to tolerate clock skew against the upstream. Pages accumulate until
// the cursor runs out; each follow-up page narrows the window start to the
// latest creation time seen so far.
func (f *Fetcher) FetchNewClips(ctx context.Context, broadcasterID, lastClipID string, lastClipAt time.Time) ([]twitchapi.Clip, error) {
	now := f.clock()
	start := lastClipAt
	if start.IsZero() {
		start = time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	end := now.Truncate(24 * time.Hour).Add(24 * time.Hour)

	var out []twitchapi.Clip
	cursor := ""
	for page := 0; ; page++ {
		if page >= maxFetchPages {
			return nil, fmt.Errorf("clip fetch for broadcaster %s did not terminate after %d pages", broadcasterID, maxFetchPages)
		}

		clips, next, err := f.Helix.GetClips(ctx, twitchapi.ClipParams{
			BroadcasterID: broadcasterID,
			First:         twitchapi.MaxPageSize,
			StartedAt:     start,
			EndedAt:       end,
			After:         cursor,
		})
		if err != nil {
			return nil, fmt.Errorf("get clips: %w", err)
		}

		// The first page re-surfacing only the clip we already know about
		// means nothing new was created.
		if page == 0 && (len(clips) == 0 || (len(clips) == 1 && clips[0].ID == lastClipID)) {
			return nil, nil
		}
		if len(clips) == 0 {
			return out, nil
		}

		out = append(out, clips...)
		if next == "" {
			return out, nil
		}
		if latest, ok := latestCreationTime(clips); ok {
			start = latest
		}
		cursor = next
	}
}

// latestCreationTime returns the maximum parseable creation instant in a page.
func latestCreationTime(clips []twitchapi.Clip) (time.Time, bool) {
	var latest time.Time
	found := false
	for _, c := range clips {
		t, err := time.Parse(clipTimeLayout, c.CreatedAt)
		if err != nil {
			continue
		}
		if !found || t.After(latest) {
			latest = t
			found = true
		}
	}
	return latest, found
}
