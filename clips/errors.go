package clips

import (
	"fmt"
	"strings"
)

// UnknownGamesError reports that the upstream has no record for any of the
// requested game ids. Fatal for the affected channel's tick.
type UnknownGamesError struct {
	GameIDs []string
}

func (e *UnknownGamesError) Error() string {
	return fmt.Sprintf("twitch knows none of the requested games: [%s]", strings.Join(e.GameIDs, ","))
}

// UnknownUserError reports that the upstream has no record for a user id.
type UnknownUserError struct {
	UserID string
}

func (e *UnknownUserError) Error() string {
	return fmt.Sprintf("twitch has no user with id %q", e.UserID)
}

// MissingClipsError reports clips that were just ingested but could not be
// read back for dispatch. This indicates a store consistency bug and should
// not occur.
type MissingClipsError struct {
	ClipIDs []string
}

func (e *MissingClipsError) Error() string {
	return fmt.Sprintf("missing clips for ids: [%s]", strings.Join(e.ClipIDs, ","))
}
