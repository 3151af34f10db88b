// Package store provides typed access to the persisted entities (users, games,
// clips, access tokens) over database/sql. All write paths stamp creation and
// update instants explicitly so the side effect stays visible at the call site
// instead of hiding in schema defaults or triggers.
package store

import (
	"database/sql"
	"time"
)

// Store wraps a database handle with a clock used for record stamping.
type Store struct {
	DB *sql.DB

	// now is the stamping clock; overridable in tests.
	now func() time.Time
}

// New returns a Store stamping records with the UTC wall clock.
func New(db *sql.DB) *Store {
	return &Store{DB: db, now: func() time.Time { return time.Now().UTC() }}
}

// stamp returns the instant to record as created_at/updated_at for an insert
// performed now.
func (s *Store) stamp() time.Time {
	return s.now()
}

// User is a platform account referenced by clips as broadcaster or creator.
type User struct {
	ID              string
	Username        string
	ProfileImageURL string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Game is a catalog entry referenced by clips.
type Game struct {
	ID        string
	Name      string
	BoxArtURL string
	IgdbID    sql.NullString
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clip is a persisted clip record. Broadcaster, Creator, and Game are only
// populated by the joined read path (ClipsByIDs).
type Clip struct {
	ID            string
	Title         string
	BroadcasterID string
	CreatorID     string
	GameID        string
	URL           string
	ThumbnailURL  string
	ClipCreatedAt time.Time
	ViewCount     int
	Duration      float64
	VodOffset     sql.NullInt32
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Broadcaster *User
	Creator     *User
	Game        *Game
}

// AccessToken is a persisted upstream credential. Rows are never deleted;
// superseded tokens are marked expired.
type AccessToken struct {
	Token     string
	ExpiresAt time.Time
	IsExpired bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
