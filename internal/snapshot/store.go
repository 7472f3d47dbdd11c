package snapshot

import (
	"context"
	"time"
)

// Record is one saved snapshot.
type Record struct {
	ID      string    `json:"id" yaml:"id"`
	Version int       `json:"version" yaml:"version"`
	Payload []byte    `json:"-" yaml:"-"`
	SavedAt time.Time `json:"saved_at" yaml:"saved_at"`
}

// Store persists encoded snapshots. Every Save appends a row; Latest returns
// the newest one.
type Store interface {
	Save(ctx context.Context, version int, payload []byte) (Record, error)
	// Latest returns nil, nil when nothing has been saved.
	Latest(ctx context.Context) (*Record, error)
	List(ctx context.Context, limit int) ([]Record, error)
	// Prune deletes all but the newest keep rows and returns how many went.
	Prune(ctx context.Context, keep int) (int64, error)
	Migrate(ctx context.Context) error
	Close() error
}
