package state

import (
	"context"
	"time"

	"storyweaver/harvester/internal/domain"
)

// Store persists the queue state and the resolved slug cache.
// Load returns nil without an error when there is no usable prior state.
type Store interface {
	Load(ctx context.Context) (*domain.QueueState, error)
	Save(ctx context.Context, state *domain.QueueState) error
	LoadSlugCache(ctx context.Context) (domain.SlugCache, error)
	RecordSlug(ctx context.Context, remoteID, slug string) error
	// Reset archives the current state and returns where it went, "" when there was none
	Reset(ctx context.Context) (string, error)
	Close() error
}

func archiveStamp(now time.Time) string {
	return now.UTC().Format("20060102T150405Z")
}
