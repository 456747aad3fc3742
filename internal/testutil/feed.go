package testutil

import (
	"context"
	"sync"

	"github.com/roach88/pushsub/internal/model"
)

// MemoryFeed is an in-memory feed collaborator. It satisfies push.Feed.
type MemoryFeed struct {
	ID string

	// Err, when set, is returned from SetupPush.
	Err error

	mu     sync.Mutex
	setups []model.Subscription
}

// NewMemoryFeed creates a feed with the given ID.
func NewMemoryFeed(id string) *MemoryFeed {
	return &MemoryFeed{ID: id}
}

func (f *MemoryFeed) FeedID() string {
	return f.ID
}

func (f *MemoryFeed) SetupPush(ctx context.Context, sub model.Subscription) error {
	if f.Err != nil {
		return f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setups = append(f.setups, sub)
	return nil
}

// SetupCount returns how many times SetupPush succeeded.
func (f *MemoryFeed) SetupCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.setups)
}
