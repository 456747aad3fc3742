package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pushsub/internal/model"
)

func TestEnsureFeed_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	f1, err := s.EnsureFeed(ctx, testTopic)
	require.NoError(t, err)
	assert.NotEmpty(t, f1.ID)
	assert.Equal(t, testTopic, f1.URL)
	assert.False(t, f1.PushEnabled)

	f2, err := s.EnsureFeed(ctx, testTopic)
	require.NoError(t, err)
	assert.Equal(t, f1.ID, f2.ID)
	assert.Equal(t, f1.FeedID(), f2.FeedID())
}

func TestFeed_SetupPush(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	feed, err := s.EnsureFeed(ctx, testTopic)
	require.NoError(t, err)
	sub, _, err := s.GetOrCreate(ctx, testHub, testTopic, feed.FeedID())
	require.NoError(t, err)

	require.NoError(t, feed.SetupPush(ctx, sub))
	assert.True(t, feed.PushEnabled)
	assert.Equal(t, sub.ID, feed.SubscriptionID)

	loaded, err := s.LoadFeed(ctx, feed.ID)
	require.NoError(t, err)
	assert.True(t, loaded.PushEnabled)
	assert.Equal(t, sub.ID, loaded.SubscriptionID)
}

func TestFeed_SetupPushMissingFeed(t *testing.T) {
	s := createTestStore(t)

	feed := &Feed{ID: "missing", store: s}
	err := feed.SetupPush(context.Background(), model.Subscription{ID: "sub-1"})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestLoadFeed_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.LoadFeed(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestFixedGenerator(t *testing.T) {
	gen := NewFixedGenerator("a", "b")
	assert.Equal(t, "a", gen.Generate())
	assert.Equal(t, "b", gen.Generate())
	assert.Panics(t, func() { gen.Generate() })
}

func TestUUIDv7Generator_Unique(t *testing.T) {
	gen := UUIDv7Generator{}
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := gen.Generate()
		assert.Len(t, id, 36)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}
