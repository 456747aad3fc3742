package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/pushsub/internal/model"
)

// Feed is a feed record. It implements push.Feed so a subscribe call can
// flag it as push-enabled.
type Feed struct {
	ID             string `json:"id"`
	URL            string `json:"url"`
	PushEnabled    bool   `json:"push_enabled"`
	SubscriptionID string `json:"subscription_id,omitempty"`

	store *Store
}

// FeedID returns the feed's persisted ID.
func (f *Feed) FeedID() string {
	return f.ID
}

// SetupPush marks the feed push-enabled and links it to sub.
func (f *Feed) SetupPush(ctx context.Context, sub model.Subscription) error {
	result, err := f.store.db.ExecContext(ctx, `
		UPDATE feeds
		SET push_enabled = 1, subscription_id = ?, updated_at = ?
		WHERE id = ?
	`, sub.ID, f.store.now(), f.ID)
	if err != nil {
		return fmt.Errorf("setup push: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("setup push: rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("setup push: feed %s: %w", f.ID, model.ErrNotFound)
	}

	f.PushEnabled = true
	f.SubscriptionID = sub.ID
	return nil
}

// EnsureFeed returns the feed for url, inserting it when absent.
func (s *Store) EnsureFeed(ctx context.Context, url string) (*Feed, error) {
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feeds (id, url, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(url) DO NOTHING
	`, s.ids.Generate(), url, now, now)
	if err != nil {
		return nil, fmt.Errorf("ensure feed: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, url, push_enabled, subscription_id
		FROM feeds
		WHERE url = ?
	`, url)
	return s.scanFeed(row)
}

// LoadFeed retrieves a feed by ID. Returns model.ErrNotFound if absent.
func (s *Store) LoadFeed(ctx context.Context, id string) (*Feed, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, url, push_enabled, subscription_id
		FROM feeds
		WHERE id = ?
	`, id)
	return s.scanFeed(row)
}

func (s *Store) scanFeed(row scanner) (*Feed, error) {
	f := &Feed{store: s}
	var pushEnabled int
	err := row.Scan(&f.ID, &f.URL, &pushEnabled, &f.SubscriptionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan feed: %w", err)
	}
	f.PushEnabled = pushEnabled != 0
	return f, nil
}
