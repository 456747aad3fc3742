package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/pushsub/internal/model"
)

const subscriptionColumns = `id, hub, topic, feed_id, verified, verify_token, lease_expires,
	lease_seconds, active, denied_reason, last_status, created_at, updated_at`

// GetOrCreate returns the subscription for (hub, topic), inserting it when
// absent. created reports whether this call inserted the row.
//
// The insert uses ON CONFLICT DO NOTHING inside a transaction, so two racing
// callers for the same pair end up with the same row and only one sees
// created=true.
//
// A feed has at most one subscription. When feedID already belongs to a
// subscription on a different (hub, topic) - the feed moved hubs - that row
// is rehomed to the new pair and reset to pending; its ID is kept.
func (s *Store) GetOrCreate(ctx context.Context, hub, topic, feedID string) (sub model.Subscription, created bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Subscription{}, false, fmt.Errorf("get or create: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	sub, err = selectByHubTopic(ctx, tx, hub, topic)
	if err == nil {
		if err := tx.Commit(); err != nil {
			return model.Subscription{}, false, fmt.Errorf("get or create: commit (existing): %w", err)
		}
		return sub, false, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return model.Subscription{}, false, fmt.Errorf("get or create: %w", err)
	}

	now := s.now()
	result, err := tx.ExecContext(ctx, `
		INSERT INTO subscriptions
		(id, hub, topic, feed_id, lease_expires, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, s.ids.Generate(), hub, topic, feedID, now, now, now)
	if err != nil {
		return model.Subscription{}, false, fmt.Errorf("get or create: insert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return model.Subscription{}, false, fmt.Errorf("get or create: rows affected: %w", err)
	}
	created = rowsAffected > 0

	if !created {
		// Conflict on feed_id: move the feed's subscription to this pair.
		_, err = tx.ExecContext(ctx, `
			UPDATE subscriptions
			SET hub = ?, topic = ?, verified = 0, verify_token = '', active = 1,
				denied_reason = '', last_status = 0, updated_at = ?
			WHERE feed_id = ?
		`, hub, topic, now, feedID)
		if err != nil {
			return model.Subscription{}, false, fmt.Errorf("get or create: rehome feed: %w", err)
		}
	}

	sub, err = selectByHubTopic(ctx, tx, hub, topic)
	if err != nil {
		return model.Subscription{}, false, fmt.Errorf("get or create: select: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.Subscription{}, false, fmt.Errorf("get or create: commit: %w", err)
	}
	return sub, created, nil
}

// Save writes every mutable field of sub in a single UPDATE and bumps
// updated_at. Returns model.ErrNotFound if sub.ID does not exist.
func (s *Store) Save(ctx context.Context, sub model.Subscription) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE subscriptions
		SET hub = ?, topic = ?, feed_id = ?, verified = ?, verify_token = ?,
			lease_expires = ?, lease_seconds = ?, active = ?, denied_reason = ?,
			last_status = ?, updated_at = ?
		WHERE id = ?
	`,
		sub.Hub,
		sub.Topic,
		sub.FeedID,
		boolToInt(sub.Verified),
		sub.VerifyToken,
		toNanos(sub.LeaseExpires),
		sub.LeaseSeconds,
		boolToInt(sub.Active),
		sub.DeniedReason,
		sub.LastStatus,
		s.now(),
		sub.ID,
	)
	if err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("save subscription: rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("save subscription %s: %w", sub.ID, model.ErrNotFound)
	}
	return nil
}

// FindByHubTopic retrieves the subscription for (hub, topic).
// Returns model.ErrNotFound if absent.
func (s *Store) FindByHubTopic(ctx context.Context, hub, topic string) (model.Subscription, error) {
	return selectByHubTopic(ctx, s.db, hub, topic)
}

// FindByID retrieves a subscription by its persisted ID.
// Returns model.ErrNotFound if absent.
func (s *Store) FindByID(ctx context.Context, id string) (model.Subscription, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE id = ?
	`, id)
	return scanSubscription(row)
}

// FindExpiringBefore returns active subscriptions whose lease ends before t,
// soonest first.
func (s *Store) FindExpiringBefore(ctx context.Context, t time.Time) ([]model.Subscription, error) {
	return s.querySubscriptions(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE active = 1 AND lease_expires < ?
		ORDER BY lease_expires ASC, id COLLATE BINARY ASC
	`, toNanos(t))
}

// FindPendingSince returns active, unverified subscriptions last written
// before t, oldest first. These are handshakes the hub never completed.
func (s *Store) FindPendingSince(ctx context.Context, t time.Time) ([]model.Subscription, error) {
	return s.querySubscriptions(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE active = 1 AND verified = 0 AND updated_at < ?
		ORDER BY updated_at ASC, id COLLATE BINARY ASC
	`, toNanos(t))
}

// List returns all subscriptions in creation order.
// Returns an empty slice (not nil) when the store is empty.
func (s *Store) List(ctx context.Context) ([]model.Subscription, error) {
	return s.querySubscriptions(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		ORDER BY created_at ASC, id COLLATE BINARY ASC
	`)
}

// Delete removes a subscription row. The push core never calls this; it is
// exposed for operators. Returns model.ErrNotFound if absent.
func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete subscription: rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("delete subscription %s: %w", id, model.ErrNotFound)
	}
	return nil
}

func (s *Store) querySubscriptions(ctx context.Context, query string, args ...any) ([]model.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []model.Subscription{}
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	return subs, nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func selectByHubTopic(ctx context.Context, q querier, hub, topic string) (model.Subscription, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE hub = ? AND topic = ?
	`, hub, topic)
	return scanSubscription(row)
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row scanner) (model.Subscription, error) {
	var (
		sub                            model.Subscription
		verified, active               int
		leaseExpires, created, updated int64
	)
	err := row.Scan(
		&sub.ID,
		&sub.Hub,
		&sub.Topic,
		&sub.FeedID,
		&verified,
		&sub.VerifyToken,
		&leaseExpires,
		&sub.LeaseSeconds,
		&active,
		&sub.DeniedReason,
		&sub.LastStatus,
		&created,
		&updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Subscription{}, model.ErrNotFound
	}
	if err != nil {
		return model.Subscription{}, fmt.Errorf("scan subscription: %w", err)
	}

	sub.Verified = verified != 0
	sub.Active = active != 0
	sub.LeaseExpires = fromNanos(leaseExpires)
	sub.CreatedAt = fromNanos(created)
	sub.UpdatedAt = fromNanos(updated)
	return sub, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
