package store

import (
	"context"
	"fmt"

	"github.com/roach88/wot/internal/domain"
)

const subscriptionColumns = `id, event_id, notify_url, created, modified`

// CreateSubscription binds a callback URL to an event.
func (s *Store) CreateSubscription(ctx context.Context, sub domain.Subscription) (domain.Subscription, error) {
	if err := domain.ValidateNotifyURL(sub.NotifyURL); err != nil {
		return domain.Subscription{}, fmt.Errorf("create subscription: %w: %v", ErrInvalid, err)
	}

	now := s.timestamp()
	sub.Created, sub.Modified = now, now

	res, err := s.db.NamedExecContext(ctx, `
		INSERT INTO subscriptions (event_id, notify_url, created, modified)
		VALUES (:event_id, :notify_url, :created, :modified)
	`, sub)
	if err != nil {
		if isConstraint(err) {
			return domain.Subscription{}, fmt.Errorf("create subscription: event %d: %w", sub.EventID, ErrNotFound)
		}
		return domain.Subscription{}, fmt.Errorf("create subscription: %w", err)
	}

	sub.ID, err = res.LastInsertId()
	if err != nil {
		return domain.Subscription{}, fmt.Errorf("create subscription: last insert id: %w", err)
	}
	return sub, nil
}

// UpdateSubscription replaces the callback URL.
func (s *Store) UpdateSubscription(ctx context.Context, sub domain.Subscription) (domain.Subscription, error) {
	if err := domain.ValidateNotifyURL(sub.NotifyURL); err != nil {
		return domain.Subscription{}, fmt.Errorf("update subscription: %w: %v", ErrInvalid, err)
	}
	sub.Modified = s.timestamp()

	res, err := s.db.NamedExecContext(ctx, `
		UPDATE subscriptions SET notify_url = :notify_url, modified = :modified
		WHERE id = :id
	`, sub)
	if err != nil {
		return domain.Subscription{}, fmt.Errorf("update subscription %d: %w", sub.ID, err)
	}
	if err := expectOne(res, "subscription", sub.ID); err != nil {
		return domain.Subscription{}, err
	}
	return s.Subscription(ctx, sub.ID)
}

// DeleteSubscription removes a subscription and its delivery log rows.
func (s *Store) DeleteSubscription(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete subscription %d: %w", id, err)
	}
	return expectOne(res, "subscription", id)
}

// Subscription returns a subscription by id.
func (s *Store) Subscription(ctx context.Context, id int64) (domain.Subscription, error) {
	var sub domain.Subscription
	err := s.db.GetContext(ctx, &sub, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`, id)
	if err != nil {
		return domain.Subscription{}, notFound(err, "subscription", id)
	}
	return sub, nil
}

// ListSubscriptions returns an event's subscriptions in creation order.
func (s *Store) ListSubscriptions(ctx context.Context, eventID int64) ([]domain.Subscription, error) {
	out := []domain.Subscription{}
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE event_id = ? ORDER BY id ASC`,
		eventID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return out, nil
}
