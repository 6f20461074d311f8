package engine

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"luggo/internal/domain"
	"luggo/internal/engine/auth"
	"luggo/internal/events"
	"luggo/internal/repo"
)

// GrantSubscription activates a plan for an executor. Days run from now.
func (e Engine) GrantSubscription(ctx context.Context, adminID, userID, plan string) (s domain.Subscription, err error) {
	defer func() { e.observe("grant_subscription", err) }()
	p, ok := e.Config.Subscriptions.Plans[plan]
	if !ok {
		return domain.Subscription{}, invalid("plan", "unknown plan "+plan+", want one of "+strings.Join(e.PlanNames(), ", "))
	}
	admin, err := e.GetUser(ctx, adminID)
	if err != nil {
		return domain.Subscription{}, err
	}
	if err := auth.Require(admin.Role, auth.CapGrantSubs); err != nil {
		return domain.Subscription{}, err
	}
	holder, err := e.GetUser(ctx, userID)
	if err != nil {
		return domain.Subscription{}, err
	}
	if err := auth.Require(holder.Role, auth.CapHoldContracts); err != nil {
		return domain.Subscription{}, err
	}
	now := e.now().UTC()
	s = domain.Subscription{
		ID:        newID(),
		UserID:    holder.ID,
		Plan:      plan,
		Status:    domain.SubscriptionActive,
		StartedAt: now.Format(time.RFC3339),
		ExpiresAt: now.AddDate(0, 0, p.Days).Format(time.RFC3339),
	}
	tx, err := e.Repo.BeginTx(ctx)
	if err != nil {
		return domain.Subscription{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertSubscription(ctx, tx, s); err != nil {
		return domain.Subscription{}, err
	}
	evt, err := e.appendEvent(ctx, tx, domain.EventSubscriptionGranted, "subscription", s.ID, adminID, events.Payload{
		"userId":    s.UserID,
		"plan":      s.Plan,
		"expiresAt": s.ExpiresAt,
	})
	if err != nil {
		return domain.Subscription{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Subscription{}, err
	}
	e.publish(ctx, evt)
	return s, nil
}

// ActiveSubscription returns the user's current subscription.
func (e Engine) ActiveSubscription(ctx context.Context, userID string) (domain.Subscription, error) {
	s, err := e.Repo.ActiveSubscription(ctx, nil, userID, e.stamp())
	return s, lookup(err, "subscription for user", userID)
}

// ExpireSubscriptions marks every active subscription past its expiry as
// expired and returns them.
func (e Engine) ExpireSubscriptions(ctx context.Context, now time.Time) (expired []domain.Subscription, err error) {
	defer func() { e.observe("expire_subscriptions", err) }()
	tx, err := e.Repo.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	overdue, err := e.Repo.OverdueSubscriptions(ctx, tx, now.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	var evts []domain.Event
	for _, s := range overdue {
		if err := e.Repo.ExpireSubscription(ctx, tx, s.ID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				continue
			}
			return nil, err
		}
		evt, err := e.appendEvent(ctx, tx, domain.EventSubscriptionExpired, "subscription", s.ID, "system", events.Payload{
			"userId":    s.UserID,
			"plan":      s.Plan,
			"expiresAt": s.ExpiresAt,
		})
		if err != nil {
			return nil, err
		}
		s.Status = domain.SubscriptionExpired
		expired = append(expired, s)
		evts = append(evts, evt)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	e.publish(ctx, evts...)
	if len(expired) > 0 {
		e.logger().Info("subscriptions expired", "count", len(expired))
	}
	return expired, nil
}

// PlanNames lists the configured plans in name order.
func (e Engine) PlanNames() []string {
	names := make([]string, 0, len(e.Config.Subscriptions.Plans))
	for name := range e.Config.Subscriptions.Plans {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
