// Package presence tracks ephemeral vendor online/offline state with
// heartbeat expiry. State lives in Redis with per-vendor keys; staleness
// is applied lazily on every read and eagerly by the sweep.
package presence

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/freshhhy/rfq-engine/internal/metrics"
	"github.com/freshhhy/rfq-engine/pkg/clock"
	"github.com/freshhhy/rfq-engine/pkg/model"
)

// Store is the presence persistence contract, satisfied by
// store.HybridStore's Redis side.
type Store interface {
	PutPresence(ctx context.Context, p model.VendorPresence) error
	GetPresence(ctx context.Context, vendorID string) (*model.VendorPresence, error)
	OnlineVendorIDs(ctx context.Context) ([]string, error)
	TimeoutPresence(ctx context.Context, vendorID string, cutoff time.Time) (*model.VendorPresence, bool, error)
}

// Publisher receives presence-changed events. Failures are the
// publisher's problem; the tracker never propagates them.
type Publisher interface {
	PublishPresenceChange(ctx context.Context, payload model.StatusChangedPayload)
}

// Tracker maintains vendor presence records.
type Tracker struct {
	store   Store
	events  Publisher
	clock   clock.Clock
	timeout time.Duration
	logger  *zap.Logger
}

func NewTracker(store Store, events Publisher, clk clock.Clock, timeout time.Duration, logger *zap.Logger) *Tracker {
	if timeout <= 0 {
		timeout = model.HeartbeatTimeout
	}
	return &Tracker{
		store:   store,
		events:  events,
		clock:   clk,
		timeout: timeout,
		logger:  logger,
	}
}

// Timeout returns the configured heartbeat timeout.
func (t *Tracker) Timeout() time.Duration { return t.timeout }

// MarkOnline upserts the vendor's presence: online, fresh heartbeat,
// replaced product set. Idempotent.
func (t *Tracker) MarkOnline(ctx context.Context, vendorID, sessionToken string, productIDs []string) error {
	now := t.clock.Now()

	prev, err := t.store.GetPresence(ctx, vendorID)
	if err != nil {
		return err
	}

	p := model.VendorPresence{
		VendorID:            vendorID,
		IsOnline:            true,
		LastHeartbeat:       now,
		AvailableProductIDs: productIDs,
		SessionToken:        sessionToken,
		ConnectedAt:         now,
	}
	if prev != nil && prev.IsOnline {
		p.ConnectedAt = prev.ConnectedAt
	}

	if err := t.store.PutPresence(ctx, p); err != nil {
		return err
	}

	if prev == nil || !prev.IsOnline {
		t.publishChange(ctx, vendorID, "online", "")
	}
	t.logger.Info("presence.online",
		zap.String("vendor_id", vendorID),
		zap.Int("products", len(productIDs)))
	metrics.IncPresenceEvent("online")
	return nil
}

// MarkOffline flips the vendor offline and clears the session. Safe to
// call twice; the second call is a no-op.
func (t *Tracker) MarkOffline(ctx context.Context, vendorID, reason string) error {
	p, err := t.store.GetPresence(ctx, vendorID)
	if err != nil {
		return err
	}
	if p == nil || !p.IsOnline {
		return nil
	}

	p.IsOnline = false
	p.SessionToken = ""
	if err := t.store.PutPresence(ctx, *p); err != nil {
		return err
	}

	t.publishChange(ctx, vendorID, "offline", reason)
	t.logger.Info("presence.offline",
		zap.String("vendor_id", vendorID),
		zap.String("reason", reason))
	metrics.IncPresenceEvent("offline")
	return nil
}

// Heartbeat refreshes the vendor's heartbeat. A heartbeat from a vendor
// the tracker believes offline is treated as an implicit MarkOnline with
// the previously known product set, self-healing a missed login event.
func (t *Tracker) Heartbeat(ctx context.Context, vendorID string) error {
	p, err := t.store.GetPresence(ctx, vendorID)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("vendor %s has no presence record: %w", vendorID, model.ErrNotFound)
	}

	wasOffline := !p.IsOnline
	p.IsOnline = true
	p.LastHeartbeat = t.clock.Now()
	if err := t.store.PutPresence(ctx, *p); err != nil {
		return err
	}

	if wasOffline {
		t.publishChange(ctx, vendorID, "online", "heartbeat")
		t.logger.Info("presence.resurrected", zap.String("vendor_id", vendorID))
	}
	return nil
}

// SweepTimeouts marks every vendor offline whose heartbeat is older than
// the timeout. The store re-checks the heartbeat transactionally before
// flipping, so a heartbeat racing the sweep wins. Returns the vendor ids
// that were timed out.
func (t *Tracker) SweepTimeouts(ctx context.Context) ([]string, error) {
	ids, err := t.store.OnlineVendorIDs(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := t.clock.Now().Add(-t.timeout)
	var timedOut []string
	for _, vendorID := range ids {
		_, flipped, err := t.store.TimeoutPresence(ctx, vendorID, cutoff)
		if err != nil {
			t.logger.Warn("presence.sweep_vendor_failed",
				zap.String("vendor_id", vendorID), zap.Error(err))
			continue
		}
		if flipped {
			timedOut = append(timedOut, vendorID)
			t.publishChange(ctx, vendorID, "offline", "timeout")
			metrics.IncPresenceEvent("timeout")
		}
	}

	if len(timedOut) > 0 {
		t.logger.Info("presence.sweep_complete",
			zap.Int("timed_out", len(timedOut)),
			zap.Strings("vendor_ids", timedOut))
	}
	if count, err := t.OnlineVendorCount(ctx); err == nil {
		metrics.SetOnlineVendors(count)
	}
	return timedOut, nil
}

// OnlineVendorsWithAnyOf returns vendors currently online whose
// available-product set intersects productIDs. Staleness is applied here
// even if the sweep has not run yet. Results are ordered by vendor id so
// matching stays deterministic for a given presence snapshot.
func (t *Tracker) OnlineVendorsWithAnyOf(ctx context.Context, productIDs []string) ([]model.VendorPresence, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}

	ids, err := t.store.OnlineVendorIDs(ctx)
	if err != nil {
		return nil, err
	}

	now := t.clock.Now()
	var out []model.VendorPresence
	for _, vendorID := range ids {
		p, err := t.store.GetPresence(ctx, vendorID)
		if err != nil {
			return nil, err
		}
		if p == nil || !p.OnlineAt(now, t.timeout) {
			continue
		}
		if len(p.MatchedProducts(productIDs)) == 0 {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

// OnlineVendorCount counts vendors online under the staleness rule.
func (t *Tracker) OnlineVendorCount(ctx context.Context) (int, error) {
	ids, err := t.store.OnlineVendorIDs(ctx)
	if err != nil {
		return 0, err
	}
	now := t.clock.Now()
	count := 0
	for _, vendorID := range ids {
		p, err := t.store.GetPresence(ctx, vendorID)
		if err != nil {
			return 0, err
		}
		if p != nil && p.OnlineAt(now, t.timeout) {
			count++
		}
	}
	return count, nil
}

func (t *Tracker) publishChange(ctx context.Context, vendorID, state, reason string) {
	if t.events == nil {
		return
	}
	t.events.PublishPresenceChange(ctx, model.StatusChangedPayload{
		EntityKind: "vendor",
		EntityID:   vendorID,
		NewState:   state,
		Reason:     reason,
	})
}
