package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/freshhhy/rfq-engine/internal/store"
	"github.com/freshhhy/rfq-engine/pkg/clock"
	"github.com/freshhhy/rfq-engine/pkg/model"
)

type capturingPublisher struct {
	mu      sync.Mutex
	changes []model.StatusChangedPayload
}

func (p *capturingPublisher) PublishPresenceChange(ctx context.Context, payload model.StatusChangedPayload) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, payload)
}

func (p *capturingPublisher) states() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.changes))
	for i, c := range p.changes {
		out[i] = c.NewState
	}
	return out
}

func newTestTracker(t *testing.T) (*Tracker, *capturingPublisher, *clock.Fake, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	st, err := store.NewHybrid(mr.Addr(), 0, "", "", store.PGPoolConfig{}, zap.NewNop())
	require.NoError(t, err)

	clk := clock.NewFake(time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC))
	pub := &capturingPublisher{}
	return NewTracker(st, pub, clk, model.HeartbeatTimeout, zap.NewNop()), pub, clk, mr
}

func TestMarkOnlinePublishesOnce(t *testing.T) {
	tr, pub, _, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.MarkOnline(ctx, "v1", "tok", []string{"p1"}))
	require.NoError(t, tr.MarkOnline(ctx, "v1", "tok", []string{"p1", "p2"}))

	// Only the offline->online transition emits an event.
	assert.Equal(t, []string{"online"}, pub.states())

	count, err := tr.OnlineVendorCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMarkOnlinePreservesConnectedAt(t *testing.T) {
	tr, _, clk, _ := newTestTracker(t)
	ctx := context.Background()
	first := clk.Now()

	require.NoError(t, tr.MarkOnline(ctx, "v1", "tok", []string{"p1"}))
	clk.Advance(10 * time.Second)
	require.NoError(t, tr.MarkOnline(ctx, "v1", "tok", []string{"p1"}))

	vendors, err := tr.OnlineVendorsWithAnyOf(ctx, []string{"p1"})
	require.NoError(t, err)
	require.Len(t, vendors, 1)
	assert.True(t, vendors[0].ConnectedAt.Equal(first))
	assert.True(t, vendors[0].LastHeartbeat.Equal(clk.Now()))
}

func TestMarkOfflineIdempotent(t *testing.T) {
	tr, pub, _, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.MarkOnline(ctx, "v1", "tok", nil))
	require.NoError(t, tr.MarkOffline(ctx, "v1", "logout"))
	require.NoError(t, tr.MarkOffline(ctx, "v1", "logout"))
	require.NoError(t, tr.MarkOffline(ctx, "never-seen", "logout"))

	assert.Equal(t, []string{"online", "offline"}, pub.states())
}

func TestHeartbeatUnknownVendor(t *testing.T) {
	tr, _, _, _ := newTestTracker(t)
	err := tr.Heartbeat(context.Background(), "ghost")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestHeartbeatResurrectsOfflineVendor(t *testing.T) {
	tr, pub, _, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.MarkOnline(ctx, "v1", "tok", []string{"p1"}))
	require.NoError(t, tr.MarkOffline(ctx, "v1", "logout"))
	require.NoError(t, tr.Heartbeat(ctx, "v1"))

	assert.Equal(t, []string{"online", "offline", "online"}, pub.states())

	// The previously known product set survives the resurrection.
	vendors, err := tr.OnlineVendorsWithAnyOf(ctx, []string{"p1"})
	require.NoError(t, err)
	assert.Len(t, vendors, 1)
}

func TestStalenessAppliedLazily(t *testing.T) {
	tr, _, clk, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.MarkOnline(ctx, "v1", "tok", []string{"p1"}))

	// 30s since the last heartbeat: still online (boundary inclusive).
	clk.Advance(30 * time.Second)
	vendors, err := tr.OnlineVendorsWithAnyOf(ctx, []string{"p1"})
	require.NoError(t, err)
	assert.Len(t, vendors, 1)

	// 31s: stale, filtered out even though no sweep has run.
	clk.Advance(1 * time.Second)
	vendors, err = tr.OnlineVendorsWithAnyOf(ctx, []string{"p1"})
	require.NoError(t, err)
	assert.Empty(t, vendors)

	count, err := tr.OnlineVendorCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestSweepTimeouts(t *testing.T) {
	tr, pub, clk, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.MarkOnline(ctx, "stale", "tok", nil))
	clk.Advance(25 * time.Second)
	require.NoError(t, tr.MarkOnline(ctx, "fresh", "tok", nil))
	clk.Advance(10 * time.Second)

	timedOut, err := tr.SweepTimeouts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"stale"}, timedOut)

	states := pub.states()
	assert.Equal(t, "offline", states[len(states)-1])

	count, err := tr.OnlineVendorCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSweepThenHeartbeatResurrects(t *testing.T) {
	tr, _, clk, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.MarkOnline(ctx, "v1", "tok", []string{"p1"}))
	clk.Advance(time.Minute)

	_, err := tr.SweepTimeouts(ctx)
	require.NoError(t, err)

	require.NoError(t, tr.Heartbeat(ctx, "v1"))
	count, err := tr.OnlineVendorCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestOnlineVendorsWithAnyOfFiltersProducts(t *testing.T) {
	tr, _, _, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.MarkOnline(ctx, "v1", "tok", []string{"p1", "p2"}))
	require.NoError(t, tr.MarkOnline(ctx, "v2", "tok", []string{"p3"}))
	require.NoError(t, tr.MarkOnline(ctx, "v3", "tok", nil))

	vendors, err := tr.OnlineVendorsWithAnyOf(ctx, []string{"p2", "p3"})
	require.NoError(t, err)
	require.Len(t, vendors, 2)
	assert.Equal(t, "v1", vendors[0].VendorID)
	assert.Equal(t, "v2", vendors[1].VendorID)

	vendors, err = tr.OnlineVendorsWithAnyOf(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, vendors)
}
