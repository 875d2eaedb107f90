package dispatcher_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thetimii/dashboard-sub001/internal/dispatcher"
	"github.com/Thetimii/dashboard-sub001/internal/model"
)

type fakeProvider struct {
	name         string
	unconfigured bool
	err          error
	block        bool          // wait for ctx cancellation
	gate         chan struct{} // when set, wait for it to close

	calls atomic.Int32
	mu    sync.Mutex
	last  model.EmailMessage
}

func (f *fakeProvider) Name() string     { return f.name }
func (f *fakeProvider) Configured() bool { return !f.unconfigured }
func (f *fakeProvider) Ready() bool      { return true }
func (f *fakeProvider) Acquire() bool    { return true }

func (f *fakeProvider) SendEmail(ctx context.Context, msg model.EmailMessage) (string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.last = msg
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return "", f.err
	}
	return f.name + "-msg-1", nil
}

func (f *fakeProvider) lastMessage() model.EmailMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

var msg = model.EmailMessage{
	Subject:   "Welcome",
	HTML:      "<p>hi</p>",
	Text:      "hi",
	Recipient: "jane@example.com",
	DedupKey:  "evt-1",
}

func opts() dispatcher.Options {
	return dispatcher.Options{OpsInbox: "ops@example.com", AttemptTimeout: time.Second}
}

func TestSend_StopsAtFirstSuccess(t *testing.T) {
	a := &fakeProvider{name: "a", err: errors.New("boom")}
	b := &fakeProvider{name: "b"}
	c := &fakeProvider{name: "c"}

	d := dispatcher.NewDispatcher([]dispatcher.Provider{a, b, c}, opts())
	res := d.Send(context.Background(), msg, model.AudienceInternal)

	require.True(t, res.Succeeded)
	assert.Equal(t, "b", res.ProviderName)
	assert.Equal(t, "b-msg-1", res.ExternalID)
	assert.EqualValues(t, 1, a.calls.Load())
	assert.EqualValues(t, 1, b.calls.Load())
	assert.EqualValues(t, 0, c.calls.Load())
}

func TestSend_NoConfiguredProviders(t *testing.T) {
	t.Run("empty chain", func(t *testing.T) {
		d := dispatcher.NewDispatcher(nil, opts())
		res := d.Send(context.Background(), msg, model.AudienceInternal)

		assert.False(t, res.Succeeded)
		assert.True(t, model.IsConfiguration(res.Err))
		assert.Contains(t, res.ErrorDetail, "not configured")
	})

	t.Run("all unconfigured", func(t *testing.T) {
		u1 := &fakeProvider{name: "u1", unconfigured: true}
		u2 := &fakeProvider{name: "u2", unconfigured: true}
		d := dispatcher.NewDispatcher([]dispatcher.Provider{u1, u2}, opts())
		res := d.Send(context.Background(), msg, model.AudienceInternal)

		assert.False(t, res.Succeeded)
		assert.True(t, model.IsConfiguration(res.Err))
		assert.Zero(t, u1.calls.Load()+u2.calls.Load())
	})
}

func TestSend_SkipsUnconfigured(t *testing.T) {
	u := &fakeProvider{name: "u", unconfigured: true}
	b := &fakeProvider{name: "b"}

	d := dispatcher.NewDispatcher([]dispatcher.Provider{u, b}, opts())
	res := d.Send(context.Background(), msg, model.AudienceInternal)

	require.True(t, res.Succeeded)
	assert.Equal(t, "b", res.ProviderName)
	assert.Zero(t, u.calls.Load())
}

func TestSend_AllFailKeepsLastError(t *testing.T) {
	a := &fakeProvider{name: "a", err: errors.New("first")}
	b := &fakeProvider{name: "b", err: errors.New("second")}

	d := dispatcher.NewDispatcher([]dispatcher.Provider{a, b}, opts())
	res := d.Send(context.Background(), msg, model.AudienceInternal)

	assert.False(t, res.Succeeded)
	assert.Equal(t, "b", res.ProviderName)
	assert.Contains(t, res.ErrorDetail, "second")

	var pe *model.ProviderError
	require.ErrorAs(t, res.Err, &pe)
	assert.Equal(t, "b", pe.Provider)
}

func TestSend_Recipients(t *testing.T) {
	p := &fakeProvider{name: "p"}
	d := dispatcher.NewDispatcher([]dispatcher.Provider{p}, opts())

	res := d.Send(context.Background(), msg, model.AudienceInternal)
	require.True(t, res.Succeeded)
	assert.Equal(t, "ops@example.com", p.lastMessage().Recipient)

	res = d.Send(context.Background(), msg, model.AudienceCustomer)
	require.True(t, res.Succeeded)
	assert.Equal(t, "jane@example.com", p.lastMessage().Recipient)
}

func TestSend_MissingRecipients(t *testing.T) {
	p := &fakeProvider{name: "p"}

	noInbox := dispatcher.NewDispatcher([]dispatcher.Provider{p}, dispatcher.Options{})
	res := noInbox.Send(context.Background(), msg, model.AudienceInternal)
	assert.False(t, res.Succeeded)
	assert.True(t, model.IsConfiguration(res.Err))

	d := dispatcher.NewDispatcher([]dispatcher.Provider{p}, opts())
	anon := msg
	anon.Recipient = " "
	res = d.Send(context.Background(), anon, model.AudienceCustomer)
	assert.False(t, res.Succeeded)
	assert.True(t, model.IsValidation(res.Err))

	assert.Zero(t, p.calls.Load())
}

func TestSend_TimeoutMovesToNextProvider(t *testing.T) {
	slow := &fakeProvider{name: "slow", block: true}
	fast := &fakeProvider{name: "fast"}

	o := opts()
	o.AttemptTimeout = 50 * time.Millisecond
	d := dispatcher.NewDispatcher([]dispatcher.Provider{slow, fast}, o)

	start := time.Now()
	res := d.Send(context.Background(), msg, model.AudienceInternal)

	require.True(t, res.Succeeded)
	assert.Equal(t, "fast", res.ProviderName)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSend_CancelledContextFailsFast(t *testing.T) {
	a := &fakeProvider{name: "a"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := dispatcher.NewDispatcher([]dispatcher.Provider{a}, opts())
	res := d.Send(ctx, msg, model.AudienceInternal)

	assert.False(t, res.Succeeded)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Zero(t, a.calls.Load())
}

func newRedisGuard(t *testing.T) (*dispatcher.RedisDedupGuard, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return dispatcher.NewRedisDedupGuard(rdb, "test:"), mr
}

func TestSend_DedupSuppressesRepeat(t *testing.T) {
	guard, mr := newRedisGuard(t)
	p := &fakeProvider{name: "p"}

	o := opts()
	o.Dedup = guard
	o.DedupTTL = time.Hour
	d := dispatcher.NewDispatcher([]dispatcher.Provider{p}, o)

	first := d.Send(context.Background(), msg, model.AudienceCustomer)
	second := d.Send(context.Background(), msg, model.AudienceCustomer)

	require.True(t, first.Succeeded)
	assert.Equal(t, "p", first.ProviderName)
	require.True(t, second.Succeeded)
	assert.Equal(t, "dedup", second.ProviderName)
	assert.EqualValues(t, 1, p.calls.Load())

	v, err := mr.Get("test:email:customer:evt-1")
	require.NoError(t, err)
	assert.Equal(t, "sent", v)
	assert.Equal(t, time.Hour, mr.TTL("test:email:customer:evt-1"))

	// different audience is a different notification
	third := d.Send(context.Background(), msg, model.AudienceInternal)
	assert.Equal(t, "p", third.ProviderName)
	assert.EqualValues(t, 2, p.calls.Load())
}

func TestSend_DedupInFlightIsNotSuccess(t *testing.T) {
	guard, mr := newRedisGuard(t)
	p := &fakeProvider{name: "p", gate: make(chan struct{})}

	o := opts()
	o.Dedup = guard
	d := dispatcher.NewDispatcher([]dispatcher.Provider{p}, o)

	first := make(chan model.ProviderResult, 1)
	go func() { first <- d.Send(context.Background(), msg, model.AudienceCustomer) }()

	require.Eventually(t, func() bool { return p.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	v, err := mr.Get("test:email:customer:evt-1")
	require.NoError(t, err)
	assert.Equal(t, "pending", v)

	dup := d.Send(context.Background(), msg, model.AudienceCustomer)
	assert.False(t, dup.Succeeded)
	assert.Equal(t, "dedup", dup.ProviderName)
	assert.ErrorIs(t, dup.Err, dispatcher.ErrDuplicateInFlight)
	assert.EqualValues(t, 1, p.calls.Load())

	close(p.gate)
	require.True(t, (<-first).Succeeded)

	after := d.Send(context.Background(), msg, model.AudienceCustomer)
	assert.True(t, after.Succeeded)
	assert.Equal(t, "dedup", after.ProviderName)
	assert.EqualValues(t, 1, p.calls.Load())
}

func TestSend_DedupInFlightThenFailureAllowsRetry(t *testing.T) {
	guard, mr := newRedisGuard(t)
	gate := make(chan struct{})
	p := &fakeProvider{name: "p", err: errors.New("down"), gate: gate}

	o := opts()
	o.Dedup = guard
	d := dispatcher.NewDispatcher([]dispatcher.Provider{p}, o)

	first := make(chan model.ProviderResult, 1)
	go func() { first <- d.Send(context.Background(), msg, model.AudienceCustomer) }()
	require.Eventually(t, func() bool { return p.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	dup := d.Send(context.Background(), msg, model.AudienceCustomer)
	require.False(t, dup.Succeeded)

	close(gate)
	require.False(t, (<-first).Succeeded)
	assert.False(t, mr.Exists("test:email:customer:evt-1"))

	p.err = nil
	retry := d.Send(context.Background(), msg, model.AudienceCustomer)
	assert.True(t, retry.Succeeded)
	assert.Equal(t, "p", retry.ProviderName)
	assert.EqualValues(t, 2, p.calls.Load())
}

func TestSend_StalePendingClaimExpires(t *testing.T) {
	guard, mr := newRedisGuard(t)
	require.NoError(t, mr.Set("test:email:customer:evt-1", "pending"))
	mr.SetTTL("test:email:customer:evt-1", time.Minute)

	p := &fakeProvider{name: "p"}
	o := opts()
	o.Dedup = guard
	d := dispatcher.NewDispatcher([]dispatcher.Provider{p}, o)

	res := d.Send(context.Background(), msg, model.AudienceCustomer)
	require.ErrorIs(t, res.Err, dispatcher.ErrDuplicateInFlight)

	mr.FastForward(2 * time.Minute)

	res = d.Send(context.Background(), msg, model.AudienceCustomer)
	assert.True(t, res.Succeeded)
	assert.Equal(t, "p", res.ProviderName)
}

func TestSend_DedupReleasedOnFailure(t *testing.T) {
	guard, mr := newRedisGuard(t)
	p := &fakeProvider{name: "p", err: errors.New("down")}

	o := opts()
	o.Dedup = guard
	d := dispatcher.NewDispatcher([]dispatcher.Provider{p}, o)

	res := d.Send(context.Background(), msg, model.AudienceCustomer)
	require.False(t, res.Succeeded)
	assert.False(t, mr.Exists("test:email:customer:evt-1"))

	res = d.Send(context.Background(), msg, model.AudienceCustomer)
	require.False(t, res.Succeeded)
	assert.EqualValues(t, 2, p.calls.Load())
}

func TestSend_DedupFailsOpen(t *testing.T) {
	guard, mr := newRedisGuard(t)
	mr.Close()

	p := &fakeProvider{name: "p"}
	o := opts()
	o.Dedup = guard
	d := dispatcher.NewDispatcher([]dispatcher.Provider{p}, o)

	res := d.Send(context.Background(), msg, model.AudienceCustomer)
	require.True(t, res.Succeeded)
	assert.Equal(t, "p", res.ProviderName)
}

func TestStatus(t *testing.T) {
	d := dispatcher.NewDispatcher([]dispatcher.Provider{
		&fakeProvider{name: "a", unconfigured: true},
		&fakeProvider{name: "b"},
	}, opts())

	st := d.Status()
	require.Len(t, st, 2)
	assert.Equal(t, dispatcher.ProviderStatus{Name: "a", Configured: false, Ready: true}, st[0])
	assert.Equal(t, dispatcher.ProviderStatus{Name: "b", Configured: true, Ready: true}, st[1])
}
