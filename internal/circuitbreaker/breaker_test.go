package circuitbreaker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(threshold int, open time.Duration, opts ...Option) (*Breaker, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	return New(threshold, open, append([]Option{WithClock(clock.Now)}, opts...)...), clock
}

func TestBreaker_UnknownSinkIsClosed(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	assert.True(t, b.Allow("https://hooks.example/a"))
	assert.Equal(t, StateClosed, b.State("https://hooks.example/a"))
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)
	sink := "kafka:risk-updates"

	b.RecordFailure(sink)
	b.RecordFailure(sink)
	assert.True(t, b.Allow(sink))

	b.RecordFailure(sink)
	assert.False(t, b.Allow(sink))
	assert.Equal(t, StateOpen, b.State(sink))
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(2, time.Minute)
	sink := "sink"

	b.RecordFailure(sink)
	b.RecordSuccess(sink)
	b.RecordFailure(sink)

	assert.Equal(t, StateClosed, b.State(sink))
}

func TestBreaker_HalfOpenAdmitsOneProbe(t *testing.T) {
	b, clock := newTestBreaker(1, time.Minute)
	sink := "sink"

	b.RecordFailure(sink)
	assert.False(t, b.Allow(sink))

	clock.Advance(59 * time.Second)
	assert.False(t, b.Allow(sink))

	clock.Advance(time.Second)
	assert.True(t, b.Allow(sink))
	assert.Equal(t, StateHalfOpen, b.State(sink))
	assert.False(t, b.Allow(sink), "second request during probe")
}

func TestBreaker_ProbeOutcome(t *testing.T) {
	t.Run("success closes", func(t *testing.T) {
		b, clock := newTestBreaker(1, time.Minute)
		b.RecordFailure("sink")
		clock.Advance(time.Minute)
		require.True(t, b.Allow("sink"))

		b.RecordSuccess("sink")
		assert.Equal(t, StateClosed, b.State("sink"))
		assert.True(t, b.Allow("sink"))
	})

	t.Run("failure reopens", func(t *testing.T) {
		b, clock := newTestBreaker(1, time.Minute)
		b.RecordFailure("sink")
		clock.Advance(time.Minute)
		require.True(t, b.Allow("sink"))

		b.RecordFailure("sink")
		assert.Equal(t, StateOpen, b.State("sink"))
		assert.False(t, b.Allow("sink"))
	})
}

func TestBreaker_SinksAreIndependent(t *testing.T) {
	b, _ := newTestBreaker(1, time.Minute)

	b.RecordFailure("a")
	assert.False(t, b.Allow("a"))
	assert.True(t, b.Allow("b"))
}

func TestBreaker_Execute(t *testing.T) {
	b, _ := newTestBreaker(2, time.Minute)
	boom := errors.New("boom")
	calls := 0
	fail := func() error { calls++; return boom }

	assert.ErrorIs(t, b.Execute("sink", fail), boom)
	assert.ErrorIs(t, b.Execute("sink", fail), boom)
	assert.ErrorIs(t, b.Execute("sink", fail), ErrOpen)
	assert.Equal(t, 2, calls)
}

func TestBreaker_TransitionHook(t *testing.T) {
	type change struct{ from, to State }
	var mu sync.Mutex
	var got []change

	b, clock := newTestBreaker(1, time.Minute, WithTransitionHook(func(sink string, from, to State) {
		mu.Lock()
		got = append(got, change{from, to})
		mu.Unlock()
	}))

	b.RecordFailure("sink")
	clock.Advance(time.Minute)
	b.Allow("sink")
	b.RecordSuccess("sink")

	assert.Equal(t, []change{
		{StateClosed, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateClosed},
	}, got)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half_open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
