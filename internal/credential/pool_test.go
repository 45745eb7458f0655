package credential

import (
	"context"
	"sync"
	"testing"
	"time"

	"neuromail-go/internal/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, maxUsage, maxErrors int) *Pool {
	t.Helper()
	return NewPool([]string{"key-aaaa-0000", "key-bbbb-1111", "key-cccc-2222"}, PoolOptions{
		MaxUsage:  maxUsage,
		MaxErrors: maxErrors,
	})
}

func TestNewPoolDefaultsAndSkipsBlank(t *testing.T) {
	p := NewPool([]string{"a", "", "b"}, PoolOptions{})
	require.Equal(t, 2, p.Size())
	maxUsage, maxErrors := p.Thresholds()
	assert.Equal(t, 100, maxUsage)
	assert.Equal(t, 5, maxErrors)
}

func TestAcquireEmptyPool(t *testing.T) {
	p := NewPool(nil, PoolOptions{})
	_, err := p.Acquire()
	require.ErrorIs(t, err, ErrEmptyPool)
}

func TestUsageCeilingExhaustsCredential(t *testing.T) {
	p := newTestPool(t, 4, 5)

	for i := 0; i < 4; i++ {
		lease, err := p.Acquire()
		require.NoError(t, err)
		require.Equal(t, 0, lease.Index)
		p.RecordUse(false)
	}

	st := p.Status()
	assert.True(t, st.Credentials[0].Exhausted)
	assert.Equal(t, 4, st.Credentials[0].UsageCount)

	lease, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 1, lease.Index)
	assert.Equal(t, "key-bbbb-1111", lease.Secret)
}

func TestErrorCeilingExhaustsBeforeUsageCeiling(t *testing.T) {
	p := newTestPool(t, 100, 5)

	// Five failures charged to the first key while acquiring before each.
	for i := 0; i < 5; i++ {
		lease, err := p.Acquire()
		require.NoError(t, err)
		require.Equal(t, 0, lease.Index)
		require.NoError(t, p.RecordUseAt(lease.Index, true))
	}

	st := p.Status()
	first := st.Credentials[0]
	assert.Equal(t, 5, first.ErrorCount)
	assert.Equal(t, 5, first.UsageCount)
	assert.True(t, first.Exhausted)
	assert.Less(t, first.UsageCount, 100)

	lease, err := p.Acquire()
	require.NoError(t, err)
	assert.Contains(t, []int{1, 2}, lease.Index)
}

func TestRotationSpreadsFailures(t *testing.T) {
	p := newTestPool(t, 100, 5)

	var seen []int
	for i := 0; i < 5; i++ {
		lease, err := p.Acquire()
		require.NoError(t, err)
		seen = append(seen, lease.Index)
		require.NoError(t, p.RecordUseAt(lease.Index, true))
		p.Advance()
	}

	assert.Equal(t, []int{0, 1, 2, 0, 1}, seen)
	st := p.Status()
	assert.Equal(t, 2, st.Credentials[0].ErrorCount)
	assert.Equal(t, 2, st.Credentials[1].ErrorCount)
	assert.Equal(t, 1, st.Credentials[2].ErrorCount)
	assert.Equal(t, 3, st.Available)
}

func TestAcquireResetsWhenAllExhausted(t *testing.T) {
	hub := events.NewHub()
	var got []ResetEvent
	hub.Subscribe(events.TopicPoolReset, func(_ context.Context, evt events.Event) {
		got = append(got, evt.Payload.(ResetEvent))
	})

	p := newTestPool(t, 1, 5)
	p.SetPublisher(hub)
	for i := 0; i < 3; i++ {
		require.NoError(t, p.RecordUseAt(i, false))
	}
	p.Advance()
	require.False(t, p.HasAvailable())

	lease, err := p.Acquire()
	require.NoError(t, err)
	assert.True(t, lease.Reset)
	assert.Equal(t, 0, lease.Index)
	assert.Equal(t, "key-aaaa-0000", lease.Secret)

	st := p.Status()
	assert.Equal(t, 3, st.Available)
	assert.Equal(t, 0, st.Exhausted)
	assert.Equal(t, 0, st.CurrentIndex)
	assert.Equal(t, int64(1), st.Resets)
	require.Len(t, got, 1)
	assert.True(t, got[0].Automatic)
}

func TestResetZeroesEverything(t *testing.T) {
	p := newTestPool(t, 2, 1)
	require.NoError(t, p.RecordUseAt(0, true))
	require.NoError(t, p.RecordUseAt(1, false))
	p.Advance()
	p.Advance()

	p.Reset()

	st := p.Status()
	assert.Equal(t, 0, st.CurrentIndex)
	for _, c := range st.Credentials {
		assert.Zero(t, c.UsageCount)
		assert.Zero(t, c.ErrorCount)
		assert.False(t, c.Exhausted)
		assert.Nil(t, c.LastUsed)
	}
}

func TestAdvanceIsCyclic(t *testing.T) {
	p := newTestPool(t, 100, 5)
	p.Advance()
	start := p.Status().CurrentIndex
	for i := 0; i < p.Size(); i++ {
		p.Advance()
	}
	assert.Equal(t, start, p.Status().CurrentIndex)
}

func TestRecordUseAtOutOfRange(t *testing.T) {
	p := newTestPool(t, 100, 5)
	assert.ErrorIs(t, p.RecordUseAt(3, false), ErrSlotOutOfRange)
	assert.ErrorIs(t, p.RecordUseAt(-1, false), ErrSlotOutOfRange)
}

func TestRecordUseSetsLastUsed(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p := NewPool([]string{"only-key-value"}, PoolOptions{Now: func() time.Time { return fixed }})
	p.RecordUse(false)

	info, ok := p.CurrentInfo()
	require.True(t, ok)
	require.NotNil(t, info.LastUsed)
	assert.Equal(t, fixed, *info.LastUsed)
	assert.Equal(t, 99, info.RemainingUsage)
	assert.Equal(t, 5, info.RemainingErrors)
}

func TestExhaustionPublishesOnce(t *testing.T) {
	hub := events.NewHub()
	count := 0
	hub.Subscribe(events.TopicCredentialSpent, func(context.Context, events.Event) { count++ })

	p := NewPool([]string{"k1-xxxxxxxx"}, PoolOptions{MaxUsage: 1, MaxErrors: 5, Publisher: hub})
	p.RecordUse(false)
	p.RecordUse(true)

	assert.Equal(t, 1, count)
}

func TestConcurrentLeasesChargeTheirOwnSlot(t *testing.T) {
	p := newTestPool(t, 1000, 1000)

	var wg sync.WaitGroup
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := p.Acquire()
			if err != nil {
				return
			}
			_ = p.RecordUseAt(lease.Index, false)
			p.Advance()
		}()
	}
	wg.Wait()

	assert.Equal(t, 60, p.UsageStats().TotalUsage)
}
