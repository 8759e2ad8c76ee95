package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVirtualClock_StartsAtEpoch(t *testing.T) {
	clock := NewVirtualClock()
	assert.Equal(t, Epoch, clock.Now())
	assert.Empty(t, clock.Sleeps())
}

func TestVirtualClock_SleepAdvancesAndRecords(t *testing.T) {
	clock := NewVirtualClock()

	require.NoError(t, clock.Sleep(context.Background(), time.Second))
	require.NoError(t, clock.Sleep(context.Background(), 2*time.Second))

	assert.Equal(t, Epoch.Add(3*time.Second), clock.Now())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.Sleeps())
}

func TestVirtualClock_SleepHonorsCancelledContext(t *testing.T) {
	clock := NewVirtualClock()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, clock.Sleep(ctx, time.Second), context.Canceled)
	assert.Equal(t, Epoch, clock.Now())
}

func TestVirtualClock_AdvanceDoesNotRecord(t *testing.T) {
	clock := NewVirtualClock()
	clock.Advance(time.Minute)
	assert.Equal(t, Epoch.Add(time.Minute), clock.Now())
	assert.Empty(t, clock.Sleeps())
}

func TestVirtualClock_Reset(t *testing.T) {
	clock := NewVirtualClock()
	require.NoError(t, clock.Sleep(context.Background(), time.Second))

	clock.Reset()
	assert.Equal(t, Epoch, clock.Now())
	assert.Empty(t, clock.Sleeps())
}

func TestVirtualClock_ConcurrentSleeps(t *testing.T) {
	clock := NewVirtualClock()

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = clock.Sleep(context.Background(), time.Millisecond)
		}()
	}
	wg.Wait()

	assert.Len(t, clock.Sleeps(), 100)
	assert.Equal(t, Epoch.Add(100*time.Millisecond), clock.Now())
}

func TestSequenceIDs(t *testing.T) {
	ids := NewSequenceIDs("")
	assert.Equal(t, "job-0001", ids.Generate())
	assert.Equal(t, "job-0002", ids.Generate())

	custom := NewSequenceIDs("delivery")
	assert.Equal(t, "delivery-0001", custom.Generate())
}
