package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualClock_StartsAtEpoch(t *testing.T) {
	clock := NewManualClock()
	assert.Equal(t, Epoch, clock.Now())
}

func TestManualClock_Advance(t *testing.T) {
	clock := NewManualClock()

	got := clock.Advance(30 * time.Second)
	assert.Equal(t, Epoch.Add(30*time.Second), got)
	assert.Equal(t, got, clock.Now())

	// Never runs backwards
	clock.Advance(-time.Hour)
	assert.Equal(t, Epoch.Add(30*time.Second), clock.Now())
}

func TestManualClock_Set(t *testing.T) {
	clock := NewManualClockAt(Epoch.Add(time.Minute))

	clock.Set(Epoch)
	assert.Equal(t, Epoch.Add(time.Minute), clock.Now(), "Set must not move backwards")

	clock.Set(Epoch.Add(time.Hour))
	assert.Equal(t, Epoch.Add(time.Hour), clock.Now())
}

func TestManualClock_ConcurrentAdvance(t *testing.T) {
	clock := NewManualClock()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clock.Advance(time.Second)
			_ = clock.Now()
		}()
	}
	wg.Wait()

	assert.Equal(t, Epoch.Add(100*time.Second), clock.Now())
}
