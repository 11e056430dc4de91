package sync

import (
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock hands out times advancing by a fixed amount per call
type fakeClock struct {
	mu      stdsync.Mutex
	current time.Time
	advance time.Duration
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(c.advance)
	return c.current
}

func waitIdle(t *testing.T, l *Loop) {
	t.Helper()
	require.Eventually(t, func() bool {
		l.mu.Lock()
		defer l.mu.Unlock()
		return !l.running
	}, time.Second, time.Millisecond)
}

func TestLoop_RunOnce(t *testing.T) {
	steps := make(chan struct{}, 16)
	l := NewLoop(
		func() { steps <- struct{}{} },
		time.Now,
		func(time.Duration) {},
		50*time.Millisecond,
	)

	l.Run()
	waitIdle(t, l)

	assert.Len(t, steps, 1)
}

func TestLoop_CoalescesBurst(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var sleeps []time.Duration

	l := NewLoop(
		func() {
			started <- struct{}{}
			<-release
		},
		time.Now,
		func(d time.Duration) { sleeps = append(sleeps, d) },
		50*time.Millisecond,
	)

	l.Run()
	<-started

	// a burst of requests while the step is in flight
	for range 5 {
		l.Run()
	}
	release <- struct{}{}

	// exactly one more step for the whole burst
	<-started
	release <- struct{}{}

	waitIdle(t, l)

	// one inter-step sleep happened, and it was never negative
	require.Len(t, sleeps, 1)
	assert.GreaterOrEqual(t, sleeps[0], time.Duration(0))
	assert.LessOrEqual(t, sleeps[0], 50*time.Millisecond)
}

func TestLoop_SleepClampedToZero(t *testing.T) {
	// each step appears to take 100ms against a 50ms interval
	clock := &fakeClock{advance: 100 * time.Millisecond}
	var sleeps []time.Duration
	firstStep := true

	var l *Loop
	l = NewLoop(
		func() {
			if firstStep {
				firstStep = false
				l.Run() // request another round mid-step
			}
		},
		clock.now,
		func(d time.Duration) { sleeps = append(sleeps, d) },
		50*time.Millisecond,
	)

	l.Run()
	waitIdle(t, l)

	require.Len(t, sleeps, 1)
	assert.Equal(t, time.Duration(0), sleeps[0])
}

func TestLoop_ReusableAfterIdle(t *testing.T) {
	steps := make(chan struct{}, 16)
	l := NewLoop(
		func() { steps <- struct{}{} },
		time.Now,
		func(time.Duration) {},
		time.Millisecond,
	)

	l.Run()
	waitIdle(t, l)
	l.Run()
	waitIdle(t, l)

	assert.Len(t, steps, 2)
}
