package sync

import (
	stdsync "sync"
	"time"
)

// Loop runs a step function periodically while runs keep being requested,
// then goes idle. It guarantees that the step never runs concurrently
// with itself, that any burst of Run calls arriving during a step
// coalesces into at most one further step, and that back-to-back steps
// are throttled to the configured interval.
//
// The state machine is Idle -> Running -> Running+RunPending, guarded by
// a mutex; the running goroutine drains the pending flag before exiting.
type Loop struct {
	step     func()
	now      func() time.Time
	sleep    func(time.Duration)
	interval time.Duration

	mu         stdsync.Mutex
	running    bool
	runPending bool
}

// NewLoop creates an idle loop. now and sleep are injectable for tests.
func NewLoop(step func(), now func() time.Time, sleep func(time.Duration), interval time.Duration) *Loop {
	return &Loop{
		step:     step,
		now:      now,
		sleep:    sleep,
		interval: interval,
	}
}

// Run requests a step. If the loop is idle it starts running in its own
// goroutine; if a step is already in flight the request is recorded and
// Run returns immediately.
func (l *Loop) Run() {
	l.mu.Lock()
	if l.running {
		l.runPending = true
		l.mu.Unlock()
		return
	}
	l.running = true
	l.runPending = true
	l.mu.Unlock()

	go l.run()
}

func (l *Loop) run() {
	for {
		start := l.now()

		l.mu.Lock()
		l.runPending = false
		l.mu.Unlock()

		l.step()

		l.mu.Lock()
		if !l.runPending {
			l.running = false
			l.mu.Unlock()
			return
		}
		l.mu.Unlock()

		elapsed := l.now().Sub(start)
		l.sleep(max(0, l.interval-elapsed))
	}
}
