package timeutil

import (
	"sync"
	"time"
)

// Watchdog fires a handler when a guarded operation runs past its deadline.
// The typical use is bracketing a blocking call:
//
//	w.Restart()
//	n, err := slowCall()
//	w.Suspend()
//
// The handler runs at most once per Restart, on its own goroutine. Restart
// and Suspend are safe to call from the guarded goroutine while a previous
// timer is still pending.
type Watchdog struct {
	clock   Clock
	timeout time.Duration
	handler func()

	mu     sync.Mutex
	gen    uint64
	timer  Timer
	cancel chan struct{}
	closed bool
}

// NewWatchdog returns a disarmed watchdog. A zero timeout yields a watchdog
// whose Restart and Suspend do nothing.
func NewWatchdog(clock Clock, timeout time.Duration, handler func()) *Watchdog {
	return &Watchdog{clock: clock, timeout: timeout, handler: handler}
}

// Restart arms the watchdog for one full timeout from now.
func (w *Watchdog) Restart() {
	if w.timeout <= 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.disarmLocked()

	w.gen++
	gen := w.gen
	timer := w.clock.NewTimer(w.timeout)
	cancel := make(chan struct{})
	w.timer = timer
	w.cancel = cancel

	go func() {
		select {
		case <-timer.C():
			w.mu.Lock()
			fire := gen == w.gen && !w.closed
			w.mu.Unlock()
			if fire {
				w.handler()
			}
		case <-cancel:
		}
	}()
}

// Suspend disarms the watchdog. A timer that already fired is not undone.
func (w *Watchdog) Suspend() {
	if w.timeout <= 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.disarmLocked()
	w.gen++
}

// Close disarms the watchdog for good.
func (w *Watchdog) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.disarmLocked()
	w.closed = true
}

func (w *Watchdog) disarmLocked() {
	if w.timer != nil {
		w.timer.Stop()
		close(w.cancel)
		w.timer = nil
		w.cancel = nil
	}
}
