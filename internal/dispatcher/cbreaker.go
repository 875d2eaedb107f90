package dispatcher

import (
	"sync"
	"time"
)

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

var stateNames = [...]string{
	stateClosed:   "closed",
	stateOpen:     "open",
	stateHalfOpen: "half_open",
}

// MicroBreaker guards one provider. It opens after threshold consecutive
// failures, stays open for cooldown and then admits exactly one probe.
type MicroBreaker struct {
	mu        sync.Mutex
	st        breakerState
	fails     int
	threshold int
	cooldown  time.Duration
	reopenAt  time.Time
	probing   bool
	now       func() time.Time
}

func NewMicroBreaker(threshold int, cooldown time.Duration) *MicroBreaker {
	if threshold <= 0 {
		threshold = 3
	}
	return &MicroBreaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

func (b *MicroBreaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return stateNames[b.st]
}

// Ready reports whether TryAcquire would currently succeed, without taking the probe.
func (b *MicroBreaker) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.admit(false)
}

// TryAcquire admits a call. In the open state the first call after the cooldown
// becomes the half-open probe.
func (b *MicroBreaker) TryAcquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.admit(true)
}

// admit must be called with mu held.
func (b *MicroBreaker) admit(take bool) bool {
	if b.st == stateClosed {
		return true
	}
	if b.probing || (b.st == stateOpen && !b.now().After(b.reopenAt)) {
		return false
	}
	if take {
		b.st, b.probing = stateHalfOpen, true
	}
	return true
}

func (b *MicroBreaker) OnSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.st, b.fails, b.probing = stateClosed, 0, false
}

func (b *MicroBreaker) OnFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.fails++
	// a failed probe reopens immediately
	if b.st == stateHalfOpen || b.fails >= b.threshold {
		b.st, b.probing = stateOpen, false
		b.reopenAt = b.now().Add(b.cooldown)
	}
}
