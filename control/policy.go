package control

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// policy is the only place where the two operating modes differ.
type policy interface {
	// exclusive runs fn in the critical section of mode changes and edits.
	exclusive(fn func() error) error
	// nextCounter increments the setup counter and returns the new value.
	nextCounter(counter *atomic.Int32) int32
	// skipValidation reports whether the dose check is bypassed for the
	// setup that produced the given counter value.
	skipValidation(counter int32) bool
	// awaitTurntable decides whether a mode change waits for the hardware.
	// It gives up with ErrClosed when ctx is done.
	awaitTurntable(ctx context.Context, done <-chan struct{}) error
	// firesUnsafe reports whether an unsafe configuration is fired anyway.
	firesUnsafe() bool
}

func newPolicy(mode Mode, hardwareTimeout time.Duration, log Logger) policy {
	if mode == Synchronized {
		return &synchronized{timeout: hardwareTimeout}
	}

	return &unsynchronized{log: log}
}

// unsynchronized reproduces the historical controller: no mutual
// exclusion, an 8 bit setup counter and no hardware confirmation.
type unsynchronized struct {
	log Logger
}

func (p *unsynchronized) exclusive(fn func() error) error {
	return fn()
}

func (p *unsynchronized) nextCounter(counter *atomic.Int32) int32 {
	// Load and store are separate on purpose, concurrent setups lose
	// increments just like the historical single byte register did.
	next := uint8(counter.Load())
	next++
	counter.Store(int32(next))

	return int32(next)
}

func (p *unsynchronized) skipValidation(counter int32) bool {
	return counter == 0
}

func (p *unsynchronized) awaitTurntable(ctx context.Context, done <-chan struct{}) error {
	p.log.Warnf("Not waiting for turntable confirmation")
	return nil
}

func (p *unsynchronized) firesUnsafe() bool {
	return true
}

// synchronized serializes mode changes and edits behind one lock, waits
// for the turntable and never lets the counter wrap.
type synchronized struct {
	mtx     sync.Mutex
	timeout time.Duration
}

func (p *synchronized) exclusive(fn func() error) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	return fn()
}

// nextCounter saturates at the top of the int32 range instead of wrapping.
func (p *synchronized) nextCounter(counter *atomic.Int32) int32 {
	for {
		current := counter.Load()
		if current == math.MaxInt32 {
			return current
		}

		if counter.CompareAndSwap(current, current+1) {
			return current + 1
		}
	}
}

func (p *synchronized) skipValidation(counter int32) bool {
	return false
}

func (p *synchronized) awaitTurntable(ctx context.Context, done <-chan struct{}) error {
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrHardwareTimeout
	case <-ctx.Done():
		return ErrClosed
	}
}

func (p *synchronized) firesUnsafe() bool {
	return false
}
