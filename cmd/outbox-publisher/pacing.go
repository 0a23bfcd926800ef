package main

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

const (
	maxBackoff   = 10 * time.Second
	jitterWindow = 250 * time.Millisecond
)

var (
	jitterMu  sync.Mutex
	jitterRNG = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// pacer decides how long the poll loop waits between batches.
type pacer struct {
	base    time.Duration
	current time.Duration
}

func newPacer(base time.Duration) *pacer {
	return &pacer{base: base, current: base}
}

func (p *pacer) reset() { p.current = p.base }

func (p *pacer) idle() time.Duration {
	p.reset()
	return withJitter(p.base)
}

func (p *pacer) failure() time.Duration {
	p.current = nextBackoff(p.current, p.base, maxBackoff)
	return withJitter(p.current)
}

func nextBackoff(current, base, limit time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	if next := current * 2; next < limit {
		return next
	}
	return limit
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	jitterMu.Lock()
	defer jitterMu.Unlock()
	return d + time.Duration(jitterRNG.Int63n(int64(jitterWindow)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
