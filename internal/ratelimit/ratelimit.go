// Package ratelimit provides pluggable admission predicates over a channel's
// staged-claim counters. A strategy is a pure function of the stored record
// and the clock; the limiter turns a positive answer into ErrLimited.
package ratelimit

import (
	"errors"
	"time"
)

// ErrLimited is returned by Limiter.Check when the active strategy decides
// the request should be rejected.
var ErrLimited = errors.New("too many requests")

// Context carries the per-channel counters a strategy may consult. It is
// populated from the private channel record.
type Context struct {
	NumberOfClaimsStaged          int64
	NumberOfMetadataUpdatesStaged int64
	Timestamp                     time.Time
}

// Strategy decides whether a request against a channel should be limited.
type Strategy interface {
	ShouldLimit(now time.Time, ctx Context) bool
}

// Never is the default strategy: no rate limiting.
type Never struct{}

func (Never) ShouldLimit(time.Time, Context) bool {
	return false
}

// ClaimBuffer limits when at least Limit claims are staged and the record was
// touched within the last Window. Staged claims are drained by consolidation,
// so the predicate is a backpressure signal, not a hard quota.
type ClaimBuffer struct {
	Limit  int64
	Window time.Duration
}

func (s ClaimBuffer) ShouldLimit(now time.Time, ctx Context) bool {
	if ctx.NumberOfClaimsStaged < s.Limit {
		return false
	}
	return now.Sub(ctx.Timestamp) < s.Window
}

// MetadataBuffer is the same predicate over the staged-metadata counter.
type MetadataBuffer struct {
	Limit  int64
	Window time.Duration
}

func (s MetadataBuffer) ShouldLimit(now time.Time, ctx Context) bool {
	if ctx.NumberOfMetadataUpdatesStaged < s.Limit {
		return false
	}
	return now.Sub(ctx.Timestamp) < s.Window
}

// Limiter evaluates a strategy and reports limiting as an error.
type Limiter struct {
	strategy Strategy
	now      func() time.Time
}

// New returns a limiter over the given strategy. A nil strategy means Never.
func New(strategy Strategy) *Limiter {
	if strategy == nil {
		strategy = Never{}
	}
	return &Limiter{strategy: strategy, now: time.Now}
}

// WithClock overrides the limiter's clock, for tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Check returns ErrLimited when the strategy decides to limit.
func (l *Limiter) Check(ctx Context) error {
	if l.strategy.ShouldLimit(l.now().UTC(), ctx) {
		return ErrLimited
	}
	return nil
}
