// Package backoff provides the jittered retry delay used by the completion
// client for transient I/O failures: at most one retry, with a
// server-provided Retry-After value honored up to a hard ceiling.
package backoff

import (
	"errors"
	"math/rand"
	"time"

	"go.uber.org/multierr"
)

// MaxRetryAfter is the hard ceiling on a server-provided Retry-After delay.
const MaxRetryAfter = 60 * time.Second

// Option configures a Strategy.
type Option func(*options)

type options struct {
	base, min, max time.Duration
	newRand        func() *rand.Rand
}

func (o options) validate() (err error) {
	if o.base <= 0 {
		err = multierr.Append(err, errors.New("backoff: base must be greater than zero"))
	}
	if o.min < 0 {
		err = multierr.Append(err, errors.New("backoff: min must be greater than or equal to zero"))
	}
	if o.max < 0 {
		err = multierr.Append(err, errors.New("backoff: max must be greater than or equal to zero"))
	}
	if o.max < o.min {
		err = multierr.Append(err, errors.New("backoff: max must be greater than or equal to min"))
	}
	return err
}

func newRand() *rand.Rand { return rand.New(rand.NewSource(time.Now().UnixNano())) }

var defaultOptions = options{
	base:    100 * time.Millisecond,
	min:     100 * time.Millisecond,
	max:     2 * time.Second,
	newRand: newRand,
}

// Base overrides the default exponential base.
func Base(d time.Duration) Option { return func(o *options) { o.base = d } }

// Min overrides the default minimum delay.
func Min(d time.Duration) Option { return func(o *options) { o.min = d } }

// Max overrides the default maximum delay.
func Max(d time.Duration) Option { return func(o *options) { o.max = d } }

// Strategy produces jittered exponential backoff durations, one call per
// attempt. A Strategy is not safe for concurrent use; each completion-client
// worker owns its own (the same rule the worker pool already applies to the
// completion client itself, since its transport is single-threaded).
type Strategy struct {
	base, min, max time.Duration
	minMaxDiff     int64
	rand           *rand.Rand
}

// New builds a Strategy, validating that the option bounds are coherent.
func New(opts ...Option) (*Strategy, error) {
	o := defaultOptions
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}
	return &Strategy{
		base:       o.base,
		min:        o.min,
		max:        o.max,
		minMaxDiff: o.max.Nanoseconds() - o.min.Nanoseconds(),
		rand:       o.newRand(),
	}, nil
}

// Duration returns the jittered delay for a given attempt count, full-jitter
// style: uniformly distributed in [min, min+min(base*2^attempts, max-min)].
func (s *Strategy) Duration(attempt uint) time.Duration {
	minlessBackoff := (int64(1) << attempt) * s.base.Nanoseconds()
	if minlessBackoff > s.minMaxDiff || minlessBackoff <= 0 {
		minlessBackoff = s.minMaxDiff
	}
	return s.min + time.Duration(s.rand.Int63n(minlessBackoff+1))
}

// RetryAfter clamps a server-provided Retry-After delay to MaxRetryAfter.
func RetryAfter(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if d > MaxRetryAfter {
		return MaxRetryAfter
	}
	return d
}
