// Package reloadworker periodically reloads the level catalog so facility and
// level edits in the source tables reach the running floor filter.
package reloadworker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Reloader is the minimal engine interface the worker needs.
// *engine.Engine satisfies this.
type Reloader interface {
	Reload(ctx context.Context) error
}

type Worker struct {
	log        zerolog.Logger
	r          Reloader
	interval   time.Duration
	timeout    time.Duration
	maxBackoff time.Duration
}

type Options struct {
	Interval   time.Duration
	Timeout    time.Duration
	MaxBackoff time.Duration
}

func New(log zerolog.Logger, r Reloader, opts Options) *Worker {
	interval := opts.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxBackoff := opts.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Minute
	}
	return &Worker{
		log:        log,
		r:          r,
		interval:   interval,
		timeout:    timeout,
		maxBackoff: maxBackoff,
	}
}

// Run reloads every interval until ctx is done. Consecutive failures back off
// exponentially up to the configured maximum.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.r == nil {
		return
	}

	timer := time.NewTimer(w.interval)
	defer timer.Stop()

	var consecutiveFailures int
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if err := w.runOnce(ctx); err != nil {
			consecutiveFailures++
		} else {
			consecutiveFailures = 0
		}

		timer.Reset(backoffDuration(w.interval, consecutiveFailures, w.maxBackoff))
	}
}

func (w *Worker) runOnce(ctx context.Context) error {
	execCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	start := time.Now()
	if err := w.r.Reload(execCtx); err != nil {
		if ctx.Err() != nil {
			return err
		}
		w.log.Error().Err(err).Msg("level catalog reload failed")
		return err
	}
	w.log.Info().Dur("duration", time.Since(start)).Msg("level catalog reloaded")
	return nil
}

func backoffDuration(base time.Duration, failures int, limit time.Duration) time.Duration {
	if base <= 0 {
		base = 5 * time.Minute
	}
	if failures <= 0 {
		return base
	}

	// base * 2^failures, capped.
	if failures > 6 {
		failures = 6
	}
	d := base * time.Duration(1<<failures)
	if limit > 0 && d > limit {
		return limit
	}
	return d
}
