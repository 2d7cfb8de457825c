package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/vgarvardt/gue/v5"
)

// Opts configures a wrapped gue handler
type Opts[TM any] struct {
	backoff  gue.Backoff
	timeout  time.Duration
	maxRetry int32
	failure  func(context.Context, *TM, error) error
}

// Create wraps a typed worker func into gue.WorkFunc:
// unmarshals the job payload, applies a timeout, reschedules failures
// with backoff and escalates to the failure func when retries are exhausted
func Create[TM any, SD any](data *SD, hf func(context.Context, *TM, *SD) error, opts *Opts[TM]) gue.WorkFunc {
	if opts == nil {
		goapp.Log.Panic().Msg("no opts provided")
	}
	return func(ctx context.Context, j *gue.Job) error {
		goapp.Log.Info().Str("queue", j.Queue).Str("type", j.Type).Int32("errCount", j.ErrorCount).Msg("got msg")

		var m TM
		err := json.Unmarshal(j.Args, &m)
		if err != nil {
			err = fmt.Errorf("could not unmarshal message: %w", err)
		} else {
			wrkCtx, cf := context.WithTimeout(ctx, opts.timeout)
			defer cf()
			err = hf(wrkCtx, &m, data)
			if err != nil {
				goapp.Log.Warn().Err(err).Str("queue", j.Queue).Str("type", j.Type).Msg("fail")
			}
		}
		if err == nil {
			return nil
		}
		if j.ErrorCount >= opts.maxRetry {
			goapp.Log.Error().Err(err).Str("queue", j.Queue).Int32("errCount", j.ErrorCount).Msg("give up, drop msg")
			if opts.failure != nil {
				if errF := opts.failure(ctx, &m, err); errF != nil {
					goapp.Log.Error().Err(errF).Str("queue", j.Queue).Msg("failure escalation error")
				}
			}
			return nil
		}
		delay := opts.backoff(int(j.ErrorCount + 1))
		goapp.Log.Info().Str("queue", j.Queue).Str("type", j.Type).Dur("after", delay).Msg("retry after")
		return gue.ErrRescheduleJobIn(delay, err.Error())
	}
}

// DefaultOpts returns opts with sane defaults
func DefaultOpts[TM any]() *Opts[TM] {
	return &Opts[TM]{timeout: time.Minute * 15, maxRetry: 3, backoff: DefaultBackoff()}
}

// DefaultBackoff makes jittered linear-growth backoff
func DefaultBackoff() gue.Backoff {
	return func(retries int) time.Duration {
		return fullJitter(time.Duration(retries) * time.Second * 10)
	}
}

// NoBackoff reschedules immediately
func NoBackoff() gue.Backoff {
	return func(retries int) time.Duration {
		return 0
	}
}

// DefaultBackoffOrTest drops delays in test mode
func DefaultBackoffOrTest(test bool) gue.Backoff {
	if test {
		return NoBackoff()
	}
	return DefaultBackoff()
}

// WithFailure sets retries-exhausted escalation
func (o *Opts[TM]) WithFailure(failure func(context.Context, *TM, error) error) *Opts[TM] {
	o.failure = failure
	return o
}

// WithTimeout sets single invocation timeout
func (o *Opts[TM]) WithTimeout(timeout time.Duration) *Opts[TM] {
	o.timeout = timeout
	return o
}

// WithBackoff sets reschedule delay policy
func (o *Opts[TM]) WithBackoff(b gue.Backoff) *Opts[TM] {
	o.backoff = b
	return o
}

// WithMaxRetry sets how many failures are tolerated before escalation
func (o *Opts[TM]) WithMaxRetry(n int32) *Opts[TM] {
	o.maxRetry = n
	return o
}

// fullJitter return randomized duration in interval [0, t)
// as suggested by https://aws.amazon.com/blogs/architecture/exponential-backoff-and-jitter/
func fullJitter(t time.Duration) time.Duration {
	// `rand` here is used just for backoff jitter
	return time.Duration(float64(t) * rand.Float64())
}
