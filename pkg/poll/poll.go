// Package poll repeatedly issues an HTTP request until a predicate accepts
// the response or the attempt budget runs out.
package poll

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/nuyoahch/agent-runtime/pkg/logger"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultInterval    = time.Second
	DefaultMaxAttempts = 30
)

// Options tunes a polling loop.
type Options struct {
	Interval    time.Duration
	MaxAttempts int
	Client      *http.Client
	Logger      *slog.Logger
	// OnAttempt is called after every attempt with "done", "pending" or "error".
	OnAttempt func(outcome string)
	// Sleep replaces the wait between attempts; tests use it to count delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

// ErrTimeout is matched by every exhausted polling loop.
var ErrTimeout = errors.New("polling timed out")

// TimeoutError reports an exhausted attempt budget.
type TimeoutError struct {
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("polling timed out after %d attempts", e.Attempts)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// Check inspects one response. It returns done=true with the value to stop.
type Check[T any] func(status int, body []byte) (value T, done bool, err error)

// Poll issues a GET to url on every attempt.
func Poll[T any](ctx context.Context, url string, opts Options, check Check[T]) (T, error) {
	newReq := func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	}
	return Until(ctx, newReq, opts, check)
}

// Until waits Interval, then issues the request built by newReq, until check
// reports done. Errors from the transport or the check are logged and count
// as an attempt.
func Until[T any](ctx context.Context, newReq func(context.Context) (*http.Request, error), opts Options, check Check[T]) (T, error) {
	var zero T
	opts = withDefaults(opts)

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if err := opts.Sleep(ctx, opts.Interval); err != nil {
			return zero, err
		}
		value, done, err := attemptOnce(ctx, opts.Client, newReq, check)
		switch {
		case err != nil:
			opts.Logger.Warn("poll attempt failed", "attempt", attempt, "error", err)
			opts.OnAttempt("error")
		case done:
			opts.OnAttempt("done")
			return value, nil
		default:
			opts.OnAttempt("pending")
		}
	}
	return zero, &TimeoutError{Attempts: opts.MaxAttempts}
}

func attemptOnce[T any](ctx context.Context, client *http.Client, newReq func(context.Context) (*http.Request, error), check Check[T]) (T, bool, error) {
	var zero T
	req, err := newReq(ctx)
	if err != nil {
		return zero, false, err
	}
	req.Header.Set("Cache-Control", "no-cache")
	resp, err := client.Do(req)
	if err != nil {
		return zero, false, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, false, err
	}
	return check(resp.StatusCode, body)
}

func withDefaults(opts Options) Options {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = logger.Named("poll")
	}
	if opts.OnAttempt == nil {
		opts.OnAttempt = func(string) {}
	}
	if opts.Sleep == nil {
		opts.Sleep = sleep
	}
	return opts
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
