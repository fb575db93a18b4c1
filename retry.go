package shx

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"shx/internal/system"
)

// Backoff yields the delay before the next attempt.
type Backoff func() time.Duration

// ExpBackoff returns delays growing as 2^n milliseconds up to limit, each
// with up to jitter added. Both accept anything ParseDuration does; nil
// selects 60s and 100ms.
func ExpBackoff(limit, jitter any) (Backoff, error) {
	if limit == nil {
		limit = "60s"
	}
	if jitter == nil {
		jitter = "100ms"
	}
	maxDelay, err := ParseDuration(limit)
	if err != nil {
		return nil, err
	}
	spread, err := ParseDuration(jitter)
	if err != nil {
		return nil, err
	}
	n := 0
	return func() time.Duration {
		n++
		d := maxDelay
		if n < 62 {
			d = min(time.Duration(1<<n)*time.Millisecond, maxDelay)
		}
		if spread > 0 {
			d += rand.N(spread)
		}
		return d
	}, nil
}

// Retry calls fn until it succeeds, at most count times (count <= 0 means
// no limit). delay is nil, a Backoff or anything ParseDuration accepts.
// Every failure is logged as a retry entry; the last error is returned.
func Retry[T any](ctx context.Context, count int, delay any, fn func(context.Context) (T, error)) (T, error) {
	var (
		zero    T
		next    Backoff
		static  time.Duration
		lastErr error
	)
	switch d := delay.(type) {
	case nil:
	case Backoff:
		next = d
	case func() time.Duration:
		next = d
	default:
		parsed, err := ParseDuration(d)
		if err != nil {
			return zero, err
		}
		static = parsed
	}

	opts := Current(ctx)
	for attempt := 1; count <= 0 || attempt <= count; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		wait := static
		if next != nil {
			wait = next()
		}
		last := count > 0 && attempt == count
		if last {
			wait = 0
		}
		opts.log(LogEntry{
			Kind:    LogRetry,
			Attempt: attempt,
			Total:   max(count, 0),
			Delay:   wait,
			Err:     err,
			Verbose: !opts.Quiet,
		})
		if last {
			break
		}
		if wait > 0 {
			if err := Sleep(ctx, wait); err != nil {
				return zero, fmt.Errorf("retry interrupted: %w", lastErr)
			}
		}
	}
	return zero, lastErr
}

// Echo writes its arguments, space separated, to the log output. An
// *Output contributes its stdout without the trailing newline.
func Echo(ctx context.Context, args ...any) {
	parts := make([]string, len(args))
	for i, arg := range args {
		switch a := arg.(type) {
		case *Output:
			parts[i] = strings.TrimSuffix(a.Stdout(), "\n")
		default:
			parts[i] = fmt.Sprint(a)
		}
	}
	Current(ctx).log(LogEntry{
		Kind:    LogCustom,
		Data:    []byte(strings.Join(parts, " ") + "\n"),
		Verbose: true,
	})
}

// Kill signals pid and its descendants. An empty signal means SIGTERM.
func Kill(pid int, signal string) error {
	if pid <= 0 {
		return ErrNoPID
	}
	sig, err := system.ParseSignal(signal)
	if err != nil {
		return err
	}
	return system.KillTree(context.Background(), pid, sig)
}
