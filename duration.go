package shx

import (
	"context"
	"fmt"
	"time"

	"shx/internal/app"
)

// ParseDuration accepts a time.Duration, a number of milliseconds, or a
// string such as "250", "250ms", "5s" or "2m". Go duration strings like
// "1m30s" are accepted too.
func ParseDuration(v any) (time.Duration, error) {
	switch d := v.(type) {
	case time.Duration:
		if d < 0 {
			return 0, fmt.Errorf("%w: %v", ErrInvalidDuration, v)
		}
		return d, nil
	case int:
		return msDuration(int64(d), v)
	case int64:
		return msDuration(d, v)
	case float64:
		return msDuration(int64(d), v)
	case string:
		if parsed, ok := app.ParseDuration(d); ok {
			return parsed, nil
		}
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, d)
	default:
		return 0, fmt.Errorf("%w: %v", ErrInvalidDuration, v)
	}
}

func msDuration(n int64, raw any) (time.Duration, error) {
	if n < 0 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidDuration, raw)
	}
	return time.Duration(n) * time.Millisecond, nil
}

// Sleep pauses for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
