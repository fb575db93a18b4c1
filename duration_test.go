package shx

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	cases := []struct {
		in   any
		want time.Duration
	}{
		{250, 250 * time.Millisecond},
		{int64(5), 5 * time.Millisecond},
		{1.5e3, 1500 * time.Millisecond},
		{"100", 100 * time.Millisecond},
		{"100ms", 100 * time.Millisecond},
		{"5s", 5 * time.Second},
		{"2m", 2 * time.Minute},
		{"1m30s", 90 * time.Second},
		{3 * time.Second, 3 * time.Second},
	}
	for _, tc := range cases {
		got, err := ParseDuration(tc.in)
		if err != nil || got != tc.want {
			t.Errorf("ParseDuration(%v) = %v, %v, want %v", tc.in, got, err, tc.want)
		}
	}

	for _, bad := range []any{"soon", -1, "-5s", struct{}{}} {
		if _, err := ParseDuration(bad); !errors.Is(err, ErrInvalidDuration) {
			t.Errorf("ParseDuration(%v) error = %v, want %v", bad, err, ErrInvalidDuration)
		}
	}
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("Sleep() = %v, want %v", err, context.Canceled)
	}
	if err := Sleep(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("Sleep() = %v", err)
	}
}
