package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRunInvokesJobEachCycle(t *testing.T) {
	s := New(Options{Interval: 20 * time.Millisecond}, zerolog.Nop())

	var calls atomic.Int64
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(ctx context.Context, bucket time.Time) error {
			calls.Add(1)
			return nil
		})
	}()

	deadline := time.After(2 * time.Second)
	for calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("job ran %d times before the deadline, want at least 3", calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}
}

func TestRunSurvivesJobFailure(t *testing.T) {
	s := New(Options{Interval: 10 * time.Millisecond}, zerolog.Nop())

	var calls atomic.Int64
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx, func(ctx context.Context, bucket time.Time) error {
		calls.Add(1)
		return errors.New("cycle blew up")
	})

	deadline := time.After(2 * time.Second)
	for calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("a failed cycle must not stop the loop")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestAlignedBuckets(t *testing.T) {
	s := New(Options{Interval: 25 * time.Millisecond, AlignToBucket: true}, zerolog.Nop())

	buckets := make(chan time.Time, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx, func(ctx context.Context, bucket time.Time) error {
		select {
		case buckets <- bucket:
		default:
		}
		return nil
	})

	for i := 0; i < 2; i++ {
		select {
		case bucket := <-buckets:
			if !bucket.Equal(bucket.Truncate(s.opts.Interval)) {
				t.Fatalf("bucket %v is not aligned to the interval", bucket)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("no cycle fired before the deadline")
		}
	}
}

func TestNewRejectsNonPositiveInterval(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected a panic for a zero interval")
		}
	}()
	New(Options{}, zerolog.Nop())
}
