package core

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// fakeClock advances only when the detector sleeps.
type fakeClock struct {
	t      time.Time
	sleeps int
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps++
	c.t = c.t.Add(d)
	return nil
}

// sizeSeq returns the scripted sizes in order; -1 means the file is absent.
// The last entry repeats once the script runs out.
func sizeSeq(sizes ...int64) (func(string) (int64, error), *int) {
	calls := 0
	return func(string) (int64, error) {
		i := calls
		if i >= len(sizes) {
			i = len(sizes) - 1
		}
		calls++
		if sizes[i] < 0 {
			return 0, fs.ErrNotExist
		}
		return sizes[i], nil
	}, &calls
}

func newTestDetector(timeout time.Duration, size func(string) (int64, error)) (*StabilityDetector, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)}
	return &StabilityDetector{
		Timeout:  timeout,
		Interval: 5 * time.Second,
		now:      clock.now,
		sleep:    clock.sleep,
		size:     size,
	}, clock
}

func TestWaitStable(t *testing.T) {
	tests := []struct {
		name      string
		sizes     []int64
		wantPolls int
	}{
		{
			name:      "already stable",
			sizes:     []int64{100},
			wantPolls: 3, // first sample, then two unchanged
		},
		{
			name:      "grows then settles",
			sizes:     []int64{10, 20, 30, 30, 30},
			wantPolls: 5,
		},
		{
			name:      "change resets the counter",
			sizes:     []int64{10, 10, 20, 20, 20},
			wantPolls: 5,
		},
		{
			name:      "absent file resets the counter",
			sizes:     []int64{10, 10, -1, 10, 10, 10},
			wantPolls: 6,
		},
		{
			name:      "appears late",
			sizes:     []int64{-1, -1, 50, 50, 50},
			wantPolls: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size, calls := sizeSeq(tt.sizes...)
			d, _ := newTestDetector(10*time.Minute, size)

			if err := d.WaitStable(context.Background(), "RPT_OnHand.csv"); err != nil {
				t.Fatalf("WaitStable() error: %v", err)
			}
			if *calls != tt.wantPolls {
				t.Errorf("polls = %d, want %d", *calls, tt.wantPolls)
			}
		})
	}
}

func TestWaitStableSettlesAfterKPlusTwoSamples(t *testing.T) {
	// A file growing for k samples succeeds on sample k+2 at the earliest.
	for k := 1; k <= 6; k++ {
		sizes := make([]int64, 0, k+2)
		for i := 1; i <= k; i++ {
			sizes = append(sizes, int64(i*100))
		}
		size, calls := sizeSeq(sizes...)
		d, clock := newTestDetector(time.Hour, size)

		if err := d.WaitStable(context.Background(), "f"); err != nil {
			t.Fatalf("k=%d: WaitStable() error: %v", k, err)
		}
		if *calls != k+2 {
			t.Errorf("k=%d: polls = %d, want %d", k, *calls, k+2)
		}
		if clock.sleeps != k+1 {
			t.Errorf("k=%d: sleeps = %d, want %d", k, clock.sleeps, k+1)
		}
	}
}

func TestWaitStableTimeout(t *testing.T) {
	grow := int64(0)
	size := func(string) (int64, error) {
		grow += 10
		return grow, nil
	}
	d, _ := newTestDetector(30*time.Second, size)

	err := d.WaitStable(context.Background(), "RPT_OnHand.csv")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("WaitStable() error = %v, want ErrTimeout", err)
	}

	var se *StageError
	if !errors.As(err, &se) || se.Code != "STAB001" {
		t.Fatalf("error = %v, want STAB001", err)
	}
	if se.Path != "RPT_OnHand.csv" {
		t.Errorf("Path = %q", se.Path)
	}
	if !strings.Contains(err.Error(), "30s") || !strings.Contains(err.Error(), "last size 60") {
		t.Errorf("error %q should name the timeout and last size", err)
	}
}

func TestWaitStableAbsentUntilTimeout(t *testing.T) {
	size, _ := sizeSeq(-1)
	d, _ := newTestDetector(20*time.Second, size)

	err := d.WaitStable(context.Background(), "f")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("WaitStable() error = %v, want ErrTimeout", err)
	}
	if !strings.Contains(err.Error(), "last size -1") {
		t.Errorf("error %q should report no observed size", err)
	}
}

func TestWaitStableStatFailure(t *testing.T) {
	size := func(string) (int64, error) { return 0, fs.ErrPermission }
	d, _ := newTestDetector(time.Minute, size)

	err := d.WaitStable(context.Background(), "f")
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("WaitStable() error = %v, want ErrTransport", err)
	}
	if !errors.Is(err, fs.ErrPermission) {
		t.Error("error does not wrap the stat failure")
	}
}

func TestWaitStableCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	size, _ := sizeSeq(10, 20, 30)
	d, _ := newTestDetector(time.Minute, size)

	err := d.WaitStable(ctx, "f")
	if !errors.Is(err, ErrTimeout) || !errors.Is(err, context.Canceled) {
		t.Fatalf("WaitStable() error = %v, want ErrTimeout wrapping context.Canceled", err)
	}
}

func TestWaitStableRealFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "RPT_OnHand.csv")
	if err := os.WriteFile(path, []byte("a,b\n1,2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	d := &StabilityDetector{Timeout: 2 * time.Second, Interval: 10 * time.Millisecond}
	if err := d.WaitStable(context.Background(), path); err != nil {
		t.Fatalf("WaitStable() error: %v", err)
	}
}
