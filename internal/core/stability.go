package core

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

// StableSamples is how many consecutive unchanged size samples mark a file as complete.
const StableSamples = 2

// StabilityDetector waits for a file written by an external producer to stop growing.
// The file's size is the only completion signal available.
type StabilityDetector struct {
	Timeout  time.Duration
	Interval time.Duration

	// test hooks; nil means the real clock and filesystem
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	size  func(path string) (int64, error)
}

// WaitStable blocks until the size of path has been unchanged across
// StableSamples consecutive polls, or the timeout elapses.
//
// An absent file is "not yet stable": it resets the counter and is not an error.
// Any other stat failure aborts with a transport error.
func (d *StabilityDetector) WaitStable(ctx context.Context, path string) error {
	now, sleep, size := d.hooks()

	start := now()
	lastSize := int64(-1)
	unchanged := 0
	polls := 0

	for now().Sub(start) < d.Timeout {
		polls++
		n, err := size(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			lastSize = -1
			unchanged = 0
		case err != nil:
			return stageErr(StageStability, ErrTransport, "XFER001", path, fmt.Errorf("stat: %w", err))
		case n == lastSize:
			unchanged++
			if unchanged >= StableSamples {
				return nil
			}
		default:
			unchanged = 0
			lastSize = n
		}

		if err := sleep(ctx, d.Interval); err != nil {
			return stageErr(StageStability, ErrTimeout, "STAB002", path, err)
		}
	}

	return stageErr(StageStability, ErrTimeout, "STAB001", path,
		fmt.Errorf("size did not settle within %s after %d polls (last size %d)", d.Timeout, polls, lastSize))
}

func (d *StabilityDetector) hooks() (func() time.Time, func(context.Context, time.Duration) error, func(string) (int64, error)) {
	now, sleep, size := d.now, d.sleep, d.size
	if now == nil {
		now = time.Now
	}
	if sleep == nil {
		sleep = sleepContext
	}
	if size == nil {
		size = fileSize
	}
	return now, sleep, size
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
