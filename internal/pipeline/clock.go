package pipeline

import (
	"context"
	"time"
)

// Clock abstracts time so runs can be driven without wall-clock waits
type Clock interface {
	Now() time.Time
	// Sleep suspends for d or until ctx is done
	Sleep(ctx context.Context, d time.Duration) error
}

// RealClock uses the system clock
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

func (RealClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
