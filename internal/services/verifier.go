package services

import (
	"context"
	"time"

	"github.com/remediarr/remediarr/internal/clock"
	"github.com/remediarr/remediarr/internal/logger"
)

// GrabChecker is the slice of a downstream manager the verifier needs.
// Both the Radarr client (keyed by movie id) and the Sonarr client (keyed
// by episode id) satisfy it.
type GrabChecker interface {
	QueueContains(ctx context.Context, id int64) (bool, error)
	HasGrabSince(ctx context.Context, id int64, baseline time.Time) (bool, error)
}

// Verifier polls a downstream manager until it can confirm that a search
// produced a new grab. Only grabs strictly after the baseline count: a
// download that happened to start right before remediation must not be
// misreported as this action's result.
type Verifier struct {
	clk  clock.Clock
	poll time.Duration
}

func NewVerifier(clk clock.Clock, poll time.Duration) *Verifier {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	if poll <= 0 {
		poll = 5 * time.Second
	}
	return &Verifier{clk: clk, poll: poll}
}

// WaitForGrab polls queue and grab history at the configured interval until
// the budget runs out. Check failures are treated as "not yet verified".
func (v *Verifier) WaitForGrab(ctx context.Context, checker GrabChecker, id int64, baseline time.Time, budget time.Duration) bool {
	deadline := v.clk.Now().Add(budget)

	for {
		if grabbed, err := checker.HasGrabSince(ctx, id, baseline); err != nil {
			logger.Debugf("Verifier: history check for %d failed: %v", id, err)
		} else if grabbed {
			return true
		}

		if queued, err := checker.QueueContains(ctx, id); err != nil {
			logger.Debugf("Verifier: queue check for %d failed: %v", id, err)
		} else if queued {
			return true
		}

		if !v.clk.Now().Before(deadline) {
			return false
		}
		if err := waitOnClock(ctx, v.clk, v.poll); err != nil {
			return false
		}
	}
}

// waitOnClock sleeps on the injected clock, aborting when ctx is done.
func waitOnClock(ctx context.Context, clk clock.Clock, d time.Duration) error {
	fired := make(chan struct{})
	timer := clk.AfterFunc(d, func() { close(fired) })
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-fired:
		return nil
	}
}
