package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storyweaver/harvester/internal/domain"
	"storyweaver/harvester/internal/state"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// schedule drives the queue from its cursor with a fixed pool of workers.
// Cancelling ctx stops dispatch; items already taken run to one of their exit points.
// Only a failure to persist the queue aborts the run.
func (s *Service) schedule(ctx context.Context, tracker *state.Tracker) error {
	workers := s.opts.MaxWorkers
	if s.opts.Mode == ModeSequential {
		workers = 1
	}
	log.Infof("🚀 Processing %d items from position %d with %d worker(s) in %s mode",
		tracker.Len()-tracker.Cursor(), tracker.Cursor(), workers, s.opts.Mode)

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan int)

	g.Go(func() error {
		defer close(jobs)
		for i := tracker.Cursor(); i < tracker.Len(); i++ {
			if tracker.Item(i).Status.IsTerminal() {
				continue
			}
			if gctx.Err() != nil {
				log.Info("🛑 Dispatcher stopping, no new items will be started")
				return nil
			}
			select {
			case <-gctx.Done():
				log.Info("🛑 Dispatcher stopping, no new items will be started")
				return nil
			case jobs <- i:
			}
		}
		return nil
	})

	for w := 1; w <= workers; w++ {
		g.Go(func() error {
			for i := range jobs {
				if err := s.runItem(gctx, tracker, i); err != nil {
					log.Errorf("❌ Worker %d stopping: %v", w, err)
					return err
				}
			}
			return nil
		})
	}

	stopProgress := s.startProgress(tracker)
	defer stopProgress()

	return g.Wait()
}

// runItem takes one item to a terminal state, or back to Pending when shutdown interrupts
// a backoff. Any returned error comes from the tracker and aborts the run.
func (s *Service) runItem(ctx context.Context, tracker *state.Tracker, i int) error {
	if ctx.Err() != nil {
		// Dispatched just as shutdown began; leave it Pending
		return nil
	}
	// Network work is never cut short by shutdown
	work := context.WithoutCancel(ctx)
	maxAttempts := s.opts.MaxAttempts

	if current := tracker.Item(i); current.Attempts >= maxAttempts {
		return tracker.Fail(work, i, fmt.Errorf("attempt budget of %d exhausted", maxAttempts))
	}

	for {
		item, err := tracker.Attempt(work, i)
		if err != nil {
			return err
		}
		logger := log.WithFields(log.Fields{"remote_id": item.RemoteID, "slug": item.Slug, "attempt": item.Attempts})

		out, perr := s.process(work, item)
		if perr == nil {
			return tracker.Complete(work, i, out)
		}

		kind := domain.ErrorKind(perr)
		canRetry := item.Attempts < maxAttempts

		switch {
		case domain.IsRetryable(perr) && canRetry:
			delay := s.backoff(item.Attempts, domain.RetryAfter(perr))
			if err := tracker.RecordError(work, i, perr); err != nil {
				return err
			}
			logger.Warnf("⏳ Rate limited, retrying in %v (attempt %d/%d)", delay, item.Attempts, maxAttempts)
			if err := s.sleep(ctx, delay); err != nil {
				logger.Info("🛑 Shutdown during backoff, releasing item")
				return tracker.Release(work, i)
			}
			continue

		case errors.Is(perr, domain.ErrAntiBot) && canRetry && s.antiBotHook != nil:
			if err := tracker.RecordError(work, i, perr); err != nil {
				return err
			}
			if ctx.Err() == nil && s.antiBotHook(ctx, item, perr) {
				logger.Info("🔄 Operator cleared the challenge, retrying")
				continue
			}
			if ctx.Err() != nil {
				return tracker.Release(work, i)
			}
		}

		logger.Errorf("❌ Failed (%s): %v", kind, perr)
		return tracker.Fail(work, i, perr)
	}
}

// backoff doubles from the base per attempt, capped, unless the server asked for longer
func (s *Service) backoff(attempt int, retryAfter time.Duration) time.Duration {
	d := s.opts.BackoffBase
	for n := 1; n < attempt && d < s.opts.BackoffMax; n++ {
		d *= 2
	}
	if s.opts.BackoffMax > 0 && d > s.opts.BackoffMax {
		d = s.opts.BackoffMax
	}
	if retryAfter > d {
		d = retryAfter
	}
	return d
}

func (s *Service) startProgress(tracker *state.Tracker) func() {
	if s.opts.ProgressInterval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		ticker := time.NewTicker(s.opts.ProgressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				logProgress(tracker.Summary())
			}
		}
	}()

	return func() {
		close(done)
		<-stopped
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
