package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"imagestudio/genimg"
)

var (
	// ErrAlreadyRunning is returned by Run when the session already has a
	// batch in flight.
	ErrAlreadyRunning = errors.New("pipeline: a batch run is already in progress")

	// ErrStopped is returned by Run when the user cancelled the batch.
	// Items completed before the stop are kept.
	ErrStopped = errors.New("pipeline: " + StopMessage)
)

// Config holds the engine timing knobs. The defaults mirror the pacing
// free-tier image APIs tolerate: just over a minute between requests.
type Config struct {
	// MaxAttempts is the per-item attempt budget, including the first try.
	MaxAttempts int

	// InitialBackoff is the wait after the first rate-limited attempt.
	// Each further attempt doubles it.
	InitialBackoff time.Duration

	// ItemCooldown is the pause between consecutive items. No cooldown
	// follows the last item.
	ItemCooldown time.Duration

	// Tick is the cadence of countdown status updates during waits.
	Tick time.Duration
}

// DefaultConfig returns the standard engine timing.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialBackoff: 60100 * time.Millisecond,
		ItemCooldown:   60100 * time.Millisecond,
		Tick:           time.Second,
	}
}

// ItemFunc performs the work for one batch index. A nil return marks the
// item complete; a rate-limit error triggers backoff and retry; any other
// error aborts the whole run.
type ItemFunc func(ctx context.Context, index int) error

// Engine drives sequential batch runs against a Session.
//
// Thread Safety: a single Engine may be shared; concurrent Run calls on
// the same session are rejected with ErrAlreadyRunning.
type Engine struct {
	config  Config
	session *Session
	logger  *zap.Logger

	// wait is swapped in tests to observe pacing without real sleeps.
	wait func(ctx context.Context, d time.Duration, format string) error
}

// NewEngine creates a batch engine bound to a session.
func NewEngine(config Config, session *Session, logger *zap.Logger) (*Engine, error) {
	if session == nil {
		return nil, fmt.Errorf("pipeline: session is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("pipeline: logger is required")
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.Tick <= 0 {
		config.Tick = time.Second
	}
	e := &Engine{
		config:  config,
		session: session,
		logger:  logger.Named("pipeline"),
	}
	e.wait = e.countdownWait
	return e, nil
}

// Session returns the session this engine drives.
func (e *Engine) Session() *Session { return e.session }

// Run executes count items sequentially. label names the unit of work in
// status messages ("image", "edit"). Completed items are never rolled
// back: on stop or failure the caller keeps whatever already succeeded.
func (e *Engine) Run(ctx context.Context, label string, count int, item ItemFunc) error {
	if count <= 0 {
		return fmt.Errorf("pipeline: item count must be positive, got %d", count)
	}
	if item == nil {
		return fmt.Errorf("pipeline: item function is required")
	}

	runCtx, err := e.session.begin(ctx, count)
	if err != nil {
		return err
	}

	e.logger.Info("Batch run starting",
		zap.String("label", label),
		zap.Int("count", count),
	)

	err = e.run(runCtx, label, count, item)
	switch {
	case err == nil:
		// Completion clears the status line; the caller reports success.
		e.session.finish(nil, "")
		e.logger.Info("Batch run complete", zap.Int("count", count))
	case errors.Is(err, ErrStopped):
		e.session.finish(err, StopMessage)
		e.logger.Info("Batch run stopped by user",
			zap.Int("completed", e.session.Snapshot().Completed),
		)
	default:
		e.session.finish(err, err.Error())
		e.logger.Error("Batch run failed", zap.Error(err))
	}
	return err
}

func (e *Engine) run(ctx context.Context, label string, count int, item ItemFunc) error {
	for i := 0; i < count; i++ {
		if err := e.runItem(ctx, label, i, count, item); err != nil {
			return err
		}
		e.session.itemDone()

		// Pace the API between items, but not after the final one.
		if i < count-1 && e.config.ItemCooldown > 0 {
			msg := fmt.Sprintf("Waiting before %s %d of %d... %%ds remaining", label, i+2, count)
			if err := e.wait(ctx, e.config.ItemCooldown, msg); err != nil {
				return ErrStopped
			}
		}
	}
	return nil
}

func (e *Engine) runItem(ctx context.Context, label string, index, count int, item ItemFunc) error {
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return ErrStopped
		}

		if attempt == 1 {
			e.session.publish(fmt.Sprintf("Processing %s %d of %d...", label, index+1, count))
		} else {
			e.session.publish(fmt.Sprintf("Processing %s %d of %d (attempt %d of %d)...",
				label, index+1, count, attempt, e.config.MaxAttempts))
		}

		err := item(ctx, index)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ErrStopped
		}

		if !genimg.IsRateLimit(err) {
			// Anything that is not a rate limit will not heal with time.
			return fmt.Errorf("pipeline: %s %d of %d failed: %w", label, index+1, count, err)
		}

		e.logger.Warn("Rate limited",
			zap.String("label", label),
			zap.Int("index", index+1),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		if attempt >= e.config.MaxAttempts {
			return fmt.Errorf("pipeline: failed to process %s %d after %d attempts: %w",
				label, index+1, e.config.MaxAttempts, err)
		}

		backoff := e.config.InitialBackoff << (attempt - 1)
		msg := fmt.Sprintf("Rate limited on %s %d of %d. Retrying in %%ds...", label, index+1, count)
		if werr := e.wait(ctx, backoff, msg); werr != nil {
			return ErrStopped
		}
	}
}

// countdownWait sleeps for d, publishing a status line with the seconds
// remaining on every tick. format must contain one %d verb for the
// remaining seconds. Returns the context error if cancelled mid-wait.
func (e *Engine) countdownWait(ctx context.Context, d time.Duration, format string) error {
	deadline := time.Now().Add(d)
	e.session.publish(fmt.Sprintf(format, secondsUntil(deadline)))

	ticker := time.NewTicker(e.config.Tick)
	defer ticker.Stop()

	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case <-ticker.C:
			e.session.publish(fmt.Sprintf(format, secondsUntil(deadline)))
		}
	}
}

func secondsUntil(deadline time.Time) int {
	remaining := int(time.Until(deadline).Round(time.Second) / time.Second)
	if remaining < 0 {
		return 0
	}
	return remaining
}
