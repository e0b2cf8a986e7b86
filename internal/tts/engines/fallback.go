package engines

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/utero-ai/utero-tts/internal/ttypes"
)

// FallbackEngine wraps a primary engine with a secondary one that takes over
// once the primary has failed maxFailures times in a row. The switch is
// sticky until Reset.
type FallbackEngine struct {
	primary     ttypes.TTSEngine
	fallback    ttypes.TTSEngine
	maxFailures int
	logger      *log.Logger

	mu            sync.Mutex
	failures      int
	usingFallback bool
}

// NewFallbackEngine creates an engine with automatic failover. A maxFailures
// below one switches on the first failure.
func NewFallbackEngine(primary, fallback ttypes.TTSEngine, maxFailures int, logger *log.Logger) *FallbackEngine {
	if maxFailures < 1 {
		maxFailures = 1
	}
	if logger == nil {
		logger = log.Default()
	}
	return &FallbackEngine{
		primary:     primary,
		fallback:    fallback,
		maxFailures: maxFailures,
		logger:      logger,
	}
}

// Synthesize uses the active engine. A primary failure is always returned to
// the caller; reaching the threshold only moves later requests to the fallback.
func (f *FallbackEngine) Synthesize(ctx context.Context, req ttypes.SynthesisRequest) ([]byte, error) {
	if f.UsingFallback() {
		return f.fallback.Synthesize(ctx, req)
	}

	audio, err := f.primary.Synthesize(ctx, req)
	if err == nil {
		f.mu.Lock()
		if f.failures > 0 {
			f.logger.Info("Primary engine recovered", "failures", f.failures)
			f.failures = 0
		}
		f.mu.Unlock()
		return audio, nil
	}

	// Cancellation says nothing about the provider.
	if ctx.Err() != nil {
		return nil, err
	}

	f.mu.Lock()
	f.failures++
	failures := f.failures
	switched := !f.usingFallback && failures >= f.maxFailures
	if switched {
		f.usingFallback = true
	}
	f.mu.Unlock()

	f.logger.Warn("Primary engine failed",
		"engine", f.primary.GetInfo().Name,
		"attempt", failures,
		"max", f.maxFailures,
		"err", err)
	if switched {
		f.logger.Warn("Switching to fallback engine", "engine", f.fallback.GetInfo().Name)
	}
	return nil, err
}

// UsingFallback reports whether the fallback engine is active.
func (f *FallbackEngine) UsingFallback() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.usingFallback
}

// Reset returns to the primary engine.
func (f *FallbackEngine) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = 0
	f.usingFallback = false
	f.logger.Info("Reset to primary engine")
}

// Status describes the active engine for humans.
func (f *FallbackEngine) Status() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.usingFallback {
		return fmt.Sprintf("using fallback %s (primary failed %d times)", f.fallback.GetInfo().Name, f.failures)
	}
	return fmt.Sprintf("using primary %s (failures: %d/%d)", f.primary.GetInfo().Name, f.failures, f.maxFailures)
}

// GetInfo returns the info of the active engine.
func (f *FallbackEngine) GetInfo() ttypes.EngineInfo {
	if f.UsingFallback() {
		return f.fallback.GetInfo()
	}
	return f.primary.GetInfo()
}

// Validate succeeds when either engine is usable.
func (f *FallbackEngine) Validate() error {
	primaryErr := f.primary.Validate()
	if primaryErr == nil {
		return nil
	}
	fallbackErr := f.fallback.Validate()
	if fallbackErr == nil {
		return nil
	}
	return fmt.Errorf("no usable engine: %w", errors.Join(primaryErr, fallbackErr))
}

// Close closes both engines.
func (f *FallbackEngine) Close() error {
	var errs []error
	if err := f.primary.Close(); err != nil {
		errs = append(errs, fmt.Errorf("primary close: %w", err))
	}
	if err := f.fallback.Close(); err != nil {
		errs = append(errs, fmt.Errorf("fallback close: %w", err))
	}
	return errors.Join(errs...)
}
