package tts

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/utero-ai/utero-tts/internal/cache"
	"github.com/utero-ai/utero-tts/internal/config"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// Policy controls when and how much the Janitor cleans.
type Policy struct {
	Interval        time.Duration
	OutputMaxAge    time.Duration
	CacheMaxEntries int
}

// PolicyFromConfig converts the cleanup section of the config.
func PolicyFromConfig(c config.CleanupConfig) Policy {
	return Policy{
		Interval:        c.Interval,
		OutputMaxAge:    c.OutputMaxAge,
		CacheMaxEntries: c.CacheMaxEntries,
	}
}

// CleanupReport summarises one Janitor run.
type CleanupReport struct {
	At     time.Time
	Output cache.EvictionReport
	Cache  cache.EvictionReport
}

// Janitor sweeps the output and cache stores at most once per interval. It
// is driven by incoming requests rather than a timer.
type Janitor struct {
	output *cache.Store
	cache  *cache.Store
	clock  Clock
	logger *log.Logger

	policy atomic.Pointer[Policy]

	mu      sync.Mutex
	lastRun time.Time
}

// NewJanitor creates a Janitor whose first sweep is due one interval after
// construction.
func NewJanitor(output, cacheStore *cache.Store, policy Policy, clock Clock, logger *log.Logger) *Janitor {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = log.Default()
	}

	j := &Janitor{
		output:  output,
		cache:   cacheStore,
		clock:   clock,
		logger:  logger,
		lastRun: clock.Now(),
	}
	j.policy.Store(&policy)
	return j
}

// SetPolicy replaces the policy for subsequent runs.
func (j *Janitor) SetPolicy(p Policy) {
	j.policy.Store(&p)
	j.logger.Info("Cleanup policy updated",
		"interval", p.Interval,
		"outputMaxAge", p.OutputMaxAge,
		"cacheMaxEntries", p.CacheMaxEntries)
}

// Policy returns the policy in effect.
func (j *Janitor) Policy() Policy {
	return *j.policy.Load()
}

// LastRun returns when the last sweep happened (or the construction time).
func (j *Janitor) LastRun() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastRun
}

// MaybeRun sweeps both stores if more than one interval has passed since the
// last sweep. It never blocks behind a sweep in progress; concurrent callers
// simply skip.
func (j *Janitor) MaybeRun() (CleanupReport, bool) {
	if !j.mu.TryLock() {
		return CleanupReport{}, false
	}
	defer j.mu.Unlock()

	now := j.clock.Now()
	if now.Sub(j.lastRun) <= j.Policy().Interval {
		return CleanupReport{}, false
	}

	return j.run(now), true
}

// RunNow sweeps both stores unconditionally.
func (j *Janitor) RunNow() CleanupReport {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.run(j.clock.Now())
}

func (j *Janitor) run(now time.Time) CleanupReport {
	p := j.Policy()
	report := CleanupReport{
		At:     now,
		Output: j.output.EvictStale(p.OutputMaxAge, now),
		Cache:  j.cache.EvictExcess(p.CacheMaxEntries),
	}
	j.lastRun = now

	j.logger.Info("Cleanup finished",
		"outputRemoved", report.Output.RemovedCount(),
		"cacheRemoved", report.Cache.RemovedCount(),
		"failed", report.Output.Failed+report.Cache.Failed)
	return report
}
