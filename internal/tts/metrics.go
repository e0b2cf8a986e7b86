package tts

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Metrics holds the measurements of one Generate call.
type Metrics struct {
	Engine            string
	TextLength        int
	SynthesisStart    time.Time
	SynthesisDuration time.Duration
	AudioBytes        int64
	CacheHit          bool
	ErrorOccurred     bool
	ErrorMessage      string

	recorder *MetricsRecorder
}

// Stats aggregates Metrics over the life of a Service.
type Stats struct {
	Requests      uint64
	CacheHits     uint64
	CacheMisses   uint64
	Failures      uint64
	AudioBytes    int64
	TotalDuration time.Duration
}

// HitRatio returns the fraction of successful requests served from cache.
func (s Stats) HitRatio() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total)
}

// AverageDuration returns the mean Generate latency.
func (s Stats) AverageDuration() time.Duration {
	if s.Requests == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(s.Requests)
}

// MetricsRecorder logs synthesis metrics and keeps running totals.
type MetricsRecorder struct {
	logger *log.Logger

	mu    sync.Mutex
	stats Stats
}

// NewMetricsRecorder returns a recorder that logs to logger.
func NewMetricsRecorder(logger *log.Logger) *MetricsRecorder {
	if logger == nil {
		logger = log.Default()
	}
	return &MetricsRecorder{logger: logger}
}

// StartSynthesis starts tracking one request.
func (r *MetricsRecorder) StartSynthesis(engine string, textLength int) *Metrics {
	m := &Metrics{
		Engine:         engine,
		TextLength:     textLength,
		SynthesisStart: time.Now(),
		recorder:       r,
	}

	r.logger.Debug("Synthesis started", "engine", engine, "textLength", textLength)
	return m
}

// EndSynthesis completes tracking and folds the result into the totals.
func (m *Metrics) EndSynthesis(audioBytes int64, cacheHit bool, err error) {
	m.SynthesisDuration = time.Since(m.SynthesisStart)
	m.AudioBytes = audioBytes
	m.CacheHit = cacheHit
	if err != nil {
		m.ErrorOccurred = true
		m.ErrorMessage = err.Error()
	}

	r := m.recorder
	if r == nil {
		return
	}

	r.mu.Lock()
	r.stats.Requests++
	r.stats.TotalDuration += m.SynthesisDuration
	switch {
	case m.ErrorOccurred:
		r.stats.Failures++
	case cacheHit:
		r.stats.CacheHits++
		r.stats.AudioBytes += audioBytes
	default:
		r.stats.CacheMisses++
		r.stats.AudioBytes += audioBytes
	}
	r.mu.Unlock()

	if m.ErrorOccurred {
		r.logger.Error("Synthesis failed",
			"engine", m.Engine,
			"duration", m.SynthesisDuration,
			"err", m.ErrorMessage)
		return
	}
	r.logger.Debug("Synthesis completed",
		"engine", m.Engine,
		"textLength", m.TextLength,
		"audioBytes", m.AudioBytes,
		"duration", m.SynthesisDuration,
		"cacheHit", m.CacheHit)
}

// Snapshot returns the running totals.
func (r *MetricsRecorder) Snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
