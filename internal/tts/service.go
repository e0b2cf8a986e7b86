package tts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/utero-ai/utero-tts/internal/cache"
	"github.com/utero-ai/utero-tts/internal/ttypes"
)

// OutputPrefix starts the name of every output artifact.
const OutputPrefix = "tts_"

// GenerateOptions tunes a single Generate call.
type GenerateOptions struct {
	// UseCache enables the cache lookup and the copy into the cache after a
	// fresh synthesis.
	UseCache bool
}

// Result describes the audio produced for a request.
type Result struct {
	// Path of the MP3 file: the cache entry on a hit, the output file
	// otherwise.
	Path string

	// FileName is the base name of Path, used to build /audio URLs.
	FileName string

	Key      cache.Key
	Bytes    int64
	CacheHit bool
	Duration time.Duration
}

// Service is the cache-checking front of a synthesis engine. It is safe for
// concurrent use; the filesystem is the only shared state.
type Service struct {
	engine  ttypes.TTSEngine
	cache   *cache.Store
	output  *cache.Store
	logger  *log.Logger
	metrics *MetricsRecorder

	newID func() string
}

// NewService wires an engine to its cache and output stores.
func NewService(engine ttypes.TTSEngine, cacheStore, outputStore *cache.Store, logger *log.Logger) (*Service, error) {
	if engine == nil {
		return nil, ErrNoEngineConfigured
	}
	if cacheStore == nil || outputStore == nil {
		return nil, errors.New("cache and output stores are required")
	}
	if logger == nil {
		logger = log.Default()
	}

	return &Service{
		engine:  engine,
		cache:   cacheStore,
		output:  outputStore,
		logger:  logger,
		metrics: NewMetricsRecorder(logger),
		newID:   func() string { return uuid.NewString()[:8] },
	}, nil
}

// Generate returns a path to MP3 audio for req. With UseCache set, an
// existing cache entry is returned without calling the engine; otherwise the
// engine is called, the audio written as a new output file and, with
// UseCache, copied into the cache. Failing to populate the cache is logged and
// does not fail the call.
func (s *Service) Generate(ctx context.Context, req ttypes.SynthesisRequest, opts GenerateOptions) (*Result, error) {
	req = req.Normalize()
	if req.Text == "" {
		return nil, NewTTSError(ErrorCodeInvalidInput, "Text parameter is required", ErrEmptyText)
	}

	info := s.engine.GetInfo()
	m := s.metrics.StartSynthesis(info.Name, len([]rune(req.Text)))
	key := cache.ComputeKey(req)

	if opts.UseCache {
		if path, ok := s.cache.Lookup(key); ok {
			res := &Result{
				Path:     path,
				FileName: key.FileName(),
				Key:      key,
				CacheHit: true,
			}
			if st, err := os.Stat(path); err == nil {
				res.Bytes = st.Size()
			}
			m.EndSynthesis(res.Bytes, true, nil)
			res.Duration = m.SynthesisDuration
			s.logger.Debug("Using cached audio", "key", key)
			return res, nil
		}
	}

	if err := ctx.Err(); err != nil {
		m.EndSynthesis(0, false, err)
		return nil, NewTTSError(ErrorCodeCanceled, "synthesis canceled", err)
	}

	audio, err := s.engine.Synthesize(ctx, req)
	if err == nil && len(audio) == 0 {
		err = errors.New("engine returned no audio")
	}
	if err != nil {
		m.EndSynthesis(0, false, err)
		return nil, classifyEngineError(err).
			WithContext("engine", info.Name).
			WithContext("lang", req.Language)
	}

	name := OutputPrefix + s.newID() + ttypes.AudioExt
	path, err := s.output.WriteFile(name, audio)
	if err != nil {
		m.EndSynthesis(0, false, err)
		return nil, NewTTSError(ErrorCodeOutputWrite, ErrSynthesisFailed.Error(), fmt.Errorf("%w: %w", ErrSynthesisFailed, err))
	}

	if opts.UseCache {
		if _, err := s.cache.Import(key, path); err != nil {
			s.logger.Warn("Could not save audio to cache", "key", key, "err",
				NewTTSError(ErrorCodeCacheWrite, "cache write failed", err))
		}
	}

	m.EndSynthesis(int64(len(audio)), false, nil)
	s.logger.Info("Generated audio", "file", name, "engine", info.Name, "lang", req.Language, "bytes", len(audio))

	return &Result{
		Path:     path,
		FileName: name,
		Key:      key,
		Bytes:    int64(len(audio)),
		Duration: m.SynthesisDuration,
	}, nil
}

// ResolveAudio finds a previously produced file by name, looking in the
// output store first and the cache second.
func (s *Service) ResolveAudio(name string) (string, error) {
	path, err := s.output.Resolve(name)
	if err == nil {
		return path, nil
	}
	if errors.Is(err, cache.ErrInvalidName) {
		return "", err
	}
	return s.cache.Resolve(name)
}

// Engine returns the engine's description.
func (s *Service) Engine() ttypes.EngineInfo {
	return s.engine.GetInfo()
}

// Stats returns the running synthesis totals.
func (s *Service) Stats() Stats {
	return s.metrics.Snapshot()
}

// Cache returns the cache store.
func (s *Service) Cache() *cache.Store {
	return s.cache
}

// Output returns the output store.
func (s *Service) Output() *cache.Store {
	return s.output
}

// Close releases the engine.
func (s *Service) Close() error {
	return s.engine.Close()
}
