package tts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/utero-ai/utero-tts/internal/cache"
	"github.com/utero-ai/utero-tts/internal/tts/engines/mock"
	"github.com/utero-ai/utero-tts/internal/ttypes"
)

func newTestService(t *testing.T) (*Service, *mock.Engine) {
	t.Helper()
	root := t.TempDir()

	cacheStore, err := cache.NewStore(filepath.Join(root, "audio_cache"), nil)
	require.NoError(t, err)
	outputStore, err := cache.NewStore(filepath.Join(root, "audio_output"), nil)
	require.NoError(t, err)

	engine := mock.New()
	svc, err := NewService(engine, cacheStore, outputStore, nil)
	require.NoError(t, err)
	return svc, engine
}

func countFiles(t *testing.T, s *cache.Store) int {
	t.Helper()
	entries, err := s.Entries()
	require.NoError(t, err)
	return len(entries)
}

func TestService_CacheHitSkipsProvider(t *testing.T) {
	svc, engine := newTestService(t)
	req := ttypes.SynthesisRequest{Text: "Halo dunia", Language: "id", Slow: false}
	opts := GenerateOptions{UseCache: true}

	first, err := svc.Generate(context.Background(), req, opts)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)
	assert.True(t, strings.HasPrefix(first.FileName, "tts_"))
	assert.Equal(t, filepath.Join(svc.Output().Dir(), first.FileName), first.Path)
	assert.Len(t, strings.TrimSuffix(strings.TrimPrefix(first.FileName, "tts_"), ".mp3"), 8)

	second, err := svc.Generate(context.Background(), req, opts)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Key, second.Key)

	cachedPath, ok := svc.Cache().Lookup(first.Key)
	require.True(t, ok)
	assert.Equal(t, cachedPath, second.Path)

	assert.Equal(t, 1, engine.CallCount(), "provider must be invoked exactly once")

	firstBytes, err := os.ReadFile(first.Path)
	require.NoError(t, err)
	secondBytes, err := os.ReadFile(second.Path)
	require.NoError(t, err)
	assert.Equal(t, firstBytes, secondBytes)
	assert.Equal(t, int64(len(secondBytes)), second.Bytes)

	stats := svc.Stats()
	assert.Equal(t, uint64(2), stats.Requests)
	assert.Equal(t, uint64(1), stats.CacheHits)
	assert.Equal(t, uint64(1), stats.CacheMisses)
	assert.InDelta(t, 0.5, stats.HitRatio(), 0.001)
}

func TestService_TrimmedTextSharesCacheEntry(t *testing.T) {
	svc, engine := newTestService(t)
	opts := GenerateOptions{UseCache: true}

	_, err := svc.Generate(context.Background(), ttypes.SynthesisRequest{Text: "Halo dunia", Language: "id"}, opts)
	require.NoError(t, err)
	res, err := svc.Generate(context.Background(), ttypes.SynthesisRequest{Text: "  Halo dunia \n", Language: "id"}, opts)
	require.NoError(t, err)

	assert.True(t, res.CacheHit)
	assert.Equal(t, 1, engine.CallCount())
	assert.Equal(t, "Halo dunia", engine.Requests()[0].Text)
}

func TestService_WithoutCache(t *testing.T) {
	svc, engine := newTestService(t)
	req := ttypes.SynthesisRequest{Text: "Selamat pagi", Language: "id"}

	a, err := svc.Generate(context.Background(), req, GenerateOptions{})
	require.NoError(t, err)
	b, err := svc.Generate(context.Background(), req, GenerateOptions{})
	require.NoError(t, err)

	assert.False(t, a.CacheHit)
	assert.False(t, b.CacheHit)
	assert.NotEqual(t, a.FileName, b.FileName)
	assert.Equal(t, 2, engine.CallCount())
	assert.Equal(t, 0, countFiles(t, svc.Cache()), "cache must stay untouched")
	assert.Equal(t, 2, countFiles(t, svc.Output()))
}

func TestService_SlowIsPartOfIdentity(t *testing.T) {
	svc, engine := newTestService(t)
	opts := GenerateOptions{UseCache: true}

	normal, err := svc.Generate(context.Background(), ttypes.SynthesisRequest{Text: "Halo", Language: "id"}, opts)
	require.NoError(t, err)
	slow, err := svc.Generate(context.Background(), ttypes.SynthesisRequest{Text: "Halo", Language: "id", Slow: true}, opts)
	require.NoError(t, err)

	assert.NotEqual(t, normal.Key, slow.Key)
	assert.False(t, slow.CacheHit)
	assert.Equal(t, 2, engine.CallCount())
}

func TestService_EmptyText(t *testing.T) {
	svc, engine := newTestService(t)

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := svc.Generate(context.Background(), ttypes.SynthesisRequest{Text: text, Language: "id"}, GenerateOptions{UseCache: true})
		require.Error(t, err)

		te, ok := AsTTSError(err)
		require.True(t, ok)
		assert.Equal(t, ErrorCodeInvalidInput, te.Code)
		assert.ErrorIs(t, err, ErrEmptyText)
	}

	assert.Equal(t, 0, engine.CallCount())
	assert.Equal(t, 0, countFiles(t, svc.Output()))
	assert.Equal(t, 0, countFiles(t, svc.Cache()))
}

func TestService_ProviderFailure(t *testing.T) {
	svc, engine := newTestService(t)
	engine.SetFailure(errors.New("language not supported"))

	_, err := svc.Generate(context.Background(), ttypes.SynthesisRequest{Text: "Halo", Language: "xx"}, GenerateOptions{UseCache: true})
	require.Error(t, err)

	te, ok := AsTTSError(err)
	require.True(t, ok)
	assert.Equal(t, ErrorCodeEngineFailure, te.Code)
	assert.Equal(t, "failed to generate audio", te.Message)
	assert.ErrorIs(t, err, ErrSynthesisFailed)
	assert.Equal(t, "xx", te.Context["lang"])

	assert.Equal(t, 0, countFiles(t, svc.Output()))
	assert.Equal(t, 0, countFiles(t, svc.Cache()))
	assert.Equal(t, uint64(1), svc.Stats().Failures)
}

func TestService_ProviderTimeout(t *testing.T) {
	svc, engine := newTestService(t)
	engine.SetDelay(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := svc.Generate(ctx, ttypes.SynthesisRequest{Text: "Halo", Language: "id"}, GenerateOptions{})
	te, ok := AsTTSError(err)
	require.True(t, ok)
	assert.Equal(t, ErrorCodeEngineTimeout, te.Code)
}

func TestService_CanceledBeforeSynthesis(t *testing.T) {
	svc, engine := newTestService(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Generate(ctx, ttypes.SynthesisRequest{Text: "Halo", Language: "id"}, GenerateOptions{UseCache: true})
	te, ok := AsTTSError(err)
	require.True(t, ok)
	assert.Equal(t, ErrorCodeCanceled, te.Code)
	assert.Equal(t, 0, engine.CallCount())
}

func TestService_CacheWriteFailureIsNotFatal(t *testing.T) {
	svc, _ := newTestService(t)

	// Replace the cache directory with a file so imports fail.
	require.NoError(t, os.RemoveAll(svc.Cache().Dir()))
	require.NoError(t, os.WriteFile(svc.Cache().Dir(), []byte("not a dir"), 0o644))

	res, err := svc.Generate(context.Background(), ttypes.SynthesisRequest{Text: "Halo", Language: "id"}, GenerateOptions{UseCache: true})
	require.NoError(t, err)
	assert.FileExists(t, res.Path)
}

func TestService_ResolveAudio(t *testing.T) {
	svc, _ := newTestService(t)

	res, err := svc.Generate(context.Background(), ttypes.SynthesisRequest{Text: "Halo", Language: "id"}, GenerateOptions{UseCache: true})
	require.NoError(t, err)

	path, err := svc.ResolveAudio(res.FileName)
	require.NoError(t, err)
	assert.Equal(t, res.Path, path)

	// Cached entries are reachable by key name once output files are gone.
	path, err = svc.ResolveAudio(res.Key.FileName())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(svc.Cache().Dir(), res.Key.FileName()), path)

	_, err = svc.ResolveAudio("tts_missing.mp3")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)

	_, err = svc.ResolveAudio("../audio_cache/" + res.Key.FileName())
	assert.ErrorIs(t, err, cache.ErrInvalidName)
}

func TestService_ConcurrentMisses(t *testing.T) {
	svc, engine := newTestService(t)
	req := ttypes.SynthesisRequest{Text: "race", Language: "id"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Generate(context.Background(), req, GenerateOptions{UseCache: true})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, engine.CallCount(), 1)
	assert.Equal(t, 1, countFiles(t, svc.Cache()))
}

func TestNewService_Errors(t *testing.T) {
	store, err := cache.NewStore(t.TempDir(), nil)
	require.NoError(t, err)

	_, err = NewService(nil, store, store, nil)
	assert.ErrorIs(t, err, ErrNoEngineConfigured)

	_, err = NewService(mock.New(), nil, store, nil)
	assert.Error(t, err)
}

func TestService_Close(t *testing.T) {
	svc, engine := newTestService(t)
	require.NoError(t, svc.Close())
	assert.True(t, engine.Closed())
	assert.Equal(t, "mock", svc.Engine().Name)
}
