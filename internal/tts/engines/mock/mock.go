// Package mock provides a mock TTS engine for testing.
package mock

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/utero-ai/utero-tts/internal/ttypes"
)

// frameSize is the length of one 128 kbit/s, 44.1 kHz MPEG-1 Layer III frame.
const frameSize = 417

// silentFrame is a mono MP3 frame with empty side info, which decodes to
// 1152 samples of silence.
var silentFrame = func() []byte {
	f := make([]byte, frameSize)
	copy(f, []byte{0xFF, 0xFB, 0x90, 0xC4})
	return f
}()

// ErrUnavailable is returned by Validate after SetAvailable(false).
var ErrUnavailable = errors.New("mock engine unavailable")

// Engine implements ttypes.TTSEngine without any provider.
type Engine struct {
	mu sync.Mutex

	// Control for testing
	delay        time.Duration
	shouldFail   bool
	failureError error
	available    bool

	// State
	callCount int
	requests  []ttypes.SynthesisRequest
	closed    bool
}

// New creates a new mock TTS engine.
func New() *Engine {
	return &Engine{available: true}
}

// Synthesize returns silent MP3 frames, one per 10 characters of text.
func (e *Engine) Synthesize(ctx context.Context, req ttypes.SynthesisRequest) ([]byte, error) {
	e.mu.Lock()
	e.callCount++
	e.requests = append(e.requests, req)
	delay, fail, failErr := e.delay, e.shouldFail, e.failureError
	e.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if fail {
		return nil, failErr
	}
	if req.Text == "" {
		return nil, errors.New("text cannot be empty")
	}

	frames := len([]rune(req.Text))/10 + 1
	if req.Slow {
		frames *= 2
	}
	return bytes.Repeat(silentFrame, frames), nil
}

// GetInfo returns the engine description.
func (e *Engine) GetInfo() ttypes.EngineInfo {
	return ttypes.EngineInfo{
		Name:    string(ttypes.EngineMock),
		Version: "1.0.0",
		Format:  "mp3",
	}
}

// Validate reports whether the engine is available.
func (e *Engine) Validate() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.available {
		return ErrUnavailable
	}
	return nil
}

// Close marks the engine closed.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// Testing helpers

// SetDelay sets the simulated provider latency.
func (e *Engine) SetDelay(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.delay = d
}

// SetFailure makes Synthesize return err (or stop failing when err is nil).
func (e *Engine) SetFailure(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.shouldFail = err != nil
	e.failureError = err
}

// SetAvailable controls the Validate result.
func (e *Engine) SetAvailable(available bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.available = available
}

// CallCount returns how many times Synthesize was called.
func (e *Engine) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.callCount
}

// Requests returns a copy of every request received.
func (e *Engine) Requests() []ttypes.SynthesisRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]ttypes.SynthesisRequest(nil), e.requests...)
}

// Closed reports whether Close was called.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
