package audio

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MockPlayer is a Speaker that decodes but never opens a device. It records
// every clip for tests.
type MockPlayer struct {
	mu     sync.Mutex
	clips  []*Clip
	err    error
	delay  time.Duration
	closed bool

	// OnPlay, when set, is called with each decoded clip.
	OnPlay func(*Clip)
}

// NewMockPlayer creates a MockPlayer.
func NewMockPlayer() *MockPlayer {
	return &MockPlayer{}
}

// Play decodes payload, waits the configured delay and records the clip.
func (m *MockPlayer) Play(ctx context.Context, payload []byte) error {
	clip, err := Decode(payload)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errors.New("player is closed")
	}
	failErr, delay, onPlay := m.err, m.delay, m.OnPlay
	m.mu.Unlock()

	if failErr != nil {
		return failErr
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	m.clips = append(m.clips, clip)
	m.mu.Unlock()

	if onPlay != nil {
		onPlay(clip)
	}
	return nil
}

// Close marks the player closed.
func (m *MockPlayer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// SetError makes Play fail with err.
func (m *MockPlayer) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetDelay simulates playback time.
func (m *MockPlayer) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Clips returns the clips played so far.
func (m *MockPlayer) Clips() []*Clip {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Clip(nil), m.clips...)
}
