package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// Speaker plays MP3 audio.
type Speaker interface {
	// Play blocks until the clip has finished or ctx is done.
	Play(ctx context.Context, mp3 []byte) error
	Close() error
}

// pollInterval is how often Play checks whether oto has drained the clip.
const pollInterval = 20 * time.Millisecond

// Player is a Speaker backed by oto. The oto context is created on the first
// Play with that clip's sample rate; oto allows one context per process, so
// later clips must share the rate.
type Player struct {
	mu         sync.Mutex
	context    *oto.Context
	sampleRate int
	closed     bool

	// Keep the PCM referenced while oto reads from it.
	active []byte
}

// NewPlayer returns a Player. No device is opened until the first Play.
func NewPlayer() *Player {
	return &Player{}
}

// Play decodes payload and plays it to completion.
func (p *Player) Play(ctx context.Context, payload []byte) error {
	clip, err := Decode(payload)
	if err != nil {
		return err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errors.New("player is closed")
	}
	if err := p.ensureContext(clip.SampleRate, clip.Channels); err != nil {
		p.mu.Unlock()
		return err
	}
	p.active = clip.PCM
	player := p.context.NewPlayer(bytes.NewReader(clip.PCM))
	p.mu.Unlock()

	defer func() {
		_ = player.Close()
		p.mu.Lock()
		p.active = nil
		p.mu.Unlock()
	}()

	player.Play()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return player.Err()
}

func (p *Player) ensureContext(sampleRate, channels int) error {
	if p.context != nil {
		if sampleRate != p.sampleRate {
			return fmt.Errorf("sample rate %d Hz differs from the open device (%d Hz)", sampleRate, p.sampleRate)
		}
		return nil
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	p.context = ctx
	p.sampleRate = sampleRate
	return nil
}

// Close suspends the device. oto contexts cannot be destroyed, so a closed
// Player stays closed.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	if p.context != nil {
		return p.context.Suspend()
	}
	return nil
}
