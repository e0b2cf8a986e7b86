package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hajimehoshi/go-mp3"
)

const (
	// go-mp3 always emits interleaved 16-bit little endian stereo.
	clipChannels       = 2
	clipBytesPerSample = 2
)

// Clip is decoded PCM ready for playback.
type Clip struct {
	PCM        []byte
	SampleRate int
	Channels   int
}

// Duration returns the playing time of the clip.
func (c *Clip) Duration() time.Duration {
	frame := c.Channels * clipBytesPerSample
	if c.SampleRate == 0 || frame == 0 {
		return 0
	}
	samples := len(c.PCM) / frame
	return time.Duration(samples) * time.Second / time.Duration(c.SampleRate)
}

// Decode converts an MP3 payload to PCM.
func Decode(payload []byte) (*Clip, error) {
	if len(payload) == 0 {
		return nil, errors.New("audio data is empty")
	}

	dec, err := mp3.NewDecoder(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to decode mp3: %w", err)
	}

	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("failed to decode mp3: %w", err)
	}

	return &Clip{
		PCM:        pcm,
		SampleRate: dec.SampleRate(),
		Channels:   clipChannels,
	}, nil
}
