// Package ttypes contains shared types and interfaces for the TTS system.
// This package is used to break import cycles between tts, engines, cache and server packages.
package ttypes

import (
	"context"
	"strings"
)

// EngineType represents the TTS engine selection
type EngineType string

const (
	// EngineGoogle represents the Google Translate TTS engine driven through gtts-cli
	EngineGoogle EngineType = "gtts"

	// EngineYandex represents Yandex SpeechKit (gRPC)
	EngineYandex EngineType = "yandex"

	// EngineDoubao represents Volcengine Doubao TTS (websocket)
	EngineDoubao EngineType = "doubao"

	// EngineMock represents the in-process fake engine
	EngineMock EngineType = "mock"

	// EngineNone represents no engine selected
	EngineNone EngineType = ""
)

// AudioMIMEType is the content type of every artifact the service produces.
const AudioMIMEType = "audio/mpeg"

// AudioExt is the file extension shared by cached and output artifacts.
const AudioExt = ".mp3"

// SynthesisRequest is the identity of a synthesis call. Two requests with the
// same Text, Language and Slow values produce the same cache key.
type SynthesisRequest struct {
	// Text to synthesize, trimmed by the caller.
	Text string

	// Language code understood by the provider (e.g. "id", "en").
	Language string

	// Slow asks the provider for slower speech.
	Slow bool
}

// Normalize returns a copy with surrounding whitespace removed from Text and
// Language.
func (r SynthesisRequest) Normalize() SynthesisRequest {
	r.Text = strings.TrimSpace(r.Text)
	r.Language = strings.TrimSpace(r.Language)
	return r
}

// EngineInfo describes engine capabilities and configuration.
type EngineInfo struct {
	Name     string // Engine name (e.g., "gtts", "yandex")
	Version  string // Engine version
	Format   string // Output container, always "mp3"
	IsOnline bool   // Whether the engine requires internet
}

// TTSEngine defines the contract for text-to-speech engines.
type TTSEngine interface {
	// Synthesize converts text to encoded MP3 audio.
	Synthesize(ctx context.Context, req SynthesisRequest) ([]byte, error)

	// GetInfo returns engine capabilities and configuration.
	GetInfo() EngineInfo

	// Validate checks if the engine is properly configured and available.
	Validate() error

	// Close releases any resources held by the engine.
	Close() error
}
