// Package engines contains the speech providers behind the TTS service.
// gtts drives the gtts-cli command, yandex talks to SpeechKit v3 over gRPC
// and doubao speaks the Volcengine binary websocket protocol. Every engine
// returns encoded MP3 and implements ttypes.TTSEngine. FallbackEngine pairs
// two of them for failover.
package engines
