package cache

import (
	"crypto/md5" //nolint:gosec
	"encoding/hex"

	"github.com/utero-ai/utero-tts/internal/ttypes"
)

// Key is the content address of a cached artifact: 32 lowercase hex chars.
type Key string

// String returns the key as a plain string.
func (k Key) String() string {
	return string(k)
}

// FileName returns the name of the artifact stored under the key.
func (k Key) FileName() string {
	return string(k) + ttypes.AudioExt
}

// ComputeKey derives the cache key from a request's identity fields.
//
// The digest input is "<text>_<language>_<True|False>" hashed with MD5, the
// layout already used by existing audio_cache directories. Collisions only
// cost a wrong cache hit and are not a security boundary.
func ComputeKey(req ttypes.SynthesisRequest) Key {
	slow := "False"
	if req.Slow {
		slow = "True"
	}
	content := req.Text + "_" + req.Language + "_" + slow
	sum := md5.Sum([]byte(content)) //nolint:gosec
	return Key(hex.EncodeToString(sum[:]))
}

// IsKey reports whether s has the shape of a Key.
func IsKey(s string) bool {
	if len(s) != md5.Size*2 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
