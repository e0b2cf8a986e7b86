package cache

import (
	"testing"

	"github.com/utero-ai/utero-tts/internal/ttypes"
)

func TestComputeKey_Deterministic(t *testing.T) {
	req := ttypes.SynthesisRequest{Text: "Halo dunia", Language: "id", Slow: false}

	k1 := ComputeKey(req)
	k2 := ComputeKey(req)
	if k1 != k2 {
		t.Errorf("Same request produced different keys: %s vs %s", k1, k2)
	}

	if !IsKey(k1.String()) {
		t.Errorf("Key %q is not 32 lowercase hex chars", k1)
	}
}

func TestComputeKey_KnownDigest(t *testing.T) {
	// Digests of "<text>_<lang>_<True|False>", the layout of existing cache directories.
	tests := []struct {
		req  ttypes.SynthesisRequest
		want Key
	}{
		{ttypes.SynthesisRequest{Text: "Halo dunia", Language: "id"}, "c3eb77fdee226ca460e89cdf58d208d5"},
		{ttypes.SynthesisRequest{Text: "Halo dunia", Language: "id", Slow: true}, "ee10c31218ef3b49a3162ac07675b79d"},
	}

	for _, tt := range tests {
		got := ComputeKey(tt.req)
		if got != tt.want {
			t.Errorf("ComputeKey(%+v) = %s, want %s", tt.req, got, tt.want)
		}
		if got.FileName() != string(tt.want)+".mp3" {
			t.Errorf("FileName() = %s", got.FileName())
		}
	}
}

func TestComputeKey_DistinctCorpus(t *testing.T) {
	texts := []string{
		"Halo dunia",
		"halo dunia",
		"Halo dunia!",
		"Halo  dunia",
		"Selamat pagi",
		"Hello world",
		"",
		"a_b",
		"a",
	}
	langs := []string{"id", "en", "en-US", "b", "_"}
	seen := make(map[Key]ttypes.SynthesisRequest)

	for _, text := range texts {
		for _, lang := range langs {
			for _, slow := range []bool{false, true} {
				req := ttypes.SynthesisRequest{Text: text, Language: lang, Slow: slow}
				key := ComputeKey(req)
				if prev, dup := seen[key]; dup {
					t.Errorf("Collision between %+v and %+v", prev, req)
					continue
				}
				seen[key] = req
			}
		}
	}
}

func TestComputeKey_FieldSensitivity(t *testing.T) {
	base := ttypes.SynthesisRequest{Text: "Halo dunia", Language: "id", Slow: false}

	variants := map[string]ttypes.SynthesisRequest{
		"text":     {Text: "Halo Dunia", Language: "id", Slow: false},
		"language": {Text: "Halo dunia", Language: "en", Slow: false},
		"slow":     {Text: "Halo dunia", Language: "id", Slow: true},
	}

	baseKey := ComputeKey(base)
	for field, v := range variants {
		if ComputeKey(v) == baseKey {
			t.Errorf("Changing %s did not change the key", field)
		}
	}
}

func TestIsKey(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"0123456789abcdef0123456789abcdef", true},
		{"0123456789ABCDEF0123456789abcdef", false},
		{"0123456789abcdef", false},
		{"0123456789abcdef0123456789abcdeg", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsKey(tt.in); got != tt.want {
			t.Errorf("IsKey(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
