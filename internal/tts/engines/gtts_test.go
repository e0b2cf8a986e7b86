package engines

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/utero-ai/utero-tts/internal/config"
	"github.com/utero-ai/utero-tts/internal/ttypes"
)

// fakeRunner records invocations and replays canned output.
type fakeRunner struct {
	mu     sync.Mutex
	calls  [][]string
	stdout []byte
	stderr []byte
	err    error
	block  bool
}

func (f *fakeRunner) Run(ctx context.Context, name string, args []string, _ io.Reader) ([]byte, []byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, nil, errors.New("signal: killed")
	}
	return f.stdout, f.stderr, f.err
}

func testGTTSConfig() config.GTTSConfig {
	return config.GTTSConfig{
		Binary:            "gtts-cli",
		RequestsPerMinute: 6000,
		Timeout:           time.Second,
	}
}

func TestGTTSArgs(t *testing.T) {
	tests := []struct {
		name string
		req  ttypes.SynthesisRequest
		want string
	}{
		{
			name: "normal speed",
			req:  ttypes.SynthesisRequest{Text: "Halo dunia", Language: "id"},
			want: "-l id -o - -- Halo dunia",
		},
		{
			name: "slow",
			req:  ttypes.SynthesisRequest{Text: "Hello", Language: "en", Slow: true},
			want: "-l en --slow -o - -- Hello",
		},
		{
			name: "text that looks like a flag",
			req:  ttypes.SynthesisRequest{Text: "--help", Language: "en"},
			want: "-l en -o - -- --help",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := strings.Join(gttsArgs(tt.req), " ")
			if got != tt.want {
				t.Errorf("gttsArgs() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGTTSEngine_Synthesize(t *testing.T) {
	runner := &fakeRunner{stdout: []byte("ID3-mp3-bytes")}
	engine, err := NewGTTSEngine(testGTTSConfig(), runner)
	if err != nil {
		t.Fatalf("NewGTTSEngine failed: %v", err)
	}

	audio, err := engine.Synthesize(context.Background(), ttypes.SynthesisRequest{Text: "Halo dunia", Language: "id"})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if string(audio) != "ID3-mp3-bytes" {
		t.Errorf("Unexpected audio %q", audio)
	}

	if len(runner.calls) != 1 {
		t.Fatalf("Expected 1 call, got %d", len(runner.calls))
	}
	if runner.calls[0][0] != "gtts-cli" {
		t.Errorf("Wrong binary: %s", runner.calls[0][0])
	}
}

func TestGTTSEngine_Errors(t *testing.T) {
	tests := []struct {
		name    string
		runner  *fakeRunner
		req     ttypes.SynthesisRequest
		wantErr string
	}{
		{
			name:    "empty text",
			runner:  &fakeRunner{stdout: []byte("x")},
			req:     ttypes.SynthesisRequest{Language: "id"},
			wantErr: "text cannot be empty",
		},
		{
			name:    "command failure",
			runner:  &fakeRunner{stderr: []byte("ValueError: Language not supported: xx\n"), err: errors.New("exit status 1")},
			req:     ttypes.SynthesisRequest{Text: "Halo", Language: "xx"},
			wantErr: "Language not supported: xx",
		},
		{
			name:    "no output",
			runner:  &fakeRunner{},
			req:     ttypes.SynthesisRequest{Text: "Halo", Language: "id"},
			wantErr: "produced no MP3 output",
		},
		{
			name:    "timeout",
			runner:  &fakeRunner{block: true},
			req:     ttypes.SynthesisRequest{Text: "Halo", Language: "id"},
			wantErr: "timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testGTTSConfig()
			engine, err := NewGTTSEngine(cfg, tt.runner)
			if err != nil {
				t.Fatalf("NewGTTSEngine failed: %v", err)
			}

			_, err = engine.Synthesize(context.Background(), tt.req)
			if err == nil {
				t.Fatal("Expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestGTTSEngine_TimeoutWrapsDeadline(t *testing.T) {
	engine, err := NewGTTSEngine(testGTTSConfig(), &fakeRunner{block: true})
	if err != nil {
		t.Fatalf("NewGTTSEngine failed: %v", err)
	}

	_, err = engine.Synthesize(context.Background(), ttypes.SynthesisRequest{Text: "Halo", Language: "id"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected DeadlineExceeded in chain, got %v", err)
	}
}

func TestGTTSEngine_RateLimit(t *testing.T) {
	cfg := testGTTSConfig()
	cfg.RequestsPerMinute = 1
	engine, err := NewGTTSEngine(cfg, &fakeRunner{stdout: []byte("x")})
	if err != nil {
		t.Fatalf("NewGTTSEngine failed: %v", err)
	}

	req := ttypes.SynthesisRequest{Text: "Halo", Language: "id"}
	if _, err := engine.Synthesize(context.Background(), req); err != nil {
		t.Fatalf("First call should pass the limiter: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := engine.Synthesize(ctx, req); err == nil || !strings.Contains(err.Error(), "rate limit") {
		t.Errorf("Second call should wait on the limiter, got %v", err)
	}
}

func TestNewGTTSEngine_InvalidConfig(t *testing.T) {
	cfg := testGTTSConfig()
	cfg.Binary = ""
	if _, err := NewGTTSEngine(cfg, nil); err == nil {
		t.Error("Expected error for empty binary")
	}
}

func TestGTTSEngine_Info(t *testing.T) {
	engine, _ := NewGTTSEngine(testGTTSConfig(), nil)
	info := engine.GetInfo()
	if info.Name != "gtts" || !info.IsOnline || info.Format != "mp3" {
		t.Errorf("Unexpected info: %+v", info)
	}
	if err := engine.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}
