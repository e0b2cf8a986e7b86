package engines

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/utero-ai/utero-tts/internal/config"
	"github.com/utero-ai/utero-tts/internal/ttypes"
	"golang.org/x/time/rate"
)

// maxMP3Size bounds the output accepted from gtts-cli.
const maxMP3Size = 50 * 1024 * 1024

// CommandRunner runs an external command to completion.
type CommandRunner interface {
	Run(ctx context.Context, name string, args []string, stdin io.Reader) (stdout, stderr []byte, err error)
}

// ExecCommandRunner uses os/exec.
type ExecCommandRunner struct{}

// Run runs a command and returns its captured output.
func (ExecCommandRunner) Run(ctx context.Context, name string, args []string, stdin io.Reader) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	cmd.Stdin = stdin
	cmd.WaitDelay = 100 * time.Millisecond

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err := cmd.Run()
	return outBuf.Bytes(), errBuf.Bytes(), err
}

// GTTSEngine implements ttypes.TTSEngine on top of gtts-cli, the command line
// client for the Google Translate speech endpoint. gtts-cli already emits MP3,
// so its stdout is returned as is.
type GTTSEngine struct {
	binary  string
	timeout time.Duration
	runner  CommandRunner

	// Rate limiting to avoid being blocked by Google
	rateLimiter *rate.Limiter
}

// NewGTTSEngine creates a gTTS engine from its config section. A nil runner
// uses os/exec.
func NewGTTSEngine(cfg config.GTTSConfig, runner CommandRunner) (*GTTSEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if runner == nil {
		runner = ExecCommandRunner{}
	}

	return &GTTSEngine{
		binary:      cfg.Binary,
		timeout:     cfg.Timeout,
		runner:      runner,
		rateLimiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1),
	}, nil
}

// Synthesize runs gtts-cli for req and returns the MP3 it writes to stdout.
func (e *GTTSEngine) Synthesize(ctx context.Context, req ttypes.SynthesisRequest) ([]byte, error) {
	if req.Text == "" {
		return nil, errors.New("text cannot be empty")
	}

	if err := e.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	stdout, stderr, err := e.runner.Run(ctx, e.binary, gttsArgs(req), strings.NewReader(""))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("gTTS synthesis timeout after %s: %w", e.timeout, ctxErr)
		}
		return nil, fmt.Errorf("gtts-cli failed: %w, stderr: %s", err, strings.TrimSpace(string(stderr)))
	}

	if len(stdout) == 0 {
		return nil, fmt.Errorf("gtts-cli produced no MP3 output, stderr: %s", strings.TrimSpace(string(stderr)))
	}
	if len(stdout) > maxMP3Size {
		return nil, fmt.Errorf("gtts-cli MP3 output too large: %d bytes (max %d)", len(stdout), maxMP3Size)
	}

	return stdout, nil
}

// gttsArgs builds the gtts-cli argument list. "--" keeps text that starts
// with a dash from being read as a flag.
func gttsArgs(req ttypes.SynthesisRequest) []string {
	args := []string{"-l", req.Language}
	if req.Slow {
		args = append(args, "--slow")
	}
	return append(args, "-o", "-", "--", req.Text)
}

// GetInfo returns engine capabilities and configuration.
func (e *GTTSEngine) GetInfo() ttypes.EngineInfo {
	return ttypes.EngineInfo{
		Name:     string(ttypes.EngineGoogle),
		Version:  "1.0.0",
		Format:   "mp3",
		IsOnline: true,
	}
}

// Validate checks that gtts-cli can be found.
func (e *GTTSEngine) Validate() error {
	if _, err := exec.LookPath(e.binary); err != nil {
		return fmt.Errorf("%s not found in PATH: %w\n\nInstall with: pip install gtts", e.binary, err)
	}
	return nil
}

// Close is a no-op; each synthesis runs its own process.
func (e *GTTSEngine) Close() error {
	return nil
}
