package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/utero-ai/utero-tts/internal/audio"
	"github.com/utero-ai/utero-tts/internal/tts"
	"github.com/utero-ai/utero-tts/internal/ttypes"
)

var (
	sayOut      string
	sayPlay     bool
	sayMarkdown bool
	saySlow     bool
	sayNoCache  bool

	// newSpeaker opens the sound device for --play.
	newSpeaker = func() audio.Speaker { return audio.NewPlayer() }

	sayCmd = &cobra.Command{
		Use:   "say [TEXT|-]",
		Short: "Synthesize text from the command line",
		Long: paragraph(fmt.Sprintf("\n%s text through the same cache the server uses. Text comes from the arguments, or from stdin when piped or given as -.", keyword("Speak"))),
		Example: paragraph(`utero-tts say "Halo dunia"
utero-tts say --lang en --play "Hello there"
cat README.md | utero-tts say --markdown --out readme.mp3 -`),
		RunE: runSay,
	}
)

func init() {
	sayCmd.Flags().StringVarP(&sayOut, "out", "o", "", "copy the audio to this file")
	sayCmd.Flags().BoolVar(&sayPlay, "play", false, "play the audio on the default output device")
	sayCmd.Flags().BoolVarP(&sayMarkdown, "markdown", "m", false, "read the input as markdown and speak only its text")
	sayCmd.Flags().BoolVar(&saySlow, "slow", false, "speak slowly")
	sayCmd.Flags().BoolVar(&sayNoCache, "no-cache", false, "always call the engine")
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to open file: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

// readSayText joins the arguments, or reads stdin for "-" or no arguments
// with piped input.
func readSayText(args []string, stdin io.Reader, piped bool) (string, error) {
	if len(args) == 1 && args[0] == "-" || len(args) == 0 && piped {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("unable to read from stdin: %w", err)
		}
		return string(b), nil
	}
	if len(args) == 0 {
		return "", errors.New("nothing to say: pass text as arguments or pipe it in")
	}
	return strings.Join(args, " "), nil
}

func runSay(cmd *cobra.Command, args []string) error {
	piped, err := stdinIsPipe()
	if err != nil {
		return err
	}
	text, err := readSayText(args, os.Stdin, piped)
	if err != nil {
		return err
	}
	if sayMarkdown {
		text = tts.SpeechText(text)
	}

	text, err = tts.ValidateText(text, cfg.Server.MaxTextLength)
	if err != nil {
		return err
	}

	svc, err := newService(log.Default())
	if err != nil {
		return err
	}
	defer svc.Close() //nolint:errcheck

	ctx := runContext(cmd)
	res, err := svc.Generate(ctx, ttypes.SynthesisRequest{
		Text:     text,
		Language: cfg.TTS.Language,
		Slow:     cfg.TTS.Slow || saySlow,
	}, tts.GenerateOptions{UseCache: !sayNoCache})
	if err != nil {
		return err
	}

	path := res.Path
	if sayOut != "" {
		if err := copyFile(res.Path, sayOut); err != nil {
			return err
		}
		path = sayOut
	}

	note := humanize.Bytes(uint64(res.Bytes)) //nolint:gosec
	if res.CacheHit {
		note += ", cached"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", keyword(path), faint("("+note+")"))

	if !sayPlay {
		return nil
	}

	data, err := os.ReadFile(res.Path)
	if err != nil {
		return fmt.Errorf("unable to read audio: %w", err)
	}
	speaker := newSpeaker()
	defer speaker.Close() //nolint:errcheck
	if err := speaker.Play(ctx, data); err != nil {
		return fmt.Errorf("playback failed: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("unable to read audio: %w", err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil { //nolint:gosec
		return fmt.Errorf("unable to write %s: %w", dst, err)
	}
	return nil
}
