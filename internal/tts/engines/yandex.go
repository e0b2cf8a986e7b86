package engines

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"time"

	ytts "github.com/yandex-cloud/go-genproto/yandex/cloud/ai/tts/v3"
	"golang.org/x/text/language"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"

	"github.com/utero-ai/utero-tts/internal/config"
	"github.com/utero-ai/utero-tts/internal/ttypes"
)

// YandexEngine synthesizes speech with Yandex SpeechKit v3 over gRPC.
type YandexEngine struct {
	client   ytts.SynthesizerClient
	conn     *grpc.ClientConn
	apiKey   string
	folderID string
	voices   map[string]string
	timeout  time.Duration
}

// NewYandexEngine connects to the SpeechKit endpoint. Without dial options the
// connection uses TLS.
func NewYandexEngine(cfg config.YandexConfig, opts ...grpc.DialOption) (*YandexEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12}))}
	}

	conn, err := grpc.NewClient(cfg.Endpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to TTS service: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &YandexEngine{
		client:   ytts.NewSynthesizerClient(conn),
		conn:     conn,
		apiKey:   cfg.APIKey,
		folderID: cfg.FolderID,
		voices:   cfg.Voices,
		timeout:  timeout,
	}, nil
}

// Synthesize streams the utterance from SpeechKit and returns the joined MP3.
func (e *YandexEngine) Synthesize(ctx context.Context, req ttypes.SynthesisRequest) ([]byte, error) {
	if req.Text == "" {
		return nil, errors.New("text cannot be empty")
	}

	voice, err := e.voiceFor(req.Language)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	ctx = metadata.AppendToOutgoingContext(ctx,
		"authorization", "Api-Key "+e.apiKey,
		"x-folder-id", e.folderID,
	)

	stream, err := e.client.UtteranceSynthesis(ctx, buildYandexRequest(req, voice))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("yandex synthesis interrupted: %w", ctxErr)
		}
		return nil, fmt.Errorf("failed to start synthesis: %w", err)
	}

	var buf bytes.Buffer
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("yandex synthesis interrupted: %w", ctxErr)
			}
			return nil, fmt.Errorf("failed to receive audio data: %w", err)
		}
		if chunk := resp.GetAudioChunk(); chunk != nil {
			buf.Write(chunk.GetData())
		}
	}

	if buf.Len() == 0 {
		return nil, errors.New("yandex returned no audio")
	}
	return buf.Bytes(), nil
}

// voiceFor picks the configured voice for the base language of code, so
// "ru-RU" and "ru" share a voice.
func (e *YandexEngine) voiceFor(code string) (string, error) {
	tag, err := language.Parse(code)
	if err != nil {
		return "", fmt.Errorf("invalid language code %q: %w", code, err)
	}
	base, _ := tag.Base()

	if v, ok := e.voices[base.String()]; ok && v != "" {
		return v, nil
	}
	return "", fmt.Errorf("language %q is not supported: no yandex voice configured for %q", code, base.String())
}

func buildYandexRequest(req ttypes.SynthesisRequest, voice string) *ytts.UtteranceSynthesisRequest {
	r := &ytts.UtteranceSynthesisRequest{}
	r.SetText(req.Text)

	voiceHint := &ytts.Hints{}
	voiceHint.SetVoice(voice)
	hints := []*ytts.Hints{voiceHint}

	if req.Slow {
		speedHint := &ytts.Hints{}
		speedHint.SetSpeed(slowSpeed)
		hints = append(hints, speedHint)
	}
	r.SetHints(hints)

	container := &ytts.ContainerAudio{}
	container.SetContainerAudioType(ytts.ContainerAudio_MP3)
	format := &ytts.AudioFormatOptions{}
	format.SetContainerAudio(container)
	r.SetOutputAudioSpec(format)

	r.SetLoudnessNormalizationType(ytts.UtteranceSynthesisRequest_LUFS)
	return r
}

// GetInfo returns engine capabilities and configuration.
func (e *YandexEngine) GetInfo() ttypes.EngineInfo {
	return ttypes.EngineInfo{
		Name:     string(ttypes.EngineYandex),
		Version:  "v3",
		Format:   "mp3",
		IsOnline: true,
	}
}

// Validate checks that credentials and at least one voice are configured.
func (e *YandexEngine) Validate() error {
	if e.apiKey == "" || e.folderID == "" {
		return errors.New("yandex api_key and folder_id are required")
	}
	if len(e.voices) == 0 {
		return errors.New("no yandex voices configured")
	}
	return nil
}

// Close closes the gRPC connection.
func (e *YandexEngine) Close() error {
	return e.conn.Close()
}
