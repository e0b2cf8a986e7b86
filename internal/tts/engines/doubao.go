package engines

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzip"

	"github.com/utero-ai/utero-tts/internal/config"
	"github.com/utero-ai/utero-tts/internal/ttypes"
)

// Frame header: version 1, header size 4 bytes, full client request,
// JSON serialization, gzip compression.
var doubaoHeader = []byte{0x11, 0x10, 0x11, 0x00}

const (
	doubaoMsgAudio = 0xb
	doubaoMsgError = 0xf

	doubaoCompressionGzip = 0x1
)

// DoubaoEngine synthesizes speech with the Volcengine (Doubao) binary
// websocket protocol.
type DoubaoEngine struct {
	appID       string
	accessToken string
	cluster     string
	voiceType   string
	endpoint    string
	timeout     time.Duration
	dialer      *websocket.Dialer
}

// NewDoubaoEngine creates a Doubao engine from its config section.
func NewDoubaoEngine(cfg config.DoubaoConfig) (*DoubaoEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &DoubaoEngine{
		appID:       cfg.AppID,
		accessToken: cfg.AccessToken,
		cluster:     cfg.Cluster,
		voiceType:   cfg.VoiceType,
		endpoint:    cfg.Endpoint,
		timeout:     timeout,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
	}, nil
}

type doubaoRequest struct {
	App     doubaoApp     `json:"app"`
	User    doubaoUser    `json:"user"`
	Audio   doubaoAudio   `json:"audio"`
	Request doubaoPayload `json:"request"`
}

type doubaoApp struct {
	AppID   string `json:"appid"`
	Token   string `json:"token"`
	Cluster string `json:"cluster"`
}

type doubaoUser struct {
	UID string `json:"uid"`
}

type doubaoAudio struct {
	VoiceType   string  `json:"voice_type"`
	Encoding    string  `json:"encoding"`
	SpeedRatio  float64 `json:"speed_ratio"`
	VolumeRatio float64 `json:"volume_ratio"`
	PitchRatio  float64 `json:"pitch_ratio"`
}

type doubaoPayload struct {
	ReqID     string `json:"reqid"`
	Text      string `json:"text"`
	TextType  string `json:"text_type"`
	Operation string `json:"operation"`
}

// Synthesize sends one query request and collects the MP3 frames of the reply.
func (e *DoubaoEngine) Synthesize(ctx context.Context, req ttypes.SynthesisRequest) ([]byte, error) {
	if req.Text == "" {
		return nil, errors.New("text cannot be empty")
	}

	frame, err := e.encodeRequest(req, uuid.NewString())
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	header := http.Header{"Authorization": []string{"Bearer;" + e.accessToken}}
	conn, resp, err := e.dialer.DialContext(ctx, e.endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("doubao dial failed (%s): %w", resp.Status, err)
		}
		return nil, fmt.Errorf("doubao dial failed: %w", err)
	}
	defer conn.Close() //nolint:errcheck

	// Unblock reads when the context ends.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return nil, fmt.Errorf("doubao write failed: %w", err)
	}

	var audio bytes.Buffer
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("doubao synthesis interrupted: %w", ctxErr)
			}
			return nil, fmt.Errorf("doubao read failed: %w", err)
		}

		done, err := decodeDoubaoFrame(message, &audio)
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
	}

	if audio.Len() == 0 {
		return nil, errors.New("doubao returned no audio")
	}
	return audio.Bytes(), nil
}

// encodeRequest builds header, payload size and gzip'd JSON payload.
func (e *DoubaoEngine) encodeRequest(req ttypes.SynthesisRequest, reqID string) ([]byte, error) {
	body, err := json.Marshal(doubaoRequest{
		App:  doubaoApp{AppID: e.appID, Token: e.accessToken, Cluster: e.cluster},
		User: doubaoUser{UID: "utero-tts"},
		Audio: doubaoAudio{
			VoiceType:   e.voiceType,
			Encoding:    "mp3",
			SpeedRatio:  speedRatio(req.Slow),
			VolumeRatio: 1.0,
			PitchRatio:  1.0,
		},
		Request: doubaoPayload{
			ReqID:     reqID,
			Text:      req.Text,
			TextType:  "plain",
			Operation: "query",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode doubao request: %w", err)
	}

	var compressed bytes.Buffer
	zw := gzip.NewWriter(&compressed)
	if _, err := zw.Write(body); err != nil {
		return nil, fmt.Errorf("failed to compress doubao request: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress doubao request: %w", err)
	}

	frame := make([]byte, 0, len(doubaoHeader)+4+compressed.Len())
	frame = append(frame, doubaoHeader...)
	frame = binary.BigEndian.AppendUint32(frame, uint32(compressed.Len())) //nolint:gosec
	return append(frame, compressed.Bytes()...), nil
}

// decodeDoubaoFrame appends the audio in message to w. It reports done once
// the last audio frame (negative sequence number) has been seen.
func decodeDoubaoFrame(message []byte, w io.Writer) (bool, error) {
	if len(message) < 4 {
		return false, fmt.Errorf("doubao frame too short: %d bytes", len(message))
	}

	headerSize := int(message[0]&0x0f) * 4
	msgType := message[1] >> 4
	flags := message[1] & 0x0f
	compression := message[2] & 0x0f
	if len(message) < headerSize {
		return false, fmt.Errorf("doubao frame shorter than its header: %d < %d", len(message), headerSize)
	}
	payload := message[headerSize:]

	switch msgType {
	case doubaoMsgAudio:
		// No sequence number: server ack without audio.
		if flags == 0 {
			return false, nil
		}
		if len(payload) < 8 {
			return false, errors.New("doubao audio frame truncated")
		}
		seq := int32(binary.BigEndian.Uint32(payload[0:4])) //nolint:gosec
		size := binary.BigEndian.Uint32(payload[4:8])
		data := payload[8:]
		if int(size) < len(data) {
			data = data[:size]
		}
		if _, err := w.Write(data); err != nil {
			return false, err
		}
		return seq < 0, nil

	case doubaoMsgError:
		if len(payload) < 8 {
			return false, errors.New("doubao error frame truncated")
		}
		code := binary.BigEndian.Uint32(payload[0:4])
		msg := payload[8:]
		if compression == doubaoCompressionGzip {
			if decoded, err := gunzip(msg); err == nil {
				msg = decoded
			}
		}
		return false, fmt.Errorf("doubao error %d: %s", code, msg)

	default:
		return false, nil
	}
}

func gunzip(b []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer r.Close() //nolint:errcheck
	return io.ReadAll(r)
}

// GetInfo returns engine capabilities and configuration.
func (e *DoubaoEngine) GetInfo() ttypes.EngineInfo {
	return ttypes.EngineInfo{
		Name:     string(ttypes.EngineDoubao),
		Version:  "v1",
		Format:   "mp3",
		IsOnline: true,
	}
}

// Validate checks that credentials are configured.
func (e *DoubaoEngine) Validate() error {
	if e.appID == "" || e.accessToken == "" {
		return errors.New("doubao app_id and access_token are required")
	}
	return nil
}

// Close is a no-op; each synthesis opens its own connection.
func (e *DoubaoEngine) Close() error {
	return nil
}
