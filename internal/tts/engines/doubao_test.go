package engines

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzip"

	"github.com/utero-ai/utero-tts/internal/config"
	"github.com/utero-ai/utero-tts/internal/ttypes"
)

func audioFrame(seq int32, data []byte) []byte {
	flags := byte(0x1)
	if seq < 0 {
		flags = 0x3
	}
	frame := []byte{0x11, doubaoMsgAudio<<4 | flags, 0x10, 0x00}
	frame = binary.BigEndian.AppendUint32(frame, uint32(seq))
	frame = binary.BigEndian.AppendUint32(frame, uint32(len(data)))
	return append(frame, data...)
}

func errorFrame(t *testing.T, code uint32, msg string) []byte {
	t.Helper()
	payload := gzipBytes(t, []byte(msg))
	frame := []byte{0x11, doubaoMsgError << 4, 0x11, 0x00}
	frame = binary.BigEndian.AppendUint32(frame, code)
	frame = binary.BigEndian.AppendUint32(frame, uint32(len(payload)))
	return append(frame, payload...)
}

func gzipBytes(t *testing.T, b []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(b); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// decodeClientFrame unpacks a request frame back into its JSON body.
func decodeClientFrame(t *testing.T, frame []byte) doubaoRequest {
	t.Helper()
	if !bytes.Equal(frame[:4], doubaoHeader) {
		t.Fatalf("Unexpected header % x", frame[:4])
	}
	size := binary.BigEndian.Uint32(frame[4:8])
	if int(size) != len(frame)-8 {
		t.Fatalf("Payload size %d does not match frame length %d", size, len(frame)-8)
	}
	body, err := gunzip(frame[8:])
	if err != nil {
		t.Fatalf("gunzip failed: %v", err)
	}
	var req doubaoRequest
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatalf("Invalid JSON payload: %v", err)
	}
	return req
}

type doubaoServer struct {
	*httptest.Server
	auth     chan string
	requests chan []byte
}

// startDoubao serves one websocket session per connection. reply receives the
// raw request frame and returns the frames to send back.
func startDoubao(t *testing.T, reply func(frame []byte) [][]byte) *doubaoServer {
	t.Helper()

	s := &doubaoServer{auth: make(chan string, 4), requests: make(chan []byte, 4)}
	upgrader := websocket.Upgrader{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.auth <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close() //nolint:errcheck

		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.requests <- frame
		for _, out := range reply(frame) {
			if err := conn.WriteMessage(websocket.BinaryMessage, out); err != nil {
				return
			}
		}
		// Hold the connection until the client hangs up.
		_, _, _ = conn.ReadMessage()
	}))
	t.Cleanup(s.Close)
	return s
}

func testDoubaoConfig(endpoint string) config.DoubaoConfig {
	return config.DoubaoConfig{
		AppID:       "app-1",
		AccessToken: "token-1",
		Cluster:     "volcano_tts",
		VoiceType:   "BV700_streaming",
		Endpoint:    endpoint,
		Timeout:     time.Second,
	}
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestDoubaoEngine_Synthesize(t *testing.T) {
	srv := startDoubao(t, func([]byte) [][]byte {
		return [][]byte{
			{0x11, doubaoMsgAudio << 4, 0x10, 0x00}, // ack without sequence
			audioFrame(1, []byte("ID3")),
			audioFrame(2, []byte("-mid")),
			audioFrame(-3, []byte("-end")),
		}
	})

	engine, err := NewDoubaoEngine(testDoubaoConfig(wsURL(srv.Server)))
	if err != nil {
		t.Fatalf("NewDoubaoEngine failed: %v", err)
	}

	audio, err := engine.Synthesize(context.Background(), ttypes.SynthesisRequest{Text: "你好", Language: "zh", Slow: true})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if string(audio) != "ID3-mid-end" {
		t.Errorf("Unexpected audio %q", audio)
	}

	if auth := <-srv.auth; auth != "Bearer;token-1" {
		t.Errorf("Authorization = %q", auth)
	}

	req := decodeClientFrame(t, <-srv.requests)
	if req.App.AppID != "app-1" || req.App.Cluster != "volcano_tts" {
		t.Errorf("Unexpected app section %+v", req.App)
	}
	if req.Request.Text != "你好" || req.Request.Operation != "query" || req.Request.ReqID == "" {
		t.Errorf("Unexpected request section %+v", req.Request)
	}
	if req.Audio.Encoding != "mp3" || req.Audio.SpeedRatio != slowSpeed {
		t.Errorf("Unexpected audio section %+v", req.Audio)
	}
}

func TestDoubaoEngine_ServerError(t *testing.T) {
	frame := errorFrame(t, 3001, `{"message":"invalid voice"}`)
	srv := startDoubao(t, func([]byte) [][]byte {
		return [][]byte{frame}
	})

	engine, err := NewDoubaoEngine(testDoubaoConfig(wsURL(srv.Server)))
	if err != nil {
		t.Fatalf("NewDoubaoEngine failed: %v", err)
	}

	_, err = engine.Synthesize(context.Background(), ttypes.SynthesisRequest{Text: "Hello", Language: "en"})
	if err == nil {
		t.Fatal("Expected error")
	}
	if !strings.Contains(err.Error(), "3001") || !strings.Contains(err.Error(), "invalid voice") {
		t.Errorf("Error should carry code and message, got %v", err)
	}
}

func TestDoubaoEngine_Timeout(t *testing.T) {
	srv := startDoubao(t, func([]byte) [][]byte { return nil })

	cfg := testDoubaoConfig(wsURL(srv.Server))
	cfg.Timeout = 100 * time.Millisecond
	engine, err := NewDoubaoEngine(cfg)
	if err != nil {
		t.Fatalf("NewDoubaoEngine failed: %v", err)
	}

	_, err = engine.Synthesize(context.Background(), ttypes.SynthesisRequest{Text: "Hello", Language: "en"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected DeadlineExceeded in chain, got %v", err)
	}
}

func TestDecodeDoubaoFrame(t *testing.T) {
	tests := []struct {
		name     string
		frame    []byte
		wantDone bool
		wantData string
		wantErr  bool
	}{
		{name: "audio", frame: audioFrame(1, []byte("abc")), wantData: "abc"},
		{name: "last audio", frame: audioFrame(-2, []byte("xyz")), wantDone: true, wantData: "xyz"},
		{name: "ack", frame: []byte{0x11, 0xb0, 0x10, 0x00}},
		{name: "unknown type", frame: []byte{0x11, 0x90, 0x10, 0x00, 0x01}},
		{name: "too short", frame: []byte{0x11, 0xb1}, wantErr: true},
		{name: "truncated audio", frame: []byte{0x11, 0xb1, 0x10, 0x00, 0x00, 0x00}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			done, err := decodeDoubaoFrame(tt.frame, &buf)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if done != tt.wantDone {
				t.Errorf("done = %v, want %v", done, tt.wantDone)
			}
			if buf.String() != tt.wantData {
				t.Errorf("data = %q, want %q", buf.String(), tt.wantData)
			}
		})
	}
}

func TestNewDoubaoEngine_InvalidConfig(t *testing.T) {
	cfg := testDoubaoConfig("ws://localhost")
	cfg.AccessToken = ""
	if _, err := NewDoubaoEngine(cfg); err == nil {
		t.Error("Expected error for missing access token")
	}
}
