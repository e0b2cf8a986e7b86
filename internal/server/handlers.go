package server

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"

	"github.com/utero-ai/utero-tts/internal/cache"
	"github.com/utero-ai/utero-tts/internal/tts"
	"github.com/utero-ai/utero-tts/internal/ttypes"
)

// streamFileName is the name clients see for streamed audio.
const streamFileName = "speech.mp3"

type ttsParams struct {
	Text     string `json:"text"`
	Lang     string `json:"lang"`
	Slow     *bool  `json:"slow"`
	Stream   *bool  `json:"stream"`
	UseCache *bool  `json:"use_cache"`
}

type ttsResponse struct {
	Success    bool   `json:"success"`
	AudioURL   string `json:"audio_url"`
	AudioPath  string `json:"audio_path"`
	TextLength int    `json:"text_length"`
	Lang       string `json:"lang"`
	Cached     bool   `json:"cached"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func failure(msg string) errorResponse {
	return errorResponse{Success: false, Error: msg}
}

// queryBool is true only for a case-insensitive "true".
func queryBool(c *gin.Context, name string, def bool) *bool {
	v, ok := c.GetQuery(name)
	if !ok {
		return &def
	}
	b := strings.EqualFold(strings.TrimSpace(v), "true")
	return &b
}

// bindParams reads the query string on GET and the JSON body otherwise. A
// missing body counts as an empty object.
func (s *Server) bindParams(c *gin.Context) (ttsParams, error) {
	var p ttsParams

	if c.Request.Method == http.MethodGet {
		p.Text = c.Query("text")
		p.Lang = c.Query("lang")
		p.Slow = queryBool(c, "slow", s.cfg.DefaultSlow)
		p.Stream = queryBool(c, "stream", false)
		p.UseCache = queryBool(c, "use_cache", true)
	} else if err := c.ShouldBindJSON(&p); err != nil && !errors.Is(err, io.EOF) {
		return p, err
	}

	p.Lang = strings.TrimSpace(p.Lang)
	if p.Lang == "" {
		p.Lang = s.cfg.DefaultLanguage
	}
	if p.Slow == nil {
		p.Slow = &s.cfg.DefaultSlow
	}
	if p.Stream == nil {
		f := false
		p.Stream = &f
	}
	if p.UseCache == nil {
		t := true
		p.UseCache = &t
	}
	return p, nil
}

// synthesize validates p and runs it through the service. On failure the
// error response has already been written.
func (s *Server) synthesize(c *gin.Context, p ttsParams) (*tts.Result, string, bool) {
	text, err := tts.ValidateText(p.Text, s.cfg.MaxTextLength)
	if err != nil {
		s.writeError(c, err)
		return nil, "", false
	}

	req := ttypes.SynthesisRequest{Text: text, Language: p.Lang, Slow: *p.Slow}
	res, err := s.svc.Generate(c.Request.Context(), req, tts.GenerateOptions{UseCache: *p.UseCache})
	if err != nil {
		s.writeError(c, err)
		return nil, "", false
	}
	return res, text, true
}

func (s *Server) writeError(c *gin.Context, err error) {
	if te, ok := tts.AsTTSError(err); ok && te.IsInputError() {
		c.JSON(http.StatusBadRequest, failure(te.Message))
		return
	}
	s.logger.Error("TTS request failed", "err", err)
	c.JSON(http.StatusInternalServerError, failure("Failed to generate audio"))
}

func (s *Server) handleTTS(c *gin.Context) {
	p, err := s.bindParams(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, failure("Invalid JSON body"))
		return
	}

	res, text, ok := s.synthesize(c, p)
	if !ok {
		return
	}

	if *p.Stream {
		serveAudio(c, res.Path, streamFileName)
		return
	}

	c.JSON(http.StatusOK, ttsResponse{
		Success:    true,
		AudioURL:   s.baseURL(c.Request) + "/audio/" + res.FileName,
		AudioPath:  res.Path,
		TextLength: len([]rune(text)),
		Lang:       p.Lang,
		Cached:     res.CacheHit,
	})
}

// handleStream always answers with audio, whatever the stream field says.
func (s *Server) handleStream(c *gin.Context) {
	p, err := s.bindParams(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, failure("Invalid JSON body"))
		return
	}

	res, _, ok := s.synthesize(c, p)
	if !ok {
		return
	}
	serveAudio(c, res.Path, streamFileName)
}

func (s *Server) handleAudio(c *gin.Context) {
	path, err := s.svc.ResolveAudio(c.Param("filename"))
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) && !errors.Is(err, cache.ErrInvalidName) {
			s.logger.Warn("Audio lookup failed", "file", c.Param("filename"), "err", err)
		}
		c.JSON(http.StatusNotFound, failure("Audio file not found"))
		return
	}
	serveAudio(c, path, "")
}

// serveAudio sends an MP3 inline. http.ServeFile keeps an explicit
// Content-Type, so the extension table is not consulted.
func serveAudio(c *gin.Context, path, downloadName string) {
	c.Header("Content-Type", ttypes.AudioMIMEType)
	if downloadName != "" {
		c.Header("Content-Disposition", `inline; filename="`+downloadName+`"`)
	}
	c.File(path)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   ServiceName,
		"version":   s.cfg.Version,
		"timestamp": unixSeconds(time.Now()),
	})
}

type storeStats struct {
	Dir       string `json:"dir"`
	Entries   int    `json:"entries"`
	Bytes     int64  `json:"bytes"`
	Size      string `json:"size"`
	OldestAge string `json:"oldest_age,omitempty"`
}

func describeStore(st cache.Stats, now time.Time) storeStats {
	out := storeStats{
		Dir:     st.Dir,
		Entries: st.ItemCount,
		Bytes:   st.Size,
		Size:    humanize.Bytes(uint64(st.Size)), //nolint:gosec
	}
	if !st.Oldest.IsZero() {
		out.OldestAge = humanize.RelTime(st.Oldest, now, "", "")
	}
	return out
}

func (s *Server) handleCacheStats(c *gin.Context) {
	now := time.Now()

	cacheStats, err := s.svc.Cache().Stats()
	if err != nil {
		s.logger.Error("Cache stats failed", "err", err)
		c.JSON(http.StatusInternalServerError, failure("Internal server error"))
		return
	}
	outputStats, err := s.svc.Output().Stats()
	if err != nil {
		s.logger.Error("Output stats failed", "err", err)
		c.JSON(http.StatusInternalServerError, failure("Internal server error"))
		return
	}

	synth := s.svc.Stats()
	body := gin.H{
		"success": true,
		"engine":  s.svc.Engine().Name,
		"cache":   describeStore(cacheStats, now),
		"output":  describeStore(outputStats, now),
		"synthesis": gin.H{
			"requests":     synth.Requests,
			"cache_hits":   synth.CacheHits,
			"cache_misses": synth.CacheMisses,
			"failures":     synth.Failures,
			"hit_ratio":    synth.HitRatio(),
			"audio_bytes":  humanize.Bytes(uint64(synth.AudioBytes)), //nolint:gosec
			"avg_duration": synth.AverageDuration().String(),
		},
	}
	if s.janitor != nil {
		body["last_cleanup"] = s.janitor.LastRun().Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, body)
}
