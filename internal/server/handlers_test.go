package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/decklens/decklens/internal/ocrengine"
	"github.com/decklens/decklens/internal/pipeline"
)

type fixedEngine struct {
	tokens []ocrengine.Token
}

func (f *fixedEngine) Name() string { return "fixed" }

func (f *fixedEngine) Recognize(_ context.Context, _ image.Image) ([]ocrengine.Token, error) {
	return f.tokens, nil
}

func (f *fixedEngine) Close() error { return nil }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	engine := &fixedEngine{tokens: []ocrengine.Token{
		{Text: "易, 锋芒毕现", Confidence: 0.9},
		{Text: "主牌", Confidence: 0.9},
		{Text: "3x 背水一战", Confidence: 0.9},
	}}
	cfg := pipeline.DefaultConfig()
	cfg.Segment.DetectBoundary = false
	pipe, err := pipeline.NewBuilder().WithConfig(cfg).WithEngine(engine).Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = pipe.Close() })
	return NewServer(pipe, DefaultConfig(), nil)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 200, 400))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.NRGBA{R: 40, G: 40, B: 40, A: 255}), image.Point{}, draw.Src)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// multipartBody builds a multipart request body with the given files under
// one field name.
func multipartBody(t *testing.T, field string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, data := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, name))
		h.Set("Content-Type", "image/png")
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestHealthHandler(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.healthHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.True(t, resp.CatalogLoaded)
	assert.Positive(t, resp.TotalCardsInDB)
}

func TestHealthHandlerDegraded(t *testing.T) {
	s := NewServer(nil, DefaultConfig(), nil)
	rec := httptest.NewRecorder()
	s.healthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	// Degraded still answers 200 so orchestrators do not restart the pod.
	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.NotEmpty(t, resp.Warning)
}

func TestStatsHandler(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.statsHandler(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Positive(t, resp.Catalog.TotalCards)
	assert.Equal(t, "fixed", resp.Parser.Engine)
	assert.Equal(t, 10, resp.Parser.MaxBatchSize)
}

func TestProcessHandler(t *testing.T) {
	s := newTestServer(t)
	body, contentType := multipartBody(t, "file", map[string][]byte{"deck.png": pngBytes(t)})
	req := httptest.NewRequest(http.MethodPost, "/process", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.processHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp pipeline.DecklistResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ID)
	require.Len(t, resp.Legend, 1)
	assert.Equal(t, "Master Yi, The Wuju Bladesman", resp.Legend[0].NameCanonical)
	assert.InDelta(t, 100.0, resp.Stats.Accuracy, 1e-9)
}

func TestProcessHandlerBadImage(t *testing.T) {
	s := newTestServer(t)
	body, contentType := multipartBody(t, "file", map[string][]byte{"bad.png": []byte("junk")})
	req := httptest.NewRequest(http.MethodPost, "/process", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.processHandler(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestProcessHandlerNoFile(t *testing.T) {
	s := newTestServer(t)
	body, contentType := multipartBody(t, "other", map[string][]byte{"x.png": pngBytes(t)})
	req := httptest.NewRequest(http.MethodPost, "/process", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.processHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessHandlerMethodNotAllowed(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.processHandler(rec, httptest.NewRequest(http.MethodGet, "/process", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestProcessBatchHandler(t *testing.T) {
	s := newTestServer(t)
	img := pngBytes(t)
	body, contentType := multipartBody(t, "files", map[string][]byte{
		"a.png":      img,
		"broken.png": []byte("junk"),
	})
	req := httptest.NewRequest(http.MethodPost, "/process-batch?parallel=true&workers=2", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.processBatchHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.InDelta(t, 2.0, resp["total"], 1e-9)
	assert.InDelta(t, 1.0, resp["successful"], 1e-9)
	assert.InDelta(t, 1.0, resp["failed"], 1e-9)
}

func TestProcessBatchHandlerTooManyFiles(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxBatchSize = 1
	s := newTestServer(t)
	s.cfg = cfg

	img := pngBytes(t)
	body, contentType := multipartBody(t, "files", map[string][]byte{"a.png": img, "b.png": img})
	req := httptest.NewRequest(http.MethodPost, "/process-batch", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.processBatchHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "maximum 1 images per batch")
}

func TestProcessBatchStreamHandler(t *testing.T) {
	s := newTestServer(t)
	img := pngBytes(t)
	body, contentType := multipartBody(t, "files", map[string][]byte{
		"a.png":      img,
		"broken.png": []byte("junk"),
	})
	req := httptest.NewRequest(http.MethodPost, "/process-batch-stream", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.processBatchStreamHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := parseSSE(t, rec.Body.String())
	var kinds []string
	for _, ev := range events {
		kinds = append(kinds, ev.name)
	}
	assert.Contains(t, kinds, "progress")
	assert.Contains(t, kinds, "result")
	assert.Contains(t, kinds, "error")
	require.Equal(t, "complete", kinds[len(kinds)-1])

	var complete map[string]any
	require.NoError(t, json.Unmarshal([]byte(events[len(events)-1].data), &complete))
	assert.InDelta(t, 2.0, complete["total"], 1e-9)
	assert.InDelta(t, 1.0, complete["successful"], 1e-9)
	assert.InDelta(t, 1.0, complete["failed"], 1e-9)
}

type sseEvent struct {
	name string
	data string
}

func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var events []sseEvent
	for _, block := range strings.Split(body, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		var ev sseEvent
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.data = strings.TrimPrefix(line, "data: ")
			}
		}
		require.NotEmpty(t, ev.name, "malformed SSE block: %q", block)
		events = append(events, ev)
	}
	return events
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)
	handler := s.corsMiddleware(s.healthHandler)
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodOptions, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRegisterRoutes(t *testing.T) {
	s := newTestServer(t)
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
