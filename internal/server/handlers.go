package server

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/decklens/decklens/internal/batch"
	"github.com/decklens/decklens/internal/version"
)

const serviceName = "decklens"

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, ErrorResponse{Error: msg})
}

// healthHandler reports service health. A missing catalog degrades the
// status but still answers 200 to keep orchestrators from restart loops.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := HealthResponse{
		Status:  "healthy",
		Service: serviceName,
		Version: version.Version,
	}
	if s.pipe == nil || s.pipe.Catalog() == nil {
		resp.Status = "degraded"
		resp.Warning = "card catalog not initialized, processing unavailable"
	} else {
		resp.CatalogLoaded = true
		resp.TotalCardsInDB = s.pipe.Catalog().Size()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// statsHandler reports catalog and parser configuration.
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.pipe == nil {
		s.writeError(w, http.StatusServiceUnavailable, "pipeline not initialized")
		return
	}

	s.writeJSON(w, http.StatusOK, StatsResponse{
		Catalog: CatalogStats{
			TotalCards:         s.pipe.Catalog().Size(),
			BaseNames:          s.pipe.Catalog().BaseNameCount(),
			SupportedLanguages: []string{"zh-CN", "en"},
		},
		Parser: ParserStats{
			Engine:           s.pipe.EngineName(),
			SupportedFormats: []string{"JPG", "PNG", "BMP"},
			MaxFileSizeMB:    s.cfg.MaxUploadMB,
			MaxBatchSize:     s.cfg.MaxBatchSize,
			NumberMismatches: s.pipe.NumberMismatches(),
		},
	})
}

// readUpload pulls one multipart file and validates type and size.
func (s *Server) readUpload(file multipart.File, header *multipart.FileHeader) ([]byte, string, error) {
	filename := header.Filename
	if filename == "" {
		filename = "upload"
	}
	contentType := header.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		return nil, filename, fmt.Errorf("file must be an image (JPG/PNG)")
	}
	maxBytes := int64(s.cfg.MaxUploadMB) * 1024 * 1024
	if header.Size > maxBytes {
		return nil, filename, fmt.Errorf("file size (%.1fMB) exceeds maximum (%dMB)",
			float64(header.Size)/(1024*1024), s.cfg.MaxUploadMB)
	}
	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return nil, filename, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, filename, fmt.Errorf("file size exceeds maximum (%dMB)", s.cfg.MaxUploadMB)
	}
	uploadSizeBytes.Observe(float64(len(data)))
	return data, filename, nil
}

// processHandler converts one uploaded decklist image.
func (s *Server) processHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.pipe == nil {
		s.writeError(w, http.StatusServiceUnavailable, "pipeline not initialized")
		return
	}

	maxBytes := int64(s.cfg.MaxUploadMB) * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+4096)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to parse form data")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer func() { _ = file.Close() }()

	data, filename, err := s.readUpload(file, header)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	res, err := s.pipe.ProcessBytes(r.Context(), data, filename)
	processingDuration.WithLabelValues("single").Observe(time.Since(start).Seconds())
	if err != nil {
		decklistsProcessed.WithLabelValues("error").Inc()
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	decklistsProcessed.WithLabelValues("success").Inc()
	matchAccuracy.Observe(res.Stats.Accuracy)
	s.writeJSON(w, http.StatusOK, res)
}

// collectBatch reads every uploaded file of a batch request. Validation
// failures become inputs with nil data so the orchestrator reports them
// in-stream instead of rejecting the whole batch.
func (s *Server) collectBatch(r *http.Request) ([]batch.Input, error) {
	if err := r.ParseMultipartForm(int64(s.cfg.MaxUploadMB) * 1024 * 1024 * int64(s.cfg.MaxBatchSize)); err != nil {
		return nil, fmt.Errorf("failed to parse form data")
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		return nil, fmt.Errorf("no files provided")
	}
	if len(files) > s.cfg.MaxBatchSize {
		return nil, fmt.Errorf("maximum %d images per batch (received %d)", s.cfg.MaxBatchSize, len(files))
	}

	inputs := make([]batch.Input, 0, len(files))
	for _, header := range files {
		file, err := header.Open()
		if err != nil {
			inputs = append(inputs, batch.Input{Filename: header.Filename})
			continue
		}
		data, filename, err := s.readUpload(file, header)
		_ = file.Close()
		if err != nil {
			// Empty data fails decoding downstream and is reported per item.
			inputs = append(inputs, batch.Input{Filename: filename})
			continue
		}
		inputs = append(inputs, batch.Input{Filename: filename, Data: data})
	}
	return inputs, nil
}

func batchOptions(r *http.Request) (parallel bool, workers int) {
	q := r.URL.Query()
	parallel = q.Get("parallel") == "true" || q.Get("parallel") == "1"
	if v := q.Get("workers"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			workers = n
		}
	}
	return parallel, workers
}

// processBatchHandler converts several images and buffers the outcome.
func (s *Server) processBatchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.pipe == nil {
		s.writeError(w, http.StatusServiceUnavailable, "pipeline not initialized")
		return
	}

	inputs, err := s.collectBatch(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	parallel, workers := batchOptions(r)
	start := time.Now()
	res, err := s.orchestrator(parallel, workers).Run(r.Context(), inputs)
	processingDuration.WithLabelValues("batch").Observe(time.Since(start).Seconds())
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	decklistsProcessed.WithLabelValues("success").Add(float64(res.Successful))
	decklistsProcessed.WithLabelValues("error").Add(float64(res.Failed))
	s.writeJSON(w, http.StatusOK, res)
}
