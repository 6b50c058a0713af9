package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/decklens/decklens/internal/batch"
)

// formatSSE renders one Server-Sent Event frame.
func formatSSE(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return fmt.Appendf(nil, "event: %s\ndata: %s\n\n", event, data), nil
}

func eventPayload(ev batch.Event) any {
	switch ev.Kind {
	case batch.EventProgress:
		return ev.Progress
	case batch.EventResult:
		return ev.Result
	case batch.EventError:
		return ev.Error
	case batch.EventComplete:
		return ev.Complete
	}
	return nil
}

// processBatchStreamHandler converts several images, emitting progressive
// results over SSE. The stream always terminates with one complete event.
func (s *Server) processBatchStreamHandler(w http.ResponseWriter, r *http.Request) {
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

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	parallel, workers := batchOptions(r)
	start := time.Now()
	// A disconnect cancels r.Context(), which stops dispatch while in-flight
	// images drain; the complete event still closes the stream internally.
	for ev := range s.orchestrator(parallel, workers).Stream(r.Context(), inputs) {
		frame, err := formatSSE(string(ev.Kind), eventPayload(ev))
		if err != nil {
			s.logger.Error("encode stream event", "kind", ev.Kind, "error", err)
			continue
		}
		if _, err := w.Write(frame); err != nil {
			s.logger.Debug("stream client gone", "error", err)
			continue
		}
		flusher.Flush()

		switch ev.Kind {
		case batch.EventResult:
			decklistsProcessed.WithLabelValues("success").Inc()
			matchAccuracy.Observe(ev.Result.Decklist.Stats.Accuracy)
		case batch.EventError:
			decklistsProcessed.WithLabelValues("error").Inc()
		}
	}
	processingDuration.WithLabelValues("stream").Observe(time.Since(start).Seconds())
}
