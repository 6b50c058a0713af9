package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/decklens/decklens/internal/batch"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin policy is enforced by the deployment's reverse proxy.
		return true
	},
}

// wsRequest is one batch request over the WebSocket. Images are
// base64-encoded by encoding/json.
type wsRequest struct {
	Images   [][]byte `json:"images"`
	Names    []string `json:"filenames,omitempty"`
	Parallel bool     `json:"parallel,omitempty"`
	Workers  int      `json:"workers,omitempty"`
}

// wsEvent mirrors the SSE frames with an explicit discriminant.
type wsEvent struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// websocketHandler processes batches over a WebSocket, one request per
// message, streaming the same event sequence as the SSE endpoint.
func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()
	s.logger.Info("websocket connection established", "remote_addr", r.RemoteAddr)

	for {
		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read failed", "error", err)
			}
			return
		}
		if err := s.serveWSBatch(r, conn, req); err != nil {
			return
		}
	}
}

func (s *Server) serveWSBatch(r *http.Request, conn *websocket.Conn, req wsRequest) error {
	if len(req.Images) == 0 {
		return s.writeWSEvent(conn, wsEvent{Event: "error", Payload: ErrorResponse{Error: "no images provided"}})
	}
	if len(req.Images) > s.cfg.MaxBatchSize {
		return s.writeWSEvent(conn, wsEvent{Event: "error", Payload: ErrorResponse{
			Error: "batch size exceeds maximum",
		}})
	}

	inputs := make([]batch.Input, len(req.Images))
	for i, data := range req.Images {
		name := "image"
		if i < len(req.Names) && req.Names[i] != "" {
			name = req.Names[i]
		}
		inputs[i] = batch.Input{Filename: name, Data: data}
	}

	start := time.Now()
	for ev := range s.orchestrator(req.Parallel, req.Workers).Stream(r.Context(), inputs) {
		if err := s.writeWSEvent(conn, wsEvent{Event: string(ev.Kind), Payload: eventPayload(ev)}); err != nil {
			s.logger.Debug("websocket client gone", "error", err)
			return err
		}
		switch ev.Kind {
		case batch.EventResult:
			decklistsProcessed.WithLabelValues("success").Inc()
		case batch.EventError:
			decklistsProcessed.WithLabelValues("error").Inc()
		}
	}
	processingDuration.WithLabelValues("websocket").Observe(time.Since(start).Seconds())
	return nil
}

func (s *Server) writeWSEvent(conn *websocket.Conn, ev wsEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}
