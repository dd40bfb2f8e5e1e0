package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fortuna/tipoff/internal/backfill"
	"github.com/fortuna/tipoff/internal/game"
	"github.com/fortuna/tipoff/internal/logger"
)

// Server upgrades progress subscribers and attaches them to the hub.
type Server struct {
	hub      *Hub
	upgrader websocket.Upgrader
	log      logger.Logger
}

// NewServer creates a Server. allowedOrigins empty accepts any origin.
func NewServer(hub *Hub, allowedOrigins []string, log logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{hub: hub, log: log.Named("websocket")}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return s
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// HandleProgress streams run progress events to the client.
func (s *Server) HandleProgress(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn(r.Context(), "failed to upgrade connection", logger.Err(err))
		return
	}

	client := &Client{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	select {
	case s.hub.register <- client:
	case <-s.hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// Event is one progress message sent to subscribers.
type Event struct {
	Type      string            `json:"type"`
	RunID     string            `json:"run_id,omitempty"`
	Mode      backfill.Mode     `json:"mode,omitempty"`
	Date      string            `json:"date,omitempty"`
	GameID    string            `json:"game_id,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Message   string            `json:"message,omitempty"`
	Current   int               `json:"current,omitempty"`
	Total     int               `json:"total,omitempty"`
	Summary   *backfill.Summary `json:"summary,omitempty"`
	Error     string            `json:"error,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// ProgressReporter broadcasts run events to every subscriber of the hub.
type ProgressReporter struct {
	hub *Hub
	now func() time.Time

	mu    sync.Mutex
	runID string
}

// NewProgressReporter creates a reporter publishing to hub.
func NewProgressReporter(hub *Hub) *ProgressReporter {
	return &ProgressReporter{hub: hub, now: time.Now}
}

func (p *ProgressReporter) emit(ev Event) {
	p.mu.Lock()
	if ev.RunID == "" {
		ev.RunID = p.runID
	}
	p.mu.Unlock()
	ev.Timestamp = p.now().UTC()

	data, err := json.Marshal(ev)
	if err != nil {
		p.hub.log.Warn(context.Background(), "failed to encode progress event", logger.Err(err))
		return
	}
	p.hub.Broadcast(data)
}

func (p *ProgressReporter) OnRunStart(spec backfill.RunSpec) {
	p.mu.Lock()
	p.runID = spec.RunID
	p.mu.Unlock()
	p.emit(Event{Type: "run_start", RunID: spec.RunID, Mode: spec.Mode})
}

func (p *ProgressReporter) OnDateStart(date time.Time, index, total int) {
	p.emit(Event{Type: "date_start", Date: date.Format(game.DateLayout), Current: index, Total: total})
}

func (p *ProgressReporter) OnGameProcessed(gameID string) {
	p.emit(Event{Type: "game_processed", GameID: gameID})
}

func (p *ProgressReporter) OnGameSkipped(gameID, reason string) {
	p.emit(Event{Type: "game_skipped", GameID: gameID, Reason: reason})
}

func (p *ProgressReporter) OnProgress(message string, current, total int) {
	p.emit(Event{Type: "progress", Message: message, Current: current, Total: total})
}

func (p *ProgressReporter) OnRunComplete(summary backfill.Summary) {
	p.emit(Event{Type: "run_complete", RunID: summary.RunID, Summary: &summary})
}

func (p *ProgressReporter) OnRunError(err error) {
	p.emit(Event{Type: "run_error", Error: err.Error()})
}

var _ backfill.Reporter = (*ProgressReporter)(nil)
