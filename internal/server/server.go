package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	apperrors "github.com/rajpdus/meeting-sidekick/internal/errors"
	"github.com/rajpdus/meeting-sidekick/internal/orchestrator"
	"github.com/rajpdus/meeting-sidekick/internal/orchestrator/analysis"
	"github.com/rajpdus/meeting-sidekick/internal/orchestrator/session"
	"github.com/rajpdus/meeting-sidekick/internal/trace"
)

// Controller is the session surface the server drives.
type Controller interface {
	StartRecording(ctx context.Context) error
	StopRecording(ctx context.Context) error
	Snapshot() session.Snapshot
	SetTitle(title string) error
	RefreshSummary(ctx context.Context) error
	ExtractActionItems(ctx context.Context) error
	SetInsightsEnabled(enabled bool)
	Export(ctx context.Context, format string) (string, error)
	Subscribe() (<-chan orchestrator.Event, func())
}

// Command types accepted on the WebSocket.
const (
	CmdStartRecording     = "start_recording"
	CmdStopRecording      = "stop_recording"
	CmdRefreshSummary     = "refresh_summary"
	CmdExtractActionItems = "extract_action_items"
	CmdSetTitle           = "set_title"
	CmdSetInsights        = "set_insights"
	CmdExport             = "export"
)

// Command is a client request over the WebSocket.
type Command struct {
	Type    string `json:"type"`
	Title   string `json:"title,omitempty"`
	Format  string `json:"format,omitempty"`
	Enabled *bool  `json:"enabled,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

// AckMessage confirms a command. Path is set for exports.
type AckMessage struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Path    string `json:"path,omitempty"`
}

// ErrorMessage reports a rejected or failed command.
type ErrorMessage struct {
	Type    string `json:"type"`
	Command string `json:"command,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// SessionMessage carries a full snapshot, sent when a client connects.
type SessionMessage struct {
	Type    string           `json:"type"`
	Session session.Snapshot `json:"session"`
}

// rateLimiter tracks message timestamps using a sliding window.
type rateLimiter struct {
	timestamps []time.Time
	mu         sync.Mutex
}

// allow checks if a message is allowed and records the timestamp if so.
func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-RateLimitWindow)

	valid := r.timestamps[:0]
	for _, t := range r.timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.timestamps = valid

	if len(r.timestamps) >= RateLimitMessages {
		return false
	}

	r.timestamps = append(r.timestamps, now)
	return true
}

// client is one WebSocket connection. Only its writer goroutine writes to conn,
// so events and command replies go out in the order they were queued.
type client struct {
	conn    *websocket.Conn
	send    chan any
	dropped int
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	ctrl        Controller
	unsubscribe func()
	done        chan struct{}

	mu      sync.Mutex
	clients map[*client]struct{}
}

// New creates a server and starts broadcasting session events to WebSocket clients.
func New(ctrl Controller) *Server {
	events, unsubscribe := ctrl.Subscribe()
	s := &Server{
		ctrl:        ctrl,
		unsubscribe: unsubscribe,
		done:        make(chan struct{}),
		clients:     make(map[*client]struct{}),
	}
	go s.broadcast(events)
	return s
}

// Close stops the broadcaster.
func (s *Server) Close() {
	s.unsubscribe()
	<-s.done
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)

	mux.HandleFunc("GET /api/session", s.handleSession)
	mux.HandleFunc("POST /api/recording/start", s.handleRecordingStart)
	mux.HandleFunc("POST /api/recording/stop", s.handleRecordingStop)
	mux.HandleFunc("POST /api/title", s.handleTitle)
	mux.HandleFunc("POST /api/summary", s.handleSummary)
	mux.HandleFunc("POST /api/action-items", s.handleActionItems)
	mux.HandleFunc("POST /api/insights", s.handleInsights)
	mux.HandleFunc("POST /api/export", s.handleExport)

	// Apply middleware: trace -> CORS
	return corsMiddleware(trace.Middleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	baseCtx, cancel := context.WithCancel(r.Context())
	defer cancel()
	log := trace.Logger(baseCtx)
	log.Info("websocket connected", "remote", r.RemoteAddr)

	// Register and queue the snapshot under one lock so no event slips in between.
	c := &client{conn: conn, send: make(chan any, SendBuffer)}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	c.send <- SessionMessage{Type: "session", Session: s.ctrl.Snapshot()}
	s.mu.Unlock()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(baseCtx, c)
		cancel()
	}()
	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
		cancel()
		<-writerDone
	}()

	limiter := &rateLimiter{}
	for {
		var raw json.RawMessage
		if err := wsjson.Read(baseCtx, conn, &raw); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		var reply any
		if !limiter.allow() {
			log.Warn("rate limit exceeded", "remote", r.RemoteAddr)
			reply = ErrorMessage{Type: "error", Message: "rate limit exceeded"}
		} else if cmd, err := parseCommand(raw); err != nil {
			reply = ErrorMessage{Type: "error", Message: "malformed command"}
		} else {
			ctx := baseCtx
			if tc, ok := trace.ExtractFromJSON(raw); ok {
				ctx = trace.WithContext(ctx, tc)
			} else {
				ctx, _ = trace.EnsureContext(ctx)
			}
			reply = s.runCommand(ctx, cmd)
		}

		select {
		case c.send <- reply:
		case <-baseCtx.Done():
			return
		}
	}
}

func parseCommand(raw json.RawMessage) (Command, error) {
	var cmd Command
	err := json.Unmarshal(raw, &cmd)
	return cmd, err
}

// writeLoop is the connection's only writer. It returns on the first failed write.
func (s *Server) writeLoop(ctx context.Context, c *client) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, WriteTimeout)
			err := wsjson.Write(wctx, c.conn, msg)
			cancel()
			if err != nil {
				trace.Logger(ctx).Debug("websocket write failed", "error", err)
				return
			}
		}
	}
}

// runCommand executes cmd and returns the reply for the caller.
func (s *Server) runCommand(ctx context.Context, cmd Command) any {
	ctx, span := trace.StartSpan(ctx, "ws.command")
	defer span.End()
	span.SetAttr("command", cmd.Type)

	var (
		err  error
		path string
	)
	switch cmd.Type {
	case CmdStartRecording:
		err = s.ctrl.StartRecording(ctx)
	case CmdStopRecording:
		err = s.ctrl.StopRecording(ctx)
	case CmdRefreshSummary:
		err = s.ctrl.RefreshSummary(ctx)
	case CmdExtractActionItems:
		err = s.ctrl.ExtractActionItems(ctx)
	case CmdSetTitle:
		err = s.ctrl.SetTitle(cmd.Title)
	case CmdSetInsights:
		if cmd.Enabled == nil {
			err = apperrors.New(apperrors.CodeInvalidArgument, "enabled is required")
			break
		}
		s.ctrl.SetInsightsEnabled(*cmd.Enabled)
	case CmdExport:
		path, err = s.ctrl.Export(ctx, cmd.Format)
	default:
		err = apperrors.Newf(apperrors.CodeInvalidArgument, "unknown command %q", cmd.Type)
	}

	if err != nil {
		span.SetAttr("error", err.Error())
		trace.Logger(ctx).Warn("command failed", "command", cmd.Type, "error", err)
		msg := ErrorMessage{Type: "error", Command: cmd.Type, Message: err.Error()}
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			msg.Code, msg.Message = appErr.Code.String(), appErr.Message
		}
		return msg
	}
	return AckMessage{Type: "ack", Command: cmd.Type, Path: path}
}

// broadcast queues each event on every client in publish order. A client whose queue is full
// misses the event rather than stalling the others.
func (s *Server) broadcast(events <-chan orchestrator.Event) {
	defer close(s.done)
	for evt := range events {
		s.mu.Lock()
		for c := range s.clients {
			select {
			case c.send <- evt:
			default:
				c.dropped++
				if c.dropped == 1 || c.dropped%100 == 0 {
					slog.Warn("websocket client too slow, dropping event", "type", evt.Type, "dropped", c.dropped)
				}
			}
		}
		s.mu.Unlock()
	}
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

func (s *Server) handleRecordingStart(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.StartRecording(r.Context()); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recording_started"})
}

func (s *Server) handleRecordingStop(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.StopRecording(r.Context()); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recording_stopped"})
}

func (s *Server) handleTitle(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes)).Decode(&body); err != nil {
		writeError(r.Context(), w, apperrors.Wrap(err, apperrors.CodeInvalidArgument, "invalid request body"))
		return
	}
	if err := s.ctrl.SetTitle(body.Title); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"title": s.ctrl.Snapshot().Title})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.RefreshSummary(r.Context()); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"summary": s.ctrl.Snapshot().Summary})
}

func (s *Server) handleActionItems(w http.ResponseWriter, r *http.Request) {
	err := s.ctrl.ExtractActionItems(r.Context())
	if err != nil && !apperrors.IsCode(err, apperrors.CodeLLMInvalidResponse) {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"action_items": s.ctrl.Snapshot().ActionItems})
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes)).Decode(&body); err != nil {
		writeError(r.Context(), w, apperrors.Wrap(err, apperrors.CodeInvalidArgument, "invalid request body"))
		return
	}
	if body.Enabled == nil {
		writeError(r.Context(), w, apperrors.New(apperrors.CodeInvalidArgument, "enabled is required"))
		return
	}
	s.ctrl.SetInsightsEnabled(*body.Enabled)
	writeJSON(w, http.StatusOK, map[string]bool{"insights_enabled": *body.Enabled})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	path, err := s.ctrl.Export(r.Context(), r.URL.Query().Get("format"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": path})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := httpStatus(err)
	body := ErrorMessage{Type: "error", Message: err.Error()}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		body.Code, body.Message = appErr.Code.String(), appErr.Message
	}
	if status >= http.StatusInternalServerError {
		trace.Logger(ctx).Error("request failed", "error", err)
	}
	writeJSON(w, status, body)
}

func httpStatus(err error) int {
	if errors.Is(err, analysis.ErrEmptyTranscript) {
		return http.StatusConflict
	}
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError
	}
	switch appErr.Code {
	case apperrors.CodeInvalidArgument:
		return http.StatusBadRequest
	case apperrors.CodeAudioDevice, apperrors.CodeUnavailable, apperrors.CodeLLMNotConfigured:
		return http.StatusServiceUnavailable
	case apperrors.CodeLLMRateLimited:
		return http.StatusTooManyRequests
	case apperrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case apperrors.CodeLLMAPIError, apperrors.CodeLLMInvalidResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
