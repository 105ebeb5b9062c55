package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/cjeanneret/snapgate/internal/debug"
	"github.com/cjeanneret/snapgate/internal/logic/trigger"
)

// maxCaptureBody caps the POST /capture request body.
const maxCaptureBody = 1 << 20

// submitTimeout bounds how long POST /capture waits for a decision.
const submitTimeout = 5 * time.Second

// Submitter hands a remote command to the trigger runner and returns its decision.
type Submitter interface {
	Submit(ctx context.Context, ev trigger.Event) (trigger.Decision, error)
}

// StateReader exposes the coordinator state.
type StateReader interface {
	Snapshot() trigger.Snapshot
}

// CaptureRequest is the optional body of POST /capture.
type CaptureRequest struct {
	Payload string `json:"payload"`
}

// ConfigView is the effective trigger configuration served by GET /config.
type ConfigView struct {
	Edge            string   `json:"edge"`
	DebounceMs      int64    `json:"debounce_ms"`
	CommandDebounce bool     `json:"command_debounce"`
	IndicatorMs     int64    `json:"indicator_ms"`
	Camera          string   `json:"camera,omitempty"`
	Timer           string   `json:"timer,omitempty"`
	Publishers      []string `json:"publishers,omitempty"`
}

// NewConfigView fills the policy part of a ConfigView.
func NewConfigView(p trigger.Policy) ConfigView {
	return ConfigView{
		Edge:            p.Edge.String(),
		DebounceMs:      p.Debounce.Milliseconds(),
		CommandDebounce: p.CommandDebounce,
		IndicatorMs:     p.IndicatorDuration.Milliseconds(),
	}
}

// OutcomeView describes the last finished capture.
type OutcomeView struct {
	ID         string         `json:"id"`
	Source     string         `json:"source"`
	TakenAt    time.Time      `json:"taken_at,omitempty"`
	DurationMs int64          `json:"duration_ms"`
	Size       int            `json:"size"`
	Locations  []string       `json:"locations,omitempty"`
	Tags       map[string]int `json:"tags,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// StatusView is served by GET /status.
type StatusView struct {
	Busy        bool         `json:"busy"`
	LastCapture *time.Time   `json:"last_capture,omitempty"`
	LastOutcome *OutcomeView `json:"last_outcome,omitempty"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Runner      Submitter
	State       StateReader
	Config      ConfigView
	staticFS    fs.FS

	mu   sync.Mutex
	last *OutcomeView
}

// NewHandlers creates handlers with the given dependencies.
// If runner is nil, POST /capture will return 503 Service Unavailable.
func NewHandlers(broadcaster *StatusBroadcaster, runner Submitter, state StateReader, cfg ConfigView, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Runner:      runner,
		State:       state,
		Config:      cfg,
		staticFS:    staticFS,
	}
}

// RecordOutcome remembers a finished capture for GET /status and
// announces it to SSE clients. It is meant for trigger.Runner.OnOutcome.
func (h *Handlers) RecordOutcome(o trigger.Outcome) {
	v := &OutcomeView{
		ID:         o.Request.ID,
		Source:     o.Request.Event.Kind.String(),
		TakenAt:    o.Artifact.TakenAt,
		DurationMs: o.Duration.Milliseconds(),
		Size:       o.Artifact.Size,
		Locations:  o.Artifact.Locations,
		Tags:       o.Artifact.Tags,
	}
	if o.Err != nil {
		v.Error = o.Err.Error()
	}

	h.mu.Lock()
	h.last = v
	h.mu.Unlock()

	if h.Broadcaster == nil {
		return
	}
	if o.Err != nil {
		h.Broadcaster.Broadcast("error", "Capture "+v.ID+" failed: "+v.Error)
	} else {
		h.Broadcaster.Broadcast("info", "Capture "+v.ID+" complete")
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		debug.Error(err)
	}
}

// HandleConfig returns the effective trigger configuration as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Config)
}

// HandleStatus returns the coordinator state and the last outcome as JSON.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	var v StatusView
	if h.State != nil {
		s := h.State.Snapshot()
		v.Busy = s.Busy
		if !s.LastCapture.IsZero() {
			t := s.LastCapture
			v.LastCapture = &t
		}
	}
	h.mu.Lock()
	v.LastOutcome = h.last
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, v)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleCapture handles POST /capture: a remote command submitted to the
// trigger runner. The body is optional.
func (h *Handlers) HandleCapture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCaptureBody))
	if err != nil {
		http.Error(w, "request body too large", http.StatusBadRequest)
		return
	}
	var req CaptureRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "invalid JSON", http.StatusBadRequest)
			return
		}
	}

	if h.Runner == nil {
		http.Error(w, "capture not configured", http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), submitTimeout)
	defer cancel()

	d, err := h.Runner.Submit(ctx, trigger.CommandEvent(req.Payload))
	switch {
	case errors.Is(err, trigger.ErrQueueFull):
		http.Error(w, "trigger queue full", http.StatusServiceUnavailable)
		return
	case err != nil:
		http.Error(w, "capture not evaluated: "+err.Error(), http.StatusServiceUnavailable)
		return
	}

	resp := map[string]string{"status": d.String()}
	switch d.Reason {
	case trigger.ReasonNone:
		writeJSON(w, http.StatusAccepted, resp)
	case trigger.ReasonBusy:
		writeJSON(w, http.StatusConflict, resp)
	case trigger.ReasonDebounced:
		writeJSON(w, http.StatusTooManyRequests, resp)
	default:
		writeJSON(w, http.StatusUnprocessableEntity, resp)
	}
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
