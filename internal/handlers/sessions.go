package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/BikramMondal5/MediVerify/internal/history"
	"github.com/BikramMondal5/MediVerify/internal/identity"
	"github.com/BikramMondal5/MediVerify/internal/media"
	"github.com/BikramMondal5/MediVerify/internal/storage"
	"github.com/BikramMondal5/MediVerify/internal/verdict"
	"github.com/BikramMondal5/MediVerify/internal/workflow"
)

const (
	DefaultSessionIdle = 30 * time.Minute
	DefaultMaxSessions = 1000
)

// SessionLimits bound how many workflow sessions stay in memory.
type SessionLimits struct {
	// Idle is how long an untouched session survives. Zero means
	// DefaultSessionIdle.
	Idle time.Duration
	// Max caps live sessions. When full, the least recently used one is
	// closed. Zero means DefaultMaxSessions.
	Max int
}

type session struct {
	ctrl     *workflow.Controller
	lastUsed time.Time
}

// Sessions holds one workflow controller per identity.
type Sessions struct {
	store    storage.Port
	recorder *history.Recorder
	analyzer verdict.Analyzer
	opts     workflow.Options
	limits   SessionLimits
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

func NewSessions(store storage.Port, recorder *history.Recorder, analyzer verdict.Analyzer, opts workflow.Options, limits SessionLimits) *Sessions {
	if limits.Idle <= 0 {
		limits.Idle = DefaultSessionIdle
	}
	if limits.Max <= 0 {
		limits.Max = DefaultMaxSessions
	}
	return &Sessions{
		store:    store,
		recorder: recorder,
		analyzer: analyzer,
		opts:     opts,
		limits:   limits,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

// Get returns the controller for id, creating it on first use. The server
// has no camera, so sessions only accept uploads. Idle sessions are swept on
// every call.
func (s *Sessions) Get(id string) *workflow.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweepLocked(now)

	if sess, ok := s.sessions[id]; ok {
		sess.lastUsed = now
		return sess.ctrl
	}
	if len(s.sessions) >= s.limits.Max {
		s.evictOldestLocked()
	}

	ids := identity.NewProvider(sessionPort{Port: s.store, token: id})
	c := workflow.New(media.NewAdapter(nil), s.analyzer, s.recorder, ids, s.opts)
	s.sessions[id] = &session{ctrl: c, lastUsed: now}
	slog.Debug("Workflow session created", "identity", id, "sessions", len(s.sessions))
	return c
}

// Drop closes and forgets the session for id.
func (s *Sessions) Drop(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.ctrl.Close()
		delete(s.sessions, id)
	}
}

// sweepLocked closes sessions idle for longer than the limit. A session with
// an analysis in flight is kept until it settles.
func (s *Sessions) sweepLocked(now time.Time) {
	for id, sess := range s.sessions {
		if now.Sub(sess.lastUsed) <= s.limits.Idle || sess.ctrl.State() == workflow.Analyzing {
			continue
		}
		sess.ctrl.Close()
		delete(s.sessions, id)
		slog.Debug("Workflow session expired", "identity", id)
	}
}

func (s *Sessions) evictOldestLocked() {
	var (
		oldestID string
		oldest   *session
	)
	for id, sess := range s.sessions {
		if sess.ctrl.State() == workflow.Analyzing {
			continue
		}
		if oldest == nil || sess.lastUsed.Before(oldest.lastUsed) {
			oldestID, oldest = id, sess
		}
	}
	if oldest == nil {
		return
	}
	oldest.ctrl.Close()
	delete(s.sessions, oldestID)
	slog.Debug("Workflow session evicted", "identity", oldestID)
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Sessions) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		sess.ctrl.Close()
		delete(s.sessions, id)
	}
}

// sessionPort pins the identity key to the session's token and shares
// every other key with the server store.
type sessionPort struct {
	storage.Port
	token string
}

func (p sessionPort) Get(ctx context.Context, key string) (string, bool, error) {
	if key == identity.StorageKey {
		return p.token, true, nil
	}
	return p.Port.Get(ctx, key)
}

func (p sessionPort) Set(ctx context.Context, key, value string) error {
	if key == identity.StorageKey {
		return nil
	}
	return p.Port.Set(ctx, key, value)
}

type workflowResponse struct {
	workflow.Snapshot
	Message string `json:"message,omitempty"`
}

func (h *Handler) HandleWorkflowState(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, workflowResponse{Snapshot: h.sessions.Get(userID).Snapshot()})
}

// HandleWorkflowUpload accepts the multipart field "image" as the pending
// image.
func (h *Handler) HandleWorkflowUpload(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	data, header, ok := h.readImage(w, r, "image", media.MaxFileBytes)
	if !ok {
		return
	}

	ctrl := h.sessions.Get(userID)
	if err := ctrl.Upload(data, header.Header.Get("Content-Type")); err != nil {
		h.writeWorkflowError(w, err)
		return
	}
	h.writeJSON(w, workflowResponse{Snapshot: ctrl.Snapshot()})
}

func (h *Handler) HandleWorkflowAnalyze(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	ctrl := h.sessions.Get(userID)
	v, err := ctrl.Analyze(r.Context())
	if err != nil {
		h.writeWorkflowError(w, err)
		return
	}
	h.writeJSON(w, workflowResponse{Snapshot: ctrl.Snapshot(), Message: v.Message()})
}

func (h *Handler) HandleWorkflowRetake(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	ctrl := h.sessions.Get(userID)
	if err := ctrl.Retake(); err != nil {
		h.writeWorkflowError(w, err)
		return
	}
	snap := ctrl.Snapshot()
	// an idle session holds nothing worth keeping
	h.sessions.Drop(userID)
	h.writeJSON(w, workflowResponse{Snapshot: snap})
}

func (h *Handler) writeWorkflowError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, workflow.ErrInvalidTransition):
		h.writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, media.ErrUnsupportedFormat):
		h.writeError(w, err.Error(), http.StatusUnsupportedMediaType)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.writeError(w, "Analysis cancelled", http.StatusServiceUnavailable)
	default:
		slog.Error("Workflow operation failed", "err", err)
		h.writeError(w, "Unable to analyze image. Please try again.", http.StatusBadGateway)
	}
}

type historyResponse struct {
	Entries []historyItem   `json:"entries"`
	Summary history.Summary `json:"summary"`
}

type historyItem struct {
	Image     string `json:"image"`
	Result    string `json:"result"`
	Timestamp string `json:"timestamp,omitempty"`
	Authentic bool   `json:"authentic"`
}

// HandleHistory lists the caller's scan history with aggregate counts.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	entries, err := h.recorder.List(r.Context(), identity.Token(userID))
	if err != nil {
		slog.Error("Failed to list history", "identity", userID, "err", err)
		h.writeError(w, "Server error", http.StatusInternalServerError)
		return
	}

	resp := historyResponse{
		Entries: make([]historyItem, 0, len(entries)),
		Summary: history.Aggregate(entries),
	}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, historyItem{
			Image:     e.Image,
			Result:    e.Result,
			Timestamp: e.Timestamp,
			Authentic: e.IsAuthentic(),
		})
	}
	h.writeJSON(w, resp)
}

type identityResponse struct {
	UserID string `json:"userId"`
	Token  string `json:"token,omitempty"`
}

// HandleIdentity issues a guest identity. A caller that already presents one
// gets it echoed back.
func (h *Handler) HandleIdentity(w http.ResponseWriter, r *http.Request) {
	if id, err := h.auth.UserID(r); err == nil {
		h.writeJSON(w, identityResponse{UserID: id})
		return
	}

	token := identity.NewGuestToken(h.now())
	resp := identityResponse{UserID: string(token)}
	if h.auth.Signed() {
		signed, err := h.auth.Issue(string(token))
		if err != nil {
			slog.Error("Failed to sign identity", "err", err)
			h.writeError(w, "Server error", http.StatusInternalServerError)
			return
		}
		resp.Token = signed
	}
	slog.Info("Issued guest identity", "token", token)
	h.writeJSONStatus(w, http.StatusCreated, resp)
}
