package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/BikramMondal5/MediVerify/internal/auth"
	"github.com/BikramMondal5/MediVerify/internal/history"
	"github.com/BikramMondal5/MediVerify/internal/images"
	"github.com/BikramMondal5/MediVerify/internal/records"
	"github.com/BikramMondal5/MediVerify/internal/storage"
	"github.com/BikramMondal5/MediVerify/internal/verdict"
	"github.com/BikramMondal5/MediVerify/internal/workflow"
	"github.com/gorilla/mux"
)

type Options struct {
	Auth     *auth.Authenticator
	Analyzer verdict.Analyzer
	Records  records.Store
	Images   images.Store
	// Uploads serves locally stored images under /uploads/. Nil when images
	// live elsewhere.
	Uploads *images.DiskStore
	// Store backs guest history for the workflow endpoints.
	Store    storage.Port
	Workflow workflow.Options
	Sessions SessionLimits
	Now      func() time.Time
}

type Handler struct {
	auth     *auth.Authenticator
	analyzer verdict.Analyzer
	records  records.Store
	images   images.Store
	uploads  *images.DiskStore
	recorder *history.Recorder
	sessions *Sessions
	now      func() time.Time
}

func New(opts Options) *Handler {
	h := &Handler{
		auth:     opts.Auth,
		analyzer: opts.Analyzer,
		records:  opts.Records,
		images:   opts.Images,
		uploads:  opts.Uploads,
		now:      opts.Now,
	}
	if h.auth == nil {
		h.auth = auth.New("", 0)
	}
	if h.analyzer == nil {
		h.analyzer = verdict.NewMock(verdict.DefaultThreshold)
	}
	if h.images == nil {
		disk := images.NewDiskStore("uploads")
		h.images = disk
		if h.uploads == nil {
			h.uploads = disk
		}
	}
	if h.records == nil {
		h.records = records.NewMemoryStore()
	}
	store := opts.Store
	if store == nil {
		store = storage.NewMemoryStore()
	}
	if h.now == nil {
		h.now = time.Now
	}
	h.recorder = history.NewRecorder(store)
	h.sessions = NewSessions(store, h.recorder, h.analyzer, opts.Workflow, opts.Sessions)
	h.sessions.now = h.now
	return h
}

// Router wires every endpoint.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			slog.Error("Unable to write healthcheck", "err", err)
		}
	}).Methods(http.MethodGet)
	r.HandleFunc("/", h.HandleRoot).Methods(http.MethodGet)
	r.HandleFunc("/uploads/{name}", h.HandleUploads).Methods(http.MethodGet)
	r.HandleFunc("/api/identity", h.HandleIdentity).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(h.auth.Middleware(func(w http.ResponseWriter, err error) {
		h.writeError(w, err.Error(), http.StatusUnauthorized)
	}))
	api.HandleFunc("/medications/verify", h.HandleVerify).Methods(http.MethodPost)
	api.HandleFunc("/medications/history", h.HandleMedicationHistory).Methods(http.MethodGet)
	api.HandleFunc("/medications/{id}", h.HandleMedicationDetail).Methods(http.MethodGet)

	api.HandleFunc("/workflow", h.HandleWorkflowState).Methods(http.MethodGet)
	api.HandleFunc("/workflow/upload", h.HandleWorkflowUpload).Methods(http.MethodPost)
	api.HandleFunc("/workflow/analyze", h.HandleWorkflowAnalyze).Methods(http.MethodPost)
	api.HandleFunc("/workflow/retake", h.HandleWorkflowRetake).Methods(http.MethodPost)
	api.HandleFunc("/history", h.HandleHistory).Methods(http.MethodGet)

	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.writeError(w, "Not found", http.StatusNotFound)
	})
	return r
}

// Close releases every workflow session.
func (h *Handler) Close() {
	h.sessions.Close()
}

func (h *Handler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	if _, err := w.Write([]byte("MediVerify API is running")); err != nil {
		slog.Error("Unable to write response", "err", err)
	}
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	h.writeJSONStatus(w, http.StatusOK, data)
}

func (h *Handler) writeJSONStatus(w http.ResponseWriter, code int, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
		h.writeError(w, "Server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(body); err != nil {
		slog.Error("Unable to write response", "err", err)
	}
}

type errorResponse struct {
	Message string `json:"message"`
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	if code >= http.StatusInternalServerError {
		slog.Error(message)
	} else {
		slog.Debug(message, "status", code)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(errorResponse{Message: message}); err != nil {
		slog.Error("Unable to encode error response", "err", err)
	}
}

// userID is set by the auth middleware on every /api route.
func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := auth.UserIDFrom(r.Context())
	if !ok {
		h.writeError(w, auth.ErrUnauthorized.Error(), http.StatusUnauthorized)
		return "", false
	}
	return id, true
}
