package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/onewithdev/peterbot/internal/bus"
	"github.com/onewithdev/peterbot/internal/config"
	"github.com/onewithdev/peterbot/internal/store"
)

// Server wires the dashboard's HTTP handlers to the JobStore, ConfigStore
// and EventBus. It never owns the listener's lifecycle — callers pass the
// result of Handler() to http.Server themselves.
type Server struct {
	store       store.JobStore
	configStore *config.ConfigStore
	events      *bus.EventBus
	password    string
	defaultChat string
}

func New(js store.JobStore, cs *config.ConfigStore, events *bus.EventBus, password, defaultChat string) *Server {
	return &Server{store: js, configStore: cs, events: events, password: password, defaultChat: defaultChat}
}

// Handler builds the dashboard's route table (spec.md §6).
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/auth/verify", s.handleVerify)

	mux.HandleFunc("GET /api/jobs", requireAuth(s.password, s.handleListJobs))
	mux.HandleFunc("GET /api/jobs/{id}", requireAuth(s.password, s.handleGetJob))
	mux.HandleFunc("POST /api/jobs/{id}/cancel", requireAuth(s.password, s.handleCancelJob))

	mux.HandleFunc("GET /api/soul", requireAuth(s.password, s.handleReadConfig(config.FileSoul)))
	mux.HandleFunc("PUT /api/soul", requireAuth(s.password, s.handleWriteConfig(config.FileSoul)))
	mux.HandleFunc("GET /api/memory", requireAuth(s.password, s.handleReadConfig(config.FileMemory)))
	mux.HandleFunc("PUT /api/memory", requireAuth(s.password, s.handleWriteConfig(config.FileMemory)))
	mux.HandleFunc("GET /api/blocklist", requireAuth(s.password, s.handleReadConfig(config.FileBlocklist)))
	mux.HandleFunc("PUT /api/blocklist", requireAuth(s.password, s.handleWriteConfig(config.FileBlocklist)))

	mux.HandleFunc("GET /api/ws/jobs", requireAuth(s.password, s.handleJobsWS))

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	valid := subtle.ConstantTimeCompare([]byte(body.Password), []byte(s.password)) == 1
	writeJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	chatID := r.URL.Query().Get("chat_id")
	if chatID == "" {
		chatID = s.defaultChat
	}
	jobs, err := s.store.ListJobsByChat(r.Context(), chatID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.store.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.Reason == "" {
		body.Reason = "cancelled from dashboard"
	}
	if err := s.store.CancelJob(r.Context(), r.PathValue("id"), body.Reason); err != nil {
		writeStoreError(w, err)
		return
	}
	s.events.Broadcast(bus.Event{Type: bus.EventJobFailed, JobID: r.PathValue("id"), Status: string(store.JobFailed)})
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleReadConfig(kind config.FileKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := s.configStore.Read(kind)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"content":      info.Content,
			"lastModified": info.LastModified.Format(time.RFC3339),
			"size":         info.Size,
		})
	}
}

func (s *Server) handleWriteConfig(kind config.FileKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Content string `json:"content"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := s.configStore.Write(kind, body.Content); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("httpapi: encode response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeError(w, http.StatusInternalServerError, err)
}
