package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"qms/admission-service/internal/journal"
	"qms/admission-service/internal/models"
	"qms/admission-service/internal/session"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

const defaultEventLimit = 100

type Handler struct {
	sessions    *session.Registry
	events      journal.Reader
	departments map[string]struct{}
	maxPriority models.Priority
	now         func() time.Time
	limiter     *RateLimiter
}

type Options struct {
	Departments []string
	MaxPriority int
	// Limiter throttles calls per session id when set.
	Limiter *RateLimiter
	Now     func() time.Time
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type sessionResponse struct {
	SessionID  string     `json:"session_id"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

func NewHandler(sessions *session.Registry, events journal.Reader, options Options) *Handler {
	departments := make(map[string]struct{}, len(options.Departments))
	for _, department := range options.Departments {
		departments[strings.ToLower(strings.TrimSpace(department))] = struct{}{}
	}
	now := options.Now
	if now == nil {
		now = time.Now
	}
	maxPriority := models.Priority(options.MaxPriority)
	if maxPriority < models.PriorityNormal {
		maxPriority = models.PriorityNormal
	}
	return &Handler{
		sessions:    sessions,
		events:      events,
		departments: departments,
		maxPriority: maxPriority,
		now:         now,
		limiter:     options.Limiter,
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(LoggingMiddleware)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", h.handleHealth)

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", h.handleOpenSession)
		r.Get("/", h.handleListSessions)
		r.Route("/{sessionID}", func(r chi.Router) {
			if h.limiter != nil {
				r.Use(h.limiter.SessionMiddleware)
			}
			r.Delete("/", h.handleCloseSession)
			r.Get("/events", h.handleEvents)

			r.Route("/triage", func(r chi.Router) {
				r.Post("/entrants", h.handleRegisterEntrant)
				r.Post("/actions/dispatch-next", h.handleDispatchNext)
				r.Get("/next", h.handlePeekNext)
				r.Get("/report", h.handleTriageReport)
			})

			r.Route("/waitlist", func(r chi.Router) {
				r.Get("/", h.handleListWaitlist)
				r.Post("/clients", h.handleAddClient)
				r.Post("/actions/call-next", h.handleCallNextTable)
				r.Post("/actions/cancel", h.handleCancelReservation)
				r.Post("/tables/{size}/actions/free", h.handleFreeTable)
				r.Get("/estimate", h.handleEstimateWait)
			})
		})
	})
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.Open(r.Context())
	writeJSON(w, http.StatusCreated, sessionResponse{SessionID: s.ID(), CreatedAt: s.CreatedAt()})
}

// handleListSessions lists open sessions, oldest first.
func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	ids := h.sessions.IDs()
	out := make([]sessionResponse, 0, len(ids))
	for _, id := range ids {
		s, err := h.sessions.Get(id)
		if err != nil {
			// Closed since IDs was taken.
			continue
		}
		lastUsed := s.LastUsed()
		out = append(out, sessionResponse{SessionID: s.ID(), CreatedAt: s.CreatedAt(), LastUsedAt: &lastUsed})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Close(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		writeMappedError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	after := 0
	if afterRaw := strings.TrimSpace(r.URL.Query().Get("after")); afterRaw != "" {
		parsed, err := strconv.Atoi(afterRaw)
		if err != nil || parsed < 0 {
			writeError(w, requestID(r), http.StatusBadRequest, "invalid_request", "after must be a non-negative integer")
			return
		}
		after = parsed
	}

	limit := defaultEventLimit
	if limitRaw := strings.TrimSpace(r.URL.Query().Get("limit")); limitRaw != "" {
		parsed, err := strconv.Atoi(limitRaw)
		if err != nil || parsed <= 0 {
			writeError(w, requestID(r), http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	events, err := h.events.SessionEvents(r.Context(), s.ID(), after, limit)
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	if events == nil {
		events = []journal.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// session resolves the {sessionID} path parameter and writes a 404 when the
// session is unknown.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeMappedError(w, r, err)
		return nil, false
	}
	return s, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	return decode(w, r, target, false)
}

// decodeOptionalJSON accepts an empty body as the zero value.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	return decode(w, r, target, true)
}

func decode(w http.ResponseWriter, r *http.Request, target interface{}, allowEmpty bool) bool {
	if r.Body == nil {
		if allowEmpty {
			return true
		}
		writeError(w, requestID(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return true
		}
		writeError(w, requestID(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func requestID(r *http.Request) string {
	return chimiddleware.GetReqID(r.Context())
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
