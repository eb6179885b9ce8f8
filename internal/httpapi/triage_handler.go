package httpapi

import (
	"net/http"
	"strings"

	"qms/admission-service/internal/models"
)

type registerEntrantRequest struct {
	Name       string `json:"name"`
	Department string `json:"department"`
	Priority   int    `json:"priority"`
}

type registerEntrantResponse struct {
	EntrantID     int             `json:"entrant_id"`
	Name          string          `json:"name"`
	Department    string          `json:"department"`
	Priority      models.Priority `json:"priority"`
	PriorityLabel string          `json:"priority_label"`
	Message       string          `json:"message"`
}

type dispatchNextRequest struct {
	Department string `json:"department"`
}

type entrantResponse struct {
	models.Entrant
	PriorityLabel string `json:"priority_label"`
	Message       string `json:"message,omitempty"`
}

func (h *Handler) handleRegisterEntrant(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req registerEntrantRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Department = strings.ToLower(strings.TrimSpace(req.Department))

	if req.Name == "" || req.Department == "" {
		writeError(w, requestID(r), http.StatusBadRequest, "invalid_request", "name and department are required")
		return
	}
	if !h.knownDepartment(req.Department) {
		writeError(w, requestID(r), http.StatusBadRequest, "invalid_request", "unknown department")
		return
	}
	priority := models.Priority(req.Priority)
	if priority < models.PriorityNormal || priority > h.maxPriority {
		writeError(w, requestID(r), http.StatusBadRequest, "invalid_request", "priority out of range")
		return
	}

	id, message := s.RegisterEntrant(r.Context(), req.Name, req.Department, priority)
	writeJSON(w, http.StatusCreated, registerEntrantResponse{
		EntrantID:     id,
		Name:          req.Name,
		Department:    req.Department,
		Priority:      priority,
		PriorityLabel: priority.String(),
		Message:       message,
	})
}

func (h *Handler) handleDispatchNext(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req dispatchNextRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}
	department := strings.ToLower(strings.TrimSpace(req.Department))
	if department != "" && !h.knownDepartment(department) {
		writeError(w, requestID(r), http.StatusBadRequest, "invalid_request", "unknown department")
		return
	}

	entrant, message, ok := s.DispatchNext(r.Context(), department)
	if !ok {
		writeError(w, requestID(r), http.StatusConflict, "queue_empty", "no entrants waiting")
		return
	}
	writeJSON(w, http.StatusOK, entrantResponse{
		Entrant:       entrant,
		PriorityLabel: entrant.Priority.String(),
		Message:       message,
	})
}

func (h *Handler) handlePeekNext(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	department := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("department")))
	if department != "" && !h.knownDepartment(department) {
		writeError(w, requestID(r), http.StatusBadRequest, "invalid_request", "unknown department")
		return
	}

	entrant, ok := s.PeekNext(department)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, entrantResponse{
		Entrant:       entrant,
		PriorityLabel: entrant.Priority.String(),
	})
}

func (h *Handler) handleTriageReport(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.TriageReport())
}

// knownDepartment accepts anything when no departments are configured.
func (h *Handler) knownDepartment(department string) bool {
	if len(h.departments) == 0 {
		return true
	}
	_, ok := h.departments[department]
	return ok
}
