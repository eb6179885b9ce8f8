package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"qms/admission-service/internal/models"

	"github.com/go-chi/chi/v5"
)

const requestedTimeLayout = "15:04"

type addClientRequest struct {
	Name          string `json:"name"`
	PartySize     int    `json:"party_size"`
	RequestedTime string `json:"requested_time"`
}

type cancelReservationRequest struct {
	Name string `json:"name"`
}

type waitEntryResponse struct {
	models.WaitEntry
	Message string `json:"message"`
}

type seatingResponse struct {
	models.Seating
	Message string `json:"message"`
}

type freeTableResponse struct {
	TableSize int            `json:"table_size"`
	Tables    []models.Table `json:"tables"`
	Message   string         `json:"message"`
}

type estimateResponse struct {
	PartySize            int `json:"party_size"`
	EstimatedWaitMinutes int `json:"estimated_wait_minutes"`
}

func (h *Handler) handleAddClient(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req addClientRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.RequestedTime = strings.TrimSpace(req.RequestedTime)

	if req.Name == "" {
		writeError(w, requestID(r), http.StatusBadRequest, "invalid_request", "name is required")
		return
	}
	if req.PartySize < 1 {
		writeError(w, requestID(r), http.StatusBadRequest, "invalid_request", "party_size must be at least 1")
		return
	}
	if req.RequestedTime == "" {
		req.RequestedTime = h.now().Format(requestedTimeLayout)
	}

	message := s.AddClient(r.Context(), req.Name, req.PartySize, req.RequestedTime)
	writeJSON(w, http.StatusCreated, waitEntryResponse{
		WaitEntry: models.WaitEntry{
			ClientName:    req.Name,
			PartySize:     req.PartySize,
			RequestedTime: req.RequestedTime,
		},
		Message: message,
	})
}

func (h *Handler) handleListWaitlist(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Waitlist())
}

func (h *Handler) handleCallNextTable(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	seating, message, err := s.CallNextTable(r.Context())
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, seatingResponse{Seating: seating, Message: message})
}

func (h *Handler) handleCancelReservation(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req cancelReservationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	// Names match exactly; only surrounding blanks are dropped.
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, requestID(r), http.StatusBadRequest, "invalid_request", "name is required")
		return
	}

	entry, message, err := s.CancelReservation(r.Context(), req.Name)
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, waitEntryResponse{WaitEntry: entry, Message: message})
}

func (h *Handler) handleFreeTable(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	size, err := strconv.Atoi(chi.URLParam(r, "size"))
	if err != nil || size < 1 {
		writeError(w, requestID(r), http.StatusBadRequest, "invalid_request", "size must be a positive integer")
		return
	}

	message, ok := s.FreeTable(r.Context(), size)
	if !ok {
		writeMappedError(w, r, fmt.Errorf("%w: %d", errTableNotFound, size))
		return
	}
	writeJSON(w, http.StatusOK, freeTableResponse{
		TableSize: size,
		Tables:    s.Tables(),
		Message:   message,
	})
}

func (h *Handler) handleEstimateWait(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	partySize, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("party_size")))
	if err != nil || partySize < 1 {
		writeError(w, requestID(r), http.StatusBadRequest, "invalid_request", "party_size must be a positive integer")
		return
	}
	writeJSON(w, http.StatusOK, estimateResponse{
		PartySize:            partySize,
		EstimatedWaitMinutes: s.EstimateWaitTime(partySize),
	})
}
