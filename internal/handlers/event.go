package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"attendance-backend/internal/middleware"
	"attendance-backend/internal/models"
	"attendance-backend/internal/qrpayload"
	"attendance-backend/internal/services"
)

type eventFeed interface {
	HandleEventFeed(w http.ResponseWriter, r *http.Request, eventID string)
	Watchers(eventID string) int
}

type EventHandler struct {
	events *services.EventService
	feed   eventFeed
}

func NewEventHandler(events *services.EventService, feed eventFeed) *EventHandler {
	return &EventHandler{events: events, feed: feed}
}

func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	event, err := h.events.Create(r.Context(), middleware.GetIdentity(r.Context()), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"event": event})
}

func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.List(r.Context(), middleware.GetIdentity(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	event, err := h.events.Get(r.Context(), middleware.GetIdentity(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"event": event})
}

func (h *EventHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateEventStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	event, err := h.events.UpdateStatus(r.Context(), middleware.GetIdentity(r.Context()), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"event": event})
}

// RotateToken issues a new session token. An optional start_time moves the
// admission window; an empty body keeps it.
func (h *EventHandler) RotateToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StartTime time.Time `json:"start_time"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
			return
		}
	}

	event, err := h.events.RotateToken(r.Context(), middleware.GetIdentity(r.Context()), chi.URLParam(r, "id"), req.StartTime)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"event": event})
}

func (h *EventHandler) QRCode(w http.ResponseWriter, r *http.Request) {
	size := qrpayload.DefaultImageSize
	if v := r.URL.Query().Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 64 || n > 2048 {
			writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
				map[string]string{"size": "Size must be between 64 and 2048"}, r))
			return
		}
		size = n
	}

	png, err := h.events.QRCode(r.Context(), middleware.GetIdentity(r.Context()), chi.URLParam(r, "id"), size)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

func (h *EventHandler) Attendance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	report, err := h.events.Attendance(r.Context(), middleware.GetIdentity(r.Context()), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	report.Watchers = h.feed.Watchers(id)
	writeJSON(w, http.StatusOK, report)
}

// Live streams attendance updates for one event to its organizer.
func (h *EventHandler) Live(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.events.Get(r.Context(), middleware.GetIdentity(r.Context()), id); err != nil {
		handleServiceError(w, r, err)
		return
	}
	h.feed.HandleEventFeed(w, r, id)
}
