package handlers

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"strings"

	"attendance-backend/internal/attendance"
	"attendance-backend/internal/metrics"
	"attendance-backend/internal/middleware"
	"attendance-backend/internal/scanner"
	"attendance-backend/internal/websocket"
)

const maxUploadBytes = 10 << 20

type ScanHandler struct {
	service   *attendance.Service
	decoder   scanner.FrameDecoder
	cameraCfg scanner.Config
	logger    *slog.Logger
}

func NewScanHandler(service *attendance.Service, decoder scanner.FrameDecoder, cameraCfg scanner.Config, logger *slog.Logger) *ScanHandler {
	return &ScanHandler{service: service, decoder: decoder, cameraCfg: cameraCfg, logger: logger}
}

// Each request gets its own Source; capture modes are per device, not global.
func (h *ScanHandler) source() *scanner.Source {
	return scanner.NewSource(h.decoder, h.cameraCfg, nil, h.logger)
}

func (h *ScanHandler) Manual(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Payload string `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}
	if strings.TrimSpace(req.Payload) == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Please enter QR code data", r))
		return
	}

	attempt, err := h.source().Manual(req.Payload)
	if err != nil {
		writeJSON(w, http.StatusConflict, errorResp("SCANNER_BUSY", err.Error(), r))
		return
	}

	writeOutcome(w, r, h.service.Submit(r.Context(), middleware.GetIdentity(r.Context()), attempt))
}

func (h *ScanHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Please select an image file", r))
		return
	}
	defer file.Close()

	if ct := header.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Please select an image file", r))
		return
	}

	attempt, err := h.source().DecodeUpload(file)
	if err != nil {
		if out, ok := attendance.FromScanError(err); ok {
			writeOutcome(w, r, out)
			return
		}
		writeJSON(w, http.StatusConflict, errorResp("SCANNER_BUSY", err.Error(), r))
		return
	}

	writeOutcome(w, r, h.service.Submit(r.Context(), middleware.GetIdentity(r.Context()), attempt))
}

// Camera runs one camera capture session over a WebSocket. Frames that do
// not hold an event payload are reported and capture continues; the first
// scan that reaches the attendance store, or any device failure, ends it.
func (h *ScanHandler) Camera(w http.ResponseWriter, r *http.Request) {
	who := middleware.GetIdentity(r.Context())
	if who == nil {
		writeOutcome(w, r, attendance.Outcome{
			Code:    attendance.CodeNotAuthenticated,
			Message: attendance.CodeNotAuthenticated.DefaultMessage(),
		})
		return
	}

	conn, err := websocket.Upgrade(w, r)
	if err != nil {
		log.Printf("Camera WebSocket upgrade failed: %v", err)
		return
	}
	bridge := websocket.NewCameraBridge(conn)
	defer bridge.Close()

	session, err := h.source().OpenCamera(bridge)
	if err != nil {
		return
	}
	defer session.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-bridge.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	metrics.CameraSessionsActive.Inc()
	defer metrics.CameraSessionsActive.Dec()

	out, err := h.service.RunCamera(ctx, who, session, func(o attendance.Outcome) {
		bridge.SendOutcome(o.Wire())
	})
	metrics.CameraAttachAttempts.Observe(float64(session.AttachAttempts()))
	if err != nil {
		log.Printf("Camera session for %s ended: %v", who.AttendeeID, err)
		return
	}
	bridge.SendOutcome(out.Wire())
}
