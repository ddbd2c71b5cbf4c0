package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"attendance-backend/internal/handlers"
	"attendance-backend/internal/middleware"
)

func New(
	jwtAuth *middleware.JWTAuth,
	scanLimiter *middleware.RateLimiter,
	scanHandler *handlers.ScanHandler,
	eventHandler *handlers.EventHandler,
	studentHandler *handlers.StudentHandler,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(jwtAuth.Middleware)

		// ──── Scan Routes ────
		r.Route("/scans", func(r chi.Router) {
			r.Use(scanLimiter.Middleware)
			r.Post("/manual", scanHandler.Manual)
			r.Post("/upload", scanHandler.Upload)
			r.Get("/camera", scanHandler.Camera)
		})

		// ──── Student Routes ────
		r.Get("/students/me", studentHandler.GetMe)
		r.Put("/students/me", studentHandler.UpdateMe)
		r.Get("/attendance/me", studentHandler.MyAttendance)

		// ──── Event Routes (organizers) ────
		r.Route("/events", func(r chi.Router) {
			r.Use(middleware.RequireOrganizer)
			r.Post("/", eventHandler.Create)
			r.Get("/", eventHandler.List)
			r.Get("/{id}", eventHandler.Get)
			r.Put("/{id}/status", eventHandler.UpdateStatus)
			r.Post("/{id}/rotate-token", eventHandler.RotateToken)
			r.Get("/{id}/qr.png", eventHandler.QRCode)
			r.Get("/{id}/attendance", eventHandler.Attendance)
			r.Get("/{id}/live", eventHandler.Live)
		})
	})

	return r
}
