package http

import (
	"net/http"

	"github.com/Wyydra/huddle/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/huddle/internal/core/port"
	"github.com/Wyydra/huddle/internal/core/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Handler struct {
	Meetings *service.MeetingService
	Notes    *service.NoteService
	Feed     port.MeetingFeed
	Signals  port.SignalGateway
	Hub      *ws.Hub
}

func NewHandler(meetings *service.MeetingService, notes *service.NoteService, feed port.MeetingFeed, signals port.SignalGateway, hub *ws.Hub) *Handler {
	return &Handler{
		Meetings: meetings,
		Notes:    notes,
		Feed:     feed,
		Signals:  signals,
		Hub:      hub,
	}
}

func (h *Handler) NewRouter(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/meetings", h.createMeeting)
		r.Route("/meetings/{meetingID}", func(r chi.Router) {
			r.Get("/", h.getMeeting)
			r.Post("/join", h.join)
			r.Post("/leave", h.leave)
			r.Post("/end", h.end)
			r.Patch("/participants/{participantID}", h.updateMedia)
			r.Post("/signals", h.publishSignal)
			r.Post("/notes", h.addNote)
			r.Get("/ws", h.ServeWS)
		})
		r.Put("/notes/{noteID}", h.updateNote)
		r.Get("/participants/{participantID}/notes", h.listNotes)
		r.Get("/participants/{participantID}/history", h.listHistory)
	})

	return r
}
