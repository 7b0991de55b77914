package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
)

func RegisterRoutes(mux *chi.Mux, h *Handlers, origins []string) {
	mux.Get("/healthz", h.Health)
	mux.Get("/version", h.Version)

	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
	})

	mux.Route("/api", func(r chi.Router) {
		r.Use(c.Handler)
		r.Post("/chat", h.Chat)
		r.Get("/history/{sessionID}", h.GetHistory)
		r.Delete("/history/{sessionID}", h.ClearHistory)
		r.Put("/system-prompt/{sessionID}", h.SetSystemPrompt)
		r.Delete("/system-prompt/{sessionID}", h.ResetSystemPrompt)
	})
}
