package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) routes() {
	s.router.Get("/api/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(limitBody)
		r.Use(jsonContentType)
		r.Use(corsMiddleware(s.corsOrigin))

		r.Route("/player", func(pr chi.Router) {
			pr.Get("/history", s.handleListPlaybackHistory)
			pr.Group(func(g chi.Router) {
				g.Use(s.requirePlayer)
				g.Post("/play", s.handlePlay)
				g.Post("/playback-type", s.handleSetPlaybackType)
				g.Post("/stop", s.handleStop)
				g.Get("/status", s.handlePlayerStatus)
			})
		})

		r.Route("/socket", func(sr chi.Router) {
			sr.Use(s.requireSocket)
			sr.Get("/events", s.handleSocketEvents)
			sr.Get("/status", s.handleSocketStatus)
			sr.Post("/send", s.handleSocketSend)
			sr.Post("/close", s.handleSocketClose)
			sr.Post("/vote", s.handleSocketVote)
			sr.Post("/chat", s.handleSocketChat)
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.store.Ping(); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"error"}`))
		return
	}
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
