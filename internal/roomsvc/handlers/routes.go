package handlers

import (
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
)

func (h *Handler) SetRoutes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		// public routes here
		r.Get("/health", h.HealthHandler)
		r.Post("/relay/token", h.RelayToken)

		r.Route("/rooms", func(r chi.Router) {
			r.Post("/", h.CreateRoom)
			r.Get("/", h.ListRooms)

			r.Route("/{roomID}", func(r chi.Router) {
				r.Get("/", h.GetRoom)
				r.Get("/players", h.GetPlayers)
				r.Post("/join", h.JoinRoom)
				r.Post("/leave", h.LeaveRoom)
				r.Post("/start", h.StartGame)
				r.Post("/end-turn", h.EndTurn)

				// Secure routes
				r.Group(func(r chi.Router) {
					r.Use(jwtauth.Verifier(h.tokenAuth))
					r.Use(jwtauth.Authenticator)

					r.Delete("/", h.DeleteRoom)
				})
			})
		})
	})
}

// AdminToken signs a token accepted by the secured routes.
func (h *Handler) AdminToken(ttl time.Duration) (string, error) {
	_, tokenString, err := h.tokenAuth.Encode(map[string]interface{}{
		"service_id": "room-admin",
		"exp":        time.Now().Add(ttl).Unix(),
	})
	return tokenString, err
}
