package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/comproum/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса Comproum.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/user/register", h.Register)
		r.Post("/user/login", h.Login)
		r.Post("/user/logout", h.Logout)

		r.Get("/address/{postalCode}", h.LookupAddress)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/user/me", h.Me)
			r.Put("/user/profile", h.UpdateProfile)

			r.Post("/intents", h.CreateIntent)
			r.Get("/intents", h.ListIntents)
			r.Get("/intents/{id}", h.GetIntent)
			r.Post("/intents/{id}/close", h.CloseIntent)
			r.Get("/intents/{id}/offers", h.ListIntentOffers)
			r.Post("/intents/{id}/offers", h.ProposeOffer)

			r.Get("/opportunities", h.Opportunities)

			r.Get("/offers", h.ListMyOffers)
			r.Get("/offers/stats", h.Stats)
			r.Post("/offers/{id}/accept", h.Accept)
			r.Post("/offers/{id}/reject", h.Reject)
			r.Post("/offers/{id}/counter", h.Counter)
			r.Post("/offers/{id}/repropose", h.Repropose)
			r.Post("/offers/{id}/follow-up", h.FollowUp)
			r.Get("/offers/{id}/history", h.History)

			r.Get("/advisory", h.Advise)

			r.Get("/stream/opportunities", h.StreamOpportunities)
			r.Get("/stream/intents/{id}/offers", h.StreamIntentOffers)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
