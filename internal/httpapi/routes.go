package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/spitfire-app/spitfire-backend/internal/battle"
	"github.com/spitfire-app/spitfire-backend/internal/identity"
	"github.com/spitfire-app/spitfire-backend/internal/msgcat"
	"github.com/spitfire-app/spitfire-backend/internal/notify"
	"github.com/spitfire-app/spitfire-backend/internal/queue"
	"github.com/spitfire-app/spitfire-backend/internal/sharecard"
	"github.com/spitfire-app/spitfire-backend/internal/voting"
)

// API is the HTTP surface over the three cores.
type API struct {
	queue   *queue.Manager
	battles *battle.Manager
	votes   *voting.Controller
	idp     identity.Provider
	cards   *sharecard.Renderer
	msgs    *msgcat.Catalog
	events  *notify.Publisher
}

func New(q *queue.Manager, b *battle.Manager, v *voting.Controller, idp identity.Provider, msgs *msgcat.Catalog, events *notify.Publisher) *API {
	return &API{
		queue:   q,
		battles: b,
		votes:   v,
		idp:     idp,
		cards:   sharecard.NewRenderer(),
		msgs:    msgs,
		events:  events,
	}
}

func (a *API) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", healthz)

	r.Group(func(r chi.Router) {
		r.Use(a.bearerAuth)

		r.Post("/api/queue/{mode}", a.enqueueOrMatch)
		r.Delete("/api/queue/{mode}", a.cancelQueue)

		r.Get("/api/battles", a.listBattles)
		r.Get("/api/battles/history", a.battleHistory)
		r.Get("/api/battles/{battleID}", a.getBattle)
		r.Post("/api/battles/{battleID}/rounds", a.submitRound)

		r.Get("/api/battles/{battleID}/votes", a.getVotes)
		r.Post("/api/battles/{battleID}/votes", a.castVote)

		r.Get("/api/battles/{battleID}/sharecard.png", a.shareCard)
		r.Get("/api/ws/battles/{battleID}", a.battleEvents)
	})

	return r
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
