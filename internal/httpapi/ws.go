package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/spitfire-app/spitfire-backend/internal/obslog"
)

// battleEvents relays a battle's pub/sub channel to a websocket client.
// Purely a latency optimization over polling; the snapshot endpoints stay the
// source of truth and clients are expected to refetch on every event.
func (a *API) battleEvents(w http.ResponseWriter, r *http.Request) {
	battleID := chi.URLParam(r, "battleID")
	if _, err := a.battles.Get(r.Context(), battleID); err != nil {
		a.writeError(w, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_failed", zap.String("battle_id", battleID), zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	sub := a.events.SubscribeBattle(r.Context(), battleID)
	defer sub.Close()

	ctx := r.Context()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := conn.Write(wctx, websocket.MessageText, []byte(msg.Payload))
			cancel()
			if err != nil {
				return
			}
		}
	}
}
