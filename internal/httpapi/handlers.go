package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/spitfire-app/spitfire-backend/internal/battle"
	"github.com/spitfire-app/spitfire-backend/internal/notify"
	"github.com/spitfire-app/spitfire-backend/internal/sharecard"
	"github.com/spitfire-app/spitfire-backend/internal/voting"
	"github.com/spitfire-app/spitfire-backend/pkg/battledto"
)

func (a *API) parseMode(w http.ResponseWriter, r *http.Request) (battle.Mode, bool) {
	mode, ok := battle.ParseMode(chi.URLParam(r, "mode"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, battledto.ErrorView{Code: "bad_mode", Message: "unknown battle mode"})
		return "", false
	}
	return mode, true
}

// enqueueOrMatch puts the caller in line or pairs them with the oldest waiter.
// On a match the battle is created here, from the match result: player1 is the
// user whose queue entry was consumed, so they take the first turn.
func (a *API) enqueueOrMatch(w http.ResponseWriter, r *http.Request) {
	mode, ok := a.parseMode(w, r)
	if !ok {
		return
	}
	caller := callerID(r)

	res, err := a.queue.EnqueueOrMatch(r.Context(), caller, mode)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if !res.Matched {
		writeJSON(w, http.StatusOK, battledto.MatchView{
			Matched: false,
			Message: a.msgs.MustRender("queue.waiting", map[string]any{"Mode": string(mode)}),
		})
		return
	}

	b, err := a.battles.Create(r.Context(), res.OpponentID, caller, mode)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if a.events != nil {
		a.events.PublishUser(r.Context(), res.OpponentID, notify.Event{
			Type:     notify.EventMatchFound,
			BattleID: b.ID,
			ActorID:  caller,
		})
	}
	writeJSON(w, http.StatusCreated, battledto.MatchView{
		Matched:    true,
		OpponentID: res.OpponentID,
		BattleID:   b.ID,
		Message:    a.msgs.MustRender("queue.matched", map[string]any{"Opponent": res.OpponentID}),
	})
}

// cancelQueue removes the caller's entry. A match formed concurrently wins the
// race; the client should re-check its battle list afterwards.
func (a *API) cancelQueue(w http.ResponseWriter, r *http.Request) {
	mode, ok := a.parseMode(w, r)
	if !ok {
		return
	}
	if err := a.queue.Cancel(r.Context(), callerID(r), mode); err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": a.msgs.MustRender("queue.cancelled", map[string]any{"Mode": string(mode)}),
	})
}

func (a *API) listBattles(w http.ResponseWriter, r *http.Request) {
	list, err := a.battles.ListByUser(r.Context(), callerID(r))
	if err != nil {
		a.writeError(w, err)
		return
	}
	views := make([]battledto.BattleView, 0, len(list))
	for _, b := range list {
		views = append(views, a.battleView(r, b))
	}
	writeJSON(w, http.StatusOK, views)
}

// battleHistory serves the archived history for profile views. Live battles
// come from listBattles; this endpoint reads the Postgres archive only.
func (a *API) battleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 50 {
			limit = n
		}
	}
	list, err := a.battles.RecentArchived(r.Context(), callerID(r), limit)
	if err != nil {
		a.writeError(w, err)
		return
	}
	views := make([]battledto.ArchivedBattleView, 0, len(list))
	for _, ab := range list {
		views = append(views, battledto.ArchivedBattleView{
			ID:           ab.BattleID,
			Mode:         ab.Mode,
			Status:       ab.Status,
			Player1ID:    ab.Player1ID,
			Player2ID:    ab.Player2ID,
			RoundCount:   len(ab.Rounds),
			Player1Votes: ab.Player1Votes,
			Player2Votes: ab.Player2Votes,
			StartedAt:    ab.StartedAt,
			EndedAt:      ab.EndedAt,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (a *API) getBattle(w http.ResponseWriter, r *http.Request) {
	b, err := a.battles.Get(r.Context(), chi.URLParam(r, "battleID"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.battleView(r, b))
}

func (a *API) submitRound(w http.ResponseWriter, r *http.Request) {
	var req battledto.RoundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, battledto.ErrorView{Code: "bad_request", Message: "invalid body"})
		return
	}
	b, _, err := a.battles.SubmitRound(r.Context(), chi.URLParam(r, "battleID"), callerID(r), req.Text)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a.battleView(r, b))
}

func (a *API) getVotes(w http.ResponseWriter, r *http.Request) {
	battleID := chi.URLParam(r, "battleID")
	tally, open, err := a.votes.Status(r.Context(), battleID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	own, err := a.votes.VoteOf(r.Context(), battleID, callerID(r))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, battledto.TallyView{
		Player1Votes: tally.Player1,
		Player2Votes: tally.Player2,
		Open:         open,
		YourVote:     string(own),
	})
}

func (a *API) castVote(w http.ResponseWriter, r *http.Request) {
	var req battledto.VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, battledto.ErrorView{Code: "bad_request", Message: "invalid body"})
		return
	}
	side, ok := voting.ParseSide(req.VotedFor)
	if !ok {
		writeJSON(w, http.StatusBadRequest, battledto.ErrorView{Code: "bad_side", Message: "voted_for must be player1 or player2"})
		return
	}
	battleID := chi.URLParam(r, "battleID")
	caller := callerID(r)
	tally, err := a.votes.CastVote(r.Context(), battleID, caller, side)
	if err != nil {
		a.writeError(w, err)
		return
	}
	own, err := a.votes.VoteOf(r.Context(), battleID, caller)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, battledto.TallyView{
		Player1Votes: tally.Player1,
		Player2Votes: tally.Player2,
		Open:         true,
		YourVote:     string(own),
		Message:      a.msgs.MustRender("voting.thanks", nil),
	})
}

func (a *API) shareCard(w http.ResponseWriter, r *http.Request) {
	battleID := chi.URLParam(r, "battleID")
	b, err := a.battles.Get(r.Context(), battleID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if b.EndedAt == nil {
		writeJSON(w, http.StatusConflict, battledto.ErrorView{Code: "battle_not_finished", Message: "battle has not finished"})
		return
	}
	tally, err := a.votes.Tally(r.Context(), battleID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	png, err := a.cards.RenderPNG(r.Context(), a.cardFor(r, b, tally))
	if err != nil {
		a.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (a *API) battleView(r *http.Request, b *battle.Battle) battledto.BattleView {
	rounds := make([]battledto.RoundView, 0, len(b.Rounds))
	for _, rd := range b.Rounds {
		rounds = append(rounds, battledto.RoundView{AuthorID: rd.AuthorID, Text: rd.Text, CreatedAt: rd.CreatedAt})
	}
	return battledto.BattleView{
		ID:             b.ID,
		Mode:           string(b.Mode),
		Status:         string(b.Status),
		Player1:        a.playerView(r, b.Player1ID),
		Player2:        a.playerView(r, b.Player2ID),
		Rounds:         rounds,
		RoundCount:     b.RoundCount(),
		RoundCap:       battle.RoundCap,
		TurnOwnerID:    b.TurnOwnerID(),
		TurnBudgetSecs: int(b.Mode.TurnBudget() / time.Second),
		CreatedAt:      b.CreatedAt,
		EndedAt:        b.EndedAt,
	}
}

// playerView resolves the profile best-effort; the id alone is still a valid
// view when the identity service is unreachable.
func (a *API) playerView(r *http.Request, userID string) battledto.PlayerView {
	pv := battledto.PlayerView{UserID: userID, DisplayName: userID}
	if prof, err := a.idp.GetProfile(r.Context(), userID); err == nil && prof != nil {
		pv.DisplayName = prof.DisplayName
		pv.AvatarURL = prof.AvatarURL
	}
	return pv
}

func (a *API) cardFor(r *http.Request, b *battle.Battle, tally *voting.Tally) sharecard.Card {
	p1 := a.playerView(r, b.Player1ID)
	p2 := a.playerView(r, b.Player2ID)
	return sharecard.Card{
		Mode:         string(b.Mode),
		Player1Name:  p1.DisplayName,
		Player2Name:  p2.DisplayName,
		Player1Votes: tally.Player1,
		Player2Votes: tally.Player2,
	}
}
