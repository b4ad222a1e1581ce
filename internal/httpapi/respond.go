package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/spitfire-app/spitfire-backend/internal/battle"
	"github.com/spitfire-app/spitfire-backend/internal/identity"
	"github.com/spitfire-app/spitfire-backend/internal/obslog"
	"github.com/spitfire-app/spitfire-backend/internal/storage"
	"github.com/spitfire-app/spitfire-backend/internal/voting"
	"github.com/spitfire-app/spitfire-backend/pkg/battledto"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a domain error onto the taxonomy: a stable machine code, an
// HTTP status, and a catalog message. Only store unavailability is retryable.
func (a *API) writeError(w http.ResponseWriter, err error) {
	var (
		status    = http.StatusInternalServerError
		code      = "internal"
		msgKey    = "errors.internal"
		retryable = false
	)
	switch {
	case errors.Is(err, battle.ErrNotYourTurn):
		status, code, msgKey = http.StatusConflict, "not_your_turn", "battle.not_your_turn"
	case errors.Is(err, battle.ErrBattleComplete):
		status, code, msgKey = http.StatusConflict, "battle_complete", "battle.complete"
	case errors.Is(err, battle.ErrEmptySubmission):
		status, code, msgKey = http.StatusBadRequest, "empty_submission", "battle.empty_submission"
	case errors.Is(err, battle.ErrNotFound):
		status, code, msgKey = http.StatusNotFound, "not_found", "battle.not_found"
	case errors.Is(err, voting.ErrVotingClosed):
		status, code, msgKey = http.StatusConflict, "voting_closed", "voting.closed"
	case errors.Is(err, identity.ErrUnauthenticated):
		status, code, msgKey = http.StatusUnauthorized, "unauthenticated", "errors.unauthenticated"
	case errors.Is(err, storage.ErrUnavailable):
		status, code, msgKey = http.StatusServiceUnavailable, "store_unavailable", "errors.store_unavailable"
		retryable = true
	default:
		obslog.L().Error("api_internal_error", zap.Error(err))
	}

	writeJSON(w, status, battledto.ErrorView{
		Code:      code,
		Message:   a.msgs.MustRender(msgKey, nil),
		Retryable: retryable,
	})
}
