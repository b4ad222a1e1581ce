package battledto

// MatchView is the response to an enqueue request. BattleID is set only when
// a match formed and the battle was created in the same request.
type MatchView struct {
	Matched    bool   `json:"matched"`
	OpponentID string `json:"opponent_id,omitempty"`
	BattleID   string `json:"battle_id,omitempty"`
	Message    string `json:"message,omitempty"`
}
