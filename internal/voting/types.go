package voting

import (
	"errors"
	"strings"
)

// Side identifies which player a vote supports.
type Side string

const (
	SidePlayer1 Side = "player1"
	SidePlayer2 Side = "player2"
)

// ParseSide normalizes a textual side.
func ParseSide(s string) (Side, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "player1":
		return SidePlayer1, true
	case "player2":
		return SidePlayer2, true
	}
	return "", false
}

// Tally is the aggregate vote count per side. Always produced by a full
// recount of the vote rows, never from an incremental counter.
type Tally struct {
	Player1 int `json:"player1"`
	Player2 int `json:"player2"`
}

func (t Tally) Total() int { return t.Player1 + t.Player2 }

var (
	ErrVotingClosed = errors.New("voting closed")
	ErrInvalidVoter = errors.New("invalid voter")
)
