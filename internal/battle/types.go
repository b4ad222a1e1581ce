package battle

import (
	"errors"
	"strings"
	"time"
)

// Mode selects the battle format. Both formats run the same number of rounds;
// they differ only in the advisory per-turn countdown shown to clients.
type Mode string

const (
	ModeFreestyle Mode = "freestyle"
	ModeLongform  Mode = "longform"
)

// RoundCap is the total number of rounds per battle, four per player.
const RoundCap = 8

// ParseMode normalizes a textual mode.
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "freestyle":
		return ModeFreestyle, true
	case "longform":
		return ModeLongform, true
	}
	return "", false
}

// TurnBudget is the advisory countdown for a single turn. It is presentational
// state for clients; the state machine never forfeits a turn on expiry.
func (m Mode) TurnBudget() time.Duration {
	if m == ModeLongform {
		return 43200 * time.Second
	}
	return 300 * time.Second
}

// Status represents the battle lifecycle.
type Status string

const (
	StatusCreated       Status = "CREATED"
	StatusInProgress    Status = "IN_PROGRESS"
	StatusAwaitingVotes Status = "AWAITING_VOTES"
	StatusClosed        Status = "CLOSED"
)

// Round is one submitted verse. Rounds are append-only and live embedded in
// the battle document so the turn rule always evaluates against a single
// consistent snapshot.
type Round struct {
	AuthorID  string    `json:"author_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Battle is the persisted state of a match.
type Battle struct {
	ID        string     `json:"id"`
	Player1ID string     `json:"player1_id"`
	Player2ID string     `json:"player2_id"`
	Mode      Mode       `json:"mode"`
	Status    Status     `json:"status"`
	Rounds    []Round    `json:"rounds"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// RoundCount returns the number of rounds submitted so far.
func (b *Battle) RoundCount() int { return len(b.Rounds) }

// Complete reports whether the round cap has been reached.
func (b *Battle) Complete() bool { return len(b.Rounds) >= RoundCap }

// TurnOwnerID returns the player whose turn it currently is, or "" once the
// battle is complete.
func (b *Battle) TurnOwnerID() string {
	if b.Complete() {
		return ""
	}
	return TurnOwner(len(b.Rounds), b.Player1ID, b.Player2ID)
}

// TurnOwner is the turn rule: player1 takes the even-indexed turns, player2
// the odd ones. Derivable purely from the round count and the fixed player
// assignment, never from read-arrival order.
func TurnOwner(n int, player1ID, player2ID string) string {
	if n%2 == 0 {
		return player1ID
	}
	return player2ID
}

var (
	ErrNotYourTurn     = errors.New("not your turn")
	ErrBattleComplete  = errors.New("battle already complete")
	ErrEmptySubmission = errors.New("submission is empty")
	ErrNotFound        = errors.New("battle not found")
	ErrSamePlayer      = errors.New("players must be distinct")
)
