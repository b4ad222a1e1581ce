package battledto

import "time"

// BattleView is the API snapshot of a battle. TurnOwnerID and RoundCount come
// from the same stored document, so clients never compose turn state from two
// independent reads.
type BattleView struct {
	ID             string      `json:"id"`
	Mode           string      `json:"mode"`
	Status         string      `json:"status"`
	Player1        PlayerView  `json:"player1"`
	Player2        PlayerView  `json:"player2"`
	Rounds         []RoundView `json:"rounds"`
	RoundCount     int         `json:"round_count"`
	RoundCap       int         `json:"round_cap"`
	TurnOwnerID    string      `json:"turn_owner_id,omitempty"`
	TurnBudgetSecs int         `json:"turn_budget_secs"`
	CreatedAt      time.Time   `json:"created_at"`
	EndedAt        *time.Time  `json:"ended_at,omitempty"`
}

type PlayerView struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// ArchivedBattleView is one history row from the durable archive.
type ArchivedBattleView struct {
	ID           string    `json:"id"`
	Mode         string    `json:"mode"`
	Status       string    `json:"status"`
	Player1ID    string    `json:"player1_id"`
	Player2ID    string    `json:"player2_id"`
	RoundCount   int       `json:"round_count"`
	Player1Votes int       `json:"player1_votes"`
	Player2Votes int       `json:"player2_votes"`
	StartedAt    time.Time `json:"started_at"`
	EndedAt      time.Time `json:"ended_at"`
}

type RoundView struct {
	AuthorID  string    `json:"author_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}
