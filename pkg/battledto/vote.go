package battledto

// TallyView is the voting state of a battle.
type TallyView struct {
	Player1Votes int    `json:"player1_votes"`
	Player2Votes int    `json:"player2_votes"`
	Open         bool   `json:"open"`
	YourVote     string `json:"your_vote,omitempty"`
	Message      string `json:"message,omitempty"`
}

// VoteRequest is the cast-vote payload.
type VoteRequest struct {
	VotedFor string `json:"voted_for"`
}

// RoundRequest is the submit-round payload.
type RoundRequest struct {
	Text string `json:"text"`
}
