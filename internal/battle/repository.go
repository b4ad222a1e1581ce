package battle

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// Repository archives finished battles to Postgres. The Redis document stays
// the live source of truth; the archive serves history views and survives
// store eviction.
type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveBattle upserts a battle row keyed by battle id. Called once when the
// round cap is reached and again with the final tally when voting closes.
func (r *Repository) SaveBattle(ctx context.Context, b *Battle, player1Votes, player2Votes int) error {
	if r == nil || r.db == nil || b == nil {
		return nil
	}

	roundsRaw, err := json.Marshal(b.Rounds)
	if err != nil {
		return fmt.Errorf("marshal rounds: %w", err)
	}
	var endedAt sql.NullTime
	if b.EndedAt != nil {
		endedAt = sql.NullTime{Time: *b.EndedAt, Valid: true}
	}

	const q = `INSERT INTO battles (
	    battle_id, player1_id, player2_id, mode, status,
	    rounds, round_count, player1_votes, player2_votes,
	    started_at, ended_at
	  ) VALUES (
	    $1,$2,$3,$4,$5,$6::jsonb,$7,$8,$9,$10,$11
	  ) ON CONFLICT (battle_id) DO UPDATE SET
	    status=EXCLUDED.status,
	    rounds=EXCLUDED.rounds,
	    round_count=EXCLUDED.round_count,
	    player1_votes=EXCLUDED.player1_votes,
	    player2_votes=EXCLUDED.player2_votes,
	    ended_at=EXCLUDED.ended_at`

	_, err = r.db.ExecContext(ctx, q,
		b.ID, b.Player1ID, b.Player2ID, string(b.Mode), string(b.Status),
		string(roundsRaw), len(b.Rounds), player1Votes, player2Votes,
		b.CreatedAt, endedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert battle: %w", err)
	}
	return nil
}

// ArchivedBattle is one history row for a profile's battle list.
type ArchivedBattle struct {
	BattleID     string
	Player1ID    string
	Player2ID    string
	Mode         string
	Status       string
	Rounds       []Round
	Player1Votes int
	Player2Votes int
	StartedAt    time.Time
	EndedAt      time.Time
}

// GetRecentBattles lists a user's most recently finished battles.
func (r *Repository) GetRecentBattles(ctx context.Context, userID string, limit int) ([]*ArchivedBattle, error) {
	if limit <= 0 {
		limit = 10
	}
	const q = `
		SELECT battle_id, player1_id, player2_id, mode, status,
		       rounds, player1_votes, player2_votes, started_at, ended_at
		FROM battles
		WHERE player1_id = $1 OR player2_id = $1
		ORDER BY ended_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("select battles: %w", err)
	}
	defer rows.Close()

	out := make([]*ArchivedBattle, 0, limit)
	for rows.Next() {
		var (
			ab        ArchivedBattle
			roundsRaw []byte
			endedAt   sql.NullTime
		)
		if err := rows.Scan(
			&ab.BattleID, &ab.Player1ID, &ab.Player2ID, &ab.Mode, &ab.Status,
			&roundsRaw, &ab.Player1Votes, &ab.Player2Votes, &ab.StartedAt, &endedAt,
		); err != nil {
			return nil, fmt.Errorf("scan battle: %w", err)
		}
		if endedAt.Valid {
			ab.EndedAt = endedAt.Time
		}
		if err := json.Unmarshal(roundsRaw, &ab.Rounds); err != nil {
			return nil, fmt.Errorf("unmarshal rounds: %w", err)
		}
		out = append(out, &ab)
	}
	return out, rows.Err()
}
