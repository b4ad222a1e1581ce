// Package queue pairs waiting users per battle mode. Each mode keeps a sorted
// set in Redis scored by enqueue time; the find-and-remove-or-insert sequence
// runs inside one WATCH transaction so two callers can never both claim the
// same waiting entry, and the same pair can never match twice.
package queue

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spitfire-app/spitfire-backend/internal/battle"
	"github.com/spitfire-app/spitfire-backend/internal/obslog"
	"github.com/spitfire-app/spitfire-backend/internal/storage"
)

// matchAttempts bounds optimistic-transaction retries when concurrent callers
// touch the same mode's queue.
const matchAttempts = 5

// scanDepth is how many of the oldest entries are inspected to find an entry
// that is not the caller's own.
const scanDepth = 16

var ErrInvalidUser = errors.New("invalid user")

// MatchResult reports the outcome of EnqueueOrMatch. When Matched is false the
// caller has been inserted into the queue and should poll (or subscribe) for
// an opponent.
type MatchResult struct {
	Matched    bool
	OpponentID string
}

type Manager struct {
	rdb *redis.Client
}

func NewManager(rdb *redis.Client) *Manager { return &Manager{rdb: rdb} }

func queueKey(mode battle.Mode) string { return "queue:" + string(mode) }

// EnqueueOrMatch atomically matches the caller against the oldest other
// waiting entry for the mode, or inserts the caller when nobody is waiting.
// On a match the opponent's entry and any stale entry of the caller's are
// removed; the caller's own side is never inserted.
func (m *Manager) EnqueueOrMatch(ctx context.Context, userID string, mode battle.Mode) (*MatchResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidUser
	}

	key := queueKey(mode)
	result := &MatchResult{}

	txn := func(tx *redis.Tx) error {
		entries, err := tx.ZRangeWithScores(ctx, key, 0, scanDepth-1).Result()
		if err != nil && err != redis.Nil {
			return storage.WrapUnavailable(err)
		}

		opponent := ""
		for _, z := range entries {
			member, _ := z.Member.(string)
			if member != "" && member != userID {
				opponent = member
				break
			}
		}

		pipe := tx.TxPipeline()
		if opponent != "" {
			pipe.ZRem(ctx, key, opponent)
			// A stale entry of the caller's own must not linger once matched.
			pipe.ZRem(ctx, key, userID)
		} else {
			// NX keeps the original enqueue time if the caller is already
			// waiting, so re-enqueueing does not lose their place.
			pipe.ZAddNX(ctx, key, redis.Z{
				Score:  float64(time.Now().UnixNano()),
				Member: userID,
			})
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		result.Matched = opponent != ""
		result.OpponentID = opponent
		return nil
	}

	var err error
	for attempt := 0; attempt < matchAttempts; attempt++ {
		err = m.rdb.Watch(ctx, txn, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		if errors.Is(err, storage.ErrUnavailable) {
			return nil, err
		}
		return nil, storage.WrapUnavailable(err)
	}

	obslog.L().Info("queue_enqueue_or_match",
		zap.String("user_id", userID),
		zap.String("mode", string(mode)),
		zap.Bool("matched", result.Matched),
		zap.String("opponent_id", result.OpponentID),
	)
	return result, nil
}

// Cancel removes the caller's queue entry. Idempotent: a no-op when the entry
// is absent, including when a match consumed it concurrently. The match wins
// that race, so callers should re-check for an existing battle.
func (m *Manager) Cancel(ctx context.Context, userID string, mode battle.Mode) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrInvalidUser
	}
	if err := m.rdb.ZRem(ctx, queueKey(mode), userID).Err(); err != nil {
		return storage.WrapUnavailable(err)
	}
	obslog.L().Info("queue_cancel", zap.String("user_id", userID), zap.String("mode", string(mode)))
	return nil
}

// Waiting reports how many users are queued for the mode.
func (m *Manager) Waiting(ctx context.Context, mode battle.Mode) (int64, error) {
	n, err := m.rdb.ZCard(ctx, queueKey(mode)).Result()
	if err != nil {
		return 0, storage.WrapUnavailable(err)
	}
	return n, nil
}
