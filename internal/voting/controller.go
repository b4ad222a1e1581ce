// Package voting owns the post-battle voting window: one vote per voter per
// battle with toggle/switch semantics, tallies by recount, and a one-way
// closed ratchet bounded by elapsed time and total volume.
package voting

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spitfire-app/spitfire-backend/internal/battle"
	"github.com/spitfire-app/spitfire-backend/internal/notify"
	"github.com/spitfire-app/spitfire-backend/internal/obslog"
	"github.com/spitfire-app/spitfire-backend/internal/storage"
)

const castAttempts = 3

type Controller struct {
	rdb     *redis.Client
	battles *battle.Manager
	repo    *battle.Repository
	events  *notify.Publisher

	window   time.Duration
	maxVotes int
}

func NewController(rdb *redis.Client, battles *battle.Manager, window time.Duration, maxVotes int) *Controller {
	if window <= 0 {
		window = 24 * time.Hour
	}
	if maxVotes <= 0 {
		maxVotes = 20
	}
	return &Controller{rdb: rdb, battles: battles, window: window, maxVotes: maxVotes}
}

// AttachRepository wires the Postgres archive for final tallies.
func (c *Controller) AttachRepository(r *battle.Repository) { c.repo = r }

// AttachNotifier wires the optional push channel.
func (c *Controller) AttachNotifier(p *notify.Publisher) { c.events = p }

func votesKey(battleID string) string  { return "battle:" + strings.TrimSpace(battleID) + ":votes" }
func closedKey(battleID string) string { return "battle:" + strings.TrimSpace(battleID) + ":voting_closed" }

// IsOpen reports whether the battle currently accepts votes: it has ended,
// less than the window has elapsed, and fewer than the vote cap are recorded.
// A closed determination is cached and final, so a later undo can never flip
// the window back open. A battle that has not ended is "not yet open" and is
// not ratcheted.
func (c *Controller) IsOpen(ctx context.Context, b *battle.Battle) (bool, error) {
	if b == nil || b.EndedAt == nil {
		return false, nil
	}
	n, err := c.rdb.Exists(ctx, closedKey(b.ID)).Result()
	if err != nil {
		return false, storage.WrapUnavailable(err)
	}
	if n > 0 {
		return false, nil
	}

	tally, err := c.Tally(ctx, b.ID)
	if err != nil {
		return false, err
	}
	if time.Since(*b.EndedAt) >= c.window || tally.Total() >= c.maxVotes {
		if err := c.closeWindow(ctx, b, tally); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// CastVote records, undoes, or switches the caller's vote while the window is
// open. The existing-vote check and the mutation run in one WATCH transaction
// on the votes hash; a switch is a single upsert of the hash field, so the
// voter never transiently holds zero votes.
func (c *Controller) CastVote(ctx context.Context, battleID, voterID string, side Side) (*Tally, error) {
	voterID = strings.TrimSpace(voterID)
	if voterID == "" {
		return nil, ErrInvalidVoter
	}
	b, err := c.battles.Get(ctx, battleID)
	if err != nil {
		return nil, err
	}
	open, err := c.IsOpen(ctx, b)
	if err != nil {
		return nil, err
	}
	if !open {
		return nil, ErrVotingClosed
	}

	key := votesKey(battleID)
	var action string
	txn := func(tx *redis.Tx) error {
		// Re-check the cap inside the transaction: concurrent voters may
		// have filled the window since the IsOpen call.
		count, err := tx.HLen(ctx, key).Result()
		if err != nil && err != redis.Nil {
			return storage.WrapUnavailable(err)
		}

		if int(count) >= c.maxVotes {
			return ErrVotingClosed
		}

		existing, err := tx.HGet(ctx, key, voterID).Result()
		if err == redis.Nil {
			existing = ""
		} else if err != nil {
			return storage.WrapUnavailable(err)
		}

		pipe := tx.TxPipeline()
		switch {
		case existing == string(side):
			// Same side again: undo.
			pipe.HDel(ctx, key, voterID)
			action = "undo"
		default:
			// Insert or switch; one upsert keyed (battle, voter).
			pipe.HSet(ctx, key, voterID, string(side))
			if existing == "" {
				action = "insert"
			} else {
				action = "switch"
			}
		}
		_, err = pipe.Exec(ctx)
		return err
	}

	for attempt := 0; attempt < castAttempts; attempt++ {
		err = c.rdb.Watch(ctx, txn, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if errors.Is(err, redis.TxFailedErr) {
		return nil, storage.WrapUnavailable(err)
	}
	if err != nil {
		return nil, err
	}

	tally, err := c.Tally(ctx, battleID)
	if err != nil {
		return nil, err
	}
	obslog.L().Info("vote_cast",
		zap.String("battle_id", battleID),
		zap.String("voter_id", voterID),
		zap.String("side", string(side)),
		zap.String("action", action),
		zap.Int("total", tally.Total()),
	)
	if c.events != nil {
		c.events.PublishBattle(ctx, battleID, notify.Event{Type: notify.EventVoteCast, BattleID: battleID, ActorID: voterID})
	}
	return tally, nil
}

// Tally recounts every vote row for the battle. The recount is the source of
// truth; concurrent voters make any cached counter untrustworthy.
func (c *Controller) Tally(ctx context.Context, battleID string) (*Tally, error) {
	vals, err := c.rdb.HVals(ctx, votesKey(battleID)).Result()
	if err != nil && err != redis.Nil {
		return nil, storage.WrapUnavailable(err)
	}
	t := &Tally{}
	for _, v := range vals {
		switch Side(v) {
		case SidePlayer1:
			t.Player1++
		case SidePlayer2:
			t.Player2++
		}
	}
	return t, nil
}

// VoteOf returns the side the voter currently backs, or "" if they have no
// standing vote.
func (c *Controller) VoteOf(ctx context.Context, battleID, voterID string) (Side, error) {
	v, err := c.rdb.HGet(ctx, votesKey(battleID), strings.TrimSpace(voterID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", storage.WrapUnavailable(err)
	}
	return Side(v), nil
}

// Status returns the tally together with the open flag, for read-only callers.
func (c *Controller) Status(ctx context.Context, battleID string) (*Tally, bool, error) {
	b, err := c.battles.Get(ctx, battleID)
	if err != nil {
		return nil, false, err
	}
	open, err := c.IsOpen(ctx, b)
	if err != nil {
		return nil, false, err
	}
	tally, err := c.Tally(ctx, battleID)
	if err != nil {
		return nil, false, err
	}
	return tally, open, nil
}

// closeWindow persists the ratchet, finalizes the battle, and archives the
// final tally. SETNX makes concurrent closers converge on one winner.
func (c *Controller) closeWindow(ctx context.Context, b *battle.Battle, tally *Tally) error {
	ok, err := c.rdb.SetNX(ctx, closedKey(b.ID), "1", 0).Result()
	if err != nil {
		return storage.WrapUnavailable(err)
	}
	if !ok {
		return nil
	}
	if err := c.battles.MarkClosed(ctx, b.ID); err != nil {
		return err
	}
	obslog.L().Info("voting_closed",
		zap.String("battle_id", b.ID),
		zap.Int("player1_votes", tally.Player1),
		zap.Int("player2_votes", tally.Player2),
	)
	if c.repo != nil {
		closed := *b
		closed.Status = battle.StatusClosed
		if err := c.repo.SaveBattle(ctx, &closed, tally.Player1, tally.Player2); err != nil {
			obslog.L().Warn("tally_archive_failed", zap.String("battle_id", b.ID), zap.Error(err))
		}
	}
	if c.events != nil {
		c.events.PublishBattle(ctx, b.ID, notify.Event{Type: notify.EventVotingClosed, BattleID: b.ID})
	}
	return nil
}
