package voting

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/spitfire-app/spitfire-backend/internal/battle"
)

func newTestController(t *testing.T, window time.Duration, maxVotes int) (*Controller, *battle.Manager) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	battles := battle.NewManager(rdb)
	return NewController(rdb, battles, window, maxVotes), battles
}

// finishBattle plays a battle to the round cap so voting opens.
func finishBattle(t *testing.T, battles *battle.Manager) *battle.Battle {
	t.Helper()
	ctx := context.Background()
	b, err := battles.Create(ctx, "userA", "userB", battle.ModeFreestyle)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	authors := []string{"userA", "userB"}
	var last *battle.Battle
	for i := 0; i < battle.RoundCap; i++ {
		last, _, err = battles.SubmitRound(ctx, b.ID, authors[i%2], "verse "+strconv.Itoa(i))
		if err != nil {
			t.Fatalf("SubmitRound %d: %v", i, err)
		}
	}
	if last.EndedAt == nil {
		t.Fatalf("battle did not finish")
	}
	return last
}

func TestCastVoteToggleAndSwitch(t *testing.T) {
	c, battles := newTestController(t, 0, 0)
	ctx := context.Background()
	b := finishBattle(t, battles)

	tally, err := c.CastVote(ctx, b.ID, "voter1", SidePlayer1)
	if err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	if tally.Player1 != 1 || tally.Player2 != 0 {
		t.Fatalf("tally after insert = %+v", tally)
	}

	// Same side again undoes the vote.
	tally, err = c.CastVote(ctx, b.ID, "voter1", SidePlayer1)
	if err != nil {
		t.Fatalf("CastVote undo: %v", err)
	}
	if tally.Total() != 0 {
		t.Fatalf("tally after undo = %+v", tally)
	}
	own, err := c.VoteOf(ctx, b.ID, "voter1")
	if err != nil {
		t.Fatalf("VoteOf: %v", err)
	}
	if own != "" {
		t.Fatalf("undone vote still standing: %q", own)
	}

	// Vote again, then switch sides: still a single row per voter.
	if _, err := c.CastVote(ctx, b.ID, "voter1", SidePlayer1); err != nil {
		t.Fatalf("CastVote re-insert: %v", err)
	}
	tally, err = c.CastVote(ctx, b.ID, "voter1", SidePlayer2)
	if err != nil {
		t.Fatalf("CastVote switch: %v", err)
	}
	if tally.Player1 != 0 || tally.Player2 != 1 {
		t.Fatalf("tally after switch = %+v", tally)
	}
	own, _ = c.VoteOf(ctx, b.ID, "voter1")
	if own != SidePlayer2 {
		t.Fatalf("VoteOf after switch = %q", own)
	}
}

func TestCastVoteBeforeBattleEnds(t *testing.T) {
	c, battles := newTestController(t, 0, 0)
	ctx := context.Background()

	b, err := battles.Create(ctx, "userA", "userB", battle.ModeFreestyle)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := c.CastVote(ctx, b.ID, "voter1", SidePlayer1); !errors.Is(err, ErrVotingClosed) {
		t.Fatalf("expected ErrVotingClosed on unfinished battle, got %v", err)
	}
}

func TestVoteCapClosesWindow(t *testing.T) {
	c, battles := newTestController(t, 24*time.Hour, 3)
	ctx := context.Background()
	b := finishBattle(t, battles)

	for i := 0; i < 3; i++ {
		if _, err := c.CastVote(ctx, b.ID, "voter"+strconv.Itoa(i), SidePlayer1); err != nil {
			t.Fatalf("CastVote %d: %v", i, err)
		}
	}
	if _, err := c.CastVote(ctx, b.ID, "voter99", SidePlayer2); !errors.Is(err, ErrVotingClosed) {
		t.Fatalf("expected ErrVotingClosed at the cap, got %v", err)
	}

	// Once closed, even an existing voter cannot undo.
	if _, err := c.CastVote(ctx, b.ID, "voter0", SidePlayer1); !errors.Is(err, ErrVotingClosed) {
		t.Fatalf("expected ErrVotingClosed for undo after close, got %v", err)
	}

	got, err := battles.Get(ctx, b.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != battle.StatusClosed {
		t.Fatalf("battle status = %s, want %s", got.Status, battle.StatusClosed)
	}
	tally, err := c.Tally(ctx, b.ID)
	if err != nil {
		t.Fatalf("Tally: %v", err)
	}
	if tally.Player1 != 3 || tally.Player2 != 0 {
		t.Fatalf("final tally = %+v", tally)
	}
}

func TestWindowExpiry(t *testing.T) {
	c, battles := newTestController(t, 24*time.Hour, 20)
	ctx := context.Background()
	b := finishBattle(t, battles)

	// Age the battle past the window.
	past := time.Now().UTC().Add(-25 * time.Hour)
	b.EndedAt = &past
	if err := battles.Store().Save(ctx, b); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, err := c.CastVote(ctx, b.ID, "voter1", SidePlayer1); !errors.Is(err, ErrVotingClosed) {
		t.Fatalf("expected ErrVotingClosed after window, got %v", err)
	}
}

func TestClosedRatchetIsPermanent(t *testing.T) {
	c, battles := newTestController(t, 24*time.Hour, 20)
	ctx := context.Background()
	b := finishBattle(t, battles)

	past := time.Now().UTC().Add(-25 * time.Hour)
	b.EndedAt = &past
	if err := battles.Store().Save(ctx, b); err != nil {
		t.Fatalf("Save: %v", err)
	}
	open, err := c.IsOpen(ctx, b)
	if err != nil {
		t.Fatalf("IsOpen: %v", err)
	}
	if open {
		t.Fatalf("window should be closed")
	}

	// Rewinding the document cannot reopen a closed window.
	recent := time.Now().UTC()
	b.EndedAt = &recent
	if err := battles.Store().Save(ctx, b); err != nil {
		t.Fatalf("Save rewind: %v", err)
	}
	open, err = c.IsOpen(ctx, b)
	if err != nil {
		t.Fatalf("IsOpen after rewind: %v", err)
	}
	if open {
		t.Fatalf("closed ratchet must be one-way")
	}
}

func TestStatusReportsOpenWindow(t *testing.T) {
	c, battles := newTestController(t, 24*time.Hour, 20)
	ctx := context.Background()
	b := finishBattle(t, battles)

	if _, err := c.CastVote(ctx, b.ID, "voter1", SidePlayer2); err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	tally, open, err := c.Status(ctx, b.ID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !open {
		t.Fatalf("window should be open")
	}
	if tally.Player2 != 1 {
		t.Fatalf("tally = %+v", tally)
	}
}
