package battle

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spitfire-app/spitfire-backend/internal/notify"
	"github.com/spitfire-app/spitfire-backend/internal/obslog"
	"github.com/spitfire-app/spitfire-backend/internal/storage"
)

// submitAttempts bounds optimistic-transaction retries when two submissions
// race on the same battle document.
const submitAttempts = 3

type Manager struct {
	rdb    *redis.Client
	store  *Store
	repo   *Repository
	events *notify.Publisher
}

func NewManager(rdb *redis.Client) *Manager {
	return &Manager{rdb: rdb, store: NewStore(rdb)}
}

// Store exposes the underlying document store (voting reads battles through
// it, tests rewrite timestamps with it).
func (m *Manager) Store() *Store { return m.store }

// AttachRepository wires the Postgres archive for finished battles.
func (m *Manager) AttachRepository(r *Repository) { m.repo = r }

// AttachNotifier wires the optional push channel.
func (m *Manager) AttachNotifier(p *notify.Publisher) { m.events = p }

// Create starts a battle between two matched players. Player1 holds the first
// turn; the assignment is fixed at creation and never re-derived.
func (m *Manager) Create(ctx context.Context, player1ID, player2ID string, mode Mode) (*Battle, error) {
	player1ID = strings.TrimSpace(player1ID)
	player2ID = strings.TrimSpace(player2ID)
	if player1ID == "" || player2ID == "" {
		return nil, errors.New("invalid participants")
	}
	if player1ID == player2ID {
		return nil, ErrSamePlayer
	}

	now := time.Now().UTC()
	b := &Battle{
		ID:        "btl-" + uuid.NewString(),
		Player1ID: player1ID,
		Player2ID: player2ID,
		Mode:      mode,
		Status:    StatusCreated,
		Rounds:    []Round{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.Save(ctx, b); err != nil {
		return nil, err
	}
	if err := m.store.IndexParticipants(ctx, b.ID, player1ID, player2ID); err != nil {
		return nil, err
	}
	obslog.L().Info("battle_create",
		zap.String("battle_id", b.ID),
		zap.String("mode", string(mode)),
		zap.String("player1_id", player1ID),
		zap.String("player2_id", player2ID),
	)
	return b, nil
}

// Get loads a battle, returning ErrNotFound for unknown ids.
func (m *Manager) Get(ctx context.Context, id string) (*Battle, error) {
	b, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrNotFound
	}
	return b, nil
}

// SubmitRound appends one verse for the caller. The whole check-and-append
// runs under WATCH on the battle key so two racing submissions cannot both
// pass the turn rule against the same snapshot.
func (m *Manager) SubmitRound(ctx context.Context, battleID, callerID, text string) (*Battle, *Round, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil, ErrEmptySubmission
	}
	callerID = strings.TrimSpace(callerID)
	if callerID == "" {
		return nil, nil, errors.New("invalid caller")
	}

	key := battleKey(battleID)
	var (
		updated *Battle
		round   Round
	)
	txn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return ErrNotFound
		}
		if err != nil {
			return storage.WrapUnavailable(err)
		}
		cur, err := decode(raw)
		if err != nil {
			return err
		}
		if cur.Complete() {
			return ErrBattleComplete
		}
		if TurnOwner(len(cur.Rounds), cur.Player1ID, cur.Player2ID) != callerID {
			return ErrNotYourTurn
		}

		now := time.Now().UTC()
		round = Round{AuthorID: callerID, Text: text, CreatedAt: now}
		cur.Rounds = append(cur.Rounds, round)
		cur.UpdatedAt = now
		if cur.Status == StatusCreated {
			cur.Status = StatusInProgress
		}
		if cur.Complete() {
			// The cap-reaching submission ends the battle in the same write.
			cur.EndedAt = &now
			cur.Status = StatusAwaitingVotes
		}

		pipe := tx.TxPipeline()
		newRaw, err := encode(cur)
		if err != nil {
			return err
		}
		pipe.Set(ctx, key, newRaw, 0)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		updated = cur
		return nil
	}

	var err error
	for attempt := 0; attempt < submitAttempts; attempt++ {
		err = m.rdb.Watch(ctx, txn, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if errors.Is(err, redis.TxFailedErr) {
		// The turn flipped under us; re-evaluating yields the right rejection.
		return nil, nil, ErrNotYourTurn
	}
	if err != nil {
		return nil, nil, err
	}

	obslog.L().Info("battle_round",
		zap.String("battle_id", updated.ID),
		zap.String("author_id", callerID),
		zap.Int("round_count", updated.RoundCount()),
		zap.String("status", string(updated.Status)),
	)

	if m.events != nil {
		ev := notify.Event{Type: notify.EventRoundSubmitted, BattleID: updated.ID, ActorID: callerID, At: round.CreatedAt}
		m.events.PublishBattle(ctx, updated.ID, ev)
		if updated.Status == StatusAwaitingVotes {
			m.events.PublishBattle(ctx, updated.ID, notify.Event{Type: notify.EventBattleEnded, BattleID: updated.ID, At: *updated.EndedAt})
		}
	}
	if updated.Status == StatusAwaitingVotes && m.repo != nil {
		if err := m.repo.SaveBattle(ctx, updated, 0, 0); err != nil {
			obslog.L().Warn("battle_archive_failed", zap.String("battle_id", updated.ID), zap.Error(err))
		}
	}
	return updated, &round, nil
}

// MarkClosed flips an AWAITING_VOTES battle to CLOSED once its voting window
// shuts. Idempotent.
func (m *Manager) MarkClosed(ctx context.Context, battleID string) error {
	key := battleKey(battleID)
	txn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return ErrNotFound
		}
		if err != nil {
			return storage.WrapUnavailable(err)
		}
		cur, err := decode(raw)
		if err != nil {
			return err
		}
		if cur.Status == StatusClosed {
			return nil
		}
		cur.Status = StatusClosed
		cur.UpdatedAt = time.Now().UTC()
		pipe := tx.TxPipeline()
		newRaw, err := encode(cur)
		if err != nil {
			return err
		}
		pipe.Set(ctx, key, newRaw, 0)
		_, err = pipe.Exec(ctx)
		return err
	}
	err := m.rdb.Watch(ctx, txn, key)
	if errors.Is(err, redis.TxFailedErr) {
		// Concurrent close already happened.
		return nil
	}
	return err
}

// GetActiveBattleByUser returns the most recently updated battle for the user
// that is still accepting rounds, or nil. Polling clients call this alongside
// the queue to detect a match formed by the other side.
func (m *Manager) GetActiveBattleByUser(ctx context.Context, userID string) (*Battle, error) {
	list, err := m.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, b := range list {
		if b.Status == StatusCreated || b.Status == StatusInProgress {
			return b, nil
		}
	}
	return nil, nil
}

// RecentArchived returns the user's finished battles from the Postgres
// archive, most recently ended first. Empty when no archive is attached.
func (m *Manager) RecentArchived(ctx context.Context, userID string, limit int) ([]*ArchivedBattle, error) {
	if m.repo == nil {
		return nil, nil
	}
	return m.repo.GetRecentBattles(ctx, userID, limit)
}

// ListByUser returns all battles the user participates in, most recently
// updated first.
func (m *Manager) ListByUser(ctx context.Context, userID string) ([]*Battle, error) {
	ids, err := m.store.BattleIDsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	list := make([]*Battle, 0, len(ids))
	for _, id := range ids {
		b, err := m.store.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		if b != nil {
			list = append(list, b)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].UpdatedAt.After(list[j].UpdatedAt) })
	return list, nil
}

func encode(b *Battle) ([]byte, error) { return json.Marshal(b) }

func decode(raw []byte) (*Battle, error) {
	var b Battle
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, err
	}
	return &b, nil
}
