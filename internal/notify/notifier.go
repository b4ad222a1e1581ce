// Package notify publishes domain events over Redis pub/sub. Polling remains
// the baseline delivery contract; this channel only shortens the latency for
// clients that subscribe.
package notify

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spitfire-app/spitfire-backend/internal/obslog"
)

type EventType string

const (
	EventMatchFound     EventType = "match_found"
	EventRoundSubmitted EventType = "round_submitted"
	EventBattleEnded    EventType = "battle_ended"
	EventVoteCast       EventType = "vote_cast"
	EventVotingClosed   EventType = "voting_closed"
)

type Event struct {
	Type     EventType `json:"type"`
	BattleID string    `json:"battle_id,omitempty"`
	ActorID  string    `json:"actor_id,omitempty"`
	At       time.Time `json:"at"`
}

func BattleChannel(battleID string) string { return "events:battle:" + strings.TrimSpace(battleID) }
func UserChannel(userID string) string     { return "events:user:" + strings.TrimSpace(userID) }

type Publisher struct{ rdb *redis.Client }

func NewPublisher(rdb *redis.Client) *Publisher { return &Publisher{rdb: rdb} }

// PublishBattle sends an event to a battle's subscribers. Best effort: a
// failed publish is logged, never propagated, because the state change it
// announces has already been committed.
func (p *Publisher) PublishBattle(ctx context.Context, battleID string, ev Event) {
	p.publish(ctx, BattleChannel(battleID), ev)
}

// PublishUser sends an event addressed to a single user (e.g. a match formed
// while they were waiting).
func (p *Publisher) PublishUser(ctx context.Context, userID string, ev Event) {
	p.publish(ctx, UserChannel(userID), ev)
}

func (p *Publisher) publish(ctx context.Context, channel string, ev Event) {
	if p == nil || p.rdb == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		obslog.L().Warn("event_marshal_failed", zap.String("channel", channel), zap.Error(err))
		return
	}
	if err := p.rdb.Publish(ctx, channel, raw).Err(); err != nil {
		obslog.L().Warn("event_publish_failed", zap.String("channel", channel), zap.Error(err))
	}
}

// SubscribeBattle opens a pub/sub subscription on a battle's event channel.
// The caller owns the returned subscription and must Close it.
func (p *Publisher) SubscribeBattle(ctx context.Context, battleID string) *redis.PubSub {
	return p.rdb.Subscribe(ctx, BattleChannel(battleID))
}
