package battle

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/spitfire-app/spitfire-backend/internal/storage"
)

// Store persists battle documents in Redis. One JSON document per battle under
// battle:<id>, plus a per-user index set for lookups. Battles are a historical
// record; no TTL is applied.
type Store struct{ rdb *redis.Client }

func NewStore(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

func battleKey(id string) string  { return "battle:" + strings.TrimSpace(id) }
func idxUserKey(id string) string { return "battle:index:user:" + strings.TrimSpace(id) }

func (s *Store) Save(ctx context.Context, b *Battle) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, battleKey(b.ID), raw, 0).Err(); err != nil {
		return storage.WrapUnavailable(err)
	}
	return nil
}

// Load returns the battle or nil when the id is unknown.
func (s *Store) Load(ctx context.Context, id string) (*Battle, error) {
	raw, err := s.rdb.Get(ctx, battleKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, storage.WrapUnavailable(err)
	}
	var b Battle
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) IndexParticipants(ctx context.Context, battleID string, userIDs ...string) error {
	for _, uid := range userIDs {
		if strings.TrimSpace(uid) == "" {
			continue
		}
		if err := s.rdb.SAdd(ctx, idxUserKey(uid), battleID).Err(); err != nil {
			return storage.WrapUnavailable(err)
		}
	}
	return nil
}

func (s *Store) BattleIDsByUser(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, idxUserKey(userID)).Result()
	if err != nil {
		return nil, storage.WrapUnavailable(err)
	}
	return ids, nil
}
