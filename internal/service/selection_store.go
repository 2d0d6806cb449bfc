package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/classroom-api/internal/roster"
)

// SelectionStore persists the ids a user has checked in the roster table.
type SelectionStore interface {
	Load(ctx context.Context, userID uint) (*roster.Selection, error)
	Save(ctx context.Context, userID uint, selection *roster.Selection) error
	Clear(ctx context.Context, userID uint) error
}

type redisSelectionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSelectionStore keeps each user's selection in a redis set that
// expires after ttl of inactivity.
func NewRedisSelectionStore(client *redis.Client, ttl time.Duration) SelectionStore {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &redisSelectionStore{client: client, ttl: ttl}
}

func selectionKey(userID uint) string {
	return fmt.Sprintf("roster:selection:%d", userID)
}

func (s *redisSelectionStore) Load(ctx context.Context, userID uint) (*roster.Selection, error) {
	members, err := s.client.SMembers(ctx, selectionKey(userID)).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}

	ids := make([]uint, 0, len(members))
	for _, member := range members {
		parsed, err := strconv.ParseUint(member, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, uint(parsed))
	}
	return roster.NewSelection(ids...), nil
}

func (s *redisSelectionStore) Save(ctx context.Context, userID uint, selection *roster.Selection) error {
	key := selectionKey(userID)
	ids := selection.IDs()

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(ids) == 0 {
			return nil
		}
		members := make([]interface{}, 0, len(ids))
		for _, id := range ids {
			members = append(members, strconv.FormatUint(uint64(id), 10))
		}
		pipe.SAdd(ctx, key, members...)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	return err
}

func (s *redisSelectionStore) Clear(ctx context.Context, userID uint) error {
	return s.client.Del(ctx, selectionKey(userID)).Err()
}

type memorySelectionStore struct {
	mu   sync.Mutex
	sets map[uint][]uint
}

// NewMemorySelectionStore keeps selections in process memory. It is used when
// redis is not configured.
func NewMemorySelectionStore() SelectionStore {
	return &memorySelectionStore{sets: make(map[uint][]uint)}
}

func (s *memorySelectionStore) Load(_ context.Context, userID uint) (*roster.Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return roster.NewSelection(s.sets[userID]...), nil
}

func (s *memorySelectionStore) Save(_ context.Context, userID uint, selection *roster.Selection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := selection.IDs()
	if len(ids) == 0 {
		delete(s.sets, userID)
		return nil
	}
	s.sets[userID] = ids
	return nil
}

func (s *memorySelectionStore) Clear(_ context.Context, userID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sets, userID)
	return nil
}
