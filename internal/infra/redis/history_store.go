package redis

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"

	"snapquiz-service/internal/domain"
	"snapquiz-service/internal/pkg/logger"
)

// HistoryStore keeps the whole history blob under one Redis string key.
// Every operation is a read-modify-write of the full blob; the mutex keeps
// concurrent callers from interleaving the cycle. Redis failures degrade to
// an empty history and writes are best-effort, matching the store contract.
type HistoryStore struct {
	client *redis.Client
	key    string
	log    *logger.Logger

	mu sync.Mutex
}

func NewHistoryStore(client *redis.Client, key string, log *logger.Logger) *HistoryStore {
	return &HistoryStore{
		client: client,
		key:    key,
		log:    log.With("store", "redis"),
	}
}

func (s *HistoryStore) SaveSet(ctx context.Context, set domain.QuizSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := s.load(ctx)
	s.persist(ctx, domain.UpsertSet(history, set))
}

func (s *HistoryStore) LoadHistory(ctx context.Context) []domain.QuizSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *HistoryStore) DeleteSet(ctx context.Context, id string) []domain.QuizSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	history, _ := domain.RemoveSet(s.load(ctx), id)
	s.persist(ctx, history)
	return history
}

func (s *HistoryStore) UpdateItem(ctx context.Context, setID string, item domain.QuizItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	history, ok := domain.ReplaceItem(s.load(ctx), setID, item)
	if !ok {
		return
	}
	s.persist(ctx, history)
}

func (s *HistoryStore) load(ctx context.Context) []domain.QuizSet {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if err == redis.Nil {
		return []domain.QuizSet{}
	}
	if err != nil {
		s.log.Warn("history read failed, treating as empty", "key", s.key, "error", err)
		return []domain.QuizSet{}
	}
	history, err := domain.DecodeHistory(raw)
	if err != nil {
		s.log.Warn("history blob corrupt, resetting", "key", s.key, "bytes", len(raw), "error", err)
		return []domain.QuizSet{}
	}
	return history
}

func (s *HistoryStore) persist(ctx context.Context, history []domain.QuizSet) {
	raw, err := domain.EncodeHistory(history)
	if err != nil {
		s.log.Error("encode history failed", "error", err)
		return
	}
	if err := s.client.Set(ctx, s.key, raw, 0).Err(); err != nil {
		s.log.Warn("history write failed", "key", s.key, "error", err)
	}
}
