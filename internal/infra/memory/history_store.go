package memory

import (
	"context"
	"sync"

	"snapquiz-service/internal/domain"
	"snapquiz-service/internal/pkg/logger"
)

// HistoryStore keeps the serialized history blob in process memory. It goes
// through the same encode/decode cycle as the durable backends, so it doubles
// as the reference implementation and test double.
type HistoryStore struct {
	log *logger.Logger

	mu   sync.Mutex
	blob []byte
}

func NewHistoryStore(log *logger.Logger) *HistoryStore {
	return &HistoryStore{log: log.With("store", "memory")}
}

func (s *HistoryStore) SaveSet(_ context.Context, set domain.QuizSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := s.decodeLocked()
	s.encodeLocked(domain.UpsertSet(history, set))
}

func (s *HistoryStore) LoadHistory(_ context.Context) []domain.QuizSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decodeLocked()
}

func (s *HistoryStore) DeleteSet(_ context.Context, id string) []domain.QuizSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	history, _ := domain.RemoveSet(s.decodeLocked(), id)
	s.encodeLocked(history)
	return history
}

func (s *HistoryStore) UpdateItem(_ context.Context, setID string, item domain.QuizItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	history, ok := domain.ReplaceItem(s.decodeLocked(), setID, item)
	if !ok {
		return
	}
	s.encodeLocked(history)
}

func (s *HistoryStore) decodeLocked() []domain.QuizSet {
	history, err := domain.DecodeHistory(s.blob)
	if err != nil {
		// Corruption resets the history; never surfaced to callers.
		s.log.Warn("history blob corrupt, resetting", "bytes", len(s.blob), "error", err)
		return []domain.QuizSet{}
	}
	return history
}

func (s *HistoryStore) encodeLocked(history []domain.QuizSet) {
	raw, err := domain.EncodeHistory(history)
	if err != nil {
		s.log.Error("encode history failed", "error", err)
		return
	}
	s.blob = raw
}
