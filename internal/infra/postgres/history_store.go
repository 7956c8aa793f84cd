package postgres

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"snapquiz-service/internal/domain"
	"snapquiz-service/internal/pkg/logger"
)

// HistoryStore keeps the history blob in a single JSONB row keyed by the
// configured namespace. Schema lives in the bun migrations applied by the
// migrate CLI subcommand.
type HistoryStore struct {
	pool *pgxpool.Pool
	key  string
	log  *logger.Logger

	mu sync.Mutex
}

func NewHistoryStore(pool *pgxpool.Pool, key string, log *logger.Logger) *HistoryStore {
	return &HistoryStore{pool: pool, key: key, log: log.With("store", "postgres")}
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
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM history WHERE key=$1`, s.key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
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
	_, err = s.pool.Exec(ctx,
		`INSERT INTO history (key, data) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data`,
		s.key, raw)
	if err != nil {
		s.log.Warn("history write failed", "key", s.key, "error", err)
	}
}
