package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	_ "modernc.org/sqlite" // driver: sqlite

	"snapquiz-service/internal/domain"
	"snapquiz-service/internal/pkg/logger"
)

const schema = `CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value BLOB NOT NULL
)`

// HistoryStore persists the history blob in a single-row key/value table in
// a local SQLite file. This is the on-device durable backend.
type HistoryStore struct {
	db  *sql.DB
	key string
	log *logger.Logger

	mu sync.Mutex
}

// Open opens (or creates) the database at path and ensures the schema.
func Open(ctx context.Context, path, key string, log *logger.Logger) (*HistoryStore, error) {
	if path == "" {
		path = "file:snapquiz.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, err
	}
	return &HistoryStore{db: db, key: key, log: log.With("store", "sqlite")}, nil
}

func (s *HistoryStore) Close() error {
	return s.db.Close()
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
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, s.key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
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
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		s.key, raw)
	if err != nil {
		s.log.Warn("history write failed", "key", s.key, "error", err)
	}
}
