package app

import (
	"context"

	"snapquiz-service/internal/domain"
)

// HistoryStore abstracts how the quiz history blob is persisted (in-memory,
// Redis, SQLite, Postgres). Every operation is a full read-modify-write of
// the blob under one namespaced key. Storage failures and corrupt blobs
// degrade to an empty history inside the implementation; they are logged
// there and never propagate to callers.
type HistoryStore interface {
	// SaveSet replaces the entry with set.ID in place or prepends it as the
	// newest entry.
	SaveSet(ctx context.Context, set domain.QuizSet)
	// LoadHistory returns the persisted sequence, empty when nothing is
	// stored or the blob fails to parse.
	LoadHistory(ctx context.Context) []domain.QuizSet
	// DeleteSet removes all entries with the ID and returns the resulting
	// sequence.
	DeleteSet(ctx context.Context, id string) []domain.QuizSet
	// UpdateItem replaces the item in place inside the set; a miss on either
	// lookup is a silent no-op.
	UpdateItem(ctx context.Context, setID string, item domain.QuizItem)
}

// Generator is the remote model boundary: image bytes in, quiz set out, and
// the per-question hint call.
type Generator interface {
	// GenerateQuizFromImage fails when the remote call returns no usable
	// text or yields zero items; the caller treats that as a generation
	// failure, never a valid empty quiz.
	GenerateQuizFromImage(ctx context.Context, image []byte, mime string) (domain.QuizSet, error)
	// GenerateHint returns the hint text for the escalation level. A failed
	// remote call degrades to a fixed fallback string inside the
	// implementation; hint generation must never block quiz progress.
	GenerateHint(ctx context.Context, question, answer string, level domain.HintLevel, sourceContext string) (string, error)
}
