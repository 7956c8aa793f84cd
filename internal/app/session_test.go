package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"snapquiz-service/internal/app"
	"snapquiz-service/internal/domain"
	"snapquiz-service/internal/infra/memory"
	"snapquiz-service/internal/pkg/logger"
)

type scriptedGenerator struct {
	mu        sync.Mutex
	set       domain.QuizSet
	err       error
	quizCalls int
	hintCalls int
	blockQuiz chan struct{}
	blockHint chan struct{}
}

func (g *scriptedGenerator) GenerateQuizFromImage(ctx context.Context, _ []byte, _ string) (domain.QuizSet, error) {
	g.mu.Lock()
	g.quizCalls++
	block := g.blockQuiz
	g.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return domain.QuizSet{}, ctx.Err()
		}
	}
	return g.set, g.err
}

func (g *scriptedGenerator) GenerateHint(ctx context.Context, _, _ string, level domain.HintLevel, _ string) (string, error) {
	g.mu.Lock()
	g.hintCalls++
	block := g.blockHint
	g.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return fmt.Sprintf("hint-level-%d", level), nil
}

func (g *scriptedGenerator) calls() (int, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.quizCalls, g.hintCalls
}

func threeItemSet() domain.QuizSet {
	return domain.QuizSet{
		ID:        "set-100",
		Title:     "Generated",
		CreatedAt: 100,
		Items: []domain.QuizItem{
			{ID: "q-100-0", Question: "Q0?", Answer: "A0"},
			{ID: "q-100-1", Question: "Q1?", Answer: "A1"},
			{ID: "q-100-2", Question: "Q2?", Answer: "A2"},
		},
	}
}

func newController(gen app.Generator) (*app.SessionController, app.HistoryStore) {
	store := memory.NewHistoryStore(logger.NewNop())
	return app.NewSessionController(store, gen, logger.NewNop()), store
}

func TestSubmitImageActivatesQuizAndPersists(t *testing.T) {
	ctx := context.Background()
	gen := &scriptedGenerator{set: threeItemSet()}
	controller, store := newController(gen)

	if err := controller.SubmitImage(ctx, []byte{1}, "image/jpeg"); err != nil {
		t.Fatalf("submit image: %v", err)
	}

	snap := controller.Snapshot()
	if snap.State != domain.StateQuizActive {
		t.Fatalf("expected quiz_active, got %s", snap.State)
	}
	if snap.CurrentQuizSet == nil || snap.CurrentQuizSet.ID != "set-100" {
		t.Fatalf("expected current set, got %+v", snap.CurrentQuizSet)
	}
	if snap.CurrentQuestionIndex != 0 {
		t.Fatalf("expected index 0, got %d", snap.CurrentQuestionIndex)
	}
	if len(snap.History) != 1 || snap.History[0].ID != "set-100" {
		t.Fatalf("expected set in history, got %+v", snap.History)
	}
	if got := store.LoadHistory(ctx); len(got) != 1 {
		t.Fatalf("expected set persisted, got %+v", got)
	}
}

func TestSubmitImageRejectedOutsideIdle(t *testing.T) {
	ctx := context.Background()
	gen := &scriptedGenerator{set: threeItemSet()}
	controller, _ := newController(gen)

	if err := controller.SubmitImage(ctx, []byte{1}, ""); err != nil {
		t.Fatalf("submit image: %v", err)
	}
	if err := controller.SubmitImage(ctx, []byte{1}, ""); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestGenerationFailureSurfacesErrorState(t *testing.T) {
	ctx := context.Background()
	gen := &scriptedGenerator{err: domain.ErrNoModelOutput}
	controller, _ := newController(gen)

	if err := controller.SubmitImage(ctx, []byte{1}, ""); !errors.Is(err, domain.ErrNoModelOutput) {
		t.Fatalf("expected generation error, got %v", err)
	}
	snap := controller.Snapshot()
	if snap.State != domain.StateError || snap.Error == "" {
		t.Fatalf("expected error state with message, got %+v", snap)
	}
	if snap.CurrentQuizSet != nil {
		t.Fatalf("expected no current set in error state")
	}

	if err := controller.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if got := controller.Snapshot().State; got != domain.StateIdle {
		t.Fatalf("expected idle after reset, got %s", got)
	}
}

func TestZeroItemsIsGenerationFailure(t *testing.T) {
	ctx := context.Background()
	gen := &scriptedGenerator{set: domain.QuizSet{ID: "set-1"}}
	controller, store := newController(gen)

	if err := controller.SubmitImage(ctx, []byte{1}, ""); !errors.Is(err, domain.ErrEmptyQuizSet) {
		t.Fatalf("expected empty-set error, got %v", err)
	}
	if got := store.LoadHistory(ctx); len(got) != 0 {
		t.Fatalf("empty set must never be persisted, got %+v", got)
	}
}

func TestAdvanceThroughQuiz(t *testing.T) {
	ctx := context.Background()
	gen := &scriptedGenerator{set: threeItemSet()}
	controller, _ := newController(gen)
	if err := controller.SubmitImage(ctx, []byte{1}, ""); err != nil {
		t.Fatalf("submit image: %v", err)
	}

	// index 0 -> 1 -> 2 stays active.
	for want := 1; want <= 2; want++ {
		if err := controller.Advance(); err != nil {
			t.Fatalf("advance: %v", err)
		}
		snap := controller.Snapshot()
		if snap.State != domain.StateQuizActive || snap.CurrentQuestionIndex != want {
			t.Fatalf("expected active at index %d, got %s/%d", want, snap.State, snap.CurrentQuestionIndex)
		}
	}

	// Advancing past the last item completes; the set stays loaded.
	if err := controller.Advance(); err != nil {
		t.Fatalf("advance past last: %v", err)
	}
	snap := controller.Snapshot()
	if snap.State != domain.StateCompleted {
		t.Fatalf("expected completed, got %s", snap.State)
	}
	if snap.CurrentQuizSet == nil || snap.CurrentQuizSet.ID != "set-100" {
		t.Fatalf("expected current set unchanged on completion, got %+v", snap.CurrentQuizSet)
	}

	if err := controller.Advance(); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected advance rejected after completion, got %v", err)
	}
}

func TestSelectHistoryEntryBypassesProcessing(t *testing.T) {
	ctx := context.Background()
	gen := &scriptedGenerator{set: threeItemSet()}
	controller, store := newController(gen)

	store.SaveSet(ctx, threeItemSet())
	// Controller loaded history before the save; refresh through a delete of
	// a missing id, which rereads the store.
	controller.DeleteHistoryEntry(ctx, "set-none")

	if err := controller.SelectHistoryEntry("set-100"); err != nil {
		t.Fatalf("select history: %v", err)
	}
	snap := controller.Snapshot()
	if snap.State != domain.StateQuizActive || snap.CurrentQuestionIndex != 0 {
		t.Fatalf("expected active at index 0, got %s/%d", snap.State, snap.CurrentQuestionIndex)
	}
	if quizCalls, _ := gen.calls(); quizCalls != 0 {
		t.Fatalf("history selection must not call the generator, got %d calls", quizCalls)
	}

	if err := controller.SelectHistoryEntry("set-unknown"); !errors.Is(err, domain.ErrSetNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteActiveSetKeepsSessionRunning(t *testing.T) {
	ctx := context.Background()
	gen := &scriptedGenerator{set: threeItemSet()}
	controller, store := newController(gen)
	if err := controller.SubmitImage(ctx, []byte{1}, ""); err != nil {
		t.Fatalf("submit image: %v", err)
	}

	controller.DeleteHistoryEntry(ctx, "set-100")

	snap := controller.Snapshot()
	if len(snap.History) != 0 {
		t.Fatalf("expected entry removed from history, got %+v", snap.History)
	}
	if snap.CurrentQuizSet == nil || snap.CurrentQuizSet.ID != "set-100" {
		t.Fatalf("active set must survive deletion, got %+v", snap.CurrentQuizSet)
	}
	if snap.State != domain.StateQuizActive {
		t.Fatalf("expected session still active, got %s", snap.State)
	}
	if got := store.LoadHistory(ctx); len(got) != 0 {
		t.Fatalf("expected deletion persisted, got %+v", got)
	}

	// The in-memory session completes normally afterwards.
	for i := 0; i < 3; i++ {
		if err := controller.Advance(); err != nil {
			t.Fatalf("advance %d: %v", i, err)
		}
	}
	if got := controller.Snapshot().State; got != domain.StateCompleted {
		t.Fatalf("expected completed, got %s", got)
	}
}

func TestRequestHintCachesAndPersists(t *testing.T) {
	ctx := context.Background()
	gen := &scriptedGenerator{set: threeItemSet()}
	controller, store := newController(gen)
	if err := controller.SubmitImage(ctx, []byte{1}, ""); err != nil {
		t.Fatalf("submit image: %v", err)
	}

	hint, err := controller.RequestHint(ctx, domain.HintConceptual)
	if err != nil {
		t.Fatalf("request hint: %v", err)
	}
	if hint != "hint-level-1" {
		t.Fatalf("hint = %q", hint)
	}

	// Same level again: served from memory, no remote call.
	again, err := controller.RequestHint(ctx, domain.HintConceptual)
	if err != nil || again != hint {
		t.Fatalf("expected cached hint, got %q err=%v", again, err)
	}
	if _, hintCalls := gen.calls(); hintCalls != 1 {
		t.Fatalf("expected a single remote hint call, got %d", hintCalls)
	}

	// Escalating generates anew but keeps level 1 available.
	level2, err := controller.RequestHint(ctx, domain.HintAttribute)
	if err != nil || level2 != "hint-level-2" {
		t.Fatalf("level 2 hint = %q err=%v", level2, err)
	}
	snap := controller.Snapshot()
	cached, ok := snap.CurrentQuizSet.Items[0].Hint(domain.HintConceptual)
	if !ok || cached != "hint-level-1" {
		t.Fatalf("level-1 hint lost after escalation: %q ok=%v", cached, ok)
	}

	// Both levels survive a reload through the store.
	persisted := store.LoadHistory(ctx)
	if _, ok := persisted[0].Items[0].Hint(domain.HintAttribute); !ok {
		t.Fatalf("expected level-2 hint persisted, got %+v", persisted[0].Items[0])
	}
}

func TestRequestHintRejectsConcurrentRequestForItem(t *testing.T) {
	ctx := context.Background()
	gen := &scriptedGenerator{set: threeItemSet(), blockHint: make(chan struct{})}
	controller, _ := newController(gen)
	if err := controller.SubmitImage(ctx, []byte{1}, ""); err != nil {
		t.Fatalf("submit image: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := controller.RequestHint(ctx, domain.HintConceptual)
		done <- err
	}()

	waitFor(t, func() bool { return controller.Snapshot().HintPending })

	if _, err := controller.RequestHint(ctx, domain.HintAttribute); !errors.Is(err, domain.ErrHintInFlight) {
		t.Fatalf("expected hint-in-flight rejection, got %v", err)
	}

	close(gen.blockHint)
	if err := <-done; err != nil {
		t.Fatalf("outstanding hint: %v", err)
	}
	if controller.Snapshot().HintPending {
		t.Fatalf("expected pending flag cleared")
	}
}

func TestResetDuringProcessingCancelsGeneration(t *testing.T) {
	ctx := context.Background()
	gen := &scriptedGenerator{set: threeItemSet(), blockQuiz: make(chan struct{})}
	controller, _ := newController(gen)

	done := make(chan error, 1)
	go func() {
		done <- controller.SubmitImage(ctx, []byte{1}, "")
	}()

	waitFor(t, func() bool { return controller.Snapshot().State == domain.StateProcessing })

	if err := controller.Reset(); err != nil {
		t.Fatalf("reset while processing: %v", err)
	}

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled generation, got %v", err)
	}
	snap := controller.Snapshot()
	if snap.State != domain.StateIdle || snap.LoadingMessage != "" {
		t.Fatalf("expected idle with no waiting state, got %+v", snap)
	}
}

func TestSubscribeReceivesSnapshots(t *testing.T) {
	ctx := context.Background()
	gen := &scriptedGenerator{set: threeItemSet()}
	controller, _ := newController(gen)

	ch, cancel := controller.Subscribe()
	defer cancel()

	first := <-ch
	if first.State != domain.StateIdle {
		t.Fatalf("expected initial idle snapshot, got %s", first.State)
	}

	if err := controller.SubmitImage(ctx, []byte{1}, ""); err != nil {
		t.Fatalf("submit image: %v", err)
	}

	// Drain until the active snapshot arrives; intermediate processing
	// snapshots may have been dropped as stale.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-ch:
			if snap.State == domain.StateQuizActive {
				return
			}
		case <-deadline:
			t.Fatalf("never observed quiz_active snapshot")
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition never became true")
}
