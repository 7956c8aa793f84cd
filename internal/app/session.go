package app

import (
	"context"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"snapquiz-service/internal/domain"
	"snapquiz-service/internal/pkg/logger"
)

const processingMessage = "Reading your photo and writing questions..."

// Snapshot is the UI-facing view of the session, pushed to subscribers on
// every change.
type Snapshot struct {
	State                domain.AppState  `json:"appState"`
	CurrentQuizSet       *domain.QuizSet  `json:"currentQuizSet,omitempty"`
	CurrentQuestionIndex int              `json:"currentQuestionIndex"`
	History              []domain.QuizSet `json:"history"`
	LoadingMessage       string           `json:"loadingMessage,omitempty"`
	Error                string           `json:"error,omitempty"`
	// HintPending reports an outstanding hint request for the current item;
	// the hint control is disabled while it is set.
	HintPending bool `json:"hintPending"`
}

// SessionController drives the quiz session state machine and mediates
// between the history store and the generation client. All transitions go
// through Transition; the mutex only serializes access from the transport
// layer and the goroutines resolving remote calls.
type SessionController struct {
	log   *logger.Logger
	store HistoryStore
	gen   Generator

	mu             sync.RWMutex
	state          domain.AppState
	current        *domain.QuizSet
	index          int
	history        []domain.QuizSet
	loadingMessage string
	errMsg         string
	hintPending    map[string]struct{}
	genCancel      context.CancelFunc
	sf             singleflight.Group
	subscribers    map[chan Snapshot]struct{}
}

func NewSessionController(store HistoryStore, gen Generator, log *logger.Logger) *SessionController {
	c := &SessionController{
		log:         log.With("service", "SessionController"),
		store:       store,
		gen:         gen,
		state:       domain.StateIdle,
		hintPending: make(map[string]struct{}),
		subscribers: make(map[chan Snapshot]struct{}),
	}
	c.history = store.LoadHistory(context.Background())
	return c
}

// SubmitImage runs the capture flow: idle -> processing, then either
// quiz_active (set persisted, history refreshed) or error. It blocks until
// the generation call resolves; cancelling ctx or resetting the session
// cancels the call and clears the waiting state.
func (c *SessionController) SubmitImage(ctx context.Context, image []byte, mime string) error {
	c.mu.Lock()
	next, err := Transition(c.state, Event{Kind: EventCapture})
	if err != nil {
		c.mu.Unlock()
		return err
	}
	genCtx, cancel := context.WithCancel(ctx)
	c.state = next
	c.loadingMessage = processingMessage
	c.errMsg = ""
	c.genCancel = cancel
	c.broadcastLocked()
	c.mu.Unlock()

	set, genErr := c.gen.GenerateQuizFromImage(genCtx, image, mime)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.genCancel = nil
	c.loadingMessage = ""

	if c.state != domain.StateProcessing {
		// Reset won the race and already cleared the waiting state.
		return genErr
	}

	if genErr == nil && len(set.Items) == 0 {
		genErr = domain.ErrEmptyQuizSet
	}
	if genErr != nil {
		c.state, _ = Transition(c.state, Event{Kind: EventGenerationFailed})
		c.errMsg = "Could not generate a quiz from that photo. Please try again."
		c.log.Warn("quiz generation failed", "error", genErr)
		c.broadcastLocked()
		return genErr
	}

	c.state, _ = Transition(c.state, Event{Kind: EventGenerated})
	c.store.SaveSet(ctx, set)
	c.history = c.store.LoadHistory(ctx)
	clone := set.Clone()
	c.current = &clone
	c.index = 0
	c.broadcastLocked()
	return nil
}

// Advance moves to the next question, or completes the quiz when called on
// the last one. The index moves by exactly 1; there is no skipping and no
// wraparound.
func (c *SessionController) Advance() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	last := c.current != nil && c.index == len(c.current.Items)-1
	next, err := Transition(c.state, Event{Kind: EventAdvance, LastItem: last})
	if err != nil {
		return err
	}
	c.state = next
	if !last {
		c.index++
	}
	c.broadcastLocked()
	return nil
}

// SelectHistoryEntry reopens a stored set as the active quiz, bypassing
// processing. The session works on a deep copy, so deleting the entry later
// leaves the running quiz untouched.
func (c *SessionController) SelectHistoryEntry(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var found *domain.QuizSet
	for i := range c.history {
		if c.history[i].ID == id {
			found = &c.history[i]
			break
		}
	}
	if found == nil {
		return domain.ErrSetNotFound
	}

	next, err := Transition(c.state, Event{Kind: EventSelectHistory})
	if err != nil {
		return err
	}
	clone := found.Clone()
	c.state = next
	c.current = &clone
	c.index = 0
	c.errMsg = ""
	c.broadcastLocked()
	return nil
}

// DeleteHistoryEntry removes the entry from the persisted list in any state.
// It never touches the active in-memory set, even when the IDs match; the
// running session finishes on its copy.
func (c *SessionController) DeleteHistoryEntry(ctx context.Context, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = c.store.DeleteSet(ctx, id)
	c.broadcastLocked()
}

// RequestHint returns the hint for the current question at the given level.
// Cached levels are served from memory without a remote call. A fresh hint
// updates the in-memory set and is persisted through the store with the same
// text. At most one hint request per item may be outstanding.
func (c *SessionController) RequestHint(ctx context.Context, level domain.HintLevel) (string, error) {
	if !level.Valid() {
		return "", domain.ErrHintLevelInvalid
	}

	c.mu.Lock()
	if c.state != domain.StateQuizActive {
		c.mu.Unlock()
		return "", domain.ErrInvalidTransition
	}
	item := c.current.Items[c.index].Clone()
	setID := c.current.ID
	if text, ok := item.Hint(level); ok {
		c.mu.Unlock()
		return text, nil
	}
	if _, pending := c.hintPending[item.ID]; pending {
		c.mu.Unlock()
		return "", domain.ErrHintInFlight
	}
	c.hintPending[item.ID] = struct{}{}
	c.broadcastLocked()
	c.mu.Unlock()

	key := item.ID + ":" + strconv.Itoa(int(level))
	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		return c.gen.GenerateHint(ctx, item.Question, item.Answer, level, item.OriginalContext)
	})
	text := domain.FallbackHint
	if err != nil {
		c.log.Warn("hint generation failed", "item", item.ID, "level", int(level), "error", err)
	} else {
		text = result.(string)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.hintPending, item.ID)

	updated := item
	if c.current != nil && c.current.ID == setID {
		for j := range c.current.Items {
			if c.current.Items[j].ID == item.ID {
				c.current.Items[j].SetHint(level, text)
				updated = c.current.Items[j].Clone()
				break
			}
		}
	} else {
		updated.SetHint(level, text)
	}
	c.store.UpdateItem(ctx, setID, updated)
	c.history = c.store.LoadHistory(ctx)
	c.broadcastLocked()
	return text, nil
}

// Reset returns the session to idle from processing, completed, or error.
// Resetting while processing cancels the outstanding generation call.
func (c *SessionController) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := Transition(c.state, Event{Kind: EventReset})
	if err != nil {
		return err
	}
	if c.genCancel != nil {
		c.genCancel()
		c.genCancel = nil
	}
	c.state = next
	c.current = nil
	c.index = 0
	c.errMsg = ""
	c.loadingMessage = ""
	c.broadcastLocked()
	return nil
}

// Snapshot returns the current UI-facing view.
func (c *SessionController) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

// Subscribe returns a channel that receives a snapshot on every state change,
// starting with the current one. The caller must invoke the returned cancel
// function to avoid leaks.
func (c *SessionController) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)

	c.mu.Lock()
	c.subscribers[ch] = struct{}{}
	initial := c.snapshotLocked()
	c.mu.Unlock()

	ch <- initial

	cancel := func() {
		c.mu.Lock()
		if _, ok := c.subscribers[ch]; ok {
			delete(c.subscribers, ch)
			close(ch)
		}
		c.mu.Unlock()
	}
	return ch, cancel
}

func (c *SessionController) broadcastLocked() {
	snap := c.snapshotLocked()
	for ch := range c.subscribers {
		select {
		case ch <- snap:
		default:
			// Drop the stale snapshot so a slow client never blocks the session.
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

func (c *SessionController) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:                c.state,
		CurrentQuestionIndex: c.index,
		LoadingMessage:       c.loadingMessage,
		Error:                c.errMsg,
	}
	if c.current != nil {
		clone := c.current.Clone()
		snap.CurrentQuizSet = &clone
		if c.index < len(clone.Items) {
			_, snap.HintPending = c.hintPending[clone.Items[c.index].ID]
		}
	}
	snap.History = make([]domain.QuizSet, len(c.history))
	for i := range c.history {
		snap.History[i] = c.history[i].Clone()
	}
	return snap
}
