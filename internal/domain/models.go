package domain

// HintLevel is an escalation tier for a quiz item hint.
// Level 1 is conceptual, level 2 attribute-based, level 3 near-revealing.
type HintLevel int

const (
	HintConceptual HintLevel = 1
	HintAttribute  HintLevel = 2
	HintReveal     HintLevel = 3

	// MaxHintLevel bounds the hint cache per item.
	MaxHintLevel = HintReveal
)

// FallbackHint is served whenever hint generation fails; a failed hint call
// must never block quiz progress.
const FallbackHint = "Think back to the part of the page this question came from."

// Valid reports whether the level is one of the three supported tiers.
func (l HintLevel) Valid() bool {
	return l >= HintConceptual && l <= MaxHintLevel
}

// QuizItem is a single question generated from the source image.
// Hints is a sparse cache keyed by level; a level is absent until the user
// requests it, and once filled it is never cleared.
type QuizItem struct {
	ID              string               `json:"id"`
	Question        string               `json:"question"`
	Answer          string               `json:"answer"`
	OriginalContext string               `json:"originalContext,omitempty"`
	Hints           map[HintLevel]string `json:"hints,omitempty"`
}

// Hint returns the cached hint for the level, if present.
func (i *QuizItem) Hint(level HintLevel) (string, bool) {
	if i.Hints == nil {
		return "", false
	}
	text, ok := i.Hints[level]
	return text, ok
}

// SetHint fills the cache position for the level. Invalid levels are ignored.
func (i *QuizItem) SetHint(level HintLevel, text string) {
	if !level.Valid() {
		return
	}
	if i.Hints == nil {
		i.Hints = make(map[HintLevel]string, int(MaxHintLevel))
	}
	i.Hints[level] = text
}

// Clone returns a deep copy of the item.
func (i QuizItem) Clone() QuizItem {
	out := i
	if i.Hints != nil {
		out.Hints = make(map[HintLevel]string, len(i.Hints))
		for level, text := range i.Hints {
			out.Hints[level] = text
		}
	}
	return out
}

// QuizSet is a titled collection of questions generated from one image.
// ID and CreatedAt are assigned once at creation and never change.
type QuizSet struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	CreatedAt int64      `json:"createdAt"` // epoch milliseconds
	Items     []QuizItem `json:"items"`
}

// Clone returns a deep copy of the set. Active sessions work on a clone so
// history mutations never reach the in-memory copy.
func (s QuizSet) Clone() QuizSet {
	out := s
	out.Items = make([]QuizItem, len(s.Items))
	for idx, item := range s.Items {
		out.Items[idx] = item.Clone()
	}
	return out
}

// AppState is the single session state; exactly one is active at a time.
type AppState string

const (
	StateIdle       AppState = "idle"
	StateProcessing AppState = "processing"
	StateQuizActive AppState = "quiz_active"
	StateCompleted  AppState = "completed"
	StateError      AppState = "error"
)
