package domain

import "encoding/json"

// History manipulation and the persisted-blob codec shared by every store
// backend. The whole history is serialized as one JSON array, newest first;
// all mutations are pure functions over the decoded slice so each backend is
// a thin read-modify-write around them.

// EncodeHistory serializes the history blob.
func EncodeHistory(history []QuizSet) ([]byte, error) {
	if history == nil {
		history = []QuizSet{}
	}
	return json.Marshal(history)
}

// DecodeHistory parses the persisted blob. Callers treat an error as an empty
// history; corruption is never surfaced past the store layer.
func DecodeHistory(raw []byte) ([]QuizSet, error) {
	if len(raw) == 0 {
		return []QuizSet{}, nil
	}
	var history []QuizSet
	if err := json.Unmarshal(raw, &history); err != nil {
		return nil, err
	}
	if history == nil {
		history = []QuizSet{}
	}
	return history, nil
}

// UpsertSet replaces the entry with set.ID in place, preserving its position,
// or prepends set as the new newest entry when the ID is absent.
func UpsertSet(history []QuizSet, set QuizSet) []QuizSet {
	for i := range history {
		if history[i].ID == set.ID {
			out := make([]QuizSet, len(history))
			copy(out, history)
			out[i] = set
			return out
		}
	}
	out := make([]QuizSet, 0, len(history)+1)
	out = append(out, set)
	out = append(out, history...)
	return out
}

// RemoveSet drops every entry with the ID (at most one by the uniqueness
// invariant) and reports whether anything was removed.
func RemoveSet(history []QuizSet, id string) ([]QuizSet, bool) {
	out := make([]QuizSet, 0, len(history))
	removed := false
	for _, set := range history {
		if set.ID == id {
			removed = true
			continue
		}
		out = append(out, set)
	}
	return out, removed
}

// ReplaceItem swaps the item with item.ID inside the set with setID, leaving
// every other item untouched. Returns false when either lookup misses.
func ReplaceItem(history []QuizSet, setID string, item QuizItem) ([]QuizSet, bool) {
	for i := range history {
		if history[i].ID != setID {
			continue
		}
		for j := range history[i].Items {
			if history[i].Items[j].ID != item.ID {
				continue
			}
			out := make([]QuizSet, len(history))
			copy(out, history)
			set := out[i]
			items := make([]QuizItem, len(set.Items))
			copy(items, set.Items)
			items[j] = item
			set.Items = items
			out[i] = set
			return out, true
		}
		return history, false
	}
	return history, false
}
