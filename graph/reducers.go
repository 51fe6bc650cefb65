package graph

import "fmt"

// Identifiable is implemented by items that carry a stable identity, such as
// conversation messages.
type Identifiable interface {
	ItemID() string
}

// AppendOrReplaceByID merges incoming into current by item id.
//
// For each incoming item, an item in current with the same id is replaced in
// place (keeping its position); otherwise the item is appended. Appended items
// keep their relative order from incoming. An item with an empty id, on either
// side, is malformed and yields a *ReducerError.
//
// The result never shares a backing array with either argument.
func AppendOrReplaceByID[T Identifiable](current, incoming []T) ([]T, error) {
	merged := make([]T, len(current), len(current)+len(incoming))
	copy(merged, current)

	index := make(map[string]int, len(merged)+len(incoming))
	for i, item := range merged {
		id := item.ItemID()
		if id == "" {
			return nil, &ReducerError{Reason: fmt.Sprintf("current item %d has no id", i)}
		}
		index[id] = i
	}

	for i, item := range incoming {
		id := item.ItemID()
		if id == "" {
			return nil, &ReducerError{Reason: fmt.Sprintf("incoming item %d has no id", i)}
		}
		if pos, ok := index[id]; ok {
			merged[pos] = item
			continue
		}
		index[id] = len(merged)
		merged = append(merged, item)
	}
	return merged, nil
}

// Concat returns current followed by incoming, verbatim, without dedup.
//
// The result never shares a backing array with either argument.
func Concat[T any](current, incoming []T) ([]T, error) {
	out := make([]T, 0, len(current)+len(incoming))
	out = append(out, current...)
	out = append(out, incoming...)
	return out, nil
}

// Replace discards current and keeps incoming. Within one step, the branch
// merged last wins.
func Replace[T any](_, incoming T) (T, error) {
	return incoming, nil
}
