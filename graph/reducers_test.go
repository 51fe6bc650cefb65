package graph

import (
	"errors"
	"reflect"
	"testing"
)

func msgs(ids ...string) []testMsg {
	out := make([]testMsg, len(ids))
	for i, id := range ids {
		out[i] = testMsg{ID: id, Text: "text-" + id}
	}
	return out
}

func TestAppendOrReplaceByID(t *testing.T) {
	t.Run("appends unseen ids in incoming order", func(t *testing.T) {
		got, err := AppendOrReplaceByID(msgs("a", "b"), msgs("c", "d"))
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(got, msgs("a", "b", "c", "d")) {
			t.Errorf("got %v", got)
		}
	})

	t.Run("replaces known id in place", func(t *testing.T) {
		current := msgs("a", "b", "c")
		incoming := []testMsg{{ID: "b", Text: "edited"}, {ID: "d", Text: "new"}}

		got, err := AppendOrReplaceByID(current, incoming)
		if err != nil {
			t.Fatal(err)
		}
		want := []testMsg{{ID: "a", Text: "text-a"}, {ID: "b", Text: "edited"}, {ID: "c", Text: "text-c"}, {ID: "d", Text: "new"}}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
		if current[1].Text != "text-b" {
			t.Error("current was modified in place")
		}
	})

	t.Run("later incoming item with same id wins", func(t *testing.T) {
		got, err := AppendOrReplaceByID(nil, []testMsg{{ID: "x", Text: "1"}, {ID: "x", Text: "2"}})
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0].Text != "2" {
			t.Errorf("got %v", got)
		}
	})

	t.Run("empty id is a reducer error", func(t *testing.T) {
		_, err := AppendOrReplaceByID(msgs("a"), []testMsg{{Text: "no id"}})
		var re *ReducerError
		if !errors.As(err, &re) {
			t.Fatalf("expected *ReducerError, got %v", err)
		}
	})

	t.Run("idempotent when applied twice", func(t *testing.T) {
		current := msgs("a", "b")
		incoming := []testMsg{{ID: "b", Text: "v2"}, {ID: "c", Text: "v1"}}

		once, _ := AppendOrReplaceByID(current, incoming)
		twice, _ := AppendOrReplaceByID(once, incoming)
		if !reflect.DeepEqual(once, twice) {
			t.Errorf("not idempotent: %v vs %v", once, twice)
		}
	})

	t.Run("associative over disjoint ids", func(t *testing.T) {
		a, b, c := msgs("a1", "a2"), msgs("b1"), msgs("c1", "c2")
		ab, _ := AppendOrReplaceByID(a, b)
		left, _ := AppendOrReplaceByID(ab, c)
		bc, _ := AppendOrReplaceByID(b, c)
		right, _ := AppendOrReplaceByID(a, bc)
		if !reflect.DeepEqual(left, right) {
			t.Errorf("left %v != right %v", left, right)
		}
	})

	t.Run("result does not alias inputs", func(t *testing.T) {
		current := make([]testMsg, 1, 10)
		current[0] = testMsg{ID: "a"}
		got, _ := AppendOrReplaceByID(current, msgs("b"))
		got[0].Text = "changed"
		if current[0].Text == "changed" {
			t.Error("result shares backing array with current")
		}
	})
}

func TestConcat(t *testing.T) {
	t.Run("preserves order", func(t *testing.T) {
		got, err := Concat([]string{"a", "b"}, []string{"c"})
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
			t.Errorf("got %v", got)
		}
	})

	t.Run("keeps duplicates", func(t *testing.T) {
		got, _ := Concat([]string{"a"}, []string{"a"})
		if len(got) != 2 {
			t.Errorf("got %v", got)
		}
	})

	t.Run("associative", func(t *testing.T) {
		a, b, c := []string{"1", "2"}, []string{"3"}, []string{"4", "5"}
		ab, _ := Concat(a, b)
		left, _ := Concat(ab, c)
		bc, _ := Concat(b, c)
		right, _ := Concat(a, bc)
		if !reflect.DeepEqual(left, right) {
			t.Errorf("left %v != right %v", left, right)
		}
	})

	t.Run("not commutative", func(t *testing.T) {
		ab, _ := Concat([]string{"a"}, []string{"b"})
		ba, _ := Concat([]string{"b"}, []string{"a"})
		if reflect.DeepEqual(ab, ba) {
			t.Error("expected order to matter")
		}
	})

	t.Run("result does not alias inputs", func(t *testing.T) {
		current := make([]string, 1, 10)
		current[0] = "a"
		got, _ := Concat(current, []string{"b"})
		got[0] = "changed"
		if current[0] != "a" {
			t.Error("result shares backing array with current")
		}
	})
}

func TestReplace(t *testing.T) {
	reduce := TypedReducer(Replace[string])

	got, err := reduce(nil, "first")
	if err != nil || got != "first" {
		t.Fatalf("got %v, %v", got, err)
	}
	got, _ = reduce(got, "second")
	if got != "second" {
		t.Errorf("got %v", got)
	}
	if _, err := reduce("x", 42); err == nil {
		t.Error("expected a ReducerError for a mistyped value")
	}
}
