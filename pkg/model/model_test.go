package model

import "testing"

func TestDictionary_RejectsReservedWords(t *testing.T) {
	d := NewDictionary()
	for _, w := range []string{"<s>", "</s>", "<sil>"} {
		if err := d.AddWord(w, []string{"SIL"}); err == nil {
			t.Errorf("expected error adding reserved word %q", w)
		}
	}
}

func TestDictionary_RejectsDuplicatePronunciation(t *testing.T) {
	d := NewDictionary()
	if err := d.AddWord("read", []string{"R", "IY", "D"}); err != nil {
		t.Fatalf("first AddWord: %v", err)
	}
	if err := d.AddWord("read", []string{"R", "EH", "D"}); err != nil {
		t.Fatalf("alternate pronunciation AddWord: %v", err)
	}
	if err := d.AddWord("read", []string{"R", "IY", "D"}); err == nil {
		t.Fatal("expected duplicate-pronunciation error")
	}
	if got := len(d.Pronunciations("read")); got != 2 {
		t.Fatalf("expected 2 pronunciations, got %d", got)
	}
}

func TestDictionary_WordsPreservesInsertionOrder(t *testing.T) {
	d := NewDictionary()
	d.AddWord("zebra", []string{"Z"})
	d.AddWord("apple", []string{"AE"})
	got := d.Words()
	if len(got) != 2 || got[0] != "zebra" || got[1] != "apple" {
		t.Fatalf("unexpected order: %v", got)
	}
}

func TestTables_RetainRelease(t *testing.T) {
	tbl := NewTables(nil, nil, nil, nil, NewDictionary(), NewDictionary())
	if got := tbl.Retain(); got != tbl {
		t.Fatal("Retain must return the same handle")
	}
	if c := tbl.Release(); c != 1 {
		t.Fatalf("expected refcount 1 after one retain + one release from 1, got %d", c)
	}
	if c := tbl.Release(); c != 0 {
		t.Fatalf("expected refcount 0, got %d", c)
	}
}

func TestTransitionMatrix_ImpossibleCostSentinel(t *testing.T) {
	if ImpossibleCost != 255 {
		t.Fatalf("ImpossibleCost must be 255, got %d", ImpossibleCost)
	}
}
