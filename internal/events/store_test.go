package events

import (
	"fmt"
	"testing"
)

func TestAppendAndList(t *testing.T) {
	s := NewStore()
	s.Append("s1", "transcript", map[string]any{"text": "hi"})
	s.Append("s1", "state", nil)
	s.Append("s2", "state", nil)

	if got := s.List("s1"); len(got) != 2 || got[0].Type != "transcript" {
		t.Fatalf("unexpected events %+v", got)
	}
	if got := s.List("s2"); len(got) != 1 {
		t.Fatalf("session isolation broken: %+v", got)
	}
}

func TestCapKeepsNewest(t *testing.T) {
	s := NewStore()
	for i := 0; i < 250; i++ {
		s.Append("s1", fmt.Sprintf("e%d", i), nil)
	}
	got := s.List("s1")
	if len(got) != 200 {
		t.Fatalf("expected cap of 200, got %d", len(got))
	}
	if got[len(got)-1].Type != "e249" {
		t.Fatalf("newest event missing: %s", got[len(got)-1].Type)
	}
}

func TestDrop(t *testing.T) {
	s := NewStore()
	s.Append("s1", "x", nil)
	s.Drop("s1")
	if len(s.List("s1")) != 0 {
		t.Fatal("journal should be gone after drop")
	}
}
