package fsg

import (
	"bytes"
	"testing"
)

func buildLinearChain(words []WordID) *Graph {
	g := New("chain", len(words)+1, 0)
	for i, w := range words {
		g.AddTransition(State(i), State(i+1), 0, w)
	}
	g.SetFinal(State(len(words)))
	return g
}

func TestRoundTrip_Isomorphic(t *testing.T) {
	g := buildLinearChain([]WordID{1, 2, 3})

	var buf bytes.Buffer
	if err := g.WriteText(&buf); err != nil {
		t.Fatalf("WriteText: %v", err)
	}

	g2, err := ReadText(&buf)
	if err != nil {
		t.Fatalf("ReadText: %v", err)
	}

	if g2.NumStates != g.NumStates || g2.Start != g.Start {
		t.Fatalf("graph shape differs: states %d vs %d, start %d vs %d", g2.NumStates, g.NumStates, g2.Start, g.Start)
	}
	if len(g2.Final) != len(g.Final) {
		t.Fatalf("final state count differs: %d vs %d", len(g2.Final), len(g.Final))
	}
	for s := range g.Final {
		if !g2.IsFinal(s) {
			t.Fatalf("state %d final in original but not in round-tripped graph", s)
		}
	}
	for s := 0; s < g.NumStates; s++ {
		a1, a2 := g.Out(State(s)), g2.Out(State(s))
		if len(a1) != len(a2) {
			t.Fatalf("state %d: arc count differs: %d vs %d", s, len(a1), len(a2))
		}
		for i := range a1 {
			if a1[i].To != a2[i].To || a1[i].Word != a2[i].Word || a1[i].LogProb != a2[i].LogProb {
				t.Fatalf("state %d arc %d differs: %+v vs %+v", s, i, a1[i], a2[i])
			}
		}
	}
}

func TestCloseEpsilons_SkipsEpsilonChainAtRuntime(t *testing.T) {
	// 0 --eps--> 1 --word(5)--> 2(final)
	g := New("eps", 3, 0)
	g.AddTransition(0, 1, -10, Epsilon)
	g.AddTransition(1, 2, -20, 5)
	g.SetFinal(2)

	g.CloseEpsilons()

	found := false
	for _, a := range g.Out(0) {
		if a.Word == 5 && a.To == 2 {
			found = true
			if a.LogProb != -30 {
				t.Errorf("expected combined logprob -30, got %d", a.LogProb)
			}
		}
	}
	if !found {
		t.Fatal("expected state 0 to have a direct non-epsilon arc to state 2 after CloseEpsilons")
	}
}

func TestInsertSelfLoops_EveryState(t *testing.T) {
	g := buildLinearChain([]WordID{1})
	g.InsertSelfLoops([]WordID{100}, []int32{-5})
	for s := 0; s < g.NumStates; s++ {
		hasLoop := false
		for _, a := range g.Out(State(s)) {
			if a.From == a.To && a.Word == 100 {
				hasLoop = true
			}
		}
		if !hasLoop {
			t.Errorf("state %d missing silence/filler self-loop", s)
		}
	}
}

func TestExpandAlternatePronunciations(t *testing.T) {
	g := buildLinearChain([]WordID{7})
	g.ExpandAlternatePronunciations(func(w WordID) int {
		if w == 7 {
			return 2
		}
		return 1
	})
	var got []Arc
	for _, a := range g.Out(0) {
		if a.Word == 7 {
			got = append(got, a)
		}
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 parallel arcs for word 7, got %d", len(got))
	}
	if got[0].LogProb != got[1].LogProb {
		t.Errorf("alternate pronunciation arcs must share the original log-probability")
	}
}
