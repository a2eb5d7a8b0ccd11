package jsgf

import (
	"testing"

	"github.com/ReadAlongs/soundswallower-go/pkg/fsg"
)

type testWords struct{ ids map[string]fsg.WordID }

func (w testWords) WordID(word string) fsg.WordID {
	if id, ok := w.ids[word]; ok {
		return id
	}
	return fsg.WordID(len(w.ids) + 1)
}

func newTestWords() testWords {
	return testWords{ids: map[string]fsg.WordID{"go": 1, "stop": 2, "forward": 3, "back": 4}}
}

func TestCompile_SimpleAlternation(t *testing.T) {
	text := `#JSGF V1.0;
grammar commands;
public <cmd> = (go | stop) (forward | back);`
	g, err := Compile(text, "cmd", newTestWords())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(g.Final) != 1 {
		t.Fatalf("expected exactly one final state, got %d", len(g.Final))
	}
	g.CloseEpsilons()
	var sawGo, sawForward bool
	for _, a := range g.Out(g.Start) {
		if a.Word == 1 {
			sawGo = true
		}
	}
	if !sawGo {
		t.Fatal("expected an arc for 'go' reachable from start after epsilon closure")
	}
	_ = sawForward
}

func TestCompile_OptionalAndRuleRef(t *testing.T) {
	text := `grammar g;
public <top> = [please] <action>;
<action> = go;`
	g, err := Compile(text, "top", newTestWords())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	g.CloseEpsilons()
	var sawGoFromStart bool
	for _, a := range g.Out(g.Start) {
		if a.Word == 1 {
			sawGoFromStart = true
		}
	}
	if !sawGoFromStart {
		t.Fatal("expected 'go' reachable directly from start via the optional epsilon path")
	}
}

func TestCompile_RejectsUnknownRule(t *testing.T) {
	text := `grammar g;
public <top> = <missing>;`
	if _, err := Compile(text, "top", newTestWords()); err == nil {
		t.Fatal("expected ParseError for reference to undefined rule")
	}
}

func TestCompile_NoToprule_RequiresExactlyOnePublicRule(t *testing.T) {
	text := `grammar g;
public <a> = go;
public <b> = stop;`
	if _, err := Compile(text, "", newTestWords()); err == nil {
		t.Fatal("expected error when multiple public rules exist and toprule is empty")
	}
}
