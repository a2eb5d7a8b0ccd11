// Package jsgf implements a lightweight parser for the Java Speech Grammar
// Format, compiling a grammar's public rule to an [fsg.Graph] (§1 "Out of
// scope... JSGF text parser (produces an FSG the core consumes)" — carried
// as a SPEC_FULL domain-stack supplement so the module has a working
// `set_jsgf` path rather than treating the parser as an unimplemented
// external collaborator).
//
// Supported syntax: header comments, `grammar name;`, rule definitions
// `public? <rule> = expansion;`, sequences, `|` alternation, `(...)`
// grouping, `[...]` optional, and `<rule>` references. A rule that refers
// to itself, directly or through other rules, is rejected with an error.
// Weights and tags are not supported.
package jsgf

import (
	"fmt"

	"github.com/ReadAlongs/soundswallower-go/pkg/fsg"
)

// WordTable resolves a literal word token to an [fsg.WordID], so the
// compiled graph's arcs carry the same ids the dictionary and search use.
type WordTable interface {
	WordID(word string) fsg.WordID
}

// ParseError reports a JSGF syntax error (§6 "set_jsgf... parse error").
type ParseError struct{ Msg string }

func (e *ParseError) Error() string { return "jsgf: " + e.Msg }

// Compile parses text and compiles its public rule (toprule, or the
// grammar's sole public rule if toprule is empty) into an [fsg.Graph].
// Returns a [ParseError] on malformed syntax or an unknown rule reference,
// and an error wrapping "no public rule" if toprule is empty and more than
// one (or zero) public rules exist (§6 "no public rule").
func Compile(text string, toprule string, words WordTable) (*fsg.Graph, error) {
	p := newParser(text)
	grammar, err := p.parseGrammar()
	if err != nil {
		return nil, err
	}

	rule := toprule
	if rule == "" {
		var publicRules []string
		for name, r := range grammar.rules {
			if r.public {
				publicRules = append(publicRules, name)
			}
		}
		if len(publicRules) != 1 {
			return nil, &ParseError{Msg: fmt.Sprintf("no public rule: grammar declares %d public rules, toprule required", len(publicRules))}
		}
		rule = publicRules[0]
	}
	top, ok := grammar.rules[rule]
	if !ok || !top.public {
		return nil, &ParseError{Msg: fmt.Sprintf("unknown or non-public rule %q", rule)}
	}

	c := &compiler{grammar: grammar, words: words, g: fsg.New(grammar.name, 0, 0)}
	start := c.newState()
	c.g.Start = start
	end, err := c.compileExpansion(top.expansion, start, map[string]bool{})
	if err != nil {
		return nil, err
	}
	c.g.SetFinal(end)
	return c.g, nil
}

// rule is one parsed JSGF rule definition.
type rule struct {
	public     bool
	expansion  expansion
}

// grammar is the parsed top-level document.
type grammar struct {
	name  string
	rules map[string]*rule
}

// expansion is the parsed body of a rule: a tree of sequence/alternative/
// optional/word/ruleref nodes.
type expansion struct {
	kind  expKind
	items []expansion // sequence or alternative children
	word  string      // kind == expWord
	rule  string       // kind == expRuleRef
}

type expKind int

const (
	expSequence expKind = iota
	expAlternative
	expOptional
	expWord
	expRuleRef
)
