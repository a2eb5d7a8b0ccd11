package jsgf

import (
	"fmt"

	"github.com/ReadAlongs/soundswallower-go/pkg/fsg"
)

// compiler threads the growing [fsg.Graph] through a recursive descent
// over the parsed expansion tree, allocating a new state per join point.
type compiler struct {
	grammar *grammar
	words   WordTable
	g       *fsg.Graph
}

func (c *compiler) newState() fsg.State {
	return c.g.AddState()
}

// compileExpansion compiles exp starting at state from, returning the
// state reached after consuming exp. inStack holds the rules being
// expanded on the current path; any reference back to one of them is
// rejected, whether or not tokens are consumed before it.
func (c *compiler) compileExpansion(exp expansion, from fsg.State, inStack map[string]bool) (fsg.State, error) {
	switch exp.kind {
	case expWord:
		to := c.newState()
		if err := c.g.AddTransition(from, to, 0, c.words.WordID(exp.word)); err != nil {
			return 0, err
		}
		return to, nil

	case expRuleRef:
		r, ok := c.grammar.rules[exp.rule]
		if !ok {
			return 0, &ParseError{Msg: fmt.Sprintf("reference to undefined rule <%s>", exp.rule)}
		}
		if inStack[exp.rule] {
			return 0, &ParseError{Msg: fmt.Sprintf("unsupported left-recursive rule <%s>", exp.rule)}
		}
		inStack[exp.rule] = true
		to, err := c.compileExpansion(r.expansion, from, inStack)
		delete(inStack, exp.rule)
		return to, err

	case expSequence:
		cur := from
		var err error
		for _, item := range exp.items {
			cur, err = c.compileExpansion(item, cur, inStack)
			if err != nil {
				return 0, err
			}
		}
		return cur, nil

	case expAlternative:
		join := c.newState()
		for _, item := range exp.items {
			branchEnd, err := c.compileExpansion(item, from, inStack)
			if err != nil {
				return 0, err
			}
			if err := c.g.AddTransition(branchEnd, join, 0, fsg.Epsilon); err != nil {
				return 0, err
			}
		}
		return join, nil

	case expOptional:
		to, err := c.compileExpansion(exp.items[0], from, inStack)
		if err != nil {
			return 0, err
		}
		if err := c.g.AddTransition(from, to, 0, fsg.Epsilon); err != nil {
			return 0, err
		}
		return to, nil
	}
	return 0, &ParseError{Msg: "internal: unknown expansion kind"}
}
