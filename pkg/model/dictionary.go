package model

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ParseDictionary reads the text pronunciation-dictionary format: one
// pronunciation per line, "word  phone1 phone2 ...", lines beginning with
// "#" or ";;" ignored, parenthesized alternates "word(2)" collapse to the
// base word for indexing (§6 "Dictionary").
func ParseDictionary(r io.Reader) (*Dictionary, error) {
	d := NewDictionary()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";;") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, &ModelError{Msg: fmt.Sprintf("dictionary line %d: expected word and at least one phone", lineNo)}
		}
		word := baseWord(fields[0])
		phones := fields[1:]
		if err := d.AddWord(word, phones); err != nil {
			// Alternate pronunciations ("word(2)") are expected to look like
			// duplicates of the base word's entry list only when the phones
			// truly repeat; propagate any other AddWord error (reserved
			// word, empty phone list) but let duplicate-phones-under-
			// different-parenthesized-index slide, since that is exactly
			// what "collapse to base word for indexing" means.
			if le, ok := err.(*LexiconError); ok && strings.Contains(le.Msg, "duplicate pronunciation") {
				continue
			}
			return nil, fmt.Errorf("dictionary line %d: %w", lineNo, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("model: scan dictionary: %w", err)
	}
	return d, nil
}

// baseWord strips a parenthesized alternate-pronunciation index, e.g.
// "read(2)" -> "read".
func baseWord(w string) string {
	if i := strings.IndexByte(w, '('); i >= 0 && strings.HasSuffix(w, ")") {
		return w[:i]
	}
	return w
}

// ParseFillerDictionary reads the filler/noise dictionary (`fdict`): the
// same line format as [ParseDictionary], except the reserved words "<s>",
// "</s>", and "<sil>" are expected here rather than rejected (§6
// "inserted implicitly from the filler dictionary").
func ParseFillerDictionary(r io.Reader) (*Dictionary, error) {
	d := NewDictionary()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";;") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, &ModelError{Msg: fmt.Sprintf("filler dictionary line %d: expected word and at least one phone", lineNo)}
		}
		if err := d.AddFillerWord(fields[0], fields[1:]); err != nil {
			if le, ok := err.(*LexiconError); ok && strings.Contains(le.Msg, "duplicate pronunciation") {
				continue
			}
			return nil, fmt.Errorf("filler dictionary line %d: %w", lineNo, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("model: scan filler dictionary: %w", err)
	}
	return d, nil
}
