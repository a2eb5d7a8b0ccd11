package decoder

import (
	"fmt"

	"github.com/ReadAlongs/soundswallower-go/pkg/fsg"
	"github.com/ReadAlongs/soundswallower-go/pkg/model"
)

// arcKey identifies one phone-level arc in the expanded search graph, used
// as the lookup key the arc resolver closes over (§3 "arc resolver... wired
// from model tables").
type arcKey struct {
	From, To fsg.State
	Word     fsg.WordID
}

// phoneBinding is the resolved HMM parameters for one phone-level arc.
type phoneBinding struct {
	senones [3]model.SenoneID
	tmat    *model.TransitionMatrix
}

// internWord assigns a stable fsg.WordID to name, creating one on first use.
// Word ids are assigned in first-seen order; the FSG text format's numeric
// word field (§6, fsg.ReadText) refers to ids assigned this way, so callers
// loading a raw text FSG must pre-intern every dictionary word in a fixed
// order before reading it.
func (d *Decoder) internWord(name string) fsg.WordID {
	if id, ok := d.nameToID[name]; ok {
		return id
	}
	id := d.nextWordID
	d.nextWordID++
	d.nameToID[name] = id
	d.wordNames[id] = name
	return id
}

// wordName returns the interned name for id, or "" if unknown.
func (d *Decoder) wordName(id fsg.WordID) string {
	return d.wordNames[id]
}

// WordID implements [jsgf.WordTable]: every word token referenced by a JSGF
// grammar is interned into the decoder's word table on first reference.
func (d *Decoder) WordID(word string) fsg.WordID {
	return d.internWord(word)
}

// pronunciations returns word's pronunciations, checking the main
// dictionary first and falling back to the filler dictionary (§6 "filler
// words are looked up in fdict when fsgusefiller is set").
func (d *Decoder) pronunciations(word string) [][]string {
	if p := d.tables.Dict.Pronunciations(word); len(p) > 0 {
		return p
	}
	return d.tables.FillerDict.Pronunciations(word)
}

// numProns reports how many pronunciations a word id has, for
// [fsg.Graph.ExpandAlternatePronunciations].
func (d *Decoder) numProns(id fsg.WordID) int {
	name := d.wordName(id)
	if name == "" {
		return 1
	}
	return len(d.pronunciations(name))
}

// silencePhone approximates cross-word context at a word boundary: true
// cross-word triphone tracking is out of scope for this expansion pass, and
// [model.PhoneticModelDef.Resolve] already falls back gracefully to its
// context-independent entry when the exact context is not found, so a fixed
// silence placeholder is a safe stand-in rather than a correctness bug.
const silencePhone = "SIL"

// resolveTriphone looks up the senone triple and transition-matrix pointer
// for one phone occurrence, preferring the exact left/right context and
// falling back to the phonetic model's context-independent entry.
func (d *Decoder) resolveTriphone(base, left, right string, pos model.WordPosition) (phoneBinding, bool) {
	key := model.TriphoneKey{Base: base, Left: left, Right: right, WordPos: pos}
	senones, tmatID, ok := d.tables.PhoneDef.Resolve(key)
	if !ok {
		return phoneBinding{}, false
	}
	if int(tmatID) < 0 || int(tmatID) >= len(d.tables.TMats) {
		return phoneBinding{}, false
	}
	return phoneBinding{senones: senones, tmat: d.tables.TMats[tmatID]}, true
}

// expandToPhoneGraph builds a new phone-granularity [fsg.Graph] from a
// word-level graph, one interior state per extra phone in a word's chosen
// pronunciation. Only the final phone-arc of each word chain carries the
// real word id (preserving word-exit semantics for [search.Search]); every
// interior phone-arc carries a freshly allocated synthetic id, unique per
// occurrence so identical-looking interior arcs never collapse onto the
// same lattice node ([lattice.Build] keys nodes by (word, start-frame)).
//
// lw scales the arc's grammar log-probability, applied only once per word
// (on its first phone-arc) to avoid double counting across a multi-phone
// chain. pip is an additive per-phone-arc insertion penalty, already
// converted to the log domain by the caller.
func (d *Decoder) expandToPhoneGraph(word *fsg.Graph, lw float64, pip int32) (*fsg.Graph, map[arcKey]phoneBinding, error) {
	pg := fsg.New(word.Name, word.NumStates, word.Start)
	for s := range word.Final {
		pg.SetFinal(s)
	}
	resolver := make(map[arcKey]phoneBinding)
	d.syntheticWords = make(map[fsg.WordID]bool)

	for s := fsg.State(0); int(s) < word.NumStates; s++ {
		for _, arc := range word.Out(s) {
			if arc.Word == fsg.Epsilon {
				if err := pg.AddTransition(arc.From, arc.To, arc.LogProb, fsg.Epsilon); err != nil {
					return nil, nil, err
				}
				continue
			}
			if err := d.expandWordArc(pg, resolver, arc, lw, pip); err != nil {
				return nil, nil, err
			}
		}
	}
	pg.CloseEpsilons()
	return pg, resolver, nil
}

// expandWordArc expands one word-level arc into a chain of phone arcs
// appended to pg, registering each chain arc's HMM binding in resolver.
func (d *Decoder) expandWordArc(pg *fsg.Graph, resolver map[arcKey]phoneBinding, arc fsg.Arc, lw float64, pip int32) error {
	name := d.wordName(arc.Word)
	if name == "" {
		return fmt.Errorf("%w: grammar arc references unknown word id %d", ErrLexicon, arc.Word)
	}
	prons := d.pronunciations(name)
	if len(prons) == 0 {
		return fmt.Errorf("%w: word %q has no pronunciation in the dictionary", ErrLexicon, name)
	}
	idx := arc.PronIdx
	if idx >= len(prons) {
		idx = 0
	}
	phones := prons[idx]
	if len(phones) == 0 {
		return fmt.Errorf("%w: word %q has an empty pronunciation", ErrLexicon, name)
	}

	grammarWeight := int32(float64(arc.LogProb) * lw)

	cur := arc.From
	for i, ph := range phones {
		left, right := silencePhone, silencePhone
		if i > 0 {
			left = phones[i-1]
		}
		if i < len(phones)-1 {
			right = phones[i+1]
		}
		var pos model.WordPosition
		switch {
		case len(phones) == 1:
			pos = model.WordPosSingle
		case i == 0:
			pos = model.WordPosBegin
		case i == len(phones)-1:
			pos = model.WordPosEnd
		default:
			pos = model.WordPosInternal
		}

		binding, ok := d.resolveTriphone(ph, left, right, pos)
		if !ok {
			return fmt.Errorf("%w: no triphone entry for phone %q (word %q)", ErrLexicon, ph, name)
		}

		logProb := pip
		if i == 0 {
			logProb = saturateLogAdd(logProb, grammarWeight)
		}

		var next fsg.State
		var label fsg.WordID
		if i == len(phones)-1 {
			next = arc.To
			label = arc.Word
		} else {
			next = pg.AddState()
			label = d.nextSyntheticWord()
			d.syntheticWords[label] = true
		}

		if err := pg.AddTransition(cur, next, logProb, label); err != nil {
			return err
		}
		resolver[arcKey{From: cur, To: next, Word: label}] = binding
		cur = next
	}
	return nil
}

// nextSyntheticWord allocates a fresh word id reserved for an interior
// phone-chain arc, deliberately never reused across occurrences so that
// [lattice.Build] (which keys nodes by (word, start-frame)) never merges
// two unrelated interior arcs into the same node.
func (d *Decoder) nextSyntheticWord() fsg.WordID {
	id := d.nextWordID
	d.nextWordID++
	return id
}

// saturateLogAdd adds two log-domain scores without wrapping, matching the
// saturation discipline used throughout the search package.
func saturateLogAdd(a, b int32) int32 {
	const maxI32 = int64(1<<31 - 1)
	const minI32 = -maxI32 - 1
	r := int64(a) + int64(b)
	if r > maxI32 {
		return int32(maxI32)
	}
	if r < minI32 {
		return int32(minI32)
	}
	return int32(r)
}
