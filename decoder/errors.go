// Package decoder wires the log-semiring, model tables, feature extractor,
// dynamic-feature composer, acoustic scorer, FSG search and word lattice
// into the lifecycle API of §6: init/reinit, set_fsg/set_jsgf/add_word,
// start/process/end, and hyp/seg_iter/nbest/lattice retrieval.
//
// The core owns no global state: every call hangs off a *Decoder value
// built by [New], following design note "Global log/error sink -> replace
// with a callback registered on the decoder."
package decoder

import "errors"

// Sentinel error kinds, matching the taxonomy of §7 "Error handling
// design" (kinds, not type names). Every error returned by this package
// wraps exactly one of these via %w, checkable with errors.Is.
var (
	// ErrConfiguration reports an unknown option, an out-of-range value, a
	// missing required file, or an incompatible sample rate — reported
	// synchronously from init/reinit, never mid-utterance.
	ErrConfiguration = errors.New("decoder: configuration error")

	// ErrModel reports a malformed model file, a checksum mismatch, or a
	// transition-matrix topology violation. Fatal at load: the decoder that
	// produced it is not usable and must be recreated.
	ErrModel = errors.New("decoder: model error")

	// ErrLexicon reports a word with an unknown/unresolvable phone on
	// add_word or set_fsg/set_jsgf, or a pronunciation collision. Other
	// state is unaffected.
	ErrLexicon = errors.New("decoder: lexicon error")

	// ErrState reports an operation invoked in a lifecycle state that does
	// not permit it (e.g. process before start). State is unchanged.
	ErrState = errors.New("decoder: state error")

	// ErrSaturation reports a resource limit reached at runtime: the
	// feature ring full with growth disabled, or the backpointer table at
	// its implementation cap. (Active-HMM count exceeding maxhmmpf is
	// handled silently by adaptive beam narrowing and is not an error.)
	ErrSaturation = errors.New("decoder: resource saturation")
)
