// Package logmath implements the scaled negative-log-integer semiring used
// throughout the decoding pipeline for probabilities and scores.
//
// Probabilities are represented as integers logb_x = trunc(log_base(x)) >>
// shift (truncated toward zero, then shifted right), so that addition of probabilities becomes addition of logs via
// a precomputed lookup table, and comparison of probabilities is plain
// integer comparison (higher magnitude negative = less likely). The default
// base (1.0001) gives roughly 0.01% (about 0.0004 dB) of resolution per integer step,
// matching the "logbase" configuration option in §6 of the spec.
package logmath

import "math"

// Table holds the base, shift, and log-add lookup table shared by every
// score produced anywhere in the pipeline. A Table is immutable after
// construction and safe for concurrent read-only use by multiple decoders,
// matching the "shared immutably by all components" ownership rule for
// model tables.
type Table struct {
	base          float64
	logOfBase     float64
	log10OfBase   float64
	invLogOfBase  float64
	invLog10Base  float64
	shift         uint
	zero          int32
	add           []uint32 // log-add table, indexed by |logb_x - logb_y| >> shift
	width         int      // bytes represented by add (1, 2, or 4) — informational only in Go
}

// maxNegInt32 mirrors the C implementation's MAX_NEG_INT32 sentinel used to
// derive the "zero" (smallest representable) score.
const maxNegInt32 = math.MinInt32 + 1

// New builds a Table for the given log base and shift. base must be > 1.0.
// shift trades table resolution for smaller score magnitudes; 0 gives full
// resolution and is the default used by the decoder.
func New(base float64, shift uint) (*Table, error) {
	if base <= 1.0 {
		return nil, &ConfigError{Msg: "logmath: base must be greater than 1.0"}
	}
	t := &Table{
		base:         base,
		logOfBase:    math.Log(base),
		log10OfBase:  math.Log10(base),
		shift:        shift,
	}
	t.invLogOfBase = 1.0 / t.logOfBase
	t.invLog10Base = 1.0 / t.log10OfBase
	t.zero = int32(maxNegInt32) >> (shift + 2)
	t.buildAddTable()
	return t, nil
}

// ConfigError reports an invalid logmath configuration (§7 configuration
// error kind).
type ConfigError struct{ Msg string }

func (e *ConfigError) Error() string { return e.Msg }

// DefaultBase is the "logbase" default from §6 (1.0001).
const DefaultBase = 1.0001

// Default returns a full-resolution (shift=0) Table using [DefaultBase].
func Default() *Table {
	t, err := New(DefaultBase, 0)
	if err != nil {
		// DefaultBase is a compile-time constant known to be valid.
		panic(err)
	}
	return t
}

func (t *Table) buildAddTable() {
	// Determine how many entries are needed: the point where
	// log_base(1 + base^(y-x)) rounds to zero.
	byx := 1.0
	n := 0
	for {
		lobyx := math.Log(1.0+byx) * t.invLogOfBase
		k := int32(lobyx+0.5*float64(uint32(1)<<t.shift)) >> t.shift
		if k <= 0 {
			break
		}
		byx /= t.base
		n++
	}
	n >>= t.shift
	if n < 255 {
		n = 255
	}

	table := make([]uint32, n+1)
	byx = 1.0
	for i := 0; ; i++ {
		lobyx := math.Log(1.0+byx) * t.invLogOfBase
		k := int32(lobyx+0.5*float64(uint32(1)<<t.shift)) >> t.shift
		idx := i >> t.shift
		if idx < len(table) && table[idx] == 0 {
			table[idx] = uint32(k)
		}
		if k <= 0 {
			break
		}
		byx /= t.base
	}
	t.add = table
	t.width = 4
}

// Zero is the smallest representable score — the semiring's additive
// identity ("negative infinity").
func (t *Table) Zero() int32 { return t.zero }

// Add returns logb(base^x + base^y) given x = logb_x and y = logb_y, using
// the precomputed table. This is the hot-path operation used by the forward
// pass (§4.6) and mixture-weight combination (§4.3).
func (t *Table) Add(logbX, logbY int32) int32 {
	if logbX <= t.zero {
		return logbY
	}
	if logbY <= t.zero {
		return logbX
	}

	var d, r int32
	if logbX > logbY {
		d, r = logbX-logbY, logbX
	} else {
		d, r = logbY-logbX, logbY
	}
	if d < 0 {
		// Overflow: fail gracefully by returning the larger value.
		return r
	}
	if int(d) >= len(t.add) {
		// Table's last entry is guaranteed effectively zero.
		return r
	}
	return r + int32(t.add[d])
}

// AddExact computes the same quantity as Add without the lookup table, by
// going through floating point. Used for cross-checking and for callers
// that disable the table.
func (t *Table) AddExact(logbP, logbQ int32) int32 {
	return t.Log(t.Exp(logbP) + t.Exp(logbQ))
}

// Log converts a linear-domain probability p into the integer log domain.
func (t *Table) Log(p float64) int32 {
	if p <= 0 {
		return t.zero
	}
	return int32(math.Log(p)*t.invLogOfBase) >> t.shift
}

// Exp converts an integer log-domain score back into a linear probability.
func (t *Table) Exp(logbP int32) float64 {
	return math.Pow(t.base, float64(logbP<<t.shift))
}

// LnToLog converts a natural-log value into the integer log domain.
func (t *Table) LnToLog(lnP float64) int32 {
	return int32(lnP*t.invLogOfBase) >> t.shift
}

// LogToLn converts an integer log-domain score back to a natural-log value.
func (t *Table) LogToLn(logbP int32) float64 {
	return float64(logbP<<t.shift) * t.logOfBase
}

// Log10ToLog converts a base-10 log value into the integer log domain,
// matching configuration files (e.g. mixture weight floors) expressed in
// log10.
func (t *Table) Log10ToLog(log10P float64) int32 {
	return int32(log10P*t.invLog10Base) >> t.shift
}

// Compare reports whether score a represents a more likely event than
// score b. Scores are non-positive; a larger (closer to zero) score is more
// likely, matching the acoustic-scorer invariant "zero = best-active".
func Compare(a, b int32) bool { return a > b }
