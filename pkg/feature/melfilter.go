package feature

import "math"

// melFilter is one triangular mel-scale filter expressed over DFT power-
// spectrum bins [start, end], with per-bin weight computed from the
// filter's three anchor bins (§4.1 "mel filterbank").
type melFilter struct {
	start, end int
	left, center, right int
	unitArea   bool
	leftSlope, rightSlope float64
}

func (f melFilter) weight(bin int) float64 {
	var w float64
	switch {
	case bin <= f.center && f.center == f.left:
		w = 1
	case bin <= f.center:
		w = float64(bin-f.left) / float64(f.center-f.left)
	case f.center == f.right:
		w = 1
	default:
		w = float64(f.right-bin) / float64(f.right-f.center)
	}
	if f.unitArea && f.right > f.left {
		// Scale the unit-height triangle (area (right-left)/2) to unit area.
		w *= 2 / float64(f.right-f.left)
	}
	return w
}

func hzToMel(hz float64) float64 {
	return 2595.0 * math.Log10(1.0+hz/700.0)
}

func melToHz(mel float64) float64 {
	return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0)
}

// buildMelFilterbank precomputes nfilt triangular filters spanning
// [lowerf, upperf], with edges rounded to DFT bins unless disabled and an
// optional unit-area normalization (§4.1).
func buildMelFilterbank(cfg Config, fftSize int) []melFilter {
	nyquist := cfg.SampRate / 2
	upper := cfg.UpperF
	if upper <= 0 || upper > nyquist {
		upper = nyquist
	}
	lowerMel := hzToMel(cfg.LowerF)
	upperMel := hzToMel(upper)
	step := (upperMel - lowerMel) / float64(cfg.NumFilt+1)

	nBins := fftSize/2 + 1
	binHz := func(bin int) float64 { return float64(bin) * cfg.SampRate / float64(fftSize) }
	hzToBin := func(hz float64) int {
		b := int(hz*float64(fftSize)/cfg.SampRate + 0.5)
		if b < 0 {
			b = 0
		}
		if b >= nBins {
			b = nBins - 1
		}
		return b
	}

	filters := make([]melFilter, cfg.NumFilt)
	for i := 0; i < cfg.NumFilt; i++ {
		leftMel := lowerMel + float64(i)*step
		centerMel := lowerMel + float64(i+1)*step
		rightMel := lowerMel + float64(i+2)*step

		var left, center, right int
		if cfg.RoundBinsToDFT {
			left = hzToBin(melToHz(leftMel))
			center = hzToBin(melToHz(centerMel))
			right = hzToBin(melToHz(rightMel))
		} else {
			left = int(melToHz(leftMel) / binHz(1))
			center = int(melToHz(centerMel) / binHz(1))
			right = int(melToHz(rightMel) / binHz(1))
		}
		if center <= left {
			center = left + 1
		}
		if right <= center {
			right = center + 1
		}
		if right >= nBins {
			right = nBins - 1
		}
		filters[i] = melFilter{start: left, end: right, left: left, center: center, right: right, unitArea: cfg.UnitAreaFilters}
	}
	return filters
}
