package feature

import "math"

// buildDCTMatrix precomputes the numCep x numFilt DCT-II matrix for the
// selected [Transform] variant (§4.1): legacy unnormalized, unitary
// orthogonal, or HTK-style with sqrt(2/N) scaling and a sqrt(1/2) factor on
// coefficient 0.
func buildDCTMatrix(t Transform, numFilt, numCep int) [][]float64 {
	m := make([][]float64, numCep)
	n := float64(numFilt)
	for c := 0; c < numCep; c++ {
		row := make([]float64, numFilt)
		for f := 0; f < numFilt; f++ {
			row[f] = math.Cos(math.Pi / n * (float64(f) + 0.5) * float64(c))
		}
		switch t {
		case TransformDCT:
			scale := math.Sqrt(2.0 / n)
			if c == 0 {
				scale = math.Sqrt(1.0 / n)
			}
			for f := range row {
				row[f] *= scale
			}
		case TransformHTK:
			scale := math.Sqrt(2.0 / n)
			if c == 0 {
				scale *= math.Sqrt(0.5)
			}
			for f := range row {
				row[f] *= scale
			}
		case TransformLegacy:
			// unnormalized: no scaling
		}
		m[c] = row
	}
	return m
}
