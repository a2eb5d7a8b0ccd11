package model

import (
	"fmt"
	"math"

	"github.com/ReadAlongs/soundswallower-go/pkg/logmath"
)

// ReadGaussianParams parses the means-or-variances binary format: header +
// n_mgau, n_feat, n_density, per-stream veclen, then flat float32 arrays in
// that order (§6). Means and variances share this layout, so readMgauFile
// parses each of the two files in turn.
func ReadGaussianParams(means, vars *Reader) (*GaussianParams, error) {
	nMgau, nFeat, nDensity, vecLen, flatMean, err := readMgauFile(means)
	if err != nil {
		return nil, fmt.Errorf("model: read means: %w", err)
	}
	nMgau2, nFeat2, nDensity2, vecLen2, flatVar, err := readMgauFile(vars)
	if err != nil {
		return nil, fmt.Errorf("model: read vars: %w", err)
	}
	if nMgau != nMgau2 || nFeat != nFeat2 || nDensity != nDensity2 {
		return nil, &ModelError{Msg: "means/variances shape mismatch"}
	}
	for i := range vecLen {
		if vecLen[i] != vecLen2[i] {
			return nil, &ModelError{Msg: "means/variances veclen mismatch"}
		}
	}

	g := &GaussianParams{
		NumCodebooks: nMgau,
		NumStreams:   nFeat,
		NumDensities: nDensity,
		VecLen:       vecLen,
	}
	g.Mean = unflatten(flatMean, nMgau, nFeat, nDensity, vecLen)
	g.Var = unflatten(flatVar, nMgau, nFeat, nDensity, vecLen)
	g.Det = computeDeterminants(g, 1e-4)
	return g, nil
}

func readMgauFile(r *Reader) (nMgau, nFeat, nDensity int, vecLen []int, flat []float32, err error) {
	a, err := r.ReadUint32()
	if err != nil {
		return 0, 0, 0, nil, nil, err
	}
	b, err := r.ReadUint32()
	if err != nil {
		return 0, 0, 0, nil, nil, err
	}
	c, err := r.ReadUint32()
	if err != nil {
		return 0, 0, 0, nil, nil, err
	}
	nMgau, nFeat, nDensity = int(a), int(b), int(c)
	vecLen = make([]int, nFeat)
	total := 0
	for s := 0; s < nFeat; s++ {
		v, err := r.ReadUint32()
		if err != nil {
			return 0, 0, 0, nil, nil, err
		}
		vecLen[s] = int(v)
		total += int(v)
	}
	// One flat array of length n_mgau*n_density*sum(veclen), consistent with
	// the "flat float32 arrays in that order" ordering from §6.
	flat, err = r.ReadFloat32s(nMgau * nDensity * total)
	return nMgau, nFeat, nDensity, vecLen, flat, err
}

func unflatten(flat []float32, nMgau, nFeat, nDensity int, vecLen []int) [][][][]float32 {
	out := make([][][][]float32, nMgau)
	idx := 0
	for m := 0; m < nMgau; m++ {
		out[m] = make([][][]float32, nFeat)
		for s := 0; s < nFeat; s++ {
			out[m][s] = make([][]float32, nDensity)
			for d := 0; d < nDensity; d++ {
				out[m][s][d] = flat[idx : idx+vecLen[s]]
				idx += vecLen[s]
			}
		}
	}
	return out
}

// computeDeterminants precomputes, for each codebook/stream/density, the
// normalizing constant used by the Mahalanobis distance: -0.5*(sum(log(max(var,floor))) + veclen*log(2*pi)).
func computeDeterminants(g *GaussianParams, floor float32) [][][]float32 {
	const twoPi = 6.283185307179586
	det := make([][][]float32, g.NumCodebooks)
	for m := 0; m < g.NumCodebooks; m++ {
		det[m] = make([][]float32, g.NumStreams)
		for s := 0; s < g.NumStreams; s++ {
			det[m][s] = make([]float32, g.NumDensities)
			for d := 0; d < g.NumDensities; d++ {
				var sum float64
				for _, v := range g.Var[m][s][d] {
					if v < floor {
						v = floor
					}
					sum += math.Log(float64(v))
				}
				sum += float64(len(g.Var[m][s][d])) * math.Log(twoPi)
				det[m][s][d] = float32(-0.5 * sum)
			}
		}
	}
	return det
}

// ReadMixtureWeights parses the mixture-weight binary format: header +
// n_sen, n_feat, n_density, n_floats=n_sen*n_feat*n_density, then float32;
// floored and converted to scaled negative-log 8-bit (§6).
func ReadMixtureWeights(r *Reader, lm *logmath.Table, floor float32, senCodebook []CodebookID) (*MixtureWeights, error) {
	a, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	b, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	c, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	nFloats, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	nSen, nFeat, nDensity := int(a), int(b), int(c)
	if int(nFloats) != nSen*nFeat*nDensity {
		return nil, &ModelError{Msg: "mixture weight file: n_floats does not match n_sen*n_feat*n_density"}
	}
	flat, err := r.ReadFloat32s(int(nFloats))
	if err != nil {
		return nil, err
	}

	mw := &MixtureWeights{
		NumSenones:  nSen,
		NumStreams:  nFeat,
		NumDensity:  nDensity,
		W:           make([][][]uint8, nSen),
		SenCodebook: senCodebook,
	}
	idx := 0
	for sen := 0; sen < nSen; sen++ {
		mw.W[sen] = make([][]uint8, nFeat)
		for s := 0; s < nFeat; s++ {
			// Normalize per (senone, stream): weights sum to 1 in linear
			// domain before quantization, matching the source's floor-then-
			// normalize discipline.
			row := flat[idx : idx+nDensity]
			idx += nDensity
			var sum float64
			for _, w := range row {
				if w < floor {
					w = floor
				}
				sum += float64(w)
			}
			mw.W[sen][s] = make([]uint8, nDensity)
			for d, w := range row {
				if w < floor {
					w = floor
				}
				p := float64(w) / sum
				logb := -lm.Log(p)
				if logb < 0 {
					logb = 0
				}
				if logb > 255 {
					logb = 255
				}
				mw.W[sen][s][d] = uint8(logb)
			}
		}
	}
	return mw, nil
}

// ReadTransitionMatrix parses the transition-matrix binary format: header +
// n_tmat, n_src, n_dst=n_src+1, n_floats; upper-triangular, single-step-
// skip-only topology enforced (§6, §7 "Model error... topology violation").
func ReadTransitionMatrix(r *Reader) ([]*TransitionMatrix, error) {
	a, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	b, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	c, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	nFloatsDecl, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	nTmat, nSrc, nDst := int(a), int(b), int(c)
	if nDst != nSrc+1 {
		return nil, &ModelError{Msg: "transition matrix: n_dst must equal n_src+1"}
	}
	if int(nFloatsDecl) != nTmat*nSrc*nDst {
		return nil, &ModelError{Msg: "transition matrix: n_floats mismatch"}
	}
	flat, err := r.ReadFloat32s(int(nFloatsDecl))
	if err != nil {
		return nil, err
	}

	out := make([]*TransitionMatrix, nTmat)
	idx := 0
	for t := 0; t < nTmat; t++ {
		tm := &TransitionMatrix{NumSrc: nSrc, NumDst: nDst}
		tm.Costs = make([][]uint8, nSrc)
		for s := 0; s < nSrc; s++ {
			tm.Costs[s] = make([]uint8, nDst)
			for d := 0; d < nDst; d++ {
				p := flat[idx]
				idx++
				if d < s {
					// Strictly upper-triangular: no back-arcs allowed.
					if p != 0 {
						return nil, &ModelError{Msg: "transition matrix: back-arc violates left-to-right topology"}
					}
					tm.Costs[s][d] = ImpossibleCost
					continue
				}
				if d > s+2 {
					// Single-step-skip-only: at most state s, s+1, or s+2
					// (the non-emitting exit) may follow state s.
					if p != 0 {
						return nil, &ModelError{Msg: "transition matrix: multi-step skip violates topology"}
					}
					tm.Costs[s][d] = ImpossibleCost
					continue
				}
				if p <= 0 {
					tm.Costs[s][d] = ImpossibleCost
				} else {
					cost := -math.Log(float64(p)) * 12.0 // crude fixed-point scale into [0,255]
					if cost > 255 {
						cost = 255
					}
					if cost < 0 {
						cost = 0
					}
					tm.Costs[s][d] = uint8(cost)
				}
			}
		}
		out[t] = tm
	}
	return out, nil
}
