// Package feature implements the acoustic feature extractor (§4.1): PCM
// samples in, per-frame MFCC vectors out, with the overlap-buffer streaming
// discipline that lets a caller feed audio in arbitrary chunk sizes.
//
// The extractor owns no knowledge of the dynamic-feature composer (delta/
// double-delta/CMN, sibling package [dynamic]) or of scoring; it only turns
// samples into static cepstra.
package feature

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Transform selects the DCT variant applied to the log mel-filterbank
// energies (§4.1).
type Transform int

const (
	// TransformLegacy is the unnormalized DCT-II used by the original
	// Sphinx front end.
	TransformLegacy Transform = iota
	// TransformDCT is a unitary (orthogonal) DCT-II.
	TransformDCT
	// TransformHTK scales by √(2/N) with a √½ factor on coefficient 0,
	// matching HTK's MFCC convention.
	TransformHTK
)

// Config holds the feature-extraction options from §6 that the extractor
// applies; dither, seed and frequency warping are not among them.
type Config struct {
	SampRate  float64 // samprate, Hz
	FrameRate float64 // frate, frames/sec
	WindowLen float64 // wlen, seconds
	NFFT      int     // 0 = auto (next power of two >= frame size)
	Alpha     float64 // pre-emphasis coefficient
	NumCep    int     // ncep
	NumFilt   int     // nfilt
	LowerF    float64 // lowerf, Hz
	UpperF    float64 // upperf, Hz
	Transform Transform
	RemoveDC  bool
	LifterL   int // 0 disables liftering
	RoundBinsToDFT bool
	UnitAreaFilters bool
}

// DefaultConfig matches the defaults listed in §6.
func DefaultConfig() Config {
	return Config{
		SampRate:        16000,
		FrameRate:       100,
		WindowLen:       0.025625,
		Alpha:           0.97,
		NumCep:          13,
		NumFilt:         40,
		LowerF:          133.33,
		UpperF:          6855.5,
		Transform:       TransformLegacy,
		RoundBinsToDFT:  true,
		UnitAreaFilters: false,
	}
}

// ConfigError reports an invalid feature-extraction configuration (§7
// "Configuration error... reported synchronously from init").
type ConfigError struct{ Msg string }

func (e *ConfigError) Error() string { return "feature: " + e.Msg }

// Extractor turns a PCM sample stream into per-frame MFCC vectors.
type Extractor struct {
	cfg Config

	frameSize  int // samples per window
	frameShift int // samples per shift
	fftSize    int

	hamming []float64
	filters []melFilter
	dctMat  [][]float64

	fft *fourier.FFT

	overlap       []float64
	preemphPrior  float64
}

// New validates cfg and builds the precomputed window, filterbank, and DCT
// matrix. Returns a [ConfigError] for an unsupported sample rate, window, or
// FFT size (§4.1 "Failure").
func New(cfg Config) (*Extractor, error) {
	if cfg.SampRate <= 0 {
		return nil, &ConfigError{Msg: fmt.Sprintf("samprate must be positive, got %g", cfg.SampRate)}
	}
	if cfg.FrameRate <= 0 {
		return nil, &ConfigError{Msg: fmt.Sprintf("frate must be positive, got %g", cfg.FrameRate)}
	}
	if cfg.NumCep <= 0 || cfg.NumFilt <= 0 || cfg.NumCep > cfg.NumFilt {
		return nil, &ConfigError{Msg: "ncep must be positive and <= nfilt"}
	}

	frameSize := int(cfg.WindowLen*cfg.SampRate + 0.5)
	frameShift := int(cfg.SampRate/cfg.FrameRate + 0.5)
	if frameSize <= 0 || frameShift <= 0 {
		return nil, &ConfigError{Msg: "wlen/frate combination yields a non-positive frame size or shift"}
	}

	fftSize := cfg.NFFT
	if fftSize == 0 {
		fftSize = nextPow2(frameSize)
	}
	if fftSize < frameSize {
		return nil, &ConfigError{Msg: fmt.Sprintf("nfft %d smaller than frame size %d", fftSize, frameSize)}
	}

	e := &Extractor{
		cfg:        cfg,
		frameSize:  frameSize,
		frameShift: frameShift,
		fftSize:    fftSize,
		hamming:    hammingWindow(frameSize),
		fft:        fourier.NewFFT(fftSize),
	}
	e.filters = buildMelFilterbank(cfg, fftSize)
	e.dctMat = buildDCTMatrix(cfg.Transform, cfg.NumFilt, cfg.NumCep)
	e.Start()
	return e, nil
}

// NumCep reports the static feature vector length.
func (e *Extractor) NumCep() int { return e.cfg.NumCep }

// FrameShift reports the shift in samples between successive frames,
// i.e. the number of source-audio samples represented by one frame.
func (e *Extractor) FrameShift() int { return e.frameShift }

// Start resets the overlap buffer and pre-emphasis prior (§4.1 "start").
func (e *Extractor) Start() {
	e.overlap = e.overlap[:0]
	e.preemphPrior = 0
}

// FrameCount returns the number of full frames emittable from n accumulated
// samples given window size w and shift s (§4.1, §8 invariant 6):
// 1 + floor((n-w)/s) when n >= w, else 0.
func FrameCount(n, w, s int) int {
	if n < w {
		return 0
	}
	return 1 + (n-w)/s
}

// Process consumes samples (concatenated onto any retained overlap) and
// emits as many full frames as can be formed, retaining frame_size-frame_shift
// trailing samples plus any partial frame as the new overflow (§4.1
// "process"). fullUtterance is accepted for interface symmetry with
// [Extractor.End] but does not change per-call behavior.
func (e *Extractor) Process(samples []float32, fullUtterance bool) ([][]float64, error) {
	buf := make([]float64, 0, len(e.overlap)+len(samples))
	buf = append(buf, e.overlap...)
	for _, s := range samples {
		buf = append(buf, float64(s))
	}

	n := FrameCount(len(buf), e.frameSize, e.frameShift)
	out := make([][]float64, 0, n)
	for i := 0; i < n; i++ {
		start := i * e.frameShift
		frame := buf[start : start+e.frameSize]
		out = append(out, e.computeFrame(frame))
	}

	consumed := n * e.frameShift
	e.overlap = append(e.overlap[:0], buf[consumed:]...)
	return out, nil
}

// End flushes any remaining overflow, zero-padding to a full frame and
// emitting one final frame if any samples remain, then resets overflow
// state (§4.1 "end").
func (e *Extractor) End() ([][]float64, error) {
	var out [][]float64
	if len(e.overlap) > 0 {
		frame := make([]float64, e.frameSize)
		copy(frame, e.overlap)
		out = append(out, e.computeFrame(frame))
	}
	e.overlap = e.overlap[:0]
	e.preemphPrior = 0
	return out, nil
}

// computeFrame runs one window through pre-emphasis, optional DC removal,
// the Hamming window, zero-padded FFT, mel filterbank, log, DCT, and
// optional liftering (§4.1 "Per-frame algorithm").
func (e *Extractor) computeFrame(frame []float64) []float64 {
	pe := make([]float64, len(frame))
	prior := e.preemphPrior
	for i, x := range frame {
		pe[i] = x - e.cfg.Alpha*prior
		prior = x
	}
	// The sample carried forward to the next frame's pre-emphasis is the
	// true predecessor of that frame's first sample, not this frame's
	// last sample: frames overlap when frameSize > frameShift, so the
	// next frame starts frameShift samples after this one. Only a
	// short/partial final window (len(frame) < frameShift) falls back to
	// the last sample.
	if len(frame) >= e.frameShift {
		e.preemphPrior = frame[e.frameShift-1]
	} else {
		e.preemphPrior = prior
	}

	if e.cfg.RemoveDC {
		removeDC(pe)
	}

	for i := range pe {
		pe[i] *= e.hamming[i]
	}

	padded := make([]float64, e.fftSize)
	copy(padded, pe)

	coeffs := e.fft.Coefficients(nil, padded)
	power := make([]float64, len(coeffs))
	for i, c := range coeffs {
		power[i] = real(c)*real(c) + imag(c)*imag(c)
	}

	const logFloor = 1e-8
	logEnergies := make([]float64, len(e.filters))
	for i, mf := range e.filters {
		var sum float64
		for b := mf.start; b <= mf.end; b++ {
			sum += power[b] * mf.weight(b)
		}
		if sum < logFloor {
			sum = logFloor
		}
		logEnergies[i] = math.Log(sum)
	}

	cep := make([]float64, e.cfg.NumCep)
	for c := 0; c < e.cfg.NumCep; c++ {
		var sum float64
		for f := 0; f < e.cfg.NumFilt; f++ {
			sum += e.dctMat[c][f] * logEnergies[f]
		}
		cep[c] = sum
	}

	if e.cfg.LifterL > 0 {
		applyLifter(cep, e.cfg.LifterL)
	}
	return cep
}

func removeDC(frame []float64) {
	var mean float64
	for _, x := range frame {
		mean += x
	}
	mean /= float64(len(frame))
	for i := range frame {
		frame[i] -= mean
	}
}

func applyLifter(cep []float64, l int) {
	for i := range cep {
		w := 1.0 + float64(l)/2.0*math.Sin(float64(i)*math.Pi/float64(l))
		cep[i] *= w
	}
}

func hammingWindow(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
