package dynamic

import "testing"

func constFrames(n, ceplen int, v float64) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		f := make([]float64, ceplen)
		for j := range f {
			f[j] = v
		}
		out[i] = f
	}
	return out
}

func TestComposer_NoneMode_ConstantInputHasZeroDeltas(t *testing.T) {
	c, err := New(Config{CepLen: 3, CMN: CMNNone})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	frames := constFrames(10, 3, 1.0)
	out, err := c.Process(frames, false)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	end, err := c.End()
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	out = append(out, end...)
	if len(out) != 10 {
		t.Fatalf("expected 10 emitted vectors, got %d", len(out))
	}
	for _, v := range out {
		for i := 3; i < 9; i++ {
			if v[i] != 0 {
				t.Fatalf("expected zero delta/double-delta on constant input, got %v at %d", v[i], i)
			}
		}
	}
}

func TestComposer_BatchMode_HoldsUntilFullUtterance(t *testing.T) {
	c, err := New(Config{CepLen: 2, CMN: CMNBatch})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	frames := constFrames(5, 2, 2.0)
	out, err := c.Process(frames, false)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("batch mode must not emit before fullUtterance, got %d vectors", len(out))
	}
	out, err = c.Process(nil, true)
	if err != nil {
		t.Fatalf("Process(full): %v", err)
	}
	if len(out) != 5 {
		t.Fatalf("expected 5 vectors after full-utterance flush, got %d", len(out))
	}
	// Mean-subtracted constant input should yield all-zero static output.
	for i := 0; i < 2; i++ {
		if out[0][i] != 0 {
			t.Errorf("expected zero static coefficient after batch CMN, got %v", out[0][i])
		}
	}
}

func TestComposer_StallsWhenGrowthDisabledAndFull(t *testing.T) {
	c, err := New(Config{CepLen: 2, CMN: CMNNone, RingCapacity: 3, GrowBuffer: false})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := c.Process(constFrames(5, 2, 1.0), false)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected stall (no frames produced) when over capacity, got %d", len(out))
	}
}

func TestComposer_OutputSize(t *testing.T) {
	c, err := New(Config{CepLen: 13, CMN: CMNNone})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.OutputSize(); got != 39 {
		t.Fatalf("OutputSize() = %d, want 39", got)
	}
}
