package feature

import "testing"

func TestFrameCount_MatchesSpecFormula(t *testing.T) {
	cases := []struct{ n, w, s, want int }{
		{0, 400, 160, 0},
		{399, 400, 160, 0},
		{400, 400, 160, 1},
		{560, 400, 160, 2},
		{720, 400, 160, 3},
	}
	for _, c := range cases {
		if got := FrameCount(c.n, c.w, c.s); got != c.want {
			t.Errorf("FrameCount(%d,%d,%d) = %d, want %d", c.n, c.w, c.s, got, c.want)
		}
	}
}

func TestNew_RejectsBadSampleRate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SampRate = 0
	if _, err := New(cfg); err == nil {
		t.Fatal("expected ConfigError for zero samprate")
	}
}

func TestNew_RejectsNCepGreaterThanNFilt(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumCep = 100
	cfg.NumFilt = 40
	if _, err := New(cfg); err == nil {
		t.Fatal("expected ConfigError when ncep > nfilt")
	}
}

func TestProcess_EmitsExpectedFrameCount(t *testing.T) {
	cfg := DefaultConfig()
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	samples := make([]float32, e.frameSize+3*e.frameShift)
	frames, err := e.Process(samples, false)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	want := FrameCount(len(samples), e.frameSize, e.frameShift)
	if len(frames) != want {
		t.Fatalf("got %d frames, want %d", len(frames), want)
	}
	for _, f := range frames {
		if len(f) != cfg.NumCep {
			t.Fatalf("frame has %d coefficients, want %d", len(f), cfg.NumCep)
		}
	}
}

func TestEnd_FlushesPartialFrame(t *testing.T) {
	cfg := DefaultConfig()
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	partial := make([]float32, e.frameShift/2)
	if _, err := e.Process(partial, false); err != nil {
		t.Fatalf("Process: %v", err)
	}
	frames, err := e.End()
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("expected End to flush exactly one frame, got %d", len(frames))
	}
}

func TestEndpointer_DetectsSpeechAboveThreshold(t *testing.T) {
	ep := NewEndpointer(0.01, 1.0, 2)
	silence := make([]float32, 160)
	if ep.Classify(silence) {
		t.Fatal("expected non-speech on an all-zero frame")
	}
	loud := make([]float32, 160)
	for i := range loud {
		if i%2 == 0 {
			loud[i] = 1
		} else {
			loud[i] = -1
		}
	}
	if !ep.Classify(loud) {
		t.Fatal("expected speech on a high-energy frame")
	}
}
