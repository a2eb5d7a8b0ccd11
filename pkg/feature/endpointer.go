package feature

// Endpointer is a thin energy/zero-crossing-rate speech/non-speech
// classifier, recovered from `ps_endpointer.c` (not named in the
// distillation, SPEC_FULL §3 item 1). It does not touch the decode path;
// callers may optionally run it ahead of [Extractor.Process] to decide
// utterance boundaries on their own schedule.
type Endpointer struct {
	energyThresh float64
	zcrThresh    float64
	inSpeech     bool
	silenceRun   int
	hangoverN    int
}

// NewEndpointer builds an Endpointer with the given energy and
// zero-crossing-rate thresholds and a hangover frame count: the number of
// consecutive below-threshold frames required before declaring
// end-of-speech, smoothing over short dips.
func NewEndpointer(energyThresh, zcrThresh float64, hangoverFrames int) *Endpointer {
	return &Endpointer{energyThresh: energyThresh, zcrThresh: zcrThresh, hangoverN: hangoverFrames}
}

// Classify feeds one frame of samples and reports whether the endpointer
// considers the decoder to currently be inside a speech segment.
func (e *Endpointer) Classify(samples []float32) bool {
	if len(samples) == 0 {
		return e.inSpeech
	}
	var energy float64
	var crossings int
	for i, s := range samples {
		energy += float64(s) * float64(s)
		if i > 0 && (samples[i-1] >= 0) != (s >= 0) {
			crossings++
		}
	}
	energy /= float64(len(samples))
	zcr := float64(crossings) / float64(len(samples))

	isSpeechFrame := energy >= e.energyThresh && zcr <= e.zcrThresh
	if isSpeechFrame {
		e.inSpeech = true
		e.silenceRun = 0
	} else if e.inSpeech {
		e.silenceRun++
		if e.silenceRun >= e.hangoverN {
			e.inSpeech = false
		}
	}
	return e.inSpeech
}

// Reset clears accumulated state, used when starting a new utterance.
func (e *Endpointer) Reset() {
	e.inSpeech = false
	e.silenceRun = 0
}
