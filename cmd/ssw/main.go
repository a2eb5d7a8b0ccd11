// Command ssw is a minimal command-line front end over the decoder
// package: load a configuration, install a grammar, decode one 16-bit PCM
// WAV file, and print the recognized words. The CLI itself is out of scope
// (§ Non-goals "no CLI/bindings layer"); this wrapper exists only to give
// the decoder package an entry point, carrying the same logging and
// error-reporting conventions as the rest of the module.
package main

import (
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/ReadAlongs/soundswallower-go/decoder"
	"github.com/ReadAlongs/soundswallower-go/pkg/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to a relaxed-JSON decoder configuration file")
	fsgPath := flag.String("fsg", "", "path to a text FSG grammar file (overrides the fsg option in -config)")
	jsgfPath := flag.String("jsgf", "", "path to a JSGF grammar file (overrides the jsgf option in -config)")
	topRule := flag.String("toprule", "", "top-level JSGF rule name, required with -jsgf")
	wavPath := flag.String("wav", "", "path to a 16-bit PCM WAV file to decode")
	logLevel := flag.String("loglevel", "info", "log level: debug, info, warn, error")
	flag.Parse()

	logger := newLogger(*logLevel)
	slog.SetDefault(logger)

	if *wavPath == "" {
		fmt.Fprintln(os.Stderr, "ssw: -wav is required")
		flag.Usage()
		return 2
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		return 1
	}
	if *fsgPath != "" {
		cfg.FSG = *fsgPath
		cfg.JSGF = ""
	} else if *jsgfPath != "" {
		cfg.JSGF = *jsgfPath
		cfg.TopRule = *topRule
		cfg.FSG = ""
	}

	slog.Info("ssw starting", "config", *configPath, "hmm", cfg.HMM, "dict", cfg.Dict, "wav", *wavPath)

	dec := decoder.New(logger, nil)
	if err := dec.Init(*cfg); err != nil {
		slog.Error("decoder init failed", "err", err)
		return 1
	}

	samples, sampRate, err := readWAV(*wavPath)
	if err != nil {
		slog.Error("failed to read wav file", "err", err, "path", *wavPath)
		return 1
	}
	if sampRate != 0 && cfg.SampRate != 0 && float64(sampRate) != cfg.SampRate {
		slog.Warn("wav sample rate does not match configuration", "wav_rate", sampRate, "configured_rate", cfg.SampRate)
	}

	ctx := context.Background()
	if err := dec.Start(); err != nil {
		slog.Error("decoder start failed", "err", err)
		return 1
	}
	if err := dec.Process(ctx, samples, true); err != nil {
		slog.Error("decoder process failed", "err", err)
		return 1
	}
	if err := dec.End(ctx); err != nil {
		slog.Error("decoder end failed", "err", err)
		return 1
	}

	hyp, err := dec.Hyp()
	if err != nil {
		slog.Error("no hypothesis produced", "err", err)
		return 1
	}
	fmt.Println(hyp)

	segs, err := dec.SegIter()
	if err != nil {
		slog.Error("failed to retrieve word segmentation", "err", err)
		return 1
	}
	for _, s := range segs {
		slog.Debug("segment", "word", s.Word, "start_frame", s.StartFrame, "end_frame", s.EndFrame, "ascore", s.AScore)
	}

	return 0
}

// loadConfig reads and parses path as relaxed JSON, or returns
// [config.Default] unmodified when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.Default()
		return &cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	return config.ParseRelaxedJSON(string(b))
}

// readWAV parses a canonical 16-bit PCM WAV file into float32 samples
// scaled to [-1, 1), returning the declared sample rate. No pack example
// wires a WAV-decoding library into its own go.mod (§2 "dropped
// dependencies"), so this one ambient concern is handled directly against
// the documented RIFF/WAVE layout rather than introducing an unrelated
// dependency for a single struct of header fields.
func readWAV(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	var riffHdr [12]byte
	if _, err := readFull(f, riffHdr[:]); err != nil {
		return nil, 0, fmt.Errorf("read RIFF header: %w", err)
	}
	if string(riffHdr[0:4]) != "RIFF" || string(riffHdr[8:12]) != "WAVE" {
		return nil, 0, errors.New("not a RIFF/WAVE file")
	}

	var (
		sampRate      uint32
		bitsPerSample uint16
		numChannels   uint16
		samples       []float32
	)
	for {
		var chunkHdr [8]byte
		if _, err := readFull(f, chunkHdr[:]); err != nil {
			break // EOF between chunks: done
		}
		id := string(chunkHdr[0:4])
		size := binary.LittleEndian.Uint32(chunkHdr[4:8])

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := readFull(f, body); err != nil {
				return nil, 0, fmt.Errorf("read fmt chunk: %w", err)
			}
			numChannels = binary.LittleEndian.Uint16(body[2:4])
			sampRate = binary.LittleEndian.Uint32(body[4:8])
			bitsPerSample = binary.LittleEndian.Uint16(body[14:16])
		case "data":
			if bitsPerSample != 16 {
				return nil, 0, fmt.Errorf("unsupported bits per sample %d (only 16-bit PCM is supported)", bitsPerSample)
			}
			body := make([]byte, size)
			if _, err := readFull(f, body); err != nil {
				return nil, 0, fmt.Errorf("read data chunk: %w", err)
			}
			samples = pcm16ToFloat(body, numChannels)
		default:
			if _, err := f.Seek(int64(size), os.SEEK_CUR); err != nil {
				return nil, 0, fmt.Errorf("skip chunk %q: %w", id, err)
			}
		}
		if size%2 == 1 {
			if _, err := f.Seek(1, os.SEEK_CUR); err != nil {
				break
			}
		}
	}
	if samples == nil {
		return nil, 0, errors.New("no data chunk found")
	}
	return samples, int(sampRate), nil
}

func readFull(f *os.File, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := f.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// pcm16ToFloat downmixes interleaved 16-bit PCM to mono float32 samples,
// averaging channels when the source is not already mono.
func pcm16ToFloat(body []byte, numChannels uint16) []float32 {
	if numChannels == 0 {
		numChannels = 1
	}
	frameBytes := int(numChannels) * 2
	numFrames := len(body) / frameBytes
	out := make([]float32, numFrames)
	for i := 0; i < numFrames; i++ {
		var sum int32
		for c := 0; c < int(numChannels); c++ {
			off := i*frameBytes + c*2
			sum += int32(int16(binary.LittleEndian.Uint16(body[off : off+2])))
		}
		out[i] = float32(sum) / float32(numChannels) / 32768.0
	}
	return out
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
