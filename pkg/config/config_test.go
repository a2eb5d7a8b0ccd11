package config

import (
	"strings"
	"testing"
)

func TestParseRelaxedJSON_UnquotedKeysNoBraces(t *testing.T) {
	cfg, err := ParseRelaxedJSON(`samprate: 8000, topn: 2,`)
	if err != nil {
		t.Fatalf("ParseRelaxedJSON: %v", err)
	}
	if cfg.SampRate != 8000 {
		t.Errorf("SampRate = %v, want 8000", cfg.SampRate)
	}
	if cfg.TopN != 2 {
		t.Errorf("TopN = %v, want 2", cfg.TopN)
	}
	// Untouched options retain their defaults.
	if cfg.FrameRate != Default().FrameRate {
		t.Errorf("FrameRate should remain default, got %v", cfg.FrameRate)
	}
}

func TestParseRelaxedJSON_StandardJSONStillWorks(t *testing.T) {
	cfg, err := ParseRelaxedJSON(`{"hmm": "/models/en-us", "beam": 1e-60}`)
	if err != nil {
		t.Fatalf("ParseRelaxedJSON: %v", err)
	}
	if cfg.HMM != "/models/en-us" {
		t.Errorf("HMM = %q", cfg.HMM)
	}
	if cfg.Beam != 1e-60 {
		t.Errorf("Beam = %v", cfg.Beam)
	}
}

func TestParseRelaxedJSON_RejectsUnknownOption(t *testing.T) {
	if _, err := ParseRelaxedJSON(`{"notarealoption": 1}`); err == nil {
		t.Fatal("expected ConfigError for unknown option")
	} else if _, ok := err.(*ConfigError); !ok {
		t.Fatalf("expected *ConfigError, got %T", err)
	}
}

func TestSerialize_AlwaysValidJSON(t *testing.T) {
	cfg := Default()
	s, err := Serialize(&cfg)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
		t.Fatalf("Serialize did not produce a JSON object: %s", s)
	}
	reparsed, err := ParseRelaxedJSON(s)
	if err != nil {
		t.Fatalf("round-trip parse failed: %v", err)
	}
	if reparsed.SampRate != cfg.SampRate || reparsed.Beam != cfg.Beam || reparsed.Dict != cfg.Dict {
		t.Fatal("round-trip did not preserve values")
	}
}

func TestSerialize_RoundTripsNonDefaultValues(t *testing.T) {
	cfg := Default()
	cfg.HMM = "/path/to/model"
	cfg.TopN = 8
	cfg.MMap = true
	s, err := Serialize(&cfg)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	reparsed, err := ParseRelaxedJSON(s)
	if err != nil {
		t.Fatalf("ParseRelaxedJSON: %v", err)
	}
	if reparsed.HMM != "/path/to/model" || reparsed.TopN != 8 || !reparsed.MMap {
		t.Fatalf("round-trip mismatch: %+v", reparsed)
	}
}

func TestIsKnownOption(t *testing.T) {
	if !IsKnownOption("hmm") {
		t.Error("hmm should be a known option")
	}
	if IsKnownOption("bogus") {
		t.Error("bogus should not be a known option")
	}
}

func TestSchemaNames_CoversEveryField(t *testing.T) {
	names := SchemaNames()
	if len(names) != len(optFields) {
		t.Fatalf("SchemaNames returned %d names, optFields has %d entries", len(names), len(optFields))
	}
}
