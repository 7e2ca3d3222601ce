package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kelpie.json")
	if err := os.WriteFile(path, []byte(`{"self":7,"listen_addr":":9000","backburner_workers":8}`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Self != 7 || cfg.ListenAddr != ":9000" || cfg.BackburnerWorkers != 8 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.BackburnerQueue != 256 {
		t.Fatalf("expected default queue size to survive, got %d", cfg.BackburnerQueue)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestValidateRejectsEmptyListenAddr(t *testing.T) {
	cfg := Default()
	cfg.ListenAddr = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation to reject an empty listen address")
	}
}

func TestValidateRejectsIncompleteIOM(t *testing.T) {
	cfg := Default()
	cfg.IOMs = []IOMConfig{{Name: "primary"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation to reject an IOM entry missing a driver")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Self = 3
	raw, err := cfg.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "kelpie.json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Self != cfg.Self {
		t.Fatalf("expected Self %d to round-trip, got %d", cfg.Self, got.Self)
	}
}
