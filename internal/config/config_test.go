package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/firelocal/firelocal-go/internal/compression"
	"github.com/firelocal/firelocal-go/internal/rules"
)

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("Load = %+v, want Default()", cfg)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "firelocal.yaml")
	doc := "max_document_bytes: 2048\nrules_mode: allow-all\ncompression: lz4\ntxn_retry_bound: 5\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxDocumentBytes != 2048 || cfg.RulesMode != "allow-all" || cfg.Compression != "lz4" || cfg.TxnRetryBound != 5 {
		t.Fatalf("Load = %+v", cfg)
	}
}

func TestResolveRejectsUnknownRulesMode(t *testing.T) {
	cfg := Default()
	cfg.RulesMode = "sometimes"
	if _, err := cfg.Resolve(); err == nil {
		t.Fatal("Resolve: want error for unknown rules_mode")
	}
}

func TestResolveMapsEnumsToTypedValues(t *testing.T) {
	cfg := Default()
	cfg.RulesMode = "allow-all"
	cfg.Compression = "zstd"

	v, err := cfg.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if v.RulesMode != rules.AllowAll {
		t.Fatalf("RulesMode = %v, want AllowAll", v.RulesMode)
	}
	if v.Compression != compression.ZstdCompression {
		t.Fatalf("Compression = %v, want ZstdCompression", v.Compression)
	}
	if v.Logger == nil {
		t.Fatal("Logger = nil, want a StructuredLogger")
	}
}
