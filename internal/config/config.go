// Package config loads firelocal.Options from a YAML file for the CLI
// tools. The engine itself never reads this package; Open always takes
// an Options value directly, per the "no runtime environment reach-back"
// rule the core follows.
package config

import (
	"os"

	"github.com/goccy/go-yaml"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/firelocal/firelocal-go/internal/compression"
	"github.com/firelocal/firelocal-go/internal/logging"
	"github.com/firelocal/firelocal-go/internal/rules"
)

// Config is the on-disk shape of a firelocal node's configuration. Field
// names mirror firelocal.Options; Clock has no YAML representation, and
// Resolve builds Logger from LogLevel.
type Config struct {
	MaxDocumentBytes       int    `yaml:"max_document_bytes"`
	MaxPathBytes           int    `yaml:"max_path_bytes"`
	FlushThresholdBytes    int64  `yaml:"flush_threshold_bytes"`
	CompactionSSTThreshold int    `yaml:"compaction_sst_threshold"`
	TxnRetryBound          int    `yaml:"txn_retry_bound"`
	RulesMode              string `yaml:"rules_mode"`
	Compression            string `yaml:"compression"`
	LogLevel               string `yaml:"log_level"`
}

// Default returns the baseline configuration, mirroring
// firelocal.DefaultOptions field for field.
func Default() Config {
	return Config{
		MaxDocumentBytes:       10 * 1024 * 1024,
		MaxPathBytes:           1024,
		FlushThresholdBytes:    4 * 1024 * 1024,
		CompactionSSTThreshold: 10,
		TxnRetryBound:          3,
		RulesMode:              "deny-all",
		Compression:            "snappy",
		LogLevel:               "info",
	}
}

// Load reads and parses a YAML configuration file. A missing file is not
// an error: it returns Default().
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, errors.Wrapf(err, "reading config %s", path)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parsing config %s", path)
	}
	return cfg, nil
}

// Options fields the firelocal package itself owns (Options,
// DefaultOptions, RulesMode, CompressionType) are re-declared here with
// matching shapes to avoid an import cycle: internal/config cannot import
// the firelocal package, since firelocal depends on internal/rules and
// internal/compression directly. Callers in cmd/ convert with Resolve.

// OptionsValues is the plain-data subset of firelocal.Options that YAML
// can express. The CLI tools assign these fields onto a firelocal.Options
// they construct from firelocal.DefaultOptions.
type OptionsValues struct {
	MaxDocumentBytes       int
	MaxPathBytes           int
	FlushThresholdBytes    int64
	CompactionSSTThreshold int
	TxnRetryBound          int
	RulesMode              rules.DefaultMode
	Compression            compression.Type
	Logger                 logging.Logger
}

// Resolve converts the YAML-shaped Config into typed option values,
// rejecting unknown enum strings.
func (c Config) Resolve() (OptionsValues, error) {
	var v OptionsValues
	v.MaxDocumentBytes = c.MaxDocumentBytes
	v.MaxPathBytes = c.MaxPathBytes
	v.FlushThresholdBytes = c.FlushThresholdBytes
	v.CompactionSSTThreshold = c.CompactionSSTThreshold
	v.TxnRetryBound = c.TxnRetryBound

	switch c.RulesMode {
	case "", "deny-all":
		v.RulesMode = rules.DenyAll
	case "allow-all":
		v.RulesMode = rules.AllowAll
	default:
		return v, errors.Errorf("config: unknown rules_mode %q", c.RulesMode)
	}

	switch c.Compression {
	case "", "snappy":
		v.Compression = compression.SnappyCompression
	case "none":
		v.Compression = compression.NoCompression
	case "lz4":
		v.Compression = compression.LZ4Compression
	case "zstd":
		v.Compression = compression.ZstdCompression
	default:
		return v, errors.Errorf("config: unknown compression %q", c.Compression)
	}

	level, err := logrus.ParseLevel(orDefault(c.LogLevel, "info"))
	if err != nil {
		return v, errors.Wrapf(err, "config: log_level %q", c.LogLevel)
	}
	v.Logger = logging.NewStructuredLogger(logrus.StandardLogger(), level, "firelocal")

	return v, nil
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
