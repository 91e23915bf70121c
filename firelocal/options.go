package firelocal

import (
	"time"

	"github.com/firelocal/firelocal-go/internal/compression"
	"github.com/firelocal/firelocal-go/internal/logging"
	"github.com/firelocal/firelocal-go/internal/rules"
)

// CompressionType is an alias for the SST block compression codec.
type CompressionType = compression.Type

// Compression type constants, re-exported for callers constructing Options
// without importing internal/compression directly.
const (
	NoCompression     = compression.NoCompression
	SnappyCompression = compression.SnappyCompression
	LZ4Compression    = compression.LZ4Compression
	ZstdCompression   = compression.ZstdCompression
)

// RulesMode is an alias for the rules gate's no-rules-installed fallback.
type RulesMode = rules.DefaultMode

const (
	// RulesDenyAll rejects every operation until a rules document is
	// installed. Suitable for production.
	RulesDenyAll = rules.DenyAll
	// RulesAllowAll permits every operation until a rules document is
	// installed. Suitable only for local development.
	RulesAllowAll = rules.AllowAll
)

// Options configures an Engine at Open time. The zero value is not
// usable directly; start from DefaultOptions and override individual
// fields.
type Options struct {
	// MaxDocumentBytes is the maximum size, in bytes, of a single put's
	// payload. Default: 10 MiB.
	MaxDocumentBytes int

	// MaxPathBytes is the maximum length, in bytes, of a document path.
	// Default: 1024.
	MaxPathBytes int

	// FlushThresholdBytes is the memtable byte charge above which a put
	// or batch commit triggers a synchronous flush to a new SST.
	// Default: 4 MiB.
	FlushThresholdBytes int64

	// CompactionSSTThreshold is the live SST count above which a flush
	// triggers a compaction. Default: 10.
	CompactionSSTThreshold int

	// TxnRetryBound is the number of times RunTransaction retries a
	// conflicting transaction body before reporting TxnConflict.
	// Default: 3.
	TxnRetryBound int

	// RulesMode selects the rules gate's behavior when no rules document
	// has been installed via LoadRules. Default: RulesDenyAll.
	RulesMode RulesMode

	// RulesEvaluator, if set, is installed at Open in place of the
	// evaluator RulesMode would construct, for embedding a richer
	// Firestore-syntax evaluator in place of rules.StaticEvaluator. A later
	// LoadRules call replaces it with a rules.StaticEvaluator.
	RulesEvaluator rules.Evaluator

	// Compression is the codec applied to each SST's data region.
	// Default: SnappyCompression.
	Compression CompressionType

	// Logger receives structured lifecycle and background-work log
	// lines. Default: logging.Discard.
	Logger logging.Logger

	// Clock returns the current time, used for serverTimestamp field
	// values. Default: time.Now. Overridable for deterministic tests.
	Clock func() time.Time
}

// DefaultOptions returns the configuration an Engine opens with when no
// overrides are supplied.
func DefaultOptions() Options {
	return Options{
		MaxDocumentBytes:       10 * 1024 * 1024,
		MaxPathBytes:           1024,
		FlushThresholdBytes:    4 * 1024 * 1024,
		CompactionSSTThreshold: 10,
		TxnRetryBound:          3,
		RulesMode:              RulesDenyAll,
		Compression:            SnappyCompression,
		Logger:                 logging.Discard,
		Clock:                  time.Now,
	}
}

func (o *Options) fillDefaults() {
	d := DefaultOptions()
	if o.MaxDocumentBytes <= 0 {
		o.MaxDocumentBytes = d.MaxDocumentBytes
	}
	if o.MaxPathBytes <= 0 {
		o.MaxPathBytes = d.MaxPathBytes
	}
	if o.FlushThresholdBytes <= 0 {
		o.FlushThresholdBytes = d.FlushThresholdBytes
	}
	if o.CompactionSSTThreshold <= 0 {
		o.CompactionSSTThreshold = d.CompactionSSTThreshold
	}
	if o.TxnRetryBound <= 0 {
		o.TxnRetryBound = d.TxnRetryBound
	}
	if logging.IsNil(o.Logger) {
		o.Logger = d.Logger
	}
	if o.Clock == nil {
		o.Clock = d.Clock
	}
}
