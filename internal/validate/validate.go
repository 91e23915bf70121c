// Package validate implements the pre-checks the engine runs before
// consulting the rules gate or writing to the WAL: path syntax and size
// limits.
package validate

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

var segmentPattern = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)

var (
	// ErrEmptyPath is returned for an empty path.
	ErrEmptyPath = errors.New("validate: path must not be empty")
	// ErrPathTooLong is returned when a path exceeds the configured
	// maximum path length.
	ErrPathTooLong = errors.New("validate: path exceeds maximum length")
	// ErrInvalidSegment is returned when a path segment is empty or
	// contains characters outside [A-Za-z0-9_-].
	ErrInvalidSegment = errors.New("validate: path segment invalid")
	// ErrPayloadTooLarge is returned when a put payload exceeds the
	// configured maximum document size.
	ErrPayloadTooLarge = errors.New("validate: payload exceeds maximum document size")
)

// Path checks path against the document-path grammar: non-empty,
// slash-separated, no leading/trailing/double slashes, each segment
// matching [A-Za-z0-9_-]+, total length at most maxPathBytes. Callers
// pass Options.MaxPathBytes so one configured limit governs every path
// check, not a package-fixed default.
func Path(path string, maxPathBytes int) error {
	if path == "" {
		return ErrEmptyPath
	}
	if len(path) > maxPathBytes {
		return errors.Wrapf(ErrPathTooLong, "%d bytes", len(path))
	}
	if strings.HasPrefix(path, "/") || strings.HasSuffix(path, "/") {
		return errors.Wrap(ErrInvalidSegment, "leading or trailing slash")
	}
	for _, seg := range strings.Split(path, "/") {
		if !segmentPattern.MatchString(seg) {
			return errors.Wrapf(ErrInvalidSegment, "%q", seg)
		}
	}
	return nil
}

// Payload checks a put's payload size against maxBytes.
func Payload(payload []byte, maxBytes int) error {
	if len(payload) > maxBytes {
		return errors.Wrapf(ErrPayloadTooLarge, "%d bytes (max %d)", len(payload), maxBytes)
	}
	return nil
}

// RulesDocument checks an installed rules document's size against maxBytes.
func RulesDocument(text []byte, maxBytes int) error {
	if len(text) > maxBytes {
		return errors.Wrapf(ErrPayloadTooLarge, "rules document %d bytes (max %d)", len(text), maxBytes)
	}
	return nil
}
