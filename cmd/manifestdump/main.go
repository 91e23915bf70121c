// Package main provides the manifestdump CLI tool for inspecting a
// firelocal MANIFEST file: its live SST ids, the active WAL segment, and
// the durable sequence watermark.
//
// Usage:
//
//	manifestdump <manifest-file>
//
// Reference: rockyardkv's cmd/manifestdump.
package main

import (
	"fmt"
	"os"

	"github.com/firelocal/firelocal-go/internal/manifest"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: manifestdump <manifest-file>")
		os.Exit(1)
	}

	m, ok, err := manifest.Load(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if !ok {
		fmt.Println("No manifest found (empty database directory)")
		return
	}

	fmt.Printf("WAL segment:       %s\n", m.WALSegment)
	fmt.Printf("Sequence watermark: %d\n", m.SequenceWatermark)
	fmt.Printf("Next SST id:       %d\n", m.NextSSTID)
	fmt.Printf("Live SSTs:         %d\n", len(m.LiveSSTIDs))
	for _, id := range m.LiveSSTIDs {
		fmt.Printf("  - %06d.sst\n", id)
	}
}
