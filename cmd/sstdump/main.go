// Package main provides the sstdump CLI tool for inspecting a single SST
// file: its record count and records.
//
// Usage:
//
//	sstdump --file=<path> [--command=scan|check] [options]
//
// Reference: rockyardkv's cmd/sstdump.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"github.com/firelocal/firelocal-go/internal/sst"
)

var (
	filePath   = flag.String("file", "", "Path to the SST file (required)")
	command    = flag.String("command", "scan", "Command: scan, check")
	hexOutput  = flag.Bool("hex", false, "Output values in hex format")
	limit      = flag.Int("limit", 0, "Limit number of entries (0 = unlimited)")
	showValues = flag.Bool("values", true, "Show values in scan output")
	help       = flag.Bool("help", false, "Print help")
)

func main() {
	flag.Parse()

	if *help {
		printUsage()
		return
	}
	if *filePath == "" {
		fmt.Fprintln(os.Stderr, "Error: --file flag is required")
		printUsage()
		os.Exit(1)
	}

	var err error
	switch *command {
	case "scan":
		err = cmdScan()
	case "check":
		err = cmdCheck()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", *command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("sstdump - firelocal SST file inspection tool")
	fmt.Println()
	fmt.Println("Usage: sstdump --file=<path> [--command=<cmd>] [options]")
	fmt.Println()
	fmt.Println("Commands (--command):")
	fmt.Println("  scan    Scan all records in path order (default)")
	fmt.Println("  check   Verify the SST opens and its footer checksum validates")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
}

func formatValue(data []byte) string {
	if *hexOutput {
		return hex.EncodeToString(data)
	}
	for _, b := range data {
		if b < 32 || b > 126 {
			return hex.EncodeToString(data)
		}
	}
	return string(data)
}

func cmdScan() error {
	r, err := sst.Open(*filePath)
	if err != nil {
		return err
	}

	fmt.Printf("SST file: %s\n", *filePath)
	fmt.Printf("Records:  %d\n", r.Count())
	fmt.Println("---")

	count := 0
	r.Iter(func(rec sst.Record) bool {
		if *limit > 0 && count >= *limit {
			return false
		}
		if *showValues && rec.Kind.String() == "Put" {
			fmt.Printf("%-40s seq=%-8d %s = %s\n", rec.Path, rec.Sequence, rec.Kind, formatValue(rec.Value))
		} else {
			fmt.Printf("%-40s seq=%-8d %s\n", rec.Path, rec.Sequence, rec.Kind)
		}
		count++
		return true
	})

	fmt.Println("---")
	fmt.Printf("Scanned %d records\n", count)
	return nil
}

func cmdCheck() error {
	r, err := sst.Open(*filePath)
	if err != nil {
		fmt.Printf("INVALID: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("OK: %s (%d records)\n", *filePath, r.Count())
	return nil
}
