// Package main provides the firelocal-cli tool for exercising a firelocal
// database directory from a shell: get, put, delete, batch, compact, and
// flush as line commands.
//
// Usage:
//
//	firelocal-cli --db=<path> [--config=<path>] <command> [args...]
//
// Commands:
//
//	get <path>                 Print a document's raw JSON value
//	put <path> <json>          Write a document
//	delete <path>              Remove a document
//	batch <op:path:json> ...   Apply set:/update:/delete: entries atomically
//	flush                      Force a memtable flush to a new SST
//	compact                    Force a compaction of all live SSTs
//
// Reference: rockyardkv's cmd/ldb.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/firelocal/firelocal-go/firelocal"
	"github.com/firelocal/firelocal-go/internal/config"
)

var (
	dbPath     = flag.String("db", "", "Path to the database directory (required)")
	configPath = flag.String("config", "", "Path to a YAML config file (optional)")
	help       = flag.Bool("help", false, "Print help")
)

func main() {
	flag.Parse()

	if *help || len(flag.Args()) == 0 {
		printUsage()
		return
	}
	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "Error: --db flag is required")
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	eng, err := openEngine()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer eng.Close()

	switch command {
	case "get":
		err = cmdGet(eng, args)
	case "put":
		err = cmdPut(eng, args)
	case "delete":
		err = cmdDelete(eng, args)
	case "batch":
		err = cmdBatch(eng, args)
	case "flush":
		err = eng.Flush()
	case "compact":
		err = eng.Compact()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("firelocal-cli - firelocal database inspection and mutation tool")
	fmt.Println()
	fmt.Println("Usage: firelocal-cli --db=<path> <command> [args...]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  get <path>                 Print a document's raw JSON value")
	fmt.Println("  put <path> <json>          Write a document")
	fmt.Println("  delete <path>              Remove a document")
	fmt.Println("  batch <op:path:json> ...   Apply set:/update:/delete: entries atomically")
	fmt.Println("  flush                      Force a memtable flush to a new SST")
	fmt.Println("  compact                    Force a compaction of all live SSTs")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
}

func openEngine() (*firelocal.Engine, error) {
	opts := firelocal.DefaultOptions()
	opts.RulesMode = firelocal.RulesAllowAll

	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			return nil, err
		}
		v, err := cfg.Resolve()
		if err != nil {
			return nil, err
		}
		opts.MaxDocumentBytes = v.MaxDocumentBytes
		opts.MaxPathBytes = v.MaxPathBytes
		opts.FlushThresholdBytes = v.FlushThresholdBytes
		opts.CompactionSSTThreshold = v.CompactionSSTThreshold
		opts.TxnRetryBound = v.TxnRetryBound
		opts.RulesMode = v.RulesMode
		opts.Compression = v.Compression
		opts.Logger = v.Logger
	}

	return firelocal.Open(*dbPath, opts)
}

func cmdGet(eng *firelocal.Engine, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: get <path>")
	}
	value, err := eng.Get(args[0])
	if err != nil {
		return err
	}
	if value == nil {
		fmt.Println("(not found)")
		return nil
	}
	fmt.Println(string(value))
	return nil
}

func cmdPut(eng *firelocal.Engine, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: put <path> <json>")
	}
	return eng.Put(args[0], []byte(args[1]))
}

func cmdDelete(eng *firelocal.Engine, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: delete <path>")
	}
	return eng.Delete(args[0])
}

// cmdBatch parses entries of the form "set:<path>:<json>",
// "update:<path>:<json>", or "delete:<path>" and applies them as a single
// atomic batch.
func cmdBatch(eng *firelocal.Engine, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: batch <op:path:json> ...")
	}

	b := eng.NewBatch()
	for _, arg := range args {
		parts := strings.SplitN(arg, ":", 3)
		switch parts[0] {
		case "set":
			if len(parts) != 3 {
				return fmt.Errorf("malformed set entry: %q", arg)
			}
			b.Set(parts[1], []byte(parts[2]))
		case "update":
			if len(parts) != 3 {
				return fmt.Errorf("malformed update entry: %q", arg)
			}
			b.Update(parts[1], []byte(parts[2]))
		case "delete":
			if len(parts) != 2 {
				return fmt.Errorf("malformed delete entry: %q", arg)
			}
			b.Delete(parts[1])
		default:
			return fmt.Errorf("unknown batch op %q in %q", parts[0], arg)
		}
	}
	return eng.CommitBatch(b)
}
