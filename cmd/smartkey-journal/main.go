// Command smartkey-journal views and analyzes credential event journals.
//
// Journals are written by smartkey-server when journal.path is configured.
//
// Usage:
//
//	smartkey-journal <command> [flags] <journal.cbor>
//
// Commands:
//
//	view     View events in human-readable form
//	export   Export events to JSONL or CSV
//	filter   Filter events into a new journal
//	stats    Show statistics about the journal
//
// Examples:
//
//	# View the history of one credential
//	smartkey-journal view -token 0xc000000000000000000000000000000000000001 events.cbor
//
//	# Export every transfer as CSV
//	smartkey-journal export -kind Transfer -format csv events.cbor
//
//	# Keep only the events that mention an address
//	smartkey-journal filter -address 0x...a11c -o alice.cbor events.cbor
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/smartkey-protocol/smartkey-go/cmd/smartkey-journal/commands"
)

const usage = `smartkey-journal - SmartKey Event Journal Analyzer

Usage:
  smartkey-journal <command> [flags] <journal.cbor>

Commands:
  view     View events in human-readable form
  export   Export events to JSONL or CSV
  filter   Filter events into a new journal
  stats    Show statistics about the journal

Use "smartkey-journal <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

// newFlagSet builds a flag set with the shared filter flags bound to opts.
func newFlagSet(name, synopsis string, opts *commands.FilterOptions) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "smartkey-journal %s - %s\n\nUsage:\n  smartkey-journal %s [flags] <journal.cbor>\n\nFlags:\n", name, synopsis, name)
		fs.PrintDefaults()
	}
	if opts != nil {
		fs.StringVar(&opts.Kind, "kind", "", "Filter by event kind (Transfer, Approval, ApprovalForAll, OwnerEngaged, UserEngaged, UserAssigned)")
		fs.StringVar(&opts.TokenID, "token", "", "Filter by credential id (decimal or 0x hex)")
		fs.StringVar(&opts.Address, "address", "", "Filter by an address mentioned in the event")
		fs.StringVar(&opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
		fs.StringVar(&opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	}
	return fs
}

// journalPath parses args and returns the journal path argument.
func journalPath(fs *flag.FlagSet, args []string) string {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: journal file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func runView(args []string) {
	var opts commands.FilterOptions
	fs := newFlagSet("view", "View events in human-readable form", &opts)
	path := journalPath(fs, args)

	if err := commands.RunView(path, opts, os.Stdout); err != nil {
		fail(err)
	}
}

func runExport(args []string) {
	var opts commands.FilterOptions
	fs := newFlagSet("export", "Export events to JSONL or CSV", &opts)
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")
	path := journalPath(fs, args)

	if err := commands.RunExport(path, *format, *output, opts); err != nil {
		fail(err)
	}
}

func runFilter(args []string) {
	var opts commands.FilterOptions
	fs := newFlagSet("filter", "Filter events into a new journal", &opts)
	output := fs.String("o", "", "Output file (required)")
	path := journalPath(fs, args)

	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	n, err := commands.RunFilter(path, *output, opts)
	if err != nil {
		fail(err)
	}
	fmt.Printf("Filtered %d events to %s\n", n, *output)
}

func runStats(args []string) {
	fs := newFlagSet("stats", "Show statistics about the journal", nil)
	path := journalPath(fs, args)

	if err := commands.RunStats(path, os.Stdout); err != nil {
		fail(err)
	}
}
