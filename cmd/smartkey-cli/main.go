// Command smartkey-cli is an interactive SmartKey simulator.
//
// It runs an in-process credential registry with generated principals so the
// full credential lifecycle can be exercised from a prompt: minting, owner
// and user handshakes, delegated engagement, transfers and burning.
//
// Usage:
//
//	smartkey-cli [flags]
//
// Flags:
//
//	-log-level string  Log level: debug, info, warn, error (default "warn")
//	-script string     Run the commands of a file instead of prompting
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/smartkey-protocol/smartkey-go/cmd/smartkey-cli/interactive"
)

var (
	logLevel = flag.String("log-level", "warn", "Log level: debug, info, warn, error")
	script   = flag.String("script", "", "Run the commands of a file instead of prompting")
)

func main() {
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "smartkey-cli: invalid log level %q\n", *logLevel)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sim, err := newSimulation(os.Stderr, level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "smartkey-cli: %v\n", err)
		os.Exit(1)
	}

	if *script != "" {
		f, err := os.Open(*script)
		if err != nil {
			fmt.Fprintf(os.Stderr, "smartkey-cli: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		runScript(ctx, interactive.NewWithWriter(sim, os.Stdout), f)
		return
	}

	shell, err := interactive.New(sim)
	if err != nil {
		fmt.Fprintf(os.Stderr, "smartkey-cli: %v\n", err)
		os.Exit(1)
	}
	shell.Run(ctx, cancel)
}

func newSimulation(w io.Writer, level slog.Level) (*interactive.Simulation, error) {
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	return interactive.NewSimulation(logger)
}

// runScript executes r line by line, skipping comments.
func runScript(ctx context.Context, shell *interactive.Shell, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) > 0 && line[0] == '#' {
			continue
		}
		if ctx.Err() != nil || !shell.Exec(ctx, line) {
			return
		}
	}
}
