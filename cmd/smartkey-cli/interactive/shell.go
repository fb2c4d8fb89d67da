// Package interactive provides the interactive shell of smartkey-cli.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/smartkey-protocol/smartkey-go/cmd/smartkey-journal/commands"
)

// Shell dispatches commands against a Simulation.
type Shell struct {
	sim *Simulation
	out io.Writer
	rl  *readline.Instance
}

// New creates a shell reading from the terminal.
func New(sim *Simulation) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "smartkey> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Shell{sim: sim, out: rl.Stdout(), rl: rl}, nil
}

// NewWithWriter creates a shell without a terminal that writes to out.
func NewWithWriter(sim *Simulation, out io.Writer) *Shell {
	return &Shell{sim: sim, out: out}
}

// Stdout returns a writer that does not interfere with the prompt.
func (s *Shell) Stdout() io.Writer {
	return s.out
}

// Run starts the interactive command loop.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) {
	defer s.rl.Close()

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.out, "Exiting...")
			cancel()
			return
		}

		if !s.Exec(ctx, line) {
			cancel()
			return
		}
	}
}

// Exec runs one command line. It returns false when the shell should exit.
func (s *Shell) Exec(ctx context.Context, line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return true
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		s.printHelp()
	case "principals", "who":
		s.cmdPrincipals()
	case "mint":
		s.cmdMint(ctx, args)
	case "pair-owner":
		s.cmdPair(ctx, args, "pair-owner <owner> <device>", s.sim.PairOwner, "owner")
	case "pair-user":
		s.cmdPair(ctx, args, "pair-user <user> <device>", s.sim.PairUser, "user")
	case "transfer":
		s.cmdTransfer(ctx, args)
	case "set-user":
		s.cmdSetUser(ctx, args)
	case "delegate":
		s.cmdDelegate(ctx, args)
	case "burn":
		s.cmdBurn(ctx, args)
	case "timeout":
		s.cmdTimeout(ctx, args)
	case "touch":
		s.cmdTouch(ctx, args)
	case "expired":
		s.cmdExpired(ctx, args)
	case "advance":
		s.cmdAdvance(args)
	case "show", "s":
		s.cmdShow(ctx, args)
	case "balance":
		s.cmdBalance(ctx, args)
	case "events":
		s.cmdEvents(args)
	case "quit", "exit", "q":
		fmt.Fprintln(s.out, "Exiting...")
		return false
	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return true
}

func completer() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("help"),
		readline.PcItem("principals"),
		readline.PcItem("mint"),
		readline.PcItem("pair-owner"),
		readline.PcItem("pair-user"),
		readline.PcItem("transfer"),
		readline.PcItem("set-user"),
		readline.PcItem("delegate"),
		readline.PcItem("burn"),
		readline.PcItem("timeout"),
		readline.PcItem("touch"),
		readline.PcItem("expired"),
		readline.PcItem("advance"),
		readline.PcItem("show"),
		readline.PcItem("balance"),
		readline.PcItem("events"),
		readline.PcItem("quit"),
	)
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, `
SmartKey Simulator Commands:
  Credentials:
    mint <device> <owner>             - Create a credential as the manufacturer
    pair-owner <owner> <device>       - Run the owner handshake
    transfer <from> <to> <device>     - Transfer ownership, acting as <from>
    burn <owner> <device>             - Destroy a credential

  Users:
    set-user <owner> <device> <user>  - Assign a user
    pair-user <user> <device>         - Run the user handshake
    delegate <user> <device>          - Engage the user with a signed request

  Sessions:
    timeout <owner> <device> <dur>    - Set the session timeout (e.g. 30m)
    touch <device>                    - Refresh the session timestamp
    expired <device>                  - Check whether the session expired
    advance <dur>                     - Move the simulated clock forward

  Inspection:
    show <device>                     - Show a credential
    balance <principal>               - Show owner and user balances
    events [n]                        - Show the last n events
    principals                        - List simulated principals

  General:
    help                              - Show this help
    quit                              - Exit

  Principals are named (e.g. alice, car1) and get a key on first use.`)
}

func (s *Shell) usage(text string) {
	fmt.Fprintf(s.out, "Usage: %s\n", text)
}

func (s *Shell) fail(err error) {
	fmt.Fprintf(s.out, "Error: %v\n", err)
}

func (s *Shell) cmdPrincipals() {
	fmt.Fprintln(s.out, "\nPrincipals:")
	fmt.Fprintln(s.out, "-------------------------------------------")
	for _, p := range s.sim.Principals() {
		fmt.Fprintf(s.out, "  %-14s %s\n", p.Name, p.Address.Hex())
	}
}

func (s *Shell) cmdMint(ctx context.Context, args []string) {
	if len(args) != 2 {
		s.usage("mint <device> <owner>")
		return
	}
	id, err := s.sim.Mint(ctx, args[0], args[1])
	if err != nil {
		s.fail(err)
		return
	}
	fmt.Fprintf(s.out, "Minted %s for %s (token %s)\n", args[0], args[1], id.Hex())
}

func (s *Shell) cmdPair(ctx context.Context, args []string, usage string, pair func(context.Context, string, string) error, role string) {
	if len(args) != 2 {
		s.usage(usage)
		return
	}
	if err := pair(ctx, args[0], args[1]); err != nil {
		s.fail(err)
		return
	}
	fmt.Fprintf(s.out, "%s engaged with %s as %s\n", args[1], args[0], role)
}

func (s *Shell) cmdTransfer(ctx context.Context, args []string) {
	if len(args) != 3 {
		s.usage("transfer <from> <to> <device>")
		return
	}
	if err := s.sim.Transfer(ctx, args[0], args[1], args[2]); err != nil {
		s.fail(err)
		return
	}
	fmt.Fprintf(s.out, "Transferred %s from %s to %s\n", args[2], args[0], args[1])
}

func (s *Shell) cmdSetUser(ctx context.Context, args []string) {
	if len(args) != 3 {
		s.usage("set-user <owner> <device> <user>")
		return
	}
	if err := s.sim.SetUser(ctx, args[0], args[1], args[2]); err != nil {
		s.fail(err)
		return
	}
	fmt.Fprintf(s.out, "Assigned %s as user of %s\n", args[2], args[1])
}

func (s *Shell) cmdDelegate(ctx context.Context, args []string) {
	if len(args) != 2 {
		s.usage("delegate <user> <device>")
		return
	}
	if err := s.sim.Delegate(ctx, args[0], args[1]); err != nil {
		s.fail(err)
		return
	}
	fmt.Fprintf(s.out, "%s engaged with %s as user\n", args[1], args[0])
}

func (s *Shell) cmdBurn(ctx context.Context, args []string) {
	if len(args) != 2 {
		s.usage("burn <owner> <device>")
		return
	}
	if err := s.sim.Burn(ctx, args[0], args[1]); err != nil {
		s.fail(err)
		return
	}
	fmt.Fprintf(s.out, "Burned %s\n", args[1])
}

func (s *Shell) cmdTimeout(ctx context.Context, args []string) {
	if len(args) != 3 {
		s.usage("timeout <owner> <device> <duration>")
		return
	}
	d, err := time.ParseDuration(args[2])
	if err != nil || d < 0 {
		fmt.Fprintf(s.out, "Invalid duration: %s\n", args[2])
		return
	}
	if err := s.sim.SetTimeout(ctx, args[0], args[1], d); err != nil {
		s.fail(err)
		return
	}
	fmt.Fprintf(s.out, "Timeout of %s set to %s\n", args[1], d)
}

func (s *Shell) cmdTouch(ctx context.Context, args []string) {
	if len(args) != 1 {
		s.usage("touch <device>")
		return
	}
	if err := s.sim.Touch(ctx, args[0]); err != nil {
		s.fail(err)
		return
	}
	fmt.Fprintf(s.out, "Session of %s refreshed\n", args[0])
}

func (s *Shell) cmdExpired(ctx context.Context, args []string) {
	if len(args) != 1 {
		s.usage("expired <device>")
		return
	}
	id, err := s.sim.TokenOf(args[0])
	if err != nil {
		s.fail(err)
		return
	}
	expired, err := s.sim.Registry().CheckTimeout(ctx, id)
	if err != nil {
		s.fail(err)
		return
	}
	fmt.Fprintf(s.out, "expired=%t\n", expired)
}

func (s *Shell) cmdAdvance(args []string) {
	if len(args) != 1 {
		s.usage("advance <duration>")
		return
	}
	d, err := time.ParseDuration(args[0])
	if err != nil || d < 0 {
		fmt.Fprintf(s.out, "Invalid duration: %s\n", args[0])
		return
	}
	now := s.sim.Advance(d)
	fmt.Fprintf(s.out, "Clock is now %s\n", now.Format(time.RFC3339))
}

func (s *Shell) cmdShow(ctx context.Context, args []string) {
	if len(args) != 1 {
		s.usage("show <device>")
		return
	}
	id, err := s.sim.TokenOf(args[0])
	if err != nil {
		s.fail(err)
		return
	}
	rec, err := s.sim.Registry().Record(ctx, id)
	if err != nil {
		s.fail(err)
		return
	}

	fmt.Fprintf(s.out, "\nCredential %s\n", id.Hex())
	fmt.Fprintln(s.out, "-------------------------------------------")
	fmt.Fprintf(s.out, "  Device:    %s\n", s.sim.NameOf(rec.Device))
	fmt.Fprintf(s.out, "  Owner:     %s\n", s.sim.NameOf(rec.Owner))
	fmt.Fprintf(s.out, "  User:      %s\n", s.sim.NameOf(rec.User))
	fmt.Fprintf(s.out, "  State:     %s\n", rec.State)
	if approved, err := s.sim.Registry().GetApproved(ctx, id); err == nil && !approved.IsZero() {
		fmt.Fprintf(s.out, "  Approved:  %s\n", s.sim.NameOf(approved))
	}
	if rec.Timestamp != 0 {
		fmt.Fprintf(s.out, "  Session:   %s\n", time.Unix(int64(rec.Timestamp), 0).UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(s.out, "  Timeout:   %s\n", time.Duration(rec.Timeout)*time.Second)
}

func (s *Shell) cmdBalance(ctx context.Context, args []string) {
	if len(args) != 1 {
		s.usage("balance <principal>")
		return
	}
	p, err := s.sim.Principal(args[0])
	if err != nil {
		s.fail(err)
		return
	}
	owned, err := s.sim.Registry().BalanceOf(ctx, p.Address)
	if err != nil {
		s.fail(err)
		return
	}
	used, err := s.sim.Registry().UserBalanceOf(ctx, p.Address)
	if err != nil {
		s.fail(err)
		return
	}
	fmt.Fprintf(s.out, "%s owns %d and uses %d\n", p.Name, owned, used)
}

func (s *Shell) cmdEvents(args []string) {
	events := s.sim.Events()
	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 {
			fmt.Fprintf(s.out, "Invalid count: %s\n", args[0])
			return
		}
		if n < len(events) {
			events = events[len(events)-n:]
		}
	}
	if len(events) == 0 {
		fmt.Fprintln(s.out, "No events")
		return
	}
	for _, e := range events {
		fmt.Fprintln(s.out, commands.FormatEvent(e))
	}
}
