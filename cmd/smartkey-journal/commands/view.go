package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/smartkey-protocol/smartkey-go/pkg/journal"
)

// RunView prints the events of path matching opts, one per line.
func RunView(path string, opts FilterOptions, w io.Writer) error {
	filter, err := opts.Build()
	if err != nil {
		return err
	}

	reader, err := journal.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		fmt.Fprintln(w, FormatEvent(event))
	}
}

// FormatEvent renders an event as a single human-readable line.
func FormatEvent(e journal.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-15s", e.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z"), e.Kind)
	if !e.TokenID.IsZero() {
		fmt.Fprintf(&b, " token=%s", e.TokenID.Hex())
	}
	b.WriteString(describePayload(e))
	return b.String()
}

func describePayload(e journal.Event) string {
	switch {
	case e.Transfer != nil:
		switch {
		case e.Transfer.From.IsZero():
			return fmt.Sprintf(" mint to=%s", e.Transfer.To)
		case e.Transfer.To.IsZero():
			return fmt.Sprintf(" burn from=%s", e.Transfer.From)
		default:
			return fmt.Sprintf(" from=%s to=%s", e.Transfer.From, e.Transfer.To)
		}
	case e.Approval != nil:
		return fmt.Sprintf(" owner=%s approved=%s", e.Approval.Owner, e.Approval.Approved)
	case e.Operator != nil:
		return fmt.Sprintf(" owner=%s operator=%s approved=%t", e.Operator.Owner, e.Operator.Operator, e.Operator.Approved)
	case e.User != nil:
		return fmt.Sprintf(" user=%s", e.User.User)
	default:
		return ""
	}
}
