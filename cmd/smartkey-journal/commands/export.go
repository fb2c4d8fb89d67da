package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/smartkey-protocol/smartkey-go/pkg/journal"
)

// RunExport exports the matching events of path as jsonl or csv.
func RunExport(path, format, output string, opts FilterOptions) error {
	filter, err := opts.Build()
	if err != nil {
		return err
	}

	reader, err := journal.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer reader.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "jsonl":
		return exportJSONL(reader, w)
	case "csv":
		return exportCSV(reader, w)
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}
}

func exportJSONL(reader *journal.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := encoder.Encode(event); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
}

func exportCSV(reader *journal.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"id", "timestamp", "kind", "token_id", "from", "to", "owner", "counterparty", "approved"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		row := []string{
			event.ID.String(),
			event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
			event.Kind.String(),
			event.TokenID.String(),
			"", "", "", "", "",
		}
		switch {
		case event.Transfer != nil:
			row[4], row[5] = event.Transfer.From.Hex(), event.Transfer.To.Hex()
		case event.Approval != nil:
			row[6], row[7], row[8] = event.Approval.Owner.Hex(), event.Approval.Approved.Hex(), "true"
		case event.Operator != nil:
			row[6], row[7] = event.Operator.Owner.Hex(), event.Operator.Operator.Hex()
			row[8] = fmt.Sprintf("%t", event.Operator.Approved)
		case event.User != nil:
			row[7] = event.User.User.Hex()
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
}
