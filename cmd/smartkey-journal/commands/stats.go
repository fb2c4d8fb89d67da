package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/smartkey-protocol/smartkey-go/pkg/identity"
	"github.com/smartkey-protocol/smartkey-go/pkg/journal"
)

// Stats holds aggregate statistics about a journal.
type Stats struct {
	TotalEvents  int
	EventsByKind map[journal.Kind]int
	Tokens       map[identity.TokenID]*TokenStats
	Minted       int
	Burned       int
	TimeRange    struct {
		Start time.Time
		End   time.Time
	}
}

// TokenStats holds statistics for a single credential.
type TokenStats struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
	Transfers int
	Owner     identity.Address
	Burned    bool
}

// CollectStats reads the whole journal at path.
func CollectStats(path string) (*Stats, error) {
	reader, err := journal.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByKind: make(map[journal.Kind]int),
		Tokens:       make(map[identity.TokenID]*TokenStats),
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}

		stats.TotalEvents++
		stats.EventsByKind[event.Kind]++

		if stats.TimeRange.Start.IsZero() || event.Timestamp.Before(stats.TimeRange.Start) {
			stats.TimeRange.Start = event.Timestamp
		}
		if event.Timestamp.After(stats.TimeRange.End) {
			stats.TimeRange.End = event.Timestamp
		}

		if event.Kind == journal.KindApprovalForAll {
			continue
		}
		tok, ok := stats.Tokens[event.TokenID]
		if !ok {
			tok = &TokenStats{FirstSeen: event.Timestamp}
			stats.Tokens[event.TokenID] = tok
		}
		tok.Events++
		tok.LastSeen = event.Timestamp

		if t := event.Transfer; t != nil {
			switch {
			case t.From.IsZero():
				stats.Minted++
			case t.To.IsZero():
				stats.Burned++
				tok.Burned = true
			default:
				tok.Transfers++
			}
			tok.Owner = t.To
		}
	}

	return stats, nil
}

// RunStats analyzes the journal and prints statistics.
func RunStats(path string, w io.Writer) error {
	stats, err := CollectStats(path)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== SmartKey Journal Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Millisecond))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintf(w, "Minted:       %d\n", stats.Minted)
	fmt.Fprintf(w, "Burned:       %d\n", stats.Burned)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Kind:")
	kinds := make([]journal.Kind, 0, len(stats.EventsByKind))
	for k := range stats.EventsByKind {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	for _, k := range kinds {
		fmt.Fprintf(w, "  %-15s %d\n", k, stats.EventsByKind[k])
	}

	if len(stats.Tokens) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Credentials:")
	ids := make([]identity.TokenID, 0, len(stats.Tokens))
	for id := range stats.Tokens {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Big().Cmp(ids[j].Big()) < 0 })
	for _, id := range ids {
		tok := stats.Tokens[id]
		status := "owner=" + tok.Owner.Hex()
		if tok.Burned {
			status = "burned"
		}
		fmt.Fprintf(w, "  %s events=%d transfers=%d %s\n", id.Hex(), tok.Events, tok.Transfers, status)
	}
}
