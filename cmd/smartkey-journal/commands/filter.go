package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/smartkey-protocol/smartkey-go/pkg/identity"
	"github.com/smartkey-protocol/smartkey-go/pkg/journal"
)

// FilterOptions holds the textual filter flags shared by the commands.
type FilterOptions struct {
	Kind      string
	TokenID   string
	Address   string
	TimeStart string
	TimeEnd   string
}

// Build parses the options into a journal filter.
func (o FilterOptions) Build() (journal.Filter, error) {
	var filter journal.Filter

	if o.Kind != "" {
		k, err := journal.ParseKind(o.Kind)
		if err != nil {
			return filter, err
		}
		filter.Kind = &k
	}

	if o.TokenID != "" {
		id, err := identity.ParseTokenID(o.TokenID)
		if err != nil {
			return filter, err
		}
		filter.TokenID = &id
	}

	if o.Address != "" {
		addr, err := identity.ParseAddress(o.Address)
		if err != nil {
			return filter, err
		}
		filter.Address = &addr
	}

	if o.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, o.TimeStart)
		if err != nil {
			return filter, fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}

	if o.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, o.TimeEnd)
		if err != nil {
			return filter, fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}

	return filter, nil
}

// RunFilter copies the events of path matching opts into output and returns
// how many were written.
func RunFilter(path, output string, opts FilterOptions) (int, error) {
	filter, err := opts.Build()
	if err != nil {
		return 0, err
	}

	reader, err := journal.NewFilteredReader(path, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to open journal: %w", err)
	}
	defer reader.Close()

	logger, err := journal.NewFileLogger(output)
	if err != nil {
		return 0, fmt.Errorf("failed to create output journal: %w", err)
	}
	defer logger.Close()

	count := 0
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, fmt.Errorf("failed to read event: %w", err)
		}
		logger.Log(event)
		count++
	}
	return count, nil
}
