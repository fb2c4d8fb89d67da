// Package journal records the credential events of a SmartKey registry.
//
// Events are emitted after the store write of an operation succeeded, so a
// journal never contains an event for a rejected operation. The journal is
// separate from operational logging (slog): it is a machine-readable trace of
// ownership and usage changes that can be replayed by indexers and audit tools.
//
// # Basic Usage
//
//	// Development: print events through slog
//	cfg.Events = journal.NewSlogAdapter(slog.Default())
//
//	// Production: append to a binary file
//	cfg.Events, _ = journal.NewFileLogger("/var/lib/smartkey/events.sklog")
//
//	// Both
//	cfg.Events = journal.NewMultiLogger(
//	    journal.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # File Format
//
// Journal files are a concatenation of CBOR-encoded events with integer keys.
// The smartkey-journal tool views, summarises and exports them.
package journal
