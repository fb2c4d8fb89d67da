package journal

import (
	"context"
	"log/slog"
)

// SlogAdapter writes events to an slog.Logger at Info level.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a SlogAdapter writing to logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("event_id", event.ID.String()),
		slog.String("kind", event.Kind.String()),
	}
	if !event.TokenID.IsZero() {
		attrs = append(attrs, slog.String("token_id", event.TokenID.String()))
	}

	switch {
	case event.Transfer != nil:
		attrs = append(attrs,
			slog.String("from", event.Transfer.From.Hex()),
			slog.String("to", event.Transfer.To.Hex()),
		)
	case event.Approval != nil:
		attrs = append(attrs,
			slog.String("owner", event.Approval.Owner.Hex()),
			slog.String("approved", event.Approval.Approved.Hex()),
		)
	case event.Operator != nil:
		attrs = append(attrs,
			slog.String("owner", event.Operator.Owner.Hex()),
			slog.String("operator", event.Operator.Operator.Hex()),
			slog.Bool("approved", event.Operator.Approved),
		)
	case event.User != nil:
		attrs = append(attrs, slog.String("user", event.User.User.Hex()))
	}

	a.logger.LogAttrs(context.Background(), slog.LevelInfo, "credential event", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
