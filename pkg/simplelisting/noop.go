package simplelisting

import (
	"context"
	"log/slog"
)

// NoopEventSink discards all events
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

func (n *NoopEventSink) ResourceCreated(ctx context.Context, kind string, doc *Document) error {
	return nil
}

func (n *NoopEventSink) ResourceUpdated(ctx context.Context, kind string, doc *Document) error {
	return nil
}

func (n *NoopEventSink) ResourceDeleted(ctx context.Context, kind string, id string) error {
	return nil
}

func (n *NoopEventSink) MediaUploaded(ctx context.Context, doc *Document) error {
	return nil
}

// LogEventSink writes events to a structured logger.
type LogEventSink struct {
	logger *slog.Logger
}

// NewLogEventSink creates a sink logging at info level. A nil logger uses
// slog.Default().
func NewLogEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEventSink{logger: logger}
}

func (l *LogEventSink) ResourceCreated(ctx context.Context, kind string, doc *Document) error {
	l.logger.InfoContext(ctx, "resource created", "kind", kind, "id", doc.ID, "owner", doc.Owner)
	return nil
}

func (l *LogEventSink) ResourceUpdated(ctx context.Context, kind string, doc *Document) error {
	l.logger.InfoContext(ctx, "resource updated", "kind", kind, "id", doc.ID)
	return nil
}

func (l *LogEventSink) ResourceDeleted(ctx context.Context, kind string, id string) error {
	l.logger.InfoContext(ctx, "resource deleted", "kind", kind, "id", id)
	return nil
}

func (l *LogEventSink) MediaUploaded(ctx context.Context, doc *Document) error {
	l.logger.InfoContext(ctx, "media uploaded", "id", doc.ID, "url", doc.String("url"))
	return nil
}
