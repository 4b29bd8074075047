// Package nats publishes resource lifecycle events to NATS subjects of the
// form {prefix}.{kind}.{created|updated|deleted} and {prefix}.media.uploaded.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"github.com/tendant/simple-listing/pkg/simplelisting"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "listing"

// Publisher is the subset of *nats.Conn used by the sink.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Event is the JSON body of every published message.
type Event struct {
	Type       string                  `json:"type"`
	Kind       string                  `json:"kind"`
	ID         string                  `json:"id"`
	Owner      string                  `json:"owner,omitempty"`
	OccurredAt time.Time               `json:"occurredAt"`
	Document   *simplelisting.Document `json:"document,omitempty"`
}

// Sink implements simplelisting.EventSink on a NATS connection.
type Sink struct {
	pub    Publisher
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

// New creates a sink publishing through pub.
func New(pub Publisher, prefix string, logger *slog.Logger) *Sink {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{pub: pub, prefix: prefix, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Connect dials url and returns a sink on the new connection. The caller
// owns the connection and should drain it on shutdown.
func Connect(url, prefix string, logger *slog.Logger) (*Sink, *natsgo.Conn, error) {
	conn, err := natsgo.Connect(url,
		natsgo.Name("simple-listing"),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to nats: %w", err)
	}
	return New(conn, prefix, logger), conn, nil
}

func (s *Sink) ResourceCreated(ctx context.Context, kind string, doc *simplelisting.Document) error {
	return s.publish(ctx, kind, "created", Event{Kind: kind, ID: doc.ID, Owner: doc.Owner, Document: doc})
}

func (s *Sink) ResourceUpdated(ctx context.Context, kind string, doc *simplelisting.Document) error {
	return s.publish(ctx, kind, "updated", Event{Kind: kind, ID: doc.ID, Owner: doc.Owner, Document: doc})
}

func (s *Sink) ResourceDeleted(ctx context.Context, kind string, id string) error {
	return s.publish(ctx, kind, "deleted", Event{Kind: kind, ID: id})
}

func (s *Sink) MediaUploaded(ctx context.Context, doc *simplelisting.Document) error {
	return s.publish(ctx, "media", "uploaded", Event{Kind: simplelisting.KindMedia, ID: doc.ID, Owner: doc.Owner, Document: doc})
}

// Subject returns the subject events of type typ on kind are published to.
func (s *Sink) Subject(kind, typ string) string {
	return s.prefix + "." + strings.ToLower(kind) + "." + typ
}

func (s *Sink) publish(ctx context.Context, kind, typ string, ev Event) error {
	ev.Type = typ
	ev.OccurredAt = s.now()
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", typ, err)
	}
	subject := s.Subject(kind, typ)
	if err := s.pub.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	s.logger.DebugContext(ctx, "event published", "subject", subject, "id", ev.ID)
	return nil
}
