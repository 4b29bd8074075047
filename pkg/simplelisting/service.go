package simplelisting

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Page window defaults.
const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// Option configures a Service
type Option func(*service)

// WithStore sets the document store
func WithStore(store Store) Option {
	return func(s *service) { s.store = store }
}

// WithCatalog sets the catalog used to resolve linked fields and filters
func WithCatalog(c *Catalog) Option {
	return func(s *service) { s.catalog = c }
}

// WithMediaResolver enables uploads
func WithMediaResolver(m *MediaResolver) Option {
	return func(s *service) { s.media = m }
}

// WithEventSink sets the lifecycle event sink
func WithEventSink(sink EventSink) Option {
	return func(s *service) { s.events = sink }
}

// WithPrincipalDirectory enables owner existence checks
func WithPrincipalDirectory(d PrincipalDirectory) Option {
	return func(s *service) { s.directory = d }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *service) { s.logger = logger }
}

// WithAdminRoles sets the roles used when a kind configures none.
func WithAdminRoles(roles ...string) Option {
	return func(s *service) { s.adminRoles = roles }
}

// WithPageLimits sets the default and maximum list page size.
func WithPageLimits(defaultLimit, maxLimit int) Option {
	return func(s *service) {
		s.defaultLimit = defaultLimit
		s.maxLimit = maxLimit
	}
}

// WithClock overrides the timestamp source
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// WithIDGenerator overrides document id generation
func WithIDGenerator(newID func() string) Option {
	return func(s *service) { s.newID = newID }
}

// New creates a Service for kind.
func New(kind Kind, options ...Option) (Service, error) {
	if kind.Name == "" || kind.Collection == "" {
		return nil, errors.New("kind name and collection are required")
	}
	s := &service{
		kind:         kind,
		catalog:      DefaultCatalog(),
		events:       NewNoopEventSink(),
		logger:       slog.Default(),
		adminRoles:   []string{DefaultAdminRole},
		defaultLimit: DefaultPageLimit,
		maxLimit:     MaxPageLimit,
		now:          func() time.Time { return time.Now().UTC() },
		newID:        uuid.NewString,
	}
	for _, opt := range options {
		opt(s)
	}
	if s.store == nil {
		return nil, errors.New("store is required")
	}
	if s.defaultLimit <= 0 || s.maxLimit < s.defaultLimit {
		return nil, fmt.Errorf("invalid page limits %d/%d", s.defaultLimit, s.maxLimit)
	}

	s.createRoles = kind.CreateRoles
	if len(s.createRoles) == 0 {
		s.createRoles = s.adminRoles
	}
	mutateRoles := kind.MutateRoles
	if len(mutateRoles) == 0 {
		mutateRoles = s.adminRoles
	}
	s.guard = NewGuard(mutateRoles...)
	s.filters = NewFilterCompiler(s.store, s.catalog)
	s.links = &LinkResolver{
		store:   s.store,
		catalog: s.catalog,
		logger:  s.logger,
		now:     s.now,
		newID:   s.newID,
	}
	return s, nil
}

// NewServices creates one Service per kind of catalog, keyed by collection.
func NewServices(catalog *Catalog, options ...Option) (map[string]Service, error) {
	services := make(map[string]Service)
	for _, kind := range catalog.Kinds() {
		opts := append([]Option{WithCatalog(catalog)}, options...)
		svc, err := New(kind, opts...)
		if err != nil {
			return nil, fmt.Errorf("kind %s: %w", kind.Name, err)
		}
		services[kind.Collection] = svc
	}
	return services, nil
}
