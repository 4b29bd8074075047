package presets

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/tendant/simple-listing/pkg/simplelisting"
	"github.com/tendant/simple-listing/pkg/simplelisting/config"
	memorystorage "github.com/tendant/simple-listing/pkg/simplelisting/storage/memory"
	memorystore "github.com/tendant/simple-listing/pkg/simplelisting/store/memory"
)

// Configuration Presets
//
// Presets build a ready-to-use set of listing services for common setups.

// Stack is an in-memory set of services for tests.
type Stack struct {
	Services map[string]simplelisting.Service
	Media    *simplelisting.MediaResolver
	Store    *memorystore.Store
	Blobs    *memorystorage.Backend
}

// Service returns the service for collection and fails t when it is missing.
func (s *Stack) Service(t testing.TB, collection string) simplelisting.Service {
	t.Helper()
	svc, ok := s.Services[collection]
	if !ok {
		t.Fatalf("no service for collection %q", collection)
	}
	return svc
}

// NewDevelopment builds a runtime for local development.
//
// Features:
//   - In-memory entity store
//   - Filesystem uploads under ./dev-data/ (persistent across restarts)
//   - Event logging enabled
//
// Returns the runtime and a cleanup function that closes it and removes the
// storage directory.
//
// Example:
//
//	rt, cleanup, err := presets.NewDevelopment()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cleanup()
func NewDevelopment(opts ...DevelopmentOption) (*config.Runtime, func(), error) {
	cfg := &devConfig{
		storageDir: "./dev-data",
		port:       "8080",
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	serverConfig, err := config.Load(
		config.WithEnvironment("development"),
		config.WithPort(cfg.port),
		config.WithFilesystemStorage(cfg.storageDir),
		config.WithEventLogging(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load development config: %w", err)
	}

	rt, err := serverConfig.Build(context.Background(), cfg.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build development runtime: %w", err)
	}

	cleanup := func() {
		rt.Close()
		os.RemoveAll(cfg.storageDir)
	}
	return rt, cleanup, nil
}

// NewTesting builds an isolated in-memory stack for unit and integration
// tests. Nothing is logged and nothing touches the disk.
//
// Example:
//
//	func TestMyFeature(t *testing.T) {
//	    stack := presets.NewTesting(t)
//	    leads := stack.Service(t, "leads")
//	    // ...
//	}
func NewTesting(t testing.TB, opts ...TestingOption) *Stack {
	t.Helper()
	cfg := &testConfig{events: simplelisting.NewNoopEventSink()}
	for _, opt := range opts {
		opt(cfg)
	}

	catalog := simplelisting.DefaultCatalog()
	indexes := []memorystore.Option{memorystore.WithUniqueIndex("media", "url")}
	for _, kind := range catalog.Kinds() {
		if kind.SlugField != "" {
			indexes = append(indexes, memorystore.WithUniqueIndex(kind.Collection, kind.SlugField))
		}
	}
	store := memorystore.New(indexes...)
	blobs := memorystorage.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	media, err := simplelisting.NewMediaResolver(store, blobs,
		simplelisting.WithMediaEventSink(cfg.events),
		simplelisting.WithMediaLogger(logger),
	)
	if err != nil {
		t.Fatalf("failed to create media resolver: %v", err)
	}

	options := []simplelisting.Option{
		simplelisting.WithStore(store),
		simplelisting.WithMediaResolver(media),
		simplelisting.WithEventSink(cfg.events),
		simplelisting.WithLogger(logger),
	}
	if cfg.directory != nil {
		options = append(options, simplelisting.WithPrincipalDirectory(cfg.directory))
	}
	services, err := simplelisting.NewServices(catalog, options...)
	if err != nil {
		t.Fatalf("failed to create test services: %v", err)
	}

	stack := &Stack{Services: services, Media: media, Store: store, Blobs: blobs}
	if cfg.fixtures {
		if err := seedFixtures(context.Background(), stack); err != nil {
			t.Fatalf("failed to seed fixtures: %v", err)
		}
	}
	return stack
}

// NewProduction builds a runtime from the environment. The memory entity
// and blob stores are rejected.
func NewProduction(ctx context.Context, opts ...ProductionOption) (*config.Runtime, error) {
	cfg := &prodConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}

	configOpts := append([]config.Option{config.WithEnvironment("production"), config.WithEnv()}, cfg.extra...)
	serverConfig, err := config.Load(configOpts...)
	if err != nil {
		return nil, err
	}
	if serverConfig.DatabaseType == "memory" {
		return nil, fmt.Errorf("production preset requires DATABASE_TYPE=postgres or mongo (memory not allowed in production)")
	}
	if serverConfig.StorageBackend == "memory" {
		return nil, fmt.Errorf("production preset requires persistent storage (s3, fs or gridfs, not memory)")
	}
	return serverConfig.Build(ctx, cfg.logger)
}

// FixtureOwner owns every document created by WithTestFixtures.
const FixtureOwner = "fixtures"

func seedFixtures(ctx context.Context, s *Stack) error {
	owner := &simplelisting.Principal{ID: FixtureOwner, Roles: []string{simplelisting.DefaultAdminRole}}
	seeds := []struct {
		collection string
		payload    map[string]any
	}{
		{"categories", map[string]any{"name": "Apartments", "slug": "apartments"}},
		{"categories", map[string]any{"name": "Houses", "slug": "houses"}},
		{"property-types", map[string]any{"name": "Sale", "slug": "sale"}},
		{"property-types", map[string]any{"name": "Rent", "slug": "rent"}},
		{"plans", map[string]any{"name": "Basic", "slug": "basic", "price": 0, "billingCycle": "monthly"}},
	}
	for _, seed := range seeds {
		svc, ok := s.Services[seed.collection]
		if !ok {
			return fmt.Errorf("no service for %s", seed.collection)
		}
		if _, err := svc.Create(ctx, owner, simplelisting.CreateRequest{Payload: seed.payload}); err != nil {
			return fmt.Errorf("seed %s: %w", seed.collection, err)
		}
	}
	return nil
}

// devConfig holds development preset configuration
type devConfig struct {
	storageDir string
	port       string
	logger     *slog.Logger
}

// testConfig holds testing preset configuration
type testConfig struct {
	fixtures  bool
	events    simplelisting.EventSink
	directory simplelisting.PrincipalDirectory
}

// prodConfig holds production preset configuration
type prodConfig struct {
	logger *slog.Logger
	extra  []config.Option
}

// DevelopmentOption is a functional option for NewDevelopment
type DevelopmentOption func(*devConfig)

// WithDevStorage sets the development storage directory
func WithDevStorage(dir string) DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.storageDir = dir
	}
}

// WithDevPort sets the development server port
func WithDevPort(port string) DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.port = port
	}
}

// WithDevLogger sets the development logger
func WithDevLogger(logger *slog.Logger) DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.logger = logger
	}
}

// TestingOption is a functional option for NewTesting
type TestingOption func(*testConfig)

// WithTestFixtures seeds categories, property types and a plan.
func WithTestFixtures() TestingOption {
	return func(cfg *testConfig) {
		cfg.fixtures = true
	}
}

// WithTestEvents records lifecycle events in sink.
func WithTestEvents(sink simplelisting.EventSink) TestingOption {
	return func(cfg *testConfig) {
		cfg.events = sink
	}
}

// WithTestDirectory enables owner existence checks against d.
func WithTestDirectory(d simplelisting.PrincipalDirectory) TestingOption {
	return func(cfg *testConfig) {
		cfg.directory = d
	}
}

// ProductionOption is a functional option for NewProduction
type ProductionOption func(*prodConfig)

// WithProdLogger sets the production logger
func WithProdLogger(logger *slog.Logger) ProductionOption {
	return func(cfg *prodConfig) {
		cfg.logger = logger
	}
}

// WithProdConfig applies config options after the environment.
func WithProdConfig(opts ...config.Option) ProductionOption {
	return func(cfg *prodConfig) {
		cfg.extra = append(cfg.extra, opts...)
	}
}
