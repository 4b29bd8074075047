package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	natsgo "github.com/nats-io/nats.go"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/multierr"

	"github.com/tendant/simple-listing/pkg/simplelisting"
	natssink "github.com/tendant/simple-listing/pkg/simplelisting/events/nats"
	"github.com/tendant/simple-listing/pkg/simplelisting/objectkey"
	fsstorage "github.com/tendant/simple-listing/pkg/simplelisting/storage/fs"
	gridfsstorage "github.com/tendant/simple-listing/pkg/simplelisting/storage/gridfs"
	memorystorage "github.com/tendant/simple-listing/pkg/simplelisting/storage/memory"
	s3storage "github.com/tendant/simple-listing/pkg/simplelisting/storage/s3"
	memorystore "github.com/tendant/simple-listing/pkg/simplelisting/store/memory"
	mongostore "github.com/tendant/simple-listing/pkg/simplelisting/store/mongo"
	pgstore "github.com/tendant/simple-listing/pkg/simplelisting/store/postgres"
)

const connectTimeout = 10 * time.Second

// Runtime holds everything built from a ServerConfig.
type Runtime struct {
	Catalog  *simplelisting.Catalog
	Services map[string]simplelisting.Service
	Media    *simplelisting.MediaResolver
	Store    simplelisting.Store
	Blobs    simplelisting.BlobStore
	Events   simplelisting.EventSink

	pool   *pgxpool.Pool
	mongo  *mongo.Client
	nats   *natsgo.Conn
	logger *slog.Logger
}

// Build connects the configured backends and creates one Service per kind of
// the default catalog. Callers must Close the runtime.
func (c *ServerConfig) Build(ctx context.Context, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rt := &Runtime{Catalog: simplelisting.DefaultCatalog(), logger: logger}

	if err := c.buildStore(ctx, rt); err != nil {
		return nil, multierr.Append(err, rt.Close())
	}
	if err := c.buildBlobStore(ctx, rt); err != nil {
		return nil, multierr.Append(err, rt.Close())
	}
	if err := c.buildEvents(rt); err != nil {
		return nil, multierr.Append(err, rt.Close())
	}

	keys, err := objectkey.New(c.ObjectKeyStrategy)
	if err != nil {
		return nil, multierr.Append(err, rt.Close())
	}
	rt.Media, err = simplelisting.NewMediaResolver(rt.Store, rt.Blobs,
		simplelisting.WithUploadTimeout(c.UploadTimeout),
		simplelisting.WithObjectKeyGenerator(keys),
		simplelisting.WithMediaEventSink(rt.Events),
		simplelisting.WithMediaLogger(logger),
	)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("create media resolver: %w", err), rt.Close())
	}

	rt.Services, err = simplelisting.NewServices(rt.Catalog,
		simplelisting.WithStore(rt.Store),
		simplelisting.WithMediaResolver(rt.Media),
		simplelisting.WithEventSink(rt.Events),
		simplelisting.WithLogger(logger),
		simplelisting.WithAdminRoles(c.AdminRoles...),
		simplelisting.WithPageLimits(c.DefaultPageLimit, c.MaxPageLimit),
	)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("create services: %w", err), rt.Close())
	}

	logger.Info("runtime built",
		"database", c.DatabaseType,
		"storage", c.StorageBackend,
		"kinds", len(rt.Services))
	return rt, nil
}

func (c *ServerConfig) buildStore(ctx context.Context, rt *Runtime) error {
	switch c.DatabaseType {
	case "memory":
		opts := []memorystore.Option{memorystore.WithUniqueIndex("media", "url")}
		for _, kind := range rt.Catalog.Kinds() {
			if kind.SlugField != "" {
				opts = append(opts, memorystore.WithUniqueIndex(kind.Collection, kind.SlugField))
			}
		}
		rt.Store = memorystore.New(opts...)
		return nil
	case "postgres":
		pool, err := connectPostgres(ctx, c.DatabaseURL, c.DBSchema)
		if err != nil {
			return err
		}
		rt.pool = pool
		store := pgstore.NewWithPool(pool)
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
		rt.Store = store
		return nil
	case "mongo":
		db, err := c.mongoDatabase(ctx, rt)
		if err != nil {
			return err
		}
		store := mongostore.New(db)
		if err := store.EnsureIndexes(ctx, slugCollections(rt.Catalog)...); err != nil {
			return err
		}
		rt.Store = store
		return nil
	}
	return fmt.Errorf("unsupported database type: %s", c.DatabaseType)
}

func (c *ServerConfig) buildBlobStore(ctx context.Context, rt *Runtime) error {
	var err error
	switch c.StorageBackend {
	case "memory":
		rt.Blobs = memorystorage.New()
	case "fs":
		rt.Blobs, err = fsstorage.New(fsstorage.Config{BaseDir: c.FSBaseDir})
	case "s3":
		rt.Blobs, err = s3storage.New(s3storage.Config{
			Region:                 c.S3.Region,
			Bucket:                 c.S3.Bucket,
			AccessKeyID:            c.S3.AccessKeyID,
			SecretAccessKey:        c.S3.SecretAccessKey,
			Endpoint:               c.S3.Endpoint,
			UsePathStyle:           c.S3.UsePathStyle,
			EnableSSE:              c.S3.EnableSSE,
			SSEAlgorithm:           c.S3.SSEAlgorithm,
			SSEKMSKeyID:            c.S3.SSEKMSKeyID,
			CreateBucketIfNotExist: c.S3.CreateBucketIfNotExist,
		})
	case "gridfs":
		db, dbErr := c.mongoDatabase(ctx, rt)
		if dbErr != nil {
			return dbErr
		}
		rt.Blobs, err = gridfsstorage.New(db, gridfsstorage.Config{BucketName: c.GridFSBucket})
	default:
		return fmt.Errorf("unsupported storage backend: %s", c.StorageBackend)
	}
	if err != nil {
		return fmt.Errorf("create %s storage: %w", c.StorageBackend, err)
	}
	return nil
}

func (c *ServerConfig) buildEvents(rt *Runtime) error {
	switch {
	case c.NATSURL != "":
		sink, conn, err := natssink.Connect(c.NATSURL, c.EventSubjectPrefix, rt.logger)
		if err != nil {
			return err
		}
		rt.nats = conn
		rt.Events = sink
	case c.EnableEventLogging:
		rt.Events = simplelisting.NewLogEventSink(rt.logger)
	default:
		rt.Events = simplelisting.NewNoopEventSink()
	}
	return nil
}

// mongoDatabase connects once and is shared by the mongo store and gridfs.
func (c *ServerConfig) mongoDatabase(ctx context.Context, rt *Runtime) (*mongo.Database, error) {
	if rt.mongo == nil {
		ctx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(c.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		rt.mongo = client
		if err := client.Ping(ctx, readpref.Primary()); err != nil {
			return nil, fmt.Errorf("ping mongo: %w", err)
		}
	}
	return rt.mongo.Database(c.MongoDatabase), nil
}

func slugCollections(catalog *simplelisting.Catalog) []string {
	var names []string
	for _, kind := range catalog.Kinds() {
		if kind.SlugField != "" {
			names = append(names, kind.Collection)
		}
	}
	return names
}

func connectPostgres(ctx context.Context, databaseURL, schema string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if schema != "" {
		ident := pgx.Identifier{schema}.Sanitize()
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			if _, err := conn.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+ident); err != nil {
				return err
			}
			_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", ident))
			return err
		}
	}
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// Ready reports whether the connected backends are reachable.
func (rt *Runtime) Ready(ctx context.Context) error {
	var err error
	if rt.pool != nil {
		err = multierr.Append(err, rt.pool.Ping(ctx))
	}
	if rt.mongo != nil {
		err = multierr.Append(err, rt.mongo.Ping(ctx, readpref.Primary()))
	}
	if rt.nats != nil && !rt.nats.IsConnected() {
		err = multierr.Append(err, errors.New("nats: not connected"))
	}
	return err
}

// Close releases every connection opened by Build.
func (rt *Runtime) Close() error {
	var err error
	if rt.nats != nil {
		err = multierr.Append(err, rt.nats.Drain())
		rt.nats = nil
	}
	if rt.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		err = multierr.Append(err, rt.mongo.Disconnect(ctx))
		cancel()
		rt.mongo = nil
	}
	if rt.pool != nil {
		rt.pool.Close()
		rt.pool = nil
	}
	return err
}
