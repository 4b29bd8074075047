package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/tendant/simple-listing/pkg/simplelisting"
	"github.com/tendant/simple-listing/pkg/simplelisting/objectkey"
)

// ServerConfig represents server-level configuration used to build a runtime.
type ServerConfig struct {
	Port        string
	Environment string

	// Entity store: "memory", "postgres" or "mongo"
	DatabaseType  string
	DatabaseURL   string
	DBSchema      string
	MongoURI      string
	MongoDatabase string

	// Blob store: "memory", "fs", "s3" or "gridfs"
	StorageBackend    string
	FSBaseDir         string
	S3                S3Config
	GridFSBucket      string
	ObjectKeyStrategy string

	JWTSecret  string
	AdminRoles []string

	UploadTimeout  time.Duration
	MaxUploadBytes int64

	DefaultPageLimit int
	MaxPageLimit     int

	// Events go to NATS when NATSURL is set, otherwise to the log when
	// EnableEventLogging is true.
	NATSURL            string
	EventSubjectPrefix string
	EnableEventLogging bool

	AllowedOrigins []string
}

// S3Config holds settings for the s3 blob backend.
type S3Config struct {
	Region                 string
	Bucket                 string
	AccessKeyID            string
	SecretAccessKey        string
	Endpoint               string
	UsePathStyle           bool
	EnableSSE              bool
	SSEAlgorithm           string
	SSEKMSKeyID            string
	CreateBucketIfNotExist bool
}

// Load builds a ServerConfig from defaults and the given options, then
// validates it.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:               "8080",
		Environment:        "development",
		DatabaseType:       "memory",
		DBSchema:           "listing",
		MongoDatabase:      "listing",
		StorageBackend:     "memory",
		GridFSBucket:       "uploads",
		ObjectKeyStrategy:  "typed",
		AdminRoles:         []string{simplelisting.DefaultAdminRole},
		UploadTimeout:      simplelisting.DefaultUploadTimeout,
		MaxUploadBytes:     32 << 20,
		DefaultPageLimit:   simplelisting.DefaultPageLimit,
		MaxPageLimit:       simplelisting.MaxPageLimit,
		EventSubjectPrefix: "listing",
		EnableEventLogging: true,
		AllowedOrigins:     []string{"*"},
	}
}

// Validate performs basic validation of the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	switch c.DatabaseType {
	case "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("database_url is required for postgres")
		}
	case "mongo":
		if c.MongoURI == "" {
			return errors.New("mongo_uri is required for mongo")
		}
	default:
		return fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}

	switch c.StorageBackend {
	case "memory":
	case "fs":
		if c.FSBaseDir == "" {
			return errors.New("fs_base_dir is required for fs storage")
		}
	case "s3":
		if c.S3.Bucket == "" {
			return errors.New("s3 bucket is required for s3 storage")
		}
	case "gridfs":
		if c.MongoURI == "" {
			return errors.New("mongo_uri is required for gridfs storage")
		}
	default:
		return fmt.Errorf("unsupported storage backend: %s", c.StorageBackend)
	}

	if (c.DatabaseType == "mongo" || c.StorageBackend == "gridfs") && c.MongoDatabase == "" {
		return errors.New("mongo_database is required")
	}

	if _, err := objectkey.New(c.ObjectKeyStrategy); err != nil {
		return err
	}

	if c.Environment == "production" && c.JWTSecret == "" {
		return errors.New("jwt_secret is required in production")
	}
	if len(c.AdminRoles) == 0 {
		return errors.New("at least one admin role is required")
	}

	if c.UploadTimeout <= 0 {
		return errors.New("upload timeout must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("max upload bytes must be positive")
	}
	if c.DefaultPageLimit <= 0 || c.MaxPageLimit < c.DefaultPageLimit {
		return fmt.Errorf("invalid page limits %d/%d", c.DefaultPageLimit, c.MaxPageLimit)
	}

	if c.NATSURL != "" && c.EventSubjectPrefix == "" {
		return errors.New("event subject prefix is required with nats")
	}

	return nil
}
