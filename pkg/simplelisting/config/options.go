package config

import (
	"errors"
	"strings"
	"time"
)

// Option mutates a ServerConfig during Load.
type Option func(*ServerConfig) error

// WithPort sets the HTTP port.
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment name.
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		c.Environment = env
		return nil
	}
}

// WithPostgres selects the postgres entity store.
func WithPostgres(url, schema string) Option {
	return func(c *ServerConfig) error {
		c.DatabaseType = "postgres"
		c.DatabaseURL = url
		if schema != "" {
			c.DBSchema = schema
		}
		return nil
	}
}

// WithMongo selects the mongo entity store.
func WithMongo(uri, database string) Option {
	return func(c *ServerConfig) error {
		c.DatabaseType = "mongo"
		c.MongoURI = uri
		if database != "" {
			c.MongoDatabase = database
		}
		return nil
	}
}

// WithMemoryDatabase selects the in-memory entity store.
func WithMemoryDatabase() Option {
	return func(c *ServerConfig) error {
		c.DatabaseType = "memory"
		return nil
	}
}

// WithMemoryStorage selects the in-memory blob store.
func WithMemoryStorage() Option {
	return func(c *ServerConfig) error {
		c.StorageBackend = "memory"
		return nil
	}
}

// WithFilesystemStorage stores uploads under baseDir.
func WithFilesystemStorage(baseDir string) Option {
	return func(c *ServerConfig) error {
		if baseDir == "" {
			return errors.New("filesystem base dir is required")
		}
		c.StorageBackend = "fs"
		c.FSBaseDir = baseDir
		return nil
	}
}

// WithS3Storage stores uploads in an S3-compatible bucket.
func WithS3Storage(s3 S3Config) Option {
	return func(c *ServerConfig) error {
		c.StorageBackend = "s3"
		c.S3 = s3
		return nil
	}
}

// WithGridFSStorage stores uploads in a GridFS bucket of the mongo database.
func WithGridFSStorage(bucket string) Option {
	return func(c *ServerConfig) error {
		c.StorageBackend = "gridfs"
		if bucket != "" {
			c.GridFSBucket = bucket
		}
		return nil
	}
}

// WithObjectKeyStrategy selects how blob object keys are laid out.
func WithObjectKeyStrategy(name string) Option {
	return func(c *ServerConfig) error {
		c.ObjectKeyStrategy = name
		return nil
	}
}

// WithJWTSecret sets the HS256 signing secret.
func WithJWTSecret(secret string) Option {
	return func(c *ServerConfig) error {
		c.JWTSecret = secret
		return nil
	}
}

// WithAdminRoles replaces the roles allowed to manage any resource.
func WithAdminRoles(roles ...string) Option {
	return func(c *ServerConfig) error {
		c.AdminRoles = trimAll(roles)
		return nil
	}
}

// WithUploadLimits bounds upload duration and request size.
func WithUploadLimits(timeout time.Duration, maxBytes int64) Option {
	return func(c *ServerConfig) error {
		c.UploadTimeout = timeout
		c.MaxUploadBytes = maxBytes
		return nil
	}
}

// WithPageLimits sets the default and maximum list page size.
func WithPageLimits(defaultLimit, maxLimit int) Option {
	return func(c *ServerConfig) error {
		c.DefaultPageLimit = defaultLimit
		c.MaxPageLimit = maxLimit
		return nil
	}
}

// WithNATS publishes resource events to url under prefix.
func WithNATS(url, prefix string) Option {
	return func(c *ServerConfig) error {
		c.NATSURL = url
		if prefix != "" {
			c.EventSubjectPrefix = prefix
		}
		return nil
	}
}

// WithEventLogging toggles the log event sink.
func WithEventLogging(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableEventLogging = enabled
		return nil
	}
}

// WithAllowedOrigins sets the CORS origins.
func WithAllowedOrigins(origins ...string) Option {
	return func(c *ServerConfig) error {
		c.AllowedOrigins = trimAll(origins)
		return nil
	}
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
