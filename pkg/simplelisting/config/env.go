package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// envConfig maps environment variables onto ServerConfig. Each setting is
// read from the LISTING_ prefixed name first, then the bare name.
type envConfig struct {
	Port        string `env:"LISTING_PORT,PORT"`
	Environment string `env:"LISTING_ENVIRONMENT,ENVIRONMENT"`

	DatabaseType  string `env:"LISTING_DATABASE_TYPE,DATABASE_TYPE"`
	DatabaseURL   string `env:"LISTING_DATABASE_URL,DATABASE_URL"`
	DBSchema      string `env:"LISTING_DB_SCHEMA,DB_SCHEMA"`
	MongoURI      string `env:"LISTING_MONGO_URI,MONGO_URI"`
	MongoDatabase string `env:"LISTING_MONGO_DATABASE,MONGO_DATABASE"`

	StorageBackend    string `env:"LISTING_STORAGE_BACKEND,STORAGE_BACKEND"`
	FSBaseDir         string `env:"LISTING_FS_BASE_DIR,FS_BASE_DIR"`
	GridFSBucket      string `env:"LISTING_GRIDFS_BUCKET,GRIDFS_BUCKET"`
	ObjectKeyStrategy string `env:"LISTING_OBJECT_KEY_STRATEGY,OBJECT_KEY_STRATEGY"`

	S3Region                 string `env:"LISTING_S3_REGION,S3_REGION"`
	S3Bucket                 string `env:"LISTING_S3_BUCKET,S3_BUCKET"`
	S3AccessKeyID            string `env:"LISTING_S3_ACCESS_KEY_ID,S3_ACCESS_KEY_ID"`
	S3SecretAccessKey        string `env:"LISTING_S3_SECRET_ACCESS_KEY,S3_SECRET_ACCESS_KEY"`
	S3Endpoint               string `env:"LISTING_S3_ENDPOINT,S3_ENDPOINT"`
	S3UsePathStyle           bool   `env:"LISTING_S3_USE_PATH_STYLE,S3_USE_PATH_STYLE"`
	S3EnableSSE              bool   `env:"LISTING_S3_ENABLE_SSE,S3_ENABLE_SSE"`
	S3SSEAlgorithm           string `env:"LISTING_S3_SSE_ALGORITHM,S3_SSE_ALGORITHM"`
	S3SSEKMSKeyID            string `env:"LISTING_S3_SSE_KMS_KEY_ID,S3_SSE_KMS_KEY_ID"`
	S3CreateBucketIfNotExist bool   `env:"LISTING_S3_CREATE_BUCKET_IF_NOT_EXIST,S3_CREATE_BUCKET_IF_NOT_EXIST"`

	JWTSecret  string   `env:"LISTING_JWT_SECRET,JWT_SECRET"`
	AdminRoles []string `env:"LISTING_ADMIN_ROLES,ADMIN_ROLES" env-separator:","`

	UploadTimeout  time.Duration `env:"LISTING_UPLOAD_TIMEOUT,UPLOAD_TIMEOUT"`
	MaxUploadBytes int64         `env:"LISTING_MAX_UPLOAD_BYTES,MAX_UPLOAD_BYTES"`

	DefaultPageLimit int `env:"LISTING_DEFAULT_PAGE_LIMIT,DEFAULT_PAGE_LIMIT"`
	MaxPageLimit     int `env:"LISTING_MAX_PAGE_LIMIT,MAX_PAGE_LIMIT"`

	NATSURL            string `env:"LISTING_NATS_URL,NATS_URL"`
	EventSubjectPrefix string `env:"LISTING_EVENT_SUBJECT_PREFIX,EVENT_SUBJECT_PREFIX"`
	EnableEventLogging bool   `env:"LISTING_ENABLE_EVENT_LOGGING,ENABLE_EVENT_LOGGING"`

	AllowedOrigins []string `env:"LISTING_ALLOWED_ORIGINS,ALLOWED_ORIGINS" env-separator:","`
}

// WithEnv overlays environment variables on the configuration built so far.
// Unset variables leave the current value untouched.
func WithEnv() Option {
	return func(c *ServerConfig) error {
		env := fromServerConfig(c)
		if err := cleanenv.ReadEnv(&env); err != nil {
			return fmt.Errorf("read environment: %w", err)
		}
		env.apply(c)
		return nil
	}
}

// EnvUsage describes every supported environment variable.
func EnvUsage() string {
	var env envConfig
	usage, err := cleanenv.GetDescription(&env, nil)
	if err != nil {
		return err.Error()
	}
	return usage
}

func fromServerConfig(c *ServerConfig) envConfig {
	return envConfig{
		Port:                     c.Port,
		Environment:              c.Environment,
		DatabaseType:             c.DatabaseType,
		DatabaseURL:              c.DatabaseURL,
		DBSchema:                 c.DBSchema,
		MongoURI:                 c.MongoURI,
		MongoDatabase:            c.MongoDatabase,
		StorageBackend:           c.StorageBackend,
		FSBaseDir:                c.FSBaseDir,
		GridFSBucket:             c.GridFSBucket,
		ObjectKeyStrategy:        c.ObjectKeyStrategy,
		S3Region:                 c.S3.Region,
		S3Bucket:                 c.S3.Bucket,
		S3AccessKeyID:            c.S3.AccessKeyID,
		S3SecretAccessKey:        c.S3.SecretAccessKey,
		S3Endpoint:               c.S3.Endpoint,
		S3UsePathStyle:           c.S3.UsePathStyle,
		S3EnableSSE:              c.S3.EnableSSE,
		S3SSEAlgorithm:           c.S3.SSEAlgorithm,
		S3SSEKMSKeyID:            c.S3.SSEKMSKeyID,
		S3CreateBucketIfNotExist: c.S3.CreateBucketIfNotExist,
		JWTSecret:                c.JWTSecret,
		AdminRoles:               c.AdminRoles,
		UploadTimeout:            c.UploadTimeout,
		MaxUploadBytes:           c.MaxUploadBytes,
		DefaultPageLimit:         c.DefaultPageLimit,
		MaxPageLimit:             c.MaxPageLimit,
		NATSURL:                  c.NATSURL,
		EventSubjectPrefix:       c.EventSubjectPrefix,
		EnableEventLogging:       c.EnableEventLogging,
		AllowedOrigins:           c.AllowedOrigins,
	}
}

func (e envConfig) apply(c *ServerConfig) {
	c.Port = e.Port
	c.Environment = e.Environment
	c.DatabaseType = e.DatabaseType
	c.DatabaseURL = e.DatabaseURL
	c.DBSchema = e.DBSchema
	c.MongoURI = e.MongoURI
	c.MongoDatabase = e.MongoDatabase
	c.StorageBackend = e.StorageBackend
	c.FSBaseDir = e.FSBaseDir
	c.GridFSBucket = e.GridFSBucket
	c.ObjectKeyStrategy = e.ObjectKeyStrategy
	c.S3 = S3Config{
		Region:                 e.S3Region,
		Bucket:                 e.S3Bucket,
		AccessKeyID:            e.S3AccessKeyID,
		SecretAccessKey:        e.S3SecretAccessKey,
		Endpoint:               e.S3Endpoint,
		UsePathStyle:           e.S3UsePathStyle,
		EnableSSE:              e.S3EnableSSE,
		SSEAlgorithm:           e.S3SSEAlgorithm,
		SSEKMSKeyID:            e.S3SSEKMSKeyID,
		CreateBucketIfNotExist: e.S3CreateBucketIfNotExist,
	}
	c.JWTSecret = e.JWTSecret
	c.AdminRoles = trimAll(e.AdminRoles)
	c.UploadTimeout = e.UploadTimeout
	c.MaxUploadBytes = e.MaxUploadBytes
	c.DefaultPageLimit = e.DefaultPageLimit
	c.MaxPageLimit = e.MaxPageLimit
	c.NATSURL = e.NATSURL
	c.EventSubjectPrefix = e.EventSubjectPrefix
	c.EnableEventLogging = e.EnableEventLogging
	c.AllowedOrigins = trimAll(e.AllowedOrigins)
}
