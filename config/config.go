package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	AppName   = "vec-aas-uploader"
	EnvPrefix = "VEC"
)

const (
	StorageMemory = "memory"
	StorageLocal  = "local"
	StorageMinio  = "minio"
	StorageS3     = "s3"

	DispatchLocal = "local"
	DispatchQueue = "queue"

	SequencerMemory = "memory"
	SequencerRedis  = "redis"
)

// AppConfig holds the whole service configuration.
type AppConfig struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Sequencer SequencerConfig `mapstructure:"sequencer"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Minio     MinioConfig     `mapstructure:"minio"`
	S3        S3Config        `mapstructure:"s3"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	Mode            string        `mapstructure:"mode"`
	AllowOrigins    []string      `mapstructure:"allow_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	EventInterval   time.Duration `mapstructure:"event_interval"`
}

type LogConfig struct {
	Level       string   `mapstructure:"level"`
	Encoding    string   `mapstructure:"encoding"`
	OutputPaths []string `mapstructure:"output_paths"`
	Development bool     `mapstructure:"development"`
}

type StorageConfig struct {
	Type      string        `mapstructure:"type"`
	LocalPath string        `mapstructure:"local_path"`
	Retention time.Duration `mapstructure:"retention"`
}

type DispatchConfig struct {
	Mode        string        `mapstructure:"mode"`
	Concurrency int           `mapstructure:"concurrency"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type SequencerConfig struct {
	Backend    string        `mapstructure:"backend"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type GeneratorConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Language string        `mapstructure:"language"`
	// BlueprintIDs is the raw JSON array, parsed by the workflow package.
	BlueprintIDs string `mapstructure:"blueprint_ids"`
	ViewerPath   string `mapstructure:"viewer_path"`
}

type MinioConfig struct {
	AccessKey  string `mapstructure:"access_key"`
	SecretKey  string `mapstructure:"secret_key"`
	Endpoint   string `mapstructure:"endpoint"`
	UseSSL     bool   `mapstructure:"use_ssl"`
	Region     string `mapstructure:"region"`
	BucketName string `mapstructure:"bucket_name"`
}

type S3Config struct {
	BucketName string `mapstructure:"bucket_name"`
	Region     string `mapstructure:"region"`
	Endpoint   string `mapstructure:"endpoint"`
	AccessKey  string `mapstructure:"access_key"`
	SecretKey  string `mapstructure:"secret_key"`
}

var (
	loadOnce sync.Once
	instance *AppConfig
	loadErr  error
)

// Load reads .env, the optional config file and the environment once.
func Load() (*AppConfig, error) {
	loadOnce.Do(func() {
		if err := godotenv.Load(envPath()); err != nil {
			log.Printf("Warning: .env file not found, falling back to environment variables")
		}
		instance, loadErr = LoadFrom("")
	})
	return instance, loadErr
}

// MustLoad is Load for main packages.
func MustLoad() *AppConfig {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// LoadFrom builds a config without caching. An empty cfgFile searches the
// working directory for config.yaml.
func LoadFrom(cfgFile string) (*AppConfig, error) {
	v := viper.New()
	setDefaults(v)
	bindLegacyEnv(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join("/etc", AppName))
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.allow_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.event_interval", 500*time.Millisecond)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
	v.SetDefault("log.output_paths", []string{"stdout"})
	v.SetDefault("log.development", false)

	v.SetDefault("storage.type", StorageMemory)
	v.SetDefault("storage.local_path", "data/uploads")
	v.SetDefault("storage.retention", 24*time.Hour)

	v.SetDefault("dispatch.mode", DispatchLocal)
	v.SetDefault("dispatch.concurrency", 5)
	v.SetDefault("dispatch.timeout", 5*time.Minute)

	v.SetDefault("sequencer.backend", SequencerMemory)
	v.SetDefault("sequencer.session_ttl", 24*time.Hour)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("generator.base_url", "")
	v.SetDefault("generator.api_key", "")
	v.SetDefault("generator.timeout", 60*time.Second)
	v.SetDefault("generator.language", "")
	v.SetDefault("generator.blueprint_ids", "")
	v.SetDefault("generator.viewer_path", "/viewer")

	v.SetDefault("minio.access_key", "")
	v.SetDefault("minio.secret_key", "")
	v.SetDefault("minio.endpoint", "")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.region", "")
	v.SetDefault("minio.bucket_name", "vec-uploads")

	v.SetDefault("s3.bucket_name", "")
	v.SetDefault("s3.region", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
}

// bindLegacyEnv keeps the unprefixed variable names deployments already use.
func bindLegacyEnv(v *viper.Viper) {
	legacy := map[string]string{
		"generator.blueprint_ids": "AAS_BLUEPRINT_IDS",
		"generator.base_url":      "AAS_CREATOR_URL",
		"generator.api_key":       "AAS_CREATOR_API_KEY",
		"minio.access_key":        "MINIO_ACCESS_KEY",
		"minio.secret_key":        "MINIO_SECRET_KEY",
		"minio.endpoint":          "MINIO_ENDPOINT",
		"minio.region":            "MINIO_REGION",
		"minio.bucket_name":       "MINIO_BUCKET_NAME",
		"s3.bucket_name":          "AWS_S3_BUCKET_NAME",
		"s3.region":               "AWS_REGION",
		"s3.endpoint":             "AWS_ENDPOINT",
		"s3.access_key":           "AWS_ACCESS_KEY",
		"s3.secret_key":           "AWS_SECRET_KEY",
	}
	for key, env := range legacy {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(key, prefixed, env)
	}
}

// Validate rejects combinations the runtime cannot serve.
func (c *AppConfig) Validate() error {
	switch c.Storage.Type {
	case StorageMemory, StorageLocal, StorageMinio, StorageS3:
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}

	switch c.Sequencer.Backend {
	case SequencerMemory, SequencerRedis:
	default:
		return fmt.Errorf("unsupported sequencer backend: %s", c.Sequencer.Backend)
	}

	switch c.Dispatch.Mode {
	case DispatchLocal:
	case DispatchQueue:
		// workers run in another process and must see the same sessions and files
		if c.Sequencer.Backend != SequencerRedis {
			return fmt.Errorf("dispatch mode %q requires the redis sequencer backend", c.Dispatch.Mode)
		}
		if c.Storage.Type == StorageMemory {
			return fmt.Errorf("dispatch mode %q cannot use memory storage", c.Dispatch.Mode)
		}
	default:
		return fmt.Errorf("unsupported dispatch mode: %s", c.Dispatch.Mode)
	}

	if c.Dispatch.Concurrency <= 0 {
		return fmt.Errorf("dispatch concurrency must be positive")
	}
	return nil
}

func envPath() string {
	if p := os.Getenv("VEC_ENV_FILE"); p != "" {
		return p
	}
	return ".env"
}
