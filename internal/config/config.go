package config

import (
	"os"
	"strings"
	"time"

	"factorcorr/internal/errors"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	LogLevel  string         `mapstructure:"log_level"`
	LogFormat string         `mapstructure:"log_format"`
	Model     ModelConfig    `mapstructure:"model"`
	Training  TrainingConfig `mapstructure:"training"`
	Server    ServerConfig   `mapstructure:"server"`
	Admin     AdminConfig    `mapstructure:"admin"`
	Database  DatabaseConfig `mapstructure:"database"`
	Redis     RedisConfig    `mapstructure:"redis"`
	Registry  RegistryConfig `mapstructure:"registry"`
}

// ModelConfig holds architecture and lifecycle settings for the correlation model
type ModelConfig struct {
	Name               string  `mapstructure:"name"`
	Version            string  `mapstructure:"version"`
	Dir                string  `mapstructure:"dir"`
	Dimension          int     `mapstructure:"dimension"`
	NumHeads           int     `mapstructure:"num_heads"`
	NumLayers          int     `mapstructure:"num_layers"`
	EmbeddingDimension int     `mapstructure:"embedding_dimension"`
	MaxSequenceLength  int     `mapstructure:"max_sequence_length"`
	FeedForwardFactor  int     `mapstructure:"feed_forward_factor"`
	PredictorUnits     int     `mapstructure:"predictor_units"`
	DropoutRate        float64 `mapstructure:"dropout_rate"`
	PredictorDropout   float64 `mapstructure:"predictor_dropout"`
	PositionalEncoding string  `mapstructure:"positional_encoding"`
	Normalization      string  `mapstructure:"normalization"`
	LearningRate       float64 `mapstructure:"learning_rate"`
	Seed               int64   `mapstructure:"seed"`
	MaxConcurrency     int     `mapstructure:"max_concurrency"`
}

// TrainingConfig holds default training-loop settings
type TrainingConfig struct {
	BatchSize       int     `mapstructure:"batch_size"`
	Epochs          int     `mapstructure:"epochs"`
	ValidationSplit float64 `mapstructure:"validation_split"`
	PatienceEpochs  int     `mapstructure:"patience_epochs"`
	EarlyStopping   bool    `mapstructure:"early_stopping"`
}

// ServerConfig holds API server settings
type ServerConfig struct {
	Port    string `mapstructure:"port"`
	GinMode string `mapstructure:"gin_mode"`
}

// AdminConfig holds the metrics/pprof/health listener settings
type AdminConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    string `mapstructure:"port"`
}

// DatabaseConfig holds the history provider connection
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// RedisConfig holds prediction cache settings; an empty Addr disables the cache
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// RegistryConfig selects and configures the model registry backend
type RegistryConfig struct {
	Backend         string `mapstructure:"backend"`
	Root            string `mapstructure:"root"`
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	ProjectID       string `mapstructure:"project_id"`
	CredentialsFile string `mapstructure:"credentials_file"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKey       string `mapstructure:"access_key"`
	SecretKey       string `mapstructure:"secret_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	CacheDir        string `mapstructure:"cache_dir"`
}

// Registry backends
const (
	RegistryFilesystem = "filesystem"
	RegistryGCS        = "gcs"
	RegistryMinio      = "minio"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "INFO")
	v.SetDefault("log_format", "text")

	v.SetDefault("model.name", "factor-correlation")
	v.SetDefault("model.version", "1.0.0")
	v.SetDefault("model.dir", "./models")
	v.SetDefault("model.dimension", 128)
	v.SetDefault("model.num_heads", 8)
	v.SetDefault("model.num_layers", 4)
	v.SetDefault("model.embedding_dimension", 64)
	v.SetDefault("model.max_sequence_length", 365)
	v.SetDefault("model.feed_forward_factor", 4)
	v.SetDefault("model.predictor_units", 64)
	v.SetDefault("model.dropout_rate", 0.1)
	v.SetDefault("model.predictor_dropout", 0.2)
	v.SetDefault("model.positional_encoding", "sinusoidal")
	v.SetDefault("model.normalization", "zscore")
	v.SetDefault("model.learning_rate", 0.001)
	v.SetDefault("model.seed", 42)
	v.SetDefault("model.max_concurrency", 4)

	v.SetDefault("training.batch_size", 32)
	v.SetDefault("training.epochs", 50)
	v.SetDefault("training.validation_split", 0.2)
	v.SetDefault("training.patience_epochs", 5)
	v.SetDefault("training.early_stopping", true)

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.gin_mode", "release")
	v.SetDefault("admin.enabled", true)
	v.SetDefault("admin.port", "6060")

	v.SetDefault("database.url", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "10m")

	v.SetDefault("registry.backend", RegistryFilesystem)
	v.SetDefault("registry.root", "./registry")
	v.SetDefault("registry.bucket", "")
	v.SetDefault("registry.prefix", "models")
	v.SetDefault("registry.project_id", "")
	v.SetDefault("registry.credentials_file", "")
	v.SetDefault("registry.endpoint", "")
	v.SetDefault("registry.access_key", "")
	v.SetDefault("registry.secret_key", "")
	v.SetDefault("registry.use_ssl", true)
	v.SetDefault("registry.cache_dir", "")
}

// Load reads configuration from defaults, an optional CONFIG_FILE, and the environment
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Short names kept for deployments that predate the nested keys
	_ = v.BindEnv("server.port", "SERVER_PORT", "PORT")
	_ = v.BindEnv("database.url", "DATABASE_URL")

	if file := os.Getenv("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", file)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode configuration")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return cfg, nil
}

// Defaults returns the built-in configuration without consulting files or the environment
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		panic("config defaults do not decode: " + err.Error())
	}
	return cfg
}

// Validate rejects settings the model cannot be built with
func (c *Config) Validate() error {
	m := c.Model
	if m.Dimension <= 0 || m.NumHeads <= 0 || m.NumLayers <= 0 {
		return errors.ConfigInvalid("model dimension, heads and layers must be positive")
	}
	if m.Dimension%m.NumHeads != 0 {
		return errors.ConfigInvalid("model.num_heads must divide model.dimension")
	}
	if m.EmbeddingDimension <= 0 || m.MaxSequenceLength <= 0 {
		return errors.ConfigInvalid("embedding dimension and max sequence length must be positive")
	}
	if m.DropoutRate < 0 || m.DropoutRate >= 1 || m.PredictorDropout < 0 || m.PredictorDropout >= 1 {
		return errors.ConfigInvalid("dropout rates must be in [0,1)")
	}
	switch m.PositionalEncoding {
	case "sinusoidal", "learned":
	default:
		return errors.ConfigInvalid("model.positional_encoding must be sinusoidal or learned")
	}
	switch m.Normalization {
	case "zscore", "minmax":
	default:
		return errors.ConfigInvalid("model.normalization must be zscore or minmax")
	}
	if c.Training.BatchSize <= 0 || c.Training.Epochs <= 0 {
		return errors.ConfigInvalid("training batch size and epochs must be positive")
	}
	if c.Training.ValidationSplit < 0 || c.Training.ValidationSplit >= 1 {
		return errors.ConfigInvalid("training.validation_split must be in [0,1)")
	}
	switch c.Registry.Backend {
	case RegistryFilesystem, RegistryGCS, RegistryMinio:
	default:
		return errors.ConfigInvalid("registry.backend must be filesystem, gcs or minio")
	}
	return nil
}
