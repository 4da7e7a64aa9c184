package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig
	SQLite  SQLiteConfig
	Redis   RedisConfig
	Storage StorageConfig
	Scratch ScratchConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	LockTTL  int
}

// StorageConfig identifies the object store the external sync utility talks
// to. Enumerated explicitly rather than read from ambient environment so the
// pipeline can be constructed with exactly the credentials it needs.
type StorageConfig struct {
	Host        string
	Account     string
	SubUser     string
	Roles       string
	KeyID       string
	RootFolder  string
	TimeoutSec  int
	MaxAttempts int
}

type ScratchConfig struct {
	Root string
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/sitetour")

	viper.SetEnvPrefix("SITETOUR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 60)
	viper.SetDefault("server.writeTimeout", 60)
	// Tour packages routinely run into the hundreds of megabytes.
	viper.SetDefault("server.bodyLimit", 524288000)

	viper.SetDefault("sqlite.path", "./data/sitetour.db")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.lockTTL", 900)

	viper.SetDefault("storage.host", "https://stor.example.com")
	viper.SetDefault("storage.rootFolder", "tours")
	viper.SetDefault("storage.timeoutSec", 600)
	viper.SetDefault("storage.maxAttempts", 3)

	viper.SetDefault("scratch.root", "./tmp")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
