package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Environment string        `mapstructure:"environment"`
	Storage     StorageConfig `mapstructure:"storage"`
	Cache       CacheConfig   `mapstructure:"cache"`
	Export      ExportConfig  `mapstructure:"export"`
}

type StorageConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int    `mapstructure:"max_connections"`
	MaxIdle  int    `mapstructure:"max_idle"`
}

type CacheConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type ExportConfig struct {
	Dir       string `mapstructure:"dir"`
	Condensed bool   `mapstructure:"condensed"`
}

func Load() (*Config, error) {
	return LoadWithConfigFile("")
}

func LoadWithConfigFile(configFile string) (*Config, error) {
	setDefaults()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/realm-authz/")

		formats := []string{"yaml", "toml", "json"}
		var configFound bool
		for _, format := range formats {
			viper.SetConfigType(format)
			if err := viper.ReadInConfig(); err == nil {
				configFound = true
				break
			}
		}
		if !configFound {
			if err := viper.ReadInConfig(); err != nil {
				if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
					return nil, fmt.Errorf("error reading config file: %w", err)
				}
			}
		}
	}

	viper.SetEnvPrefix("REALM")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "production")

	viper.SetDefault("storage.enabled", false)
	viper.SetDefault("storage.host", "")
	viper.SetDefault("storage.port", 5432)
	viper.SetDefault("storage.user", "")
	viper.SetDefault("storage.password", "")
	viper.SetDefault("storage.dbname", "")
	viper.SetDefault("storage.sslmode", "require")
	viper.SetDefault("storage.max_connections", 25)
	viper.SetDefault("storage.max_idle", 5)

	viper.SetDefault("cache.enabled", false)
	viper.SetDefault("cache.host", "")
	viper.SetDefault("cache.port", 6379)
	viper.SetDefault("cache.password", "")
	viper.SetDefault("cache.db", 0)
	viper.SetDefault("cache.prefix", "realm-authz")

	viper.SetDefault("export.dir", "export")
	viper.SetDefault("export.condensed", false)
}

func NewLogger(environment string) (*zap.Logger, error) {
	var config zap.Config

	if environment == "development" {
		config = zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
		if environment == "test" {
			config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		} else {
			config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		}
	}

	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return logger, nil
}
