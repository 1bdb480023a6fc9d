// Package config loads datashelf configuration from a YAML file and the
// environment. Environment variables (DATASHELF_*) override file values;
// a missing config file is not an error, defaults carry the service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	Assets     AssetsConfig
	Embeddings EmbeddingsConfig
	Identity   IdentityConfig
	Tenant     string
	Log        LogConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

type AssetsConfig struct {
	Dir           string
	PublicBaseURL string
}

type EmbeddingsConfig struct {
	BaseURL string
	Model   string
}

type IdentityConfig struct {
	BaseURL string
}

type LogConfig struct {
	Level string
}

const envPrefix = "DATASHELF"

func setDefaults(v *viper.Viper) {
	dataDir := defaultDataDir()
	v.SetDefault("server.port", 4600)
	v.SetDefault("storage.data_dir", dataDir)
	v.SetDefault("assets.dir", filepath.Join(dataDir, "assets"))
	v.SetDefault("assets.public_base_url", "http://localhost:4600/assets")
	v.SetDefault("embeddings.base_url", "http://localhost:11434")
	v.SetDefault("embeddings.model", "nomic-embed-text")
	v.SetDefault("identity.base_url", "")
	v.SetDefault("tenant", "datashelf")
	v.SetDefault("log.level", "info")
}

// Load reads config.yaml from configDir (empty means the platform default)
// and applies DATASHELF_* environment overrides. Nested keys map to
// environment variables with underscores: server.port becomes
// DATASHELF_SERVER_PORT.
func Load(configDir string) (Config, error) {
	if configDir == "" {
		configDir = defaultConfigDir()
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := Config{
		Server: ServerConfig{
			Port: v.GetInt("server.port"),
		},
		Storage: StorageConfig{
			DataDir: v.GetString("storage.data_dir"),
		},
		Assets: AssetsConfig{
			Dir:           v.GetString("assets.dir"),
			PublicBaseURL: v.GetString("assets.public_base_url"),
		},
		Embeddings: EmbeddingsConfig{
			BaseURL: v.GetString("embeddings.base_url"),
			Model:   v.GetString("embeddings.model"),
		},
		Identity: IdentityConfig{
			BaseURL: v.GetString("identity.base_url"),
		},
		Tenant: v.GetString("tenant"),
		Log: LogConfig{
			Level: v.GetString("log.level"),
		},
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir must not be empty")
	}
	if c.Tenant == "" {
		return fmt.Errorf("tenant must not be empty")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	return nil
}

func defaultConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "datashelf")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "datashelf")
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "datashelf")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "datashelf")
}
