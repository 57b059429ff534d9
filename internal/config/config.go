package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	AppName     = "page-image-prompts"
	EnvFileName = "config.env"

	envPrefix   = "IMGPROMPT"
	storeKeyVar = envPrefix + "_STORE_KEY"
	dbFileName  = "settings.db"
)

// Config holds the runtime settings, read from IMGPROMPT_* variables.
type Config struct {
	Provider       string        `envconfig:"PROVIDER" default:"gemini"`
	Model          string        `envconfig:"MODEL"`
	DBPath         string        `envconfig:"DB_PATH"`
	StoreKey       string        `envconfig:"STORE_KEY"`
	Scraper        string        `envconfig:"SCRAPER" default:"static"`
	ListenAddr     string        `envconfig:"LISTEN_ADDR" default:"127.0.0.1:8787"`
	MessageTimeout time.Duration `envconfig:"MESSAGE_TIMEOUT" default:"10s"`
	PageTimeout    time.Duration `envconfig:"PAGE_TIMEOUT" default:"8s"`
	FetchTimeout   time.Duration `envconfig:"FETCH_TIMEOUT" default:"30s"`
	// ImageTimeout is the budget for one image; a batch gets one per image.
	ImageTimeout time.Duration `envconfig:"IMAGE_TIMEOUT" default:"45s"`
	MaxImageBytes  int64         `envconfig:"MAX_IMAGE_BYTES" default:"10485760"`
	LogLevel       string        `envconfig:"LOG_LEVEL" default:"info"`
	GeminiBaseURL  string        `envconfig:"GEMINI_BASE_URL"`
	VisionEndpoint string        `envconfig:"VISION_ENDPOINT"`
}

// Dir returns the application's config directory, creating it if needed.
func Dir() (string, error) {
	configBase, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}

	configDir := filepath.Join(configBase, AppName)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return configDir, nil
}

// FilePath returns the full path to config.env.
func FilePath() (string, error) {
	configDir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, EnvFileName), nil
}

// LoadEnvFile loads environment variables from the config file in the user's
// config directory. Errors are ignored since the file may not exist.
// Variables already set in the environment win.
func LoadEnvFile() {
	configPath, err := FilePath()
	if err != nil {
		return
	}
	_ = godotenv.Load(configPath)
}

// Load decodes the environment into a Config. DBPath defaults to a file in
// the config directory.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	switch cfg.Provider {
	case "gemini", "vision":
	default:
		return nil, fmt.Errorf("invalid %s_PROVIDER %q: use gemini or vision", envPrefix, cfg.Provider)
	}
	switch cfg.Scraper {
	case "static", "browser":
	default:
		return nil, fmt.Errorf("invalid %s_SCRAPER %q: use static or browser", envPrefix, cfg.Scraper)
	}
	if cfg.MaxImageBytes <= 0 {
		return nil, errors.New(envPrefix + "_MAX_IMAGE_BYTES must be positive")
	}
	if cfg.MessageTimeout <= 0 || cfg.PageTimeout <= 0 || cfg.FetchTimeout <= 0 || cfg.ImageTimeout <= 0 {
		return nil, errors.New(envPrefix + " timeouts must be positive")
	}

	if cfg.DBPath == "" {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		cfg.DBPath = filepath.Join(dir, dbFileName)
	}
	return &cfg, nil
}

// EnsureStoreKey generates the settings encryption passphrase on first run
// and persists it to config.env. It reports whether a key was created.
func EnsureStoreKey(cfg *Config) (bool, error) {
	if cfg.StoreKey != "" {
		return false, nil
	}

	key := GenerateKey()
	configPath, err := FilePath()
	if err != nil {
		return false, err
	}
	if err := WriteEnvFile(configPath, map[string]string{storeKeyVar: key}); err != nil {
		return false, err
	}

	os.Setenv(storeKeyVar, key)
	cfg.StoreKey = key
	return true, nil
}

// GenerateKey returns 32 random bytes, URL-safe base64 encoded.
func GenerateKey() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		// Fallback to timestamp-based if crypto/rand fails (unlikely)
		return fmt.Sprintf("imgprompt-%d", time.Now().UnixNano())
	}
	return base64.URLEncoding.EncodeToString(b)
}

// WriteEnvFile merges values into the env file at path, keeping existing
// entries. The file is written with 0600 permissions since it holds secrets.
func WriteEnvFile(path string, values map[string]string) error {
	env := map[string]string{}
	if _, err := os.Stat(path); err == nil {
		existing, err := godotenv.Read(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		env = existing
	}
	for k, v := range values {
		env[k] = v
	}

	if err := godotenv.Write(env, path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}
	return nil
}
