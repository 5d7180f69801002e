// server/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ViniZap4/tasks-server/store"
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	Store  StoreConfig  `yaml:"store"`
	Auth   AuthConfig   `yaml:"auth"`
	Log    LogConfig    `yaml:"log"`
}

type ServerConfig struct {
	Port        string `yaml:"port"`
	CORSOrigins string `yaml:"cors_origins"`
}

type StoreConfig struct {
	Dir             string        `yaml:"dir"`
	File            string        `yaml:"file"`
	BackupFile      string        `yaml:"backup_file"`
	ReadAttempts    int           `yaml:"read_attempts"`
	WriteAttempts   int           `yaml:"write_attempts"`
	ReadRetryDelay  time.Duration `yaml:"read_retry_delay"`
	WriteRetryDelay time.Duration `yaml:"write_retry_delay"`
}

type AuthConfig struct {
	Required bool   `yaml:"required"`
	Username string `yaml:"username"`
	// Password is hashed at startup when PasswordHash is empty.
	Password     string        `yaml:"password"`
	PasswordHash string        `yaml:"password_hash"`
	TokenSecret  string        `yaml:"token_secret"`
	TokenTTL     time.Duration `yaml:"token_ttl"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:        "5000",
			CORSOrigins: "*",
		},
		Store: StoreConfig{
			Dir:             "./data",
			File:            store.DefaultFileName,
			BackupFile:      store.DefaultBackupFileName,
			ReadAttempts:    store.DefaultAttempts,
			WriteAttempts:   store.DefaultAttempts,
			ReadRetryDelay:  store.DefaultReadRetryDelay,
			WriteRetryDelay: store.DefaultWriteRetryDelay,
		},
		Auth: AuthConfig{
			Required: true,
			Username: "admin",
			Password: "1234",
			TokenTTL: 24 * time.Hour,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in that order. A .env file in the working directory is read
// into the environment first. Missing files are not an error.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to read .env: %w", err)
	}

	if path == "" {
		path = os.Getenv("TASKS_CONFIG")
	}
	if path == "" {
		path = "config.yaml"
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return Config{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Server.Port, "TASKS_PORT")
	setString(&c.Server.CORSOrigins, "TASKS_CORS_ORIGINS")
	setString(&c.Store.Dir, "TASKS_DATA_DIR")
	setString(&c.Auth.Username, "TASKS_USERNAME")
	setString(&c.Auth.Password, "TASKS_PASSWORD")
	setString(&c.Auth.PasswordHash, "TASKS_PASSWORD_HASH")
	setString(&c.Auth.TokenSecret, "TASKS_TOKEN_SECRET")
	setString(&c.Log.Level, "TASKS_LOG_LEVEL")

	if v := os.Getenv("TASKS_REQUIRE_AUTH"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("TASKS_REQUIRE_AUTH: %w", err)
		}
		c.Auth.Required = b
	}
	if v := os.Getenv("TASKS_LOG_PRETTY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("TASKS_LOG_PRETTY: %w", err)
		}
		c.Log.Pretty = b
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if strings.TrimSpace(c.Store.Dir) == "" {
		errs = append(errs, errors.New("store.dir is required"))
	}
	if c.Store.File == c.Store.BackupFile {
		errs = append(errs, errors.New("store.file and store.backup_file must differ"))
	}
	if c.Store.ReadAttempts < 1 || c.Store.WriteAttempts < 1 {
		errs = append(errs, errors.New("store attempts must be at least 1"))
	}
	if c.Store.ReadRetryDelay < 0 || c.Store.WriteRetryDelay < 0 {
		errs = append(errs, errors.New("store retry delays must not be negative"))
	}
	if c.Auth.Required {
		if c.Auth.Username == "" {
			errs = append(errs, errors.New("auth.username is required"))
		}
		if c.Auth.Password == "" && c.Auth.PasswordHash == "" {
			errs = append(errs, errors.New("auth.password or auth.password_hash is required"))
		}
		if c.Auth.TokenTTL <= 0 {
			errs = append(errs, errors.New("auth.token_ttl must be positive"))
		}
	}
	return errors.Join(errs...)
}

// StoreOptions maps the store section onto store.Options.
func (c Config) StoreOptions() store.Options {
	return store.Options{
		Dir:             c.Store.Dir,
		FileName:        c.Store.File,
		BackupFileName:  c.Store.BackupFile,
		ReadAttempts:    c.Store.ReadAttempts,
		WriteAttempts:   c.Store.WriteAttempts,
		ReadRetryDelay:  c.Store.ReadRetryDelay,
		WriteRetryDelay: c.Store.WriteRetryDelay,
	}
}
