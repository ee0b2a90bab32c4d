package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port int `mapstructure:"port" yaml:"port"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	// Level is a zerolog level name (debug, info, warn, error).
	Level string `mapstructure:"level" yaml:"level"`

	// Format is either "json" or "console".
	Format string `mapstructure:"format" yaml:"format"`
}

// RetrievalConfig tunes how mailboxes are searched.
type RetrievalConfig struct {
	// DefaultTimeoutMs bounds each account search when a request
	// does not specify its own timeout.
	DefaultTimeoutMs int `mapstructure:"default_timeout_ms" yaml:"default_timeout_ms"`

	// Lookback is how far back from now messages are considered.
	Lookback time.Duration `mapstructure:"lookback" yaml:"lookback"`

	// Mailbox is the folder locked and searched on each account.
	Mailbox string `mapstructure:"mailbox" yaml:"mailbox"`
}

// DefaultTimeout returns DefaultTimeoutMs as a duration.
func (r RetrievalConfig) DefaultTimeout() time.Duration {
	return time.Duration(r.DefaultTimeoutMs) * time.Millisecond
}

// StorageConfig locates the optional SQLite account store.
type StorageConfig struct {
	// Path is the SQLite database file; empty disables the store.
	Path string `mapstructure:"path" yaml:"path"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Retrieval RetrievalConfig `mapstructure:"retrieval" yaml:"retrieval"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Accounts  []Account       `mapstructure:"accounts" yaml:"accounts"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/otprelay/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "otprelay", "config.yaml")
}

// DefaultStoragePath returns the default SQLite account store location.
func DefaultStoragePath() string {
	return filepath.Join(filepath.Dir(DefaultConfigPath()), "accounts.db")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{Port: 3000},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Retrieval: RetrievalConfig{
			DefaultTimeoutMs: DefaultTimeoutMillis,
			Lookback:         10 * time.Minute,
			Mailbox:          "INBOX",
		},
		Accounts: []Account{},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper,
// with environment variables layered on top. A missing file yields the
// default configuration. Accounts declared through numbered environment
// variables (EMAIL_USER_1, IMAP_HOST_1, ...) are appended after the
// accounts from the file.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.port", 3000)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("retrieval.default_timeout_ms", DefaultTimeoutMillis)
	v.SetDefault("retrieval.lookback", "10m")
	v.SetDefault("retrieval.mailbox", "INBOX")
	v.SetDefault("storage.path", "")

	// PORT is the conventional variable for the listener.
	_ = v.BindEnv("server.port", "SERVER_PORT", "PORT")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var pathErr *os.PathError
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	for i := range cfg.Accounts {
		if !cfg.Accounts[i].Active {
			// Viper unmarshals missing bools as false; treat unset as true.
			key := fmt.Sprintf("accounts.%d.active", i)
			if !v.IsSet(key) {
				cfg.Accounts[i].Active = true
			}
		}
	}

	cfg.Accounts = append(cfg.Accounts, AccountsFromEnv(os.LookupEnv)...)

	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// normalize applies per-account defaults and validates the result.
func (c *AppConfig) normalize() error {
	if c.Retrieval.DefaultTimeoutMs <= 0 {
		c.Retrieval.DefaultTimeoutMs = DefaultTimeoutMillis
	}
	if c.Retrieval.Lookback <= 0 {
		c.Retrieval.Lookback = 10 * time.Minute
	}
	if c.Retrieval.Mailbox == "" {
		c.Retrieval.Mailbox = "INBOX"
	}

	for i := range c.Accounts {
		acc := &c.Accounts[i]
		if strings.TrimSpace(acc.ID) == "" {
			return fmt.Errorf("account #%d: id is required", i+1)
		}
		acc.ApplyPreset()
		if acc.Port == 0 {
			acc.Port = 993
		}
		if acc.Email == "" {
			acc.Email = acc.Username
		}
	}

	return nil
}

// AccountsFromEnv builds accounts from numbered environment variables.
// Index n is read while EMAIL_USER_n or IMAP_HOST_n is set, starting at 1:
//
//	IMAP_HOST_n   (default imap.gmail.com)
//	IMAP_PORT_n   (default 993)
//	IMAP_SECURE_n (default "true")
//	EMAIL_USER_n
//	EMAIL_PASS_n
//
// The resulting account is named "account<n>" and is always active; it
// only becomes searchable once both credentials are present.
func AccountsFromEnv(lookup func(string) (string, bool)) []Account {
	get := func(key, fallback string) string {
		if val, ok := lookup(key); ok && val != "" {
			return val
		}
		return fallback
	}

	var accounts []Account
	for n := 1; ; n++ {
		suffix := strconv.Itoa(n)
		_, hasUser := lookup("EMAIL_USER_" + suffix)
		_, hasHost := lookup("IMAP_HOST_" + suffix)
		if !hasUser && !hasHost {
			break
		}

		port, err := strconv.Atoi(get("IMAP_PORT_"+suffix, "993"))
		if err != nil || port <= 0 {
			port = 993
		}

		user := get("EMAIL_USER_"+suffix, "")
		accounts = append(accounts, Account{
			ID:       "account" + suffix,
			Host:     get("IMAP_HOST_"+suffix, "imap.gmail.com"),
			Port:     port,
			Secure:   get("IMAP_SECURE_"+suffix, "true") == "true",
			Username: user,
			Password: get("EMAIL_PASS_"+suffix, ""),
			Email:    user,
			Active:   true,
		})
	}

	return accounts
}
