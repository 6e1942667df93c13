// Package config loads client settings from defaults, an optional YAML file,
// a .env file and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/joho/godotenv"
	"github.com/talentbridge/go-apiclient/api"
	"github.com/talentbridge/go-apiclient/credential"
	"github.com/talentbridge/go-apiclient/retry"
	"gopkg.in/yaml.v3"
)

// AppName names the configuration directory.
const AppName = "apiclient"

// DefaultAPIURL is used when no API URL is configured.
const DefaultAPIURL = "https://api.example.com"

// Environment keys. Where a key lists several names the first one set wins.
var (
	KeysAPIURL          = []string{"API_URL", "VUE_APP_API_URL"}
	KeysTimeout         = []string{"API_TIMEOUT_MS"}
	KeysRetryAttempts   = []string{"API_RETRY_ATTEMPTS"}
	KeysRetryDelay      = []string{"API_RETRY_DELAY_MS"}
	KeysRetryMultiplier = []string{"API_RETRY_MULTIPLIER"}
	KeysDirectUpload    = []string{"ENABLE_DIRECT_UPLOAD", "VUE_APP_ENABLE_DIRECT_UPLOAD"}
	KeysDebug           = []string{"APICLIENT_DEBUG"}
	KeysCredentialsPath = []string{"APICLIENT_CREDENTIALS_PATH"}
	KeysCacheTTL        = []string{"APICLIENT_CACHE_TTL"}
	KeysBreaker         = []string{"APICLIENT_CIRCUIT_BREAKER"}
)

// ErrInvalidConfig is wrapped by every Validate error.
var ErrInvalidConfig = errors.New("invalid config")

// Config ...
type Config struct {
	APIURL          string        `yaml:"api_url"`
	Timeout         time.Duration `yaml:"timeout"`
	RetryAttempts   int           `yaml:"retry_attempts"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
	RetryMultiplier float64       `yaml:"retry_multiplier"`
	DirectUpload    bool          `yaml:"direct_upload"`
	Debug           bool          `yaml:"debug"`
	CredentialsPath string        `yaml:"credentials_path"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	Breaker         bool          `yaml:"circuit_breaker"`
}

// Default ...
func Default() Config {
	policy := retry.DefaultPolicy()
	return Config{
		APIURL:          DefaultAPIURL,
		Timeout:         api.DefaultTimeout,
		RetryAttempts:   policy.MaxAttempts,
		RetryDelay:      policy.BaseDelay,
		RetryMultiplier: policy.Multiplier,
		CredentialsPath: credential.DefaultPath(AppName),
	}
}

// Load builds the configuration. An empty path skips the YAML file.
func Load(envRepo env.Repository, path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(envRepo); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// LoadDotEnv copies the variables of the .env file at path into envRepo.
// Variables already set are kept. A missing file is not an error.
func LoadDotEnv(envRepo env.Repository, path string) error {
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	for key, value := range values {
		if envRepo.Get(key) != "" {
			continue
		}
		if err := envRepo.Set(key, value); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	return nil
}

func (c *Config) applyEnv(envRepo env.Repository) error {
	if v, ok := lookup(envRepo, KeysAPIURL...); ok {
		c.APIURL = v
	}
	if v, ok := lookup(envRepo, KeysCredentialsPath...); ok {
		c.CredentialsPath = v
	}

	var err error
	if c.Timeout, err = millis(envRepo, KeysTimeout, c.Timeout); err != nil {
		return err
	}
	if c.RetryDelay, err = millis(envRepo, KeysRetryDelay, c.RetryDelay); err != nil {
		return err
	}
	if v, ok := lookup(envRepo, KeysRetryAttempts...); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", KeysRetryAttempts[0], err)
		}
		c.RetryAttempts = n
	}
	if v, ok := lookup(envRepo, KeysRetryMultiplier...); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", KeysRetryMultiplier[0], err)
		}
		c.RetryMultiplier = f
	}
	if v, ok := lookup(envRepo, KeysCacheTTL...); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", KeysCacheTTL[0], err)
		}
		c.CacheTTL = d
	}

	if v, ok := lookupBool(envRepo, KeysDirectUpload...); ok {
		c.DirectUpload = v
	}
	if v, ok := lookupBool(envRepo, KeysDebug...); ok {
		c.Debug = v
	}
	if v, ok := lookupBool(envRepo, KeysBreaker...); ok {
		c.Breaker = v
	}
	return nil
}

// Validate ...
func (c Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: api url must be absolute: %q", ErrInvalidConfig, c.APIURL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("%w: cache ttl must not be negative", ErrInvalidConfig)
	}
	if err := c.RetryPolicy().Validate(); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, err)
	}
	return nil
}

// RetryPolicy ...
func (c Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.RetryAttempts,
		BaseDelay:   c.RetryDelay,
		Multiplier:  c.RetryMultiplier,
	}
}

// API returns the request facade configuration.
func (c Config) API() api.Config {
	return api.Config{
		BaseURL:     c.APIURL,
		Timeout:     c.Timeout,
		RetryPolicy: c.RetryPolicy(),
		CacheTTL:    c.CacheTTL,
	}
}

func lookup(envRepo env.Repository, keys ...string) (string, bool) {
	for _, key := range keys {
		if v := strings.TrimSpace(envRepo.Get(key)); v != "" {
			return v, true
		}
	}
	return "", false
}

func lookupBool(envRepo env.Repository, keys ...string) (bool, bool) {
	v, ok := lookup(envRepo, keys...)
	if !ok {
		return false, false
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true, true
	}
	return false, true
}

func millis(envRepo env.Repository, keys []string, fallback time.Duration) (time.Duration, error) {
	v, ok := lookup(envRepo, keys...)
	if !ok {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", keys[0], err)
	}
	return time.Duration(n) * time.Millisecond, nil
}
