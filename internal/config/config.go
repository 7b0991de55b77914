package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Addr        string `toml:"addr"`
	LogLevel    string `toml:"log_level"`
	LogJSON     bool   `toml:"log_json"`
	CORSOrigins string `toml:"cors_origins"`

	// Inference endpoint. APIKey is only ever read from the environment.
	EndpointURL string        `toml:"endpoint_url"`
	APIKey      string        `toml:"-"`
	Timeout     time.Duration `toml:"timeout"`
	RetryDelay  time.Duration `toml:"retry_delay"`

	// Sampling
	Temperature float64 `toml:"temperature"`
	TopP        float64 `toml:"top_p"`
	OutputLen   int     `toml:"output_len"`

	// Inference gate
	MaxConcurrent int `toml:"max_concurrent"`
	MaxQueue      int `toml:"max_queue"`
}

func Default() *Config {
	return &Config{
		Addr:          "8080",
		LogLevel:      "info",
		CORSOrigins:   "*",
		Timeout:       60 * time.Second,
		RetryDelay:    time.Second,
		Temperature:   0.2,
		TopP:          0.9,
		OutputLen:     512,
		MaxConcurrent: 8,
		MaxQueue:      18,
	}
}

// Load builds the configuration from defaults, then the optional TOML file
// at path, then the environment. The result is validated; a missing
// endpoint URL or API key is an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("%w: read %s: %w", ErrInvalidConfig, path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Addr = getEnv("ADDR", c.Addr)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.CORSOrigins = getEnv("CORS_ORIGINS", c.CORSOrigins)
	c.EndpointURL = getEnv("URL", c.EndpointURL)
	c.APIKey = getEnv("MOSAICML_API_KEY", c.APIKey)

	var err error
	if c.LogJSON, err = envBool("LOG_JSON", c.LogJSON); err != nil {
		return err
	}
	if c.Timeout, err = envDuration("INFERENCE_TIMEOUT", c.Timeout); err != nil {
		return err
	}
	if c.RetryDelay, err = envDuration("INFERENCE_RETRY_DELAY", c.RetryDelay); err != nil {
		return err
	}
	if c.MaxConcurrent, err = envInt("MAX_CONCURRENT", c.MaxConcurrent); err != nil {
		return err
	}
	if c.MaxQueue, err = envInt("MAX_QUEUE", c.MaxQueue); err != nil {
		return err
	}
	return nil
}

func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.EndpointURL,
			validation.Required.Error("URL environment variable must be set"),
			validation.By(absoluteURL),
		),
		validation.Field(&c.APIKey,
			validation.Required.Error("MOSAICML_API_KEY environment variable must be set"),
		),
		validation.Field(&c.Addr, validation.Required),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.RetryDelay, validation.Min(time.Duration(0))),
		validation.Field(&c.Temperature, validation.Min(0.0)),
		validation.Field(&c.TopP, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.OutputLen, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxConcurrent, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxQueue, validation.Min(0)),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Origins splits CORSOrigins on commas.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func absoluteURL(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("must be an absolute http(s) URL")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
