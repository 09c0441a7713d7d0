package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/sirupsen/logrus"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment overrides, e.g. TRAPCAM_BASE_URL.
const EnvPrefix = "TRAPCAM_"

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (TRAPCAM_*). A missing file is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return cfg, nil
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

var validListingFormats = map[ListingFormat]bool{
	ListingHTML: true,
	ListingJSON: true,
}

// Validate checks that the configuration contains usable values.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid base_url %q", c.BaseURL)
	}
	if !validListingFormats[c.ListingFormat] {
		return fmt.Errorf("invalid listing_format %q: must be html or json", c.ListingFormat)
	}
	if !c.Development && (c.Dataset == "" || c.Weights == "") {
		return fmt.Errorf("dataset and weights are required unless development is set")
	}
	if c.ModelFile == "" {
		return fmt.Errorf("model_file is required")
	}
	if c.Debounce < 0 {
		return fmt.Errorf("debounce must be non-negative")
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache_ttl must be positive")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session_ttl must be positive")
	}
	if c.FetchRate <= 0 {
		return fmt.Errorf("fetch_rate must be positive")
	}
	if c.FetchBurst < 1 {
		return fmt.Errorf("fetch_burst must be at least 1")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return nil
}

// ModelURL is the weight-source URL of the configured dataset and weights.
func (c *Config) ModelURL() string {
	return WeightsURL(c.BaseURL, c.Dataset, c.Weights)
}

// WeightsURL builds <base>/weights/<dataset>/<weights>, the directory holding
// the model file and its metadata sidecar.
func WeightsURL(base, dataset, weights string) string {
	return fmt.Sprintf("%s/weights/%s/%s", strings.TrimRight(base, "/"),
		url.PathEscape(dataset), url.PathEscape(weights))
}

// ImagesURL builds <base>/images/<folder>, the folder's directory index.
func ImagesURL(base, folder string) string {
	return fmt.Sprintf("%s/images/%s", strings.TrimRight(base, "/"), url.PathEscape(folder))
}

// Logger returns a logrus logger configured with the log level.
func (c *Config) Logger() *logrus.Logger {
	log := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return log
}
