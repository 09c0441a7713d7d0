package config

import "time"

// ListingFormat selects how a folder listing is read from the file server.
type ListingFormat string

const (
	ListingHTML ListingFormat = "html"
	ListingJSON ListingFormat = "json"
)

// Config is the startup configuration. It is built once and passed by value
// to every component; nothing mutates it after Load returns.
type Config struct {
	Listen         string        `yaml:"listen" koanf:"listen"`
	BaseURL        string        `yaml:"base_url" koanf:"base_url"`
	Folder         string        `yaml:"folder" koanf:"folder"`
	Dataset        string        `yaml:"dataset" koanf:"dataset"`
	Weights        string        `yaml:"weights" koanf:"weights"`
	ModelFile      string        `yaml:"model_file" koanf:"model_file"`
	MetadataFile   string        `yaml:"metadata_file" koanf:"metadata_file"`
	OnnxRuntimeLib string        `yaml:"onnxruntime_lib" koanf:"onnxruntime_lib"`
	ListingFormat  ListingFormat `yaml:"listing_format" koanf:"listing_format"`
	Debounce       time.Duration `yaml:"debounce" koanf:"debounce"`
	Development    bool          `yaml:"development" koanf:"development"`
	FetchRate      float64       `yaml:"fetch_rate" koanf:"fetch_rate"`
	FetchBurst     int           `yaml:"fetch_burst" koanf:"fetch_burst"`
	CacheTTL       time.Duration `yaml:"cache_ttl" koanf:"cache_ttl"`
	SessionTTL     time.Duration `yaml:"session_ttl" koanf:"session_ttl"`
	LogLevel       string        `yaml:"log_level" koanf:"log_level"`
}
