package config

import "time"

// DefaultConfig returns the configuration used when no file or environment
// override is present. It points at a file server on localhost:8080 serving
// the ANIMAL folder and the BO16/ResNet-101 weights.
func DefaultConfig() *Config {
	return &Config{
		Listen:        ":3000",
		BaseURL:       "http://localhost:8080",
		Folder:        "ANIMAL",
		Dataset:       "BO16",
		Weights:       "ResNet-101",
		ModelFile:     "model.onnx",
		MetadataFile:  "model_metadata.json",
		ListingFormat: ListingHTML,
		Debounce:      500 * time.Millisecond,
		FetchRate:     20,
		FetchBurst:    4,
		CacheTTL:      10 * time.Minute,
		SessionTTL:    time.Hour,
		LogLevel:      "info",
	}
}
