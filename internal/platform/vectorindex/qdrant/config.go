package qdrant

import (
	"fmt"
	"time"

	"github.com/mnemos-app/mnemos-backend/internal/platform/envutil"
)

type ConfigErrorCode string

const (
	ConfigErrMissingURL        ConfigErrorCode = "MISSING_URL"
	ConfigErrMissingCollection ConfigErrorCode = "MISSING_COLLECTION"
	ConfigErrInvalidDimension  ConfigErrorCode = "INVALID_DIMENSION"
)

type ConfigError struct {
	Code  ConfigErrorCode
	Field string
}

func (e *ConfigError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("qdrant config: %s (%s)", e.Field, e.Code)
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Dimension  int
	Timeout    time.Duration
}

func ResolveConfigFromEnv() Config {
	return Config{
		URL:        envutil.String("QDRANT_URL", ""),
		APIKey:     envutil.String("QDRANT_API_KEY", ""),
		Collection: envutil.String("QDRANT_COLLECTION", "entries"),
		Dimension:  envutil.Int("QDRANT_DIMENSION", 1536),
		Timeout:    time.Duration(envutil.Int("QDRANT_TIMEOUT_SECONDS", 15)) * time.Second,
	}
}

func ValidateConfig(cfg Config) error {
	if cfg.URL == "" {
		return &ConfigError{Code: ConfigErrMissingURL, Field: "URL"}
	}
	if cfg.Collection == "" {
		return &ConfigError{Code: ConfigErrMissingCollection, Field: "Collection"}
	}
	if cfg.Dimension <= 0 {
		return &ConfigError{Code: ConfigErrInvalidDimension, Field: "Dimension"}
	}
	return nil
}
