package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mnemos-app/mnemos-backend/internal/linker"
	"github.com/mnemos-app/mnemos-backend/internal/platform/envutil"
)

type Config struct {
	Mode        string
	Port        string
	CORSOrigins []string

	JWTSecret  string
	TokenTTL   time.Duration
	CronSecret string

	RedisURL        string
	SearchIndexPath string
	VectorProvider  string

	Linker linker.Config
}

// LoadConfig reads the environment, then overlays the optional YAML file
// named by MNEMOS_CONFIG. YAML wins where it sets a value.
func LoadConfig() (Config, error) {
	cfg := Config{
		Mode:            envutil.String("APP_MODE", "dev"),
		Port:            envutil.String("PORT", "8080"),
		CORSOrigins:     splitList(envutil.String("CORS_ORIGINS", "")),
		JWTSecret:       envutil.String("JWT_SECRET", ""),
		TokenTTL:        time.Duration(envutil.Int("TOKEN_TTL_HOURS", 24)) * time.Hour,
		CronSecret:      envutil.String("CRON_SECRET", ""),
		RedisURL:        envutil.String("REDIS_URL", ""),
		SearchIndexPath: envutil.String("SEARCH_INDEX_PATH", "mnemos.bleve"),
		VectorProvider:  envutil.String("VECTOR_PROVIDER", "disabled"),
		Linker: linker.Config{
			InteractiveThreshold:   envutil.Float("LINK_THRESHOLD", 0.7),
			SweepThreshold:         envutil.Float("SWEEP_THRESHOLD", 0.6),
			NearDuplicateThreshold: envutil.Float("NEAR_DUPLICATE_THRESHOLD", 0.9),
			MaxLinks:               envutil.Int("MAX_LINKS", 5),
			CandidateLimit:         envutil.Int("CANDIDATE_LIMIT", 20),
			FallbackRecent:         envutil.Int("FALLBACK_RECENT", 5),
			JudgeBodyBudget:        envutil.Int("JUDGE_BODY_BUDGET", 300),
			ContradictionWindow:    envutil.Int("CONTRADICTION_WINDOW", 10),
			MaxLinkRetries:         envutil.Int("MAX_LINK_RETRIES", 3),
		},
	}

	if path := envutil.String("MNEMOS_CONFIG", ""); path != "" {
		if err := overlayYAML(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type yamlConfig struct {
	Mode        *string  `yaml:"mode"`
	Port        *string  `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`

	JWTSecret     *string `yaml:"jwt_secret"`
	TokenTTLHours *int    `yaml:"token_ttl_hours"`
	CronSecret    *string `yaml:"cron_secret"`

	RedisURL        *string `yaml:"redis_url"`
	SearchIndexPath *string `yaml:"search_index_path"`
	VectorProvider  *string `yaml:"vector_provider"`

	Linker struct {
		InteractiveThreshold   *float64 `yaml:"interactive_threshold"`
		SweepThreshold         *float64 `yaml:"sweep_threshold"`
		NearDuplicateThreshold *float64 `yaml:"near_duplicate_threshold"`
		MaxLinks               *int     `yaml:"max_links"`
		CandidateLimit         *int     `yaml:"candidate_limit"`
		FallbackRecent         *int     `yaml:"fallback_recent"`
		JudgeBodyBudget        *int     `yaml:"judge_body_budget"`
		ContradictionWindow    *int     `yaml:"contradiction_window"`
		MaxLinkRetries         *int     `yaml:"max_link_retries"`
	} `yaml:"linker"`
}

func overlayYAML(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var yc yamlConfig
	if err := yaml.Unmarshal(raw, &yc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setString(&cfg.Mode, yc.Mode)
	setString(&cfg.Port, yc.Port)
	if len(yc.CORSOrigins) > 0 {
		cfg.CORSOrigins = yc.CORSOrigins
	}
	setString(&cfg.JWTSecret, yc.JWTSecret)
	if yc.TokenTTLHours != nil {
		cfg.TokenTTL = time.Duration(*yc.TokenTTLHours) * time.Hour
	}
	setString(&cfg.CronSecret, yc.CronSecret)
	setString(&cfg.RedisURL, yc.RedisURL)
	setString(&cfg.SearchIndexPath, yc.SearchIndexPath)
	setString(&cfg.VectorProvider, yc.VectorProvider)

	setFloat(&cfg.Linker.InteractiveThreshold, yc.Linker.InteractiveThreshold)
	setFloat(&cfg.Linker.SweepThreshold, yc.Linker.SweepThreshold)
	setFloat(&cfg.Linker.NearDuplicateThreshold, yc.Linker.NearDuplicateThreshold)
	setInt(&cfg.Linker.MaxLinks, yc.Linker.MaxLinks)
	setInt(&cfg.Linker.CandidateLimit, yc.Linker.CandidateLimit)
	setInt(&cfg.Linker.FallbackRecent, yc.Linker.FallbackRecent)
	setInt(&cfg.Linker.JudgeBodyBudget, yc.Linker.JudgeBodyBudget)
	setInt(&cfg.Linker.ContradictionWindow, yc.Linker.ContradictionWindow)
	setInt(&cfg.Linker.MaxLinkRetries, yc.Linker.MaxLinkRetries)
	return nil
}

func validate(cfg Config) error {
	if cfg.JWTSecret == "" {
		return fmt.Errorf("missing JWT_SECRET")
	}
	for name, th := range map[string]float64{
		"interactive threshold":    cfg.Linker.InteractiveThreshold,
		"sweep threshold":          cfg.Linker.SweepThreshold,
		"near-duplicate threshold": cfg.Linker.NearDuplicateThreshold,
	} {
		if th < 0 || th > 1 {
			return fmt.Errorf("%s must be within [0,1], got %v", name, th)
		}
	}
	if cfg.Linker.MaxLinks <= 0 {
		return fmt.Errorf("max links must be positive")
	}
	switch cfg.VectorProvider {
	case "qdrant", "pinecone", "disabled":
	default:
		return fmt.Errorf("unknown vector provider %q", cfg.VectorProvider)
	}
	return nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func setString(dst *string, src *string) {
	if src != nil && *src != "" {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}
