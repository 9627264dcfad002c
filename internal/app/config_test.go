package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("MNEMOS_CONFIG", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Linker.InteractiveThreshold != 0.7 {
		t.Errorf("interactive threshold = %v, want 0.7", cfg.Linker.InteractiveThreshold)
	}
	if cfg.Linker.SweepThreshold != 0.6 {
		t.Errorf("sweep threshold = %v, want 0.6", cfg.Linker.SweepThreshold)
	}
	if cfg.Linker.MaxLinks != 5 {
		t.Errorf("max links = %d, want 5", cfg.Linker.MaxLinks)
	}
	if cfg.VectorProvider != "disabled" {
		t.Errorf("vector provider = %q, want disabled", cfg.VectorProvider)
	}
}

func TestLoadConfigRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("MNEMOS_CONFIG", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("want error without JWT_SECRET")
	}
}

func TestLoadConfigYAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mnemos.yaml")
	body := `
port: "9090"
vector_provider: qdrant
linker:
  interactive_threshold: 0.8
  max_links: 3
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PORT", "8080")
	t.Setenv("MNEMOS_CONFIG", path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("port = %q, want yaml override 9090", cfg.Port)
	}
	if cfg.VectorProvider != "qdrant" {
		t.Errorf("vector provider = %q, want qdrant", cfg.VectorProvider)
	}
	if cfg.Linker.InteractiveThreshold != 0.8 {
		t.Errorf("interactive threshold = %v, want 0.8", cfg.Linker.InteractiveThreshold)
	}
	if cfg.Linker.MaxLinks != 3 {
		t.Errorf("max links = %d, want 3", cfg.Linker.MaxLinks)
	}
	// Untouched fields keep their env defaults.
	if cfg.Linker.SweepThreshold != 0.6 {
		t.Errorf("sweep threshold = %v, want 0.6", cfg.Linker.SweepThreshold)
	}
}

func TestLoadConfigRejectsBadThreshold(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("MNEMOS_CONFIG", "")
	t.Setenv("LINK_THRESHOLD", "1.5")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("want error for out-of-range threshold")
	}
}
