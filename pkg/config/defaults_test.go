package config

import (
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestSetDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	tests := []struct {
		name     string
		got      interface{}
		expected interface{}
	}{
		{"api.url", v.GetString("api.url"), DefaultAPIURL},
		{"api.model", v.GetString("api.model"), DefaultModel},
		{"api.key", v.GetString("api.key"), ""},
		{"api.key_env", v.GetString("api.key_env"), DefaultAPIKeyEnv},
		{"api.max_tokens", v.GetInt("api.max_tokens"), DefaultMaxTokens},
		{"exec.backend", v.GetString("exec.backend"), "local"},
		{"retry.max_attempts", v.GetInt("retry.max_attempts"), 3},
		{"retry.readme_limit", v.GetInt("retry.readme_limit"), 5000},
		{"chat.max_attempts", v.GetInt("chat.max_attempts"), 1},
		{"workspace.dir", v.GetString("workspace.dir"), "workspace"},
		{"history.enabled", v.GetBool("history.enabled"), true},
		{"logging.format", v.GetString("logging.format"), "text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, tt.got)
			}
		})
	}
}

func TestSetDefaults_Durations(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	tests := []struct {
		key      string
		expected time.Duration
	}{
		{"api.timeout", 180 * time.Second},
		{"exec.timeout", 5 * time.Minute},
		{"retry.pause", 2 * time.Second},
		{"workspace.readme_timeout", 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := ParseDuration(v, tt.key)
			if err != nil {
				t.Fatalf("ParseDuration(%q) unexpected error: %v", tt.key, err)
			}
			if got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestParseDuration_NumericSeconds(t *testing.T) {
	v := viper.New()
	v.Set("pause", 3)
	got, err := ParseDuration(v, "pause")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 3*time.Second {
		t.Errorf("expected 3s, got %v", got)
	}

	v.Set("pause", "bogus")
	if _, err := ParseDuration(v, "pause"); err == nil {
		t.Error("expected error for invalid duration")
	}
}

func TestDefaultLockDir(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	got := v.GetString("security.lock_dir")
	if got != DefaultLockDir() {
		t.Errorf("security.lock_dir = %q, want %q", got, DefaultLockDir())
	}
	if !filepath.IsAbs(got) || filepath.Base(got) != "locks" {
		t.Errorf("DefaultLockDir() = %q, want an absolute .../locks path", got)
	}
}

func TestDefaultDenyPatterns_Compile(t *testing.T) {
	for _, p := range DefaultDenyPatterns() {
		if _, err := regexp.Compile("(?i)" + p); err != nil {
			t.Errorf("pattern %q does not compile: %v", p, err)
		}
	}
}

func TestDefaultFileConfig_NoKey(t *testing.T) {
	fc := DefaultFileConfig()
	if fc.API.KeyEnv != DefaultAPIKeyEnv {
		t.Errorf("expected key env %q, got %q", DefaultAPIKeyEnv, fc.API.KeyEnv)
	}
	if fc.Retry.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("expected %d attempts, got %d", DefaultMaxAttempts, fc.Retry.MaxAttempts)
	}
	if len(fc.Exec.Shells) == 0 {
		t.Error("expected default shells")
	}
}

func TestDefaultShells_NotEmpty(t *testing.T) {
	shells := DefaultShells()
	if len(shells) == 0 {
		t.Fatal("expected at least one shell")
	}
	if shells[0] != "pwsh" {
		t.Errorf("expected pwsh first, got %q", shells[0])
	}
}
