package core

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("IMAGESTUDIO_PROVIDER", "")
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("IMAGESTUDIO_DATA_DIR", t.TempDir())
	t.Setenv("IMAGESTUDIO_DB_PATH", "")
	t.Setenv("IMAGESTUDIO_LOG_PATH", "")
	t.Setenv("IMAGESTUDIO_DEV", "")
	t.Setenv("IMAGESTUDIO_MAX_ATTEMPTS", "")
	t.Setenv("IMAGESTUDIO_BACKOFF_MS", "")
	t.Setenv("IMAGESTUDIO_COOLDOWN_MS", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Provider != ProviderGemini {
		t.Errorf("Provider = %q, want %q", cfg.Provider, ProviderGemini)
	}
	if cfg.DatabasePath == "" || cfg.LogFilePath == "" {
		t.Error("default file paths not populated")
	}
	if cfg.DevMode {
		t.Error("DevMode defaulted to true")
	}
	if cfg.MaxAttempts != 0 || cfg.InitialBackoff != 0 || cfg.ItemCooldown != 0 {
		t.Error("engine overrides should stay zero when unset")
	}
}

func TestLoadConfigOpenAI(t *testing.T) {
	t.Setenv("IMAGESTUDIO_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("IMAGESTUDIO_DATA_DIR", t.TempDir())

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Provider != ProviderOpenAI {
		t.Errorf("Provider = %q, want %q", cfg.Provider, ProviderOpenAI)
	}
}

func TestLoadConfigMissingKey(t *testing.T) {
	t.Setenv("IMAGESTUDIO_PROVIDER", "gemini")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("IMAGESTUDIO_DATA_DIR", t.TempDir())

	if _, err := LoadConfig(); err == nil {
		t.Error("LoadConfig accepted a missing Gemini key")
	}
}

func TestLoadConfigUnknownProvider(t *testing.T) {
	t.Setenv("IMAGESTUDIO_PROVIDER", "midjourney")
	t.Setenv("IMAGESTUDIO_DATA_DIR", t.TempDir())

	if _, err := LoadConfig(); err == nil {
		t.Error("LoadConfig accepted an unknown provider")
	}
}

func TestLoadConfigEngineOverrides(t *testing.T) {
	t.Setenv("IMAGESTUDIO_PROVIDER", "gemini")
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("IMAGESTUDIO_DATA_DIR", t.TempDir())
	t.Setenv("IMAGESTUDIO_MAX_ATTEMPTS", "5")
	t.Setenv("IMAGESTUDIO_BACKOFF_MS", "1500")
	t.Setenv("IMAGESTUDIO_COOLDOWN_MS", "2000")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", cfg.MaxAttempts)
	}
	if cfg.InitialBackoff != 1500*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 1.5s", cfg.InitialBackoff)
	}
	if cfg.ItemCooldown != 2*time.Second {
		t.Errorf("ItemCooldown = %v, want 2s", cfg.ItemCooldown)
	}
}

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"YES", false, true},
		{"on", false, true},
		{"false", true, false},
		{"0", true, false},
		{"off", true, false},
		{"garbage", true, true},
		{"", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("TEST_BOOL_ENV", tt.value)
			if got := ParseBoolEnv("TEST_BOOL_ENV", tt.def); got != tt.want {
				t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
			}
		})
	}
}
