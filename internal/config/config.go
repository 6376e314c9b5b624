// Package config loads service settings from an optional YAML file with
// environment variable overrides. Environment always wins over file values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings holds every tunable of the service.
type Settings struct {
	ListenAddr  string `yaml:"listen_addr"`
	DataDir     string `yaml:"data_dir"`
	ImageDir    string `yaml:"image_dir"`
	ArtifactDir string `yaml:"artifact_dir"`
	LogFile     string `yaml:"log_file"`

	OpenAIAPIKey         string `yaml:"openai_api_key"`
	OpenAIBaseURL        string `yaml:"openai_base_url"`
	OpenAIImageModel     string `yaml:"openai_image_model"`
	OpenAITextModel      string `yaml:"openai_text_model"`
	OpenAIVisionModel    string `yaml:"openai_vision_model"`
	OpenAITimeoutSeconds int    `yaml:"openai_timeout_seconds"`

	CompareThreshold float64 `yaml:"compare_threshold"`
}

// Default returns the settings used when nothing is configured.
func Default() Settings {
	return Settings{
		ListenAddr:           ":8000",
		DataDir:              "./data",
		ImageDir:             "./images",
		ArtifactDir:          "./artifacts",
		OpenAIBaseURL:        "https://api.openai.com",
		OpenAIImageModel:     "gpt-image-1",
		OpenAITextModel:      "gpt-4.1-mini",
		OpenAIVisionModel:    "gpt-4.1-mini",
		OpenAITimeoutSeconds: 120,
		CompareThreshold:     0.30,
	}
}

// Load reads settings from path (optional; empty path skips the file),
// applies environment overrides, and validates the result.
func Load(path string) (Settings, error) {
	s := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &s); err != nil {
			return Settings{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	s.applyEnv()
	if err := s.validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s *Settings) applyEnv() {
	setStr := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setStr(&s.ListenAddr, "APP_LISTEN_ADDR")
	setStr(&s.DataDir, "APP_DATA_DIR")
	setStr(&s.ImageDir, "APP_IMAGE_DIR")
	setStr(&s.ArtifactDir, "APP_ARTIFACT_DIR")
	setStr(&s.LogFile, "APP_LOG_FILE")
	setStr(&s.OpenAIAPIKey, "OPENAI_API_KEY")
	setStr(&s.OpenAIBaseURL, "OPENAI_BASE_URL")
	setStr(&s.OpenAIImageModel, "OPENAI_IMAGE_MODEL")
	setStr(&s.OpenAITextModel, "OPENAI_TEXT_MODEL")
	setStr(&s.OpenAIVisionModel, "OPENAI_VISION_MODEL")

	if v := strings.TrimSpace(os.Getenv("OPENAI_TIMEOUT_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			s.OpenAITimeoutSeconds = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("APP_COMPARE_THRESHOLD")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			s.CompareThreshold = f
		}
	}
}

func (s Settings) validate() error {
	if s.CompareThreshold < 0 || s.CompareThreshold > 1 {
		return fmt.Errorf("compare_threshold must be within [0,1], got %v", s.CompareThreshold)
	}
	if s.OpenAITimeoutSeconds <= 0 {
		return fmt.Errorf("openai_timeout_seconds must be positive, got %d", s.OpenAITimeoutSeconds)
	}
	if s.DataDir == "" || s.ImageDir == "" || s.ArtifactDir == "" {
		return fmt.Errorf("data_dir, image_dir, and artifact_dir must be set")
	}
	return nil
}

// Timeout returns the upstream request timeout as a duration.
func (s Settings) Timeout() time.Duration {
	return time.Duration(s.OpenAITimeoutSeconds) * time.Second
}

// EnsureDirectories creates the storage directories if missing.
func (s Settings) EnsureDirectories() error {
	for _, dir := range []string{s.DataDir, s.ImageDir, s.ArtifactDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}
