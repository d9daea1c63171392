package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the namespace prefix for all Podium environment variables.
const EnvPrefix = "PODIUM_"

// Config holds all application configuration. Secrets (API keys) are loaded
// exclusively from environment variables and never appear in the config file.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	DBPath     string `yaml:"db_path"`

	TimeLimitSeconds int     `yaml:"time_limit_seconds"`
	Voice            string  `yaml:"voice"`
	VoiceSpeed       float64 `yaml:"voice_speed"`
	PurgeAfter       string  `yaml:"purge_after"`
	EagerTimeout     string  `yaml:"eager_timeout"`
	FinalizeTimeout  string  `yaml:"finalize_timeout"`

	EvaluationModel string `yaml:"evaluation_model"`
	ModerationModel string `yaml:"moderation_model"`
	TTSModel        string `yaml:"tts_model"`

	DeepgramModel string `yaml:"deepgram_model"`
	Language      string `yaml:"language"`
	SampleRate    int    `yaml:"sample_rate"`

	MediaFrameMaxBytes   int `yaml:"media_frame_max_bytes"`
	MediaFramesPerSecond int `yaml:"media_frames_per_second"`

	GDriveFolderID        string `yaml:"gdrive_folder_id"`
	GoogleCredentialsFile string `yaml:"google_credentials_file"`
	ExportInterval        string `yaml:"export_interval"`

	// Secrets — env vars only, never serialized to YAML.
	DeepgramAPIKey  string `yaml:"-"`
	OpenAIAPIKey    string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
	GeminiAPIKey    string `yaml:"-"`
}

func defaults() Config {
	return Config{
		ListenAddr:            ":8080",
		DBPath:                "data/podium.db",
		TimeLimitSeconds:      120,
		Voice:                 "alloy",
		VoiceSpeed:            1.0,
		PurgeAfter:            "10m",
		EagerTimeout:          "90s",
		FinalizeTimeout:       "10s",
		EvaluationModel:       "openai/gpt-4o-mini",
		ModerationModel:       "omni-moderation-latest",
		TTSModel:              "tts-1",
		DeepgramModel:         "nova-2",
		Language:              "en-US",
		SampleRate:            16000,
		MediaFrameMaxBytes:    32 * 1024,
		MediaFramesPerSecond:  50,
		ExportInterval:        "5m",
		GoogleCredentialsFile: "./service-account.json",
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, loads secrets, and validates the result.
// It returns the config, any validation warnings, and an error if the file
// exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

// ParsedPurgeAfter returns PurgeAfter as a time.Duration,
// falling back to 10m if the value is invalid.
func (c *Config) ParsedPurgeAfter() time.Duration {
	d, err := time.ParseDuration(c.PurgeAfter)
	if err != nil {
		return 10 * time.Minute
	}
	return d
}

// ParsedEagerTimeout returns EagerTimeout as a time.Duration,
// falling back to 90s if the value is invalid.
func (c *Config) ParsedEagerTimeout() time.Duration {
	d, err := time.ParseDuration(c.EagerTimeout)
	if err != nil {
		return 90 * time.Second
	}
	return d
}

// ParsedFinalizeTimeout returns FinalizeTimeout as a time.Duration,
// falling back to 10s if the value is invalid.
func (c *Config) ParsedFinalizeTimeout() time.Duration {
	d, err := time.ParseDuration(c.FinalizeTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// ParsedExportInterval returns ExportInterval as a time.Duration,
// falling back to 5m if the value is invalid.
func (c *Config) ParsedExportInterval() time.Duration {
	d, err := time.ParseDuration(c.ExportInterval)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// APIKeyFor returns the secret for an evaluation model provider as parsed
// by llm.ParseModel. Unknown providers get an empty key.
func (c *Config) APIKeyFor(provider string) string {
	switch provider {
	case "openai":
		return c.OpenAIAPIKey
	case "anthropic":
		return c.AnthropicAPIKey
	case "gemini":
		return c.GeminiAPIKey
	default:
		return ""
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(EnvPrefix + "DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(EnvPrefix + "TIME_LIMIT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			cfg.TimeLimitSeconds = n
		}
	}
	if v := os.Getenv(EnvPrefix + "VOICE"); v != "" {
		cfg.Voice = v
	}
	if v := os.Getenv(EnvPrefix + "VOICE_SPEED"); v != "" {
		if speed, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && speed > 0 {
			cfg.VoiceSpeed = speed
		}
	}
	if v := os.Getenv(EnvPrefix + "PURGE_AFTER"); v != "" {
		cfg.PurgeAfter = v
	}
	if v := os.Getenv(EnvPrefix + "EAGER_TIMEOUT"); v != "" {
		cfg.EagerTimeout = v
	}
	if v := os.Getenv(EnvPrefix + "FINALIZE_TIMEOUT"); v != "" {
		cfg.FinalizeTimeout = v
	}
	if v := os.Getenv(EnvPrefix + "EVALUATION_MODEL"); v != "" {
		cfg.EvaluationModel = v
	}
	if v := os.Getenv(EnvPrefix + "MODERATION_MODEL"); v != "" {
		cfg.ModerationModel = v
	}
	if v := os.Getenv(EnvPrefix + "TTS_MODEL"); v != "" {
		cfg.TTSModel = v
	}
	if v := os.Getenv(EnvPrefix + "DEEPGRAM_MODEL"); v != "" {
		cfg.DeepgramModel = v
	}
	if v := os.Getenv(EnvPrefix + "LANGUAGE"); v != "" {
		cfg.Language = v
	}
	if v := os.Getenv(EnvPrefix + "SAMPLE_RATE"); v != "" {
		if rate, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && rate > 0 {
			cfg.SampleRate = rate
		}
	}
	if v := os.Getenv(EnvPrefix + "MEDIA_FRAME_MAX_BYTES"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			cfg.MediaFrameMaxBytes = n
		}
	}
	if v := os.Getenv(EnvPrefix + "MEDIA_FRAMES_PER_SECOND"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			cfg.MediaFramesPerSecond = n
		}
	}
	if v := os.Getenv(EnvPrefix + "GDRIVE_FOLDER_ID"); v != "" {
		cfg.GDriveFolderID = v
	}
	if v := os.Getenv(EnvPrefix + "GOOGLE_CREDENTIALS_FILE"); v != "" {
		cfg.GoogleCredentialsFile = v
	}
	if v := os.Getenv(EnvPrefix + "EXPORT_INTERVAL"); v != "" {
		cfg.ExportInterval = v
	}
}

func loadSecrets(cfg *Config) {
	cfg.DeepgramAPIKey = os.Getenv(EnvPrefix + "DEEPGRAM_API_KEY")
	cfg.OpenAIAPIKey = os.Getenv(EnvPrefix + "OPENAI_API_KEY")
	cfg.AnthropicAPIKey = os.Getenv(EnvPrefix + "ANTHROPIC_API_KEY")
	cfg.GeminiAPIKey = os.Getenv(EnvPrefix + "GEMINI_API_KEY")
}

func validate(cfg *Config) []string {
	var warnings []string

	if cfg.DeepgramAPIKey == "" {
		warnings = append(warnings, "Deepgram API key not configured — live transcription is disabled. Set "+EnvPrefix+"DEEPGRAM_API_KEY.")
	}
	provider, name, ok := strings.Cut(cfg.EvaluationModel, "/")
	if !ok || provider == "" || name == "" {
		warnings = append(warnings, fmt.Sprintf("Invalid evaluation_model %q — expected provider/model.", cfg.EvaluationModel))
	} else if cfg.APIKeyFor(provider) == "" {
		warnings = append(warnings, fmt.Sprintf("No API key for evaluation provider %q — evaluations fall back to canned feedback. Set %s%s_API_KEY.", provider, EnvPrefix, strings.ToUpper(provider)))
	}
	if cfg.OpenAIAPIKey == "" {
		warnings = append(warnings, "OpenAI API key not configured — spoken feedback and moderation are disabled. Set "+EnvPrefix+"OPENAI_API_KEY.")
	}
	if _, err := time.ParseDuration(cfg.PurgeAfter); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid purge_after %q — using default 10m.", cfg.PurgeAfter))
	}
	if _, err := time.ParseDuration(cfg.EagerTimeout); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid eager_timeout %q — using default 90s.", cfg.EagerTimeout))
	}
	if _, err := time.ParseDuration(cfg.FinalizeTimeout); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid finalize_timeout %q — using default 10s.", cfg.FinalizeTimeout))
	}
	if _, err := time.ParseDuration(cfg.ExportInterval); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid export_interval %q — using default 5m.", cfg.ExportInterval))
	}

	return warnings
}
