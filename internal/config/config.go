package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"

	"github.com/truenorth-finance/truenorth/internal/llm"
	"github.com/truenorth-finance/truenorth/internal/recurring"
)

// FileName is the config file inside the data directory.
const FileName = "config.yaml"

// EnvFileName is an optional dotenv file next to config.yaml, handy for
// keeping API keys out of the YAML.
const EnvFileName = ".env"

// EnvPrefix marks environment variables that override the config file,
// e.g. TRUENORTH_LLM_PROVIDER.
const EnvPrefix = "TRUENORTH_"

// Config represents the top-level config.yaml configuration.
type Config struct {
	LLM        LLMConfig        `yaml:"llm"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Recurring  recurring.Config `yaml:"recurring"`
	Import     ImportConfig     `yaml:"import"`
	Timezone   string           `yaml:"timezone" validate:"timezone"`
	LogLevel   string           `yaml:"log_level" validate:"omitempty,oneof=trace debug info warn error"`
}

// LLMConfig selects the classification provider.
type LLMConfig struct {
	Provider        string        `yaml:"provider" validate:"oneof=anthropic gemini"`
	Model           string        `yaml:"model,omitempty"`
	AnthropicAPIKey string        `yaml:"anthropic_api_key,omitempty"`
	GeminiAPIKey    string        `yaml:"gemini_api_key,omitempty"`
	BaseURL         string        `yaml:"base_url,omitempty"`
	Timeout         time.Duration `yaml:"timeout" validate:"gt=0"`
}

// ClassifierConfig tunes batching and retries.
type ClassifierConfig struct {
	// BatchSize is the chunk size when classifying what rules left over.
	BatchSize int `yaml:"batch_size" validate:"gte=1"`
	// AllBatchSize is the chunk size when reclassifying everything.
	AllBatchSize  int           `yaml:"all_batch_size" validate:"gte=1"`
	ChunkDelay    time.Duration `yaml:"chunk_delay" validate:"gte=0"`
	MaxAttempts   int           `yaml:"max_attempts" validate:"gte=1"`
	RateLimitBase time.Duration `yaml:"rate_limit_base" validate:"gte=0"`
}

// ImportConfig controls statement import.
type ImportConfig struct {
	// Bank forces a parser instead of detecting it from the header row.
	Bank string `yaml:"bank,omitempty" validate:"omitempty,oneof=commbank nab westpac anz suncorp"`
}

// envConfig holds the settings that can come from the environment.
type envConfig struct {
	LLMProvider     string `koanf:"llm_provider"`
	LLMModel        string `koanf:"llm_model"`
	LLMBaseURL      string `koanf:"llm_base_url"`
	AnthropicAPIKey string `koanf:"anthropic_api_key"`
	GeminiAPIKey    string `koanf:"gemini_api_key"`
	BatchSize       int    `koanf:"batch_size"`
	Timezone        string `koanf:"timezone"`
	LogLevel        string `koanf:"log_level"`
}

// Load reads a config.yaml file from disk.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// LoadWithEnv reads path if it exists (defaults otherwise), applies
// environment overrides and validates the result. A .env file in the same
// directory is loaded first; variables already set in the process win.
func LoadWithEnv(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, err
	}
	if err := LoadDotEnv(filepath.Dir(path)); err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv exports the variables in dir/.env that are not already set.
// A missing file is not an error.
func LoadDotEnv(dir string) error {
	err := godotenv.Load(filepath.Join(dir, EnvFileName))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", EnvFileName, err)
	}
	return nil
}

// ApplyEnv overrides cfg from the environment. The provider's usual key
// variables (ANTHROPIC_API_KEY, GEMINI_API_KEY) are honoured; prefixed
// variables win over them.
func ApplyEnv(cfg *Config) error {
	k := koanf.New(".")

	wellKnown := map[string]string{
		"ANTHROPIC_API_KEY": "anthropic_api_key",
		"GEMINI_API_KEY":    "gemini_api_key",
		"GOOGLE_API_KEY":    "gemini_api_key",
	}
	if err := k.Load(env.Provider("", ".", func(s string) string {
		return wellKnown[s]
	}), nil); err != nil {
		return fmt.Errorf("loading environment: %w", err)
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return fmt.Errorf("loading environment: %w", err)
	}

	var ec envConfig
	if err := k.UnmarshalWithConf("", &ec, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}

	setString(&cfg.LLM.Provider, ec.LLMProvider)
	setString(&cfg.LLM.Model, ec.LLMModel)
	setString(&cfg.LLM.BaseURL, ec.LLMBaseURL)
	setString(&cfg.LLM.AnthropicAPIKey, ec.AnthropicAPIKey)
	setString(&cfg.LLM.GeminiAPIKey, ec.GeminiAPIKey)
	setString(&cfg.Timezone, ec.Timezone)
	setString(&cfg.LogLevel, ec.LogLevel)
	if ec.BatchSize > 0 {
		cfg.Classifier.BatchSize = ec.BatchSize
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Save writes a Config to a YAML file. API keys are written as-is, so the
// file is created owner-readable only.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults for a new data directory.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider: "anthropic",
			Timeout:  60 * time.Second,
		},
		Classifier: ClassifierConfig{
			BatchSize:     llm.DefaultBatchSize,
			AllBatchSize:  20,
			ChunkDelay:    llm.DefaultChunkDelay,
			MaxAttempts:   llm.DefaultMaxAttempts,
			RateLimitBase: llm.DefaultRateLimitBase,
		},
		Recurring: recurring.DefaultConfig(),
		Timezone:  "Local",
		LogLevel:  "info",
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("timezone", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if s == "" || s == "Local" {
			return true
		}
		_, err := time.LoadLocation(s)
		return err == nil
	})
	return v
}

// Validate checks field ranges and enumerations, reporting every problem
// by its YAML path.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		_, path, _ := strings.Cut(fe.Namespace(), ".")
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		msgs = append(msgs, fmt.Sprintf("%s: %q fails %s", path, fmt.Sprint(fe.Value()), rule))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// ProviderConfig returns the settings for llm.NewProvider, picking the API
// key that matches the selected provider.
func (c *Config) ProviderConfig() llm.ProviderConfig {
	key := c.LLM.AnthropicAPIKey
	if c.LLM.Provider == "gemini" {
		key = c.LLM.GeminiAPIKey
	}
	return llm.ProviderConfig{
		Name:    c.LLM.Provider,
		Model:   c.LLM.Model,
		APIKey:  key,
		BaseURL: c.LLM.BaseURL,
		Timeout: c.LLM.Timeout,
	}
}
