package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/animus-ai/animus/pkg/types"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openrouter", "anyllm", "openai", "anthropic", "ollama", "mistral", "groq"},
	"stt":        {"openai", "whisper"},
	"vision":     {"openai", "openrouter"},
	"embeddings": {"worker", "ollama"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Storage
	if cfg.Postgres.DSN == "" {
		errs = append(errs, errors.New("postgres.dsn is required"))
	}
	if cfg.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required"))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("vision", cfg.Providers.Vision.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)
	for _, entry := range cfg.Providers.LLMFallbacks {
		validateProviderName("llm", entry.Name)
	}

	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm is required; requests cannot be generated without an LLM provider"))
	}
	if cfg.Providers.STT.Name == "" {
		slog.Warn("providers.stt is not configured; audio attachments will fail preprocessing")
	}
	if cfg.Providers.Vision.Name == "" {
		slog.Warn("providers.vision is not configured; image attachments will fail preprocessing")
	}
	if cfg.Providers.Embeddings.Name == "" {
		slog.Warn("providers.embeddings is not configured; memory retrieval and duplicate detection are disabled")
	}

	// Classification datasets must be valid regular expressions.
	for i, rule := range cfg.Reasoning.Rules {
		prefix := fmt.Sprintf("reasoning.rules[%d]", i)
		if rule.Pattern == "" {
			errs = append(errs, fmt.Errorf("%s.pattern is required", prefix))
			continue
		}
		if _, err := regexp.Compile("(?i)" + rule.Pattern); err != nil {
			errs = append(errs, fmt.Errorf("%s.pattern: %w", prefix, err))
		}
		if rule.Family == "" {
			errs = append(errs, fmt.Errorf("%s.family is required", prefix))
		}
	}
	for i, pattern := range cfg.Vision.ModelPatterns {
		if _, err := regexp.Compile("(?i)" + pattern); err != nil {
			errs = append(errs, fmt.Errorf("vision.model_patterns[%d]: %w", i, err))
		}
	}

	// Worker pools
	if cfg.Workers.Audio < 0 || cfg.Workers.Image < 0 || cfg.Workers.Generation < 0 {
		errs = append(errs, errors.New("workers pool sizes must be non-negative"))
	}
	if cfg.Workers.ImageConcurrency < 0 {
		errs = append(errs, errors.New("workers.image_concurrency must be non-negative"))
	}

	// Jobs
	if cfg.Jobs.DaysToKeep != 0 {
		if err := types.ValidateDaysToKeep(cfg.Jobs.DaysToKeep); err != nil {
			errs = append(errs, fmt.Errorf("jobs.days_to_keep: %w", err))
		}
	}

	// Memory
	if cfg.Memory.OutboxBatch < 0 {
		errs = append(errs, errors.New("memory.outbox_batch must be non-negative"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
