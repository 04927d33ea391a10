// Command animus is the AI request orchestration server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/animus-ai/animus/internal/app"
	"github.com/animus-ai/animus/internal/config"
	"github.com/animus-ai/animus/internal/observe"
	"github.com/animus-ai/animus/internal/resilience"
	"github.com/animus-ai/animus/pkg/provider/embeddings"
	ollamaembed "github.com/animus-ai/animus/pkg/provider/embeddings/ollama"
	workerembed "github.com/animus-ai/animus/pkg/provider/embeddings/worker"
	"github.com/animus-ai/animus/pkg/provider/llm"
	"github.com/animus-ai/animus/pkg/provider/llm/anyllm"
	"github.com/animus-ai/animus/pkg/provider/llm/openrouter"
	"github.com/animus-ai/animus/pkg/provider/stt"
	sttopenai "github.com/animus-ai/animus/pkg/provider/stt/openai"
	"github.com/animus-ai/animus/pkg/provider/vision"
	visionopenai "github.com/animus-ai/animus/pkg/provider/vision/openai"
)

// openRouterVisionURL is the OpenAI-compatible endpoint used when the vision
// provider is routed through OpenRouter.
const openRouterVisionURL = "https://openrouter.ai/api/v1"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "animus: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "animus: %v\n", err)
		}
		return 1
	}

	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("animus starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "animus"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(ctx, reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(ctx, cfg, providers, logger)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, updated *config.Config) {
		applyConfigChange(level, old, updated)
	})
	if err != nil {
		slog.Warn("config watcher unavailable", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// applyConfigChange applies what can change at runtime and warns about the
// rest.
func applyConfigChange(level *slog.LevelVar, old, updated *config.Config) {
	diff := config.Diff(old, updated)
	if !diff.Changed() {
		return
	}
	if diff.LogLevelChanged {
		level.Set(slogLevel(diff.NewLogLevel))
		slog.Info("log level updated", "level", diff.NewLogLevel)
	}
	if diff.ReasoningRulesChanged {
		slog.Warn("reasoning rules changed on disk — restart to apply")
	}
	if diff.VisionPatternsChanged {
		slog.Warn("vision model patterns changed on disk — restart to apply")
	}
}

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(ctx context.Context, reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	reg.RegisterLLM("openrouter", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openrouter.Option
		if entry.BaseURL != "" {
			opts = append(opts, openrouter.WithBaseURL(entry.BaseURL))
		}
		return openrouter.New(entry.APIKey, opts...)
	})

	// The any-llm vendors share one pattern: optional API key + base URL.
	for _, vendor := range []string{"openai", "anthropic", "ollama", "mistral", "groq"} {
		reg.RegisterLLM(vendor, func(entry config.ProviderEntry) (llm.Provider, error) {
			return anyllm.New(vendor, anyllmOptions(entry)...)
		})
	}
	// "anyllm" picks its backend from options, for vendors without a
	// dedicated registration.
	reg.RegisterLLM("anyllm", func(entry config.ProviderEntry) (llm.Provider, error) {
		backend := optString(entry.Options, "backend")
		if backend == "" {
			backend = "openai"
		}
		return anyllm.New(backend, anyllmOptions(entry)...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────
	// "whisper" is any OpenAI-compatible transcription server reached through
	// base_url.
	for _, name := range []string{"openai", "whisper"} {
		reg.RegisterSTT(name, func(entry config.ProviderEntry) (stt.Transcriber, error) {
			var opts []sttopenai.Option
			if entry.BaseURL != "" {
				opts = append(opts, sttopenai.WithBaseURL(entry.BaseURL))
			}
			return sttopenai.New(entry.APIKey, entry.Model, opts...)
		})
	}

	// ── Vision ────────────────────────────────────────────────────────────────
	reg.RegisterVision("openai", func(entry config.ProviderEntry) (vision.Describer, error) {
		var opts []visionopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, visionopenai.WithBaseURL(entry.BaseURL))
		}
		return visionopenai.New(entry.APIKey, opts...)
	})
	reg.RegisterVision("openrouter", func(entry config.ProviderEntry) (vision.Describer, error) {
		baseURL := entry.BaseURL
		if baseURL == "" {
			baseURL = openRouterVisionURL
		}
		return visionopenai.New(entry.APIKey, visionopenai.WithBaseURL(baseURL))
	})

	// ── Embeddings ────────────────────────────────────────────────────────────
	reg.RegisterEmbeddings("worker", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		command := optStrings(entry.Options, "command")
		if len(command) == 0 {
			return nil, fmt.Errorf("embeddings worker: options.command is required")
		}
		return workerembed.Start(ctx, workerembed.Config{
			Command: command,
			ModelID: entry.Model,
		})
	})
	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		return ollamaembed.New(entry.BaseURL, entry.Model, ollamaembed.WithNormalize())
	})
}

// anyllmOptions converts a provider entry into any-llm configuration options.
func anyllmOptions(entry config.ProviderEntry) []anyllmlib.Option {
	var opts []anyllmlib.Option
	if entry.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
	}
	if entry.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
	}
	return opts
}

// buildProviders instantiates every provider named in cfg. The LLM slot is
// wrapped in a fallback chain when llm_fallbacks lists additional providers.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	primary, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	if len(cfg.Providers.LLMFallbacks) > 0 {
		chain := resilience.NewLLMFallback(primary, cfg.Providers.LLM.Name, resilience.FallbackConfig{})
		for _, entry := range cfg.Providers.LLMFallbacks {
			fb, err := reg.CreateLLM(entry)
			if err != nil {
				return nil, fmt.Errorf("create llm fallback %q: %w", entry.Name, err)
			}
			chain.AddFallback(entry.Name, fb)
			slog.Info("llm fallback registered", "name", entry.Name)
		}
		ps.LLM = chain
	} else {
		ps.LLM = primary
	}
	slog.Info("provider created", "kind", "llm", "name", cfg.Providers.LLM.Name)

	if name := cfg.Providers.STT.Name; name != "" {
		ps.STT, err = reg.CreateSTT(cfg.Providers.STT)
		if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", name, err)
		}
		slog.Info("provider created", "kind", "stt", "name", name)
	}
	if name := cfg.Providers.Vision.Name; name != "" {
		ps.Vision, err = reg.CreateVision(cfg.Providers.Vision)
		if err != nil {
			return nil, fmt.Errorf("create vision provider %q: %w", name, err)
		}
		slog.Info("provider created", "kind", "vision", "name", name)
	}
	if name := cfg.Providers.Embeddings.Name; name != "" {
		ps.Embeddings, err = reg.CreateEmbeddings(cfg.Providers.Embeddings)
		if err != nil {
			return nil, fmt.Errorf("create embeddings provider %q: %w", name, err)
		}
		slog.Info("provider created", "kind", "embeddings", "name", name)
	}

	return ps, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// optString extracts a string from a provider Options map.
func optString(opts map[string]any, key string) string {
	if v, ok := opts[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// optStrings extracts a string slice from a provider Options map. YAML
// decodes sequences as []any, so each element is converted individually.
func optStrings(opts map[string]any, key string) []string {
	v, ok := opts[key]
	if !ok {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil
		}
		out = append(out, s)
	}
	return out
}
