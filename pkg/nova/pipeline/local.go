package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/project-nova/nova/pkg/nova/chats"
	"github.com/project-nova/nova/pkg/nova/settings"
)

// Engine runs chat completions against an in-process model. Implementations
// wrap a native inference library; none ships by default, so builds without
// one report local model support as unavailable.
type Engine interface {
	Complete(ctx context.Context, messages []chats.Message, opts EngineOptions) (string, error)
	Close() error
}

// EngineOptions are the sampling parameters forwarded to a local engine.
type EngineOptions struct {
	Temperature float64
	MaxTokens   int
	Stop        []string
	TopP        *float64
}

// EngineFactory loads a model file into a ready engine. The context window
// is already clamped to what local runtimes accept.
type EngineFactory func(modelPath string, contextWindow int) (Engine, error)

var (
	engineMu      sync.Mutex
	engineFactory EngineFactory
)

// RegisterEngine installs the local model backend. Typically called from an
// init function in a build-tagged binding package.
func RegisterEngine(factory EngineFactory) {
	engineMu.Lock()
	defer engineMu.Unlock()
	engineFactory = factory
}

func registeredFactory() EngineFactory {
	engineMu.Lock()
	defer engineMu.Unlock()
	return engineFactory
}

// localRunner serializes local inference and caches one loaded engine.
// Loading a model takes seconds and holds the model's memory, so the cache
// keeps a single instance keyed by resolved path and reloads only when the
// selected model changes.
type localRunner struct {
	mu         sync.Mutex
	engine     Engine
	loadedPath string
	logger     *slog.Logger
}

func newLocalRunner(logger *slog.Logger) *localRunner {
	return &localRunner{logger: logger.With("component", "localmodel")}
}

const (
	minContextWindow = 512
	maxContextWindow = 32768
)

// Complete runs one local completion. Calls are serialized: a single model
// instance cannot take concurrent inference requests.
func (r *localRunner) Complete(ctx context.Context, cfg settings.Settings, modelsDir string, payload *Payload) (string, error) {
	modelPath := ResolveLocalModelPath(cfg.String("model", ""), modelsDir)
	if fi, err := os.Stat(modelPath); err != nil || fi.IsDir() {
		return "", fmt.Errorf("selected local model file was not found")
	}

	factory := registeredFactory()
	if factory == nil {
		return "", fmt.Errorf("local model support is not installed")
	}

	resolved, err := filepath.Abs(modelPath)
	if err != nil {
		resolved = modelPath
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.engine == nil || r.loadedPath != resolved {
		if r.engine != nil {
			if err := r.engine.Close(); err != nil {
				r.logger.Warn("closing previous local model", "error", err)
			}
			r.engine = nil
			r.loadedPath = ""
		}

		contextWindow := cfg.Int("max_tokens", 4096)
		if contextWindow < minContextWindow {
			contextWindow = minContextWindow
		}
		if contextWindow > maxContextWindow {
			contextWindow = maxContextWindow
		}

		r.logger.Info("loading local model", "path", resolved, "context_window", contextWindow)
		engine, err := factory(resolved, contextWindow)
		if err != nil {
			return "", fmt.Errorf("failed to load local model: %w", err)
		}
		r.engine = engine
		r.loadedPath = resolved
	}

	text, err := r.engine.Complete(ctx, payload.Messages, EngineOptions{
		Temperature: payload.Temperature,
		MaxTokens:   payload.MaxTokens,
		Stop:        payload.Stop,
		TopP:        payload.TopP,
	})
	if err != nil {
		return "", fmt.Errorf("local model generation failed: %w", err)
	}
	if text == "" {
		return "", fmt.Errorf("local model response did not include text content")
	}
	return text, nil
}
