package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/project-nova/nova/pkg/nova/chats"
	"github.com/project-nova/nova/pkg/nova/settings"
)

type stubEngine struct {
	path     string
	reply    string
	closed   bool
	requests int
}

func (e *stubEngine) Complete(_ context.Context, _ []chats.Message, _ EngineOptions) (string, error) {
	e.requests++
	return e.reply, nil
}

func (e *stubEngine) Close() error {
	e.closed = true
	return nil
}

func writeModelFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("weights"), 0o644))
	return path
}

func TestLocalCompleteWithoutEngine(t *testing.T) {
	RegisterEngine(nil)
	modelsDir := t.TempDir()
	writeModelFile(t, modelsDir, "tiny.gguf")

	runner := newLocalRunner(slog.Default())
	cfg := settings.Settings{"model": "tiny.gguf"}
	_, err := runner.Complete(context.Background(), cfg, modelsDir, &Payload{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "local model support is not installed")
}

func TestLocalCompleteCachesEngine(t *testing.T) {
	t.Cleanup(func() { RegisterEngine(nil) })

	var created []*stubEngine
	RegisterEngine(func(modelPath string, contextWindow int) (Engine, error) {
		e := &stubEngine{path: modelPath, reply: "from " + filepath.Base(modelPath)}
		created = append(created, e)
		return e, nil
	})

	modelsDir := t.TempDir()
	writeModelFile(t, modelsDir, "one.gguf")
	writeModelFile(t, modelsDir, "two.gguf")

	runner := newLocalRunner(slog.Default())
	cfg := settings.Settings{"model": "one.gguf"}

	text, err := runner.Complete(context.Background(), cfg, modelsDir, &Payload{})
	require.NoError(t, err)
	assert.Equal(t, "from one.gguf", text)

	// Same model: the loaded engine is reused.
	_, err = runner.Complete(context.Background(), cfg, modelsDir, &Payload{})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, 2, created[0].requests)

	// Different model: the old engine is closed, a new one loaded.
	cfg["model"] = "two.gguf"
	text, err = runner.Complete(context.Background(), cfg, modelsDir, &Payload{})
	require.NoError(t, err)
	assert.Equal(t, "from two.gguf", text)
	require.Len(t, created, 2)
	assert.True(t, created[0].closed)
}

func TestLocalCompleteClampsContextWindow(t *testing.T) {
	t.Cleanup(func() { RegisterEngine(nil) })

	var windows []int
	RegisterEngine(func(modelPath string, contextWindow int) (Engine, error) {
		windows = append(windows, contextWindow)
		return &stubEngine{reply: "ok"}, nil
	})

	modelsDir := t.TempDir()
	writeModelFile(t, modelsDir, "tiny.gguf")

	for _, tc := range []struct {
		maxTokens float64
		want      int
	}{
		{maxTokens: 100, want: minContextWindow},
		{maxTokens: 4096, want: 4096},
		{maxTokens: 999999, want: maxContextWindow},
	} {
		runner := newLocalRunner(slog.Default())
		cfg := settings.Settings{"model": "tiny.gguf", "max_tokens": tc.maxTokens}
		_, err := runner.Complete(context.Background(), cfg, modelsDir, &Payload{})
		require.NoError(t, err)
	}
	assert.Equal(t, []int{minContextWindow, 4096, maxContextWindow}, windows)
}

func TestLocalCompleteFactoryFailure(t *testing.T) {
	t.Cleanup(func() { RegisterEngine(nil) })
	RegisterEngine(func(modelPath string, contextWindow int) (Engine, error) {
		return nil, fmt.Errorf("bad weights")
	})

	modelsDir := t.TempDir()
	writeModelFile(t, modelsDir, "tiny.gguf")

	runner := newLocalRunner(slog.Default())
	_, err := runner.Complete(context.Background(), settings.Settings{"model": "tiny.gguf"}, modelsDir, &Payload{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load local model")
}

func TestLocalCompleteMissingModelFile(t *testing.T) {
	runner := newLocalRunner(slog.Default())
	_, err := runner.Complete(context.Background(), settings.Settings{"model": "gone.gguf"}, t.TempDir(), &Payload{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "was not found")
}
