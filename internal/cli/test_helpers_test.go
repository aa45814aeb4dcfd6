package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/millwright-ai/millwright/internal/config"
	"github.com/millwright-ai/millwright/internal/provider"
)

func createTestHome(t *testing.T) string {
	t.Helper()
	homeDir := filepath.Join(t.TempDir(), ".millwright")
	t.Setenv("MILLWRIGHT_HOME", homeDir)
	return homeDir
}

func writeValidConfig(t *testing.T, homeDir string) {
	t.Helper()
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home dir: %v", err)
	}
	configBody := `
[llm.anthropic]
api_key = "test-key"
model = "claude-sonnet-4-6"
`
	if err := os.WriteFile(filepath.Join(homeDir, "config.toml"), []byte(configBody), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// injectFakeSelector swaps the provider selector for one backed by the given
// fake and restores the real factory on cleanup.
func injectFakeSelector(t *testing.T, fake fakeProvider) {
	t.Helper()
	origFactory := selectorFactory
	t.Cleanup(func() { selectorFactory = origFactory })
	selectorFactory = func(_ *config.Config) (*provider.Selector, error) {
		return provider.NewSelector([]provider.Provider{fake}, time.Minute), nil
	}
}

type fakeProvider struct {
	name string
	resp *provider.ChatResponse
	err  error
}

func (p fakeProvider) Name() string { return p.name }

func (p fakeProvider) Chat(_ context.Context, _ provider.ChatRequest) (*provider.ChatResponse, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.resp, nil
}
