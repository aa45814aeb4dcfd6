// Package bootstrap seeds the millwright data tree on first run.
package bootstrap

import (
	"fmt"
	"os"

	"github.com/millwright-ai/millwright/internal/config"
	"github.com/millwright-ai/millwright/internal/plant"
	"github.com/millwright-ai/millwright/internal/store"
)

// Result reports what Initialize had to create.
type Result struct {
	// CreatedConfig is true when a fresh config.toml was written, meaning
	// this is a first run and the user still needs to add an API key.
	CreatedConfig bool
}

// Initialize creates the expected millwright data tree if missing: the config
// file, the plant database with its starter dataset, and the directories and
// ledgers the runtime appends to. Existing files are left untouched.
func Initialize(cfg *config.Config) (*Result, error) {
	dirs := []string{
		cfg.HomeDir,
		cfg.DataDir(),
		cfg.LogsDir(),
		cfg.PlantDir(),
		cfg.DocumentsDir(),
		cfg.SessionsDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %q: %w", dir, err)
		}
	}

	defaultTOML, err := config.DefaultUserConfigTOML()
	if err != nil {
		return nil, err
	}
	createdConfig, err := store.WriteFileIfMissing(cfg.ConfigPath(), []byte(defaultTOML))
	if err != nil {
		return nil, fmt.Errorf("write default config: %w", err)
	}

	files := []struct {
		path    string
		content string
	}{
		{path: cfg.JobsPath(), content: "[]\n"},
		{path: cfg.CostsPath(), content: ""},
	}
	for _, file := range files {
		if _, err := store.WriteFileIfMissing(file.path, []byte(file.content)); err != nil {
			return nil, fmt.Errorf("write file %q: %w", file.path, err)
		}
	}

	// Opening the plant database applies the schema and, on an empty
	// database, the starter dataset.
	db, err := plant.Open(cfg.PlantDBPath())
	if err != nil {
		return nil, err
	}
	if err := db.Close(); err != nil {
		return nil, fmt.Errorf("close plant database: %w", err)
	}

	return &Result{CreatedConfig: createdConfig}, nil
}
