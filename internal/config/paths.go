package config

import "path/filepath"

const homeDirName = ".millwright"

func defaultHomePath(userHome string) string {
	return filepath.Join(userHome, homeDirName)
}

func homeConfigPath(homeDir string) string {
	return filepath.Join(homeDir, "config.toml")
}

// ConfigPath returns the absolute path of the config file.
func (c *Config) ConfigPath() string {
	return homeConfigPath(c.HomeDir)
}

// DataDir returns the root of all mutable runtime state.
func (c *Config) DataDir() string {
	return filepath.Join(c.HomeDir, "data")
}

// LogsDir returns the directory for server logs.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir(), "logs")
}

// PIDPath returns the server pid file path.
func (c *Config) PIDPath() string {
	return filepath.Join(c.DataDir(), "millwright.pid")
}

// PlantDir returns the state directory of the active plant profile.
func (c *Config) PlantDir() string {
	return filepath.Join(c.DataDir(), "plants", c.Plant)
}

// DocumentsDir returns the drop directory for maintenance documents
// awaiting ingestion.
func (c *Config) DocumentsDir() string {
	return filepath.Join(c.PlantDir(), "documents")
}

// PlantDBPath returns the SQLite database file holding equipment,
// documents, and sensor history.
func (c *Config) PlantDBPath() string {
	return filepath.Join(c.PlantDir(), "plant.db")
}

// SessionsDir returns the directory holding per-channel conversation logs.
func (c *Config) SessionsDir() string {
	return filepath.Join(c.PlantDir(), "sessions")
}

// SessionPath returns the JSONL conversation log for one channel.
func (c *Config) SessionPath(channel string) string {
	return filepath.Join(c.SessionsDir(), channel+".jsonl")
}

// CostsPath returns the JSONL ledger of per-turn token spend.
func (c *Config) CostsPath() string {
	return filepath.Join(c.PlantDir(), "costs.jsonl")
}

// JobsPath returns the scheduler's persisted job definitions.
func (c *Config) JobsPath() string {
	return filepath.Join(c.PlantDir(), "jobs.json")
}
