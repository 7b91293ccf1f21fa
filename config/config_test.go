package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9000"
research:
  max_turns: 6
threat_model:
  repair_attempts: 2
`), 0644))

	t.Setenv("CONFIG_PATH", path)
	t.Setenv("RESEARCH_MAX_TURNS", "5")
	t.Setenv("OPENAI_MODEL_NAME", "gpt-4o-mini")
	t.Setenv("MAX_WORKERS", "not-a-number")

	c := loadConfig()
	assert.Equal(t, "9000", c.Server.Port)
	assert.Equal(t, 5, c.Research.MaxTurns)
	assert.Equal(t, 1, c.Research.DispatchRetries)
	assert.Equal(t, 2, c.ThreatModel.RepairAttempts)
	assert.Equal(t, "gpt-4o-mini", c.LLM.Model)
	assert.Equal(t, 4, c.Server.MaxWorkers)
}

func TestDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	c := loadConfig()
	assert.Equal(t, "8001", c.Server.Port)
	assert.Equal(t, 4, c.Research.MaxTurns)
	assert.Equal(t, "ws://localhost:8001/ws/chat", c.Probe.Endpoint)
	assert.Equal(t, "sqlite", c.Database.Type)
}
