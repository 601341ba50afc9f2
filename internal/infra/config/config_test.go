package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tasksd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestMustLoad(t *testing.T) {
	path := writeConfig(t, `
addr: ":5003"
shutdown_timeout: 5s
task_base_url: "http://gateway:8000"
task_expiry: 600s
deleted_retention: 30m
redis:
  addr: "redis:6379"
  password: "secret"
  db: 2
  pool_size: 8
nats:
  url: "nats://nats:4222"
  client_name: "tasksd"
  max_reconnects: 5
  subject: "tasks.events"
origins:
  storage: "10.0.0.2"
  compute: "10.0.0.3"
  status: "10.0.0.4"
`)

	cfg := MustLoad(path)

	assert.Equal(t, ":5003", cfg.Addr)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "http://gateway:8000", cfg.TaskBaseURL)
	assert.Equal(t, 600*time.Second, cfg.TaskExpiry)
	assert.Equal(t, 30*time.Minute, cfg.DeletedRetention)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, "tasks.events", cfg.NATS.Subject)
	assert.Equal(t, "10.0.0.2", cfg.Origins.Storage)
	assert.Equal(t, "10.0.0.4", cfg.Origins.Status)
}

func TestMustLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
addr: ":5003"
redis:
  addr: "localhost:6379"
nats:
  url: "nats://localhost:4222"
  subject: "tasks.events"
origins:
  storage: "10.0.0.2"
  compute: "10.0.0.3"
`)

	cfg := MustLoad(path)

	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 300*time.Second, cfg.TaskExpiry)
	assert.Equal(t, 10*time.Minute, cfg.DeletedRetention)
}
