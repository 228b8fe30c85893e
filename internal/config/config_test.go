package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, "requests", cfg.Redis.Queue)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 10, cfg.Auth.BcryptCost)
	assert.Equal(t, 120*time.Second, cfg.Gateway.RPCTimeout)
	assert.Equal(t, ":3000", cfg.Gateway.Addr)
	assert.Equal(t, ":8080", cfg.WS.Addr)
	assert.Equal(t, ":9100", cfg.Engine.Addr)
	assert.Equal(t, ":9101", cfg.Archiver.Addr)
	assert.Empty(t, cfg.Database.URL)
	assert.True(t, cfg.UsingDefaultSecret())
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeFile(t, `
redis:
  url: redis://cache:6379/2
  queue: orders
auth:
  jwt_secret: from-file
  token_ttl: 1h
gateway:
  rpc_timeout: 5s
log:
  level: debug
`)
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("TOKEN_TTL", "0")
	t.Setenv("BCRYPT_COST", "4")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "redis://cache:6379/2", cfg.Redis.URL)
	assert.Equal(t, "orders", cfg.Redis.Queue)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, time.Duration(0), cfg.Auth.TokenTTL)
	assert.Equal(t, 4, cfg.Auth.BcryptCost)
	assert.Equal(t, 5*time.Second, cfg.Gateway.RPCTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.UsingDefaultSecret())

	opts, err := cfg.RedisOptions()
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		file string
	}{
		{name: "bad ttl", env: map[string]string{"TOKEN_TTL": "forever"}},
		{name: "bad cost", env: map[string]string{"BCRYPT_COST": "ten"}},
		{name: "bad redis url", env: map[string]string{"REDIS_URL": "http://nope"}},
		{name: "bad level", env: map[string]string{"LOG_LEVEL": "loud"}},
		{name: "zero timeout", env: map[string]string{"RPC_TIMEOUT": "0s"}},
		{name: "bad yaml", file: "redis: [unterminated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.file != "" {
				path = writeFile(t, tt.file)
			}
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestFromFlags(t *testing.T) {
	path := writeFile(t, "ws:\n  addr: \":9999\"\n")
	cfg, err := FromFlags(flag.NewFlagSet("test", flag.ContinueOnError), []string{"-config", path})
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.WS.Addr)
}
