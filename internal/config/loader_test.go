package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_FileAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, ConfigFileName, `
org: acme
warehouse:
  type: duckdb
cache:
  redis_addr: localhost:6379
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "acme", cfg.Org)
	assert.Equal(t, DefaultStatePath, cfg.StatePath)
	assert.Equal(t, DefaultServerAddr, cfg.Server.Addr)
	assert.Equal(t, DefaultCacheTTL, cfg.Cache.TTLSeconds)
	assert.Equal(t, "localhost:6379", cfg.Cache.RedisAddr)

	require.NotNil(t, cfg.Warehouse)
	assert.Equal(t, "duckdb", cfg.Warehouse.Type)
	assert.Equal(t, ":memory:", cfg.Warehouse.Path)
	assert.NoError(t, cfg.Warehouse.Validate())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, ConfigFileName, "org: acme\n")

	t.Setenv("METRICGRID_ORG", "umbrella")
	t.Setenv("METRICGRID_STATE_PATH", "/tmp/grid.db")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "umbrella", cfg.Org)
	assert.Equal(t, "/tmp/grid.db", cfg.StatePath)
}

func TestWarehouseConfig_Validate(t *testing.T) {
	assert.Error(t, (&WarehouseConfig{}).Validate())
	assert.Error(t, (&WarehouseConfig{Type: "snowball"}).Validate())
	assert.NoError(t, (&WarehouseConfig{Type: "postgres"}).Validate())
}

func TestWarehouseConfig_PostgresDefaults(t *testing.T) {
	w := &WarehouseConfig{Type: "postgres", Host: "db.internal"}
	w.ApplyDefaults()
	assert.Equal(t, DefaultPostgresPort, w.Port)

	adapterCfg := w.ToAdapterConfig()
	assert.Equal(t, "postgres", adapterCfg.Type)
	assert.Equal(t, "db.internal", adapterCfg.Host)
	assert.Equal(t, DefaultPostgresPort, adapterCfg.Port)
}

func TestFindProjectRoot(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, ConfigFileNameAlt, "org: acme\n")
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	assert.Equal(t, root, FindProjectRoot(nested))
	assert.Equal(t, "", FindProjectRoot(t.TempDir()))
}
