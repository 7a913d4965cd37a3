// Package config loads metricgrid project configuration from
// metricgrid.yaml with environment overrides.
package config

import (
	"fmt"
	"strings"

	"github.com/metricgrid-labs/metricgrid/internal/warehouse"
)

// WarehouseConfig holds the analytical database connection settings.
type WarehouseConfig struct {
	Type string `koanf:"type"` // duckdb, postgres

	// File-based warehouses (DuckDB)
	Path string `koanf:"path"` // file path or :memory:

	// Network warehouses
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Database string `koanf:"database"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`

	// Additional driver-specific options
	Options map[string]string `koanf:"options"`
}

// Validate checks the warehouse configuration against the adapter
// registry.
func (w *WarehouseConfig) Validate() error {
	if w.Type == "" {
		return fmt.Errorf("warehouse type is required")
	}
	if !warehouse.IsRegistered(strings.ToLower(w.Type)) {
		return &warehouse.UnknownAdapterError{
			Type:      w.Type,
			Available: warehouse.ListAdapters(),
		}
	}
	return nil
}

// ToAdapterConfig converts to the warehouse package's connection config.
func (w *WarehouseConfig) ToAdapterConfig() warehouse.Config {
	return warehouse.Config{
		Type:     strings.ToLower(w.Type),
		Path:     w.Path,
		Host:     w.Host,
		Port:     w.Port,
		Database: w.Database,
		Username: w.User,
		Password: w.Password,
		Options:  w.Options,
	}
}

// CacheConfig holds the cache layer settings. An empty RedisAddr runs
// with the in-process store only.
type CacheConfig struct {
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
	TTLSeconds    int    `koanf:"ttl_seconds"`
	SweepSeconds  int    `koanf:"sweep_seconds"`
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Addr string `koanf:"addr"`
}

// Config is the full project configuration.
type Config struct {
	// Org is the organization identifier baked into cache keys.
	Org string `koanf:"org"`

	// StatePath is the SQLite application datastore location.
	StatePath string `koanf:"state_path"`

	Warehouse *WarehouseConfig `koanf:"warehouse"`
	Cache     *CacheConfig     `koanf:"cache"`
	Server    *ServerConfig    `koanf:"server"`
}
