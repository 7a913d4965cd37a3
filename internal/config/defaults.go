package config

// Default configuration values.
const (
	DefaultOrg          = "default"
	DefaultStatePath    = "metricgrid.db"
	DefaultServerAddr   = ":8080"
	DefaultCacheTTL     = 300
	DefaultCacheSweep   = 60
	DefaultPostgresPort = 5432
)

// ApplyDefaults fills unset fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Org == "" {
		c.Org = DefaultOrg
	}
	if c.StatePath == "" {
		c.StatePath = DefaultStatePath
	}
	if c.Server == nil {
		c.Server = &ServerConfig{}
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
	if c.Cache == nil {
		c.Cache = &CacheConfig{}
	}
	if c.Cache.TTLSeconds == 0 {
		c.Cache.TTLSeconds = DefaultCacheTTL
	}
	if c.Cache.SweepSeconds == 0 {
		c.Cache.SweepSeconds = DefaultCacheSweep
	}
	if c.Warehouse != nil {
		c.Warehouse.ApplyDefaults()
	}
}

// ApplyDefaults fills type-specific defaults on a warehouse config.
func (w *WarehouseConfig) ApplyDefaults() {
	if w.Type == "postgres" && w.Port == 0 {
		w.Port = DefaultPostgresPort
	}
	if w.Type == "duckdb" && w.Path == "" {
		w.Path = ":memory:"
	}
}
