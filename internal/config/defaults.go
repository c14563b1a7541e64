package config

// Default configuration values.
const (
	DefaultStateFile      = ".schemaforge/state.db"
	DefaultOwner          = "schemaforge"
	DefaultLockTTLSeconds = 120
	DefaultPostgresPort   = 5432
)

// ApplyDefaults fills zero fields with defaults.
func (c *Config) ApplyDefaults() {
	if c.StatePath == "" {
		c.StatePath = DefaultStateFile
	}
	if c.Owner == "" {
		c.Owner = DefaultOwner
	}
	if c.LockTTLSeconds == 0 {
		c.LockTTLSeconds = DefaultLockTTLSeconds
	}
	if c.Target != nil {
		c.Target.ApplyDefaults()
	}
}

// ApplyDefaults fills zero fields with type-specific defaults.
func (t *TargetConfig) ApplyDefaults() {
	if t.Type == "postgres" {
		if t.Port == 0 {
			t.Port = DefaultPostgresPort
		}
		if t.Schema == "" {
			t.Schema = "public"
		}
	}
}
