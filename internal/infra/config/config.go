package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// TaskBaseURL is the gateway prefix canonical task references are built
	// from.
	TaskBaseURL string `yaml:"task_base_url"`

	// TaskExpiry is the TTL the expire operation puts on a durable record.
	TaskExpiry time.Duration `yaml:"task_expiry"`

	// DeletedRetention is how long a soft-deleted task stays readable in the
	// registry before the janitor evicts it.
	DeletedRetention time.Duration `yaml:"deleted_retention"`

	Redis   Redis   `yaml:"redis"`
	NATS    NATS    `yaml:"nats"`
	Origins Origins `yaml:"origins"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type NATS struct {
	URL           string `yaml:"url"`
	ClientName    string `yaml:"client_name"`
	MaxReconnects int    `yaml:"max_reconnects"`
	Subject       string `yaml:"subject"`
}

// Origins are the internal service addresses allowed to call the guarded
// routes.
type Origins struct {
	Storage string `yaml:"storage"`
	Compute string `yaml:"compute"`
	Status  string `yaml:"status"`
}

func MustLoad(path string) *Config {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("config: cannot read file %q: %v", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		log.Fatalf("config: cannot unmarshal yaml: %v", err)
	}

	if cfg.Addr == "" {
		log.Fatalf("config: addr is empty")
	}
	if cfg.Redis.Addr == "" {
		log.Fatalf("config: redis.addr is empty")
	}
	if cfg.NATS.Subject == "" {
		log.Fatalf("config: nats.subject is empty")
	}
	if cfg.Origins.Storage == "" || cfg.Origins.Compute == "" {
		log.Fatalf("config: origins.storage and origins.compute are required")
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.TaskExpiry <= 0 {
		cfg.TaskExpiry = 300 * time.Second
	}
	if cfg.DeletedRetention <= 0 {
		cfg.DeletedRetention = 10 * time.Minute
	}

	return &cfg
}
