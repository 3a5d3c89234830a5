package config

import (
	"fmt"
	"os"
	"strconv"
)

// ApplyEnvOverrides overrides selected values from GRPC_SAMPLE_* variables.
func (c *Config) ApplyEnvOverrides() error {
	if v := os.Getenv("GRPC_SAMPLE_LOG_LEVEL"); v != "" {
		c.General.LogLevel = v
	}
	if v := os.Getenv("GRPC_SAMPLE_SERVER_HOST"); v != "" {
		c.Server.Host = v
	}
	if err := envInt("GRPC_SAMPLE_SERVER_PORT", &c.Server.Port); err != nil {
		return err
	}
	if v := os.Getenv("GRPC_SAMPLE_TARGET"); v != "" {
		c.Client.Target = v
	}
	if v := os.Getenv("GRPC_SAMPLE_REGISTRY"); v != "" {
		c.Registry.Address = v
	}
	if v := os.Getenv("GRPC_SAMPLE_REGISTRY_STORE"); v != "" {
		c.Registry.Store = v
	}
	if err := envInt("GRPC_SAMPLE_GATEWAY_PORT", &c.Gateway.Port); err != nil {
		return err
	}
	if v := os.Getenv("GRPC_SAMPLE_GATEWAY_BACKEND"); v != "" {
		c.Gateway.Backend = v
	}
	return c.Validate()
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}
