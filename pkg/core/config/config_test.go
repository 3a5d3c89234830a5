package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestDuration_UnmarshalText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{"seconds", "30s", 30 * time.Second, false},
		{"minutes", "5m", 5 * time.Minute, false},
		{"complex", "1h30m", 90 * time.Minute, false},
		{"milliseconds", "100ms", 100 * time.Millisecond, false},
		{"invalid", "invalid", 0, true},
		{"empty", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration
			err := d.UnmarshalText([]byte(tt.input))

			if (err != nil) != tt.wantErr {
				t.Errorf("UnmarshalText() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if !tt.wantErr && d.Duration != tt.expected {
				t.Errorf("UnmarshalText() = %v, want %v", d.Duration, tt.expected)
			}
		})
	}
}

func TestDuration_MarshalText(t *testing.T) {
	d := Duration{5 * time.Minute}
	result, err := d.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText() error = %v", err)
	}
	if string(result) != "5m0s" {
		t.Errorf("MarshalText() = %v, want 5m0s", string(result))
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %v, want 9090", cfg.Server.Port)
	}
	if cfg.Server.AdminPort != 9091 {
		t.Errorf("Server.AdminPort = %v, want 9091", cfg.Server.AdminPort)
	}
	if cfg.Gateway.Port != 8090 {
		t.Errorf("Gateway.Port = %v, want 8090", cfg.Gateway.Port)
	}
	if cfg.Hello.StreamCount != 100 {
		t.Errorf("Hello.StreamCount = %v, want 100", cfg.Hello.StreamCount)
	}
	if cfg.Hello.SlowDelay.Duration != time.Second {
		t.Errorf("Hello.SlowDelay = %v, want 1s", cfg.Hello.SlowDelay)
	}
	if cfg.Resolver.RefreshInterval.Duration != 10*time.Second {
		t.Errorf("Resolver.RefreshInterval = %v, want 10s", cfg.Resolver.RefreshInterval)
	}
	if cfg.Registry.Address != "localhost:9100" {
		t.Errorf("Registry.Address = %v, want localhost:9100", cfg.Registry.Address)
	}
	if cfg.Tracing.ServiceName != "grpc-sample" {
		t.Errorf("Tracing.ServiceName = %v, want grpc-sample", cfg.Tracing.ServiceName)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoad_TOMLAndYAMLAgree(t *testing.T) {
	dir := t.TempDir()

	tomlPath := filepath.Join(dir, "config.toml")
	tomlContent := `
[server]
port = 50051
reflection = true

[hello]
stream_count = 5
slow_delay = "250ms"

[registry]
store = "sqlite"
heartbeat_timeout = "45s"
`
	yamlPath := filepath.Join(dir, "config.yaml")
	yamlContent := `
server:
  port: 50051
  reflection: true
hello:
  stream_count: 5
  slow_delay: 250ms
registry:
  store: sqlite
  heartbeat_timeout: 45s
`
	if err := os.WriteFile(tomlPath, []byte(tomlContent), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(yamlPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatal(err)
	}

	fromTOML, err := Load(tomlPath)
	if err != nil {
		t.Fatalf("Load(toml) error = %v", err)
	}
	fromYAML, err := Load(yamlPath)
	if err != nil {
		t.Fatalf("Load(yaml) error = %v", err)
	}

	if diff := cmp.Diff(fromTOML, fromYAML); diff != "" {
		t.Errorf("TOML and YAML configs differ (-toml +yaml):\n%s", diff)
	}
	if fromTOML.Server.Port != 50051 || !fromTOML.Server.Reflection {
		t.Errorf("server = %+v", fromTOML.Server)
	}
	if fromTOML.Hello.SlowDelay.Duration != 250*time.Millisecond {
		t.Errorf("SlowDelay = %v, want 250ms", fromTOML.Hello.SlowDelay)
	}
	if fromTOML.Registry.HeartbeatTimeout.Duration != 45*time.Second {
		t.Errorf("HeartbeatTimeout = %v, want 45s", fromTOML.Registry.HeartbeatTimeout)
	}
	// untouched sections still get defaults
	if fromTOML.Gateway.Port != 8090 {
		t.Errorf("Gateway.Port = %v, want 8090", fromTOML.Gateway.Port)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := Load(filepath.Join(dir, "missing.toml")); err == nil {
		t.Error("Load() should fail for a missing file")
	}

	bad := filepath.Join(dir, "bad.toml")
	os.WriteFile(bad, []byte("[server\nport = "), 0o644)
	if _, err := Load(bad); err == nil {
		t.Error("Load() should fail for invalid TOML")
	}

	invalid := filepath.Join(dir, "invalid.toml")
	os.WriteFile(invalid, []byte("[registry]\nstore = \"etcd\"\n"), 0o644)
	if _, err := Load(invalid); err == nil {
		t.Error("Load() should reject an unknown registry store")
	}
}

func TestLoad_ExpandsEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SAMPLE_DATA", dir)

	path := filepath.Join(dir, "config.toml")
	os.WriteFile(path, []byte("[binlog]\npath = \"$SAMPLE_DATA/binlog.bin\"\n"), 0o644)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if want := filepath.Join(dir, "binlog.bin"); cfg.Binlog.Path != want {
		t.Errorf("Binlog.Path = %v, want %v", cfg.Binlog.Path, want)
	}
}

func TestLoadFromEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c.toml")
	os.WriteFile(path, []byte("[client]\ntarget = \"example:1234\"\n"), 0o644)
	t.Setenv(EnvConfigPath, path)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.Client.Target != "example:1234" {
		t.Errorf("Client.Target = %v, want example:1234", cfg.Client.Target)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("GRPC_SAMPLE_SERVER_PORT", "7000")
	t.Setenv("GRPC_SAMPLE_TARGET", "registry:///grpc-server")
	t.Setenv("GRPC_SAMPLE_REGISTRY_STORE", "redis")

	cfg := Default()
	if err := cfg.ApplyEnvOverrides(); err != nil {
		t.Fatalf("ApplyEnvOverrides() error = %v", err)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("Server.Port = %v, want 7000", cfg.Server.Port)
	}
	if cfg.Client.Target != "registry:///grpc-server" {
		t.Errorf("Client.Target = %v", cfg.Client.Target)
	}
	if cfg.Registry.Store != "redis" {
		t.Errorf("Registry.Store = %v", cfg.Registry.Store)
	}

	t.Setenv("GRPC_SAMPLE_SERVER_PORT", "abc")
	if err := Default().ApplyEnvOverrides(); err == nil {
		t.Error("non-numeric port should fail")
	}
}

func TestConfig_Addresses(t *testing.T) {
	cfg := Default()
	if got := cfg.ServerAddress(); got != "0.0.0.0:9090" {
		t.Errorf("ServerAddress() = %v", got)
	}
	if got := cfg.RegistryListenAddress(); got != "0.0.0.0:9100" {
		t.Errorf("RegistryListenAddress() = %v", got)
	}
	if got := cfg.GatewayAddress(); got != "0.0.0.0:8090" {
		t.Errorf("GatewayAddress() = %v", got)
	}
}
