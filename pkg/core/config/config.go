package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable holding the config file path
const EnvConfigPath = "GRPC_SAMPLE_CONFIG"

// Config holds the complete sample configuration
type Config struct {
	General  GeneralConfig  `toml:"general" yaml:"general"`
	Server   ServerConfig   `toml:"server" yaml:"server"`
	Client   ClientConfig   `toml:"client" yaml:"client"`
	Hello    HelloConfig    `toml:"hello" yaml:"hello"`
	TLS      TLSConfig      `toml:"tls" yaml:"tls"`
	Registry RegistryConfig `toml:"registry" yaml:"registry"`
	Resolver ResolverConfig `toml:"resolver" yaml:"resolver"`
	Gateway  GatewayConfig  `toml:"gateway" yaml:"gateway"`
	Binlog   BinlogConfig   `toml:"binlog" yaml:"binlog"`
	Metrics  MetricsConfig  `toml:"metrics" yaml:"metrics"`
	Tracing  TracingConfig  `toml:"tracing" yaml:"tracing"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	Name        string             `toml:"name" yaml:"name"`
	Environment string             `toml:"environment" yaml:"environment"`
	LogLevel    string             `toml:"log_level" yaml:"log_level"`
	LogFormat   string             `toml:"log_format" yaml:"log_format"`
	LogFile     string             `toml:"log_file" yaml:"log_file"`
	Cloud       CloudLoggingConfig `toml:"cloud_logging" yaml:"cloud_logging"`
}

// CloudLoggingConfig enables the Google Cloud Logging sink
type CloudLoggingConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Project string `toml:"project" yaml:"project"`
	LogID   string `toml:"log_id" yaml:"log_id"`
}

// ServerConfig holds settings of the sample gRPC servers
type ServerConfig struct {
	Host             string   `toml:"host" yaml:"host"`
	Port             int      `toml:"port" yaml:"port"`
	Reflection       bool     `toml:"reflection" yaml:"reflection"`
	Channelz         bool     `toml:"channelz" yaml:"channelz"`
	AdminPort        int      `toml:"admin_port" yaml:"admin_port"`
	MaxRecvMsgSize   int      `toml:"max_recv_msg_size" yaml:"max_recv_msg_size"`
	MaxSendMsgSize   int      `toml:"max_send_msg_size" yaml:"max_send_msg_size"`
	KeepaliveTime    Duration `toml:"keepalive_time" yaml:"keepalive_time"`
	KeepaliveTimeout Duration `toml:"keepalive_timeout" yaml:"keepalive_timeout"`
	ShutdownTimeout  Duration `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
	Register         bool     `toml:"register" yaml:"register"`
	ServiceName      string   `toml:"service_name" yaml:"service_name"`
	AdvertiseHost    string   `toml:"advertise_host" yaml:"advertise_host"`
}

// ClientConfig holds settings of the sample clients
type ClientConfig struct {
	Target            string   `toml:"target" yaml:"target"`
	Timeout           Duration `toml:"timeout" yaml:"timeout"`
	Requests          int      `toml:"requests" yaml:"requests"`
	Message           string   `toml:"message" yaml:"message"`
	ServiceConfigFile string   `toml:"service_config_file" yaml:"service_config_file"`
	QueueSize         int      `toml:"queue_size" yaml:"queue_size"`
}

// HelloConfig holds the behavior of the hello service
type HelloConfig struct {
	StreamCount int      `toml:"stream_count" yaml:"stream_count"`
	FailureRate float64  `toml:"failure_rate" yaml:"failure_rate"`
	SlowRate    float64  `toml:"slow_rate" yaml:"slow_rate"`
	SlowDelay   Duration `toml:"slow_delay" yaml:"slow_delay"`
}

// TLSConfig holds certificate settings for the tls sample
type TLSConfig struct {
	Enabled            bool   `toml:"enabled" yaml:"enabled"`
	CertFile           string `toml:"cert_file" yaml:"cert_file"`
	KeyFile            string `toml:"key_file" yaml:"key_file"`
	CAFile             string `toml:"ca_file" yaml:"ca_file"`
	ServerNameOverride string `toml:"server_name_override" yaml:"server_name_override"`
}

// RegistryConfig holds service registry configuration
type RegistryConfig struct {
	Host                string   `toml:"host" yaml:"host"`
	Port                int      `toml:"port" yaml:"port"`
	Address             string   `toml:"address" yaml:"address"`
	Store               string   `toml:"store" yaml:"store"`
	SQLitePath          string   `toml:"sqlite_path" yaml:"sqlite_path"`
	RedisAddress        string   `toml:"redis_address" yaml:"redis_address"`
	RedisPrefix         string   `toml:"redis_prefix" yaml:"redis_prefix"`
	HealthCheckInterval Duration `toml:"health_check_interval" yaml:"health_check_interval"`
	HealthCheckTimeout  Duration `toml:"health_check_timeout" yaml:"health_check_timeout"`
	HeartbeatInterval   Duration `toml:"heartbeat_interval" yaml:"heartbeat_interval"`
	HeartbeatTimeout    Duration `toml:"heartbeat_timeout" yaml:"heartbeat_timeout"`
	CleanupInterval     Duration `toml:"cleanup_interval" yaml:"cleanup_interval"`
}

// ResolverConfig holds settings of the registry name resolver
type ResolverConfig struct {
	RefreshInterval    Duration `toml:"refresh_interval" yaml:"refresh_interval"`
	MinResolveInterval Duration `toml:"min_resolve_interval" yaml:"min_resolve_interval"`
}

// GatewayConfig holds HTTP gateway configuration
type GatewayConfig struct {
	Host         string   `toml:"host" yaml:"host"`
	Port         int      `toml:"port" yaml:"port"`
	Backend      string   `toml:"backend" yaml:"backend"`
	ReadTimeout  Duration `toml:"read_timeout" yaml:"read_timeout"`
	WriteTimeout Duration `toml:"write_timeout" yaml:"write_timeout"`
}

// BinlogConfig holds binary logging settings
type BinlogConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Path    string `toml:"path" yaml:"path"`
	Filter  string `toml:"filter" yaml:"filter"`
}

// MetricsConfig holds prometheus settings
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Address string `toml:"address" yaml:"address"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled     bool   `toml:"enabled" yaml:"enabled"`
	ServiceName string `toml:"service_name" yaml:"service_name"`
}

// Duration wraps time.Duration for TOML and YAML parsing
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText formats the duration as a string
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalYAML parses a duration scalar
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.UnmarshalText([]byte(value.Value))
}

// Default returns a configuration with all defaults applied
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load loads configuration from a TOML or YAML file, chosen by extension
func Load(path string) (*Config, error) {
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	default:
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyDefaults()
	cfg.expandEnvVars()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv loads configuration from GRPC_SAMPLE_CONFIG or the default
// locations. Without any config file the defaults are returned.
func LoadFromEnv() (*Config, error) {
	path := os.Getenv(EnvConfigPath)
	if path == "" {
		defaultPaths := []string{
			"./configs/config.toml",
			"./configs/config.yaml",
			"./config.toml",
			filepath.Join(os.Getenv("HOME"), ".config/grpc-sample/config.toml"),
		}
		for _, p := range defaultPaths {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}

	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	// General
	if c.General.Name == "" {
		c.General.Name = "grpc-sample"
	}
	if c.General.Environment == "" {
		c.General.Environment = "development"
	}
	if c.General.LogLevel == "" {
		c.General.LogLevel = "info"
	}
	if c.General.LogFormat == "" {
		c.General.LogFormat = "text"
	}
	if c.General.Cloud.LogID == "" {
		c.General.Cloud.LogID = "grpc-sample"
	}

	// Server
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 9090
	}
	if c.Server.AdminPort == 0 {
		c.Server.AdminPort = 9091
	}
	if c.Server.MaxRecvMsgSize == 0 {
		c.Server.MaxRecvMsgSize = 16 * 1024 * 1024
	}
	if c.Server.MaxSendMsgSize == 0 {
		c.Server.MaxSendMsgSize = 16 * 1024 * 1024
	}
	if c.Server.KeepaliveTime.Duration == 0 {
		c.Server.KeepaliveTime.Duration = 30 * time.Second
	}
	if c.Server.KeepaliveTimeout.Duration == 0 {
		c.Server.KeepaliveTimeout.Duration = 10 * time.Second
	}
	if c.Server.ShutdownTimeout.Duration == 0 {
		c.Server.ShutdownTimeout.Duration = 30 * time.Second
	}
	if c.Server.ServiceName == "" {
		c.Server.ServiceName = "grpc-server"
	}
	if c.Server.AdvertiseHost == "" {
		c.Server.AdvertiseHost = "localhost"
	}

	// Client
	if c.Client.Target == "" {
		c.Client.Target = "localhost:9090"
	}
	if c.Client.Timeout.Duration == 0 {
		c.Client.Timeout.Duration = 10 * time.Second
	}
	if c.Client.Requests == 0 {
		c.Client.Requests = 1
	}
	if c.Client.Message == "" {
		c.Client.Message = "World"
	}
	if c.Client.QueueSize == 0 {
		c.Client.QueueSize = 100
	}

	// Hello
	if c.Hello.StreamCount == 0 {
		c.Hello.StreamCount = 100
	}
	if c.Hello.FailureRate == 0 {
		c.Hello.FailureRate = 0.7
	}
	if c.Hello.SlowRate == 0 {
		c.Hello.SlowRate = 0.7
	}
	if c.Hello.SlowDelay.Duration == 0 {
		c.Hello.SlowDelay.Duration = time.Second
	}

	// TLS
	if c.TLS.CertFile == "" {
		c.TLS.CertFile = "certs/server.pem"
	}
	if c.TLS.KeyFile == "" {
		c.TLS.KeyFile = "certs/server.key"
	}
	if c.TLS.ServerNameOverride == "" {
		c.TLS.ServerNameOverride = "localhost"
	}

	// Registry
	if c.Registry.Host == "" {
		c.Registry.Host = "0.0.0.0"
	}
	if c.Registry.Port == 0 {
		c.Registry.Port = 9100
	}
	if c.Registry.Address == "" {
		c.Registry.Address = fmt.Sprintf("localhost:%d", c.Registry.Port)
	}
	if c.Registry.Store == "" {
		c.Registry.Store = "memory"
	}
	if c.Registry.SQLitePath == "" {
		c.Registry.SQLitePath = "./data/registry.db"
	}
	if c.Registry.RedisAddress == "" {
		c.Registry.RedisAddress = "localhost:6379"
	}
	if c.Registry.RedisPrefix == "" {
		c.Registry.RedisPrefix = "registry:"
	}
	if c.Registry.HealthCheckInterval.Duration == 0 {
		c.Registry.HealthCheckInterval.Duration = 10 * time.Second
	}
	if c.Registry.HealthCheckTimeout.Duration == 0 {
		c.Registry.HealthCheckTimeout.Duration = 3 * time.Second
	}
	if c.Registry.HeartbeatInterval.Duration == 0 {
		c.Registry.HeartbeatInterval.Duration = 10 * time.Second
	}
	if c.Registry.HeartbeatTimeout.Duration == 0 {
		c.Registry.HeartbeatTimeout.Duration = 30 * time.Second
	}
	if c.Registry.CleanupInterval.Duration == 0 {
		c.Registry.CleanupInterval.Duration = 60 * time.Second
	}

	// Resolver
	if c.Resolver.RefreshInterval.Duration == 0 {
		c.Resolver.RefreshInterval.Duration = 10 * time.Second
	}
	if c.Resolver.MinResolveInterval.Duration == 0 {
		c.Resolver.MinResolveInterval.Duration = time.Second
	}

	// Gateway
	if c.Gateway.Host == "" {
		c.Gateway.Host = "0.0.0.0"
	}
	if c.Gateway.Port == 0 {
		c.Gateway.Port = 8090
	}
	if c.Gateway.Backend == "" {
		c.Gateway.Backend = "localhost:9090"
	}
	if c.Gateway.ReadTimeout.Duration == 0 {
		c.Gateway.ReadTimeout.Duration = 30 * time.Second
	}
	if c.Gateway.WriteTimeout.Duration == 0 {
		c.Gateway.WriteTimeout.Duration = 60 * time.Second
	}

	// Binlog
	if c.Binlog.Path == "" {
		c.Binlog.Path = "./data/binlog.bin"
	}
	if c.Binlog.Filter == "" {
		c.Binlog.Filter = "*"
	}

	// Metrics
	if c.Metrics.Address == "" {
		c.Metrics.Address = ":9464"
	}

	// Tracing
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = c.General.Name
	}
}

// expandEnvVars expands environment variables in path-like values
func (c *Config) expandEnvVars() {
	c.General.LogFile = os.ExpandEnv(c.General.LogFile)
	c.General.Cloud.Project = os.ExpandEnv(c.General.Cloud.Project)
	c.TLS.CertFile = os.ExpandEnv(c.TLS.CertFile)
	c.TLS.KeyFile = os.ExpandEnv(c.TLS.KeyFile)
	c.TLS.CAFile = os.ExpandEnv(c.TLS.CAFile)
	c.Registry.SQLitePath = os.ExpandEnv(c.Registry.SQLitePath)
	c.Registry.RedisAddress = os.ExpandEnv(c.Registry.RedisAddress)
	c.Binlog.Path = os.ExpandEnv(c.Binlog.Path)
	c.Client.ServiceConfigFile = os.ExpandEnv(c.Client.ServiceConfigFile)
}

// Validate checks values that defaults cannot repair
func (c *Config) Validate() error {
	for name, port := range map[string]int{
		"server.port":   c.Server.Port,
		"registry.port": c.Registry.Port,
		"gateway.port":  c.Gateway.Port,
	} {
		if port < 0 || port > 65535 {
			return fmt.Errorf("invalid %s: %d", name, port)
		}
	}
	for name, rate := range map[string]float64{
		"hello.failure_rate": c.Hello.FailureRate,
		"hello.slow_rate":    c.Hello.SlowRate,
	} {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("invalid %s: %v (must be within [0,1])", name, rate)
		}
	}
	switch c.Registry.Store {
	case "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("invalid registry.store: %q (memory, sqlite or redis)", c.Registry.Store)
	}
	if c.General.Cloud.Enabled && c.General.Cloud.Project == "" {
		return fmt.Errorf("cloud_logging.project is required when cloud logging is enabled")
	}
	return nil
}

// ServerAddress returns the listen address of the sample server
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// RegistryListenAddress returns the listen address of the registry server
func (c *Config) RegistryListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Registry.Host, c.Registry.Port)
}

// GatewayAddress returns the listen address of the HTTP gateway
func (c *Config) GatewayAddress() string {
	return fmt.Sprintf("%s:%d", c.Gateway.Host, c.Gateway.Port)
}
