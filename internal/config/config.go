// Package config provides configuration management for DeployHub.
//
// Both the Center and the Agent read the same configuration tree; each
// component only looks at the sections it needs. Values are loaded from:
//   - Default values
//   - A YAML configuration file
//   - A .env file in the working directory
//   - Environment variables (with DH_ prefix)
//
// # Configuration Sources Priority
//
// Later sources override earlier ones:
//  1. Default values (hardcoded)
//  2. Configuration file (./config.yaml, ./configs/config.yaml, ~/.deployhub/config.yaml, /etc/deployhub/config.yaml)
//  3. .env file
//  4. Environment variables (DH_ prefix)
//
// # Environment Variables
//
// Use the DH_ prefix and underscores for nested keys:
//   - DH_CENTER_PORT=8090
//   - DH_AGENT_DATA_DIR=/srv/deploy-agent/data
//   - DH_SECURITY_JWT_SECRET=...
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the root configuration structure for DeployHub.
type Config struct {
	// Center contains the operator-facing HTTP server configuration
	Center CenterConfig `mapstructure:"center" yaml:"center"`

	// Agent contains the per-host deployment agent configuration
	Agent AgentConfig `mapstructure:"agent" yaml:"agent"`

	// Storage contains JSON record store settings
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`

	// Logging contains logging settings
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Security contains authentication and rate limiting settings
	Security SecurityConfig `mapstructure:"security" yaml:"security"`

	// Proxy contains Center-to-Agent forwarding settings
	Proxy ProxyConfig `mapstructure:"proxy" yaml:"proxy"`
}

// CenterConfig contains the Center HTTP server configuration.
type CenterConfig struct {
	// Host is the server bind address (default: 0.0.0.0)
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the server listen port (default: 8090)
	Port int `mapstructure:"port" yaml:"port"`

	// ReadTimeout is the maximum duration for reading requests
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the maximum duration for writing responses
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// ShutdownTimeout is the maximum duration for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	// Debug exposes internal error details in responses
	Debug bool `mapstructure:"debug" yaml:"debug"`
}

// AgentConfig contains the deployment agent configuration.
type AgentConfig struct {
	// Host is the agent bind address
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the agent listen port (default: 2333)
	Port int `mapstructure:"port" yaml:"port"`

	// TemplateDir holds Dockerfile and docker command template files
	TemplateDir string `mapstructure:"template_dir" yaml:"template_dir"`

	// DockerHost overrides DOCKER_HOST for the engine client (empty: from environment)
	DockerHost string `mapstructure:"docker_host" yaml:"docker_host"`

	// RequireUser rejects requests that arrive without an X-User header
	RequireUser bool `mapstructure:"require_user" yaml:"require_user"`

	// ShutdownTimeout is the maximum duration for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// StorageConfig contains JSON record store settings.
type StorageConfig struct {
	// DataDir is the directory holding one JSON file per entity type
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error)
	Level string `mapstructure:"level" yaml:"level"`

	// Format is the log format (json, text)
	Format string `mapstructure:"format" yaml:"format"`

	// Output is the log destination (stdout, file)
	Output string `mapstructure:"output" yaml:"output"`

	// Dir is where log files are written when Output is "file"
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// SecurityConfig contains authentication and rate limiting settings.
type SecurityConfig struct {
	// RateLimit is the maximum requests per second per client (0 disables)
	RateLimit int `mapstructure:"rate_limit" yaml:"rate_limit"`

	// AllowedOrigins are the CORS allowed origins
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`

	// AuthEnabled enables the bearer token guard on the Center
	AuthEnabled bool `mapstructure:"auth_enabled" yaml:"auth_enabled"`

	// JWTSecret is the secret key for signing access tokens
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret"`

	// TokenExpiration is used when the token_expiration_hours system config is absent
	TokenExpiration time.Duration `mapstructure:"token_expiration" yaml:"token_expiration"`

	// TOTPIssuer is the issuer shown in authenticator apps
	TOTPIssuer string `mapstructure:"totp_issuer" yaml:"totp_issuer"`

	// BootstrapAdminUsername seeds an administrator when the user store is empty
	BootstrapAdminUsername string `mapstructure:"bootstrap_admin_username" yaml:"bootstrap_admin_username"`

	// BootstrapAdminPassword is the seeded administrator's initial password
	BootstrapAdminPassword string `mapstructure:"bootstrap_admin_password" yaml:"bootstrap_admin_password"`
}

// ProxyConfig contains Center-to-Agent forwarding settings.
type ProxyConfig struct {
	// Timeout bounds one forwarded call-api request
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Load reads configuration from a file, a .env file and environment variables.
// If cfgFile is empty, it searches for config.yaml in standard locations.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.deployhub")
		v.AddConfigPath("/etc/deployhub")
	}

	if err := v.ReadInConfig(); err != nil {
		if cfgFile != "" {
			if !isFileNotFoundError(err) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		} else {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	// .env values land in the process environment and are picked up below
	if err := godotenv.Load(); err != nil && !isFileNotFoundError(err) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v.SetEnvPrefix("DH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("center.host", "0.0.0.0")
	v.SetDefault("center.port", 8090)
	v.SetDefault("center.read_timeout", "30s")
	v.SetDefault("center.write_timeout", "10m")
	v.SetDefault("center.shutdown_timeout", "10s")
	v.SetDefault("center.debug", false)

	v.SetDefault("agent.host", "0.0.0.0")
	v.SetDefault("agent.port", 2333)
	v.SetDefault("agent.template_dir", "./template")
	v.SetDefault("agent.docker_host", "")
	v.SetDefault("agent.require_user", false)
	v.SetDefault("agent.shutdown_timeout", "10s")

	v.SetDefault("storage.data_dir", "./data")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.dir", "./logs")

	v.SetDefault("security.rate_limit", 100)
	v.SetDefault("security.allowed_origins", []string{"*"})
	v.SetDefault("security.auth_enabled", true)
	v.SetDefault("security.jwt_secret", "change-me-in-production")
	v.SetDefault("security.token_expiration", "24h")
	v.SetDefault("security.totp_issuer", "DeployHub")
	v.SetDefault("security.bootstrap_admin_username", "admin")
	v.SetDefault("security.bootstrap_admin_password", "")

	v.SetDefault("proxy.timeout", "30s")
}

func validate(cfg *Config) error {
	if cfg.Center.Port < 1 || cfg.Center.Port > 65535 {
		return fmt.Errorf("invalid center port: %d", cfg.Center.Port)
	}

	if cfg.Agent.Port < 1 || cfg.Agent.Port > 65535 {
		return fmt.Errorf("invalid agent port: %d", cfg.Agent.Port)
	}

	if cfg.Storage.DataDir == "" {
		return fmt.Errorf("storage data_dir is required")
	}

	if cfg.Security.AuthEnabled && cfg.Security.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required when auth is enabled")
	}

	if cfg.Proxy.Timeout <= 0 {
		return fmt.Errorf("proxy timeout must be positive, got %v", cfg.Proxy.Timeout)
	}

	switch cfg.Logging.Output {
	case "stdout", "file":
	default:
		return fmt.Errorf("invalid logging output: %q", cfg.Logging.Output)
	}

	return nil
}

// isFileNotFoundError checks if an error is a file not found error.
func isFileNotFoundError(err error) bool {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return errors.Is(pathErr, os.ErrNotExist)
	}
	return errors.Is(err, os.ErrNotExist)
}
