package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
}

var showConfigCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runShowConfig,
}

var initConfigCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration file",
	RunE:  runInitConfig,
}

func init() {
	configCmd.AddCommand(showConfigCmd)
	configCmd.AddCommand(initConfigCmd)
}

func runShowConfig(cmd *cobra.Command, args []string) error {
	shown := *cfg
	shown.Security.JWTSecret = redact(shown.Security.JWTSecret)
	shown.Security.BootstrapAdminPassword = redact(shown.Security.BootstrapAdminPassword)

	data, err := yaml.Marshal(&shown)
	if err != nil {
		return err
	}

	fmt.Println(string(data))
	return nil
}

func runInitConfig(cmd *cobra.Command, args []string) error {
	defaultConfig := `# DeployHub Configuration

center:
  host: 0.0.0.0
  port: 8090
  read_timeout: 30s
  write_timeout: 10m
  shutdown_timeout: 10s
  debug: false

agent:
  host: 0.0.0.0
  port: 2333
  template_dir: ./template
  docker_host: ""
  require_user: false
  shutdown_timeout: 10s

storage:
  data_dir: ./data

logging:
  level: info
  format: json
  output: stdout
  dir: ./logs

security:
  rate_limit: 100
  allowed_origins:
    - "*"
  auth_enabled: true
  jwt_secret: change-me-in-production
  token_expiration: 24h
  totp_issuer: DeployHub
  bootstrap_admin_username: admin
  bootstrap_admin_password: ""

proxy:
  timeout: 30s
`

	if _, err := os.Stat("config.yaml"); err == nil {
		return fmt.Errorf("config.yaml already exists")
	}
	if err := os.WriteFile("config.yaml", []byte(defaultConfig), 0o644); err != nil {
		return err
	}

	fmt.Println("✓ Created config.yaml")
	return nil
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}
