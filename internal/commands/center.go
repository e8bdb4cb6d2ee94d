package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"evalgo.org/deployhub/internal/agents"
	"evalgo.org/deployhub/internal/api"
	"evalgo.org/deployhub/internal/auth"
	"evalgo.org/deployhub/internal/logging"
	"evalgo.org/deployhub/internal/storage"
	"evalgo.org/deployhub/internal/sysconfig"
	"evalgo.org/deployhub/internal/users"
	"evalgo.org/deployhub/models"
)

var centerCmd = &cobra.Command{
	Use:   "center",
	Short: "Start the Center API server",
	Long:  `Start the operator-facing HTTP API that manages users, agents and system config and proxies calls to agents`,
	RunE:  runCenter,
}

func init() {
	centerCmd.Flags().Int("port", 0, "listen port (default from config)")
	_ = viper.BindPFlag("center.port", centerCmd.Flags().Lookup("port")) //nolint:errcheck
}

func runCenter(cmd *cobra.Command, args []string) error {
	if port := viper.GetInt("center.port"); port > 0 {
		cfg.Center.Port = port
	}

	logger, closer, err := logging.Setup(cfg.Logging, "center")
	if err != nil {
		return err
	}
	defer closer.Close()

	dataDir := cfg.Storage.DataDir
	userStore, err := storage.Open[models.User](filepath.Join(dataDir, storage.UsersFile), logger)
	if err != nil {
		return fmt.Errorf("failed to open user store: %w", err)
	}
	agentStore, err := storage.Open[models.Agent](filepath.Join(dataDir, storage.AgentsFile), logger)
	if err != nil {
		return fmt.Errorf("failed to open agent store: %w", err)
	}
	configStore, err := storage.Open[models.SystemConfig](filepath.Join(dataDir, storage.SystemConfigFile), logger)
	if err != nil {
		return fmt.Errorf("failed to open system config store: %w", err)
	}

	userService := users.New(userStore, logger)
	if _, err := userService.EnsureAdmin(cfg.Security.BootstrapAdminUsername, cfg.Security.BootstrapAdminPassword); err != nil {
		return fmt.Errorf("failed to seed administrator: %w", err)
	}

	registry := agents.NewRegistry(agentStore, logger)
	server := api.New(cfg, api.Deps{
		Users:     userService,
		SysConfig: sysconfig.New(configStore, logger),
		Agents:    registry,
		Forwarder: agents.NewForwarder(registry, cfg.Proxy.Timeout, logger),
		JWT:       auth.NewJWTService(cfg.Security.JWTSecret),
		TOTP:      auth.NewTOTP(cfg.Security.TOTPIssuer),
		Logger:    logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Center.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		return nil

	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}
