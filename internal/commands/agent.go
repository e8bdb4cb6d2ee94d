package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"evalgo.org/deployhub/agent"
	"evalgo.org/deployhub/internal/dockerx"
	"evalgo.org/deployhub/internal/ledger"
	"evalgo.org/deployhub/internal/logging"
	"evalgo.org/deployhub/internal/pipeline"
	"evalgo.org/deployhub/internal/registry"
	"evalgo.org/deployhub/internal/storage"
	"evalgo.org/deployhub/internal/sysconfig"
	"evalgo.org/deployhub/internal/templates"
	"evalgo.org/deployhub/models"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Start the deployment agent",
	Long:  `Start the agent that registers projects on this Docker host and runs their deploy pipelines`,
	RunE:  runAgent,
}

func init() {
	agentCmd.Flags().Int("port", 0, "listen port (default from config)")
	agentCmd.Flags().String("docker-host", "", "Docker daemon address (default: from DOCKER_HOST)")
	agentCmd.Flags().String("template-dir", "", "directory holding template files")

	// These should never fail as flags are defined above
	_ = viper.BindPFlag("agent.port", agentCmd.Flags().Lookup("port"))                 //nolint:errcheck
	_ = viper.BindPFlag("agent.docker_host", agentCmd.Flags().Lookup("docker-host"))   //nolint:errcheck
	_ = viper.BindPFlag("agent.template_dir", agentCmd.Flags().Lookup("template-dir")) //nolint:errcheck
}

func runAgent(cmd *cobra.Command, args []string) error {
	if port := viper.GetInt("agent.port"); port > 0 {
		cfg.Agent.Port = port
	}
	if host := viper.GetString("agent.docker_host"); host != "" {
		cfg.Agent.DockerHost = host
	}
	if dir := viper.GetString("agent.template_dir"); dir != "" {
		cfg.Agent.TemplateDir = dir
	}

	logger, closer, err := logging.Setup(cfg.Logging, "agent")
	if err != nil {
		return err
	}
	defer closer.Close()

	dataDir := cfg.Storage.DataDir
	projectStore, err := storage.Open[models.Project](filepath.Join(dataDir, storage.ProjectsFile), logger)
	if err != nil {
		return fmt.Errorf("failed to open project store: %w", err)
	}
	historyStore, err := storage.Open[models.DeployHistory](filepath.Join(dataDir, storage.DeployHistoryFile), logger)
	if err != nil {
		return fmt.Errorf("failed to open deploy history store: %w", err)
	}
	templateStore, err := storage.Open[models.Template](filepath.Join(dataDir, storage.TemplatesFile), logger)
	if err != nil {
		return fmt.Errorf("failed to open template store: %w", err)
	}
	configStore, err := storage.Open[models.SystemConfig](filepath.Join(dataDir, storage.SystemConfigFile), logger)
	if err != nil {
		return fmt.Errorf("failed to open system config store: %w", err)
	}

	engine, err := dockerx.New(cfg.Agent.DockerHost)
	if err != nil {
		return fmt.Errorf("failed to create docker client: %w", err)
	}
	defer engine.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := engine.Ping(pingCtx); err != nil {
		logger.Warn().Err(err).Msg("docker daemon unreachable, deployments will fail until it is up")
	}
	cancelPing()

	projects := registry.New(projectStore, logger)
	history := ledger.New(historyStore, projectStore, logger)

	a := agent.New(cfg, agent.Deps{
		Projects:  projects,
		Ledger:    history,
		Templates: templates.New(templateStore, cfg.Agent.TemplateDir, logger),
		SysConfig: sysconfig.New(configStore, logger),
		Engine:    engine,
		Pipeline: pipeline.New(pipeline.Deps{
			Projects: projects,
			Ledger:   history,
			Engine:   engine,
			Metrics:  pipeline.NewMetrics(prometheus.DefaultRegisterer),
			Logger:   logger,
		}),
		Logger: logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)
	defer stop()

	return a.Run(ctx)
}
