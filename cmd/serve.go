package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/sells-group/submission-intake/internal/config"
	"github.com/sells-group/submission-intake/internal/intake"
	"github.com/sells-group/submission-intake/internal/metrics"
	"github.com/sells-group/submission-intake/internal/workflow"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the intake HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		cfg.Server.Port = port
		if err := cfg.Validate(config.ModeServe); err != nil {
			return err
		}

		tc, err := workflow.Dial(cfg.Temporal.HostPort, cfg.Temporal.Namespace)
		if err != nil {
			return err
		}
		defer tc.Close()

		metrics.Init()
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newIntakeHandler(cfg, newOrchestrator(cfg, tc), tc),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// workflowSettings carries the configured activity bounds into each
// workflow input.
func workflowSettings(c *config.Config) workflow.Settings {
	return workflow.Settings{
		PollTimeout:      time.Duration(c.Poll.ActivityTimeoutMins) * time.Minute,
		PollHeartbeat:    time.Duration(c.Poll.HeartbeatTimeoutSecs) * time.Second,
		AgentCallTimeout: time.Duration(c.Agents.CallTimeoutSecs) * time.Second,
	}
}

func newOrchestrator(c *config.Config, tc client.Client) *workflow.Orchestrator {
	return workflow.NewOrchestrator(tc, c.Temporal.TaskQueue,
		workflow.WithSettings(workflowSettings(c)),
		workflow.WithWorkflowTimeout(time.Duration(c.Temporal.WorkflowTimeoutMins)*time.Minute),
	)
}

func newIntakeHandler(c *config.Config, o intake.Orchestrator, tc client.Client) http.Handler {
	checks := map[string]intake.HealthCheck{}
	if tc != nil {
		checks["temporal"] = func(ctx context.Context) error {
			_, err := tc.CheckHealth(ctx, &client.CheckHealthRequest{})
			return err
		}
	}
	return intake.NewHandler(intake.Config{
		Orchestrator:   o,
		WaitInterval:   time.Duration(c.Intake.WaitPollSecs) * time.Second,
		WaitAttempts:   c.Intake.WaitMaxAttempts,
		MaxUploadBytes: int64(c.Intake.MaxUploadMB) << 20,
		AllowedOrigins: c.Intake.AllowedOrigins,
		HealthChecks:   checks,
	})
}
