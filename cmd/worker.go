package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/sells-group/submission-intake/internal/agents"
	"github.com/sells-group/submission-intake/internal/config"
	"github.com/sells-group/submission-intake/internal/metrics"
	"github.com/sells-group/submission-intake/internal/poll"
	"github.com/sells-group/submission-intake/internal/resilience"
	"github.com/sells-group/submission-intake/internal/store"
	"github.com/sells-group/submission-intake/internal/workflow"
	"github.com/sells-group/submission-intake/pkg/agentsvc"
	"github.com/sells-group/submission-intake/pkg/casemgmt"
	"github.com/sells-group/submission-intake/pkg/docintel"
)

var workerMetricsPort int

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the Temporal worker that executes intake and rerun workflows",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(config.ModeWorker); err != nil {
			return err
		}
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		acts, err := buildActivities(cfg, st)
		if err != nil {
			return err
		}

		tc, err := workflow.Dial(cfg.Temporal.HostPort, cfg.Temporal.Namespace)
		if err != nil {
			return err
		}
		defer tc.Close()

		metrics.Init()
		if workerMetricsPort > 0 {
			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", workerMetricsPort),
				Handler:           metrics.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					zap.L().Error("metrics server failed", zap.Error(err))
				}
			}()
			defer srv.Shutdown(context.Background()) //nolint:errcheck
		}

		w := workflow.NewWorker(tc, cfg.Temporal.TaskQueue, acts)
		zap.L().Info("starting worker",
			zap.String("task_queue", cfg.Temporal.TaskQueue),
			zap.String("namespace", cfg.Temporal.Namespace),
		)
		if err := w.Run(worker.InterruptCh()); err != nil {
			return eris.Wrap(err, "worker run")
		}
		return nil
	},
}

func init() {
	workerCmd.Flags().IntVar(&workerMetricsPort, "metrics-port", 0, "serve Prometheus metrics on this port (0 disables)")
	rootCmd.AddCommand(workerCmd)
}

// buildActivities wires the external clients the activities call.
func buildActivities(c *config.Config, st store.Store) (*workflow.Activities, error) {
	roster, err := agents.LoadRoster(c.Agents.RosterFile)
	if err != nil {
		return nil, err
	}

	di := docintel.NewClient(
		docintel.Credentials{
			ClientID:     c.DocIntel.ClientID,
			ClientSecret: c.DocIntel.ClientSecret,
			APIKey:       c.DocIntel.APIKey,
		},
		docintel.WithBaseURL(c.DocIntel.BaseURL),
		docintel.WithAuthURL(c.DocIntel.AuthURL),
		docintel.WithDataURL(c.DocIntel.DataURL),
		docintel.WithRateLimit(c.DocIntel.RateLimit),
		docintel.WithRetry(resilience.FromRetryConfig(
			c.DocIntel.MaxAttempts, c.DocIntel.InitialBackoffMs, c.DocIntel.MaxBackoffMs,
		)),
	)

	callTimeout := time.Duration(c.Agents.CallTimeoutSecs) * time.Second
	dispatcher := agents.NewDispatcher(roster, st,
		agentsvc.NewClient(c.Agents.BaseURL, agentsvc.WithTimeout(callTimeout)),
		agents.WithCallTimeout(callTimeout),
	)

	var caseOpts []casemgmt.Option
	if c.CaseMgmt.Username != "" {
		caseOpts = append(caseOpts, casemgmt.WithBasicAuth(c.CaseMgmt.Username, c.CaseMgmt.Password))
	}
	cases := casemgmt.NewClient(c.CaseMgmt.URL, caseOpts...)

	return workflow.NewActivities(di, dispatcher, st, cases,
		workflow.WithPollOptions(
			poll.WithInitialInterval(c.Poll.InitialInterval()),
			poll.WithMaxInterval(c.Poll.MaxInterval()),
			poll.WithStatusPath(c.Poll.StatusPath),
		),
	), nil
}
