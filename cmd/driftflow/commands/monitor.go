package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/driftflow/internal/api"
	"github.com/marmos91/driftflow/internal/logger"
	"github.com/marmos91/driftflow/internal/telemetry"
	"github.com/marmos91/driftflow/pkg/checkpoint"
	"github.com/marmos91/driftflow/pkg/metrics"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Serve checkpoint status over HTTP",
	Long: `Monitor recovers the checkpoint state from storage and serves it on the
status API (/healthz, /api/v1/checkpoint, /metrics) until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if cfg.Status.Metrics {
			metrics.InitRegistry()
		}

		if cfg.Telemetry.Enabled {
			shutdown, err := telemetry.Init(ctx, telemetry.Config{
				Enabled:        true,
				ServiceName:    "driftflow",
				ServiceVersion: versionString,
				Endpoint:       cfg.Telemetry.Endpoint,
				Insecure:       cfg.Telemetry.Insecure,
				SampleRate:     cfg.Telemetry.SampleRate,
			})
			if err != nil {
				return err
			}
			defer func() {
				_ = shutdown(context.Background())
			}()
		}

		if cfg.Telemetry.Profiling.Enabled {
			stop, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
				Enabled:        true,
				ServiceName:    "driftflow",
				ServiceVersion: versionString,
				Endpoint:       cfg.Telemetry.Profiling.Endpoint,
				ProfileTypes:   cfg.Telemetry.Profiling.Types,
			})
			if err != nil {
				return err
			}
			defer func() {
				_ = stop()
			}()
		}

		storageCfg := cfg.Checkpoint.Storage
		storageCfg.S3Metrics = metrics.NewS3Metrics()

		factory, ckpt, err := checkpoint.NewFactory(ctx, cfg.Checkpoint.Dir, checkpoint.FactoryOptions{
			StorageConfig:        storageCfg,
			PersistQueueCapacity: cfg.Checkpoint.PersistQueueCapacity,
			Metrics:              metrics.NewCheckpointMetrics(),
		})
		if err != nil {
			return err
		}
		defer factory.Close()

		provider := api.StatusProviderFunc(func() api.CheckpointStatus {
			return api.CheckpointStatus{
				Present:     ckpt.NumSlices() > 0,
				NumSlices:   ckpt.NumSlices(),
				EpochID:     ckpt.EpochID(),
				NextEpochID: ckpt.NextEpochID(),
				Records:     factory.RecordStore().NumRecords(),
				QueueDepth:  factory.Queue().Depth(),
			}
		})

		server := api.NewServer(api.Config{
			Listen:  cfg.Status.Listen,
			Metrics: cfg.Status.Metrics,
		}, provider)

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start()
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return err
		case sig := <-sigCh:
			logger.Info("Shutting down", "signal", sig.String())
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		}
	},
}

func init() {
	checkpointCmd.AddCommand(monitorCmd)
}
