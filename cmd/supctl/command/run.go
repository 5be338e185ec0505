package command

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"supctl/ctl"
	"supctl/logging"
	"supctl/manager"
	"supctl/metrics"
	"supctl/registry"
	"supctl/server"
	"supctl/version"
)

const shutdownTimeout = 5 * time.Second

func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the ctl gateway and the service manager behind it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger := logging.Init("supctl", cfg.Log)
			metrics.RegisterMetrics()

			sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			// the gateway and manager outlive the signal until Shutdown has
			// drained open transactions
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			inbox := ctl.NewInbox(cfg.Gateway.CommandQueueSize)
			gw := server.NewGateway(cfg.Gateway, inbox, logger)
			if cfg.Registry.Enabled() {
				reg, err := registry.NewEtcdRegistry(cfg.Registry.Endpoints)
				if err != nil {
					return err
				}
				defer reg.Close()
				gw.UseRegistry(reg, cfg.Registry.Name, cfg.Registry.TTL, version.Version)
			}

			if cfg.Metrics.ListenAddr != "" {
				go func() {
					if err := metrics.Serve(ctx, cfg.Metrics.ListenAddr, logger); err != nil {
						logger.Error().Err(err).Msg("metrics endpoint stopped")
					}
				}()
			}

			managed := make(chan error, 1)
			go func() {
				managed <- manager.New(cfg.Manager, inbox, logger).Run(ctx)
			}()

			served := make(chan error, 1)
			go func() {
				served <- gw.Serve(ctx)
			}()

			select {
			case <-sigCtx.Done():
				logger.Info().Msg("shutting down")
			case err := <-served:
				cancel()
				<-managed
				return err
			}

			if err := gw.Shutdown(shutdownTimeout); err != nil {
				logger.Warn().Err(err).Msg("gateway shutdown incomplete")
			}
			cancel()
			<-managed
			return <-served
		},
	}
	cmd.Flags().String("listen", "", "ctl gateway listen address")
	cmd.Flags().String("specs-dir", "", "directory for service spec files")
	cmd.Flags().String("metrics", "", "address of the /metrics endpoint; empty disables it")
	cmd.Flags().StringSlice("registry", nil, "etcd endpoints to announce the gateway on")

	viper.BindPFlag(KeyListenAddr, cmd.Flags().Lookup("listen"))
	viper.BindPFlag(KeySpecsDir, cmd.Flags().Lookup("specs-dir"))
	viper.BindPFlag(KeyMetricsAddr, cmd.Flags().Lookup("metrics"))
	viper.BindPFlag(KeyRegistryEndpoints, cmd.Flags().Lookup("registry"))
	return cmd
}
