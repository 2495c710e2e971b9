// Command gatewayd is the headless gateway agent's daemon entrypoint:
// it loads configuration, opens the local gateway store, and runs the
// WeighingWorker and GatewayAgent concurrently until signalled to stop.
// Wiring and Execute()/main() split follow the teacher's cmd/root.go +
// cmd/adoctl/main.go pattern.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/donghyeon/scaleledger-gateway/pkg/agent"
	"github.com/donghyeon/scaleledger-gateway/pkg/backend/httpapi"
	"github.com/donghyeon/scaleledger-gateway/pkg/config"
	"github.com/donghyeon/scaleledger-gateway/pkg/errorsx"
	"github.com/donghyeon/scaleledger-gateway/pkg/events"
	"github.com/donghyeon/scaleledger-gateway/pkg/logger"
	"github.com/donghyeon/scaleledger-gateway/pkg/store"
	"github.com/donghyeon/scaleledger-gateway/pkg/worker"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	Version   string
	BuildTime string
	GitCommit string
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "gatewayd",
	Short: "Headless weighing-station gateway agent",
	Long: `gatewayd drives one Suwol1000 weighing-station indicator over a
serial port and keeps this machine registered as a Gateway with the
backend, relaying RFID tag and weighing-completed events for as long
as the indicator and the network cooperate.`,
	RunE: runDaemon,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("log-level") {
			if envLevel := os.Getenv("GATEWAY_LOG_LEVEL"); envLevel != "" {
				logLevel = envLevel
			}
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		ver, bt, gc := Version, BuildTime, GitCommit
		if ver == "" {
			ver = "dev"
		}
		if bt == "" {
			bt = "unknown"
		}
		if gc == "" {
			gc = "unknown"
		}
		fmt.Printf("gatewayd version %s\n", ver)
		fmt.Printf("Built: %s\n", bt)
		fmt.Printf("Git commit: %s\n", gc)
	},
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.SetLevel(cfg.LogLevel)
	if logLevel != "" {
		logger.SetLevel(logLevel)
	}
	log := logger.GetLogger()

	gatewayStore, err := store.Open(cfg.DBPath)
	if err != nil {
		return errorsx.DBUnavailableError(err)
	}
	defer gatewayStore.Close()

	sink := events.NewChannelSink(func(dropped events.Event) {
		log.Warn().Str("event_id", dropped.EventUUID()).Msg("biz.event.dropped")
	})

	w := worker.New(worker.Config{
		PortName:        cfg.SerialPort,
		DeviceID:        cfg.DeviceID,
		PollingInterval: cfg.PollingInterval,
		RetryInterval:   cfg.SerialRetryInterval,
		Sink:            sink,
	})

	a, err := agent.New(agent.Config{
		BaseURL:           cfg.BaseURL,
		RetryInterval:     cfg.AgentRetryInterval,
		HeartbeatInterval: cfg.HeartbeatInterval,
		API:               httpapi.New(cfg.BaseURL),
		Store:             gatewayStore,
		Events:            sink.Events(),
	})
	if err != nil {
		return fmt.Errorf("failed to build gateway agent: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("serial_port", cfg.SerialPort).Str("base_url", cfg.BaseURL).Msg("sys.daemon.starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(gctx) })
	g.Go(func() error { return a.Run(gctx) })

	err = g.Wait()
	log.Info().Msg("sys.daemon.stopped")
	return err
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(int(errorsx.HandleReturn(err)))
	}
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (defaults to the XDG config directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error, fatal, panic); overrides config/env")
}

func main() {
	Execute()
}
