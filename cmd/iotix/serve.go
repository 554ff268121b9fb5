package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/crtx-sg/iotix/pkg/controlplane"
	"github.com/crtx-sg/iotix/pkg/devbroker"
	"github.com/crtx-sg/iotix/pkg/engine"
	"github.com/crtx-sg/iotix/pkg/logging"
)

// Flag variables for the serve command, the same package-level pattern as
// the teacher's pkg/cli/start.go (startLoadDir, startWatch, ...).
var (
	serveModelsDir       string
	servePort            int
	serveLogLevel        string
	serveLogFormat       string
	serveSinkOutput      string
	serveSinkURL         string
	serveSinkToken       string
	serveBrokerHost      string
	serveBrokerPort      int
	serveWithBroker      bool
	serveLocalBrokerPort int
	serveLokiURL         string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the device engine and its control plane API",
	Long: `serve boots the Device Manager, the Metrics Sink, and the REST
control plane, then blocks until interrupted. Models are loaded from
--models-dir (or DEVICE_MODEL_PATH) at startup; new ones can be registered
at runtime through the control plane.`,
	Example: `  iotix serve --port 8080 --models-dir ./models
  iotix serve --sink-output stdout
  iotix serve --with-broker --broker-port 1883`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveModelsDir, "models-dir", "", "directory device models are loaded from (overrides "+engine.EnvModelPath+")")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "control plane listen port (overrides "+engine.EnvControlPlanePort+")")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "", "debug, info, warn, or error")
	serveCmd.Flags().StringVar(&serveLogFormat, "log-format", "", "text or json")
	serveCmd.Flags().StringVar(&serveSinkOutput, "sink-output", "", "noop, stdout, or http")
	serveCmd.Flags().StringVar(&serveSinkURL, "sink-endpoint", "", "metrics sink HTTP endpoint, required when sink-output=http")
	serveCmd.Flags().StringVar(&serveSinkToken, "sink-token", "", "bearer token for the metrics sink")
	serveCmd.Flags().StringVar(&serveBrokerHost, "broker-host", "", "default MQTT broker host for models that omit one")
	serveCmd.Flags().IntVar(&serveBrokerPort, "broker-port", 0, "default MQTT broker port for models that omit one")
	serveCmd.Flags().BoolVar(&serveWithBroker, "with-broker", false, "start an embedded local MQTT broker for zero-config testing")
	serveCmd.Flags().IntVar(&serveLocalBrokerPort, "local-broker-port", 1883, "port the embedded broker listens on, when --with-broker is set")
	serveCmd.Flags().StringVar(&serveLokiURL, "loki-url", "", "Loki push endpoint logs are additionally shipped to (overrides "+engine.EnvLokiURL+")")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := engine.LoadConfig()
	applyServeFlags(&cfg)

	log := logging.New(logging.Config{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		LokiURL:    cfg.LokiURL,
		LokiLabels: map[string]string{"service": "iotix"},
	})

	var broker *devbroker.Broker
	if serveWithBroker {
		b, err := devbroker.New(devbroker.Config{Port: serveLocalBrokerPort})
		if err != nil {
			return fmt.Errorf("create embedded broker: %w", err)
		}
		b.SetLogger(log)
		if err := b.Start(cmd.Context()); err != nil {
			return fmt.Errorf("start embedded broker: %w", err)
		}
		broker = b
		log.Info("embedded broker listening", "port", serveLocalBrokerPort)
	}

	mgr, err := engine.New(cfg, engine.WithLogger(log))
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	addr := fmt.Sprintf(":%d", cfg.ControlPlanePort)
	server := controlplane.NewServer(mgr, addr)
	server.SetLogger(log)
	if err := server.Start(); err != nil {
		return fmt.Errorf("start control plane: %w", err)
	}

	log.Info("iotix serving", "addr", addr, "modelsDir", cfg.ModelsDir)

	waitForShutdown(log)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("control plane shutdown error", "error", err)
	}
	if broker != nil {
		if err := broker.Stop(shutdownCtx, 5*time.Second); err != nil {
			log.Error("embedded broker shutdown error", "error", err)
		}
	}
	if err := mgr.Close(); err != nil {
		log.Error("engine shutdown error", "error", err)
	}

	log.Info("iotix stopped")
	return nil
}

func applyServeFlags(cfg *engine.Config) {
	if serveModelsDir != "" {
		cfg.ModelsDir = serveModelsDir
	}
	if servePort != 0 {
		cfg.ControlPlanePort = servePort
	}
	if serveLogLevel != "" {
		cfg.LogLevel = logging.ParseLevel(serveLogLevel)
	}
	if serveLogFormat != "" {
		cfg.LogFormat = logging.ParseFormat(serveLogFormat)
	}
	if serveSinkOutput != "" {
		cfg.SinkOutput = engine.SinkOutput(serveSinkOutput)
	}
	if serveSinkURL != "" {
		cfg.SinkEndpoint = serveSinkURL
	}
	if serveSinkToken != "" {
		cfg.SinkToken = serveSinkToken
	}
	if serveBrokerHost != "" {
		cfg.DefaultBrokerHost = serveBrokerHost
	}
	if serveBrokerPort != 0 {
		cfg.DefaultBrokerPort = serveBrokerPort
	}
	if serveLokiURL != "" {
		cfg.LokiURL = serveLokiURL
	}
}

// waitForShutdown blocks until SIGINT or SIGTERM, grounded on the teacher's
// pkg/cli.WaitForShutdown.
func waitForShutdown(log interface {
	Info(msg string, args ...any)
}) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info("shutting down")
}
