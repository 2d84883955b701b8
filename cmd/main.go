package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/OccDeser/uniclip/internal/telemetry"
	"github.com/OccDeser/uniclip/pkg/api"
	"github.com/OccDeser/uniclip/pkg/history"
	"github.com/OccDeser/uniclip/pkg/p2p"
	"github.com/OccDeser/uniclip/pkg/shortcut"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v2"
)

var version = "dev"

var (
	configPath = flag.String("config", "config.yaml", "Path to configuration file")
	logLevel   = flag.String("log-level", "info", "Logging level (debug, info, warn, error)")
	listenAddr = flag.String("listen", "", "Listen address, e.g. /ip4/192.168.1.164/udp/1699 (overrides config)")
	apiPort    = flag.Int("api-port", 0, "Control API port (overrides config)")
	noAPI      = flag.Bool("no-api", false, "Do not start the control API")
)

type Config struct {
	// Node configuration
	Node p2p.Config `yaml:"node"`

	// History configuration
	History history.Config `yaml:"history"`

	// API configuration
	API api.APIConfig `yaml:"api"`
}

func defaultConfig() *Config {
	return &Config{
		Node:    *p2p.DefaultConfig(),
		History: *history.DefaultConfig(),
		API:     *api.DefaultAPIConfig(),
	}
}

func main() {
	flag.Parse()

	// Initialize logger
	logger, err := initLogger(*logLevel)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Load configuration
	config, err := loadConfig(*configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Warn("Configuration file not found, using defaults",
			zap.String("path", *configPath))
	case err != nil:
		logger.Fatal("Failed to load configuration",
			zap.Error(err),
			zap.String("path", *configPath))
	}
	applyFlags(config, *listenAddr, *apiPort)

	telemetry.SetBuildInfo(version)

	// Create application context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize clipboard history
	clips, err := history.NewRing(&config.History, history.WithLogger(logger.Named("history")))
	if err != nil {
		logger.Fatal("Failed to initialize clipboard history",
			zap.Error(err))
	}

	// Initialize P2P node
	node, err := p2p.NewNode(&config.Node, clips, p2p.WithLogger(logger.Named("p2p")))
	if err != nil {
		logger.Fatal("Failed to initialize P2P node",
			zap.Error(err))
	}

	// Initialize API server
	var apiServer *api.APIServer
	if !*noAPI {
		apiServer, err = initAPIServer(config, node, clips, logger)
		if err != nil {
			logger.Fatal("Failed to initialize API server",
				zap.Error(err))
		}
	}

	// Start services
	if err := startServices(ctx, node, apiServer, logger); err != nil {
		logger.Fatal("Failed to start services",
			zap.Error(err))
	}

	// Console and shortcuts
	shortcuts := shortcut.NewRegistry(logger.Named("shortcut"))
	con := newConsole(os.Stdin, os.Stdout, node, clips, shortcuts, logger.Named("console"))
	if err := con.registerDefaultShortcuts(ctx); err != nil {
		logger.Fatal("Failed to register shortcuts", zap.Error(err))
	}
	go con.run(ctx)
	go con.watchHistory(ctx, historyPollInterval)

	// Wait for shutdown signal
	waitForShutdown(cancel, node, clips, apiServer, logger)
}

func initLogger(level string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(getLogLevel(level))
	return config.Build()
}

func getLogLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zap.DebugLevel
	case "info":
		return zap.InfoLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// loadConfig overlays the YAML file at path onto the defaults. A missing
// file yields the defaults together with an error wrapping os.ErrNotExist.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	configFile, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(configFile, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return config, nil
}

func applyFlags(config *Config, listen string, port int) {
	if listen != "" {
		config.Node.ListenAddr = listen
	}
	if port > 0 {
		config.API.Port = port
	}
}

func initAPIServer(config *Config, node *p2p.Node, clips *history.Ring, logger *zap.Logger) (*api.APIServer, error) {
	// Create API services
	services := &api.APIServices{
		NodeService:    node,
		HistoryService: clips,
	}

	server, err := api.NewAPIServer(&config.API, services, api.WithLogger(logger.Named("api")))
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}

	return server, nil
}

func startServices(
	ctx context.Context,
	node *p2p.Node,
	server *api.APIServer,
	logger *zap.Logger,
) error {
	// Start P2P node
	if err := node.Start(ctx); err != nil {
		return fmt.Errorf("starting P2P node: %w", err)
	}
	logger.Info("P2P node started",
		zap.Stringer("endpoint", node.LocalEndpoint()))

	if server == nil {
		return nil
	}

	// Start API server
	if err := server.Start(); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	logger.Info("API server started")

	return nil
}

func waitForShutdown(
	cancel context.CancelFunc,
	node *p2p.Node,
	clips *history.Ring,
	server *api.APIServer,
	logger *zap.Logger,
) {
	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	sig := <-sigChan
	logger.Info("Received shutdown signal",
		zap.String("signal", sig.String()))

	// Cancel context
	cancel()

	logger.Info("Shutting down services...")

	if server != nil {
		if err := server.Stop(); err != nil {
			logger.Error("Error stopping API server",
				zap.Error(err))
		}
	}

	if err := node.Stop(); err != nil {
		logger.Error("Error stopping P2P node",
			zap.Error(err))
	}

	if err := clips.Close(); err != nil {
		logger.Error("Error closing clipboard history",
			zap.Error(err))
	}

	logger.Info("Shutdown complete")
}
