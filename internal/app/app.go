// Package app wires the poller's components together.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/florianw/stationpoller/internal/graphite"
	"github.com/florianw/stationpoller/internal/log"
	"github.com/florianw/stationpoller/internal/poller"
	"github.com/florianw/stationpoller/internal/schema"
	"github.com/florianw/stationpoller/internal/state"
	"github.com/florianw/stationpoller/internal/station"
	"github.com/florianw/stationpoller/internal/telemetry"
	"github.com/florianw/stationpoller/pkg/config"
	"go.uber.org/zap"
)

// defaultStationPort is the WS980's fixed TCP command port.
const defaultStationPort = 45000

// App represents the main application
type App struct {
	configProvider config.ConfigProvider
	logger         *zap.SugaredLogger
}

// New creates a new application instance
func New(configProvider config.ConfigProvider, logger *zap.SugaredLogger) *App {
	return &App{
		configProvider: configProvider,
		logger:         logger,
	}
}

// countingLocator bumps the discovery counter around the real locator
type countingLocator struct {
	inner   station.Locator
	metrics *telemetry.Metrics
}

func (c *countingLocator) Locate(ctx context.Context) (state.Endpoint, error) {
	ep, err := c.inner.Locate(ctx)
	if err == nil {
		c.metrics.Discoveries.Inc()
	}
	return ep, err
}

// Run starts the application and blocks until shutdown
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, err := a.configProvider.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}

	if cfg.Station.Hostname == "" {
		return fmt.Errorf("station hostname must be configured")
	}
	if cfg.Collector.Hostname == "" {
		return fmt.Errorf("collector hostname must be configured")
	}

	sensorSchema, err := schema.FromConfig(cfg.Sensors)
	if err != nil {
		return fmt.Errorf("invalid sensor schema: %w", err)
	}

	stationPort := cfg.Station.Port
	if stationPort == 0 {
		stationPort = defaultStationPort
	}

	// The persisted endpoint survives restarts; the configured address
	// is only the seed for a fresh installation.
	stateFile := cfg.Station.StateFile
	if stateFile == "" {
		stateFile = "stationpoller.db"
	}
	store, err := state.NewSQLiteStore(stateFile)
	if err != nil {
		return fmt.Errorf("could not open state store: %w", err)
	}
	defer store.Close()

	registry, err := station.NewRegistry(store, state.Endpoint{
		Host: cfg.Station.Hostname,
		Port: stationPort,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("could not initialize station registry: %w", err)
	}

	metrics, promRegistry := telemetry.NewMetrics()

	discovery := station.NewDiscovery(station.DiscoveryConfig{
		BroadcastAddr: cfg.Discovery.BroadcastAddr,
		BroadcastPort: cfg.Discovery.BroadcastPort,
		NameMarker:    cfg.Discovery.NameMarker,
		StationPort:   stationPort,
		Timeout:       cfg.Discovery.Timeout,
	}, a.logger)

	client := station.NewClient(station.ClientConfig{
		Timeout:                     cfg.Station.Timeout,
		RediscoverOnProtocolFailure: cfg.Station.RediscoverOnProtocolFailure,
	}, registry, &countingLocator{inner: discovery, metrics: metrics}, a.logger)

	sink := graphite.NewSink(graphite.SinkConfig{
		Hostname: cfg.Collector.Hostname,
		Port:     cfg.Collector.Port,
		Timeout:  cfg.Collector.Timeout,
	}, a.logger)

	metricPrefix := cfg.Collector.MetricPrefix
	if metricPrefix == "" {
		metricPrefix = "weather."
	}

	p := poller.New(poller.Config{
		Interval:      cfg.Poller.Interval,
		MaxRetries:    cfg.Poller.MaxRetries,
		RetryDelay:    cfg.Poller.RetryDelay,
		CycleDeadline: cfg.Poller.CycleDeadline,
		MetricPrefix:  metricPrefix,
		PollMinMax:    cfg.Poller.PollMinMax,
	}, client, sink, sensorSchema, metrics, a.logger)

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.Run(ctx)
	}()

	var telemetryServer *telemetry.Server
	if cfg.Telemetry.ListenAddr != "" {
		telemetryServer = telemetry.NewServer(cfg.Telemetry.ListenAddr, promRegistry, a.logger)
		go telemetryServer.Start()
	}

	log.Info("Application started successfully")

	// Set up signal handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	select {
	case <-sigs:
		log.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		log.Info("context cancelled, shutting down...")
	}

	// Cancel context to signal all goroutines to stop
	cancel()

	if telemetryServer != nil {
		telemetryServer.Shutdown(context.Background())
	}

	// Wait for all workers to terminate
	log.Info("waiting for all workers to terminate...")
	wg.Wait()
	log.Info("shutdown complete")

	return nil
}
