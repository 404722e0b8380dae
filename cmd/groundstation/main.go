package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/open-teleop/groundstation/domain/devices"
	"github.com/open-teleop/groundstation/domain/hm30"
	"github.com/open-teleop/groundstation/domain/mapview"
	"github.com/open-teleop/groundstation/domain/ros"
	"github.com/open-teleop/groundstation/pkg/api"
	"github.com/open-teleop/groundstation/pkg/bridge"
	"github.com/open-teleop/groundstation/pkg/config"
	customlog "github.com/open-teleop/groundstation/pkg/log"
	"github.com/open-teleop/groundstation/pkg/serialdev"
	"github.com/open-teleop/groundstation/pkg/state"
	"github.com/open-teleop/groundstation/pkg/udplink"
	"github.com/open-teleop/groundstation/pkg/zeromq"
	"github.com/open-teleop/groundstation/services"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configDir string
	var accessLog bool

	flagSet := pflag.NewFlagSet("groundstation", pflag.ContinueOnError)
	flagSet.StringVar(&configDir, "config-dir", "config", "directory containing "+config.BootstrapFileName)
	flagSet.BoolVar(&accessLog, "access-log", true, "log every HTTP request")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	bootstrapCfg, err := config.LoadBootstrapConfig(configDir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		log.Printf("No bootstrap config in '%s', using defaults", configDir)
		bootstrapCfg = config.DefaultBootstrapConfig()
	}

	// Get port from environment variable or use the configured one
	if env := os.Getenv("PORT"); env != "" {
		port, err := strconv.Atoi(env)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", env, err)
		}
		bootstrapCfg.Server.HTTPPort = port
	}

	logger, err := customlog.NewLogrusLogger(bootstrapCfg.Logging.Level, customlog.FileOptions{
		Dir:        bootstrapCfg.Logging.LogPath,
		MaxSizeMB:  bootstrapCfg.Logging.MaxSizeMB,
		MaxBackups: bootstrapCfg.Logging.MaxBackups,
		MaxAgeDays: bootstrapCfg.Logging.MaxAgeDays,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Infof("Ground station starting (bridge mode: %s)", bootstrapCfg.Bridge.Mode)

	store := state.NewStore(bootstrapCfg.ROS.DefaultURL, state.HM30Config{
		RemoteIP:   bootstrapCfg.HM30.RemoteIP,
		RemotePort: bootstrapCfg.HM30.RemotePort,
		LocalPort:  bootstrapCfg.HM30.LocalPort,
	}, logger)
	defer store.Close()

	settings, err := services.NewSettingsService(bootstrapCfg.SettingsPath(), config.DefaultSettings(bootstrapCfg), store, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize settings service: %w", err)
	}

	traffic := hm30.NewTraffic()
	b, closeBridge, err := newBridge(bootstrapCfg, traffic, logger)
	if err != nil {
		// The dashboard still runs; bridge-backed panels report unavailable.
		logger.Errorf("Bridge unavailable: %v", err)
	}
	defer closeBridge()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rosSession := ros.NewSession(store, ros.NewClientFactory(bootstrapCfg.ROS.DialTimeout(), logger), logger)
	defer rosSession.Close()
	nodeLister := ros.NewNodeLister(store, rosSession, bootstrapCfg.ROS.NodePollInterval(), logger)
	go nodeLister.Run(ctx)

	hm30Session := hm30.NewSession(store, b, hm30.Options{
		AutoRefreshInterval: bootstrapCfg.HM30.AutoRefreshInterval(),
		ReceiveTimeout:      bootstrapCfg.HM30.ReceiveTimeout(),
	}, logger)
	defer hm30Session.Close()

	deviceLister := devices.NewLister(store, b, bootstrapCfg.Serial.PollInterval(), logger)
	defer deviceLister.Close()

	view := mapview.New(store, mapview.Options{
		TilesAvailable: bootstrapCfg.Map.TilesAvailable,
		TileURL:        bootstrapCfg.Map.OnlineTileURL,
		Attribution:    bootstrapCfg.Map.Attribution,
		InitialZoom:    bootstrapCfg.Map.InitialZoom,
		FlyToZoom:      bootstrapCfg.Map.FlyToZoom,
	}, logger)
	view.Mount()
	defer view.Unmount()

	app := api.NewApp("Open-Teleop Ground Station", accessLog)
	api.RegisterRoutes(app, api.Deps{
		Store:    store,
		ROS:      rosSession,
		Nodes:    nodeLister,
		HM30:     hm30Session,
		Traffic:  traffic,
		Devices:  deviceLister,
		Map:      view,
		Settings: settings,
		Logger:   logger,
	})

	if err := rosSession.Connect(""); err != nil {
		logger.Warnf("Initial ROS connect failed: %v", err)
	}

	addr := fmt.Sprintf(":%d", bootstrapCfg.Server.HTTPPort)
	serveErr := make(chan error, 1)
	go func() {
		logger.Infof("Server starting on %s", addr)
		serveErr <- app.Listen(addr)
	}()

	// Set up graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		return fmt.Errorf("failed to start server: %w", err)
	}
	logger.Infof("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Infof("Server exited properly")
	return nil
}

// newBridge builds the bridge for the configured mode. The returned close
// func is always safe to call. On error the bridge is nil.
func newBridge(cfg *config.BootstrapConfig, traffic *hm30.Traffic, logger customlog.Logger) (bridge.Bridge, func(), error) {
	switch cfg.Bridge.Mode {
	case config.BridgeModeZeroMQ:
		client, err := zeromq.NewClient(cfg.Bridge.RequestAddress, cfg.Bridge.RequestTimeout(), logger)
		if err != nil {
			return nil, func() {}, err
		}
		closeClient := func() { _ = client.Close() }
		if cfg.Bridge.PublishAddress == "" {
			return client, closeClient, nil
		}

		listener, err := zeromq.NewFrameListener(traffic.Record, logger)
		if err != nil {
			logger.Warnf("Link traffic stats disabled: %v", err)
			return client, closeClient, nil
		}
		if err := listener.Start(cfg.Bridge.PublishAddress); err != nil {
			logger.Warnf("Link traffic stats disabled: %v", err)
			listener.Stop()
			return client, closeClient, nil
		}
		return client, func() {
			listener.Stop()
			closeClient()
		}, nil

	default:
		link := udplink.New(cfg.HM30.ConnectTimeout(), logger)
		local := bridge.NewLocal(link, serialdev.NewEnumerator(), logger)
		local.SetFrameObserver(traffic.Record)
		return local, func() { _ = link.Disconnect() }, nil
	}
}
