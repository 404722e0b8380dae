// Command hm30-bridge serves serial enumeration and the HM30 UDP link to a
// ground station running in zeromq bridge mode.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/open-teleop/groundstation/pkg/bridge"
	customlog "github.com/open-teleop/groundstation/pkg/log"
	"github.com/open-teleop/groundstation/pkg/serialdev"
	"github.com/open-teleop/groundstation/pkg/udplink"
	"github.com/open-teleop/groundstation/pkg/zeromq"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var requestAddr, publishAddr, logLevel, logDir string
	var connectTimeout, callTimeout time.Duration

	flagSet := pflag.NewFlagSet("hm30-bridge", pflag.ContinueOnError)
	flagSet.StringVar(&requestAddr, "request-address", "tcp://127.0.0.1:5560", "REP endpoint for bridge requests")
	flagSet.StringVar(&publishAddr, "publish-address", "tcp://127.0.0.1:5561", "PUB endpoint for link frames (empty disables)")
	flagSet.StringVar(&logLevel, "log-level", "info", "log level")
	flagSet.StringVar(&logDir, "log-dir", "", "directory for the rotated log file (empty logs to stdout only)")
	flagSet.DurationVar(&connectTimeout, "connect-timeout", 5*time.Second, "UDP link connect timeout")
	flagSet.DurationVar(&callTimeout, "call-timeout", 10*time.Second, "upper bound on one bridge call")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	logger, err := customlog.NewLogrusLogger(logLevel, customlog.FileOptions{
		Dir:        logDir,
		MaxSizeMB:  10,
		MaxBackups: 3,
		MaxAgeDays: 28,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	service, err := zeromq.NewZeroMQService(zeromq.ServiceOptions{
		RequestAddress: requestAddr,
		PublishAddress: publishAddr,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create ZeroMQ service: %w", err)
	}

	link := udplink.New(connectTimeout, logger)
	defer func() { _ = link.Disconnect() }()

	local := bridge.NewLocal(link, serialdev.NewEnumerator(), logger)
	if publishAddr != "" {
		local.SetFrameObserver(zeromq.NewFramePublisher(service, logger).Observe)
	}

	zeromq.RegisterBridgeHandlers(service, zeromq.NewBridgeHandler(local, callTimeout, logger))
	if err := service.Start(); err != nil {
		service.Stop()
		return fmt.Errorf("failed to start ZeroMQ service: %w", err)
	}
	logger.Infof("HM30 bridge serving requests on %s", service.RequestEndpoint())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Infof("Shutting down HM30 bridge...")
	service.Stop()
	return nil
}
