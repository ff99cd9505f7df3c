// Command avatar runs the control core of one embodied agent.
//
//	avatar --config avatar.yaml --set agent.pet_id=7
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jllopis/avatar/pkg/config"
	"github.com/jllopis/avatar/pkg/controller"
	"github.com/jllopis/avatar/pkg/core"
	"github.com/jllopis/avatar/pkg/resilience"
	"github.com/jllopis/avatar/pkg/runtime"
	"github.com/jllopis/avatar/pkg/telemetry"
	"github.com/jllopis/avatar/pkg/transport"
)

var version = "dev"

const (
	shutdownTimeout = 10 * time.Second
	// healthReportCycles is how often, in cycles, the gRPC health status
	// is refreshed.
	healthReportCycles = 10
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.LoadWithCLI(args)
	if err != nil {
		return err
	}
	logger := telemetry.ConfigureSlog(os.Stdout, cfg.Log.Level, cfg.Log.Format, cfg.Agent.ID)

	shutdownTelemetry, err := telemetry.InitWithConfig("avatar", version, telemetry.Config{
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			logger.Warn("telemetry.shutdown.error", slog.String("error", err.Error()))
		}
	}()

	link, err := transport.Dial(transport.LinkConfig{
		ListenAddr: cfg.Transport.ListenAddr,
		RouterAddr: cfg.Transport.RouterAddr,
	}, telemetry.Component(logger, "transport"),
		transport.WithBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "router"})),
	)
	if err != nil {
		return err
	}
	defer link.Close()

	ctrl, err := controller.New(cfg, link, controller.WithLogger(logger))
	if err != nil {
		return err
	}
	defer ctrl.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ctrl.Start(ctx); err != nil {
		return err
	}

	health := core.NewHealthRegistry()
	health.Register("controller", ctrl)
	health.Register("transport", link)
	loop := runtime.New(ctrl, link.Inbound(),
		runtime.WithCyclePeriod(cfg.Runtime.CyclePeriod),
		runtime.WithHealth(health),
		runtime.WithHealthReport(healthReportCycles, link.ReportHealth),
		runtime.WithLogger(telemetry.Component(logger, "runtime")),
	)

	err = loop.Run(ctx)
	if errors.Is(err, context.Canceled) {
		// Interrupted: save the agent before exiting.
		logger.Info("avatar.signal", slog.String("state", ctrl.State().String()))
		if ctrl.State() != controller.StateRunning {
			return nil
		}
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return ctrl.Shutdown(sctx)
	}
	return err
}
