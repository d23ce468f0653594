package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/and161185/s0-pulse-counter/internal/buildinfo"
	"github.com/and161185/s0-pulse-counter/internal/config"
	"github.com/and161185/s0-pulse-counter/internal/device"
	"github.com/and161185/s0-pulse-counter/internal/frame"
	"github.com/and161185/s0-pulse-counter/internal/ingest"
	"github.com/and161185/s0-pulse-counter/internal/metrics"
	"github.com/and161185/s0-pulse-counter/internal/query"
	"github.com/and161185/s0-pulse-counter/internal/server"
	"github.com/and161185/s0-pulse-counter/storage/inmemory"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = cfg.Logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		cfg.Logger.Errorw("s0counter stopped", "error", err)
		_ = cfg.Logger.Sync()
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := cfg.Logger
	buildinfo.LogBuildInfo(logger)
	logger.Infow("starting",
		"device", cfg.Device.Path,
		"baud", cfg.Device.BaudRate,
		"framing", fmt.Sprintf("%d%s%d", cfg.Device.DataBits, cfg.Device.Parity, cfg.Device.StopBits),
		"channels", cfg.Channels,
		"format", cfg.FrameFormat,
		"addr", cfg.Addr(),
		"reconnect", cfg.ReconnectDelay,
	)

	parser, err := frame.New(cfg.FrameFormat, cfg.Channels)
	if err != nil {
		return err
	}
	store := inmemory.NewCounterStore(cfg.Channels)
	m := metrics.New(store)

	open := cfg.Device.Opener()
	src, err := open()
	if err != nil {
		return err
	}

	var reopen device.Opener
	if cfg.ReconnectDelay > 0 {
		reopen = open
	}
	loop := ingest.NewLoop(src, ingest.Options{
		Parser:         parser,
		Store:          store,
		Logger:         logger,
		Recorder:       m,
		Reopen:         reopen,
		ReconnectDelay: cfg.ReconnectDelay,
	})
	srv := server.NewServer(query.NewService(store), loop.Status(), m.Handler(), cfg)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	loopErr := make(chan error, 1)
	srvErr := make(chan error, 1)
	go func() { loopErr <- loop.Run(ctx) }()
	go func() { srvErr <- srv.Run(ctx) }()

	// Whichever side ends first stops the other.
	var first error
	select {
	case first = <-loopErr:
		cancel()
		err = errors.Join(first, <-srvErr)
	case first = <-srvErr:
		cancel()
		err = errors.Join(first, <-loopErr)
	}
	if err == nil {
		logger.Info("shutdown complete")
	}
	return err
}
