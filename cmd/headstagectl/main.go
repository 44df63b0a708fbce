// headstagectl opens the control link, brings up every configured device
// and keeps their parameter sessions alive until interrupted.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"headstage-go/bus"
	"headstage-go/drivers/miniscope"
	"headstage-go/link"
	"headstage-go/services/headstage"
	"headstage-go/services/heartbeat"
	"headstage-go/types"
)

func main() {
	configPath := flag.String("config", "headstage.yaml", "path to the service configuration")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(logger, *configPath); err != nil {
		logger.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, configPath string) error {
	cfg, err := headstage.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if len(cfg.Devices) == 0 {
		logger.Warn("no devices configured", "config", configPath)
	}

	transport, err := link.OpenSerial(cfg.Serial.Port, cfg.Serial.Baud)
	if err != nil {
		return err
	}
	defer transport.Close()
	logger.Info("control link open", "port", cfg.Serial.Port, "baud", cfg.Serial.Baud)

	registry := headstage.NewRegistry(transport)
	for _, d := range cfg.Devices {
		info := types.DeviceInfo{Kind: d.Kind, Address: d.Address}
		if err := registry.Register(d.Name, info); err != nil {
			return err
		}
	}

	// Queue depth bounds how many pending updates a slow device can lag
	// before the oldest is dropped; trigger edges are not recoverable.
	b := bus.NewBus(256)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hb := &heartbeat.Service{Interval: time.Second, Logger: logger}
	hb.Start(ctx, b.NewConnection("heartbeat"))

	var sessions []*headstage.Session
	defer func() {
		for i := len(sessions) - 1; i >= 0; i-- {
			if err := sessions[i].Close(); err != nil {
				logger.Warn("session close", "err", err)
			}
		}
	}()

	for _, d := range cfg.Devices {
		opts := headstage.Options{
			Device:             d.Name,
			SkipInitialization: d.SkipInitialization,
			Stim:               d.Stim,
			Miniscope:          d.Miniscope,
			Logger:             logger.With("device", d.Name),
		}
		if d.SettleDelay > 0 {
			opts.MiniscopeConfig = miniscope.Config{SettleDelay: d.SettleDelay}
		}

		start := time.Now()
		s, err := headstage.Open(ctx, registry, b, opts)
		if err != nil {
			logger.Error("bring-up failed", "device", d.Name, "err", err)
			return err
		}
		sessions = append(sessions, s)
		logger.Info("device up", "device", d.Name, "kind", string(d.Kind),
			"took", time.Since(start).Round(time.Millisecond))
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	logger.Info("running", "devices", len(sessions))
	<-sig
	logger.Info("shutting down")
	return nil
}
