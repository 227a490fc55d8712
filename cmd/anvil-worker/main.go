package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/lumeworks/anvil/internal/config"
	"github.com/lumeworks/anvil/internal/util"
	"github.com/lumeworks/anvil/internal/worker"
)

func main() {
	configFile := flag.String("config", "/etc/anvil/anvil.yaml", "path to config file")
	app := flag.String("app", "", "application name")
	profile := flag.String("profile", "", "profile name")
	uuid := flag.String("uuid", "", "worker identity token (generated when empty)")
	flag.Parse()

	if *app == "" || *profile == "" {
		log.Fatal("both -app and -profile are required")
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}
	util.InitLogger()

	id := *uuid
	if id == "" {
		id = util.GenID()
	}

	if cfg.Paths.Logs != "" {
		if _, err := util.InitLoggerWithFile(cfg.Paths.Logs, id); err != nil {
			logrus.Warnf("File logging disabled: %v", err)
		}
		defer util.CloseLogFile()
	}

	w, err := worker.New(cfg, worker.Options{App: *app, Profile: *profile, UUID: id})
	if err != nil {
		logrus.Fatalf("Unable to start the worker: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logrus.Info("Shutting down...")
		cancel()
	}()

	// Disownment and cancellation both count as a completed run; the engine
	// restarts workers, the worker never retries.
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logrus.Errorf("Worker stopped: %v", err)
	}

	logrus.Info("Worker stopped")
}
