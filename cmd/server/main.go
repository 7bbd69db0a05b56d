package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"credpool-go/internal/config"
	"credpool-go/internal/credential"
	"credpool-go/internal/events"
	"credpool-go/internal/httpapi"
	"credpool-go/internal/logging"

	log "github.com/sirupsen/logrus"
)

const (
	shutdownTimeout = 10 * time.Second
	shutdownWait    = 200 * time.Millisecond
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	if *debug {
		cfg.Debug = true
	}

	if err := logging.Setup(cfg); err != nil {
		log.WithError(err).Fatal("failed to configure logging")
	}
	log.Infof("starting credpool admin server (config: %s)", *configPath)

	hub := events.NewHub()
	if cfg.Debug {
		hub.Subscribe(events.TopicCredentialChanged, func(_ context.Context, evt events.Event) {
			log.WithField("topic", evt.Topic).Debugf("credential event: %v", evt.Payload)
		})
		hub.Subscribe(events.TopicCredentialsSynced, func(_ context.Context, evt events.Event) {
			log.WithField("topic", evt.Topic).Debugf("credential event: %v", evt.Payload)
		})
	}

	store := credential.NewStore(cfg.CredentialsPath, credential.FailurePolicyConfig{
		StreakThreshold:      cfg.FailureStreakThreshold,
		HardDisableThreshold: cfg.FailureHardDisableThreshold,
	})
	store.SetEventPublisher(hub)
	if err := store.Load(); err != nil {
		log.WithError(err).Fatal("failed to load credential pool")
	}

	stopWatch, err := store.Watch(context.Background())
	if err != nil {
		log.WithError(err).Warn("credential hot-reload watcher disabled")
	} else {
		defer stopWatch()
	}

	oidcClient := credential.NewOIDCClient(credential.DefaultOIDCConfig)
	refreshCoordinator := credential.NewRefreshCoordinator(store, oidcClient, time.Duration(cfg.RefreshAheadSeconds)*time.Second)

	selector := credential.NewSelector(store, credential.Policy(cfg.LoadBalancingMode), cfg.CloudPassCredentialID)

	admin := credential.NewAdmin(store, selector, refreshCoordinator)

	server := httpapi.NewServer(admin, cfg.AdminAPIKey, cfg.AdminBindAddr)
	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("admin http server stopped unexpectedly")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("admin http server shutdown did not complete cleanly")
	}
	time.Sleep(shutdownWait)
	log.Info("stopped")
}
