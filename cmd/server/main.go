package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"neuromail-go/internal/config"
	"neuromail-go/internal/constants"
	"neuromail-go/internal/credential"
	"neuromail-go/internal/events"
	"neuromail-go/internal/feed"
	"neuromail-go/internal/logging"
	"neuromail-go/internal/mail"
	"neuromail-go/internal/mailbox"
	mw "neuromail-go/internal/middleware"
	"neuromail-go/internal/monitoring"
	"neuromail-go/internal/monitoring/tracing"
	srv "neuromail-go/internal/server"
	"neuromail-go/internal/settings"
	"neuromail-go/internal/upstream"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	envFile := flag.String("env-file", ".env", "Optional dotenv file loaded before the configuration")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.WithError(err).Warn("failed to load env file")
	}

	cm, err := config.NewConfigManager(*configPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	defer cm.Close()

	cfg := cm.Get()
	if *debug {
		cfg.Server.Debug = true
	}
	if err := logging.Setup(cfg); err != nil {
		log.WithError(err).Fatal("failed to configure logging")
	}
	defer logging.Close()

	result := cfg.Validate()
	for _, w := range result.Warnings {
		log.WithField("field", w.Field).Warn(w.Message)
	}
	if !result.Valid {
		log.WithError(result.Err()).Fatal("invalid configuration")
	}
	log.WithFields(log.Fields{
		"version": constants.GetFullVersion(),
		"config":  cm.Path(),
	}).Info("Starting NeuroMail-Go")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	traceShutdown, err := tracing.Init(ctx, tracing.Options{Endpoint: cfg.Tracing.Endpoint, Insecure: cfg.Tracing.Insecure})
	if err != nil {
		log.WithError(err).Warn("failed to initialize tracing")
	}
	if traceShutdown != nil {
		defer func() {
			if err := traceShutdown(context.Background()); err != nil {
				log.WithError(err).Warn("failed to shutdown tracing")
			}
		}()
	}

	hub := events.NewHub()
	cm.SetEventPublisher(hub)
	if cfg.Server.Debug {
		hub.Subscribe(events.TopicAll, func(_ context.Context, evt events.Event) {
			log.WithField("topic", evt.Topic).Debugf("event: %v", evt.Payload)
		})
	}

	backend, err := openStorage(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to open storage")
	}
	defer func() { _ = backend.Close() }()

	pool := credential.NewPool(cfg.Upstream.PublicKeys, credential.PoolOptions{
		MaxUsage:  cfg.Pool.MaxUsage,
		MaxErrors: cfg.Pool.MaxErrors,
		Publisher: hub,
	})
	prometheus.MustRegister(monitoring.NewPoolCollector(pool))
	log.WithField("keys", pool.Size()).Info("credential pool ready")

	client := upstream.NewClient(pool, upstreamOptions(cfg))
	defaults := settingsDefaults(cfg)
	settingsMgr, err := settings.NewManager(ctx, backend, settings.Options{
		Defaults:  &defaults,
		Prober:    client,
		Publisher: hub,
	})
	if err != nil {
		log.WithError(err).Fatal("failed to load API settings")
	}
	settings.Bind(settingsMgr, client)
	cm.OnChange(reloadHandler(cfg, pool))

	svc := mailbox.New(mail.New(client, cfg.Mailbox.InboxLifetime()), mailboxOptions(cfg, hub))
	defer svc.Close()

	broadcaster := feed.NewBroadcaster(feed.Options{})
	detachFeed := broadcaster.Attach(hub, events.TopicAll)
	defer detachFeed()
	broadcaster.Start()
	defer broadcaster.Stop()

	if cfg.Mailbox.Notifications {
		detachNotifier := feed.NewDesktopNotifier(nil).Attach(hub)
		defer detachNotifier()
		log.Info("desktop notifications enabled")
	}

	mw.SafeGoWithContext("mailbox-runner", func() {
		if err := svc.Run(ctx); err != nil {
			log.WithError(err).Error("mailbox background tasks stopped")
		}
	})

	engine := srv.BuildEngine(cfg, srv.Dependencies{
		Pool:      pool,
		Settings:  settingsMgr,
		Mailbox:   svc,
		Feed:      broadcaster,
		Storage:   backend,
		GetConfig: cm.Get,
	})
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("NeuroMail API listening on :%d%s", cfg.Server.Port, cfg.Server.BasePath)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("http server: %v", err)
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
		log.Info("Shutdown signal received")
	case <-ctx.Done():
	}
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), constants.ServerShutdownTimeout)
	defer cancelShutdown()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown incomplete")
	}
	time.Sleep(constants.ServerGracefulWait)
	log.Info("Server stopped")
}
