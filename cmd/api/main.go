package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"fleetads/internal/api"
	"fleetads/internal/config"
	"fleetads/internal/store"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}

	srv, err := api.NewServer(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to init server")
	}

	if cfg.SeedFile != "" {
		n, err := store.SeedFromFile(ctx, srv.Store, cfg.SeedFile)
		if err != nil {
			log.WithError(err).WithField("file", cfg.SeedFile).Fatal("seed failed")
		}
		log.WithFields(logrus.Fields{"file": cfg.SeedFile, "records": n}).Info("seeded store")
	}

	srv.Sched.Start()

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api.Instrument(log, srv.Routes()),
		ReadHeaderTimeout: time.Duration(cfg.Server.ReadHeaderTimeout) * time.Second,
	}

	go func() {
		log.WithField("addr", httpSrv.Addr).Info("API listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	srv.Close(shutdownCtx)
}
