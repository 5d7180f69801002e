// server/main.go
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ViniZap4/tasks-server/auth"
	"github.com/ViniZap4/tasks-server/config"
	httphandlers "github.com/ViniZap4/tasks-server/http"
	"github.com/ViniZap4/tasks-server/store"
	"github.com/ViniZap4/tasks-server/ws"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default $TASKS_CONFIG or ./config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	setupLogging(cfg.Log)

	opts := cfg.StoreOptions()
	storeLog := log.Logger
	opts.Logger = &storeLog
	st, err := store.New(opts)
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}

	var authn *auth.Authenticator
	if cfg.Auth.Password != "" || cfg.Auth.PasswordHash != "" {
		authn, err = auth.New(cfg.Auth)
		if err != nil {
			log.Fatal().Err(err).Msg("init auth")
		}
	}

	hub := ws.NewHub(log.Logger)
	go hub.Run()

	server := httphandlers.NewServer(st, hub, authn, httphandlers.Options{
		CORSOrigins: cfg.Server.CORSOrigins,
		RequireAuth: cfg.Auth.Required,
	}, log.Logger)
	app := server.App()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		hub.Close()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("shutdown")
		}
	}()

	log.Info().
		Str("port", cfg.Server.Port).
		Str("data", st.Path()).
		Bool("auth", cfg.Auth.Required).
		Msg("server starting")
	if err := app.Listen(":" + cfg.Server.Port); err != nil {
		log.Fatal().Err(err).Msg("listen")
	}
}

func setupLogging(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}
