package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"

	"github.com/openwcps/wcps-auth/internal/config"
	"github.com/openwcps/wcps-auth/internal/constants"
	"github.com/openwcps/wcps-auth/internal/db"
	"github.com/openwcps/wcps-auth/internal/gslistener"
	"github.com/openwcps/wcps-auth/internal/login"
	"github.com/openwcps/wcps-auth/internal/session"
)

const version = "0.1.0"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()
	if *showVersion {
		fmt.Println("wcps-auth " + version)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	slog.SetDefault(slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.TimeOnly,
	})))

	slog.Info("wcps auth server starting", "version", version)

	cfg := config.Load()
	slog.Info("config loaded", "bind", cfg.ServerIP, "database", cfg.DatabaseName)

	database, err := db.New(ctx, cfg.DSN())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()
	slog.Info("database connected")

	if err := db.RunMigrations(ctx, cfg.DSN()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database migrations applied")

	catalog := db.NewPostgresCatalog(database.Pool())

	servers, err := catalog.ListActiveServers(ctx)
	if err != nil {
		return fmt.Errorf("loading server catalog: %w", err)
	}
	slog.Info("server catalog loaded", "registered", len(servers))

	registry := session.NewRegistry()

	authServer := login.NewServer(
		fmt.Sprintf("%s:%d", cfg.ServerIP, constants.PortAuthClient),
		catalog,
		registry,
	)
	internalServer := gslistener.NewServer(
		fmt.Sprintf("%s:%d", cfg.ServerIP, constants.PortInternal),
		catalog,
		registry,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting auth server", "port", constants.PortAuthClient)
		if err := authServer.Run(gctx); err != nil {
			return fmt.Errorf("auth server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		slog.Info("starting internal server", "port", constants.PortInternal)
		if err := internalServer.Run(gctx); err != nil {
			return fmt.Errorf("internal server: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}
