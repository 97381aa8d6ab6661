package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"caseload-scheduler/internal/app"
	"caseload-scheduler/internal/config"
	appLog "caseload-scheduler/internal/log"
	"caseload-scheduler/internal/schedule"
	"caseload-scheduler/internal/server"
	"caseload-scheduler/internal/storage/memory"
	"caseload-scheduler/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to YAML config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		appLog.Error("server exited", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	level, err := appLog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	appLog.SetLevel(level)
	if level != appLog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	var store schedule.Store
	switch cfg.Store {
	case config.StoreMemory:
		appLog.Warn("using in-memory store, data is lost on exit")
		store = memory.New()
	default:
		pg, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		store = pg
	}

	if len(cfg.Auth.StaticTokens) == 0 && cfg.Auth.JWTHMACSecret == "" {
		appLog.Warn("no STATIC_TOKENS or JWT_HMAC_SECRET configured, API is unauthenticated")
	}

	appInstance := &app.App{
		Schedule: schedule.NewService(store,
			schedule.WithProdID(cfg.ProdID),
			schedule.WithMaxWindow(time.Duration(cfg.MaxWindowDays)*24*time.Hour),
			schedule.WithCompletionHook(app.NoteRequestHook()),
		),
	}

	appLog.Info("effective config",
		"listen", cfg.Listen,
		"store", cfg.Store,
		"log_level", cfg.LogLevel,
		"max_window_days", cfg.MaxWindowDays,
		"static_tokens", len(cfg.Auth.StaticTokens),
		"jwt", cfg.Auth.JWTHMACSecret != "",
	)

	return server.Run(ctx, cfg.Listen, appInstance.Router(cfg))
}
