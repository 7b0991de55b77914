package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/varsilias/mpt-chat/internal/api"
	"github.com/varsilias/mpt-chat/internal/buildinfo"
	"github.com/varsilias/mpt-chat/internal/chat"
	"github.com/varsilias/mpt-chat/internal/config"
	"github.com/varsilias/mpt-chat/internal/inference"
	"github.com/varsilias/mpt-chat/internal/logging"
	"github.com/varsilias/mpt-chat/internal/middleware"
	"github.com/varsilias/mpt-chat/internal/session"
	"github.com/varsilias/mpt-chat/internal/ui"
	"github.com/varsilias/mpt-chat/web"
)

func main() {
	// a missing .env is fine; the process environment still applies
	_ = godotenv.Load()

	cfgPath := flag.String("config", os.Getenv("CONFIG_FILE"), "optional TOML config file")
	addr := flag.String("addr", "", "HTTP listen port (overrides ADDR)")
	level := flag.String("log-level", "", "log level: debug|info|warn|error")
	json := flag.Bool("log-json", false, "log as JSON")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logging.New("error", false).Error("startup configuration", "err", err)
		os.Exit(1)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = *addr
		case "log-level":
			cfg.LogLevel = *level
		case "log-json":
			cfg.LogJSON = *json
		}
	})

	logger := logging.New(cfg.LogLevel, cfg.LogJSON)
	logger.Info("build", "version", buildinfo.Version, "commit", buildinfo.Commit, "built_at", buildinfo.BuiltAt)
	logger.Info("chat server is listening", "port", cfg.Addr, "endpoint", cfg.EndpointURL,
		"max_concurrent", cfg.MaxConcurrent, "max_queue", cfg.MaxQueue)

	llm := inference.NewClient(cfg, logger)
	sessionStore := session.NewMemoryStore()
	chatCtrl := chat.NewController(logger, llm, sessionStore, chat.NewGate(cfg.MaxConcurrent, cfg.MaxQueue))

	uih, err := ui.New(logger, chatCtrl, sessionStore)
	if err != nil {
		logger.Error("ui init", "err", err)
		os.Exit(1)
	}
	h := api.NewHandlers(logger, chatCtrl)

	mux := chi.NewRouter()
	mux.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(web.Static()))))
	ui.RegisterRoutes(mux, uih)
	api.RegisterRoutes(mux, h, cfg.Origins())

	var handler http.Handler = mux
	handler = middleware.Recoverer(logger)(handler)
	handler = middleware.AccessLog(logger)(handler)
	handler = middleware.VersionHeader()(handler)
	handler = middleware.RequestID()(handler)

	server := http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Addr),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		// two inference attempts plus the pause between them
		WriteTimeout: 2*cfg.Timeout + cfg.RetryDelay + 15*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	errChan := make(chan error, 1)
	go func() { errChan <- server.ListenAndServe() }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	case sig := <-sigChan:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	} else {
		logger.Info("server stopped")
	}
}
