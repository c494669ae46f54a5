package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/text/language"

	"github.com/pefman/medal-dashboard/internal/api"
	"github.com/pefman/medal-dashboard/internal/config"
	"github.com/pefman/medal-dashboard/internal/web"
)

// Build metadata injected via -ldflags at build time
var (
	buildVersion = "dev"
	buildTime    = ""
)

func main() {
	cfg, err := config.Parse("dashboard", os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	lang, err := language.Parse(cfg.Lang)
	if err != nil {
		log.Printf("config: unknown language %q, using ja: %v", cfg.Lang, err)
		lang = language.Japanese
	}

	client := api.NewClient(cfg.APIBase, cfg.HealthBase, cfg.DataHosts...)
	srv, err := web.New(client, web.Options{
		Lang:         lang,
		PingInterval: cfg.PingInterval,
		Version:      buildVersion,
	})
	if err != nil {
		log.Fatalf("web: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("medal dashboard %s (%s) listening on %s (env=%s api=%s)", buildVersion, buildTime, httpSrv.Addr, cfg.Env, cfg.APIBase)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http: %v", err)
		}
	}()

	srv.Start(ctx)

	<-ctx.Done()
	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http: shutdown: %v", err)
	}
}
