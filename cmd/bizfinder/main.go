package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joelkehle/bizfinder/internal/config"
	"github.com/joelkehle/bizfinder/internal/export"
	"github.com/joelkehle/bizfinder/internal/httpapi"
	"github.com/joelkehle/bizfinder/internal/lookup"
	"github.com/joelkehle/bizfinder/internal/telemetry"
)

func main() {
	cfg := config.FromEnv()
	var (
		addr      = flag.String("addr", "", "Listen address (default :$PORT or :8080)")
		storeKind = flag.String("store", cfg.Store, "State store: memory, file or sqlite")
		stateFile = flag.String("state-file", cfg.StateFile, "JSON state file for -store=file")
		dbPath    = flag.String("db", cfg.DBPath, "SQLite database for -store=sqlite (overrides DB_PATH)")
		provider  = flag.String("provider", cfg.Provider, "LLM provider: gemini or anthropic")
		webDir    = flag.String("web-dir", cfg.WebDir, "Directory with the web UI and report style.css")
	)
	flag.Parse()
	cfg.Store, cfg.StateFile, cfg.DBPath, cfg.Provider, cfg.WebDir = *storeKind, *stateFile, *dbPath, *provider, *webDir

	listen := *addr
	if listen == "" {
		listen = ":8080"
		if port := os.Getenv("PORT"); port != "" {
			listen = ":" + port
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, "bizfinder")
	if err != nil {
		log.Fatalf("tracing setup: %v", err)
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Printf("tracing shutdown: %v", err)
		}
	}()

	st, closer, err := cfg.OpenStore()
	if err != nil {
		log.Fatalf("failed to open %s store: %v", cfg.Store, err)
	}
	defer closer.Close()

	gen, err := cfg.NewGenerator(ctx)
	if err != nil {
		log.Fatal(err)
	}
	svc := lookup.NewService(gen, lookup.Config{DescriptionLanguage: cfg.DescriptionLanguage})
	ctrl, err := cfg.NewController(svc, st)
	if err != nil {
		log.Fatal(err)
	}

	handler := httpapi.NewServer(httpapi.Config{
		Sessions:    ctrl,
		SubAreas:    svc,
		PDFRenderer: export.NewChromiumPDFRenderer(cfg.WebDir),
		WebDir:      cfg.WebDir,
		Model:       svc.ModelName(),
	})

	srv := &http.Server{Addr: listen, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer scancel()
		_ = srv.Shutdown(sctx)
	}()

	log.Printf("bizfinder listening on %s (provider=%s, store=%s)", listen, cfg.Provider, cfg.Store)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
