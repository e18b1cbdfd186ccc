// Command mediabridge is the out-of-scope launcher: it loads the YAML
// configuration, constructs the registry (C4), starts one ingest worker
// (C3) per configured stream, and serves HTTP + WebSocket. Kept thin —
// flag/YAML parsing and wiring only — in the same spirit as the teacher's
// cmd/rtmp-server (flags.go + main.go split, log/slog based logging,
// signal-triggered graceful shutdown).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alxayo/go-rtmp/internal/config"
	"github.com/alxayo/go-rtmp/internal/filter"
	"github.com/alxayo/go-rtmp/internal/hooks"
	"github.com/alxayo/go-rtmp/internal/httpapi"
	"github.com/alxayo/go-rtmp/internal/hub"
	"github.com/alxayo/go-rtmp/internal/ingest"
	"github.com/alxayo/go-rtmp/internal/logger"
	"github.com/alxayo/go-rtmp/internal/media"
	"github.com/alxayo/go-rtmp/internal/source"
	"github.com/alxayo/go-rtmp/internal/wsapi"
)

func main() {
	cliCfg, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if cliCfg.showVersion {
		fmt.Println(version)
		return
	}

	logger.Init()
	cfg, err := config.Load(cliCfg.configPath)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := logger.SetLevel(cfg.Log.Level); err != nil {
		logger.Warn("invalid log level, using default", "level", cfg.Log.Level)
	}
	log := logger.Logger().With("component", "cli")

	h := hub.New(cfg.Server.Stream.SendQueueMaxSize)
	events := make(hooks.Sink, 256)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	workers := startWorkers(ctx, cfg.Streams, h, events)
	go logEvents(log, events)

	mux := http.NewServeMux()
	mux.Handle(cfg.Server.Stream.HTTPTarget, httpapi.StreamsHandler(h))
	mux.Handle(cfg.Server.Stream.WSTargetPrefix, wsapi.Handler(h, cfg.Server.Stream.WSTargetPrefix))
	if cfg.Server.HTTP.Enable {
		mux.Handle("/", httpapi.StaticFileHandler(cfg.Server.HTTP.DocRoot))
	}

	corsCfg := httpapi.CORSConfig{
		Enable:       cfg.Server.CORS.Enable,
		AllowOrigins: cfg.Server.CORS.AllowOrigins,
		AllowMethods: cfg.Server.CORS.AllowMethods,
		AllowHeaders: cfg.Server.CORS.AllowHeaders,
	}
	handler := httpapi.CORSMiddleware(corsCfg, mux)

	addr := fmt.Sprintf("%s:%d", cfg.Server.BindAddr, cfg.Server.Port)
	httpServer := &http.Server{Addr: addr, Handler: handler}

	go func() {
		log.Info("http server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "error", err)
		}
	}()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	cancel() // tell every worker's run loop to exit at its next tick

	done := make(chan struct{})
	go func() {
		for _, w := range workers {
			w.Stop()
		}
		httpServer.Shutdown(shutdownCtx)
		close(done)
	}()

	select {
	case <-done:
		log.Info("server stopped cleanly")
	case <-shutdownCtx.Done():
		log.Error("forced exit after timeout")
	}
}

func startWorkers(ctx context.Context, streams []config.StreamSpec, h *hub.Hub, events hooks.Sink) []*ingest.Worker {
	workers := make([]*ingest.Worker, 0, len(streams))
	for _, spec := range streams {
		spec := spec
		w := ingest.New(ingest.Config{
			StreamID:   spec.ID,
			SourceOpts: source.FromStreamSpec(spec),
			NewSource:  source.New,
			NewChain: func(sub *media.SubStream) (*filter.Chain, error) {
				return buildChain(ctx, spec.Filters, sub)
			},
			Publisher: h,
			Events:    events,
			LoopOnEOF: spec.LoopOnEOF,
		})
		workers = append(workers, w)
		go w.Start(ctx)
	}
	return workers
}

func logEvents(log *slog.Logger, events hooks.Sink) {
	for ev := range events {
		l := logger.WithWorker(log, ev.StreamID)
		switch ev.Type {
		case hooks.EventError:
			l.Error("ingest event", "type", string(ev.Type), "data", ev.Data)
		default:
			l.Debug("ingest event", "type", string(ev.Type))
		}
	}
}
