package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joeshaw/envdecode"
	"github.com/sirupsen/logrus"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/relabs-tech/pmpgw/core/config"
	"github.com/relabs-tech/pmpgw/core/gateway"
	"github.com/relabs-tech/pmpgw/core/middleware"
)

// shutdownTimeout bounds how long in-flight requests are given to drain on
// SIGINT/SIGTERM.
const shutdownTimeout = 30 * time.Second

// service holds process-wide settings sourced from the environment, kept
// separate from the YAML gateway configuration (which describes routes and
// clients, not where the process itself listens).
type service struct {
	ConfigPath string `env:"PMPGW_CONFIG,required" description:"path to the gateway YAML configuration"`
	LogLevel   string `env:"PMPGW_LOG_LEVEL,default=info" description:"logrus level: debug, info, warn, error"`
}

// liveHandler lets a hot-reloaded gateway replace the handler an already
// running *http.Server dispatches to, without restarting the listener.
type liveHandler struct {
	v atomic.Value // holds http.Handler
}

func (h *liveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.v.Load().(http.Handler).ServeHTTP(w, r)
}

func (h *liveHandler) store(next http.Handler) {
	h.v.Store(next)
}

// buildGateway realizes a Gateway and its full middleware chain from cfg.
// Called once at startup and again on every successful config reload.
func buildGateway(cfg *config.Config, log *logrus.Entry) (http.Handler, *gateway.Gateway, error) {
	router := mux.NewRouter()
	gw, err := gateway.New(&gateway.Builder{Config: cfg, Router: router, Log: log})
	if err != nil {
		return nil, nil, err
	}

	var handler http.Handler = router
	handler = middleware.Security(cfg.Server.Security, handler)
	handler = middleware.RateLimit(cfg.Server.RateLimit, handler)
	handler = middleware.AccessLog(cfg.Server.Logging, log, handler)
	handler = middleware.RequestID(handler)
	handler = middleware.CORS(cfg.Server.CORS, handler)
	return handler, gw, nil
}

func main() {
	svc := &service{}
	if err := envdecode.Decode(svc); err != nil {
		panic(err)
	}

	log := logrus.New()
	if level, err := logrus.ParseLevel(svc.LogLevel); err == nil {
		log.SetLevel(level)
	}
	entry := logrus.NewEntry(log)

	var live liveHandler
	var mu sync.Mutex
	var current *gateway.Gateway

	watcher, err := config.NewWatcher(svc.ConfigPath, entry, func(cfg *config.Config) {
		handler, gw, err := buildGateway(cfg, entry)
		if err != nil {
			entry.WithError(err).Error("config: reload produced an invalid gateway, keeping previous one serving")
			return
		}
		mu.Lock()
		stale := current
		current = gw
		mu.Unlock()
		live.store(handler)
		if stale != nil {
			stale.Close()
		}
	})
	if err != nil {
		entry.WithError(err).Fatal("cannot load configuration")
	}
	defer watcher.Close()

	handler, gw, err := buildGateway(watcher.Current(), entry)
	if err != nil {
		entry.WithError(err).Fatal("cannot build gateway")
	}
	current = gw
	live.store(handler)

	srv := &http.Server{
		Addr:    watcher.Current().Server.Listen,
		Handler: &live,
	}

	go func() {
		entry.WithField("addr", srv.Addr).Info("pmpgw listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			entry.WithError(err).Fatal("server exited unexpectedly")
		}
	}()

	shutdownOnSignal(entry, srv, func() {
		mu.Lock()
		defer mu.Unlock()
		if current != nil {
			current.Close()
		}
	})
}

// shutdownOnSignal blocks until SIGINT or SIGTERM is received, then
// gracefully drains srv. A second signal forces immediate exit.
func shutdownOnSignal(log *logrus.Entry, srv *http.Server, cleanup func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	log.WithField("signal", sig.String()).Info("shutting down gracefully")

	go func() {
		sig := <-sigCh
		log.WithField("signal", sig.String()).Warn("forced shutdown")
		os.Exit(1)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Shutdown(ctx); err != nil {
			log.WithError(err).Error("http server shutdown error")
		}
	}()
	wg.Wait()

	if cleanup != nil {
		cleanup()
	}

	if ctx.Err() == context.DeadlineExceeded {
		log.Warn("forced shutdown after timeout")
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
