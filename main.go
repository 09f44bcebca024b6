package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"subway-cloud/internal/audit"
	"subway-cloud/internal/auth"
	"subway-cloud/internal/config"
	"subway-cloud/internal/eventing"
	eventingrepo "subway-cloud/internal/eventing/infrastructure/postgres"
	linesapp "subway-cloud/internal/lines/application"
	"subway-cloud/internal/lines/application/events"
	lines "subway-cloud/internal/lines/domain"
	linesmemory "subway-cloud/internal/lines/infrastructure/memory"
	linesrepo "subway-cloud/internal/lines/infrastructure/postgres"
	linesinterfaces "subway-cloud/internal/lines/interfaces"
	lineshttp "subway-cloud/internal/lines/interfaces/http"
	"subway-cloud/internal/locking"
	lockingpg "subway-cloud/internal/locking/postgres"
	"subway-cloud/internal/observability/metrics"
	"subway-cloud/internal/seed"
	stationsapp "subway-cloud/internal/stations/application"
	stations "subway-cloud/internal/stations/domain"
	stationsmemory "subway-cloud/internal/stations/infrastructure/memory"
	stationsrepo "subway-cloud/internal/stations/infrastructure/postgres"
	stationshttp "subway-cloud/internal/stations/interfaces/http"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		db          *sql.DB
		stationRepo stations.Repository
		lineRepo    lines.Repository
		auditLogger audit.Logger
		outboxStore *eventingrepo.OutboxStore
		processed   eventing.ProcessedStore
	)
	if cfg.UsePostgres() {
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("db open error: %v", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			logger.Fatalf("db ping error: %v", err)
		}
		outboxStore = eventingrepo.NewOutboxStore(db)
		stationRepo = stationsrepo.NewStationRepository(db)
		lineRepo = linesrepo.NewLineRepository(db, linesrepo.WithOutbox(outboxStore))
		auditRepo, err := audit.NewRepository(db)
		if err != nil {
			logger.Fatalf("audit repository error: %v", err)
		}
		auditLogger = auditRepo
		processed = eventingrepo.NewProcessedStore(db)
		logger.Printf("storage: postgres")
	} else {
		stationRepo = stationsmemory.NewStationRepository()
		lineRepo = linesmemory.NewLineRepository()
		auditLogger = audit.NewStdLogger(logger)
		processed = eventing.NewMemoryProcessedStore()
		logger.Printf("storage: memory")
	}
	metrics.Init(db, logger)

	bus := eventing.NewInMemoryBus()
	registry := eventing.NewRegistry()
	registry.Register(events.All()...)
	linesinterfaces.NewLoggingSubscriber(logger).Register(bus, processed)

	lineOpts := []linesapp.Option{}
	var dispatcher *eventing.Dispatcher
	if outboxStore != nil {
		dispatcher, err = eventing.NewDispatcher(bus, outboxStore, registry, eventing.WithDispatchLogger(logger))
		if err != nil {
			logger.Fatalf("dispatcher error: %v", err)
		}
		lineOpts = append(lineOpts, linesapp.WithOutbox(dispatcher))
	} else {
		publisher, err := eventing.NewPublisher(bus)
		if err != nil {
			logger.Fatalf("publisher error: %v", err)
		}
		lineOpts = append(lineOpts, linesapp.WithPublisher(publisher))
	}

	var locker locking.Locker = locking.NewKeyedLocker()
	if cfg.UseAdvisoryLocks() {
		advisory, err := lockingpg.NewAdvisoryLocker(db)
		if err != nil {
			logger.Fatalf("advisory locker error: %v", err)
		}
		locker = advisory
		logger.Printf("locks: postgres advisory")
	}
	lineOpts = append(lineOpts, linesapp.WithLocker(locker))

	lineService, err := linesapp.NewService(lineRepo, stationRepo, lineOpts...)
	if err != nil {
		logger.Fatalf("line service error: %v", err)
	}
	stationService, err := stationsapp.NewService(stationRepo, lineRepo, stationsapp.WithLocker(locker))
	if err != nil {
		logger.Fatalf("station service error: %v", err)
	}

	if cfg.SeedFile != "" {
		file, err := seed.Load(cfg.SeedFile)
		if err != nil {
			logger.Fatalf("seed error: %v", err)
		}
		if err := seed.Apply(ctx, file, stationRepo, lineService, logger); err != nil {
			logger.Fatalf("seed error: %v", err)
		}
	}

	lineHandler, err := lineshttp.NewHandler(lineService, auditLogger, logger)
	if err != nil {
		logger.Fatalf("line handler error: %v", err)
	}
	stationHandler, err := stationshttp.NewHandler(stationService, auditLogger, logger)
	if err != nil {
		logger.Fatalf("station handler error: %v", err)
	}

	mux := http.NewServeMux()
	lineHandler.Register(mux)
	stationHandler.Register(mux)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				http.Error(w, "db unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	var handler http.Handler = mux
	if cfg.AuthDisabled {
		logger.Printf("auth: disabled")
	} else {
		var verifierOpts []auth.VerifierOption
		if cfg.JWTIssuer != "" {
			verifierOpts = append(verifierOpts, auth.WithIssuer(cfg.JWTIssuer))
		}
		verifier, err := auth.NewVerifier([]byte(cfg.JWTSecret), verifierOpts...)
		if err != nil {
			logger.Fatalf("auth verifier error: %v", err)
		}
		middleware, err := auth.NewMiddleware(verifier, auth.NewPolicy("/healthz", "/metrics"))
		if err != nil {
			logger.Fatalf("auth middleware error: %v", err)
		}
		handler = middleware.Wrap(handler)
	}
	handler = loggingMiddleware(handler, logger)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	group, groupCtx := errgroup.WithContext(ctx)
	if dispatcher != nil && cfg.DispatchInterval > 0 {
		group.Go(func() error {
			runDispatcher(groupCtx, dispatcher, cfg.DispatchInterval, logger)
			return nil
		})
	}
	group.Go(func() error {
		logger.Printf("http listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Fatalf("http server error: %v", err)
	}
}

// runDispatcher delivers outbox records that are due, including retries.
func runDispatcher(ctx context.Context, dispatcher *eventing.Dispatcher, interval time.Duration, logger *log.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := dispatcher.Dispatch(ctx, 100); err != nil && ctx.Err() == nil {
				logger.Printf("outbox dispatch error: %v", err)
			}
		}
	}
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		metrics.IncHTTPRequest(r.Method, resp.status)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
