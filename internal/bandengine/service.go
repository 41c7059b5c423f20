package bandengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"bollinger-service/config"
	"bollinger-service/internal/gateway"
	"bollinger-service/internal/metrics"
	"bollinger-service/internal/model"
	"bollinger-service/internal/registry"
	"bollinger-service/internal/store"
	redisstore "bollinger-service/internal/store/redis"
	sqlitestore "bollinger-service/internal/store/sqlite"
)

// Service is the top-level orchestrator for the band engine.
// It wires all dependencies, manages lifecycle, and coordinates goroutines.
type Service struct {
	cfg *config.Config

	registry *registry.Registry
	settings *SettingsStore
	engine   *Engine
	hub      *gateway.Hub

	prom    *metrics.Metrics
	promReg *prometheus.Registry
	health  *metrics.HealthStatus

	rdb         *goredis.Client // nil when Redis was unreachable at start-up
	redisReader *redisstore.Reader
	redisWriter *redisstore.Writer
	sqlWriter   *sqlitestore.Writer
	sqlReader   *sqlitestore.Reader

	handler    http.Handler
	httpSrv    *http.Server
	metricsSrv *metrics.Server
	closeOnce  sync.Once
}

// New connects the stores and builds every component. Either store may
// be unavailable; New fails only when neither is.
func New(cfg *config.Config) (*Service, error) {
	svc := &Service{
		cfg:     cfg,
		promReg: prometheus.NewRegistry(),
		health:  metrics.NewHealthStatus(),
	}
	svc.promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	svc.prom = metrics.NewMetrics(svc.promReg)

	defaults := model.DefaultBollingerOptions()
	defaults.Inputs = cfg.Bollinger.Normalize()
	if err := defaults.Inputs.Validate(); err != nil {
		return nil, fmt.Errorf("default bollinger inputs: %w", err)
	}

	svc.registry = registry.New()
	if err := registry.RegisterBuiltins(svc.registry, defaults); err != nil {
		return nil, err
	}
	svc.settings = NewSettingsStore(defaults)

	svc.connectRedis()
	if err := svc.openSQLite(); err != nil {
		log.Printf("[bandengine] WARNING: sqlite init failed: %v (continuing without SQLite)", err)
	}

	var readers []store.NamedReader
	if svc.redisReader != nil {
		readers = append(readers, store.NamedReader{Name: "redis", Reader: svc.redisReader})
	}
	if svc.sqlReader != nil {
		readers = append(readers, store.NamedReader{Name: "sqlite", Reader: svc.sqlReader})
	}
	if len(readers) == 0 {
		return nil, errors.New("no candle store available (redis and sqlite both failed)")
	}
	fallback := store.NewFallbackReader(readers...)
	fallback.OnRead = func(source string, n int) {
		svc.prom.CandlesRead.WithLabelValues(source).Add(float64(n))
	}

	var publisher model.BandPublisher
	if cfg.PublishBands && svc.redisWriter != nil {
		publisher = svc.redisWriter
	}
	engine, err := NewEngine(svc.registry, fallback, publisher, svc.prom, cfg.CandleLimit)
	if err != nil {
		svc.Close()
		return nil, err
	}
	svc.engine = engine

	svc.hub = gateway.NewHub(svc.engine, svc.settings, svc.prom, cfg.CandleLimit)
	svc.settings.OnChange(svc.hub.OnSettingsChange)

	deps := gateway.Deps{
		Hub:      svc.hub,
		Bands:    svc.engine,
		Settings: svc.settings,
		Registry: svc.registry,
		Health:   svc.health,
		Gatherer: svc.promReg,
		Metrics:  svc.prom,
		MaxLimit: cfg.CandleLimit,
	}
	if svc.sqlReader != nil {
		deps.Series = svc.sqlReader
	}
	if svc.redisWriter != nil {
		deps.Announcer = svc.redisWriter
	}
	mux := http.NewServeMux()
	gateway.RegisterRoutes(mux, deps)
	svc.handler = mux

	svc.httpSrv = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	svc.metricsSrv = metrics.NewServer(cfg.MetricsAddr, svc.health, svc.promReg)

	log.Printf("[bandengine] candle sources: %v, publish bands: %v", fallback.Sources(), publisher != nil)
	return svc, nil
}

func (svc *Service) connectRedis() {
	breaker := redisstore.NewBreaker(5, 10*time.Second)
	breaker.OnChange = func(from, to redisstore.BreakerState) {
		log.Printf("[bandengine] redis breaker %s -> %s", from, to)
		svc.prom.RedisBreakerState.Set(float64(to))
		if to == redisstore.BreakerOpen {
			svc.prom.RedisBreakerTrips.Inc()
		}
	}

	rdb, err := redisstore.Dial(redisstore.Config{
		Addr:     svc.cfg.RedisAddr,
		Password: svc.cfg.RedisPassword,
		DB:       svc.cfg.RedisDB,
	})
	if err != nil {
		log.Printf("[bandengine] WARNING: %v (continuing without Redis)", err)
		return
	}
	svc.rdb = rdb
	svc.redisReader = redisstore.NewReader(rdb, breaker)
	svc.redisWriter = redisstore.NewWriter(rdb, breaker)
}

func (svc *Service) openSQLite() error {
	if dir := filepath.Dir(svc.cfg.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: svc.cfg.SQLitePath})
	if err != nil {
		return err
	}
	svc.sqlWriter = w
	svc.sqlReader = sqlitestore.NewReaderDB(w.DB())
	return nil
}

// Handler returns the HTTP routes served on HTTPAddr.
func (svc *Service) Handler() http.Handler { return svc.handler }

// Registry returns the indicator registry filled at start-up.
func (svc *Service) Registry() *registry.Registry { return svc.registry }

// Settings returns the shared settings store.
func (svc *Service) Settings() *SettingsStore { return svc.settings }

// Compute loads candles for key and returns its bands.
func (svc *Service) Compute(ctx context.Context, key model.SeriesKey, p model.BollingerParams, limit int) ([]model.BandPoint, error) {
	return svc.engine.Compute(ctx, key, p, limit)
}

// Run starts all subsystems and blocks until ctx is cancelled or one of
// the servers fails.
func (svc *Service) Run(ctx context.Context) error {
	log.Println("[bandengine] starting Bollinger band engine...")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("[bandengine] http listening on %s", svc.cfg.HTTPAddr)
		if err := svc.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := svc.metricsSrv.ListenAndServe(); err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		var sqlDB *sql.DB
		if svc.sqlReader != nil {
			sqlDB = svc.sqlReader.DB().DB
		}
		interval := time.Duration(svc.cfg.LivenessIntervalS) * time.Second
		if interval <= 0 {
			interval = 15 * time.Second
		}
		svc.health.RunLivenessChecker(ctx, svc.rdb, sqlDB, interval)
		return nil
	})

	if svc.redisReader != nil {
		g.Go(func() error {
			if err := svc.redisReader.WatchSettings(ctx, svc.applyRemoteSettings); err != nil {
				log.Printf("[bandengine] WARNING: settings subscriber stopped: %v", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		svc.shutdown()
		return nil
	})

	log.Println("[bandengine] all systems running. Press Ctrl+C to stop.")
	return g.Wait()
}

// applyRemoteSettings stores options pushed by another instance. Echoes
// of our own broadcasts are ignored.
func (svc *Service) applyRemoteSettings(opts model.BollingerOptions) {
	if opts == svc.settings.Get() {
		return
	}
	if err := svc.settings.Set(opts); err != nil {
		log.Printf("[bandengine] rejected remote settings: %v", err)
		return
	}
	svc.prom.SettingsChanges.WithLabelValues("redis").Inc()
	log.Printf("[bandengine] settings updated from redis: length=%d mult=%g offset=%d",
		opts.Inputs.Length, opts.Inputs.StdDevMultiplier, opts.Inputs.Offset)
}

func (svc *Service) shutdown() {
	log.Println("[bandengine] shutdown signal received...")

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := svc.httpSrv.Shutdown(shutCtx); err != nil {
		log.Printf("[bandengine] http shutdown: %v", err)
	}
	if err := svc.metricsSrv.Shutdown(shutCtx); err != nil {
		log.Printf("[bandengine] metrics shutdown: %v", err)
	}
	svc.Close()

	log.Println("[bandengine] shutdown complete.")
}

// Close releases the store connections. Run calls it on shutdown.
func (svc *Service) Close() {
	svc.closeOnce.Do(func() {
		if svc.sqlWriter != nil {
			svc.sqlWriter.Close()
		}
		if svc.rdb != nil {
			svc.rdb.Close()
		}
	})
}
