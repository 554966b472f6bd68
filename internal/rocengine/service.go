// Package rocengine wires the ROC indicator engine into a running service:
// an observation feed in, Redis result streams out, and an HTTP control
// surface.
package rocengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"rocengine/config"
	"rocengine/internal/api"
	"rocengine/internal/bus"
	"rocengine/internal/feed/ws"
	"rocengine/internal/indicator"
	"rocengine/internal/logger"
	"rocengine/internal/metrics"
	"rocengine/internal/model"
	redisstore "rocengine/internal/store/redis"
	sqlitestore "rocengine/internal/store/sqlite"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
)

// Service is the top-level orchestrator for the ROC engine.
// It wires all dependencies, manages lifecycle, and coordinates goroutines.
type Service struct {
	cfg *config.Config
	log *slog.Logger

	ctrl   *Controller
	prom   *metrics.Metrics
	health *metrics.HealthStatus
	http   *api.Server

	redis       *goredis.Client
	redisReader *redisstore.Reader
	redisWriter *redisstore.Writer
	breaker     *redisstore.CircuitBreaker
	sqlReader   *sqlitestore.Reader
	sqlWriter   *sqlitestore.Writer

	obsCh    chan model.Observation
	resultCh chan model.IndicatorResult
}

// New connects to Redis (and SQLite when warm-up or recording is enabled)
// and builds the engine. reg receives the service metrics; gatherer serves
// them on /metrics.
func New(cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer, gatherer prometheus.Gatherer) (*Service, error) {
	engine, err := indicator.NewEngine(cfg.Parsed)
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}

	svc := &Service{
		cfg:      cfg,
		log:      logger,
		prom:     metrics.New(reg),
		health:   metrics.NewHealthStatus(cfg.Warmup.Enabled || cfg.SQLite.Record),
		obsCh:    make(chan model.Observation, cfg.Feed.BufferSize),
		resultCh: make(chan model.IndicatorResult, cfg.Feed.BufferSize),
	}
	svc.ctrl = NewController(engine, svc.prom, svc.health)

	// ---- Connect to Redis ----
	svc.redis, err = redisstore.NewClient(redisstore.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, err
	}
	svc.health.SetRedisConnected(true)
	svc.redisReader = redisstore.NewReader(svc.redis, cfg.Feed.ConsumerGroup, cfg.Feed.ConsumerName)
	svc.redisWriter = redisstore.NewWriter(svc.redis, redisstore.WriterOptions{
		StreamMaxLen: cfg.Publish.StreamMaxLen,
		LatestTTL:    cfg.Publish.LatestTTL,
	})
	svc.breaker = redisstore.NewCircuitBreaker(cfg.Publish.FailureThreshold, cfg.Publish.ResetTimeout)
	svc.breaker.OnStateChange = func(from, to redisstore.State) {
		svc.prom.RedisCircuitBreakerState.Set(float64(to))
		if to == redisstore.StateOpen {
			svc.prom.RedisCircuitBreakerTrips.Inc()
		}
		svc.log.Warn("redis circuit breaker", slog.String("from", from.String()), slog.String("to", to.String()))
	}

	// ---- Open SQLite ----
	if cfg.Warmup.Enabled {
		svc.sqlReader, err = sqlitestore.NewReader(cfg.SQLite.Path)
		if err != nil {
			svc.log.Warn("sqlite reader unavailable, continuing without warm-up", slog.Any("error", err))
		} else {
			svc.health.SetSQLiteOK(true)
		}
	}
	if cfg.SQLite.Record {
		svc.sqlWriter, err = sqlitestore.NewWriter(cfg.SQLite.Path)
		if err != nil {
			svc.Close()
			return nil, err
		}
		svc.health.SetSQLiteOK(true)
	}

	svc.http = api.NewServer(cfg.HTTP.Addr, svc.ctrl, svc.health, gatherer)
	return svc, nil
}

// Controller exposes the engine controller.
func (svc *Service) Controller() *Controller { return svc.ctrl }

// Run starts all subsystems and blocks until ctx is cancelled.
func (svc *Service) Run(ctx context.Context) error {
	cfg := svc.cfg
	svc.log.Info("starting ROC engine",
		slog.String("indicators", indicator.FormatSpecs(svc.ctrl.Configs())),
		slog.String("feed", cfg.Feed.Source),
	)

	svc.warmUp()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	goFn := func(name string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
			svc.log.Debug("goroutine stopped", slog.String("name", name))
		}()
	}

	// ---- Observation fan-out → engine (+ recorder) ----
	svc.startPipeline(ctx, goFn)

	// ---- Results → Redis ----
	publisher := redisstore.NewPublisher(svc.redisWriter, svc.breaker, cfg.Publish.BatchSize, cfg.Publish.FlushInterval)
	publisher.OnWritten = func(n int, took time.Duration) {
		svc.prom.PublishedResults.Add(float64(n))
		svc.prom.RedisWriteDur.Observe(took.Seconds())
	}
	publisher.OnError = func(error) { svc.prom.PublishErrors.Inc() }
	publisher.OnDrop = func(int) { svc.prom.DroppedBatches.Inc() }
	goFn("publisher", func() { publisher.Run(ctx, svc.resultCh) })

	// ---- Feed ----
	if err := svc.startFeed(ctx, goFn); err != nil {
		cancel()
		wg.Wait()
		svc.Close()
		return err
	}

	// ---- Config reloads over Pub/Sub ----
	if cfg.Feed.ConfigChannel != "" {
		goFn("config-subscriber", func() { svc.configSubscriber(ctx) })
	}

	// ---- Health + HTTP ----
	sqlDB := svc.sqliteDB()
	svc.health.StartLivenessChecker(ctx, svc.redis, sqlDB, 10*time.Second)
	svc.http.Start()

	svc.log.Info("all systems running")
	<-ctx.Done()

	svc.log.Info("shutdown signal received")
	shutCtx, shutCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutCancel()
	if err := svc.http.Stop(shutCtx); err != nil {
		svc.log.Error("http shutdown", slog.Any("error", err))
	}
	wg.Wait()
	svc.Close()
	svc.log.Info("shutdown complete")
	return nil
}

// startPipeline fans observations from obsCh out to the engine and, when
// recording, to the SQLite archive. The engine subscription blocks so every
// observation reaches it in arrival order; the recorder is lossy.
func (svc *Service) startPipeline(ctx context.Context, goFn func(string, func())) {
	obsBus := bus.New[model.Observation](svc.cfg.Feed.BufferSize)
	obsBus.OnDrop = func(subscriber string) {
		svc.prom.FanoutDropsTotal.WithLabelValues(subscriber).Inc()
	}
	engineIn := obsBus.SubscribeBlocking("engine")
	if svc.sqlWriter != nil {
		recorderIn := obsBus.Subscribe("recorder")
		svc.sqlWriter.OnCommit = func(n int, took time.Duration) {
			svc.prom.RecordedObservations.Add(float64(n))
			svc.prom.RecordCommitDur.Observe(took.Seconds())
		}
		goFn("recorder", func() { svc.sqlWriter.Run(ctx, recorderIn) })
	}
	goFn("fanout", func() { obsBus.Run(ctx, svc.obsCh) })
	goFn("queue-depth", func() { svc.reportQueueDepth(ctx, obsBus, 5*time.Second) })

	goFn("engine", func() {
		svc.ctrl.Run(ctx, engineIn, svc.resultCh, func(model.IndicatorResult) {
			svc.prom.FanoutDropsTotal.WithLabelValues("publisher").Inc()
		})
	})
}

func (svc *Service) reportQueueDepth(ctx context.Context, obsBus *bus.FanOut[model.Observation], every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		for _, st := range obsBus.ChannelStats() {
			svc.prom.FanoutQueueDepth.WithLabelValues(st.Name).Set(float64(st.Len))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Close releases Redis and SQLite handles.
func (svc *Service) Close() {
	if svc.sqlReader != nil {
		svc.sqlReader.Close()
	}
	if svc.sqlWriter != nil {
		svc.sqlWriter.Close()
	}
	if svc.redis != nil {
		svc.redis.Close()
	}
}

func (svc *Service) warmUp() {
	if svc.sqlReader == nil {
		return
	}
	var after time.Time
	if lb := svc.cfg.Warmup.Lookback; lb > 0 {
		after = time.Now().Add(-lb)
	}
	start := time.Now()
	n, err := svc.ctrl.Backfill(svc.sqlReader, after)
	if err != nil {
		svc.log.Warn("warm-up failed", slog.Any("error", err))
		return
	}
	svc.health.SetWarmupDone(true)
	svc.log.Info("warm-up complete",
		slog.Int("observations", n),
		slog.Duration("took", time.Since(start)),
	)
}

func (svc *Service) startFeed(ctx context.Context, goFn func(string, func())) error {
	cfg := svc.cfg.Feed
	switch cfg.Source {
	case "ws":
		ing, err := ws.New(ws.Config{URL: cfg.WSURL})
		if err != nil {
			return fmt.Errorf("ws feed: %w", err)
		}
		ing.OnConnected = svc.health.SetFeedConnected
		ing.OnReconnect = svc.prom.FeedReconnects.Inc
		ing.OnMalformed = func(error) { svc.prom.DroppedObservations.Inc() }
		goFn("feed-ws", func() { ing.Start(ctx, svc.obsCh) })

	case "redis":
		if err := svc.redisReader.EnsureConsumerGroup(ctx, cfg.Streams); err != nil {
			return err
		}
		recovered, err := svc.redisReader.RecoverPending(ctx, cfg.Streams, svc.obsCh)
		if err != nil {
			return fmt.Errorf("recover pending: %w", err)
		}
		if recovered > 0 {
			svc.log.Info("recovered pending observations", slog.Int("count", recovered))
		}
		svc.health.SetFeedConnected(true)
		goFn("feed-redis", func() {
			err := svc.redisReader.ConsumeObservations(ctx, cfg.Streams, cfg.BatchSize, cfg.Block, svc.obsCh,
				func(error) { svc.prom.DroppedObservations.Inc() })
			if err != nil && !errors.Is(err, context.Canceled) {
				svc.log.Error("redis feed stopped", slog.Any("error", err))
			}
			svc.health.SetFeedConnected(false)
		})
		goFn("pel-reclaimer", func() {
			svc.redisReader.StartPELReclaimer(ctx, cfg.Streams, cfg.PELInterval, cfg.PELMinIdle, svc.obsCh,
				func(n int) { svc.prom.PELMessagesClaimed.Add(float64(n)) })
		})

	default:
		return fmt.Errorf("unknown feed source %q", cfg.Source)
	}
	return nil
}

// configSubscriber applies "TYPE:PERIOD,..." reloads published on the config
// channel.
func (svc *Service) configSubscriber(ctx context.Context) {
	channel := svc.cfg.Feed.ConfigChannel
	pubsub, err := svc.redisReader.SubscribeChannel(ctx, channel)
	if err != nil {
		svc.log.Warn("config subscription unavailable", slog.Any("error", err))
		return
	}
	defer pubsub.Close()
	svc.log.Info("subscribed for config reloads", slog.String("channel", channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			svc.applySpecs(ctx, channel, msg.Payload)
		}
	}
}

// applySpecs reloads the engine from a "TYPE:PERIOD,..." message. Every log
// line for one message carries the same trace id.
func (svc *Service) applySpecs(ctx context.Context, source, specs string) {
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(source, time.Now()))
	log := svc.log.With(logger.LogWithTrace(ctx)...)

	configs, err := indicator.ParseSpecs(specs)
	if err != nil {
		log.Warn("rejected config update", slog.String("specs", specs), slog.Any("error", err))
		return
	}
	preserved, created, err := svc.ctrl.Reload(configs)
	if err != nil {
		log.Warn("reload failed", slog.Any("error", err))
		return
	}
	log.Info("indicators reloaded",
		slog.String("indicators", indicator.FormatSpecs(configs)),
		slog.Int("preserved", preserved),
		slog.Int("created", created),
	)
}

func (svc *Service) sqliteDB() *sql.DB {
	switch {
	case svc.sqlWriter != nil:
		return svc.sqlWriter.DB()
	case svc.sqlReader != nil:
		return svc.sqlReader.DB()
	}
	return nil
}
