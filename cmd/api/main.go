package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"travelriskbackend/internal/alerts"
	"travelriskbackend/internal/classify"
	"travelriskbackend/internal/config"
	"travelriskbackend/internal/geo"
	"travelriskbackend/internal/mailing"
	"travelriskbackend/internal/metrics"
	"travelriskbackend/internal/notify"
	"travelriskbackend/internal/report"
	"travelriskbackend/internal/store"
	transporthttp "travelriskbackend/internal/transport/http"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}

	taxonomy := alerts.DefaultTaxonomy()
	if cfg.TaxonomyPath != "" {
		taxonomy, err = alerts.LoadTaxonomy(cfg.TaxonomyPath)
		if err != nil {
			logger.Error("load taxonomy", "path", cfg.TaxonomyPath, "err", err)
			os.Exit(1)
		}
	}

	ingestSource := alerts.NewIngestSource("ingest")
	sourceList := []alerts.Source{ingestSource}
	if cfg.StaticDataPath != "" {
		staticSource, err := alerts.NewStaticFileSource("sample", cfg.StaticDataPath)
		if err != nil {
			logger.Error("init static source", "path", cfg.StaticDataPath, "err", err)
			os.Exit(1)
		}
		sourceList = append(sourceList, staticSource)
	}
	for _, url := range cfg.FeedURLs {
		feed, err := alerts.NewFeedSource(url, url, nil)
		if err != nil {
			logger.Error("init feed source", "url", url, "err", err)
			os.Exit(1)
		}
		sourceList = append(sourceList, feed)
	}

	sources, err := alerts.NewSourceRegistry(cfg.AdapterTimeout, cfg.MaxConcurrency, sourceList...)
	if err != nil {
		logger.Error("init source registry", "err", err)
		os.Exit(1)
	}

	var alertStore store.AlertStore = store.NewMemory()
	if cfg.MongoURI != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		mongoStore, err := store.NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		cancel()
		if err != nil {
			logger.Error("connect mongo", "err", err)
			os.Exit(1)
		}
		alertStore = mongoStore
		logger.Info("alert store: mongodb", "database", cfg.MongoDatabase)
	} else {
		logger.Info("alert store: in-memory")
	}

	hub := notify.NewHub(cfg.EventBuffer, logger)
	hub.OnDrop(metrics.ChangeEventsDropped.Inc)
	defer hub.Close()

	if cfg.NATSURL != "" {
		publisher, err := notify.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubject, logger)
		if err != nil {
			logger.Error("connect nats", "err", err)
			os.Exit(1)
		}
		defer publisher.Close()
		go publisher.Run(hub.Events())
		logger.Info("nats fan-out enabled", "subject", cfg.NATSSubject)
	} else {
		go drainEvents(hub.Events(), logger)
	}

	correlator := alerts.NewCorrelator(taxonomy, cfg.CorrelationThreshold)
	correlator.Epsilon = cfg.CorrelationEpsilon

	pipeline, err := alerts.NewPipeline(sources, correlator, alerts.NewScorer(taxonomy), alertStore)
	if err != nil {
		logger.Error("init pipeline", "err", err)
		os.Exit(1)
	}
	pipeline.Geocoder = geo.NewStaticGeocoder(nil)
	pipeline.Notifier = countingNotifier{hub: hub}
	pipeline.Lookback = cfg.Lookback
	pipeline.FetchWindow = cfg.FetchWindow
	pipeline.Logger = logger
	if cfg.ClassifierURL != "" {
		pipeline.Classifier = classify.NewClient(cfg.ClassifierAPIKey, classify.WithBaseURL(cfg.ClassifierURL))
		logger.Info("classification service enabled", "url", cfg.ClassifierURL)
	}

	scheduler := alerts.NewScheduler(pipeline, cfg.FetchInterval, logger)
	scheduler.Observer = observeCycle

	runCtx, stopScheduler := context.WithCancel(context.Background())
	defer stopScheduler()
	go scheduler.Start(runCtx)

	reports := report.NewStore()
	lists := mailing.NewStore()
	mailer := report.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
	dispatcher := report.NewDispatcher(reports, lists, mailer, logger)
	dispatcher.OnEmail = func(status string) {
		metrics.DispatchEmails.WithLabelValues(status).Inc()
	}

	server := transporthttp.NewServer(alertStore, ingestSource, scheduler, reports, dispatcher, lists, logger)

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      withLogging(withCORS(server.Routes()), logger),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen", "err", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	stopScheduler()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", "err", err)
	}
}

// countingNotifier forwards change events to the hub while bumping the
// published counter.
type countingNotifier struct {
	hub *notify.Hub
}

func (n countingNotifier) AlertChanged(event alerts.ChangeEvent) {
	metrics.ChangeEventsPublished.Inc()
	n.hub.AlertChanged(event)
}

// drainEvents keeps the hub from filling when no NATS publisher is attached.
func drainEvents(events <-chan alerts.ChangeEvent, logger *slog.Logger) {
	for event := range events {
		logger.Debug("alert changed", "alert_id", event.AlertID, "change", event.Change)
	}
}

func observeCycle(summary alerts.CycleSummary, err error) {
	status := "ok"
	if err != nil {
		status = "failed"
	}
	metrics.CyclesTotal.WithLabelValues(status).Inc()
	metrics.CycleDuration.Observe(summary.Duration.Seconds())
	metrics.AlertsCreated.Add(float64(summary.Created))
	metrics.AlertsUpdated.Add(float64(summary.Updated))
	for source, count := range summary.CandidatesBySource {
		metrics.CandidatesFetched.WithLabelValues(source).Add(float64(count))
	}
	for source := range summary.SourceErrors {
		metrics.SourceErrors.WithLabelValues(source).Inc()
	}
}

func withLogging(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Info("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
