// transferd is the batch daemon around the transfer policy engine: it
// consumes demand signals from Kafka, proposes orders through the policy
// service and exposes health and metrics endpoints.
package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pearcestephens/vapeshed-transfer-sub007/pkg/config"
	"github.com/pearcestephens/vapeshed-transfer-sub007/pkg/events"
	"github.com/pearcestephens/vapeshed-transfer-sub007/pkg/metrics"
	"github.com/pearcestephens/vapeshed-transfer-sub007/pkg/policy"
	"github.com/pearcestephens/vapeshed-transfer-sub007/pkg/signalbus"
	"github.com/pearcestephens/vapeshed-transfer-sub007/pkg/store"
	"github.com/pearcestephens/vapeshed-transfer-sub007/pkg/telemetry"
)

type daemon struct {
	svc      *policy.Service
	registry *metrics.Registry
	consumer signalbus.Consumer
	cleanup  func()
}

// Testable variables for main()
var (
	logFatalf       = log.Fatalf
	initTelemetryFn = telemetry.Init
	buildDepsFn     func(context.Context) (*daemon, error)
	listenFn        func(*http.Server) error
)

func main() {
	if err := run(initTelemetryFn, buildDepsFn, listenFn); err != nil {
		logFatalf("transferd: %v", err)
	}
}

func run(
	initTelemetry func(context.Context, string) (func(context.Context) error, error),
	buildDeps func(context.Context) (*daemon, error),
	listen func(*http.Server) error,
) error {
	if initTelemetry == nil {
		initTelemetry = telemetry.Init
	}
	if buildDeps == nil {
		buildDeps = buildDaemon
	}
	if listen == nil {
		listen = func(server *http.Server) error { return server.ListenAndServe() }
	}

	ctx := context.Background()
	shutdown, err := initTelemetry(ctx, "transferd")
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(context.Background()) }()

	d, err := buildDeps(ctx)
	if err != nil {
		return err
	}
	if d.cleanup != nil {
		defer d.cleanup()
	}
	if d.consumer != nil {
		defer func() { _ = d.consumer.Close() }()
		go consumeSignals(ctx, d)
	}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","service":"transferd"}`))
	})
	r.Get("/metrics", d.registry.Handler())
	r.Get("/metrics/prometheus", d.registry.PrometheusHandler())

	server := &http.Server{
		Addr:              env("LISTEN_ADDR", ":8080"),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return listen(server)
}

func buildDaemon(ctx context.Context) (*daemon, error) {
	pool, err := store.NewPostgresPool(ctx)
	if err != nil {
		return nil, err
	}
	rdb, err := store.NewRedis(ctx)
	if err != nil {
		log.Printf("redis unavailable, falling back to in-memory cache: %v", err)
		rdb = nil
	}
	cache := store.NewCache(ctx, rdb)
	cfgTTL := time.Duration(envInt("CONFIG_CACHE_TTL_SEC", 30)) * time.Second
	resolver := config.NewResolver(config.NewCached(config.NewPGStore(pool), cache, cfgTTL))

	emitter := events.Multi{events.NewBoltEmitter(os.Stdout, env("LOG_LEVEL", "info"))}
	var closers []func()
	if env("KAFKA_EVENTS_ENABLED", "false") == "true" {
		pub, err := events.NewKafkaPublisher(events.KafkaConfig{
			Brokers: splitList(env("KAFKA_BROKERS", "localhost:9092")),
			Topic:   env("KAFKA_EVENTS_TOPIC", "transfers.decisions"),
		})
		if err != nil {
			return nil, err
		}
		emitter = append(emitter, pub)
		closers = append(closers, func() { _ = pub.Close() })
	}

	registry := metrics.NewRegistry()
	svc := policy.NewService(store.NewOrderRepo(pool), resolver, emitter, registry)
	d := &daemon{svc: svc, registry: registry}

	if env("KAFKA_ENABLED", "false") == "true" {
		consumer, err := signalbus.NewKafkaConsumer(signalbus.KafkaConfig{
			Brokers: splitList(env("KAFKA_BROKERS", "localhost:9092")),
			Topic:   env("KAFKA_SIGNALS_TOPIC", "transfers.signals"),
			GroupID: env("KAFKA_GROUP_ID", "transferd"),
		})
		if err != nil {
			return nil, err
		}
		d.consumer = consumer
	}

	d.cleanup = func() {
		for _, c := range closers {
			c()
		}
		pool.Close()
		if rdb != nil {
			_ = rdb.Close()
		}
	}
	return d, nil
}

// consumeSignals runs until the consumer reports shutdown. Malformed
// payloads and rejected signals are logged and skipped; infrastructure
// errors back off briefly instead of spinning.
func consumeSignals(ctx context.Context, d *daemon) {
	for {
		signal, err := d.consumer.ReadSignal(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return
			}
			if errors.Is(err, signalbus.ErrMalformedSignal) {
				log.Printf("skipping malformed signal: %v", err)
				continue
			}
			log.Printf("signal read failed: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if _, err := d.svc.Propose(ctx, signal, true); err != nil {
			var verr *policy.ValidationError
			if errors.As(err, &verr) {
				log.Printf("rejected signal: %v", verr)
				continue
			}
			log.Printf("propose failed for %s/%s: %v", signal.StoreID, signal.SKU, err)
		}
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
