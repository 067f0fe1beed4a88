package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/pearcestephens/vapeshed-transfer-sub007/pkg/config"
	"github.com/pearcestephens/vapeshed-transfer-sub007/pkg/events"
	"github.com/pearcestephens/vapeshed-transfer-sub007/pkg/metrics"
	"github.com/pearcestephens/vapeshed-transfer-sub007/pkg/models"
	"github.com/pearcestephens/vapeshed-transfer-sub007/pkg/policy"
	"github.com/pearcestephens/vapeshed-transfer-sub007/pkg/signalbus"
)

type fakeRepo struct {
	mu      sync.Mutex
	created int
}

func (f *fakeRepo) Create(ctx context.Context, order *models.TransferOrder) (*models.TransferOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	stored := *order
	stored.Persisted = true
	return &stored, nil
}

func (f *fakeRepo) FindRecentByStoreSKU(ctx context.Context, storeID, sku string, windowHours int) (*models.RecentOrder, error) {
	return nil, nil
}

func (f *fakeRepo) UpdateStatus(ctx context.Context, transferID, newStatus, actor, note string) (bool, error) {
	return true, nil
}

func (f *fakeRepo) CountByStatus(ctx context.Context, status string) (int, error) {
	return 0, nil
}

func (f *fakeRepo) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}

type scriptedConsumer struct {
	signals []models.DemandSignal
	errs    []error
	idx     int
	closed  bool
}

func (s *scriptedConsumer) ReadSignal(ctx context.Context) (models.DemandSignal, error) {
	if s.idx >= len(s.errs) {
		return models.DemandSignal{}, context.Canceled
	}
	i := s.idx
	s.idx++
	return s.signals[i], s.errs[i]
}

func (s *scriptedConsumer) Close() error {
	s.closed = true
	return nil
}

func testDaemon(repo *fakeRepo, consumer signalbus.Consumer) *daemon {
	reg := metrics.NewRegistry()
	resolver := config.NewResolver(config.NewMapStore(nil))
	return &daemon{
		svc:      policy.NewService(repo, resolver, events.Nop{}, reg),
		registry: reg,
		consumer: consumer,
	}
}

func TestRunServesOpsEndpoints(t *testing.T) {
	fakeShutdown := func(context.Context) error { return nil }
	var captured *http.Server
	err := run(
		func(ctx context.Context, service string) (func(context.Context) error, error) {
			if service != "transferd" {
				t.Fatalf("unexpected service name %q", service)
			}
			return fakeShutdown, nil
		},
		func(ctx context.Context) (*daemon, error) {
			return testDaemon(&fakeRepo{}, nil), nil
		},
		func(server *http.Server) error {
			captured = server
			return nil
		},
	)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if captured == nil {
		t.Fatal("expected server to be configured")
	}

	for _, tc := range []struct {
		path string
		want string
	}{
		{"/healthz", `"status":"ok"`},
		{"/metrics", `"orders_created_total"`},
		{"/metrics/prometheus", "transfers_orders_created_total"},
	} {
		path, want := tc.path, tc.want
		rec := httptest.NewRecorder()
		captured.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status %d", path, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), want) {
			t.Fatalf("%s: missing %q in %s", path, want, rec.Body.String())
		}
	}
}

func TestRunPropagatesTelemetryError(t *testing.T) {
	sentinel := errors.New("exporter down")
	err := run(
		func(ctx context.Context, service string) (func(context.Context) error, error) {
			return nil, sentinel
		},
		func(ctx context.Context) (*daemon, error) {
			t.Fatal("deps must not be built when telemetry fails")
			return nil, nil
		},
		nil,
	)
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected telemetry error, got %v", err)
	}
}

func TestRunPropagatesDepsError(t *testing.T) {
	sentinel := errors.New("db down")
	err := run(
		func(ctx context.Context, service string) (func(context.Context) error, error) {
			return func(context.Context) error { return nil }, nil
		},
		func(ctx context.Context) (*daemon, error) { return nil, sentinel },
		nil,
	)
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected deps error, got %v", err)
	}
}

func TestConsumeSignalsProcessesAndSkips(t *testing.T) {
	repo := &fakeRepo{}
	good := models.DemandSignal{StoreID: "S1", SKU: "SKU1", PredictedWeeklyQty: 100, CurrentOnHand: 0, Confidence: 0.9}
	invalid := models.DemandSignal{SKU: "SKU1"}
	consumer := &scriptedConsumer{
		signals: []models.DemandSignal{good, {}, invalid, {}},
		errs:    []error{nil, signalbus.ErrMalformedSignal, nil, io.EOF},
	}
	d := testDaemon(repo, consumer)
	consumeSignals(context.Background(), d)
	if repo.createdCount() != 1 {
		t.Fatalf("expected exactly one persisted order, got %d", repo.createdCount())
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("TRANSFERD_TEST_STR", "x")
	if env("TRANSFERD_TEST_STR", "d") != "x" || env("TRANSFERD_TEST_MISSING", "d") != "d" {
		t.Fatal("env")
	}
	t.Setenv("TRANSFERD_TEST_INT", "5")
	if envInt("TRANSFERD_TEST_INT", 1) != 5 || envInt("TRANSFERD_TEST_MISSING", 7) != 7 {
		t.Fatal("envInt")
	}
	got := splitList(" a ,, b,")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("splitList: %v", got)
	}
}
