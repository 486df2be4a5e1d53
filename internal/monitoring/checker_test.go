package monitoring

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/sells-group/caselink/internal/config"
	"github.com/sells-group/caselink/internal/model"
)

func TestChecker_ChecksImmediatelyAndStopsOnCancel(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.MonitoringConfig{WebhookURL: srv.URL, CheckIntervalSecs: 3600, LookbackWindowHours: 24}
	checker := NewChecker(newTestCollector(&fakeSource{}, nil), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return hits.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_CancelledBeforeStart(t *testing.T) {
	checker := NewChecker(newTestCollector(&fakeSource{}, nil), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}

func TestChecker_SendsOnlyNewAlerts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	src := &fakeSource{}
	cfg := config.MonitoringConfig{WebhookURL: srv.URL, StaleSnapshotHours: 24, LookbackWindowHours: 24}
	checker := NewChecker(newTestCollector(src, nil), NewAlerter(cfg), cfg)
	ctx := context.Background()
	log := zap.NewNop()

	checker.check(ctx, log)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, []AlertType{AlertNoSnapshot}, checker.Active())

	checker.check(ctx, log)
	assert.Equal(t, int32(1), hits.Load(), "an active alert is not resent")

	src.snap = &model.Snapshot{RunID: "r1", ComputedAt: fixedNow.Add(-time.Hour)}
	checker.check(ctx, log)
	assert.Equal(t, int32(1), hits.Load())
	assert.Empty(t, checker.Active())

	src.snap = nil
	checker.check(ctx, log)
	assert.Equal(t, int32(2), hits.Load(), "a cleared alert is sent again when it returns")
}

func TestChecker_CollectErrorKeepsState(t *testing.T) {
	src := &fakeSource{listErr: errors.New("db down")}
	checker := NewChecker(newTestCollector(src, nil), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{})
	checker.active[AlertStaleSnapshot] = true

	checker.check(context.Background(), zap.NewNop())
	assert.Equal(t, []AlertType{AlertStaleSnapshot}, checker.Active())
}
