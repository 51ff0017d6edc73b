package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

type stubService struct {
	name     string
	startErr error
	stopped  atomic.Bool
}

func (s *stubService) Name() string { return s.name }

func (s *stubService) Start(ctx context.Context) error {
	if s.startErr != nil {
		return s.startErr
	}
	<-ctx.Done()
	return nil
}

func (s *stubService) Stop(context.Context) error {
	s.stopped.Store(true)
	return nil
}

func TestRunnerStopsAllServicesOnFailure(t *testing.T) {
	failing := &stubService{name: "http", startErr: errors.New("bind: address already in use")}
	healthy := &stubService{name: "scheduler"}
	cleaned := false
	runner := NewRunner(failing, healthy).OnStop(func() { cleaned = true })

	err := runner.Run(context.Background(), time.Second, zap.NewNop().Sugar())
	if err == nil || err.Error() != "bind: address already in use" {
		t.Fatalf("expected start error, got %v", err)
	}
	if !failing.stopped.Load() || !healthy.stopped.Load() {
		t.Fatalf("every service must be stopped")
	}
	if !cleaned {
		t.Fatalf("stop hooks must run")
	}
}

func TestRunnerCancelledContextIsCleanExit(t *testing.T) {
	svc := &stubService{name: "worker"}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	if err := NewRunner(svc).Run(ctx, time.Second, nil); err != nil {
		t.Fatalf("cancelled run must exit cleanly, got %v", err)
	}
	if !svc.stopped.Load() {
		t.Fatalf("service must be stopped")
	}
}

func TestRunnerWithoutServices(t *testing.T) {
	if err := NewRunner().Run(context.Background(), time.Second, nil); err == nil {
		t.Fatalf("empty runner must fail")
	}
}

func TestNormalizeOptions(t *testing.T) {
	opts := normalizeOptions(Options{})
	if opts.Mode != ModeAll || opts.ShutdownTimeout != 30*time.Second || opts.Logger == nil {
		t.Fatalf("unexpected defaults: %+v", opts)
	}
	if IsValidMode("cron") || !IsValidMode(ModeWorker) {
		t.Fatalf("unexpected mode validation")
	}
	if _, err := BuildRunner(nil, ModeAll); err == nil {
		t.Fatalf("nil config must fail")
	}
}
