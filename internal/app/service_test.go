package app

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubService struct {
	name     string
	startErr error
	block    bool
	stopped  bool
}

func (s *stubService) Name() string { return s.name }

func (s *stubService) Start(ctx context.Context) error {
	if s.block {
		<-ctx.Done()
		return nil
	}
	return s.startErr
}

func (s *stubService) Stop(context.Context) error {
	s.stopped = true
	return nil
}

func TestRunnerStopsAllWhenOneExitsWithError(t *testing.T) {
	failing := &stubService{name: "worker", startErr: errors.New("redis unreachable")}
	blocking := &stubService{name: "http", block: true}
	cleaned := false
	runner := NewRunner(blocking, failing).OnShutdown(func() { cleaned = true })

	err := runner.Run(context.Background(), time.Second, nil)
	if err == nil || err.Error() != "worker: redis unreachable" {
		t.Fatalf("expected worker error, got %v", err)
	}
	if !failing.stopped || !blocking.stopped {
		t.Fatalf("all services should be stopped")
	}
	if !cleaned {
		t.Fatalf("shutdown hook should run")
	}
}

func TestRunnerReturnsNilOnCancel(t *testing.T) {
	svc := &stubService{name: "http", block: true}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewRunner(svc).Run(ctx, time.Second, nil); err != nil {
		t.Fatalf("cancelled run should return nil, got %v", err)
	}
	if !svc.stopped {
		t.Fatalf("service should be stopped")
	}
}

func TestBuildRunnerRejectsUnknownMode(t *testing.T) {
	if _, err := BuildRunner(nil, ModeAll); err == nil {
		t.Fatalf("nil config should fail")
	}
	if validMode("batch") || !validMode(ModeWorker) {
		t.Fatalf("unexpected mode validation")
	}
}
