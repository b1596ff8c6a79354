package nats

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/docqa-retrieval/internal/core/domain"
	"github.com/kirillkom/docqa-retrieval/internal/infrastructure/resilience"
)

type connFake struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	failures int
	closed   bool
}

func (c *connFake) Publish(subject string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failures > 0 {
		c.failures--
		return nats.ErrTimeout
	}
	c.subjects = append(c.subjects, subject)
	c.payloads = append(c.payloads, data)
	return nil
}

func (c *connFake) FlushTimeout(time.Duration) error { return nil }

func (c *connFake) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestObserveStagePublishesJSON(t *testing.T) {
	conn := &connFake{}
	p := newPublisher(conn, "docqa.stages", 4, nil, quietLogger())

	p.ObserveStage(context.Background(), domain.StageEvent{
		TenantID: "t1",
		Stage:    domain.StageRerank,
		Strategy: "llm_judge",
		Count:    3,
		Duration: 1500 * time.Microsecond,
		Fallback: true,
	})
	p.Close()

	if len(conn.payloads) != 1 || conn.subjects[0] != "docqa.stages" {
		t.Fatalf("expected one published event, got %d", len(conn.payloads))
	}
	var msg stageMessage
	if err := json.Unmarshal(conn.payloads[0], &msg); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if msg.TenantID != "t1" || msg.Stage != "rerank" || !msg.Fallback || msg.DurationMS != 1.5 {
		t.Fatalf("unexpected event: %+v", msg)
	}
	if !conn.closed {
		t.Fatalf("expected connection closed")
	}
}

func TestPublishRetriesTemporaryFailures(t *testing.T) {
	conn := &connFake{failures: 1}
	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		BreakerEnabled:      false,
	})
	p := newPublisher(conn, "s", 4, exec, quietLogger())
	p.ObserveStage(context.Background(), domain.StageEvent{Stage: domain.StageFusion})
	p.Close()

	if len(conn.payloads) != 1 {
		t.Fatalf("expected event published after retry, got %d", len(conn.payloads))
	}
}

func TestObserveStageAfterCloseDoesNotPanic(t *testing.T) {
	p := newPublisher(&connFake{}, "s", 1, nil, quietLogger())
	p.Close()
	p.ObserveStage(context.Background(), domain.StageEvent{Stage: domain.StageFusion})
}

func TestWrapTemporaryIfNeeded(t *testing.T) {
	if err := wrapTemporaryIfNeeded(nats.ErrNoServers); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary, got %v", err)
	}
	plain := errors.New("bad subject")
	if err := wrapTemporaryIfNeeded(plain); domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("unexpected temporary wrap")
	}
}
