package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/docqa-retrieval/internal/core/domain"
	"github.com/kirillkom/docqa-retrieval/internal/infrastructure/resilience"
)

const defaultBufferSize = 256

// Publisher forwards retrieval stage events to a NATS subject. Events are
// queued and sent from a single goroutine; a full queue drops the event.
type Publisher struct {
	conn     publisher
	subject  string
	executor *resilience.Executor
	logger   *slog.Logger

	mu     sync.RWMutex
	closed bool
	events chan stageMessage
	done   chan struct{}
}

type publisher interface {
	Publish(subject string, data []byte) error
	FlushTimeout(timeout time.Duration) error
	Close()
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	BufferSize           int
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

type stageMessage struct {
	TenantID   string    `json:"tenant_id"`
	Stage      string    `json:"stage"`
	Strategy   string    `json:"strategy,omitempty"`
	Count      int       `json:"count"`
	DurationMS float64   `json:"duration_ms"`
	Fallback   bool      `json:"fallback,omitempty"`
	Error      string    `json:"error,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	At         time.Time `json:"at"`
}

func New(url, subject string, options Options) (*Publisher, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("docqa-retrieval"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return newPublisher(conn, subject, options.BufferSize, options.ResilienceExecutor, logger), nil
}

func newPublisher(conn publisher, subject string, bufferSize int, executor *resilience.Executor, logger *slog.Logger) *Publisher {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	p := &Publisher{
		conn:     conn,
		subject:  subject,
		executor: executor,
		logger:   logger,
		events:   make(chan stageMessage, bufferSize),
		done:     make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *Publisher) ObserveStage(_ context.Context, event domain.StageEvent) {
	msg := stageMessage{
		TenantID:   event.TenantID,
		Stage:      event.Stage,
		Strategy:   event.Strategy,
		Count:      event.Count,
		DurationMS: float64(event.Duration.Microseconds()) / 1000.0,
		Fallback:   event.Fallback,
		Error:      event.Error,
		Confidence: event.Confidence,
		At:         time.Now().UTC(),
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.events <- msg:
	default:
		p.logger.Warn("telemetry_event_dropped", "stage", event.Stage, "tenant_id", event.TenantID)
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	for msg := range p.events {
		if err := p.publish(context.Background(), msg); err != nil {
			p.logger.Warn("telemetry_publish_failed", "stage", msg.Stage, "error", err)
		}
	}
}

func (p *Publisher) publish(ctx context.Context, msg stageMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal stage event: %w", err)
	}
	call := func(_ context.Context) error {
		if err := p.conn.Publish(p.subject, data); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if p.executor != nil {
		err = p.executor.Execute(ctx, resilience.OpPublishStages, call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	return wrapTemporaryIfNeeded(err)
}

// Close drains queued events and closes the connection.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.events)
	p.mu.Unlock()

	<-p.done
	if err := p.conn.FlushTimeout(5 * time.Second); err != nil {
		p.logger.Warn("nats_flush_failed", "error", err)
	}
	p.conn.Close()
}
