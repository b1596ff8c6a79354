package resilience

import "time"

// Operation names used by the outbound adapters. HTTP adapters compose them
// as "<service>.<operation>".
const (
	OpEmbed         = "ollama.embed"
	OpChat          = "ollama.chat"
	OpVectorSearch  = "qdrant.search"
	OpExternalRank  = "crossencoder.rerank"
	OpPublishStages = "nats.publish"
)

// Config holds the executor-wide retry and breaker settings.
// Operations overrides the retry budget for single operations.
type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64

	// AttemptTimeout bounds every single attempt; zero leaves it to the caller's context.
	AttemptTimeout time.Duration

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32

	Operations map[string]OperationPolicy
}

// OperationPolicy replaces the executor-wide values it sets; zero fields inherit.
type OperationPolicy struct {
	RetryMaxAttempts int
	AttemptTimeout   time.Duration
	SkipBreaker      bool
}

// DefaultConfig keeps backoff short enough for retries to fit inside the
// per-stage retrieval deadlines.
func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: 25 * time.Millisecond,
		RetryMaxBackoff:     150 * time.Millisecond,
		RetryMultiplier:     2.0,

		BreakerEnabled:          true,
		BreakerMinRequests:      10,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,

		Operations: map[string]OperationPolicy{
			// a failed judge batch already falls back to MMR order
			OpChat: {RetryMaxAttempts: 1},
			// telemetry is best effort
			OpPublishStages: {RetryMaxAttempts: 1, SkipBreaker: true},
		},
	}
}

type resolvedPolicy struct {
	maxAttempts    int
	attemptTimeout time.Duration
	breaker        bool
}

func (c Config) forOperation(op string) resolvedPolicy {
	p := resolvedPolicy{
		maxAttempts:    c.RetryMaxAttempts,
		attemptTimeout: c.AttemptTimeout,
		breaker:        c.BreakerEnabled,
	}
	o, ok := c.Operations[op]
	if !ok {
		return p
	}
	if o.RetryMaxAttempts > 0 {
		p.maxAttempts = o.RetryMaxAttempts
	}
	if o.AttemptTimeout > 0 {
		p.attemptTimeout = o.AttemptTimeout
	}
	if o.SkipBreaker {
		p.breaker = false
	}
	return p
}

func (c Config) normalize() Config {
	def := DefaultConfig()
	out := c

	out.RetryMaxAttempts = positiveOr(out.RetryMaxAttempts, def.RetryMaxAttempts)
	out.RetryInitialBackoff = positiveOr(out.RetryInitialBackoff, def.RetryInitialBackoff)
	out.RetryMaxBackoff = max(positiveOr(out.RetryMaxBackoff, def.RetryMaxBackoff), out.RetryInitialBackoff)
	if out.RetryMultiplier < 1.0 {
		out.RetryMultiplier = def.RetryMultiplier
	}
	out.AttemptTimeout = max(out.AttemptTimeout, 0)

	out.BreakerMinRequests = positiveOr(out.BreakerMinRequests, def.BreakerMinRequests)
	if out.BreakerFailureRatio <= 0 || out.BreakerFailureRatio > 1 {
		out.BreakerFailureRatio = def.BreakerFailureRatio
	}
	out.BreakerOpenTimeout = positiveOr(out.BreakerOpenTimeout, def.BreakerOpenTimeout)
	out.BreakerHalfOpenMaxCalls = positiveOr(out.BreakerHalfOpenMaxCalls, def.BreakerHalfOpenMaxCalls)

	return out
}

func positiveOr[T int | uint32 | time.Duration](v, fallback T) T {
	if v <= 0 {
		return fallback
	}
	return v
}
