package agent

import (
	"context"
	"database/sql"

	"github.com/ZanzyTHEbar/folio/folio/agent/adapters"
	ports "github.com/ZanzyTHEbar/folio/folio/agent/ports"
	"github.com/ZanzyTHEbar/folio/folio/config"
	"github.com/rs/zerolog"
)

// Factory creates agent adapters and policies from configuration.
type Factory struct {
	agentConfig  *config.AgentConfig
	ledgerConfig *config.LedgerConfig
	db           *sql.DB // Optional, for the transcript store
	logger       zerolog.Logger
}

// NewFactory creates a new agent factory.
func NewFactory(agentConfig *config.AgentConfig, ledgerConfig *config.LedgerConfig, db *sql.DB, logger zerolog.Logger) *Factory {
	return &Factory{
		agentConfig:  agentConfig,
		ledgerConfig: ledgerConfig,
		db:           db,
		logger:       logger,
	}
}

// CreateCache creates a cache adapter from config.
func (f *Factory) CreateCache() ports.Cache {
	if !f.agentConfig.CacheEnabled {
		return &noOpCache{}
	}
	return adapters.NewLRUCache(f.agentConfig.CacheCapacity)
}

// CreateRateLimiter creates a per-username rate limiter from config.
func (f *Factory) CreateRateLimiter() ports.RateLimiter {
	if !f.agentConfig.RateLimitEnabled {
		return &noOpRateLimiter{}
	}
	return adapters.NewKeyedLimiter(f.agentConfig.RateLimitRPS, f.agentConfig.RateLimitBurst)
}

// CreateTracer creates a tracer adapter from config.
func (f *Factory) CreateTracer() ports.Tracer {
	if !f.agentConfig.EnableTracing {
		return &noOpTracer{}
	}
	return adapters.NewZerologTracer(f.logger)
}

// CreateTranscriptStore creates the transcript archive from config.
func (f *Factory) CreateTranscriptStore() ports.TranscriptStore {
	if f.db == nil || !f.agentConfig.TranscriptEnabled {
		return &noOpStore{}
	}
	return adapters.NewLibSQLTranscriptStore(f.db)
}

// CreateGuardrails creates guardrails from config.
func (f *Factory) CreateGuardrails() *Guardrails {
	guardrails := NewGuardrails()
	if f.agentConfig.EnableGuardrails {
		for _, toolName := range f.agentConfig.AllowedTools {
			guardrails.AddAllowedTool(toolName)
		}
	}
	return guardrails
}

// CreatePolicy creates a policy from config with validation.
func (f *Factory) CreatePolicy() *Policy {
	policy := DefaultPolicy()
	policy.MaxToolDepth = f.agentConfig.MaxToolDepth
	policy.MaxIterations = f.agentConfig.MaxIterations
	policy.MaxContextTokens = f.agentConfig.MaxContextTokens
	policy.PendingTTL = f.ledgerConfig.PendingTTL
	policy.System = SystemPrompt(f.agentConfig.SystemPrompt, f.agentConfig.OwnerName)
	if f.agentConfig.MaxNewTokens > 0 {
		policy.Options.MaxNewTokens = f.agentConfig.MaxNewTokens
	}
	if f.agentConfig.Temperature > 0 {
		policy.Options.Temperature = f.agentConfig.Temperature
	}
	if f.agentConfig.TopP > 0 {
		policy.Options.TopP = f.agentConfig.TopP
	}

	// Validate and clamp policy values
	if policy.MaxToolDepth < 1 {
		policy.MaxToolDepth = 1
		f.logger.Warn().Int("max_tool_depth", f.agentConfig.MaxToolDepth).Msg("MaxToolDepth clamped to minimum of 1")
	}
	if policy.MaxToolDepth > 10 {
		policy.MaxToolDepth = 10
		f.logger.Warn().Int("max_tool_depth", f.agentConfig.MaxToolDepth).Msg("MaxToolDepth clamped to maximum of 10")
	}
	if policy.MaxIterations < policy.MaxToolDepth+1 {
		policy.MaxIterations = policy.MaxToolDepth + 1
		f.logger.Warn().Int("max_iterations", f.agentConfig.MaxIterations).Msg("MaxIterations raised above MaxToolDepth")
	}
	if policy.MaxIterations > 50 {
		policy.MaxIterations = 50
		f.logger.Warn().Int("max_iterations", f.agentConfig.MaxIterations).Msg("MaxIterations clamped to maximum of 50")
	}

	return policy
}

// noOpCache implements Cache interface with no-op behavior for testing/disabled cache.
type noOpCache struct{}

func (c *noOpCache) Get(ctx context.Context, key string) ([]byte, bool) { return nil, false }
func (c *noOpCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	return nil
}
func (c *noOpCache) Delete(ctx context.Context, key string) error { return nil }

// noOpRateLimiter implements RateLimiter interface with no-op behavior.
type noOpRateLimiter struct{}

func (r *noOpRateLimiter) Acquire(ctx context.Context, key string) (release func(), err error) {
	return func() {}, nil
}

// noOpTracer implements Tracer interface with no-op behavior.
type noOpTracer struct{}

func (t *noOpTracer) StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error)) {
	return ctx, func(err error) {}
}

func (t *noOpTracer) Event(ctx context.Context, name string, attrs map[string]any) {}

// noOpStore implements TranscriptStore interface with no-op behavior.
type noOpStore struct{}

func (s *noOpStore) SaveTurn(ctx context.Context, conversationID string, turn ports.Turn) error {
	return nil
}

func (s *noOpStore) LoadTurns(ctx context.Context, conversationID string, k int) ([]ports.Turn, error) {
	return nil, nil
}

// Ensure all no-op types implement their interfaces.
var (
	_ ports.Cache           = (*noOpCache)(nil)
	_ ports.RateLimiter     = (*noOpRateLimiter)(nil)
	_ ports.Tracer          = (*noOpTracer)(nil)
	_ ports.TranscriptStore = (*noOpStore)(nil)
)

