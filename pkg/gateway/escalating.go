package gateway

import (
	"context"
	"sync"

	"github.com/wyrmspire/agentcore/internal/logger"
	"github.com/wyrmspire/agentcore/pkg/sdk"
)

// Escalating wraps a primary (fast, cheap) gateway and an escalation
// (stronger) gateway. After a run of consecutive failures it switches to the
// escalation model; a later success switches back.
type Escalating struct {
	mu sync.Mutex

	primary    Gateway
	escalation Gateway
	threshold  int

	escalated bool
	failures  int
	reason    string
}

// NewEscalating creates an escalating gateway. threshold <= 0 defaults to 3.
func NewEscalating(primary, escalation Gateway, threshold int) *Escalating {
	if threshold <= 0 {
		threshold = 3
	}
	return &Escalating{
		primary:    primary,
		escalation: escalation,
		threshold:  threshold,
	}
}

// Model returns the currently active model name.
func (g *Escalating) Model() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current().Model()
}

// IsEscalated reports whether the escalation model is active.
func (g *Escalating) IsEscalated() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.escalated
}

func (g *Escalating) current() Gateway {
	if g.escalated {
		return g.escalation
	}
	return g.primary
}

// Complete forwards to the active gateway and maintains the
// escalate/de-escalate state machine around its outcome.
func (g *Escalating) Complete(ctx context.Context, messages []sdk.Message, tools []sdk.ToolDefinition) (*sdk.Response, error) {
	g.mu.Lock()
	gw := g.current()
	g.mu.Unlock()

	resp, err := gw.Complete(ctx, messages, tools)

	g.mu.Lock()
	defer g.mu.Unlock()

	if err != nil {
		g.failures++
		if !g.escalated && g.failures >= g.threshold {
			g.escalated = true
			g.reason = err.Error()
			logger.GetLogger().Warn().
				Str("from", g.primary.Model()).
				Str("to", g.escalation.Model()).
				Int("failures", g.failures).
				Msg("Escalating to stronger model")
		}
		return nil, err
	}

	g.failures = 0
	if g.escalated {
		g.escalated = false
		g.reason = ""
		logger.GetLogger().Info().
			Str("to", g.primary.Model()).
			Msg("De-escalating back to primary model")
	}
	return resp, nil
}

// RecordFailure lets callers feed non-gateway failures (e.g. repeated tool
// errors) into the escalation counter.
func (g *Escalating) RecordFailure() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures++
	if !g.escalated && g.failures >= g.threshold {
		g.escalated = true
		g.reason = "recorded failures reached threshold"
	}
}
