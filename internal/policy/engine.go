package policy

import (
	"fmt"
	"log/slog"
	"sync"
)

// Engine resolves which policy governs an agent and evaluates calls against
// it. Instances are constructed at the composition root and injected; there
// is no shared global engine.
type Engine struct {
	mu            sync.RWMutex
	policies      map[string]*Policy
	assignments   map[string]string // agent id → policy id
	defaultPolicy string
	strict        bool
	logger        *slog.Logger
}

type EngineOption func(*Engine)

// WithStrictMode denies outright when an agent has no assigned policy and no
// default policy is configured.
func WithStrictMode() EngineOption {
	return func(e *Engine) { e.strict = true }
}

func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		policies:    make(map[string]*Policy),
		assignments: make(map[string]string),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

func (e *Engine) RegisterPolicy(p *Policy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policies[p.ID] = p
}

// UnregisterPolicy removes a policy. It returns false — and leaves the
// policy in place — while any agent is still assigned to it, so an in-use
// policy can never be orphaned.
func (e *Engine) UnregisterPolicy(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.policies[id]; !exists {
		return false
	}
	for _, assigned := range e.assignments {
		if assigned == id {
			return false
		}
	}
	if e.defaultPolicy == id {
		return false
	}
	delete(e.policies, id)
	return true
}

func (e *Engine) AssignPolicy(agentID, policyID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.policies[policyID]; !exists {
		return fmt.Errorf("%w: %s", ErrPolicyNotFound, policyID)
	}
	e.assignments[agentID] = policyID
	return nil
}

func (e *Engine) SetDefaultPolicy(policyID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.policies[policyID]; !exists {
		return fmt.Errorf("%w: %s", ErrPolicyNotFound, policyID)
	}
	e.defaultPolicy = policyID
	return nil
}

// Evaluate resolves the agent's policy (assignment, then default) and
// evaluates the call. With neither in place: strict mode denies, otherwise
// the call is allowed with a recorded reason.
func (e *Engine) Evaluate(agent Agent, capability string, params map[string]any) Decision {
	e.mu.RLock()
	policyID, assigned := e.assignments[agent.ID]
	if !assigned {
		policyID = e.defaultPolicy
	}
	p := e.policies[policyID]
	strict := e.strict
	e.mu.RUnlock()

	if p == nil {
		if strict {
			return Decision{
				Allowed: false,
				Action:  ActionDeny,
				Reason:  fmt.Sprintf("no policy assigned to agent %s (strict mode)", agent.ID),
			}
		}
		return Decision{
			Allowed: true,
			Action:  ActionAllow,
			Reason:  fmt.Sprintf("no policy assigned to agent %s", agent.ID),
		}
	}

	decision := p.Evaluate(agent, capability, params)
	e.logger.Debug("policy evaluated",
		"agent", agent.ID, "capability", capability,
		"policy", p.ID, "action", decision.Action, "reason", decision.Reason)
	return decision
}

// CheckPermission is a boolean convenience over Evaluate.
func (e *Engine) CheckPermission(agent Agent, capability string, params map[string]any) bool {
	return e.Evaluate(agent, capability, params).Allowed
}
