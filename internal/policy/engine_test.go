package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineResolvesAssignedPolicy(t *testing.T) {
	e := NewEngine()
	e.RegisterPolicy(ReadOnly())
	require.NoError(t, e.AssignPolicy("agent-1", "read-only"))

	agent := Agent{ID: "agent-1", Role: "worker"}
	assert.True(t, e.CheckPermission(agent, "chain:watch", nil))
	assert.False(t, e.CheckPermission(agent, "chain:execute", nil))
}

func TestEngineFallsBackToDefaultPolicy(t *testing.T) {
	e := NewEngine()
	e.RegisterPolicy(ApprovalRequired())
	require.NoError(t, e.SetDefaultPolicy("approval-required"))

	d := e.Evaluate(Agent{ID: "unassigned"}, "act:execute", nil)
	assert.False(t, d.Allowed)
	assert.Equal(t, ActionRequireApproval, d.Action)
}

func TestEngineStrictModeDeniesUnassigned(t *testing.T) {
	strict := NewEngine(WithStrictMode())
	d := strict.Evaluate(Agent{ID: "ghost"}, "observe:watch", nil)
	assert.False(t, d.Allowed)
	assert.Equal(t, ActionDeny, d.Action)

	lax := NewEngine()
	assert.True(t, lax.CheckPermission(Agent{ID: "ghost"}, "observe:watch", nil))
}

func TestEngineAssignUnknownPolicy(t *testing.T) {
	e := NewEngine()
	assert.ErrorIs(t, e.AssignPolicy("agent-1", "nope"), ErrPolicyNotFound)
	assert.ErrorIs(t, e.SetDefaultPolicy("nope"), ErrPolicyNotFound)
}

func TestEngineUnregisterRefusesWhileAssigned(t *testing.T) {
	e := NewEngine()
	e.RegisterPolicy(ReadOnly())
	require.NoError(t, e.AssignPolicy("agent-1", "read-only"))

	assert.False(t, e.UnregisterPolicy("read-only"), "in-use policy must not be orphaned")

	// still enforced
	assert.False(t, e.CheckPermission(Agent{ID: "agent-1"}, "chain:execute", nil))
}

func TestEngineUnregisterFreePolicy(t *testing.T) {
	e := NewEngine()
	e.RegisterPolicy(Executor())
	assert.True(t, e.UnregisterPolicy("executor"))
	assert.False(t, e.UnregisterPolicy("executor"), "second unregister finds nothing")
}

func TestPresetReadOnly(t *testing.T) {
	p := ReadOnly()
	agent := Agent{ID: "a"}

	for _, capability := range []string{"store:read", "tasks:get", "runs:list", "chain:watch"} {
		assert.True(t, p.Evaluate(agent, capability, nil).Allowed, capability)
	}
	for _, capability := range []string{"chain:execute", "file:write", "act:notify"} {
		assert.False(t, p.Evaluate(agent, capability, nil).Allowed, capability)
	}
}

func TestPresetExecutor(t *testing.T) {
	p := Executor()
	agent := Agent{ID: "a"}

	d := p.Evaluate(agent, "chain:execute", nil)
	assert.Equal(t, ActionRequireApproval, d.Action)

	assert.True(t, p.Evaluate(agent, "notify:webhook", nil).Allowed)
	assert.True(t, p.Evaluate(agent, "file:write-to-reports", nil).Allowed)
	assert.False(t, p.Evaluate(agent, "file:delete", nil).Allowed)
}
