// Package policy implements the rule-based authorizer consulted before every
// capability call.
package policy

import "errors"

// ErrPolicyNotFound is returned when a referenced policy id is unknown.
var ErrPolicyNotFound = errors.New("policy not found")

// ErrPolicyDenied marks a capability call refused by the engine. It is a
// refusal for callers to handle, not a fault.
var ErrPolicyDenied = errors.New("denied by policy")

type ConditionType string

const (
	ConditionCapability  ConditionType = "capability"
	ConditionAgentRole   ConditionType = "agent_role"
	ConditionCustomField ConditionType = "custom_field"
)

type Operator string

const (
	OpEquals   Operator = "equals"
	OpContains Operator = "contains"
	OpMatches  Operator = "matches"
	OpGT       Operator = "gt"
	OpGTE      Operator = "gte"
	OpLT       Operator = "lt"
	OpLTE      Operator = "lte"
)

type Action string

const (
	ActionAllow           Action = "allow"
	ActionDeny            Action = "deny"
	ActionRequireApproval Action = "require_approval"
)

// Condition is what a rule tests. Field is only meaningful for
// custom_field conditions; Value is the expected operand.
type Condition struct {
	Type     ConditionType `yaml:"type"`
	Field    string        `yaml:"field,omitempty"`
	Operator Operator      `yaml:"operator"`
	Value    any           `yaml:"value"`
}

// Rule pairs a condition with an action. Higher priority evaluates first;
// ties resolve in insertion order.
type Rule struct {
	ID          string    `yaml:"id"`
	Description string    `yaml:"description,omitempty"`
	Condition   Condition `yaml:"condition"`
	Action      Action    `yaml:"action"`
	Priority    int       `yaml:"priority"`
}

// Agent identifies a caller to the engine.
type Agent struct {
	ID   string
	Role string
}

// Decision is the outcome of an evaluation.
type Decision struct {
	Allowed bool
	Action  Action
	Rule    *Rule // nil when the default action applied
	Reason  string
}
