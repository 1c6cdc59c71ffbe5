package policy

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Policy is an ordered rule set with a default action.
type Policy struct {
	ID            string
	Name          string
	DefaultAction Action

	rules []compiledRule
}

// compiledRule carries the insertion index for stable tie-breaking and any
// pre-compiled regex so evaluation never compiles patterns.
type compiledRule struct {
	Rule
	index int
	regex *regexp.Regexp
}

// New creates a policy. An empty default action falls back to deny.
func New(id, name string, defaultAction Action) *Policy {
	if defaultAction == "" {
		defaultAction = ActionDeny
	}
	return &Policy{ID: id, Name: name, DefaultAction: defaultAction}
}

// AddRule compiles and appends a rule. Regex conditions are validated here
// so a bad pattern surfaces at registration, not mid-run.
func (p *Policy) AddRule(r Rule) error {
	cr := compiledRule{Rule: r, index: len(p.rules)}
	if r.Condition.Operator == OpMatches {
		pattern, ok := r.Condition.Value.(string)
		if !ok {
			return fmt.Errorf("rule %s: matches operator requires a string pattern", r.ID)
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("rule %s: invalid regex: %w", r.ID, err)
		}
		cr.regex = re
	}
	p.rules = append(p.rules, cr)
	return nil
}

// MustAddRule is AddRule for statically-known rules (presets, tests).
func (p *Policy) MustAddRule(r Rule) {
	if err := p.AddRule(r); err != nil {
		panic(err)
	}
}

// Rules returns the rules in evaluation order.
func (p *Policy) Rules() []Rule {
	ordered := p.ordered()
	out := make([]Rule, len(ordered))
	for i, cr := range ordered {
		out[i] = cr.Rule
	}
	return out
}

func (p *Policy) ordered() []compiledRule {
	ordered := append([]compiledRule(nil), p.rules...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority > ordered[j].Priority
		}
		return ordered[i].index < ordered[j].index
	})
	return ordered
}

// Evaluate runs the rules in descending priority order; the first matching
// rule decides the outcome. With no match the default action applies.
func (p *Policy) Evaluate(agent Agent, capability string, params map[string]any) Decision {
	for _, cr := range p.ordered() {
		if cr.matches(agent, capability, params) {
			rule := cr.Rule
			return Decision{
				Allowed: rule.Action == ActionAllow,
				Action:  rule.Action,
				Rule:    &rule,
				Reason:  fmt.Sprintf("rule %s matched: %s", rule.ID, rule.Action),
			}
		}
	}
	return Decision{
		Allowed: p.DefaultAction == ActionAllow,
		Action:  p.DefaultAction,
		Reason:  fmt.Sprintf("no rule matched, default action: %s", p.DefaultAction),
	}
}

func (cr *compiledRule) matches(agent Agent, capability string, params map[string]any) bool {
	c := cr.Condition
	switch c.Type {
	case ConditionCapability:
		return matchString(capability, c.Operator, c.Value, cr.regex)
	case ConditionAgentRole:
		return matchRole(agent.Role, c.Operator, c.Value)
	case ConditionCustomField:
		value, ok := params[c.Field]
		if !ok {
			return false
		}
		return matchField(value, c.Operator, c.Value)
	default:
		return false
	}
}

func matchString(got string, op Operator, want any, re *regexp.Regexp) bool {
	switch op {
	case OpEquals:
		return got == fmt.Sprintf("%v", want)
	case OpContains:
		return strings.Contains(got, fmt.Sprintf("%v", want))
	case OpMatches:
		return re != nil && re.MatchString(got)
	default:
		return false
	}
}

// matchRole treats contains with a list operand as set membership.
func matchRole(role string, op Operator, want any) bool {
	switch op {
	case OpEquals:
		return role == fmt.Sprintf("%v", want)
	case OpContains:
		switch set := want.(type) {
		case []string:
			for _, member := range set {
				if role == member {
					return true
				}
			}
		case []any:
			for _, member := range set {
				if role == fmt.Sprintf("%v", member) {
					return true
				}
			}
		}
		return false
	default:
		return false
	}
}

func matchField(got any, op Operator, want any) bool {
	switch op {
	case OpEquals:
		return fmt.Sprintf("%v", got) == fmt.Sprintf("%v", want)
	case OpContains:
		return strings.Contains(fmt.Sprintf("%v", got), fmt.Sprintf("%v", want))
	case OpGT, OpGTE, OpLT, OpLTE:
		gotNum, err1 := toFloat64(got)
		wantNum, err2 := toFloat64(want)
		// non-numeric operands never match, and never error
		if err1 != nil || err2 != nil {
			return false
		}
		switch op {
		case OpGT:
			return gotNum > wantNum
		case OpGTE:
			return gotNum >= wantNum
		case OpLT:
			return gotNum < wantNum
		default:
			return gotNum <= wantNum
		}
	default:
		return false
	}
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(n, 64)
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}
