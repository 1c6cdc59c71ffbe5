package policy

// Preset policies. These are plain data builders on top of New/AddRule,
// not separate mechanisms.

// ReadOnly allows anything whose capability name suggests a read
// (read/get/list/watch) and denies everything else.
func ReadOnly() *Policy {
	p := New("read-only", "Read Only", ActionDeny)
	for i, verb := range []string{"read", "get", "list", "watch"} {
		p.MustAddRule(Rule{
			ID:        "allow-" + verb,
			Condition: Condition{Type: ConditionCapability, Operator: OpContains, Value: verb},
			Action:    ActionAllow,
			Priority:  10 - i,
		})
	}
	return p
}

// ApprovalRequired routes every call through approval: no rules, default
// require_approval.
func ApprovalRequired() *Policy {
	return New("approval-required", "Approval Required", ActionRequireApproval)
}

// Executor gates execute-style calls behind approval but lets reporting
// side effects through directly.
func Executor() *Policy {
	p := New("executor", "Executor", ActionDeny)
	p.MustAddRule(Rule{
		ID:        "approve-execute",
		Condition: Condition{Type: ConditionCapability, Operator: OpContains, Value: "execute"},
		Action:    ActionRequireApproval,
		Priority:  20,
	})
	p.MustAddRule(Rule{
		ID:        "allow-webhook",
		Condition: Condition{Type: ConditionCapability, Operator: OpContains, Value: "webhook"},
		Action:    ActionAllow,
		Priority:  10,
	})
	p.MustAddRule(Rule{
		ID:        "allow-report-write",
		Condition: Condition{Type: ConditionCapability, Operator: OpMatches, Value: `write.*report`},
		Action:    ActionAllow,
		Priority:  10,
	})
	return p
}
