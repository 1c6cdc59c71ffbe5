package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/sentinelhq/sentinel/internal/policy"
)

func runPolicy(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: sentinel policy check <capability:action> [options]")
		os.Exit(1)
	}
	switch args[0] {
	case "check":
		runPolicyCheck(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown policy subcommand: %s\n", args[0])
		fmt.Fprintln(os.Stderr, "usage: sentinel policy check <capability:action> [options]")
		os.Exit(1)
	}
}

func runPolicyCheck(args []string) {
	if len(args) < 1 || strings.HasPrefix(args[0], "-") {
		fmt.Fprintln(os.Stderr, "usage: sentinel policy check <capability:action> [options]")
		os.Exit(1)
	}
	capabilityName := args[0]

	fs := flag.NewFlagSet("policy check", flag.ExitOnError)
	policyID := fs.String("policy", "executor", "preset policy id (read-only, approval-required, executor)")
	agentID := fs.String("agent", "sentinel-cli", "agent id")
	role := fs.String("role", "operator", "agent role")
	params := kvFlag{}
	fs.Var(params, "param", "call parameter k=v (repeatable)")
	if err := fs.Parse(args[1:]); err != nil {
		os.Exit(1)
	}

	engine := policy.NewEngine()
	engine.RegisterPolicy(policy.ReadOnly())
	engine.RegisterPolicy(policy.ApprovalRequired())
	engine.RegisterPolicy(policy.Executor())
	if err := engine.SetDefaultPolicy(*policyID); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	callParams := make(map[string]any, len(params))
	for k, v := range params {
		callParams[k] = v
	}

	decision := engine.Evaluate(policy.Agent{ID: *agentID, Role: *role}, capabilityName, callParams)

	fmt.Printf("policy:   %s\n", *policyID)
	fmt.Printf("call:     %s by %s (%s)\n", capabilityName, *agentID, *role)
	fmt.Printf("decision: %s\n", decision.Action)
	fmt.Printf("reason:   %s\n", decision.Reason)
	if !decision.Allowed && decision.Action == policy.ActionDeny {
		os.Exit(1)
	}
}
