package main

import (
	"fmt"
	"os"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runRun(os.Args[2:])
	case "workflows":
		runWorkflows(os.Args[2:])
	case "policy":
		runPolicy(os.Args[2:])
	case "version":
		fmt.Printf("sentinel %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`sentinel - workflow orchestration for autonomous agents

Usage:
  sentinel run <workflow-id> [options]   execute a workflow
  sentinel workflows init [options]      write starter workflow and events files
  sentinel workflows <list|validate>     inspect workflow definitions
  sentinel policy check [options]        evaluate a capability call against a policy
  sentinel version                       print version
  sentinel help                          show this help

Run options:
  -workflows <dir>   workflow definition directory (default ./workflows)
  -data <dir>        run snapshot directory (default ./.sentinel)
  -events <file>     YAML file with events served to the observe capability
  -input k=v         run input entry, repeatable
  -policy <id>       preset policy: read-only, approval-required, executor
  -dry-run           propose side effects without executing them
  -auto-approve      execute proposed actions without prompting
  -verbose           debug logging

During a run Ctrl-C cancels the active run and its tasks.
`)
}
