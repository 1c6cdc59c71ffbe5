package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sentinelhq/sentinel/internal/workflow"
	"github.com/sentinelhq/sentinel/templates"
)

func runWorkflows(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: sentinel workflows <init|list|validate|watch> [options]")
		os.Exit(1)
	}
	switch args[0] {
	case "init":
		runWorkflowsInit(args[1:])
	case "list":
		runWorkflowsList(args[1:])
	case "validate":
		runWorkflowsValidate(args[1:])
	case "watch":
		runWorkflowsWatch(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown workflows subcommand: %s\n", args[0])
		fmt.Fprintln(os.Stderr, "usage: sentinel workflows <init|list|validate|watch> [options]")
		os.Exit(1)
	}
}

// runWorkflowsInit writes the starter workflow definition and a recorded
// events file so a fresh checkout can run end to end. Existing files are
// left alone.
func runWorkflowsInit(args []string) {
	dir, _ := workflowsDirFlag("workflows init", args)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	targets := map[string]string{
		"workflows.yaml": filepath.Join(dir, "watch-and-alert.yaml"),
		"events.yaml":    "events.yaml",
	}
	for src, dst := range targets {
		if _, err := os.Stat(dst); err == nil {
			fmt.Printf("skip %s (exists)\n", dst)
			continue
		}
		data, err := templates.FS.ReadFile(src)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s\n", dst)
	}
	fmt.Println("try: sentinel run watch-and-alert -events events.yaml -dry-run")
}

func workflowsDirFlag(name string, args []string) (string, bool) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	dir := fs.String("dir", "workflows", "workflow definition directory")
	verbose := fs.Bool("verbose", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	return *dir, *verbose
}

func runWorkflowsList(args []string) {
	dir, _ := workflowsDirFlag("workflows list", args)

	defs, err := workflow.LoadDir(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if len(defs) == 0 {
		fmt.Println("no workflows defined")
		return
	}
	for _, def := range defs {
		name := def.Name
		if name == "" {
			name = "-"
		}
		fmt.Printf("%-24s %-32s %d steps\n", def.ID, name, len(def.Steps))
		for _, step := range def.Steps {
			marker := ""
			if step.Approve {
				marker = " (approved)"
			}
			fmt.Printf("    %s%s\n", step.TaskType(), marker)
		}
	}
}

func runWorkflowsValidate(args []string) {
	dir, _ := workflowsDirFlag("workflows validate", args)

	defs, err := workflow.LoadDir(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("ok: %d workflows\n", len(defs))
}

// runWorkflowsWatch keeps reloading the directory until interrupted; useful
// while editing definitions.
func runWorkflowsWatch(args []string) {
	dir, verbose := workflowsDirFlag("workflows watch", args)
	logger := newLogger(os.Stderr, verbose)

	registry := workflow.NewRegistry()
	watcher := workflow.NewWatcher(dir, registry, logger)
	if err := watcher.Start(); err != nil {
		logger.Error("start watcher", "error", err)
		os.Exit(1)
	}
	defer watcher.Close()

	logger.Info("watching workflow definitions", "dir", dir, "workflows", len(registry.IDs()))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
}
