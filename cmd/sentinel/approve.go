package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/sentinelhq/sentinel/internal/model"
)

// terminalApprover prompts on stdin for each proposed action. Without an
// attached terminal it refuses, which the executor records as requiring
// approval.
type terminalApprover struct {
	in  *bufio.Reader
	out *os.File
}

func newTerminalApprover() *terminalApprover {
	return &terminalApprover{
		in:  bufio.NewReader(os.Stdin),
		out: os.Stderr,
	}
}

func (a *terminalApprover) Approve(ctx context.Context, action *model.Action) (bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, fmt.Errorf("stdin is not a terminal")
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	fmt.Fprintf(a.out, "Execute action %s (%s)?", action.ID, action.Type)
	if action.Reason != "" {
		fmt.Fprintf(a.out, " reason: %s", action.Reason)
	}
	fmt.Fprint(a.out, " [y/N]: ")

	line, err := a.in.ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("read approval: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
