// Package verifier runs the configured verification and fix commands and
// turns their output into violation sets. Commands are tier-specific: each
// tier maps to one shell-free command line run in the change's directory.
package verifier

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/google/shlex"

	"github.com/kberard/vetloop/internal/loop"
	"github.com/kberard/vetloop/internal/types"
)

// DefaultTimeout bounds a single command run.
const DefaultTimeout = 10 * time.Minute

// Commands maps each tier to its command line.
type Commands struct {
	Light    string
	Standard string
	Thorough string
}

// ForTier returns the command for a tier. Tiers without a command fall back
// to the next deeper one, so a config with only a thorough command still
// verifies everywhere.
func (c Commands) ForTier(tier types.Tier) string {
	order := []string{c.Light, c.Standard, c.Thorough}
	for i := int(tier); i < len(order); i++ {
		if order[i] != "" {
			return order[i]
		}
	}
	return ""
}

// CommandVerifier implements loop.Verifier by running the tier's command.
//
// Violations are read from stdout, one per line, in the form
// "category: identifier". Lines that do not match are ignored, so the
// underlying tool's ordinary output can pass through untouched. A command
// that exits non-zero without reporting any violation is a tooling failure
// and surfaces as an error.
type CommandVerifier struct {
	Commands Commands
	Timeout  time.Duration
}

// NewCommandVerifier creates a verifier with the default timeout.
func NewCommandVerifier(cmds Commands) *CommandVerifier {
	return &CommandVerifier{Commands: cmds, Timeout: DefaultTimeout}
}

// Verify runs one pass at the given tier.
func (v *CommandVerifier) Verify(ctx context.Context, tier types.Tier, scope loop.Scope) (types.ViolationSet, error) {
	command := v.Commands.ForTier(tier)
	if command == "" {
		return nil, fmt.Errorf("no verify command configured for tier %s", tier)
	}

	output, runErr := v.run(ctx, command, scope)
	violations := ParseViolations(output)

	if runErr != nil {
		if len(violations) > 0 {
			// The tool found problems and exited non-zero: that is a
			// verification result, not a tooling failure.
			return violations, nil
		}
		return nil, fmt.Errorf("verify command %q: %w", command, runErr)
	}
	return violations, nil
}

func (v *CommandVerifier) run(ctx context.Context, command string, scope loop.Scope) ([]byte, error) {
	timeout := v.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("parsing command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = scope.Dir
	if len(scope.Layers) > 0 {
		cmd.Env = append(cmd.Environ(), "VETLOOP_LAYERS="+strings.Join(scope.Layers, ","))
	}

	return cmd.CombinedOutput()
}

// ParseViolations extracts "category: identifier" lines from command output.
// Category must be a single lowercase word; everything after the colon is
// the identifier. Duplicate lines stay duplicated, matching the multiset
// semantics of violation sets.
func ParseViolations(output []byte) types.ViolationSet {
	var violations types.ViolationSet

	scanner := bufio.NewScanner(bytes.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		category, identifier, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		category = strings.TrimSpace(category)
		identifier = strings.TrimSpace(identifier)
		if !isCategoryWord(category) || identifier == "" {
			continue
		}
		violations = append(violations, types.Violation{
			Category:   category,
			Identifier: identifier,
		})
	}
	return violations
}

func isCategoryWord(s string) bool {
	if s == "" || len(s) > 32 {
		return false
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && r != '_' && r != '-' {
			return false
		}
	}
	return true
}

// CommandFixer implements loop.Fixer by running a single configured fix
// command. The violations are passed on stdin, one "category: identifier"
// line each, so the tool knows what to repair.
type CommandFixer struct {
	Command string
	Timeout time.Duration
}

// NewCommandFixer creates a fixer with the default timeout.
func NewCommandFixer(command string) *CommandFixer {
	return &CommandFixer{Command: command, Timeout: DefaultTimeout}
}

// Fix runs the fix command. The scope is returned unchanged; narrowing is
// the tool's job, not ours.
func (f *CommandFixer) Fix(ctx context.Context, violations types.ViolationSet, scope loop.Scope) (loop.Scope, error) {
	if f.Command == "" {
		return scope, fmt.Errorf("no fix command configured")
	}

	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args, err := shlex.Split(f.Command)
	if err != nil {
		return scope, fmt.Errorf("parsing fix command: %w", err)
	}
	if len(args) == 0 {
		return scope, fmt.Errorf("empty fix command")
	}

	var stdin bytes.Buffer
	for _, violation := range violations {
		fmt.Fprintf(&stdin, "%s: %s\n", violation.Category, violation.Identifier)
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = scope.Dir
	cmd.Stdin = &stdin

	if output, err := cmd.CombinedOutput(); err != nil {
		return scope, fmt.Errorf("fix command %q: %w (%s)", f.Command, err, firstLine(output))
	}
	return scope, nil
}

func firstLine(output []byte) string {
	line, _, _ := bytes.Cut(bytes.TrimSpace(output), []byte("\n"))
	return string(line)
}
