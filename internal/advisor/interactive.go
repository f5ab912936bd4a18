package advisor

import (
	"context"
	"fmt"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/kberard/vetloop/internal/loop"
)

// InteractiveAdvisor implements loop.RootCauseDecider by asking the operator
// on the terminal. Used when the advisor mode is "interactive".
type InteractiveAdvisor struct {
	// Prompt overrides the readline prompt (tests).
	Prompt string
}

// NewInteractiveAdvisor creates a terminal advisor.
func NewInteractiveAdvisor() *InteractiveAdvisor {
	return &InteractiveAdvisor{}
}

// Decide shows the repeated violations and reads "resume" or "abort". EOF
// and interrupt both abort: walking away from a suspended session must never
// silently resume it.
func (a *InteractiveAdvisor) Decide(ctx context.Context, snap loop.Snapshot) (loop.Decision, error) {
	yellow := color.New(color.FgYellow)
	yellow.Printf("\nCircuit breaker: identical violations on 3 consecutive passes (session %s, tier %s)\n", snap.SessionID, snap.Tier)
	for _, violation := range snap.Violations {
		fmt.Printf("  - %s: %s\n", violation.Category, violation.Identifier)
	}
	fmt.Printf("Iterations used: %d of %d\n\n", snap.LoopIndex, snap.MaxLoops)

	prompt := a.Prompt
	if prompt == "" {
		prompt = "resume or abort? "
	}
	rl, err := readline.New(prompt)
	if err != nil {
		return loop.DecisionAbort, fmt.Errorf("opening terminal prompt: %w", err)
	}
	defer rl.Close()

	for {
		if err := ctx.Err(); err != nil {
			return loop.DecisionAbort, err
		}

		line, err := rl.Readline()
		if err != nil {
			// readline.ErrInterrupt or io.EOF
			return loop.DecisionAbort, nil
		}

		switch strings.ToLower(strings.TrimSpace(line)) {
		case "resume", "r":
			return loop.DecisionResume, nil
		case "abort", "a", "q", "quit":
			return loop.DecisionAbort, nil
		case "":
			continue
		default:
			fmt.Println("type 'resume' or 'abort'")
		}
	}
}
