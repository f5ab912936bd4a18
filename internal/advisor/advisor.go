// Package advisor supplies the root-cause decision after a circuit break.
// Two implementations: an AI advisor that asks a model whether the stuck
// session is worth resuming, and an interactive advisor that asks the
// operator on the terminal. Both are consulted only when the loop suspends.
package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"

	"github.com/kberard/vetloop/internal/loop"
)

// DefaultModel is the model used when the config does not name one.
const DefaultModel = "claude-sonnet-4-5-20250929"

// verdict is the JSON contract the model must answer with.
type verdict struct {
	Action    string  `json:"action"`     // "resume" or "abort"
	RootCause string  `json:"root_cause"` // one-line diagnosis
	Confidence float64 `json:"confidence"`
}

// AIAdvisor implements loop.RootCauseDecider against the Anthropic API.
type AIAdvisor struct {
	client  *anthropic.Client
	model   string
	limiter *rate.Limiter

	// LastRootCause holds the diagnosis from the most recent decision, for
	// display after the loop returns.
	LastRootCause string
}

// NewAIAdvisor creates an advisor. requestsPerMinute <= 0 disables rate
// limiting. Requires ANTHROPIC_API_KEY in the environment.
func NewAIAdvisor(model string, requestsPerMinute int) (*AIAdvisor, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is required for the ai advisor")
	}
	if model == "" {
		model = DefaultModel
	}
	var limiter *rate.Limiter
	if requestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), 1)
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AIAdvisor{
		client:  &client,
		model:   model,
		limiter: limiter,
	}, nil
}

// Decide asks the model whether the session is worth resuming. Any API or
// parse failure is returned as an error; the loop then stays suspended
// rather than guessing.
func (a *AIAdvisor) Decide(ctx context.Context, snap loop.Snapshot) (loop.Decision, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return loop.DecisionAbort, err
		}
	}

	prompt := buildPrompt(snap)
	response, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return loop.DecisionAbort, fmt.Errorf("root-cause API call failed: %w", err)
	}

	var text string
	for _, block := range response.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	v, err := parseVerdict(text)
	if err != nil {
		return loop.DecisionAbort, err
	}
	a.LastRootCause = v.RootCause

	switch strings.ToLower(v.Action) {
	case "resume":
		return loop.DecisionResume, nil
	case "abort":
		return loop.DecisionAbort, nil
	default:
		return loop.DecisionAbort, fmt.Errorf("unexpected action %q in root-cause verdict", v.Action)
	}
}

func buildPrompt(snap loop.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are diagnosing a stuck automated verification loop.

The same violation set has been reported on 3 consecutive passes, so the
loop suspended itself. Decide whether resuming the fix/verify cycle has a
realistic chance of clearing the violations, or whether a human must step in.

Session: %s
Tier: %s
Iterations used: %d of %d

Repeated violations:
`, snap.SessionID, snap.Tier, snap.LoopIndex, snap.MaxLoops)
	for _, violation := range snap.Violations {
		fmt.Fprintf(&b, "- %s: %s\n", violation.Category, violation.Identifier)
	}
	b.WriteString(`
Respond with ONLY a JSON object, no prose, no markdown fences:
{"action": "resume" or "abort", "root_cause": "<one line>", "confidence": 0.0-1.0}
`)
	return b.String()
}

// parseVerdict tolerates markdown fences and surrounding chatter by
// extracting the first JSON object from the text.
func parseVerdict(text string) (verdict, error) {
	var v verdict

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return v, fmt.Errorf("no JSON object in root-cause response")
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &v); err != nil {
		return v, fmt.Errorf("parsing root-cause verdict: %w", err)
	}
	if v.Action == "" {
		return v, fmt.Errorf("root-cause verdict missing action")
	}
	return v, nil
}
