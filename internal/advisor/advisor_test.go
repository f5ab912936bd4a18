package advisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kberard/vetloop/internal/loop"
	"github.com/kberard/vetloop/internal/types"
)

func TestParseVerdict(t *testing.T) {
	v, err := parseVerdict(`{"action": "resume", "root_cause": "flaky integration test", "confidence": 0.8}`)
	require.NoError(t, err)
	assert.Equal(t, "resume", v.Action)
	assert.Equal(t, "flaky integration test", v.RootCause)
}

func TestParseVerdictStripsFences(t *testing.T) {
	text := "Here is my analysis:\n```json\n{\"action\": \"abort\", \"root_cause\": \"missing dependency\", \"confidence\": 0.9}\n```\n"
	v, err := parseVerdict(text)
	require.NoError(t, err)
	assert.Equal(t, "abort", v.Action)
}

func TestParseVerdictRejectsProse(t *testing.T) {
	_, err := parseVerdict("I think you should resume.")
	require.Error(t, err)
}

func TestParseVerdictRejectsMissingAction(t *testing.T) {
	_, err := parseVerdict(`{"root_cause": "unclear"}`)
	require.Error(t, err)
}

func TestBuildPromptListsViolations(t *testing.T) {
	snap := loop.Snapshot{
		SessionID: "sess-1",
		Tier:      types.TierStandard,
		LoopIndex: 3,
		MaxLoops:  5,
		Violations: types.ViolationSet{
			{Category: "test", Identifier: "TestCheckout failed"},
			{Category: "lint", Identifier: "shadowed variable"},
		},
	}

	prompt := buildPrompt(snap)
	assert.Contains(t, prompt, "sess-1")
	assert.Contains(t, prompt, "STANDARD")
	assert.Contains(t, prompt, "test: TestCheckout failed")
	assert.Contains(t, prompt, "lint: shadowed variable")
	assert.Contains(t, prompt, `"resume" or "abort"`)
}

func TestNewAIAdvisorRequiresAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err := NewAIAdvisor("", 10)
	require.Error(t, err)
}
