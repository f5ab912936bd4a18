// Package health runs the dependency checks behind 'vetloop doctor': the
// verify and fix commands resolve on PATH, the state database is writable,
// and the external verify tool meets the minimum version.
package health

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/google/shlex"
	"golang.org/x/mod/semver"

	"github.com/kberard/vetloop/internal/config"
	"github.com/kberard/vetloop/internal/storage"
)

// CheckResult represents the result of a single health check.
type CheckResult struct {
	Name    string
	Passed  bool
	Message string
}

// Report contains all health check results.
type Report struct {
	Checks []CheckResult
	Passed bool
}

func (r *Report) add(c CheckResult) {
	r.Checks = append(r.Checks, c)
	if !c.Passed {
		r.Passed = false
	}
}

// RunChecks runs all health checks against the configuration.
func RunChecks(ctx context.Context, cfg *config.Configuration) *Report {
	report := &Report{Passed: true}

	report.add(checkCommand("verify command (light)", cfg.Verify.Light))
	report.add(checkCommand("verify command (standard)", cfg.Verify.Standard))
	report.add(checkCommand("verify command (thorough)", cfg.Verify.Thorough))
	if cfg.Fix != "" {
		report.add(checkCommand("fix command", cfg.Fix))
	}
	report.add(checkDatabase(cfg.DBPath))
	if cfg.MinToolVersion != "" {
		report.add(checkToolVersion(ctx, cfg))
	}

	return report
}

// checkCommand verifies the command's binary resolves on PATH.
func checkCommand(name, command string) CheckResult {
	if strings.TrimSpace(command) == "" {
		return CheckResult{Name: name, Passed: false, Message: "not configured"}
	}
	args, err := shlex.Split(command)
	if err != nil || len(args) == 0 {
		return CheckResult{Name: name, Passed: false, Message: fmt.Sprintf("unparseable command %q", command)}
	}
	if _, err := exec.LookPath(args[0]); err != nil {
		return CheckResult{Name: name, Passed: false, Message: fmt.Sprintf("%q not found in PATH", args[0])}
	}
	return CheckResult{Name: name, Passed: true, Message: args[0] + " found"}
}

// checkDatabase opens the state database read-write.
func checkDatabase(path string) CheckResult {
	store, err := storage.Open(path)
	if err != nil {
		return CheckResult{Name: "state database", Passed: false, Message: err.Error()}
	}
	defer store.Close()
	return CheckResult{Name: "state database", Passed: true, Message: path + " writable"}
}

// checkToolVersion runs "<tool> --version" on the thorough verify command's
// binary and compares against the configured minimum using semver.
func checkToolVersion(ctx context.Context, cfg *config.Configuration) CheckResult {
	name := "verify tool version"
	min := cfg.MinToolVersion
	if !semver.IsValid(min) {
		return CheckResult{Name: name, Passed: false, Message: fmt.Sprintf("min_tool_version %q is not valid semver", min)}
	}

	args, err := shlex.Split(cfg.Verify.Thorough)
	if err != nil || len(args) == 0 {
		return CheckResult{Name: name, Passed: false, Message: "thorough verify command is not configured"}
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	output, err := exec.CommandContext(ctx, args[0], "--version").Output()
	if err != nil {
		return CheckResult{Name: name, Passed: false, Message: fmt.Sprintf("%s --version failed: %v", args[0], err)}
	}

	version := ExtractVersion(string(output))
	if version == "" {
		return CheckResult{Name: name, Passed: false, Message: "no version found in --version output"}
	}
	if semver.Compare(version, min) < 0 {
		return CheckResult{Name: name, Passed: false, Message: fmt.Sprintf("found %s, need %s or newer", version, min)}
	}
	return CheckResult{Name: name, Passed: true, Message: version}
}

// ExtractVersion pulls the first vX.Y[.Z] token out of free-form version
// output. Tokens without the leading v are accepted and normalized.
func ExtractVersion(output string) string {
	for _, field := range strings.Fields(output) {
		candidate := field
		if !strings.HasPrefix(candidate, "v") {
			candidate = "v" + candidate
		}
		candidate = strings.TrimRight(candidate, ",;")
		if semver.IsValid(candidate) {
			return candidate
		}
	}
	return ""
}
