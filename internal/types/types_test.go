package types

import (
	"testing"
)

func TestTierOrdering(t *testing.T) {
	if !(TierLight < TierStandard && TierStandard < TierThorough) {
		t.Fatal("tiers must be totally ordered LIGHT < STANDARD < THOROUGH")
	}
}

func TestTierString(t *testing.T) {
	cases := map[Tier]string{
		TierLight:    "LIGHT",
		TierStandard: "STANDARD",
		TierThorough: "THOROUGH",
	}
	for tier, want := range cases {
		if got := tier.String(); got != want {
			t.Errorf("Tier(%d).String() = %q, want %q", int(tier), got, want)
		}
	}
}

func TestParseTier(t *testing.T) {
	tier, err := ParseTier("thorough")
	if err != nil {
		t.Fatalf("ParseTier failed: %v", err)
	}
	if tier != TierThorough {
		t.Errorf("expected THOROUGH, got %s", tier)
	}

	if _, err := ParseTier("extreme"); err == nil {
		t.Error("expected error for unknown tier")
	}
}

func TestParseMode(t *testing.T) {
	cases := []struct {
		in   string
		want Mode
	}{
		{"", ModeNormal},
		{"normal", ModeNormal},
		{"verify-only", ModeVerifyOnly},
		{"dry-run", ModeDryRun},
	}
	for _, tc := range cases {
		got, err := ParseMode(tc.in)
		if err != nil {
			t.Fatalf("ParseMode(%q) failed: %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("ParseMode(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}

	if _, err := ParseMode("yolo"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestChangeMetricsValidate(t *testing.T) {
	valid := ChangeMetrics{FilesChanged: 3, LinesChanged: 50, LayersTouched: []string{"domain"}}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid metrics rejected: %v", err)
	}

	cases := []struct {
		name string
		m    ChangeMetrics
	}{
		{"negative files", ChangeMetrics{FilesChanged: -1}},
		{"negative lines", ChangeMetrics{LinesChanged: -5}},
		{"lines without files", ChangeMetrics{FilesChanged: 0, LinesChanged: 10}},
		{"empty layer id", ChangeMetrics{FilesChanged: 1, LayersTouched: []string{""}}},
		{"duplicate layer", ChangeMetrics{FilesChanged: 1, LayersTouched: []string{"domain", "domain"}}},
	}
	for _, tc := range cases {
		if err := tc.m.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestViolationSetEqual(t *testing.T) {
	a := ViolationSet{
		{Category: "architecture", Identifier: "layering"},
		{Category: "security", Identifier: "token-leak"},
	}
	b := ViolationSet{
		{Category: "security", Identifier: "token-leak"},
		{Category: "architecture", Identifier: "layering"},
	}
	if !a.Equal(b) {
		t.Error("order must not affect multiset equality")
	}

	// Multiset semantics: duplicates count.
	c := ViolationSet{
		{Category: "architecture", Identifier: "layering"},
		{Category: "architecture", Identifier: "layering"},
	}
	d := ViolationSet{
		{Category: "architecture", Identifier: "layering"},
	}
	if c.Equal(d) {
		t.Error("duplicate counts must be part of equality")
	}

	if !(ViolationSet{}).Equal(nil) {
		t.Error("empty and nil sets must compare equal")
	}
}

func TestToolingFailure(t *testing.T) {
	v := ToolingFailure("exit-137")
	if v.Empty() {
		t.Fatal("tooling failure must be a non-empty set")
	}
	if v[0].Category != ToolingCategory {
		t.Errorf("category = %q, want %q", v[0].Category, ToolingCategory)
	}
	if !v.Equal(ToolingFailure("exit-137")) {
		t.Error("identical tooling failures must compare equal")
	}
}

func TestSessionStateIdenticalStreak(t *testing.T) {
	s := NewSessionState("s1", TierThorough, ModeNormal, 5)
	if s.IdenticalStreak() != 0 {
		t.Errorf("empty history streak = %d, want 0", s.IdenticalStreak())
	}

	v := ViolationSet{{Category: "architecture", Identifier: "cycle"}}
	s.ViolationHistory = append(s.ViolationHistory, v)
	if s.IdenticalStreak() != 1 {
		t.Errorf("streak = %d, want 1", s.IdenticalStreak())
	}

	s.ViolationHistory = append(s.ViolationHistory, v, v)
	if s.IdenticalStreak() != 3 {
		t.Errorf("streak = %d, want 3", s.IdenticalStreak())
	}

	other := ViolationSet{{Category: "numeric", Identifier: "overflow"}}
	s.ViolationHistory = append(s.ViolationHistory, other)
	if s.IdenticalStreak() != 1 {
		t.Errorf("streak after different set = %d, want 1", s.IdenticalStreak())
	}
}

func TestSessionStateDefaults(t *testing.T) {
	s := NewSessionState("s1", TierLight, ModeNormal, 0)
	if s.MaxLoops != 1 {
		t.Errorf("MaxLoops = %d, want 1 (default when unspecified)", s.MaxLoops)
	}
	if s.Status != SessionRunning {
		t.Errorf("Status = %s, want RUNNING", s.Status)
	}
}

func TestLoadIndicatorBounds(t *testing.T) {
	s := NewSessionState("s1", TierThorough, ModeNormal, 3)
	s.LoopIndex = 3
	if got := s.LoadIndicator(); got < 0 || got > 100 {
		t.Errorf("load indicator out of range: %d", got)
	}
	s.LoopIndex = 99
	if got := s.LoadIndicator(); got != 100 {
		t.Errorf("saturated load = %d, want 100", got)
	}
}
