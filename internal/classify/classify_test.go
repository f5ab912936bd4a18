package classify

import (
	"testing"

	"github.com/kberard/vetloop/internal/types"
)

func TestClassifyRuleOrder(t *testing.T) {
	c := NewClassifier(nil)

	cases := []struct {
		name         string
		m            types.ChangeMetrics
		wantSignal   types.RiskSignal
		wantCritical bool
	}{
		{
			name:         "size rule fires first even with keywords",
			m:            types.ChangeMetrics{FilesChanged: 25, LinesChanged: 2000, LayersTouched: []string{"domain"}, KeywordHits: []string{"auth"}},
			wantSignal:   types.RiskArchitectural,
			wantCritical: true,
		},
		{
			name:       "security keyword",
			m:          types.ChangeMetrics{FilesChanged: 2, LinesChanged: 10, LayersTouched: []string{"domain"}, KeywordHits: []string{"token"}},
			wantSignal: types.RiskSecurity,
		},
		{
			name:       "keyword matching is substring-based",
			m:          types.ChangeMetrics{FilesChanged: 1, LinesChanged: 5, LayersTouched: []string{"domain"}, KeywordHits: []string{"authentication"}},
			wantSignal: types.RiskSecurity,
		},
		{
			name:       "multi-layer is architectural",
			m:          types.ChangeMetrics{FilesChanged: 3, LinesChanged: 40, LayersTouched: []string{"domain", "infra"}},
			wantSignal: types.RiskArchitectural,
		},
		{
			name:       "caller architecture flag is architectural",
			m:          types.ChangeMetrics{FilesChanged: 1, LinesChanged: 5, LayersTouched: []string{"domain"}, ArchitectureFlagged: true},
			wantSignal: types.RiskArchitectural,
		},
		{
			name:       "small single-layer change is low",
			m:          types.ChangeMetrics{FilesChanged: 4, LinesChanged: 99, LayersTouched: []string{"domain"}},
			wantSignal: types.RiskLow,
		},
		{
			name:       "off-by-one on files falls through to default",
			m:          types.ChangeMetrics{FilesChanged: 5, LinesChanged: 99, LayersTouched: []string{"domain"}},
			wantSignal: types.RiskArchitectural,
		},
		{
			name:       "off-by-one on lines falls through to default",
			m:          types.ChangeMetrics{FilesChanged: 4, LinesChanged: 100, LayersTouched: []string{"domain"}},
			wantSignal: types.RiskArchitectural,
		},
		{
			name:       "no layer info defaults conservative",
			m:          types.ChangeMetrics{FilesChanged: 2, LinesChanged: 10},
			wantSignal: types.RiskArchitectural,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a, err := c.Classify(tc.m)
			if err != nil {
				t.Fatalf("Classify failed: %v", err)
			}
			if a.Signal != tc.wantSignal {
				t.Errorf("signal = %s, want %s", a.Signal, tc.wantSignal)
			}
			if a.SizeCritical != tc.wantCritical {
				t.Errorf("sizeCritical = %v, want %v", a.SizeCritical, tc.wantCritical)
			}
		})
	}
}

func TestClassifyIsPure(t *testing.T) {
	c := NewClassifier(nil)
	m := types.ChangeMetrics{FilesChanged: 3, LinesChanged: 30, LayersTouched: []string{"domain"}}
	first, err := c.Classify(m)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		again, err := c.Classify(m)
		if err != nil {
			t.Fatal(err)
		}
		if again != first {
			t.Fatalf("classification is not deterministic: %+v vs %+v", again, first)
		}
	}
}

func TestClassifyRejectsMalformedMetrics(t *testing.T) {
	c := NewClassifier(nil)
	if _, err := c.Classify(types.ChangeMetrics{FilesChanged: -1}); err == nil {
		t.Fatal("malformed metrics must fail fast, no signal selected")
	}
}

func TestClassifyExtraKeywords(t *testing.T) {
	c := NewClassifier([]string{"pii"})
	a, err := c.Classify(types.ChangeMetrics{FilesChanged: 1, LinesChanged: 2, LayersTouched: []string{"domain"}, KeywordHits: []string{"pii"}})
	if err != nil {
		t.Fatal(err)
	}
	if a.Signal != types.RiskSecurity {
		t.Errorf("configured keyword should classify as SECURITY, got %s", a.Signal)
	}
}

func TestSelectTier(t *testing.T) {
	cases := []struct {
		name         string
		a            Assessment
		explicitLoop bool
		want         types.Tier
	}{
		{"security is thorough", Assessment{Signal: types.RiskSecurity}, false, types.TierThorough},
		{"size-critical architectural is thorough", Assessment{Signal: types.RiskArchitectural, SizeCritical: true}, false, types.TierThorough},
		{"architectural is standard", Assessment{Signal: types.RiskArchitectural}, false, types.TierStandard},
		{"low is light", Assessment{Signal: types.RiskLow}, false, types.TierLight},
		{"loop floors light to standard", Assessment{Signal: types.RiskLow}, true, types.TierStandard},
		{"loop floor is not a ceiling", Assessment{Signal: types.RiskSecurity}, true, types.TierThorough},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SelectTier(tc.a, tc.explicitLoop); got != tc.want {
				t.Errorf("SelectTier = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestSecurityKeywordAlwaysThorough(t *testing.T) {
	c := NewClassifier(nil)
	// Any file/line counts below the size threshold: keyword wins and the
	// tier is THOROUGH. At or above the threshold the size rule fires but
	// the tier is THOROUGH anyway.
	for files := 0; files < 40; files += 7 {
		m := types.ChangeMetrics{FilesChanged: files, LinesChanged: files * 100, LayersTouched: []string{"domain"}, KeywordHits: []string{"encrypt"}}
		if files == 0 {
			m.LinesChanged = 0
		}
		a, err := c.Classify(m)
		if err != nil {
			t.Fatal(err)
		}
		if got := SelectTier(a, false); got != types.TierThorough {
			t.Errorf("files=%d: tier = %s, want THOROUGH", files, got)
		}
	}
}

func TestMinCostClass(t *testing.T) {
	if MinCostClass(types.TierLight) != types.CostEconomy {
		t.Error("LIGHT should allow economy models")
	}
	if MinCostClass(types.TierStandard) != types.CostStandard {
		t.Error("STANDARD should require the standard class")
	}
	if MinCostClass(types.TierThorough) != types.CostPremium {
		t.Error("THOROUGH should require the premium class")
	}
}
