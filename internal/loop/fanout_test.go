package loop

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/kberard/vetloop/internal/types"
)

// layerVerifier returns one violation named after each layer it is asked to
// check, recording the layers it saw.
type layerVerifier struct {
	mu     sync.Mutex
	seen   []string
	failOn string
}

func (l *layerVerifier) Verify(_ context.Context, _ types.Tier, scope Scope) (types.ViolationSet, error) {
	l.mu.Lock()
	l.seen = append(l.seen, scope.Layers...)
	l.mu.Unlock()

	if len(scope.Layers) == 1 && scope.Layers[0] == l.failOn {
		return nil, errors.New("layer check crashed")
	}
	var vs types.ViolationSet
	for _, layer := range scope.Layers {
		vs = append(vs, types.Violation{Category: "architecture", Identifier: layer})
	}
	return vs, nil
}

func TestFanoutMergesAllLayers(t *testing.T) {
	base := &layerVerifier{}
	f := NewFanoutVerifier(base, 0)

	vs, err := f.Verify(context.Background(), types.TierStandard, Scope{Layers: []string{"infra", "domain", "api"}})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if len(vs) != 3 {
		t.Fatalf("merged %d violations, want 3", len(vs))
	}
	// Merge order is deterministic: sorted by layer.
	want := []string{"api", "domain", "infra"}
	for i, id := range want {
		if vs[i].Identifier != id {
			t.Errorf("merged[%d] = %s, want %s", i, vs[i].Identifier, id)
		}
	}
	if len(base.seen) != 3 {
		t.Errorf("workers saw %d layers, want 3", len(base.seen))
	}
}

func TestFanoutSingleLayerGoesDirect(t *testing.T) {
	base := &layerVerifier{}
	f := NewFanoutVerifier(base, 0)

	vs, err := f.Verify(context.Background(), types.TierLight, Scope{Layers: []string{"domain"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(vs) != 1 || vs[0].Identifier != "domain" {
		t.Errorf("unexpected result: %v", vs)
	}
}

func TestFanoutWorkerErrorFailsWholePass(t *testing.T) {
	base := &layerVerifier{failOn: "infra"}
	f := NewFanoutVerifier(base, 2)

	if _, err := f.Verify(context.Background(), types.TierStandard, Scope{Layers: []string{"domain", "infra", "api"}}); err == nil {
		t.Fatal("partial results must never be evaluated; a worker error fails the pass")
	}
}
