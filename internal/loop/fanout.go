package loop

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kberard/vetloop/internal/types"
)

// FanoutVerifier delegates independent per-layer checks to parallel workers
// and evaluates only the merged result: the controller blocks until every
// worker for the pass has reported, so partial results never reach the exit
// conditions.
type FanoutVerifier struct {
	base Verifier
	// MaxParallel bounds concurrent workers; 0 means one worker per layer.
	MaxParallel int
}

// NewFanoutVerifier wraps a base verifier so that scopes spanning several
// layers are checked layer-by-layer in parallel.
func NewFanoutVerifier(base Verifier, maxParallel int) *FanoutVerifier {
	return &FanoutVerifier{base: base, MaxParallel: maxParallel}
}

// Verify fans out one worker per layer in the scope. Scopes with zero or one
// layer go straight to the base verifier. Any worker error fails the whole
// pass (the controller turns it into a tooling-failure set).
func (f *FanoutVerifier) Verify(ctx context.Context, tier types.Tier, scope Scope) (types.ViolationSet, error) {
	if len(scope.Layers) <= 1 {
		return f.base.Verify(ctx, tier, scope)
	}

	layers := append([]string(nil), scope.Layers...)
	sort.Strings(layers)

	g, gctx := errgroup.WithContext(ctx)
	if f.MaxParallel > 0 {
		g.SetLimit(f.MaxParallel)
	}

	var mu sync.Mutex
	perLayer := make(map[string]types.ViolationSet, len(layers))

	for _, layer := range layers {
		g.Go(func() error {
			layerScope := scope
			layerScope.Layers = []string{layer}
			vs, err := f.base.Verify(gctx, tier, layerScope)
			if err != nil {
				return err
			}
			mu.Lock()
			perLayer[layer] = vs
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Deterministic merge order: sorted by layer, preserving each worker's
	// own ordering.
	var merged types.ViolationSet
	for _, layer := range layers {
		merged = append(merged, perLayer[layer]...)
	}
	return merged, nil
}
