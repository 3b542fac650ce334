package jit

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// CompileAll compiles independent modules concurrently and returns their
// library paths in order. The first failure cancels the rest.
func CompileAll(ctx context.Context, mods ...*Module) ([]string, error) {
	paths := make([]string, len(mods))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, m := range mods {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			p, err := m.Compile(gctx)
			if err != nil {
				return fmt.Errorf("module %s: %w", m.Stem(), err)
			}
			paths[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}
