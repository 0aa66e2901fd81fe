package analysis

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/mfclassic"
)

// Result is the output contract of every analysis method.
type Result struct {
	Key        mfclassic.Key
	Confidence float64
	Method     string
	Metadata   map[string]string
}

// Method is one independent analysis. Run reports false when it has no candidate.
type Method struct {
	Name string
	Run  func(ctx context.Context) (Result, bool)
}

// Accept filters a method's candidate: degenerate keys and confidence below
// threshold are discarded.
func Accept(r Result, threshold float64) bool {
	if IsDegenerate(r.Key) {
		return false
	}
	return Clamp(r.Confidence) >= threshold
}

// RunAll runs methods concurrently and returns the accepted results in
// registration order. Methods share nothing; each must copy its inputs.
// When ctx is done RunAll returns nil at once; methods still running finish
// in the background and their results are dropped.
func RunAll(ctx context.Context, methods []Method, threshold float64) []Result {
	var mu sync.Mutex
	slots := make([]*Result, len(methods))
	g, gctx := errgroup.WithContext(ctx)
	for i, m := range methods {
		i, m := i, m
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			r, ok := m.Run(gctx)
			if !ok {
				return nil
			}
			if r.Method == "" {
				r.Method = m.Name
			}
			r.Confidence = Clamp(r.Confidence)
			if Accept(r, threshold) {
				mu.Lock()
				slots[i] = &r
				mu.Unlock()
			}
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return nil
	}

	mu.Lock()
	defer mu.Unlock()
	var out []Result
	for _, r := range slots {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

// Best returns the highest-confidence result; ties go to the earliest.
func Best(results []Result) (Result, bool) {
	if len(results) == 0 {
		return Result{}, false
	}
	best := results[0]
	for _, r := range results[1:] {
		if r.Confidence > best.Confidence {
			best = r
		}
	}
	return best, true
}

// SortByConfidence orders results by descending confidence, stable on ties.
func SortByConfidence(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Confidence > results[j].Confidence
	})
}
