// Package nonce scores sampled authentication nonces with several
// independent analyses and returns the most confident key candidate.
package nonce

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/analysis"
)

const (
	// AcceptThreshold is the minimum confidence a method must reach.
	AcceptThreshold = 0.7
	// MinSamples is the smallest sample set analyzed.
	MinSamples = 2

	QuickBudget   = 2 * time.Second
	DefaultBudget = 10 * time.Second
	DeepBudget    = 30 * time.Second
)

// Method names, in registration order.
const (
	MethodAdvancedPattern = "advanced-pattern"
	MethodTemporal        = "temporal-pattern"
	MethodStatistical     = "statistical-pattern"
	MethodFrequency       = "frequency-weakness"
	MethodKnownPattern    = "known-pattern"
	MethodLFSR            = "lfsr-state"
	MethodCryptoWeakness  = "crypto-weakness"
)

type methodFunc func(ctx context.Context, samples []Sample, uid []byte) (analysis.Result, bool)

var registry = []struct {
	name string
	fn   methodFunc
}{
	{MethodAdvancedPattern, advancedPattern},
	{MethodTemporal, temporalPattern},
	{MethodStatistical, statisticalPattern},
	{MethodFrequency, frequencyWeakness},
	{MethodKnownPattern, knownPattern},
	{MethodLFSR, lfsrState},
	{MethodCryptoWeakness, cryptoWeakness},
}

var quickMethods = map[string]bool{
	MethodStatistical:  true,
	MethodFrequency:    true,
	MethodKnownPattern: true,
}

// Analyzer runs the nonce analyses. Zero budgets take the defaults.
type Analyzer struct {
	QuickBudget   time.Duration
	DefaultBudget time.Duration
	DeepBudget    time.Duration
}

// New returns an Analyzer with the default budgets.
func New() *Analyzer {
	return &Analyzer{QuickBudget: QuickBudget, DefaultBudget: DefaultBudget, DeepBudget: DeepBudget}
}

func budgetOr(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// Analyze runs every method and returns the most confident accepted result.
func (a *Analyzer) Analyze(ctx context.Context, samples []Sample, uid []byte) (analysis.Result, bool) {
	results := a.run(ctx, samples, uid, nil, budgetOr(a.DefaultBudget, DefaultBudget))
	return analysis.Best(results)
}

// Quick runs the statistical, frequency and known-pattern methods only.
func (a *Analyzer) Quick(ctx context.Context, samples []Sample, uid []byte) (analysis.Result, bool) {
	results := a.run(ctx, samples, uid, quickMethods, budgetOr(a.QuickBudget, QuickBudget))
	return analysis.Best(results)
}

// Deep runs every method with the long budget and returns all accepted
// results sorted by confidence.
func (a *Analyzer) Deep(ctx context.Context, samples []Sample, uid []byte) []analysis.Result {
	results := a.run(ctx, samples, uid, nil, budgetOr(a.DeepBudget, DeepBudget))
	analysis.SortByConfidence(results)
	return results
}

// run fans the selected methods out. A run that outlives its budget or is
// cancelled yields nothing.
func (a *Analyzer) run(ctx context.Context, samples []Sample, uid []byte, only map[string]bool, budget time.Duration) []analysis.Result {
	if len(samples) < MinSamples {
		return nil
	}
	tctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	var methods []analysis.Method
	for _, m := range registry {
		if only != nil && !only[m.name] {
			continue
		}
		m := m
		own := copySamples(samples)
		uidCopy := append([]byte(nil), uid...)
		methods = append(methods, analysis.Method{
			Name: m.name,
			Run: func(ctx context.Context) (analysis.Result, bool) {
				r, ok := m.fn(ctx, own, uidCopy)
				r.Method = m.name
				return r, ok
			},
		})
	}

	results := analysis.RunAll(tctx, methods, AcceptThreshold)
	if err := tctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			slog.Debug("nonce analysis over budget", "budget", budget.String())
		}
		return nil
	}
	return results
}
