// Package bruteforce searches the key space of one sector under a wall-clock budget.
package bruteforce

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/mfclassic"
)

// Strategy selects how candidates are enumerated.
type Strategy int

const (
	Sequential Strategy = iota
	Random
	Pattern
	SmartRandom
	Nibble
	Hybrid
)

const (
	DefaultReportEvery = 64
	DefaultBatchSize   = 32
	DefaultBudget      = 30 * time.Second
)

var strategyNames = [...]string{
	Sequential:  "sequential",
	Random:      "random",
	Pattern:     "pattern",
	SmartRandom: "smart-random",
	Nibble:      "nibble",
	Hybrid:      "hybrid",
}

func (s Strategy) String() string {
	if s >= 0 && int(s) < len(strategyNames) {
		return strategyNames[s]
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// ParseStrategy maps a name to a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	for i, n := range strategyNames {
		if strings.EqualFold(name, n) {
			return Strategy(i), nil
		}
	}
	return 0, fmt.Errorf("unknown brute-force strategy %q", name)
}

func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Strategy) UnmarshalText(b []byte) error {
	v, err := ParseStrategy(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Result is the outcome of one sector search.
type Result struct {
	Found    bool
	Key      mfclassic.Key
	KeyType  mfclassic.KeyType
	Attempts int // candidates tried, each on both sides
	Elapsed  time.Duration
	Strategy Strategy
	LastKey  mfclassic.Key
}

// Progress is reported every ReportEvery candidates.
type Progress struct {
	Sector   int
	Strategy Strategy
	Attempts int
	Elapsed  time.Duration
	LastKey  mfclassic.Key
}

// Engine runs brute-force strategies. Zero fields take defaults.
type Engine struct {
	ReportEvery int
	BatchSize   int
	// Start is the first key of the Sequential strategy.
	Start mfclassic.Key
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// New returns an Engine with default cadences.
func New() *Engine {
	return &Engine{ReportEvery: DefaultReportEvery, BatchSize: DefaultBatchSize}
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

// AttackSector searches sector until a key authenticates, the space is
// exhausted or budget elapses. Elapsed time is checked before every
// candidate, and every candidate is tried as key A then key B.
//
// Running out of budget is not an error. ErrNotConnected and context
// errors are returned with the partial result.
func (e *Engine) AttackSector(ctx context.Context, tag mfclassic.Tag, sector int, strategy Strategy, budget time.Duration, onProgress func(Progress)) (Result, error) {
	if budget <= 0 {
		budget = DefaultBudget
	}
	start := e.now()
	res := Result{Strategy: strategy}

	var err error
	if strategy == Hybrid {
		phases := []Strategy{SmartRandom, Pattern, Random}
		for i, phase := range phases {
			// Thirds of the budget, the last phase taking what is left.
			deadline := start.Add(budget * time.Duration(i+1) / time.Duration(len(phases)))
			err = e.run(ctx, tag, sector, e.generator(phase, tag, sector), deadline, start, &res, onProgress)
			if res.Found || err != nil {
				break
			}
		}
	} else {
		err = e.run(ctx, tag, sector, e.generator(strategy, tag, sector), start.Add(budget), start, &res, onProgress)
	}
	res.Elapsed = e.now().Sub(start)

	if res.Found {
		slog.Info("brute-force key found", "sector", sector, "strategy", strategy.String(), "key_type", res.KeyType.String(), "key", res.Key.String(), "attempts", res.Attempts)
	} else {
		slog.Debug("brute-force finished", "sector", sector, "strategy", strategy.String(), "attempts", res.Attempts, "elapsed", res.Elapsed.String())
	}
	return res, err
}

func (e *Engine) generator(s Strategy, tag mfclassic.Tag, sector int) generator {
	switch s {
	case Sequential:
		return sequential(e.Start)
	case Pattern:
		return fromList(patternKeys())
	case SmartRandom:
		return smartRandom(tag.UID(), sector, e.now())
	case Nibble:
		return nibble()
	default:
		return random()
	}
}

func (e *Engine) run(ctx context.Context, tag mfclassic.Tag, sector int, next generator, deadline, start time.Time, res *Result, onProgress func(Progress)) error {
	every, batch := e.ReportEvery, e.BatchSize
	if every <= 0 {
		every = DefaultReportEvery
	}
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	for {
		if !e.now().Before(deadline) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		key, ok := next()
		if !ok {
			return nil
		}
		res.Attempts++
		res.LastKey = key

		for _, kt := range []mfclassic.KeyType{mfclassic.KeyA, mfclassic.KeyB} {
			ok, err := tag.Authenticate(sector, kt, key)
			if err != nil {
				if mfclassic.IsNotConnected(err) {
					return err
				}
				continue
			}
			if ok {
				res.Found = true
				res.Key = key
				res.KeyType = kt
				return nil
			}
		}

		if res.Attempts%every == 0 && onProgress != nil {
			onProgress(Progress{Sector: sector, Strategy: res.Strategy, Attempts: res.Attempts, Elapsed: e.now().Sub(start), LastKey: key})
		}
		if res.Attempts%batch == 0 {
			runtime.Gosched()
		}
	}
}
