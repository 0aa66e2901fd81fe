// Package dictionary tries corpus keys against a sector.
package dictionary

import (
	"context"
	"log/slog"
	"runtime"

	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/keycorpus"
	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/mfclassic"
)

const (
	DefaultReportEvery = 16
	DefaultBatchSize   = 32
)

// Match is the outcome of a successful sector scan.
type Match struct {
	Sector   int
	Pair     mfclassic.KeyPair
	Category keycorpus.Category // category of the first key that matched
	Attempts int                // authentications sent
	Errors   int                // transient failures skipped
}

// Progress is reported every ReportEvery candidates and once at the end.
type Progress struct {
	Sector int
	Tried  int
	Total  int
	Found  mfclassic.KeyPair
}

// Matcher tries candidate keys as key A then key B. Zero fields take defaults.
type Matcher struct {
	ReportEvery int
	BatchSize   int
}

// New returns a Matcher with default cadences.
func New() *Matcher {
	return &Matcher{ReportEvery: DefaultReportEvery, BatchSize: DefaultBatchSize}
}

func (m *Matcher) reportEvery() int {
	if m == nil || m.ReportEvery <= 0 {
		return DefaultReportEvery
	}
	return m.ReportEvery
}

func (m *Matcher) batchSize() int {
	if m == nil || m.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return m.BatchSize
}

// AttemptSector scans entries against sector. After the first side
// authenticates, the remaining candidates are tried only on the missing side.
//
// Rejected keys and transient errors are skipped. ErrNotConnected and
// context cancellation stop the scan and are returned together with any
// partial match. A nil Match with nil error means no candidate worked.
func (m *Matcher) AttemptSector(ctx context.Context, tag mfclassic.Tag, sector int, entries []keycorpus.Entry, onProgress func(Progress)) (*Match, error) {
	every, batch := m.reportEvery(), m.batchSize()
	var match *Match
	pair := mfclassic.KeyPair{}
	attempts, errs := 0, 0

	result := func() *Match {
		if pair.Empty() {
			return nil
		}
		match.Pair = pair
		match.Attempts = attempts
		match.Errors = errs
		return match
	}
	report := func(tried int) {
		if onProgress != nil {
			onProgress(Progress{Sector: sector, Tried: tried, Total: len(entries), Found: pair})
		}
	}

	for i, e := range entries {
		if i > 0 && i%batch == 0 {
			runtime.Gosched()
		}
		for _, kt := range []mfclassic.KeyType{mfclassic.KeyA, mfclassic.KeyB} {
			if pair.Has(kt) {
				continue
			}
			if err := ctx.Err(); err != nil {
				report(i)
				return result(), err
			}
			attempts++
			ok, err := tag.Authenticate(sector, kt, e.Key)
			if err != nil {
				if mfclassic.IsNotConnected(err) {
					report(i)
					return result(), err
				}
				errs++
				slog.Debug("dictionary auth error", "sector", sector, "key_type", kt.String(), "error", err)
				continue
			}
			if !ok {
				continue
			}
			if match == nil {
				match = &Match{Sector: sector, Category: e.Category}
			}
			pair = pair.With(kt, e.Key)
			slog.Info("dictionary key found", "sector", sector, "key_type", kt.String(), "key", e.Key.String(), "category", e.Category.String())
		}
		done := pair.Complete()
		if (i+1)%every == 0 || done {
			report(i + 1)
		}
		if done {
			return result(), nil
		}
	}
	if len(entries)%every != 0 || len(entries) == 0 {
		report(len(entries))
	}
	return result(), nil
}

// Entries wraps plain keys as user entries.
func Entries(keys []mfclassic.Key, cat keycorpus.Category) []keycorpus.Entry {
	out := make([]keycorpus.Entry, len(keys))
	for i, k := range keys {
		out[i] = keycorpus.Entry{Key: k, Category: cat}
	}
	return out
}
