package keycorpus

import (
	"log/slog"

	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/mfclassic"
)

// Corpus is the static corpus extended with user dictionaries and AN10922
// master keys. The zero value is the static corpus.
type Corpus struct {
	user    []mfclassic.Key
	masters [][]byte
}

// New returns the static corpus.
func New() *Corpus {
	return &Corpus{}
}

// WithUserKeys returns a copy of c whose entries start with keys.
func (c *Corpus) WithUserKeys(keys []mfclassic.Key) *Corpus {
	n := *c
	n.user = append(append([]mfclassic.Key(nil), c.user...), keys...)
	return &n
}

// WithMasterKeys returns a copy of c that also offers keys diversified from masters.
func (c *Corpus) WithMasterKeys(masters [][]byte) *Corpus {
	n := *c
	n.masters = append(append([][]byte(nil), c.masters...), masters...)
	return &n
}

// Entries returns user keys followed by All(), deduplicated.
func (c *Corpus) Entries() []Entry {
	seen := make(map[mfclassic.Key]bool, len(c.user)+len(staticEntries))
	out := make([]Entry, 0, len(c.user)+len(staticEntries))
	for _, k := range c.user {
		if !seen[k] {
			seen[k] = true
			out = append(out, Entry{Key: k, Category: CategoryUser})
		}
	}
	for _, e := range staticEntries {
		if !seen[e.Key] {
			seen[e.Key] = true
			out = append(out, e)
		}
	}
	return out
}

// BasicEntries returns the quick-scan subset followed by the user keys.
func (c *Corpus) BasicEntries() []Entry {
	var out []Entry
	seen := make(map[mfclassic.Key]bool)
	for _, k := range Basic() {
		cat, _ := Classify(k)
		seen[k] = true
		out = append(out, Entry{Key: k, Category: cat})
	}
	for _, k := range c.user {
		if !seen[k] {
			seen[k] = true
			out = append(out, Entry{Key: k, Category: CategoryUser})
		}
	}
	return out
}

// ForCard returns UID-derived and diversified candidates for one sector.
func (c *Corpus) ForCard(uid []byte, sector int) []Entry {
	var out []Entry
	for _, k := range FromUID(uid) {
		out = append(out, Entry{Key: k, Category: CategoryUIDDerived})
	}
	return append(out, c.Diversified(uid, sector)...)
}

// Diversified returns the key A and key B candidates for sector derived
// from every master key. Masters that fail to diversify are skipped.
func (c *Corpus) Diversified(uid []byte, sector int) []Entry {
	var out []Entry
	seen := make(map[mfclassic.Key]bool)
	for i, m := range c.masters {
		for _, kt := range []mfclassic.KeyType{mfclassic.KeyA, mfclassic.KeyB} {
			k, err := mfclassic.DiversifyKey(m, uid, sector, kt)
			if err != nil {
				slog.Debug("skipping master key", "index", i, "error", err)
				break
			}
			if !seen[k] {
				seen[k] = true
				out = append(out, Entry{Key: k, Category: CategoryDiversified})
			}
		}
	}
	return out
}
