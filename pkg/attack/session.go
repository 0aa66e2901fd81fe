package attack

import (
	"sort"

	"github.com/google/uuid"

	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/mfclassic"
)

// Session is the per-card attack state. It is owned by one Run.
type Session struct {
	ID        uuid.UUID
	UID       []byte
	Layout    mfclassic.Layout
	Mode      Mode
	Method    Method
	Found     map[int]mfclassic.KeyPair
	Sources   map[int]string // which method cracked the sector first
	Cancelled bool

	blocks []BlockResult
}

func newSession(uid []byte, layout mfclassic.Layout, mode Mode, method Method) *Session {
	return &Session{
		ID:      uuid.New(),
		UID:     append([]byte(nil), uid...),
		Layout:  layout,
		Mode:    mode,
		Method:  method,
		Found:   make(map[int]mfclassic.KeyPair),
		Sources: make(map[int]string),
	}
}

// SectorCount is the number of sectors on the card.
func (s *Session) SectorCount() int {
	return s.Layout.SectorCount()
}

// Cracked reports whether at least one key of sector is known.
func (s *Session) Cracked(sector int) bool {
	p, ok := s.Found[sector]
	return ok && !p.Empty()
}

// Record merges pair into the sector's keys and reports whether anything new was learned.
func (s *Session) Record(sector int, pair mfclassic.KeyPair, source string) bool {
	if pair.Empty() {
		return false
	}
	old := s.Found[sector]
	merged := old.Merge(pair)
	if merged.Has(mfclassic.KeyA) == old.Has(mfclassic.KeyA) && merged.Has(mfclassic.KeyB) == old.Has(mfclassic.KeyB) {
		return false
	}
	if old.Empty() {
		s.Sources[sector] = source
	}
	s.Found[sector] = merged
	return true
}

// CrackedSectors returns the cracked sectors in ascending order.
func (s *Session) CrackedSectors() []int {
	out := make([]int, 0, len(s.Found))
	for sec := range s.Found {
		if s.Cracked(sec) {
			out = append(out, sec)
		}
	}
	sort.Ints(out)
	return out
}

// FoundCopy returns a copy of the found-key map.
func (s *Session) FoundCopy() map[int]mfclassic.KeyPair {
	out := make(map[int]mfclassic.KeyPair, len(s.Found))
	for k, v := range s.Found {
		out[k] = v
	}
	return out
}

// AnyKnown returns the lowest sector with a known key, preferring key A.
func (s *Session) AnyKnown() (int, mfclassic.KeyType, mfclassic.Key, bool) {
	for _, sec := range s.CrackedSectors() {
		p := s.Found[sec]
		for _, kt := range []mfclassic.KeyType{mfclassic.KeyA, mfclassic.KeyB} {
			if k, ok := p.Get(kt); ok {
				return sec, kt, k, true
			}
		}
	}
	return 0, 0, mfclassic.Key{}, false
}
