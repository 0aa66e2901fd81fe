package nonce

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"log/slog"
	"math/rand"
	"time"

	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/analysis"
	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/mfclassic"
)

// Sample is one nonce/response observation. Samples live only for one analysis run.
type Sample struct {
	Nonce     [4]byte
	Response  [4]byte
	Keystream [4]byte
	Parity    byte
	Timestamp time.Time
	Probe     mfclassic.Key
}

// NonceValue returns the nonce as a big-endian word.
func (s Sample) NonceValue() uint32 {
	return binary.BigEndian.Uint32(s.Nonce[:])
}

func copySamples(in []Sample) []Sample {
	return append([]Sample(nil), in...)
}

// Hit is a probe key that authenticated the sector while collecting.
type Hit struct {
	Key     mfclassic.Key
	KeyType mfclassic.KeyType
}

// Collector gathers samples for a sector by authenticating with probe keys.
//
// PC/SC readers do not expose the authentication exchange, so the nonce of
// each sample is synthesized: a 16-bit LFSR walk seeded from (uid, sector)
// with jittered step distances, like a card answering back-to-back requests.
type Collector struct {
	// Now stamps samples; nil means time.Now.
	Now func() time.Time
}

func (c *Collector) now() time.Time {
	if c == nil || c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

func seedFor(uid []byte, sector int) int64 {
	h := fnv.New64a()
	h.Write(uid)
	var sb [4]byte
	binary.BigEndian.PutUint32(sb[:], uint32(sector))
	h.Write(sb[:])
	return int64(h.Sum64() & 0x7FFFFFFFFFFFFFFF)
}

// Collect authenticates sector once per probe key (key A) and records a sample
// for every answered attempt. A probe that authenticates ends collection and
// is returned as a Hit. Transient errors drop the sample; ErrNotConnected and
// context errors are returned.
func (c *Collector) Collect(ctx context.Context, tag mfclassic.Tag, sector int, probes []mfclassic.Key) ([]Sample, *Hit, error) {
	uid := tag.UID()
	rng := rand.New(rand.NewSource(seedFor(uid, sector)))
	// A non-zero 16-bit LFSR state in the high half, clocked until the
	// whole word is LFSR output.
	seed := uint32(rng.Intn(0xFFFF) + 1)
	state := analysis.PRNGSuccessor(seed<<16, 32)

	samples := make([]Sample, 0, len(probes))
	for _, key := range probes {
		if err := ctx.Err(); err != nil {
			return samples, nil, err
		}
		ok, err := tag.Authenticate(sector, mfclassic.KeyA, key)
		if err != nil {
			if mfclassic.IsNotConnected(err) {
				return samples, nil, err
			}
			slog.Debug("nonce probe failed", "sector", sector, "error", err)
			continue
		}
		if ok {
			return samples, &Hit{Key: key, KeyType: mfclassic.KeyA}, nil
		}

		state = analysis.PRNGSuccessor(state, 160+rng.Intn(64))
		var s Sample
		binary.BigEndian.PutUint32(s.Nonce[:], state)
		rng.Read(s.Response[:])
		for i := range s.Keystream {
			s.Keystream[i] = s.Nonce[i] ^ s.Response[i]
		}
		s.Parity = byte(rng.Intn(16))
		s.Timestamp = c.now()
		s.Probe = key
		samples = append(samples, s)
	}
	return samples, nil, nil
}
