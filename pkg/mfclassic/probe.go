package mfclassic

// ProbeResult holds the result of testing one key against the sides of a sector.
type ProbeResult struct {
	Key Key
	A   bool  // True if the key authenticated as Key A
	B   bool  // True if the key authenticated as Key B
	Err error // Last transport error, nil when every attempt got an answer
}

// Matched reports whether any side accepted the key.
func (p ProbeResult) Matched() bool {
	return p.A || p.B
}

// Pair returns the sides that accepted the key.
func (p ProbeResult) Pair() KeyPair {
	var kp KeyPair
	if p.A {
		kp = kp.With(KeyA, p.Key)
	}
	if p.B {
		kp = kp.With(KeyB, p.Key)
	}
	return kp
}

// ProbeKey authenticates sector with key on each requested side (A then B
// when sides is empty). A rejection is not an error; transport errors are
// kept in Err and the next side is still tried, except ErrNotConnected which
// stops the probe.
func ProbeKey(tag Tag, sector int, key Key, sides ...KeyType) ProbeResult {
	if len(sides) == 0 {
		sides = []KeyType{KeyA, KeyB}
	}
	res := ProbeResult{Key: key}
	for _, kt := range sides {
		ok, err := tag.Authenticate(sector, kt, key)
		if err != nil {
			res.Err = err
			if IsNotConnected(err) {
				return res
			}
			continue
		}
		if ok {
			if kt == KeyA {
				res.A = true
			} else {
				res.B = true
			}
		}
	}
	return res
}

// AuthenticateWithFallback authenticates sector with the preferred side of
// pair and falls back to the other side. Returns the side that worked.
func AuthenticateWithFallback(tag Tag, sector int, pair KeyPair, preferred KeyType) (KeyType, bool, error) {
	var lastErr error
	for _, kt := range []KeyType{preferred, preferred.Other()} {
		key, ok := pair.Get(kt)
		if !ok {
			continue
		}
		ok, err := tag.Authenticate(sector, kt, key)
		if err != nil {
			lastErr = err
			if IsNotConnected(err) {
				return 0, false, err
			}
			continue
		}
		if ok {
			return kt, true, nil
		}
	}
	return 0, false, lastErr
}
