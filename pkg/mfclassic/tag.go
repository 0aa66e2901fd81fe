package mfclassic

// Tag is the card capability the attack engines run against.
//
// Authenticate returns (false, nil) when the card rejects the key and a
// non-nil error for transport failures, so callers can tell "wrong key" from
// "try again". Implementations serialize calls; engines never share a Tag
// concurrently.
type Tag interface {
	Connect() error
	Close() error
	IsConnected() bool
	UID() []byte
	Layout() Layout
	Authenticate(sector int, kt KeyType, key Key) (bool, error)
	ReadBlock(block int) ([]byte, error)
	WriteBlock(block int, data []byte) error
}
