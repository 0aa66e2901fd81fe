package mfclassic

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Dialer opens a fresh card handle. Reader calls it on every Connect so a
// card that left the field can be picked up again.
type Dialer func() (Card, error)

// volatileKeySlot is the reader key slot used for every authentication.
const volatileKeySlot = 0x00

// Reader implements Tag on top of a PC/SC style Card.
type Reader struct {
	mu     sync.Mutex
	dial   Dialer
	card   Card
	layout Layout
	uid    []byte
	// layoutFixed is set when the caller chose the layout explicitly.
	layoutFixed bool
}

// NewReader returns a Reader that obtains cards from dial.
// A zero layout means "detect on connect" (falls back to 1K).
func NewReader(dial Dialer, layout Layout) *Reader {
	return &Reader{dial: dial, layout: layout, layoutFixed: layout.Sectors > 0}
}

// PCSCDialer dials the card on a PC/SC reader index.
func PCSCDialer(readerIndex int) Dialer {
	return func() (Card, error) {
		return Connect(readerIndex)
	}
}

// StaticDialer always hands out the same card. Useful for SimCard.
func StaticDialer(card Card) Dialer {
	return func() (Card, error) {
		return card, nil
	}
}

// Connect (re)opens the card and reads its UID.
func (r *Reader) Connect() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closeLocked()
	card, err := r.dial()
	if err != nil {
		return fmt.Errorf("dial card: %w", err)
	}
	uid, err := GetUID(card)
	if err != nil {
		closeCard(card)
		return fmt.Errorf("read UID: %w", err)
	}
	if !r.layoutFixed {
		r.layout = Layout1K
		if lc, ok := card.(interface{ Layout() Layout }); ok {
			r.layout = lc.Layout()
		}
	}
	r.card = card
	r.uid = uid
	slog.Debug("card connected", "uid", fmt.Sprintf("%X", uid), "layout", r.layout.String())
	return nil
}

// Close releases the card handle.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()
	return nil
}

func (r *Reader) closeLocked() {
	if r.card != nil {
		closeCard(r.card)
		r.card = nil
	}
}

func closeCard(card Card) {
	if c, ok := card.(io.Closer); ok {
		_ = c.Close()
	}
}

func (r *Reader) IsConnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.card != nil
}

// UID returns a copy of the UID read on the last Connect.
func (r *Reader) UID() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.uid...)
}

func (r *Reader) Layout() Layout {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.layout.Sectors == 0 {
		return Layout1K
	}
	return r.layout
}

// transmit sends an APDU and drops the card handle when the card is gone.
func (r *Reader) transmit(apdu []byte) ([]byte, uint16, error) {
	if r.card == nil {
		return nil, 0, ErrNotConnected
	}
	data, sw, err := Transmit(r.card, apdu)
	if err != nil && IsNotConnected(err) {
		r.closeLocked()
	}
	return data, sw, err
}

// Authenticate loads key into the reader and authenticates the first block of sector.
// A rejected key yields (false, nil).
func (r *Reader) Authenticate(sector int, kt KeyType, key Key) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.layoutOrDefault().ValidSector(sector) {
		return false, fmt.Errorf("sector %d out of range", sector)
	}
	_, sw, err := r.transmit(loadKeyAPDU(volatileKeySlot, key))
	if err != nil {
		return false, fmt.Errorf("load key: %w", err)
	}
	if !SwOK(sw) {
		return false, &SWError{Cmd: 0x82, Block: -1, SW: sw}
	}

	block := r.layoutOrDefault().SectorToBlock(sector)
	_, sw, err = r.transmit(authAPDU(block, kt, volatileKeySlot))
	if err != nil {
		return false, fmt.Errorf("authenticate sector %d: %w", sector, err)
	}
	switch sw {
	case SWSuccess:
		return true, nil
	case SWAuthFailed:
		return false, nil
	default:
		return false, &SWError{Cmd: 0x86, Block: block, SW: sw}
	}
}

// ReadBlock reads a 16-byte block. The block's sector must be authenticated.
func (r *Reader) ReadBlock(block int) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.layoutOrDefault().ValidBlock(block) {
		return nil, fmt.Errorf("block %d out of range", block)
	}
	data, sw, err := r.transmit(readAPDU(block))
	if err != nil {
		return nil, fmt.Errorf("read block %d: %w", block, err)
	}
	if !SwOK(sw) {
		return nil, &SWError{Cmd: 0xB0, Block: block, SW: sw}
	}
	if len(data) != BlockSize {
		return nil, fmt.Errorf("read block %d: got %d bytes, want %d", block, len(data), BlockSize)
	}
	return data, nil
}

// WriteBlock writes a 16-byte block. The block's sector must be authenticated.
func (r *Reader) WriteBlock(block int, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(data) != BlockSize {
		return fmt.Errorf("data must be %d bytes", BlockSize)
	}
	if !r.layoutOrDefault().ValidBlock(block) {
		return fmt.Errorf("block %d out of range", block)
	}
	_, sw, err := r.transmit(writeAPDU(block, data))
	if err != nil {
		return fmt.Errorf("write block %d: %w", block, err)
	}
	if !SwOK(sw) {
		return &SWError{Cmd: 0xD6, Block: block, SW: sw}
	}
	return nil
}

func (r *Reader) layoutOrDefault() Layout {
	if r.layout.Sectors == 0 {
		return Layout1K
	}
	return r.layout
}
