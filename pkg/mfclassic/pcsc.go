package mfclassic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ebfe/scard"
)

// Connection wraps a PC/SC card connection.
type Connection struct {
	ctx       *scard.Context
	Card      *scard.Card
	Reader    string
	ReaderIdx int
}

// ListReaders returns the names of the attached PC/SC readers.
func ListReaders() ([]string, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("EstablishContext failed: %w", err)
	}
	defer ctx.Release()
	return ctx.ListReaders()
}

// Connect establishes a connection to the card on a reader.
//
// Parameters:
//   - readerIndex: Index of the reader to use (0-based)
//
// Returns:
//   - Connection struct with context and card
//   - Error if connection fails
func Connect(readerIndex int) (*Connection, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("EstablishContext failed: %w", err)
	}

	readers, err := ctx.ListReaders()
	if err != nil || len(readers) == 0 {
		ctx.Release()
		return nil, fmt.Errorf("no readers found: %v", err)
	}
	if readerIndex < 0 || readerIndex >= len(readers) {
		ctx.Release()
		return nil, fmt.Errorf("reader index out of range (0..%d)", len(readers)-1)
	}

	reader := readers[readerIndex]
	card, err := ctx.Connect(reader, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		ctx.Release()
		if isCardGone(err) {
			return nil, fmt.Errorf("connect %s: %w", reader, ErrNotConnected)
		}
		return nil, fmt.Errorf("connect failed: %w", err)
	}

	return &Connection{
		ctx:       ctx,
		Card:      card,
		Reader:    reader,
		ReaderIdx: readerIndex,
	}, nil
}

// Close disconnects the card and releases the PC/SC context.
func (c *Connection) Close() error {
	if c == nil {
		return nil
	}
	if c.Card != nil {
		_ = c.Card.Disconnect(scard.LeaveCard)
		c.Card = nil
	}
	if c.ctx != nil {
		_ = c.ctx.Release()
		c.ctx = nil
	}
	return nil
}

// Transmit sends an APDU to the card (implements Card interface).
// Card removal and reset are reported as ErrNotConnected.
func (c *Connection) Transmit(apdu []byte) ([]byte, error) {
	if c == nil || c.Card == nil {
		return nil, ErrNotConnected
	}
	resp, err := c.Card.Transmit(apdu)
	if err != nil && isCardGone(err) {
		return nil, fmt.Errorf("transmit: %w (%v)", ErrNotConnected, err)
	}
	return resp, err
}

// Layout guesses the card layout from the PC/SC storage-card ATR.
// Falls back to 1K when the ATR does not name a MIFARE Classic card.
func (c *Connection) Layout() Layout {
	if c == nil || c.Card == nil {
		return Layout1K
	}
	status, err := c.Card.Status()
	if err != nil {
		return Layout1K
	}
	if l, ok := LayoutFromATR(status.Atr); ok {
		return l
	}
	return Layout1K
}

// LayoutFromATR decodes the card name bytes of a PC/SC part 3 storage-card ATR
// (3B 8F 80 01 80 4F 0C A0 00 00 03 06 SS NN NN ...).
func LayoutFromATR(atr []byte) (Layout, bool) {
	if len(atr) < 15 || atr[4] != 0x80 || atr[5] != 0x4F {
		return Layout{}, false
	}
	switch uint16(atr[13])<<8 | uint16(atr[14]) {
	case 0x0001:
		return Layout1K, true
	case 0x0002:
		return Layout4K, true
	case 0x0026:
		return LayoutMini, true
	}
	return Layout{}, false
}

// WaitForCard blocks until a card is present on the reader or ctx is done.
func WaitForCard(ctx context.Context, readerIndex int) error {
	sctx, err := scard.EstablishContext()
	if err != nil {
		return fmt.Errorf("EstablishContext failed: %w", err)
	}
	defer sctx.Release()

	readers, err := sctx.ListReaders()
	if err != nil || len(readers) == 0 {
		return fmt.Errorf("no readers found: %v", err)
	}
	if readerIndex < 0 || readerIndex >= len(readers) {
		return fmt.Errorf("reader index out of range (0..%d)", len(readers)-1)
	}

	states := []scard.ReaderState{{
		Reader:       readers[readerIndex],
		CurrentState: scard.StateUnaware,
	}}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := sctx.GetStatusChange(states, time.Second); err != nil {
			if errors.Is(err, scard.ErrTimeout) {
				continue
			}
			return fmt.Errorf("GetStatusChange: %w", err)
		}
		if states[0].EventState&scard.StatePresent != 0 {
			return nil
		}
		states[0].CurrentState = states[0].EventState
	}
}

func isCardGone(err error) bool {
	return errors.Is(err, scard.ErrRemovedCard) ||
		errors.Is(err, scard.ErrResetCard) ||
		errors.Is(err, scard.ErrNoSmartcard)
}
