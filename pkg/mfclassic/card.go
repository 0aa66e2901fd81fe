package mfclassic

import "fmt"

// Card abstracts card transmit behavior for real PC/SC cards and test doubles.
type Card interface {
	Transmit(apdu []byte) ([]byte, error)
}

// Transmit sends an APDU to the card and extracts the status word.
// Returns (response_data, status_word, error).
// The response data does NOT include the trailing SW bytes.
func Transmit(card Card, apdu []byte) ([]byte, uint16, error) {
	resp, err := card.Transmit(apdu)
	if err != nil {
		return nil, 0, err
	}
	if len(resp) < 2 {
		return nil, 0, fmt.Errorf("short response: %d bytes", len(resp))
	}
	sw := uint16(resp[len(resp)-2])<<8 | uint16(resp[len(resp)-1])
	return resp[:len(resp)-2], sw, nil
}

// GetUID retrieves the card UID via the PC/SC GET DATA pseudo-APDU (FF CA 00 00).
// Tries with Le=0x00 (wildcard) and Le=0x04 (specific 4-byte UID length).
func GetUID(card Card) ([]byte, error) {
	var lastErr error
	for _, le := range []byte{0x00, 0x04} {
		apdu := []byte{0xFF, 0xCA, 0x00, 0x00, le}
		data, sw, err := Transmit(card, apdu)
		if err != nil {
			lastErr = err
			continue
		}
		if SwOK(sw) && len(data) > 0 {
			return data, nil
		}
		lastErr = &SWError{Cmd: 0xCA, Block: -1, SW: sw}
	}
	return nil, fmt.Errorf("UID not available via GET DATA: %w", lastErr)
}

// loadKeyAPDU builds LOAD AUTHENTICATION KEYS (FF 82) into the reader's volatile slot.
func loadKeyAPDU(slot byte, key Key) []byte {
	apdu := make([]byte, 0, 5+KeySize)
	apdu = append(apdu, 0xFF, 0x82, 0x00, slot, KeySize)
	return append(apdu, key[:]...)
}

// authAPDU builds GENERAL AUTHENTICATE (FF 86) for a block using a loaded key slot.
func authAPDU(block int, kt KeyType, slot byte) []byte {
	return []byte{0xFF, 0x86, 0x00, 0x00, 0x05, 0x01, byte(block >> 8), byte(block), byte(kt), slot}
}

func readAPDU(block int) []byte {
	return []byte{0xFF, 0xB0, byte(block >> 8), byte(block), BlockSize}
}

func writeAPDU(block int, data []byte) []byte {
	apdu := make([]byte, 0, 5+BlockSize)
	apdu = append(apdu, 0xFF, 0xD6, byte(block>>8), byte(block), BlockSize)
	return append(apdu, data...)
}
