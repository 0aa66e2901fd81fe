package mfclassic

import (
	"errors"
	"fmt"
)

// Status word constants returned by PC/SC readers for MIFARE Classic pseudo-APDUs.
const (
	SWSuccess              = 0x9000 // Command completed
	SWAuthFailed           = 0x6300 // Operation failed (authentication rejected)
	SWMemoryFailure        = 0x6581 // Memory failure (write not accepted)
	SWWrongLength          = 0x6700 // Wrong length
	SWSecurityNotSatisfied = 0x6982 // Security status not satisfied (sector not authenticated)
	SWKeyNotLoaded         = 0x6986 // Command not allowed (no key loaded in slot)
	SWWrongP1P2            = 0x6A86 // Incorrect P1/P2 (block out of range)
	SWNotFound             = 0x6A82 // Block or key slot not found
	SWInsNotSupported      = 0x6D00 // Instruction not supported
	SWClassNotSupported    = 0x6E00 // Class not supported
)

// ErrNotConnected is returned when the card left the field or was never connected.
var ErrNotConnected = errors.New("card not connected")

// SWError represents a status word error from the reader.
type SWError struct {
	Cmd   byte   // Command INS byte
	Block int    // Block number, -1 when not block addressed
	SW    uint16 // Status word
}

func (e *SWError) Error() string {
	if e.Block >= 0 {
		return fmt.Sprintf("card command 0x%02X block %d failed with SW=0x%04X (%s)", e.Cmd, e.Block, e.SW, swDescription(e.SW))
	}
	return fmt.Sprintf("card command 0x%02X failed with SW=0x%04X (%s)", e.Cmd, e.SW, swDescription(e.SW))
}

// swDescription returns a human-readable description of a status word.
func swDescription(sw uint16) string {
	switch sw {
	case SWSuccess:
		return "success"
	case SWAuthFailed:
		return "authentication failed"
	case SWMemoryFailure:
		return "memory failure"
	case SWWrongLength:
		return "wrong length"
	case SWSecurityNotSatisfied:
		return "security not satisfied"
	case SWKeyNotLoaded:
		return "key not loaded"
	case SWWrongP1P2:
		return "wrong P1/P2"
	case SWNotFound:
		return "not found"
	case SWInsNotSupported:
		return "instruction not supported"
	case SWClassNotSupported:
		return "class not supported"
	default:
		return "unknown error"
	}
}

// IsAuthError checks if an error means the sector is not (or no longer) authenticated.
func IsAuthError(err error) bool {
	var swErr *SWError
	if errors.As(err, &swErr) {
		return swErr.SW == SWAuthFailed || swErr.SW == SWSecurityNotSatisfied
	}
	return false
}

// IsNotConnected reports whether err means the card is gone and a reconnect is needed.
func IsNotConnected(err error) bool {
	return errors.Is(err, ErrNotConnected)
}

// SwOK checks if a status word indicates success.
func SwOK(sw uint16) bool {
	return sw == SWSuccess
}
