package mfclassic

import "fmt"

// BlockSize is the size of a MIFARE Classic block in bytes.
const BlockSize = 16

// smallSectors is the number of 4-block sectors before 4K cards switch to 16-block sectors.
const smallSectors = 32

// Layout maps sectors to blocks for a card size.
//
// Sectors 0..31 hold 4 blocks each; sectors 32..39 (4K only) hold 16 blocks.
// The last block of every sector is the trailer holding Key A, the access
// bits and Key B.
type Layout struct {
	Sectors int
}

var (
	LayoutMini = Layout{Sectors: 5}
	Layout1K   = Layout{Sectors: 16}
	Layout2K   = Layout{Sectors: 32}
	Layout4K   = Layout{Sectors: 40}
)

// LayoutForSAK returns the layout announced by a SAK byte.
func LayoutForSAK(sak byte) (Layout, bool) {
	switch sak {
	case 0x09:
		return LayoutMini, true
	case 0x08, 0x88, 0x28:
		return Layout1K, true
	case 0x19:
		return Layout2K, true
	case 0x18, 0x38, 0x98:
		return Layout4K, true
	}
	return Layout{}, false
}

// SAK returns the select acknowledge byte NXP cards of this size answer with.
func (l Layout) SAK() byte {
	switch l.Sectors {
	case LayoutMini.Sectors:
		return 0x09
	case Layout2K.Sectors:
		return 0x19
	case Layout4K.Sectors:
		return 0x18
	}
	return 0x08
}

// LayoutForSectors returns the layout with the given sector count.
func LayoutForSectors(n int) (Layout, error) {
	switch n {
	case LayoutMini.Sectors, Layout1K.Sectors, Layout2K.Sectors, Layout4K.Sectors:
		return Layout{Sectors: n}, nil
	}
	return Layout{}, fmt.Errorf("unsupported sector count %d (want 5, 16, 32 or 40)", n)
}

func (l Layout) SectorCount() int { return l.Sectors }

// BlockCount returns the total number of blocks on the card.
func (l Layout) BlockCount() int {
	if l.Sectors <= smallSectors {
		return l.Sectors * 4
	}
	return smallSectors*4 + (l.Sectors-smallSectors)*16
}

// BlocksInSector returns how many blocks sector s holds.
func (l Layout) BlocksInSector(s int) int {
	if s < smallSectors {
		return 4
	}
	return 16
}

// SectorToBlock returns the first block of sector s.
func (l Layout) SectorToBlock(s int) int {
	if s < smallSectors {
		return s * 4
	}
	return smallSectors*4 + (s-smallSectors)*16
}

// BlockToSector returns the sector containing block b.
func (l Layout) BlockToSector(b int) int {
	if b < smallSectors*4 {
		return b / 4
	}
	return smallSectors + (b-smallSectors*4)/16
}

// TrailerBlock returns the trailer block of sector s.
func (l Layout) TrailerBlock(s int) int {
	return l.SectorToBlock(s) + l.BlocksInSector(s) - 1
}

// IsTrailer reports whether block b is a sector trailer.
func (l Layout) IsTrailer(b int) bool {
	return l.ValidBlock(b) && b == l.TrailerBlock(l.BlockToSector(b))
}

// IsManufacturerBlock reports whether b is block 0 (UID and manufacturer data).
func (l Layout) IsManufacturerBlock(b int) bool {
	return b == 0
}

func (l Layout) ValidSector(s int) bool {
	return s >= 0 && s < l.Sectors
}

func (l Layout) ValidBlock(b int) bool {
	return b >= 0 && b < l.BlockCount()
}

func (l Layout) String() string {
	switch l.Sectors {
	case LayoutMini.Sectors:
		return "MIFARE Classic Mini"
	case Layout1K.Sectors:
		return "MIFARE Classic 1K"
	case Layout2K.Sectors:
		return "MIFARE Classic 2K"
	case Layout4K.Sectors:
		return "MIFARE Classic 4K"
	}
	return fmt.Sprintf("MIFARE Classic (%d sectors)", l.Sectors)
}
