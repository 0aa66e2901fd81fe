/*
Package mfclassic talks to MIFARE Classic cards through PC/SC readers.

It provides:
  - The Card transport interface (PC/SC Connection or the in-memory SimCard)
  - Reader, which implements Tag with the reader pseudo-APDUs
    (FF CA get UID, FF 82 load key, FF 86 authenticate, FF B0 read, FF D6 write)
  - Sector/block layout for Mini, 1K, 2K and 4K cards
  - Key, KeyType and KeyPair values, dictionary and master-key file loading
  - Sector trailer and access-bit decoding
  - AN10922 key diversification

# Memory Layout

	Sectors 0..31:  4 blocks each  (block = sector*4 + i)
	Sectors 32..39: 16 blocks each (4K only, block = 128 + (sector-32)*16 + i)

The last block of each sector is the trailer:

	bytes 0..5    Key A (always reads back as 00)
	bytes 6..8    access bits (C1/C2/C3 with inverted copies)
	byte  9       general purpose byte
	bytes 10..15  Key B (readable only under some access configurations)

Block 0 holds the UID and manufacturer data and is never written.

# Authentication

Authenticate answers (true, nil) when the key opens the sector, (false, nil)
when the card rejects it (SW 6300) and (false, err) on transport failure.
The distinction lets attack loops skip wrong keys without treating them as
errors. ErrNotConnected marks a card that left the field; Reader drops its
handle and the next Connect dials again.
*/
package mfclassic
