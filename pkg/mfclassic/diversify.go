package mfclassic

import "fmt"

// diversifyConst is the AN10922 diversification constant for AES-128.
const diversifyConst = 0x01

// DiversifyKey derives a per-card sector key from a 16-byte AES master key,
// following NXP AN10922: CMAC(master, 0x01 || UID || sector || key type),
// truncated to the 6 leading bytes.
//
// Systems that personalize cards this way leak nothing through the card
// itself; the candidates only help when the master key is known.
func DiversifyKey(master, uid []byte, sector int, kt KeyType) (Key, error) {
	if len(master) != 16 {
		return Key{}, fmt.Errorf("master key must be 16 bytes, got %d", len(master))
	}
	if len(uid) == 0 {
		return Key{}, fmt.Errorf("uid is empty")
	}
	msg := make([]byte, 0, 1+len(uid)+2)
	msg = append(msg, diversifyConst)
	msg = append(msg, uid...)
	msg = append(msg, byte(sector), byte(kt))

	mac, err := aesCMAC(master, msg)
	if err != nil {
		return Key{}, err
	}
	var k Key
	copy(k[:], mac[:KeySize])
	return k, nil
}
