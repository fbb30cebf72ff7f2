package rc522

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// KeySize is the length of a MIFARE Crypto1 key.
const KeySize = 6

// Key is a sector key presented during authentication. The session engine
// never stores keys; callers supply one per attempt.
type Key [KeySize]byte

// KeyFromBytes builds a Key from a 6-byte slice.
func KeyFromBytes(b []byte) (Key, error) {
	var k Key
	if len(b) != KeySize {
		return k, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(b))
	}
	copy(k[:], b)
	return k, nil
}

// CardID identifies a selected card: the UID returned by anticollision and
// the SAK (select acknowledge) byte. Valid for the duration of one session.
type CardID struct {
	UID []byte // 4, 7 or 10 bytes
	SAK byte
}

// Valid reports whether the UID has one of the three lengths ISO 14443-3
// allows.
func (c CardID) Valid() bool {
	switch len(c.UID) {
	case 4, 7, 10:
		return true
	}
	return false
}

// Type classifies the card from its SAK byte.
func (c CardID) Type() CardType {
	return ClassifySAK(c.SAK)
}

// String renders the UID as colon-separated uppercase hex.
func (c CardID) String() string {
	if len(c.UID) == 0 {
		return ""
	}
	parts := make([]string, len(c.UID))
	for i, b := range c.UID {
		parts[i] = strings.ToUpper(hex.EncodeToString([]byte{b}))
	}
	return strings.Join(parts, ":")
}

// CardType is the storage class of a card, derived from its SAK byte.
// It is a read-only fact about the card, not session state.
type CardType int

const (
	CardTypeUnknown CardType = iota
	CardTypeISO14443_4
	CardTypeISO18092
	CardTypeMini
	CardTypeClassic1K
	CardTypeClassic4K
	CardTypeUltralight
	CardTypePlus
	CardTypeDesfire
	CardTypeTNP3xxx
	// CardTypeIncomplete means the SAK says the UID is not complete yet
	// (a cascade level is still pending).
	CardTypeIncomplete
)

// ClassifySAK maps a SAK byte to a CardType per NXP AN10833 §3.2.
// The topmost bit is reserved/historic framing and is masked off before
// matching. Unmatched values classify as CardTypeUnknown; classification
// never fails.
func ClassifySAK(sak byte) CardType {
	switch sak & 0x7F {
	case 0x04:
		return CardTypeIncomplete
	case 0x09:
		return CardTypeMini
	case 0x08:
		return CardTypeClassic1K
	case 0x18:
		return CardTypeClassic4K
	case 0x00:
		return CardTypeUltralight
	case 0x10, 0x11:
		return CardTypePlus
	case 0x01:
		return CardTypeTNP3xxx
	case 0x20:
		return CardTypeISO14443_4
	case 0x40:
		return CardTypeISO18092
	default:
		return CardTypeUnknown
	}
}

var cardTypeNames = map[CardType]string{
	CardTypeISO14443_4: "ISO/IEC 14443-4",
	CardTypeISO18092:   "ISO/IEC 18092 (NFC)",
	CardTypeMini:       "MIFARE Mini",
	CardTypeClassic1K:  "MIFARE Classic 1K",
	CardTypeClassic4K:  "MIFARE Classic 4K",
	CardTypeUltralight: "MIFARE Ultralight",
	CardTypePlus:       "MIFARE Plus",
	CardTypeDesfire:    "MIFARE DESFire",
	CardTypeTNP3xxx:    "TNP3xxx",
	CardTypeIncomplete: "incomplete UID",
}

func (t CardType) String() string {
	if name, ok := cardTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// SupportsRecord reports whether the appliance record can be stored on a
// card of this type through the classic block commands.
func (t CardType) SupportsRecord() bool {
	switch t {
	case CardTypeMini, CardTypeClassic1K, CardTypeClassic4K:
		return true
	}
	return false
}
