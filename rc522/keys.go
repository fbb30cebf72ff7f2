package rc522

// Well-known MIFARE Classic keys, tried in order when probing a card.
var (
	// KeyFactory is the factory default key (all 0xFF).
	KeyFactory = Key{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	// KeyNFCForum is the NFC Forum public key for NDEF sectors.
	KeyNFCForum = Key{0xD3, 0xF7, 0xD3, 0xF7, 0xD3, 0xF7}
	// KeyMAD is the MIFARE Application Directory key.
	KeyMAD = Key{0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5}
	// KeyZero is the all-zero key.
	KeyZero = Key{0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
)

// DefaultKeys is the probe order used by the watcher when no key is
// configured.
var DefaultKeys = []Key{KeyFactory, KeyNFCForum, KeyMAD, KeyZero}

// Location of the appliance record on classic cards: sector 1, with its
// trailer as the authentication target.
const (
	// RecordBlock is the data block holding the record.
	RecordBlock byte = 4
	// RecordAuthBlock is the sector trailer authenticated before access.
	RecordAuthBlock byte = 7
)

// SectorOf returns the sector a block address belongs to on 1K-layout
// cards (4 blocks per sector).
func SectorOf(block byte) byte {
	return block / 4
}
