package rc522

import "encoding/binary"

// Block sizes for the classic block commands. Writes carry the bare
// 16-byte block; reads come back with a 2-byte CRC_A suffix appended by
// the reader, so read buffers must be sized 18.
const (
	WriteBlockSize = 16
	ReadBlockSize  = 18

	// RecordSize is the number of meaningful bytes in a block; everything
	// past it is zero padding.
	RecordSize = 9
)

// Playback modes stored in Record.Mode. Mode travels as a raw byte; use
// Record.Validate before encoding if range enforcement is wanted.
const (
	ModeAlbum     = 1
	ModeParty     = 2
	ModeSingle    = 3
	ModeAudiobook = 4
	ModeAdmin     = 5

	MaxPlayMode = ModeAdmin
)

// Record is the payload the appliance stores on a card: a magic cookie
// identifying klangbox cards, a layout version, the folder to play and how
// to play it.
type Record struct {
	Cookie   uint32
	Version  byte
	Folder   byte
	Mode     byte
	Special  byte
	Special2 byte
}

// CookieKlangbox marks a card as written by this appliance family.
const CookieKlangbox uint32 = 0x13374249

// Validate range-checks the fields that have a bounded domain. The codec
// itself is total and does not call this.
func (r Record) Validate() error {
	if r.Mode < ModeAlbum || r.Mode > MaxPlayMode {
		return StatusInvalidArgument.Err()
	}
	return nil
}

// EncodeBlock lays the record out into one 16-byte card block: cookie
// big-endian at 0..3, the five byte fields at 4..8, zeros through 15.
// Total; every record is representable.
func EncodeBlock(r Record) [WriteBlockSize]byte {
	var block [WriteBlockSize]byte
	binary.BigEndian.PutUint32(block[0:4], r.Cookie)
	block[4] = r.Version
	block[5] = r.Folder
	block[6] = r.Mode
	block[7] = r.Special
	block[8] = r.Special2
	return block
}

// DecodeBlock reconstructs a record from a block. Bytes past position 8
// are ignored, so both 16-byte write blocks and 18-byte read buffers
// decode directly. The caller must supply at least RecordSize bytes;
// a shorter slice is a contract violation, not a runtime condition.
func DecodeBlock(block []byte) Record {
	return Record{
		Cookie:   binary.BigEndian.Uint32(block[0:4]),
		Version:  block[4],
		Folder:   block[5],
		Mode:     block[6],
		Special:  block[7],
		Special2: block[8],
	}
}
