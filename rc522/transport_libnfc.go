package rc522

import (
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/clausecker/freefare"
	"github.com/clausecker/nfc/v2"
)

// LibnfcTransport drives a physical reader through libnfc: passive-target
// listing gives UID and SAK at selection time, and MIFARE Classic block
// access goes through freefare. One transport owns one device and at most
// one connected tag.
type LibnfcTransport struct {
	device nfc.Device
	tag    freefare.ClassicTag
	hasTag bool
}

// OpenLibnfcTransport opens the reader at the given libnfc connection
// string ("" selects the first available device) and initializes it as an
// initiator.
func OpenLibnfcTransport(conn string) (*LibnfcTransport, error) {
	device, err := nfc.Open(conn)
	if err != nil {
		return nil, fmt.Errorf("open reader %q: %w", conn, err)
	}
	if err := device.InitiatorInit(); err != nil {
		device.Close()
		return nil, fmt.Errorf("init reader %q: %w", conn, err)
	}
	log.Printf("Connected reader: %s (%s)", device.String(), device.Connection())
	return &LibnfcTransport{device: device}, nil
}

// ListDevices enumerates libnfc connection strings for attached readers.
// Enumeration is retried a few times, some readers need a moment after
// being plugged in.
func ListDevices() ([]string, error) {
	var (
		devices []string
		err     error
	)
	for i := 0; i < 3; i++ {
		devices, err = nfc.ListDevices()
		if err == nil {
			return devices, nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return nil, fmt.Errorf("list readers: %w", err)
}

// Close releases the device.
func (t *LibnfcTransport) Close() error {
	t.dropTag()
	return t.device.Close()
}

var iso14443aModulation = nfc.Modulation{Type: nfc.ISO14443a, BaudRate: nfc.Nbr106}

// DetectCard reports whether any ISO14443-A target answers in the field.
func (t *LibnfcTransport) DetectCard() (bool, error) {
	targets, err := t.device.InitiatorListPassiveTargets(iso14443aModulation)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrNoDevice, err)
	}
	for _, target := range targets {
		if _, ok := target.(*nfc.ISO14443aTarget); ok {
			return true, nil
		}
	}
	return false, nil
}

// SelectCard selects the first ISO14443-A target and, for classic cards,
// binds the matching freefare tag for block access.
func (t *LibnfcTransport) SelectCard() (CardID, error) {
	targets, err := t.device.InitiatorListPassiveTargets(iso14443aModulation)
	if err != nil {
		return CardID{}, fmt.Errorf("%w: %v", ErrNoDevice, err)
	}

	var card CardID
	for _, target := range targets {
		isoA, ok := target.(*nfc.ISO14443aTarget)
		if !ok {
			continue
		}
		if isoA.UIDLen == 0 || int(isoA.UIDLen) > len(isoA.UID) {
			continue
		}
		uid := make([]byte, isoA.UIDLen)
		copy(uid, isoA.UID[:isoA.UIDLen])
		card = CardID{UID: uid, SAK: isoA.Sak}
		break
	}
	if !card.Valid() {
		return CardID{}, ErrCardGone
	}

	if card.Type().SupportsRecord() {
		if err := t.bindClassicTag(card); err != nil {
			return CardID{}, err
		}
	}
	return card, nil
}

// bindClassicTag resolves the freefare classic tag matching the selected
// UID and connects it.
func (t *LibnfcTransport) bindClassicTag(card CardID) error {
	t.dropTag()

	tags, err := freefare.GetTags(t.device)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoDevice, err)
	}
	wantUID := hex.EncodeToString(card.UID)
	for _, tag := range tags {
		classic, ok := tag.(freefare.ClassicTag)
		if !ok {
			continue
		}
		if !strings.EqualFold(classic.UID(), wantUID) {
			continue
		}
		if err := classic.Connect(); err != nil {
			return fmt.Errorf("connect tag %s: %w", card, err)
		}
		t.tag = classic
		t.hasTag = true
		return nil
	}
	return ErrCardGone
}

// Authenticate presents the key as Key A for the sector containing block.
func (t *LibnfcTransport) Authenticate(block byte, key Key) error {
	if !t.hasTag {
		return ErrCardGone
	}
	if err := t.tag.Authenticate(block, [KeySize]byte(key), int(freefare.KeyA)); err != nil {
		return fmt.Errorf("%w: block %d: %v", ErrAuthFailed, block, err)
	}
	return nil
}

// StopAuthentication drops the Crypto1 state. libnfc has no dedicated
// stop-crypto call; disconnecting the tag on Deselect covers it, so this
// only forgets the authenticated state on our side.
func (t *LibnfcTransport) StopAuthentication() {}

// ReadRaw reads the 16-byte block and appends the CRC_A suffix the MFRC522
// read path carries; libnfc verifies and strips the on-air CRC itself, so
// it is recomputed here to preserve the 18-byte read framing.
func (t *LibnfcTransport) ReadRaw(block byte, expectedLen int) ([]byte, error) {
	if !t.hasTag {
		return nil, ErrCardGone
	}
	if expectedLen < WriteBlockSize {
		return nil, ErrBufferTooSmall
	}
	data, err := t.tag.ReadBlock(block)
	if err != nil {
		return nil, fmt.Errorf("read block %d: %w", block, readWriteError(err))
	}
	out := make([]byte, expectedLen)
	copy(out, data[:])
	if expectedLen >= WriteBlockSize+2 {
		crc := crcA(data[:])
		out[WriteBlockSize] = byte(crc)
		out[WriteBlockSize+1] = byte(crc >> 8)
	}
	return out, nil
}

// WriteRaw writes one 16-byte block.
func (t *LibnfcTransport) WriteRaw(block byte, data []byte) error {
	if !t.hasTag {
		return ErrCardGone
	}
	if len(data) != WriteBlockSize {
		return ErrBufferTooSmall
	}
	var blockData [WriteBlockSize]byte
	copy(blockData[:], data)
	if err := t.tag.WriteBlock(block, blockData); err != nil {
		return fmt.Errorf("write block %d: %w", block, readWriteError(err))
	}
	return nil
}

// Deselect disconnects the tag, halting it.
func (t *LibnfcTransport) Deselect() {
	t.dropTag()
}

func (t *LibnfcTransport) dropTag() {
	if t.hasTag {
		if err := t.tag.Disconnect(); err != nil {
			log.Printf("Tag disconnect error: %v", err)
		}
		t.hasTag = false
	}
}

// readWriteError folds a freefare block access error into the sentinel
// set. A tag that stopped answering reads as removed.
func readWriteError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if strings.Contains(msg, "removed") || strings.Contains(msg, "released") {
		return fmt.Errorf("%w: %v", ErrCardGone, err)
	}
	return err
}

// crcA computes the ISO 14443-A CRC_A over data (poly 0x8408 reflected,
// preset 0x6363), transmitted least significant byte first.
func crcA(data []byte) uint16 {
	crc := uint16(0x6363)
	for _, b := range data {
		b ^= byte(crc)
		b ^= b << 4
		crc = (crc >> 8) ^ (uint16(b) << 8) ^ (uint16(b) << 3) ^ (uint16(b) >> 4)
	}
	return crc
}
