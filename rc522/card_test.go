package rc522

import "testing"

func TestClassifySAK(t *testing.T) {
	tests := []struct {
		sak  byte
		want CardType
	}{
		{0x08, CardTypeClassic1K},
		{0x18, CardTypeClassic4K},
		{0x00, CardTypeUltralight},
		{0x04, CardTypeIncomplete},
		{0x09, CardTypeMini},
		{0x10, CardTypePlus},
		{0x11, CardTypePlus},
		{0x01, CardTypeTNP3xxx},
		{0x20, CardTypeISO14443_4},
		{0x40, CardTypeISO18092},
		{0xFF, CardTypeUnknown},
		{0x42, CardTypeUnknown},
		// The topmost bit is reserved framing and must be masked off.
		{0x88, CardTypeClassic1K},
		{0x98, CardTypeClassic4K},
	}

	for _, tt := range tests {
		if got := ClassifySAK(tt.sak); got != tt.want {
			t.Errorf("ClassifySAK(%#02x) = %v, want %v", tt.sak, got, tt.want)
		}
	}
}

func TestClassifySAK_Deterministic(t *testing.T) {
	// Classification is total: every byte value maps to some CardType,
	// and repeatedly.
	for sak := 0; sak < 256; sak++ {
		first := ClassifySAK(byte(sak))
		second := ClassifySAK(byte(sak))
		if first != second {
			t.Fatalf("ClassifySAK(%#02x) not deterministic: %v then %v", sak, first, second)
		}
	}
}

func TestCardIDValid(t *testing.T) {
	tests := []struct {
		name string
		uid  []byte
		want bool
	}{
		{"single size", []byte{1, 2, 3, 4}, true},
		{"double size", []byte{1, 2, 3, 4, 5, 6, 7}, true},
		{"triple size", []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, true},
		{"empty", nil, false},
		{"wrong length", []byte{1, 2, 3}, false},
		{"wrong length 8", []byte{1, 2, 3, 4, 5, 6, 7, 8}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card := CardID{UID: tt.uid}
			if got := card.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCardIDString(t *testing.T) {
	card := CardID{UID: []byte{0x04, 0xAB, 0xCD, 0xEF}, SAK: 0x08}
	if got := card.String(); got != "04:AB:CD:EF" {
		t.Errorf("String() = %q, want %q", got, "04:AB:CD:EF")
	}

	empty := CardID{}
	if got := empty.String(); got != "" {
		t.Errorf("String() on zero CardID = %q, want empty", got)
	}
}

func TestCardTypeSupportsRecord(t *testing.T) {
	supported := []CardType{CardTypeMini, CardTypeClassic1K, CardTypeClassic4K}
	for _, ct := range supported {
		if !ct.SupportsRecord() {
			t.Errorf("%v should support the record", ct)
		}
	}
	unsupported := []CardType{CardTypeUltralight, CardTypeDesfire, CardTypeUnknown, CardTypeIncomplete}
	for _, ct := range unsupported {
		if ct.SupportsRecord() {
			t.Errorf("%v should not support the record", ct)
		}
	}
}

func TestKeyFromBytes(t *testing.T) {
	key, err := KeyFromBytes([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF})
	if err != nil {
		t.Fatalf("KeyFromBytes failed: %v", err)
	}
	if key != KeyFactory {
		t.Errorf("key = %v, want factory key", key)
	}

	if _, err := KeyFromBytes([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for short key")
	}
}
