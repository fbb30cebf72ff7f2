package protocol

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/klangbox/card-agent/rc522"
)

// RecordToPayload converts an rc522 record into its wire shape.
func RecordToPayload(r rc522.Record) RecordPayload {
	return RecordPayload{
		Cookie:   r.Cookie,
		Version:  r.Version,
		Folder:   r.Folder,
		Mode:     r.Mode,
		Special:  r.Special,
		Special2: r.Special2,
	}
}

// PayloadToRecord converts a wire record back into the rc522 type.
func PayloadToRecord(p RecordPayload) rc522.Record {
	return rc522.Record{
		Cookie:   p.Cookie,
		Version:  p.Version,
		Folder:   p.Folder,
		Mode:     p.Mode,
		Special:  p.Special,
		Special2: p.Special2,
	}
}

// CardEventToPayload converts a watcher card event into its wire shape.
func CardEventToPayload(ev rc522.CardEvent) CardEventPayload {
	payload := CardEventPayload{
		UID:       ev.Card.String(),
		Type:      ev.CardType.String(),
		Removed:   ev.Removed,
		ScannedAt: ev.ScannedAt,
	}
	if payload.ScannedAt.IsZero() {
		payload.ScannedAt = time.Now()
	}
	if ev.Record != nil {
		record := RecordToPayload(*ev.Record)
		payload.Record = &record
	}
	if ev.Err != nil {
		payload.Err = ev.Err.Error()
	}
	return payload
}

var validHex = regexp.MustCompile(`^[0-9A-F]+$`)

// ParseUID normalizes a UID from common client formats to colon-separated
// uppercase hex. Accepted: "04:AB:CD:EF", "04ABCDEF", "04 AB CD EF",
// "04-AB-CD-EF".
func ParseUID(uid string) (string, error) {
	if uid == "" {
		return "", fmt.Errorf("empty UID")
	}

	cleaned := strings.ReplaceAll(uid, ":", "")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	cleaned = strings.ReplaceAll(cleaned, "-", "")
	cleaned = strings.ToUpper(cleaned)

	if !validHex.MatchString(cleaned) {
		return "", fmt.Errorf("UID contains invalid characters: %s", uid)
	}
	if len(cleaned)%2 != 0 {
		return "", fmt.Errorf("UID has odd number of hex characters: %s", uid)
	}
	switch len(cleaned) / 2 {
	case 4, 7, 10:
	default:
		return "", fmt.Errorf("UID must be 4, 7 or 10 bytes, got %d", len(cleaned)/2)
	}

	var result strings.Builder
	for i := 0; i < len(cleaned); i += 2 {
		if i > 0 {
			result.WriteByte(':')
		}
		result.WriteString(cleaned[i : i+2])
	}
	return result.String(), nil
}
