package event

import (
	"strconv"
	"strings"
	"unicode/utf16"
)

// DeriveID returns a deterministic id for a record of sourceID keyed by
// naturalKey. The hash is the 32-bit signed rolling hash h = h*31 + c over
// the UTF-16 code units of "sourceID:naturalKey", rendered in base 36.
// Ids already persisted by earlier deployments depend on this exact scheme.
func DeriveID(sourceID, naturalKey string) string {
	var h int32
	h = hashString(h, sourceID)
	h = h*31 + ':'
	h = hashString(h, naturalKey)

	v := int64(h)
	if v < 0 {
		v = -v
	}

	return sourceID + "_" + strconv.FormatInt(v, 36)
}

func hashString(h int32, s string) int32 {
	for _, r := range s {
		if r >= 0x10000 {
			hi, lo := utf16.EncodeRune(r)
			h = h*31 + int32(hi)
			h = h*31 + int32(lo)
			continue
		}
		h = h*31 + int32(r)
	}
	return h
}

// IdentityKey picks the natural key used for identity: the source-provided
// key when present, else the record's URL.
func IdentityKey(raw RawRecord) string {
	if key := strings.TrimSpace(raw.NaturalKey); key != "" {
		return key
	}
	return strings.TrimSpace(raw.SourceURL)
}
