// ABOUTME: Deterministic structural hash over an ordered record list
// ABOUTME: Used when the server does not supply its own hash

package syncer

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"strconv"

	"github.com/2389/regionsync/internal/fetch"
	"github.com/2389/regionsync/internal/store"
)

// EffectiveHash returns the server hash when present, else StructuralHash.
func EffectiveHash(res *fetch.Result) string {
	if res.Hash != "" {
		return res.Hash
	}
	return StructuralHash(res.Records)
}

// StructuralHash is a hex SHA-256 over a canonical encoding of the records in
// order. Every field is length-prefixed and optional fields carry a presence
// marker, so distinct lists never share an encoding. FetchedAt and Bookmarked
// are local state and are not part of the hash.
func StructuralHash(records []store.Record) string {
	h := sha256.New()
	writeInt(h, len(records))
	for i := range records {
		r := &records[i]
		writeString(h, r.Token)
		writeString(h, r.OwnerID)
		writeString(h, r.OwnerName)
		writeString(h, r.Title)
		writeOptString(h, r.Description)
		writeOptString(h, r.ImageRef)
		writeOptString(h, r.VideoRef)
		writeOptFloat(h, r.Latitude)
		writeOptFloat(h, r.Longitude)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeInt(h hash.Hash, n int) {
	h.Write([]byte(strconv.Itoa(n)))
	h.Write([]byte{':'})
}

func writeString(h hash.Hash, s string) {
	writeInt(h, len(s))
	h.Write([]byte(s))
}

func writeOptString(h hash.Hash, s *string) {
	if s == nil {
		h.Write([]byte{'-'})
		return
	}
	h.Write([]byte{'+'})
	writeString(h, *s)
}

func writeOptFloat(h hash.Hash, f *float64) {
	if f == nil {
		h.Write([]byte{'-'})
		return
	}
	h.Write([]byte{'+'})
	writeString(h, strconv.FormatFloat(*f, 'g', -1, 64))
}
