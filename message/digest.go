package message

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"math"
)

// Digest returns a hex SHA-256 digest of the value tree over a canonical
// binary encoding. Two values are Equal exactly when their digests agree, so
// the digest serves as the dedup identity for unique-only sampling.
func Digest(v Value) string {
	h := sha256.New()
	digestValue(h, v)
	return hex.EncodeToString(h.Sum(nil))
}

func digestValue(h hash.Hash, v Value) {
	var scratch [8]byte
	h.Write([]byte{byte(v.kind)})
	switch v.kind {
	case KindBool:
		if v.b {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
	case KindInt:
		binary.BigEndian.PutUint64(scratch[:], uint64(v.i))
		h.Write(scratch[:])
	case KindUint:
		binary.BigEndian.PutUint64(scratch[:], v.u)
		h.Write(scratch[:])
	case KindFloat:
		binary.BigEndian.PutUint64(scratch[:], math.Float64bits(v.f))
		h.Write(scratch[:])
	case KindString:
		digestString(h, v.s)
	case KindList:
		binary.BigEndian.PutUint64(scratch[:], uint64(len(v.seq)))
		h.Write(scratch[:])
		for _, item := range v.seq {
			digestValue(h, item)
		}
	case KindMap:
		binary.BigEndian.PutUint64(scratch[:], uint64(len(v.flds)))
		h.Write(scratch[:])
		for _, f := range v.flds {
			digestString(h, f.Name)
			digestValue(h, f.Value)
		}
	}
}

func digestString(h hash.Hash, s string) {
	var scratch [8]byte
	binary.BigEndian.PutUint64(scratch[:], uint64(len(s)))
	h.Write(scratch[:])
	h.Write([]byte(s))
}
