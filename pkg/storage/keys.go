package storage

import (
	"encoding/binary"
	"fmt"
)

// Key schema for the engine's Pebble database. The three collections share
// one DB so a match can commit across all of them in a single batch, but each
// lives under its own prefix:
//
//   ord:<seq>       → Order (seq is zero-padded for lexicographic =
//                     insertion order scans)
//   ordix:<id>      → 8-byte seq (id → record lookup)
//   stl:<pairKey>   → Settlement (key doubles as the idempotency guard)
//   bal:<owner>     → BalanceEntry
//   seq:o           → last allocated order sequence number

const (
	prefixOrder      = "ord:"
	prefixOrderIndex = "ordix:"
	prefixSettlement = "stl:"
	prefixBalance    = "bal:"
)

func orderKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixOrder, seq))
}

func orderIndexKey(id string) []byte {
	return []byte(prefixOrderIndex + id)
}

func settlementKey(pairID string) []byte {
	return []byte(prefixSettlement + pairID)
}

func balanceKey(owner string) []byte {
	return []byte(prefixBalance + owner)
}

func orderSeqKey() []byte { return []byte("seq:o") }

func encodeSeq(seq uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], seq)
	return b[:]
}

func decodeSeq(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
