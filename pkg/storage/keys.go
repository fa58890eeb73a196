package storage

import (
	"fmt"
)

// Key schema for Pebble storage
//
//   ckpt:epoch              → epoch of the last checkpoint (8-byte big-endian)
//   book:<pair>             → orderbook.BookSnapshot (JSON)
//   trade:<pair>:<seq>      → matching.Trade (JSON)

// Key prefixes
const (
	prefixBook       = "book:"
	prefixTrade      = "trade:"
	keyCheckpointEpo = "ckpt:epoch"
)

// bookKey returns the key for a book checkpoint
// Format: "book:{pair}"
func bookKey(pair string) []byte {
	return []byte(prefixBook + pair)
}

// tradeKey returns the key for a trade
// Format: "trade:{pair}:{seq}"
// Seq is zero-padded (20 digits) for lexicographic sorting
func tradeKey(pair string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", prefixTrade, pair, seq))
}

// tradePrefix returns the prefix for all trades of a pair
// Format: "trade:{pair}:"
func tradePrefix(pair string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixTrade, pair))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
