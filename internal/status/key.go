package status

import (
	"hash/fnv"

	"golang.org/x/text/unicode/norm"
)

// Key identifies a status, a chunk or an expression.
// Key(0) is reserved and never produced by MakeKey.
type Key uint32

// NoKey is the reserved zero key.
const NoKey Key = 0

// MakeKey hashes a name into a Key.
//
// The name is NFC-normalised first so that visually identical names written
// with different Unicode compositions map to the same key.
func MakeKey(name string) Key {
	h := fnv.New32a()
	h.Write([]byte(norm.NFC.String(name)))
	k := Key(h.Sum32())
	if k == NoKey {
		return 1
	}
	return k
}
