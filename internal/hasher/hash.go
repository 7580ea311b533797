package hasher

import (
	"crypto"
	_ "crypto/sha512"
	"math/bits"
)

const (
	// HashSize is the length of SHA-384 digest.
	HashSize = 48
	// MaxDepth is the number of precomputed empty hashes, ie the maximum height
	// of the tree.
	MaxDepth = 24
)

// EmptyHashes[h] is the root of a subtree of height h consisting only of empty leaves.
var EmptyHashes = computeEmptyHashes()

func computeEmptyHashes() [MaxDepth][]byte {
	var res [MaxDepth][]byte
	res[0] = Sha384()
	for i := 1; i < MaxDepth; i++ {
		res[i] = Combine(res[i-1], res[i-1])
	}
	return res
}

// Sha384 returns SHA-384 digest of the concatenation of data. Panics when
// the algorithm is not linked into the binary.
func Sha384(data ...[]byte) []byte {
	if !crypto.SHA384.Available() {
		panic("SHA-384 algorithm is not available")
	}
	h := crypto.SHA384.New()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// Combine returns SHA-384(left || right).
func Combine(left, right []byte) []byte {
	return Sha384(left, right)
}

// combineLevel combines consecutive pairs, unpaired last hash is combined
// with the empty hash of the height.
func combineLevel(height int, hashes [][]byte) [][]byte {
	res := make([][]byte, 0, (len(hashes)+1)/2)
	for i := 0; i < len(hashes); i += 2 {
		if i+1 < len(hashes) {
			res = append(res, Combine(hashes[i], hashes[i+1]))
		} else {
			res = append(res, Combine(hashes[i], EmptyHashes[height]))
		}
	}
	return res
}

// RootHeight returns ceil(log2(numLeaves)), 0 for zero leaves.
func RootHeight(numLeaves uint32) int {
	if numLeaves == 0 {
		return 0
	}
	return bits.Len32(numLeaves - 1)
}
