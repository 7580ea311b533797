package test

import (
	"crypto/rand"
	"fmt"

	"github.com/blocknode-org/blocknode/internal/hasher"
)

func RandomBytes(len int) []byte {
	bytes := make([]byte, len)
	if _, err := rand.Read(bytes); err != nil {
		panic(err)
	}
	return bytes
}

// Leaves returns n deterministic leaf hashes, leaf i is SHA-384 of "leaf-i".
func Leaves(n int) [][]byte {
	leaves := make([][]byte, n)
	for i := range leaves {
		leaves[i] = hasher.Sha384([]byte(fmt.Sprintf("leaf-%d", i)))
	}
	return leaves
}
