// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package vm

import (
	"sync"

	"golang.org/x/crypto/sha3"
)

// hasherPool reuses Keccak-256 sponge states across SHA3 opcode
// evaluations, in the spirit of the teacher's shared crypto.KeccakState
// hasher (other_examples/1d1df821_..._interpreter.go.go keeps one
// hasher/hasherBuf pair per EVMInterpreter instance). spec.md §1 lists the
// cryptographic hash as an external collaborator; this is this core's
// concrete choice of that collaborator.
var hasherPool = sync.Pool{
	New: func() any { return sha3.NewLegacyKeccak256() },
}

// keccak256 hashes data and returns the 32-byte digest.
func keccak256(data []byte) [32]byte {
	h := hasherPool.Get().(interface {
		Write([]byte) (int, error)
		Sum([]byte) []byte
		Reset()
	})
	defer hasherPool.Put(h)
	h.Reset()
	h.Write(data)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
