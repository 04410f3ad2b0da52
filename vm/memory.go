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

import "github.com/holiman/uint256"

// Memory is a byte-addressed, word-aligned region. Its logical length is
// always a multiple of 32 bytes — the highest 32-byte-aligned offset any
// opcode has touched — matching spec.md §3's description of Memory's
// capability set (bounded, zero-padded reads and writes).
type Memory struct {
	store []byte
}

// NewMemory returns an empty memory region.
func NewMemory() *Memory { return &Memory{} }

// Len returns the current logical length in bytes (always a multiple of 32).
func (m *Memory) Len() int { return len(m.store) }

// resize grows the backing store to at least `words` 32-byte words if it is
// not already that large. It never shrinks — memory_cost is monotonically
// non-decreasing within a machine (spec.md §3 invariant 6), and so is the
// backing store it is computed from.
func (m *Memory) resize(words uint64) {
	size := words * 32
	if uint64(len(m.store)) >= size {
		return
	}
	grown := make([]byte, size)
	copy(grown, m.store)
	m.store = grown
}

// Set writes data at byte offset off, expanding memory as needed to the
// word boundary covering off+len(data).
func (m *Memory) Set(off uint64, data []byte) {
	if len(data) == 0 {
		return
	}
	end := off + uint64(len(data))
	m.resize(wordsFor(end))
	copy(m.store[off:end], data)
}

// SetByte writes a single byte, used by MSTORE8.
func (m *Memory) SetByte(off uint64, b byte) {
	m.resize(wordsFor(off + 1))
	m.store[off] = b
}

// Get reads `length` bytes starting at `off`. Bytes past the current
// logical length are returned as zero rather than causing an error or
// expanding memory — reads never have gas-metered side effects.
func (m *Memory) Get(off, length uint64) []byte {
	out := make([]byte, length)
	if off >= uint64(len(m.store)) || length == 0 {
		return out
	}
	end := off + length
	if end > uint64(len(m.store)) {
		end = uint64(len(m.store))
	}
	copy(out, m.store[off:end])
	return out
}

// GetWord reads the 32-byte word at offset off, used by MLOAD.
func (m *Memory) GetWord(off uint64) *uint256.Int {
	var v uint256.Int
	v.SetBytes(m.Get(off, 32))
	return &v
}

// wordsFor returns the number of 32-byte words needed to cover `size`
// bytes, rounding up — the same ceil(size/32) used by memory_cost.
func wordsFor(size uint64) uint64 {
	return size/32 + (size%32+31)/32
}
