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

// copyFromSource performs the bounded, zero-padded read pattern shared by
// CALLDATACOPY, CODECOPY and EXTCODECOPY: reads past the end of src yield
// zero rather than an error (spec.md §4.3).
func copyFromSource(src []byte, offset, length uint64) []byte {
	out := make([]byte, length)
	if offset >= uint64(len(src)) {
		return out
	}
	end := offset + length
	if end > uint64(len(src)) {
		end = uint64(len(src))
	}
	copy(out, src[offset:end])
	return out
}

// copyIntoMemory writes `length` bytes of src (read with zero-padding
// starting at srcOffset) into memory at dstOffset, expanding memory as
// required. This is the core's copy_into_memory helper (spec.md §4.3),
// used directly by apply_sub when folding a child's return data into the
// parent's memory on a successful CALL.
func copyIntoMemory(mem *Memory, src []byte, dstOffset, srcOffset, length uint64) {
	if length == 0 {
		return
	}
	data := copyFromSource(src, srcOffset, length)
	mem.Set(dstOffset, data)
}
