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

// maxStackSize is the hard cap from spec.md §3: stack.len() <= 1024 must
// hold between every step.
const maxStackSize = 1024

// Stack is an ordered sequence of 256-bit words with a hard cap. Indices
// for Peek/Set count from the top (Peek(0) is the top element), matching
// the teacher's stack-depth convention in checkStackLimits.
type Stack struct {
	data []uint256.Int
}

// NewStack returns an empty stack ready for use.
func NewStack() *Stack {
	return &Stack{data: make([]uint256.Int, 0, 16)}
}

// Len reports the number of words currently on the stack.
func (s *Stack) Len() int { return len(s.data) }

// Push appends v to the top of the stack. The caller must have already
// verified Len() < maxStackSize (check_opcode's responsibility per
// spec.md §4.2 step 2); Push panics otherwise since that would indicate a
// check that was skipped, not a bytecode-caused condition.
func (s *Stack) Push(v *uint256.Int) {
	if len(s.data) >= maxStackSize {
		panic("stack: push exceeds hard cap; check_opcode should have rejected this")
	}
	s.data = append(s.data, *v)
}

// Pop removes and returns the top word. Pop panics on an empty stack for
// the same reason Push panics on overflow: underflow must be caught by
// check_opcode first.
func (s *Stack) Pop() uint256.Int {
	n := len(s.data)
	if n == 0 {
		panic("stack: pop on empty stack; check_opcode should have rejected this")
	}
	v := s.data[n-1]
	s.data = s.data[:n-1]
	return v
}

// Peek returns the word at depth k from the top without removing it.
// Peek(0) is the current top.
func (s *Stack) Peek(k int) *uint256.Int {
	n := len(s.data)
	if k < 0 || k >= n {
		panic("stack: peek out of range; check_opcode should have rejected this")
	}
	return &s.data[n-1-k]
}

// Set overwrites the word at depth k from the top, used by SWAP.
func (s *Stack) Set(k int, v *uint256.Int) {
	n := len(s.data)
	if k < 0 || k >= n {
		panic("stack: set out of range; check_opcode should have rejected this")
	}
	s.data[n-1-k] = *v
}

// Dup pushes a copy of the word at depth k from the top.
func (s *Stack) Dup(k int) {
	v := *s.Peek(k)
	s.Push(&v)
}

// Swap exchanges the top word with the word at depth k from the top
// (k=1 is SWAP1, the word directly below the top).
func (s *Stack) Swap(k int) {
	n := len(s.data)
	s.data[n-1], s.data[n-1-k] = s.data[n-1-k], s.data[n-1]
}

// snapshot returns an independent copy of the stack contents, taken right
// before an opcode that might fail with a RequireError partway through
// (after some operands are already popped). restore undoes exactly that
// mutation, preserving the atomicity spec.md §4.2 requires of a suspended
// step.
func (s *Stack) snapshot() []uint256.Int {
	return append([]uint256.Int(nil), s.data...)
}

func (s *Stack) restore(snap []uint256.Int) {
	s.data = snap
}
