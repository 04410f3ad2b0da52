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
	"testing"

	"github.com/holiman/uint256"
	"pgregory.net/rand"
)

// randomCode produces a pseudo-random bytecode blob biased toward stack,
// arithmetic and memory opcodes, with an occasional PUSH so immediates are
// exercised. It is not intended to always produce terminating or valid
// programs — Step must never panic or corrupt its own invariants no matter
// what garbage bytecode throws at it.
func randomCode(rng *rand.Rand, n int) []byte {
	pool := []OpCode{
		ADD, SUB, MUL, DIV, NOT, ISZERO, AND, OR, XOR, LT, GT, EQ,
		POP, DUP1, SWAP1, PUSH1, MLOAD, MSTORE, JUMPDEST,
		STOP, PC, MSIZE, GAS,
	}
	code := make([]byte, 0, n)
	for len(code) < n {
		op := pool[rng.Intn(len(pool))]
		code = append(code, byte(op))
		if op.isPush() {
			for i := 0; i < op.pushSize() && len(code) < n; i++ {
				code = append(code, byte(rng.Intn(256)))
			}
		}
	}
	return code
}

func TestProperty_StackNeverExceedsHardCap(t *testing.T) {
	rng := rand.New(1)
	for trial := 0; trial < 200; trial++ {
		code := randomCode(rng, 64)
		m := New(Context{Code: code, GasLimit: 10_000_000}, BlockHeader{}, DefaultPatch, 0)
		for steps := 0; steps < 256 && m.Status().Kind == StatusRunning; steps++ {
			if err := m.Step(); err != nil {
				// A RequireError never arises from this opcode pool (no
				// BALANCE/EXTCODE*/SLOAD/CALL*), so any error here is a bug.
				t.Fatalf("trial %d: unexpected Step error: %v", trial, err)
			}
			if m.State().Stack.Len() > maxStackSize {
				t.Fatalf("trial %d: stack length %d exceeds hard cap %d", trial, m.State().Stack.Len(), maxStackSize)
			}
		}
	}
}

func TestProperty_UsedGasNeverExceedsLimit(t *testing.T) {
	rng := rand.New(2)
	for trial := 0; trial < 200; trial++ {
		code := randomCode(rng, 48)
		gasLimit := uint64(1 + rng.Intn(5000))
		m := New(Context{Code: code, GasLimit: gasLimit}, BlockHeader{}, DefaultPatch, 0)
		for steps := 0; steps < 256 && m.Status().Kind == StatusRunning; steps++ {
			if err := m.Step(); err != nil {
				t.Fatalf("trial %d: unexpected Step error: %v", trial, err)
			}
			if m.State().UsedGas > gasLimit {
				t.Fatalf("trial %d: used gas %d exceeds limit %d", trial, m.State().UsedGas, gasLimit)
			}
		}
	}
}

func TestProperty_MemoryCostIsMonotonicNonDecreasing(t *testing.T) {
	rng := rand.New(3)
	for trial := 0; trial < 200; trial++ {
		code := randomCode(rng, 64)
		m := New(Context{Code: code, GasLimit: 10_000_000}, BlockHeader{}, DefaultPatch, 0)
		prevWords := uint64(0)
		for steps := 0; steps < 256 && m.Status().Kind == StatusRunning; steps++ {
			if err := m.Step(); err != nil {
				t.Fatalf("trial %d: unexpected Step error: %v", trial, err)
			}
			if m.State().MemoryWords < prevWords {
				t.Fatalf("trial %d: memory word count shrank from %d to %d", trial, prevWords, m.State().MemoryWords)
			}
			prevWords = m.State().MemoryWords
		}
	}
}

func TestProperty_RequireErrorLeavesStateUntouched(t *testing.T) {
	rng := rand.New(4)
	for trial := 0; trial < 50; trial++ {
		var addrWord uint256.Int
		addrWord.SetUint64(uint64(1 + rng.Intn(1<<20)))
		addrWordBytes := addrWord.Bytes32()
		code := append([]byte{byte(PUSH32)}, addrWordBytes[:]...)
		code = append(code, byte(BALANCE), byte(STOP))

		m := New(Context{Code: code, GasLimit: 100000}, BlockHeader{}, DefaultPatch, 0)
		if err := m.Step(); err != nil { // PUSH32 always succeeds
			t.Fatalf("trial %d: unexpected error on PUSH32: %v", trial, err)
		}
		gasBefore := m.State().UsedGas
		stackBefore := m.State().Stack.Len()
		memBefore := m.State().MemoryWords

		err := m.Step() // BALANCE, must suspend: the address was never committed
		if _, ok := err.(*RequireError); !ok {
			t.Fatalf("trial %d: expected a RequireError, got %v", trial, err)
		}
		if m.State().UsedGas != gasBefore {
			t.Fatalf("trial %d: gas changed across a suspended step: %d -> %d", trial, gasBefore, m.State().UsedGas)
		}
		if m.State().Stack.Len() != stackBefore {
			t.Fatalf("trial %d: stack length changed across a suspended step: %d -> %d", trial, stackBefore, m.State().Stack.Len())
		}
		if m.State().MemoryWords != memBefore {
			t.Fatalf("trial %d: memory changed across a suspended step: %d -> %d", trial, memBefore, m.State().MemoryWords)
		}
		if m.Status().Kind != StatusRunning {
			t.Fatalf("trial %d: status must remain Running across a suspended step, got %v", trial, m.Status().Kind)
		}
	}
}
