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

import "testing"

func TestPC_PeekAndAdvance(t *testing.T) {
	code := []byte{byte(PUSH1), 0x2a, byte(STOP)}
	p := newPCDecoder(code, jumpDestAnalysisInternal(code))

	op, err := p.Peek()
	if err != nil || op != PUSH1 {
		t.Fatalf("expected PUSH1 at position 0, got %v/%v", op, err)
	}
	p.Advance(op)
	if p.Position() != 2 {
		t.Fatalf("expected position 2 after advancing past PUSH1's immediate, got %d", p.Position())
	}

	op, err = p.Peek()
	if err != nil || op != STOP {
		t.Fatalf("expected STOP at position 2, got %v/%v", op, err)
	}
	p.Advance(op)
	if !p.IsEnd() {
		t.Fatalf("expected IsEnd after advancing past STOP")
	}
}

func TestPC_PushValueZeroPadsPastCodeEnd(t *testing.T) {
	code := []byte{byte(PUSH32), 0x01, 0x02} // only 2 of 32 immediate bytes present
	p := newPCDecoder(code, jumpDestAnalysisInternal(code))

	v := p.PushValue(PUSH32)
	want := (uint64(0x01) << 8) | 0x02
	if v.Uint64() != want {
		t.Fatalf("expected zero-padded immediate %d, got %s", want, v.Hex())
	}
}

func TestPC_ReadDecodesAndAdvances(t *testing.T) {
	code := []byte{byte(PUSH1), 0x05, byte(ADD)}
	p := newPCDecoder(code, jumpDestAnalysisInternal(code))

	op, err := p.Read()
	if err != nil || op != PUSH1 {
		t.Fatalf("expected PUSH1, got %v/%v", op, err)
	}
	if p.Position() != 2 {
		t.Fatalf("expected Read to advance past the immediate, position = %d", p.Position())
	}
	op, err = p.Read()
	if err != nil || op != ADD {
		t.Fatalf("expected ADD, got %v/%v", op, err)
	}
	if !p.IsEnd() {
		t.Fatalf("expected IsEnd after reading the last opcode")
	}
}

func TestPC_PeekAtEndIsError(t *testing.T) {
	code := []byte{byte(STOP)}
	p := newPCDecoder(code, jumpDestAnalysisInternal(code))
	p.Advance(STOP)
	if _, err := p.Peek(); err == nil {
		t.Fatalf("expected an error peeking past the end of code")
	}
}

func TestPC_JumpAndIsValidJumpDest(t *testing.T) {
	code := []byte{byte(PUSH1), byte(JUMPDEST), byte(JUMPDEST), byte(STOP)}
	p := newPCDecoder(code, jumpDestAnalysisInternal(code))

	if p.IsValidJumpDest(1) {
		t.Fatalf("index 1 is PUSH1's immediate byte, must not be a valid jump destination")
	}
	if !p.IsValidJumpDest(2) {
		t.Fatalf("index 2 is a real JUMPDEST, must be valid")
	}
	p.Jump(2)
	if p.Position() != 2 {
		t.Fatalf("expected Jump to set position to 2, got %d", p.Position())
	}
}
