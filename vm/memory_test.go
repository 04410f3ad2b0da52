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
	"bytes"
	"testing"
)

func TestMemory_SetAndGet(t *testing.T) {
	m := NewMemory()
	m.Set(0, []byte{1, 2, 3, 4})
	got := m.Get(0, 4)
	if !bytes.Equal(got, []byte{1, 2, 3, 4}) {
		t.Fatalf("unexpected read: %x", got)
	}
	if m.Len() != 32 {
		t.Fatalf("expected memory to grow to a single word (32 bytes), got %d", m.Len())
	}
}

func TestMemory_GetPastLengthReturnsZero(t *testing.T) {
	m := NewMemory()
	m.Set(0, []byte{1})
	got := m.Get(100, 4)
	if !bytes.Equal(got, make([]byte, 4)) {
		t.Fatalf("expected zero-padded read past logical length, got %x", got)
	}
}

func TestMemory_GetNeverShrinksOrExpandsStore(t *testing.T) {
	m := NewMemory()
	m.Set(0, []byte{1, 2, 3})
	before := m.Len()
	_ = m.Get(1000, 32)
	if m.Len() != before {
		t.Fatalf("Get must never mutate memory length, was %d now %d", before, m.Len())
	}
}

func TestMemory_SetByteAndGetWord(t *testing.T) {
	m := NewMemory()
	m.SetByte(31, 0xff)
	word := m.GetWord(0)
	if word.Uint64() != 0xff {
		t.Fatalf("expected last byte of word to be 0xff, got %s", word.Hex())
	}
}

func TestMemory_ResizeNeverShrinks(t *testing.T) {
	m := NewMemory()
	m.resize(4)
	if m.Len() != 128 {
		t.Fatalf("expected 4 words = 128 bytes, got %d", m.Len())
	}
	m.resize(1)
	if m.Len() != 128 {
		t.Fatalf("resize must never shrink memory, got %d", m.Len())
	}
}

func TestWordsFor_RoundsUp(t *testing.T) {
	cases := map[uint64]uint64{0: 0, 1: 1, 32: 1, 33: 2, 64: 2, 65: 3}
	for size, want := range cases {
		if got := wordsFor(size); got != want {
			t.Errorf("wordsFor(%d) = %d, want %d", size, got, want)
		}
	}
}
