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

	"github.com/ethereum/go-ethereum/common"
)

func TestJumpdestAnalysis_PanicsOnNonPositiveSize(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("expected NewJumpdestAnalysis to panic on a non-positive size")
		}
	}()
	_ = NewJumpdestAnalysis(-1)
}

func TestJumpDestMap_NewIsNonEmpty(t *testing.T) {
	a := newJumpDestMap(10)
	if a.codeSize == 0 {
		t.Error("expected newJumpDestMap to return a non-empty map")
	}
	if len(a.bitmap) == 0 {
		t.Error("expected newJumpDestMap to return a non-empty bitmap")
	}
}

func TestJumpDestMap_MarkAndIsJumpDest(t *testing.T) {
	size := 10
	a := newJumpDestMap(uint64(size))
	a.markJumpDest(2)
	a.markJumpDest(18)
	for i := 0; i < 2*size; i++ {
		if i == 2 && !a.isJumpDest(uint64(i)) {
			t.Errorf("expected index %d to be marked as jump destination", i)
		}
		if i != 2 && a.isJumpDest(uint64(i)) {
			t.Errorf("expected index %d to not be marked as jump destination", i)
		}
	}
}

func TestJumpDestAnalysisInternal_MarksAtCorrectIndex(t *testing.T) {
	code := []byte{byte(JUMPDEST), byte(PUSH1), byte(JUMPDEST), byte(JUMPDEST)}
	analysis := jumpDestAnalysisInternal(code)
	if !analysis.isJumpDest(0) {
		t.Errorf("expected index 0 to be jump destination")
	}
	if analysis.isJumpDest(1) {
		t.Errorf("expected index 1 to not be jump destination")
	}
	if analysis.isJumpDest(2) {
		t.Errorf("expected index 2 to not be jump destination")
	}
	if !analysis.isJumpDest(3) {
		t.Errorf("expected index 3 to be jump destination")
	}
}

func TestJumpDestAnalysisInternal_PushDataIsSkipped(t *testing.T) {
	push9 := PUSH1 + 8
	push2 := PUSH1 + 1
	code := []byte{
		byte(push9), byte(JUMPDEST), byte(JUMPDEST), byte(JUMPDEST), byte(JUMPDEST),
		byte(JUMPDEST), byte(JUMPDEST), byte(JUMPDEST), byte(JUMPDEST), byte(JUMPDEST),
		byte(JUMPDEST),
		byte(push2), byte(JUMPDEST), byte(JUMPDEST),
		byte(JUMPDEST),
	}
	analysis := jumpDestAnalysisInternal(code)
	for i := range code {
		if analysis.isJumpDest(uint64(i)) && (i != 10 && i != 14) {
			t.Errorf("expected index %d to not be jump destination", i)
		}
		if !analysis.isJumpDest(uint64(i)) && (i == 10 || i == 14) {
			t.Errorf("expected index %d to be jump destination", i)
		}
	}
}

func TestJumpdestAnalysis_CachesByCodeHash(t *testing.T) {
	a := NewJumpdestAnalysis(1 << 2)

	code := []byte{byte(STOP)}
	hash := common.Hash{1}

	want := a.analyze(code, &hash)
	got := a.analyze(code, &hash)
	if want != got {
		t.Errorf("cached analysis not returned on second lookup")
	}
}

func TestJumpdestAnalysis_DistinctCodeMissesIndependently(t *testing.T) {
	a := NewJumpdestAnalysis(4)

	codeA := []byte{byte(JUMPDEST)}
	codeB := []byte{byte(STOP), byte(JUMPDEST)}
	hashA := common.Hash{0xaa}
	hashB := common.Hash{0xbb}

	gotA := a.analyze(codeA, &hashA)
	gotB := a.analyze(codeB, &hashB)
	if !gotA.isJumpDest(0) {
		t.Errorf("expected codeA index 0 to be a jump destination")
	}
	if gotA.isJumpDest(1) {
		t.Errorf("codeA should not have an index 1")
	}
	if !gotB.isJumpDest(1) {
		t.Errorf("expected codeB index 1 to be a jump destination")
	}
}

func TestAnalyzeCode_NilCacheFallsBackToDirectAnalysis(t *testing.T) {
	code := []byte{byte(JUMPDEST)}
	analysis := analyzeCode(nil, code)
	if !analysis.isJumpDest(0) {
		t.Errorf("expected direct analysis to still find the jump destination")
	}
}

func TestAnalyzeCode_EmptyCodeSkipsCache(t *testing.T) {
	analysis := analyzeCode(defaultAnalysisCache, nil)
	if analysis.codeSize != 0 {
		t.Errorf("expected empty code to produce a zero-size analysis")
	}
}
