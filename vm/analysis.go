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
	"github.com/dsnet/golib/unitconv"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	lru "github.com/hashicorp/golang-lru/v2"
)

// JumpdestAnalysis caches the JUMPDEST bitmap of previously seen code,
// keyed by code hash, so that a contract called repeatedly within a block
// only pays the linear scan once. Adapted from the teacher's
// interpreter/sfvm/analysis.go, generalized from tosca.Code/tosca.Hash to
// this core's []byte/common.Hash types.
type JumpdestAnalysis struct {
	cache *lru.Cache[common.Hash, *jumpDestMap]
}

// NewJumpdestAnalysis returns a cache holding up to size entries. It panics
// on a non-positive size, matching the teacher's createAnalysisCache
// behavior that analysis_test.go asserts on.
func NewJumpdestAnalysis(size int) *JumpdestAnalysis {
	cache, err := lru.New[common.Hash, *jumpDestMap](size)
	if err != nil {
		panic("vm: failed to create jumpdest analysis cache: " + err.Error())
	}
	return &JumpdestAnalysis{cache: cache}
}

// analyze returns the jumpDestMap for code, consulting codeHash (when
// non-nil) as the cache key.
func (a *JumpdestAnalysis) analyze(code []byte, codeHash *common.Hash) *jumpDestMap {
	if a == nil || a.cache == nil || codeHash == nil {
		return jumpDestAnalysisInternal(code)
	}
	if analysis, ok := a.cache.Get(*codeHash); ok {
		return analysis
	}
	jumpDests := jumpDestAnalysisInternal(code)
	a.cache.Add(*codeHash, jumpDests)
	log.Debug("vm: jumpdest analysis cache miss", "code_hash", *codeHash,
		"code_size", unitconv.FormatPrefix(float64(len(code)), unitconv.IEC, -1)+"B")
	return jumpDests
}

// jumpDestMap is a bitmap of valid JUMPDEST offsets within a code blob —
// "valid" meaning both that the byte is 0x5b and that it does not fall
// inside a PUSH immediate (spec.md §4.2/GLOSSARY).
type jumpDestMap struct {
	bitmap   []uint64
	codeSize uint64
}

func newJumpDestMap(size uint64) *jumpDestMap {
	analysisSize := size/64 + 1
	return &jumpDestMap{
		bitmap:   make([]uint64, analysisSize),
		codeSize: size,
	}
}

func jumpDestAnalysisInternal(code []byte) *jumpDestMap {
	analysis := newJumpDestMap(uint64(len(code)))
	for idx := 0; idx < len(code); idx++ {
		op := OpCode(code[idx])
		if op.isPush() {
			idx += op.pushSize()
			continue
		}
		if op == JUMPDEST {
			analysis.markJumpDest(uint64(idx))
		}
	}
	return analysis
}

func (a *jumpDestMap) isJumpDest(idx uint64) bool {
	if a == nil || idx >= a.codeSize {
		return false
	}
	uintIdx, mask := idxToAnalysisIdxAndMask(idx)
	return a.bitmap[uintIdx]&mask != 0
}

func (a *jumpDestMap) markJumpDest(idx uint64) {
	if idx >= a.codeSize {
		return
	}
	uintIdx, mask := idxToAnalysisIdxAndMask(idx)
	a.bitmap[uintIdx] |= mask
}

func idxToAnalysisIdxAndMask(idx uint64) (uint64, uint64) {
	return idx / 64, 1 << (idx % 64)
}
