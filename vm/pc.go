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

// pcDecoder is the bytecode decoder: it knows how to peek/read the instruction at
// the current offset, decode PUSH immediates, and validate jump targets
// against the JUMPDEST analysis. spec.md §1 lists the opcode table/bytecode
// decoder as an external collaborator; this is this core's concrete
// instance of that collaborator.
type pcDecoder struct {
	code     []byte
	analysis *jumpDestMap
	pos      int
}

// newPCDecoder builds a decoder over code, using an already computed JUMPDEST
// analysis of that code.
func newPCDecoder(code []byte, analysis *jumpDestMap) *pcDecoder {
	return &pcDecoder{code: code, analysis: analysis, pos: 0}
}

// IsEnd reports whether the program counter has advanced past the last
// byte of code (spec.md §4.2 step 1).
func (p *pcDecoder) IsEnd() bool { return p.pos >= len(p.code) }

// Position returns the current byte offset.
func (p *pcDecoder) Position() int { return p.pos }

// Peek decodes the instruction at the current position without advancing.
func (p *pcDecoder) Peek() (OpCode, error) {
	if p.IsEnd() {
		return 0, errPCInvalidOpcode
	}
	return OpCode(p.code[p.pos]), nil
}

// PushValue returns the immediate bytes for a PUSH instruction at the
// current position (not including the opcode byte itself), zero-padded if
// the code ends before the full immediate.
func (p *pcDecoder) PushValue(op OpCode) *uint256.Int {
	size := op.pushSize()
	start := p.pos + 1
	end := start + size
	buf := make([]byte, size)
	if start < len(p.code) {
		copySrc := p.code[start:min(end, len(p.code))]
		copy(buf, copySrc)
	}
	var v uint256.Int
	v.SetBytes(buf)
	return &v
}

// Read decodes the instruction at the current position and advances past
// it (and its immediate, for PUSH).
func (p *pcDecoder) Read() (OpCode, error) {
	op, err := p.Peek()
	if err != nil {
		return 0, err
	}
	p.Advance(op)
	return op, nil
}

// Advance moves the position past op (already known, e.g. from Peek) and
// its immediate. Kept distinct from Read so that PUSH's immediate can be
// decoded via PushValue before the position moves out from under it.
func (p *pcDecoder) Advance(op OpCode) {
	if op.isPush() {
		p.pos += 1 + op.pushSize()
	} else {
		p.pos++
	}
}

// IsValidJumpDest reports whether dest is a JUMPDEST byte that does not
// fall inside a PUSH immediate.
func (p *pcDecoder) IsValidJumpDest(dest uint64) bool {
	return p.analysis.isJumpDest(dest)
}

// Jump sets the program counter to dest, which must already have been
// validated by IsValidJumpDest.
func (p *pcDecoder) Jump(dest uint64) { p.pos = int(dest) }
