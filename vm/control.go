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

// controlKind classifies what run_opcode asks the step cycle to do next,
// mirroring the Control enum of spec.md §4.2 (None / Jump / Stop /
// InvokeCreate / InvokeCall).
type controlKind int

const (
	controlNone controlKind = iota
	controlJump
	controlStop
	controlInvokeCreate
	controlInvokeCall
)

// callRange is an in-memory [offset, length) window, used for where a
// sub-call's return data should land.
type callRange struct {
	offset uint64
	length uint64
}

// control is the instruction-level outcome threaded back into Machine.Step.
type control struct {
	kind controlKind

	jumpDest uint64

	createContext Context

	callContext Context
	callOut     callRange
	callKind    OpCode // CALL, CALLCODE, DELEGATECALL or STATICCALL
}
