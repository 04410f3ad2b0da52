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
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Context carries a single call-frame's invariant inputs. It never changes
// for the lifetime of a Machine; a sub-call gets a fresh Context via
// Machine.Derive.
type Context struct {
	// Address is the callee: the account whose code is executing and whose
	// storage SLOAD/SSTORE address.
	Address common.Address
	// Caller is the account that invoked this call (CALLER).
	Caller common.Address
	// Origin is the externally-owned account that originated the whole
	// transaction (ORIGIN). Constant across the entire call tree.
	Origin common.Address

	// Value is the wei transferred with this call (CALLVALUE).
	Value *uint256.Int

	// Data is the immutable call data (CALLDATA*).
	Data []byte
	// Code is the immutable contract bytecode being executed.
	Code []byte

	GasPrice *uint256.Int
	GasLimit uint64
}

// BlockHeader carries block-level constants visible to opcodes such as
// COINBASE, TIMESTAMP, NUMBER, DIFFICULTY and GASLIMIT. Copied by value into
// every machine of a call tree; never mutated by the core.
type BlockHeader struct {
	Coinbase   common.Address
	Timestamp  uint64
	Number     uint64
	Difficulty *uint256.Int
	GasLimit   uint64
}
