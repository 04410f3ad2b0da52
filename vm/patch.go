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

// Revision names a protocol fork, ordered so that comparisons
// (revision >= Homestead) select "this fork or later".
type Revision int

const (
	Frontier Revision = iota
	Homestead
	TangerineWhistle
	SpuriousDragon
	Byzantium
	Constantinople
	Istanbul
)

// Patch is a fork/configuration record selecting opcode-cost table variants
// and feature flags. It is a plain value type so it can be cloned into every
// derived machine at no more cost than a struct copy (spec.md §3).
type Patch struct {
	Revision Revision

	// MaxCallDepth bounds Context.depth across the whole call tree. The
	// platform/Yellow-Paper value is 1024; the sputnikvm source this spec
	// was distilled from hardcodes 2, which was a debug cap, not a protocol
	// constant (spec.md §9) — callers should use DefaultPatch unless they
	// are deliberately constraining depth for a test.
	MaxCallDepth uint64

	// SstoreGasMetering selects EIP-1283/2200-style net-metered SSTORE gas
	// accounting (Constantinople+) over the flat Frontier-era tiers.
	SstoreGasMetering bool
	// HasRevert enables the REVERT opcode (Byzantium+).
	HasRevert bool
	// HasReturnData enables RETURNDATASIZE/RETURNDATACOPY (Byzantium+).
	HasReturnData bool
	// HasStaticCall enables STATICCALL (Byzantium+).
	HasStaticCall bool
	// HasDelegateCall enables DELEGATECALL (Homestead+).
	HasDelegateCall bool
	// HasCreate2 enables CREATE2 (Constantinople+).
	HasCreate2 bool
	// HasBitwiseShift enables SHL/SHR/SAR (Constantinople+).
	HasBitwiseShift bool
	// HasExtCodeHash enables EXTCODEHASH (Constantinople+).
	HasExtCodeHash bool
	// EIP150 applies the "all but one 64th" gas-forwarding cap and the
	// raised cost of EXTCODESIZE/BALANCE/SLOAD/CALL/EXTCODECOPY/SELFDESTRUCT
	// (Tangerine Whistle+).
	EIP150 bool

	// ChainID is pushed by CHAINID (Istanbul+); zero is a valid value and
	// does not disable the opcode, mirroring EIP-1344's own text.
	ChainID uint64
}

// DefaultPatch is Istanbul with the platform call-depth limit. It is the
// patch new callers should start from.
var DefaultPatch = Patch{
	Revision:          Istanbul,
	MaxCallDepth:      1024,
	SstoreGasMetering: true,
	HasRevert:         true,
	HasReturnData:     true,
	HasStaticCall:     true,
	HasDelegateCall:   true,
	HasCreate2:        true,
	HasBitwiseShift:   true,
	HasExtCodeHash:    true,
	EIP150:            true,
}

// FrontierPatch reproduces the original protocol launch configuration:
// no REVERT, no DELEGATECALL, no CREATE2, flat SSTORE tiers, the
// pre-EIP-150 gas schedule.
var FrontierPatch = Patch{
	Revision:     Frontier,
	MaxCallDepth: 1024,
}

// clampDepth returns the patch's effective maximum call depth, defaulting
// to the platform value when a zero-value Patch is used directly.
func (p Patch) clampDepth() uint64 {
	if p.MaxCallDepth == 0 {
		return 1024
	}
	return p.MaxCallDepth
}
