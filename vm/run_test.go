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
	"github.com/holiman/uint256"
)

func TestAddressFromWord_TakesLow20Bytes(t *testing.T) {
	addr := common.Address{0x01, 0x02, 0x03}
	word := new(uint256.Int).SetBytes(addr.Bytes())
	got := addressFromWord(word)
	if got != addr {
		t.Fatalf("expected %s, got %s", addr.Hex(), got.Hex())
	}
}

func TestCallGasAllocation_EIP150CapIsGatedOnPatch(t *testing.T) {
	huge := new(uint256.Int).SetUint64(1 << 60) // asks for more than available
	zero := uint256.NewInt(0)

	afterGas := uint64(6400)
	if got := callGasAllocation(afterGas, huge, zero, true); got != afterGas-afterGas/64 {
		t.Fatalf("under EIP-150 forwarding must cap at 63/64ths, got %d", got)
	}
	if got := callGasAllocation(afterGas, huge, zero, false); got != afterGas {
		t.Fatalf("pre-EIP-150 forwarding caps at all available gas, got %d", got)
	}
}

func TestCallGasAllocation_ExplicitGasArgWinsWhenSmaller(t *testing.T) {
	small := uint256.NewInt(100)
	zero := uint256.NewInt(0)
	for _, eip150 := range []bool{true, false} {
		if got := callGasAllocation(6400, small, zero, eip150); got != 100 {
			t.Fatalf("eip150=%v: expected the requested 100 gas forwarded, got %d", eip150, got)
		}
	}
}

func TestCallGasAllocation_StipendAddedUncapped(t *testing.T) {
	huge := new(uint256.Int).SetUint64(1 << 60)
	value := uint256.NewInt(1)
	afterGas := uint64(6400 + gasCallStipend)
	available := uint64(6400)
	if got := callGasAllocation(afterGas, huge, value, true); got != available-available/64+gasCallStipend {
		t.Fatalf("the stipend must ride on top of the capped forwarded gas, got %d", got)
	}
}

func TestCreateAddress_DeterministicAndNonceSensitive(t *testing.T) {
	sender := common.Address{0xaa}
	a := createAddress(sender, 0)
	b := createAddress(sender, 0)
	if a != b {
		t.Fatalf("createAddress must be deterministic for the same inputs")
	}
	c := createAddress(sender, 1)
	if a == c {
		t.Fatalf("createAddress must differ across nonces")
	}
}

func TestCreateAddress_DiffersBySender(t *testing.T) {
	a := createAddress(common.Address{0x01}, 0)
	b := createAddress(common.Address{0x02}, 0)
	if a == b {
		t.Fatalf("createAddress must differ across senders")
	}
}

func TestCreate2Address_DeterministicAndSaltSensitive(t *testing.T) {
	sender := common.Address{0xbb}
	initCode := []byte{0x60, 0x00, 0x60, 0x00}
	salt := *uint256.NewInt(1)

	a := create2Address(sender, salt, initCode)
	b := create2Address(sender, salt, initCode)
	if a != b {
		t.Fatalf("create2Address must be deterministic for the same inputs")
	}

	otherSalt := *uint256.NewInt(2)
	c := create2Address(sender, otherSalt, initCode)
	if a == c {
		t.Fatalf("create2Address must differ across salts")
	}

	otherCode := []byte{0x60, 0x01}
	d := create2Address(sender, salt, otherCode)
	if a == d {
		t.Fatalf("create2Address must differ across init code")
	}
}

func TestCreateAddress_DiffersFromCreate2Address(t *testing.T) {
	sender := common.Address{0xcc}
	a := createAddress(sender, 0)
	b := create2Address(sender, *uint256.NewInt(0), nil)
	if a == b {
		t.Fatalf("CREATE and CREATE2 address derivation should not collide for trivial inputs")
	}
}
