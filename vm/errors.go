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
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// MachineError is a deterministic, bytecode-caused condition that
// terminates the current call frame. It never escapes a driver-visible
// step() call; it is recorded as MachineStatus.ExitedErr instead.
type MachineError struct {
	kind machineErrorKind
	msg  string
}

type machineErrorKind int

const (
	errKindStackUnderflow machineErrorKind = iota
	errKindStackOverflow
	errKindEmptyGas
	errKindInvalidOpcode
	errKindBadJumpDest
	errKindCallstackOverflow
	errKindInsufficientBalance
	errKindInvalidRange
	errKindExecutionReverted
)

func (e *MachineError) Error() string { return e.msg }

func (e *MachineError) Is(target error) bool {
	other, ok := target.(*MachineError)
	return ok && other.kind == e.kind
}

var (
	ErrStackUnderflow      = &MachineError{errKindStackUnderflow, "stack underflow"}
	ErrStackOverflow       = &MachineError{errKindStackOverflow, "stack overflow"}
	ErrEmptyGas            = &MachineError{errKindEmptyGas, "out of gas"}
	ErrInvalidOpcode       = &MachineError{errKindInvalidOpcode, "invalid opcode"}
	ErrBadJumpDest         = &MachineError{errKindBadJumpDest, "bad jump destination"}
	ErrCallstackOverflow   = &MachineError{errKindCallstackOverflow, "callstack overflow"}
	ErrInsufficientBalance = &MachineError{errKindInsufficientBalance, "insufficient balance"}
	ErrInvalidRange        = &MachineError{errKindInvalidRange, "invalid memory/data range"}
	ErrExecutionReverted   = &MachineError{errKindExecutionReverted, "execution reverted"}
)

// PCError is a decode-time failure of the bytecode pointer: there is no
// byte to decode because the position is past the end of code. An
// unassigned opcode byte decodes normally and fails with ErrInvalidOpcode
// when it runs. JUMP/JUMPI target validation
// is a separate static check (ErrBadJumpDest) performed against the
// destination's IsValidJumpDest, not a decode-time PCError.
type PCError struct{}

func (e *PCError) Error() string { return "invalid opcode" }

var errPCInvalidOpcode = &PCError{}

// RequireError is how the core asks its driver for a world datum it has
// not yet committed. Returning one from step() leaves every field of State
// untouched (spec.md §4.2's atomicity property); the driver is expected to
// resolve it and call Machine.CommitAccount/CommitBlockhash, then retry the
// same step().
type RequireError struct {
	Account        *common.Address
	AccountCode    *common.Address
	AccountStorage *common.Address
	StorageKey     *uint256.Int
	Blockhash      *uint64
}

func (e *RequireError) Error() string {
	switch {
	case e.Account != nil:
		return fmt.Sprintf("require: account %s", e.Account)
	case e.AccountCode != nil:
		return fmt.Sprintf("require: account code %s", e.AccountCode)
	case e.AccountStorage != nil:
		return fmt.Sprintf("require: account storage %s[%s]", e.AccountStorage, e.StorageKey)
	case e.Blockhash != nil:
		return fmt.Sprintf("require: blockhash %d", *e.Blockhash)
	default:
		return "require: unknown"
	}
}

func requireAccount(addr common.Address) *RequireError     { return &RequireError{Account: &addr} }
func requireAccountCode(addr common.Address) *RequireError { return &RequireError{AccountCode: &addr} }
func requireStorage(addr common.Address, key *uint256.Int) *RequireError {
	return &RequireError{AccountStorage: &addr, StorageKey: key}
}
func requireBlockhash(n uint64) *RequireError { return &RequireError{Blockhash: &n} }

// CommitError is returned by CommitAccount/CommitBlockhash when the driver
// misuses the pull-cache protocol — these are programmer errors in the
// driver, not machine-level or require-level conditions.
var (
	ErrAlreadyCommitted  = errors.New("commit: entry already committed with a different value")
	ErrInvalidCommitment = errors.New("commit: invalid commitment")
)
