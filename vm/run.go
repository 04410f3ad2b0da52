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

// runOpcode executes the semantics of op against m's state, having already
// passed the static and dynamic checks and had its gas cost checked against
// the available gas; Step debits that cost after runOpcode returns. It returns
// the Control the step cycle should act on (spec.md §4.2 step 8): none,
// jump, stop, or a request to suspend while a sub-call runs to completion.
// afterGas is the gas this op leaves behind once its own cost (including the
// stipend give-back) has been accounted for — GAS reports it directly, and
// CREATE/CALL use it as the budget they hand to the child machine, since
// st.AvailableGas() alone still reflects the balance from before this op's
// own cost is charged.
func runOpcode(op OpCode, m *Machine, jr *jumpRequest, afterGas uint64) (control, error) {
	st := m.state

	switch {
	case op.isPush():
		v := m.pc.PushValue(op)
		st.Stack.Push(v)
		return control{}, nil
	case op.isDup():
		st.Stack.Dup(op.dupN() - 1)
		return control{}, nil
	case op.isSwap():
		st.Stack.Swap(op.swapN())
		return control{}, nil
	case op.isLog():
		return runLog(op, st)
	}

	switch op {
	case STOP:
		return control{kind: controlStop}, nil
	case ADD:
		return binOp(st, func(z, x, y *uint256.Int) { z.Add(x, y) })
	case MUL:
		return binOp(st, func(z, x, y *uint256.Int) { z.Mul(x, y) })
	case SUB:
		return binOp(st, func(z, x, y *uint256.Int) { z.Sub(x, y) })
	case DIV:
		return binOp(st, func(z, x, y *uint256.Int) { z.Div(x, y) })
	case SDIV:
		return binOp(st, func(z, x, y *uint256.Int) { z.SDiv(x, y) })
	case MOD:
		return binOp(st, func(z, x, y *uint256.Int) { z.Mod(x, y) })
	case SMOD:
		return binOp(st, func(z, x, y *uint256.Int) { z.SMod(x, y) })
	case ADDMOD:
		return ternOp(st, func(z, x, y, n *uint256.Int) { z.AddMod(x, y, n) })
	case MULMOD:
		return ternOp(st, func(z, x, y, n *uint256.Int) { z.MulMod(x, y, n) })
	case EXP:
		return binOp(st, func(z, x, y *uint256.Int) { z.Exp(x, y) })
	case SIGNEXTEND:
		byteNum := st.Stack.Pop()
		value := st.Stack.Pop()
		var z uint256.Int
		z.ExtendSign(&value, &byteNum)
		st.Stack.Push(&z)
		return control{}, nil
	case LT:
		return cmpOp(st, func(x, y *uint256.Int) bool { return x.Lt(y) })
	case GT:
		return cmpOp(st, func(x, y *uint256.Int) bool { return x.Gt(y) })
	case SLT:
		return cmpOp(st, func(x, y *uint256.Int) bool { return x.Slt(y) })
	case SGT:
		return cmpOp(st, func(x, y *uint256.Int) bool { return x.Sgt(y) })
	case EQ:
		return cmpOp(st, func(x, y *uint256.Int) bool { return x.Eq(y) })
	case ISZERO:
		x := st.Stack.Pop()
		var z uint256.Int
		if x.IsZero() {
			z.SetOne()
		}
		st.Stack.Push(&z)
		return control{}, nil
	case AND:
		return binOp(st, func(z, x, y *uint256.Int) { z.And(x, y) })
	case OR:
		return binOp(st, func(z, x, y *uint256.Int) { z.Or(x, y) })
	case XOR:
		return binOp(st, func(z, x, y *uint256.Int) { z.Xor(x, y) })
	case NOT:
		x := st.Stack.Pop()
		var z uint256.Int
		z.Not(&x)
		st.Stack.Push(&z)
		return control{}, nil
	case BYTE:
		idx := st.Stack.Pop()
		val := st.Stack.Pop()
		val.Byte(&idx)
		st.Stack.Push(&val)
		return control{}, nil
	case SHL:
		shift := st.Stack.Pop()
		value := st.Stack.Pop()
		var z uint256.Int
		if shift.LtUint64(256) {
			z.Lsh(&value, uint(shift.Uint64()))
		}
		st.Stack.Push(&z)
		return control{}, nil
	case SHR:
		shift := st.Stack.Pop()
		value := st.Stack.Pop()
		var z uint256.Int
		if shift.LtUint64(256) {
			z.Rsh(&value, uint(shift.Uint64()))
		}
		st.Stack.Push(&z)
		return control{}, nil
	case SAR:
		shift := st.Stack.Pop()
		value := st.Stack.Pop()
		var z uint256.Int
		if shift.GtUint64(256) {
			if value.Sign() >= 0 {
				z.Clear()
			} else {
				z.SetAllOne()
			}
		} else {
			z.SRsh(&value, uint(shift.Uint64()))
		}
		st.Stack.Push(&z)
		return control{}, nil
	case SHA3:
		offset := st.Stack.Pop()
		length := st.Stack.Pop()
		data := st.Memory.Get(offset.Uint64(), length.Uint64())
		digest := keccak256(data)
		var z uint256.Int
		z.SetBytes(digest[:])
		st.Stack.Push(&z)
		return control{}, nil
	case ADDRESS:
		return pushAddress(st, st.Context.Address)
	case BALANCE:
		addr := st.Stack.Pop()
		balance, err := st.AccountState.Balance(addressFromWord(&addr))
		if err != nil {
			return control{}, err
		}
		st.Stack.Push(balance)
		return control{}, nil
	case ORIGIN:
		return pushAddress(st, st.Context.Origin)
	case CALLER:
		return pushAddress(st, st.Context.Caller)
	case CALLVALUE:
		var z uint256.Int
		z.Set(st.Context.Value)
		st.Stack.Push(&z)
		return control{}, nil
	case CALLDATALOAD:
		offset := st.Stack.Pop()
		var z uint256.Int
		if offset.IsUint64() {
			z.SetBytes(copyFromSource(st.Context.Data, offset.Uint64(), 32))
		}
		st.Stack.Push(&z)
		return control{}, nil
	case CALLDATASIZE:
		return pushUint64(st, uint64(len(st.Context.Data)))
	case CALLDATACOPY:
		dst := st.Stack.Pop()
		src := st.Stack.Pop()
		length := st.Stack.Pop()
		copyIntoMemory(st.Memory, st.Context.Data, dst.Uint64(), src.Uint64(), length.Uint64())
		return control{}, nil
	case CODESIZE:
		return pushUint64(st, uint64(len(st.Context.Code)))
	case CODECOPY:
		dst := st.Stack.Pop()
		src := st.Stack.Pop()
		length := st.Stack.Pop()
		copyIntoMemory(st.Memory, st.Context.Code, dst.Uint64(), src.Uint64(), length.Uint64())
		return control{}, nil
	case GASPRICE:
		var z uint256.Int
		z.Set(st.Context.GasPrice)
		st.Stack.Push(&z)
		return control{}, nil
	case EXTCODESIZE:
		addr := st.Stack.Pop()
		code, err := st.AccountState.Code(addressFromWord(&addr))
		if err != nil {
			return control{}, err
		}
		return pushUint64(st, uint64(len(code)))
	case EXTCODECOPY:
		addr := st.Stack.Pop()
		dst := st.Stack.Pop()
		src := st.Stack.Pop()
		length := st.Stack.Pop()
		code, err := st.AccountState.Code(addressFromWord(&addr))
		if err != nil {
			return control{}, err
		}
		copyIntoMemory(st.Memory, code, dst.Uint64(), src.Uint64(), length.Uint64())
		return control{}, nil
	case RETURNDATASIZE:
		return pushUint64(st, uint64(len(st.ReturnData)))
	case RETURNDATACOPY:
		dst := st.Stack.Pop()
		src := st.Stack.Pop()
		length := st.Stack.Pop()
		if src.Uint64()+length.Uint64() > uint64(len(st.ReturnData)) {
			return control{}, ErrInvalidRange
		}
		copyIntoMemory(st.Memory, st.ReturnData, dst.Uint64(), src.Uint64(), length.Uint64())
		return control{}, nil
	case EXTCODEHASH:
		addr := st.Stack.Pop()
		code, err := st.AccountState.Code(addressFromWord(&addr))
		if err != nil {
			return control{}, err
		}
		var z uint256.Int
		if len(code) == 0 {
			exists, err := st.AccountState.Exists(addressFromWord(&addr))
			if err != nil {
				return control{}, err
			}
			if !exists {
				st.Stack.Push(&z)
				return control{}, nil
			}
		}
		digest := keccak256(code)
		z.SetBytes(digest[:])
		st.Stack.Push(&z)
		return control{}, nil
	case BLOCKHASH:
		// Only the 256 most recent blocks are addressable; the current
		// block and anything older or not yet mined read as zero without
		// ever asking the driver for a hash.
		number := st.Stack.Pop()
		if !number.IsUint64() || number.Uint64() >= st.Block.Number || st.Block.Number-number.Uint64() > 256 {
			var z uint256.Int
			st.Stack.Push(&z)
			return control{}, nil
		}
		hash, err := st.BlockhashState.Get(number.Uint64())
		if err != nil {
			return control{}, err
		}
		var z uint256.Int
		z.SetBytes(hash[:])
		st.Stack.Push(&z)
		return control{}, nil
	case COINBASE:
		return pushAddress(st, st.Block.Coinbase)
	case TIMESTAMP:
		return pushUint64(st, st.Block.Timestamp)
	case NUMBER:
		return pushUint64(st, st.Block.Number)
	case DIFFICULTY:
		var z uint256.Int
		z.Set(st.Block.Difficulty)
		st.Stack.Push(&z)
		return control{}, nil
	case GASLIMIT:
		return pushUint64(st, st.Block.GasLimit)
	case CHAINID:
		return pushUint64(st, st.Patch.ChainID)
	case SELFBALANCE:
		balance, err := st.AccountState.Balance(st.Context.Address)
		if err != nil {
			return control{}, err
		}
		st.Stack.Push(balance)
		return control{}, nil
	case POP:
		st.Stack.Pop()
		return control{}, nil
	case MLOAD:
		offset := st.Stack.Pop()
		st.Stack.Push(st.Memory.GetWord(offset.Uint64()))
		return control{}, nil
	case MSTORE:
		offset := st.Stack.Pop()
		value := st.Stack.Pop()
		bytes := value.Bytes32()
		st.Memory.Set(offset.Uint64(), bytes[:])
		return control{}, nil
	case MSTORE8:
		offset := st.Stack.Pop()
		value := st.Stack.Pop()
		st.Memory.SetByte(offset.Uint64(), byte(value.Uint64()))
		return control{}, nil
	case SLOAD:
		key := st.Stack.Pop()
		val, err := st.AccountState.StorageLoad(st.Context.Address, &key)
		if err != nil {
			return control{}, err
		}
		st.Stack.Push(val)
		return control{}, nil
	case SSTORE:
		key := st.Stack.Pop()
		value := st.Stack.Pop()
		current, err := st.AccountState.StorageLoad(st.Context.Address, &key)
		if err != nil {
			return control{}, err
		}
		if !current.IsZero() && value.IsZero() {
			st.RefundedGas += gasSstoreClearRefund
		}
		st.AccountState.StorageStore(st.Context.Address, &key, &value)
		return control{}, nil
	case JUMP:
		st.Stack.Pop() // dest, captured and validated by the static check
		return control{kind: controlJump, jumpDest: jr.dest}, nil
	case JUMPI:
		st.Stack.Pop() // dest, captured and validated by the static check
		cond := st.Stack.Pop()
		if cond.IsZero() {
			return control{}, nil
		}
		return control{kind: controlJump, jumpDest: jr.dest}, nil
	case PC:
		return pushUint64(st, uint64(m.pc.Position()))
	case MSIZE:
		return pushUint64(st, st.MemoryWords*32)
	case GAS:
		return pushUint64(st, afterGas)
	case JUMPDEST:
		return control{}, nil
	case CREATE:
		return runCreate(st, false, afterGas)
	case CREATE2:
		return runCreate(st, true, afterGas)
	case CALL:
		return runCall(st, CALL, afterGas)
	case CALLCODE:
		return runCall(st, CALLCODE, afterGas)
	case DELEGATECALL:
		return runCall(st, DELEGATECALL, afterGas)
	case STATICCALL:
		return runCall(st, STATICCALL, afterGas)
	case RETURN:
		offset := st.Stack.Pop()
		length := st.Stack.Pop()
		st.Out = st.Memory.Get(offset.Uint64(), length.Uint64())
		return control{kind: controlStop}, nil
	case REVERT:
		offset := st.Stack.Pop()
		length := st.Stack.Pop()
		st.Out = st.Memory.Get(offset.Uint64(), length.Uint64())
		return control{}, ErrExecutionReverted
	case INVALID:
		return control{}, ErrInvalidOpcode
	case SELFDESTRUCT:
		addr := st.Stack.Pop()
		beneficiary := addressFromWord(&addr)
		balance, err := st.AccountState.Balance(st.Context.Address)
		if err != nil {
			return control{}, err
		}
		if !st.AccountState.IsDeleted(st.Context.Address) {
			st.RefundedGas += gasSelfDestructRefund
		}
		st.AccountState.IncreaseBalance(beneficiary, balance)
		st.AccountState.DecreaseBalance(st.Context.Address, balance)
		st.AccountState.MarkDeleted(st.Context.Address)
		return control{kind: controlStop}, nil
	default:
		return control{}, ErrInvalidOpcode
	}
}

func binOp(st *State, f func(z, x, y *uint256.Int)) (control, error) {
	x := st.Stack.Pop()
	y := st.Stack.Pop()
	var z uint256.Int
	f(&z, &x, &y)
	st.Stack.Push(&z)
	return control{}, nil
}

// ternOp covers ADDMOD/MULMOD: a modulus of zero yields zero, which the
// uint256 AddMod/MulMod primitives already guarantee.
func ternOp(st *State, f func(z, x, y, n *uint256.Int)) (control, error) {
	x := st.Stack.Pop()
	y := st.Stack.Pop()
	n := st.Stack.Pop()
	var z uint256.Int
	f(&z, &x, &y, &n)
	st.Stack.Push(&z)
	return control{}, nil
}

func cmpOp(st *State, f func(x, y *uint256.Int) bool) (control, error) {
	x := st.Stack.Pop()
	y := st.Stack.Pop()
	var z uint256.Int
	if f(&x, &y) {
		z.SetOne()
	}
	st.Stack.Push(&z)
	return control{}, nil
}

// addressFromWord extracts the low 20 bytes of a 256-bit stack word, the
// representation EVM addresses take once pushed onto the stack.
func addressFromWord(v *uint256.Int) common.Address {
	b := v.Bytes32()
	var addr common.Address
	copy(addr[:], b[12:])
	return addr
}

func pushAddress(st *State, addr common.Address) (control, error) {
	var z uint256.Int
	z.SetBytes(addr.Bytes())
	st.Stack.Push(&z)
	return control{}, nil
}

func pushUint64(st *State, v uint64) (control, error) {
	var z uint256.Int
	z.SetUint64(v)
	st.Stack.Push(&z)
	return control{}, nil
}

func runLog(op OpCode, st *State) (control, error) {
	offset := st.Stack.Pop()
	length := st.Stack.Pop()
	n := op.logN()
	topics := make([]uint256.Int, n)
	for i := 0; i < n; i++ {
		topics[i] = st.Stack.Pop()
	}
	data := st.Memory.Get(offset.Uint64(), length.Uint64())
	st.Logs = append(st.Logs, Log{Address: st.Context.Address, Topics: topics, Data: data})
	return control{}, nil
}

// runCreate pops CREATE/CREATE2's operands and returns a Control asking the
// step cycle to suspend this machine in MachineStatus.InvokeCreate so the
// driver can run a derived child machine over the init code (spec.md
// §4.1's derive/apply_create contract).
func runCreate(st *State, isCreate2 bool, afterGas uint64) (control, error) {
	value := st.Stack.Pop()
	offset := st.Stack.Pop()
	length := st.Stack.Pop()
	var salt uint256.Int
	if isCreate2 {
		salt = st.Stack.Pop()
	}

	initCode := st.Memory.Get(offset.Uint64(), length.Uint64())

	nonce, err := st.AccountState.Nonce(st.Context.Address)
	if err != nil {
		return control{}, err
	}

	var newAddr common.Address
	if isCreate2 {
		newAddr = create2Address(st.Context.Address, salt, initCode)
	} else {
		newAddr = createAddress(st.Context.Address, nonce)
	}

	childCtx := Context{
		Address:  newAddr,
		Caller:   st.Context.Address,
		Origin:   st.Context.Origin,
		Value:    &value,
		Data:     nil,
		Code:     initCode,
		GasPrice: st.Context.GasPrice,
		GasLimit: afterGas,
	}
	return control{kind: controlInvokeCreate, createContext: childCtx}, nil
}

// runCall pops a CALL-family instruction's operands and returns a Control
// asking the step cycle to suspend this machine in MachineStatus.InvokeCall
// (spec.md §4.1's derive/apply_call contract).
func runCall(st *State, kind OpCode, afterGas uint64) (control, error) {
	gasArg := st.Stack.Pop()
	addr := st.Stack.Pop()

	var value uint256.Int
	if kind == CALL || kind == CALLCODE {
		value = st.Stack.Pop()
	}

	inOffset := st.Stack.Pop()
	inLength := st.Stack.Pop()
	outOffset := st.Stack.Pop()
	outLength := st.Stack.Pop()

	target := addressFromWord(&addr)
	in := st.Memory.Get(inOffset.Uint64(), inLength.Uint64())

	callCtx := Context{
		Address:  target,
		Caller:   st.Context.Address,
		Origin:   st.Context.Origin,
		Value:    &value,
		Data:     in,
		GasPrice: st.Context.GasPrice,
		GasLimit: callGasAllocation(afterGas, &gasArg, &value, st.Patch.EIP150),
	}
	if kind == CALLCODE || kind == DELEGATECALL {
		callCtx.Address = st.Context.Address
	}
	if kind == DELEGATECALL {
		callCtx.Caller = st.Context.Caller
		callCtx.Value = st.Context.Value
	}

	code, err := st.AccountState.Code(target)
	if err != nil {
		return control{}, err
	}
	callCtx.Code = code

	return control{
		kind:        controlInvokeCall,
		callContext: callCtx,
		callOut:     callRange{offset: outOffset.Uint64(), length: outLength.Uint64()},
		callKind:    kind,
	}, nil
}

// callGasAllocation computes the gas forwarded to a sub-call: the gas
// argument the caller explicitly requested, capped by the calling machine's
// remaining gas — all of it pre-Tangerine-Whistle, all-but-one-64th under
// EIP-150 — plus a stipend when value is transferred. afterGas already has
// this op's own stipend folded in (it is the generic post-instruction
// balance runOpcode is handed); the stipend is pulled back out before the
// cap is computed so it runs against gas actually available, then folded
// back into the forwarded amount afterward, uncapped — it is a gift to the
// callee, not part of what the cap rations.
func callGasAllocation(afterGas uint64, gasArg, value *uint256.Int, eip150 bool) uint64 {
	var stipend uint64
	if !value.IsZero() {
		stipend = gasCallStipend
	}
	available := afterGas - stipend
	limit := available
	if eip150 {
		limit = available - available/64
	}
	requested := limit
	if gasArg.IsUint64() && gasArg.Uint64() < limit {
		requested = gasArg.Uint64()
	}
	requested += stipend
	return requested
}

func createAddress(sender common.Address, nonce uint64) common.Address {
	data := make([]byte, 0, 20+8)
	data = append(data, sender.Bytes()...)
	var nb [8]byte
	for i := 0; i < 8; i++ {
		nb[7-i] = byte(nonce >> (8 * i))
	}
	data = append(data, nb[:]...)
	digest := keccak256(data)
	var addr common.Address
	copy(addr[:], digest[12:])
	return addr
}

func create2Address(sender common.Address, salt uint256.Int, initCode []byte) common.Address {
	codeHash := keccak256(initCode)
	data := make([]byte, 0, 1+20+32+32)
	data = append(data, 0xff)
	data = append(data, sender.Bytes()...)
	saltBytes := salt.Bytes32()
	data = append(data, saltBytes[:]...)
	data = append(data, codeHash[:]...)
	digest := keccak256(data)
	var addr common.Address
	copy(addr[:], digest[12:])
	return addr
}
