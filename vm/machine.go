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
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
)

// State is everything a Machine carries between steps (spec.md §3): the
// call frame's memory/stack/gas accounting plus the world-view caches that
// are cloned into a child on derivation and folded back on apply_sub.
type State struct {
	Stack  *Stack
	Memory *Memory

	Context Context
	Block   BlockHeader
	Patch   Patch

	// Out is the byte range handed to RETURN/REVERT, read by the parent on
	// apply_sub.
	Out []byte
	// ReturnData is the most recent sub-call's Out, exposed by
	// RETURNDATASIZE/RETURNDATACOPY.
	ReturnData []byte

	// MemoryWords is the highest word-count any instruction's memory_cost
	// has required so far; memory_gas(MemoryWords) is the gas already paid
	// for memory expansion (spec.md §3 invariant 6).
	MemoryWords uint64
	UsedGas     uint64
	RefundedGas uint64

	AccountState   *AccountState
	BlockhashState *BlockhashState
	Logs           []Log

	// Depth is this call frame's position in the call tree; the top-level
	// machine is depth 0.
	Depth uint64
	// ReadOnly is set on a machine derived for STATICCALL (or inherited by
	// one of its own descendants); SSTORE, LOG*, CREATE*, SELFDESTRUCT and
	// value-transferring CALL are rejected while it holds.
	ReadOnly bool
}

// AvailableGas is Context.GasLimit minus gas already spent — the budget
// left for the instruction about to run or a sub-call about to be
// allocated (spec.md §4.4's `available_gas()`).
func (s *State) AvailableGas() uint64 {
	if s.UsedGas >= s.Context.GasLimit {
		return 0
	}
	return s.Context.GasLimit - s.UsedGas
}

// StatusKind discriminates MachineStatus, matching spec.md §4.2's
// MachineStatus enum (Running / ExitedOk / ExitedErr / InvokeCreate /
// InvokeCall).
type StatusKind int

const (
	StatusRunning StatusKind = iota
	StatusExitedOk
	StatusExitedErr
	StatusInvokeCreate
	StatusInvokeCall
)

// MachineStatus is a Machine's externally-visible phase. Only one group of
// fields is meaningful at a time, selected by Kind.
type MachineStatus struct {
	Kind StatusKind

	// Err is set when Kind == StatusExitedErr.
	Err *MachineError

	// CreateContext is set when Kind == StatusInvokeCreate: the context the
	// driver should run a derived child machine over.
	CreateContext Context

	// CallContext/CallOut/CallKind are set when Kind == StatusInvokeCall.
	CallContext Context
	CallOut     callRange
	CallKind    OpCode
}

// Machine is a single call frame's bytecode interpreter (spec.md §4.1): a
// decoder (PC) layered over a State, stepping one instruction at a time and
// suspending instead of blocking when it needs data from outside the call
// tree.
type Machine struct {
	state    *State
	pc       *pcDecoder
	status   MachineStatus
	analysis *jumpDestMap
	cache    *JumpdestAnalysis
}

// defaultAnalysisCache memoizes the JUMPDEST bitmap of recently seen code
// across every Machine in the process, keyed by the code's own keccak256 —
// the case this matters is a contract (e.g. a token) CALLed repeatedly by
// many distinct top-level transactions, each starting a fresh Machine tree
// that would otherwise re-scan identical code.
var defaultAnalysisCache = NewJumpdestAnalysis(256)

func analyzeCode(cache *JumpdestAnalysis, code []byte) *jumpDestMap {
	if cache == nil || len(code) == 0 {
		return jumpDestAnalysisInternal(code)
	}
	hash := common.Hash(keccak256(code))
	return cache.analyze(code, &hash)
}

// New constructs a top-level machine (depth 0, unless the caller is
// replaying a sub-call tree and wants to seed a different depth) with
// empty world-view caches, ready to receive CommitAccount/CommitBlockhash
// calls as its opcodes request them.
func New(context Context, block BlockHeader, patch Patch, depth uint64) *Machine {
	analysis := analyzeCode(defaultAnalysisCache, context.Code)
	return &Machine{
		state: &State{
			Stack:          NewStack(),
			Memory:         NewMemory(),
			Context:        context,
			Block:          block,
			Patch:          patch,
			AccountState:   NewAccountState(),
			BlockhashState: NewBlockhashState(),
			Depth:          depth,
		},
		pc:       newPCDecoder(context.Code, analysis),
		status:   MachineStatus{Kind: StatusRunning},
		analysis: analysis,
		cache:    defaultAnalysisCache,
	}
}

// Derive builds a child machine for a sub-call, cloning this machine's
// world-view caches (spec.md §3's clone-on-descend ownership rule) so the
// child can read anything the parent has already committed without asking
// its own driver again. Value transfer for CALL/CALLCODE/CREATE happens
// later, in apply_sub once the child has reached a terminal status (spec.md
// §4.1) — not here, so a child that never gets folded back (e.g. the driver
// abandons it) can never have moved value on its own. readOnly marks a
// STATICCALL child; it is inherited by the child's own descendants
// regardless of what they pass.
func (m *Machine) Derive(context Context, readOnly bool) *Machine {
	analysis := analyzeCode(m.cache, context.Code)
	return &Machine{
		state: &State{
			Stack:          NewStack(),
			Memory:         NewMemory(),
			Context:        context,
			Block:          m.state.Block,
			Patch:          m.state.Patch,
			AccountState:   m.state.AccountState.Clone(),
			BlockhashState: m.state.BlockhashState.Clone(),
			Logs:           cloneLogs(m.state.Logs),
			Depth:          m.state.Depth + 1,
			ReadOnly:       readOnly || m.state.ReadOnly,
		},
		pc:       newPCDecoder(context.Code, analysis),
		status:   MachineStatus{Kind: StatusRunning},
		analysis: analysis,
		cache:    m.cache,
	}
}

// CommitAccount answers a RequireError.Account/.AccountCode by recording a
// driver-supplied fact in this machine's AccountState cache.
func (m *Machine) CommitAccount(c AccountCommitment) error {
	return m.state.AccountState.Commit(c)
}

// CommitBlockhash answers a RequireError.Blockhash.
func (m *Machine) CommitBlockhash(number uint64, hash common.Hash) error {
	return m.state.BlockhashState.Commit(number, hash)
}

// State exposes the machine's current frame, e.g. for a driver inspecting
// the final stack/memory/logs once status is terminal.
func (m *Machine) State() *State { return m.state }

// Status reports the machine's current phase.
func (m *Machine) Status() MachineStatus { return m.status }

// Check runs the static half of the two-phase instruction cycle without
// committing anything, for a driver that wants to inspect the next
// instruction's shape before calling Step (spec.md §4.2 step 2).
func (m *Machine) Check() error {
	if m.status.Kind != StatusRunning {
		return nil
	}
	if m.pc.IsEnd() {
		return nil
	}
	op, err := m.pc.Peek()
	if err != nil {
		return err
	}
	jr, err := checkOpcode(op, m.state.Stack)
	if err != nil {
		return err
	}
	if jr != nil && !m.pc.IsValidJumpDest(jr.dest) {
		return ErrBadJumpDest
	}
	return nil
}

// Step runs the full eight-step cycle of spec.md §4.2: decode, static
// check, dynamic check, memory-cost computation, gas-cost computation,
// gas-sufficiency check, execution, and cost commit plus control
// application. The only error Step
// itself returns is a *RequireError — every other outcome (success,
// bytecode-caused failure, or a sub-call request) is recorded in Status()
// instead, never surfaced as a Go error, matching the pull-based
// suspend-don't-block design (spec.md §5).
func (m *Machine) Step() error {
	if m.status.Kind != StatusRunning {
		return nil
	}
	if m.pc.IsEnd() {
		m.status = MachineStatus{Kind: StatusExitedOk}
		return nil
	}

	op, decodeErr := m.pc.Peek()
	if decodeErr != nil {
		m.status = MachineStatus{Kind: StatusExitedErr, Err: ErrInvalidOpcode}
		return nil
	}

	log.Trace("vm: step", "pc", m.pc.Position(), "op", op, "depth", m.state.Depth, "gas", m.state.AvailableGas())

	jr, err := checkOpcode(op, m.state.Stack)
	if req, me := classifyError(err); req != nil || me != nil {
		if req != nil {
			return req
		}
		m.status = MachineStatus{Kind: StatusExitedErr, Err: me}
		return nil
	}
	// Destination validity is part of the static check: a bad jump target
	// fails the step here, before any gas is computed or charged.
	if jr != nil && !m.pc.IsValidJumpDest(jr.dest) {
		m.status = MachineStatus{Kind: StatusExitedErr, Err: ErrBadJumpDest}
		return nil
	}

	if err := extraCheckOpcode(op, m.state); err != nil {
		if req, me := classifyError(err); req != nil || me != nil {
			if req != nil {
				return req
			}
			m.status = MachineStatus{Kind: StatusExitedErr, Err: me}
			return nil
		}
	}

	memWords, err := memoryCost(op, m.state.Stack, m.state.MemoryWords)
	if req, me := classifyError(err); req != nil || me != nil {
		if req != nil {
			return req
		}
		m.status = MachineStatus{Kind: StatusExitedErr, Err: me}
		return nil
	}

	cost, err := gasCost(op, m.state, memWords)
	if req, me := classifyError(err); req != nil || me != nil {
		if req != nil {
			return req
		}
		m.status = MachineStatus{Kind: StatusExitedErr, Err: me}
		return nil
	}

	stipend := gasStipend(op, m.state)
	if cost > m.state.AvailableGas()+stipend {
		m.status = MachineStatus{Kind: StatusExitedErr, Err: ErrEmptyGas}
		return nil
	}
	afterGas := m.state.AvailableGas() - cost + stipend

	stackSnapshot := m.state.Stack.snapshot()

	ctrl, runErr := runOpcode(op, m, jr, afterGas)
	if runErr != nil {
		if req, ok := runErr.(*RequireError); ok {
			m.state.Stack.restore(stackSnapshot)
			return req
		}
		me, _ := runErr.(*MachineError)
		if me == nil {
			me = ErrInvalidOpcode
		}
		m.state.MemoryWords = memWords
		m.state.UsedGas += cost - stipend
		m.status = MachineStatus{Kind: StatusExitedErr, Err: me}
		return nil
	}

	m.state.MemoryWords = memWords
	// The stipend is handed to the child for free: it is part of the
	// child's budget but not of what this frame is charged.
	m.state.UsedGas += cost - stipend

	switch ctrl.kind {
	case controlStop:
		m.status = MachineStatus{Kind: StatusExitedOk}
	case controlJump:
		m.pc.Jump(ctrl.jumpDest)
	case controlInvokeCreate:
		// Advance past CREATE/CREATE2 now: apply_sub resumes execution at
		// the instruction following it, once the child has folded back.
		m.pc.Advance(op)
		m.status = MachineStatus{Kind: StatusInvokeCreate, CreateContext: ctrl.createContext}
	case controlInvokeCall:
		m.pc.Advance(op)
		m.status = MachineStatus{
			Kind:        StatusInvokeCall,
			CallContext: ctrl.callContext,
			CallOut:     ctrl.callOut,
			CallKind:    ctrl.callKind,
		}
	default:
		m.pc.Advance(op)
	}
	return nil
}

// classifyError splits a generic error into exactly one of (*RequireError,
// *MachineError). Both are nil when err is nil.
func classifyError(err error) (*RequireError, *MachineError) {
	if err == nil {
		return nil, nil
	}
	if req, ok := err.(*RequireError); ok {
		return req, nil
	}
	if me, ok := err.(*MachineError); ok {
		return nil, me
	}
	return nil, &MachineError{msg: err.Error()}
}

// ApplySub folds a completed child machine's outcome back into m, which
// must be in StatusInvokeCreate or StatusInvokeCall (spec.md §4.1's
// apply_create/apply_call). It panics if child is not itself terminal, or
// if child claims to have spent more gas than m made available — both
// indicate a broken invariant rather than a bytecode-caused condition
// (spec.md §7).
func (m *Machine) ApplySub(child *Machine) {
	switch child.status.Kind {
	case StatusExitedOk, StatusExitedErr:
	default:
		panic("vm: apply_sub called with a child machine that has not exited")
	}
	if m.state.AvailableGas() < child.state.UsedGas {
		panic("vm: child machine used more gas than the parent made available")
	}

	switch m.status.Kind {
	case StatusInvokeCreate:
		m.applyCreate(child)
	case StatusInvokeCall:
		m.applyCall(child)
	default:
		panic("vm: apply_sub called on a machine that did not invoke a sub-call")
	}
	m.status = MachineStatus{Kind: StatusRunning}
}

// applyCreate folds a terminated CREATE/CREATE2 child back into m, per
// spec.md §4.1's apply_sub: value moves from the creator to the new
// contract only now, on success, gated on the same affordability check as
// the code-deposit cost — not earlier in Derive — so an abandoned or
// failed child never moves value on its own.
func (m *Machine) applyCreate(child *Machine) {
	switch child.status.Kind {
	case StatusExitedOk:
		m.state.UsedGas += child.state.UsedGas
		m.state.RefundedGas += child.state.RefundedGas
		m.state.AccountState = child.state.AccountState
		m.state.BlockhashState = child.state.BlockhashState
		m.state.Logs = child.state.Logs

		newAddr := child.state.Context.Address
		output := child.state.Out
		depositCost := codeDepositGas(len(output))
		if m.state.AvailableGas() >= depositCost {
			m.state.UsedGas += depositCost
			m.state.AccountState.DecreaseBalance(m.state.Context.Address, child.state.Context.Value)
			m.state.AccountState.Create(newAddr, child.state.Context.Value, output)
		}

		var addrWord uint256.Int
		addrWord.SetBytes(newAddr.Bytes())
		m.state.Stack.Push(&addrWord)
	case StatusExitedErr:
		// spec.md §4.1: a failed child's used_gas is not folded into the
		// parent — only a successful sub-call's gas spend is charged here.
		// A failed CREATE pushes the zero address sentinel and discards
		// every other mutation the child made.
		var zero uint256.Int
		m.state.Stack.Push(&zero)
	}
}

// applyCall folds a terminated CALL/CALLCODE/DELEGATECALL/STATICCALL child
// back into m. Value transfer happens here, after the child has already run
// to completion (spec.md §4.1) — for CALLCODE/DELEGATECALL the child's
// context.address is the parent's own address, so the transfer is a no-op
// self-move; for STATICCALL context.value is always zero.
func (m *Machine) applyCall(child *Machine) {
	out := m.status.CallOut

	switch child.status.Kind {
	case StatusExitedOk:
		m.state.UsedGas += child.state.UsedGas
		m.state.RefundedGas += child.state.RefundedGas
		m.state.AccountState = child.state.AccountState
		m.state.BlockhashState = child.state.BlockhashState
		m.state.Logs = child.state.Logs
		m.state.ReturnData = child.state.Out

		m.state.AccountState.Transfer(m.state.Context.Address, child.state.Context.Address, child.state.Context.Value)
		copyIntoMemory(m.state.Memory, child.state.Out, out.offset, 0, out.length)

		var one uint256.Int
		one.SetOne()
		m.state.Stack.Push(&one)
	case StatusExitedErr:
		// A failed call pushes 0, never 1. The child's used_gas is not
		// folded in on this path; only its output is kept for RETURNDATA*.
		// World-view mutations the child made are discarded.
		m.state.ReturnData = child.state.Out
		var zero uint256.Int
		m.state.Stack.Push(&zero)
	}
}
