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

// Resolver is the driver-side half of the pull protocol spec.md §1 leaves
// external to the core: something that can answer the world-state
// questions a RequireError asks. It is deliberately synchronous and
// blocking — a transaction-level driver wrapping a real state database is
// expected to satisfy it directly; this package's own Drive loop is the
// simplest possible caller.
type Resolver interface {
	// Account reports whether addr exists and, if so, its balance and
	// nonce. A Resolver backed by a real world state should treat "never
	// touched" the same as "exists with zero balance/nonce" — only a
	// self-destructed or never-created address should report false.
	Account(addr common.Address) (exists bool, balance *uint256.Int, nonce uint64)
	// Code returns addr's code, or nil for an account with none.
	Code(addr common.Address) []byte
	// Storage returns the current value of addr's slot key.
	Storage(addr common.Address, key *uint256.Int) *uint256.Int
	// Blockhash returns the hash of block number.
	Blockhash(number uint64) common.Hash
}

// Drive runs m to completion, resolving every RequireError against resolver
// and recursively driving any sub-call it invokes, folding the result back
// with ApplySub before resuming. This is an ambient convenience built on
// top of the core's external interface (spec.md §6 lists step/commit_*/
// apply_sub as the primitives; a transaction-level driver composing them
// this way is explicitly out of the core's own scope, per spec.md §1).
func Drive(m *Machine, resolver Resolver) (MachineStatus, error) {
	for {
		err := m.Step()
		if err == nil {
			switch m.Status().Kind {
			case StatusRunning:
				continue
			case StatusInvokeCreate, StatusInvokeCall:
				if err := driveSubCall(m, resolver); err != nil {
					return m.Status(), err
				}
				continue
			default:
				return m.Status(), nil
			}
		}

		req, ok := err.(*RequireError)
		if !ok {
			return m.Status(), err
		}
		if err := resolveRequire(m, resolver, req); err != nil {
			return m.Status(), err
		}
	}
}

func driveSubCall(m *Machine, resolver Resolver) error {
	status := m.Status()
	var child *Machine
	switch status.Kind {
	case StatusInvokeCreate:
		log.Debug("vm: invoking sub-call", "kind", "create", "depth", m.state.Depth+1, "address", status.CreateContext.Address)
		child = m.Derive(status.CreateContext, false)
	case StatusInvokeCall:
		log.Debug("vm: invoking sub-call", "kind", status.CallKind, "depth", m.state.Depth+1, "address", status.CallContext.Address)
		child = m.Derive(status.CallContext, status.CallKind == STATICCALL)
	default:
		return nil
	}
	if _, err := Drive(child, resolver); err != nil {
		return err
	}
	if child.Status().Kind == StatusExitedErr {
		log.Debug("vm: sub-call exited with error, discarding world mutations", "depth", child.state.Depth, "err", child.Status().Err)
	}
	m.ApplySub(child)
	return nil
}

func resolveRequire(m *Machine, resolver Resolver, req *RequireError) error {
	log.Debug("vm: resolving require", "depth", m.state.Depth, "require", req)
	switch {
	case req.Account != nil:
		exists, balance, nonce := resolver.Account(*req.Account)
		if !exists {
			return m.CommitAccount(AccountCommitment{Kind: CommitNonexistent, Address: *req.Account})
		}
		code := resolver.Code(*req.Account)
		return m.CommitAccount(AccountCommitment{
			Kind:    CommitFull,
			Address: *req.Account,
			Balance: balance,
			Nonce:   nonce,
			Code:    code,
		})
	case req.AccountCode != nil:
		code := resolver.Code(*req.AccountCode)
		return m.CommitAccount(AccountCommitment{Kind: CommitCode, Address: *req.AccountCode, Code: code})
	case req.AccountStorage != nil:
		value := resolver.Storage(*req.AccountStorage, req.StorageKey)
		return m.CommitAccount(AccountCommitment{
			Kind:         CommitStorage,
			Address:      *req.AccountStorage,
			StorageKey:   req.StorageKey,
			StorageValue: value,
		})
	case req.Blockhash != nil:
		hash := resolver.Blockhash(*req.Blockhash)
		return m.CommitBlockhash(*req.Blockhash, hash)
	default:
		return ErrInvalidCommitment
	}
}
