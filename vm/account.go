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

// CommitKind discriminates the payload carried by an AccountCommitment.
type CommitKind int

const (
	// CommitFull commits an account's existence, balance, nonce and code
	// in one shot — used when the driver already has the whole account
	// loaded (e.g. BALANCE/EXTCODESIZE resolved from the same read).
	CommitFull CommitKind = iota
	// CommitNonexistent commits that no account lives at Address.
	CommitNonexistent
	// CommitCode commits only the code of an already-known account,
	// answering a RequireError.AccountCode.
	CommitCode
	// CommitStorage commits a single storage slot, answering a
	// RequireError.AccountStorage.
	CommitStorage
)

// AccountCommitment is how a driver answers a RequireError: it supplies
// exactly the datum the core asked for. Commits are idempotent — committing
// the same fact twice with the same value is a no-op; committing it twice
// with different values is a CommitError (spec.md §4.1).
type AccountCommitment struct {
	Kind    CommitKind
	Address common.Address

	Balance *uint256.Int
	Nonce   uint64
	Code    []byte

	StorageKey   *uint256.Int
	StorageValue *uint256.Int
}

type storageSlot struct {
	committed bool
	original  uint256.Int
	current   uint256.Int
}

type accountEntry struct {
	exists  bool
	balance uint256.Int
	nonce   uint64

	codeCommitted bool
	code          []byte

	storage map[uint256.Int]*storageSlot
	deleted bool
}

func newAccountEntry() *accountEntry {
	return &accountEntry{storage: make(map[uint256.Int]*storageSlot)}
}

func (a *accountEntry) clone() *accountEntry {
	c := &accountEntry{
		exists:        a.exists,
		balance:       a.balance,
		nonce:         a.nonce,
		codeCommitted: a.codeCommitted,
		deleted:       a.deleted,
		storage:       make(map[uint256.Int]*storageSlot, len(a.storage)),
	}
	c.code = append([]byte(nil), a.code...)
	for k, v := range a.storage {
		cp := *v
		c.storage[k] = &cp
	}
	return c
}

// AccountState is a write-through cache of the world view relevant to one
// call tree (spec.md §3). Accounts and storage slots enter it only via
// Commit; any read of an uncommitted fact fails with a RequireError rather
// than blocking or panicking.
type AccountState struct {
	accounts map[common.Address]*accountEntry
}

// NewAccountState returns an empty cache, as Machine.New does.
func NewAccountState() *AccountState {
	return &AccountState{accounts: make(map[common.Address]*accountEntry)}
}

// Clone deep-copies the cache for Machine.Derive.
func (s *AccountState) Clone() *AccountState {
	out := &AccountState{accounts: make(map[common.Address]*accountEntry, len(s.accounts))}
	for addr, entry := range s.accounts {
		out.accounts[addr] = entry.clone()
	}
	return out
}

// Commit applies a driver-supplied fact. It is idempotent for identical
// repeated commits and returns ErrAlreadyCommitted when a fact is
// re-committed with a different value.
func (s *AccountState) Commit(c AccountCommitment) error {
	switch c.Kind {
	case CommitFull:
		entry, ok := s.accounts[c.Address]
		if !ok {
			entry = newAccountEntry()
			s.accounts[c.Address] = entry
		}
		if entry.exists {
			if entry.balance != *c.Balance || entry.nonce != c.Nonce {
				return ErrAlreadyCommitted
			}
		}
		entry.exists = true
		entry.balance = *c.Balance
		entry.nonce = c.Nonce
		if c.Code != nil {
			if entry.codeCommitted && string(entry.code) != string(c.Code) {
				return ErrAlreadyCommitted
			}
			entry.codeCommitted = true
			entry.code = c.Code
		}
		return nil
	case CommitNonexistent:
		entry, ok := s.accounts[c.Address]
		if ok && entry.exists {
			return ErrAlreadyCommitted
		}
		if !ok {
			entry = newAccountEntry()
			s.accounts[c.Address] = entry
		}
		entry.exists = false
		entry.codeCommitted = true
		entry.code = nil
		return nil
	case CommitCode:
		entry, ok := s.accounts[c.Address]
		if !ok {
			return ErrInvalidCommitment
		}
		if entry.codeCommitted && string(entry.code) != string(c.Code) {
			return ErrAlreadyCommitted
		}
		entry.codeCommitted = true
		entry.code = c.Code
		return nil
	case CommitStorage:
		if c.StorageKey == nil || c.StorageValue == nil {
			return ErrInvalidCommitment
		}
		entry, ok := s.accounts[c.Address]
		if !ok {
			return ErrInvalidCommitment
		}
		slot, ok := entry.storage[*c.StorageKey]
		if !ok {
			slot = &storageSlot{}
			entry.storage[*c.StorageKey] = slot
		}
		if slot.committed {
			if slot.original != *c.StorageValue {
				return ErrAlreadyCommitted
			}
			return nil
		}
		slot.committed = true
		slot.original = *c.StorageValue
		slot.current = *c.StorageValue
		return nil
	default:
		return ErrInvalidCommitment
	}
}

func (s *AccountState) entry(addr common.Address) (*accountEntry, bool) {
	e, ok := s.accounts[addr]
	return e, ok
}

// Balance returns the committed balance of addr, or a RequireError if the
// account has not yet been committed.
func (s *AccountState) Balance(addr common.Address) (*uint256.Int, error) {
	e, ok := s.entry(addr)
	if !ok {
		return nil, requireAccount(addr)
	}
	if !e.exists {
		var zero uint256.Int
		return &zero, nil
	}
	b := e.balance
	return &b, nil
}

// Nonce returns the committed nonce of addr.
func (s *AccountState) Nonce(addr common.Address) (uint64, error) {
	e, ok := s.entry(addr)
	if !ok {
		return 0, requireAccount(addr)
	}
	return e.nonce, nil
}

// Exists reports whether addr is a known, existing account. Requires the
// account to have been committed (possibly as CommitNonexistent).
func (s *AccountState) Exists(addr common.Address) (bool, error) {
	e, ok := s.entry(addr)
	if !ok {
		return false, requireAccount(addr)
	}
	return e.exists, nil
}

// Code returns the committed code of addr.
func (s *AccountState) Code(addr common.Address) ([]byte, error) {
	e, ok := s.entry(addr)
	if !ok {
		return nil, requireAccount(addr)
	}
	if !e.codeCommitted {
		return nil, requireAccountCode(addr)
	}
	return e.code, nil
}

// StorageLoad returns the current value of a storage slot, used by SLOAD.
func (s *AccountState) StorageLoad(addr common.Address, key *uint256.Int) (*uint256.Int, error) {
	e, ok := s.entry(addr)
	if !ok {
		return nil, requireAccount(addr)
	}
	slot, ok := e.storage[*key]
	if !ok || !slot.committed {
		return nil, requireStorage(addr, key)
	}
	v := slot.current
	return &v, nil
}

// StorageOriginal returns the transaction-entry value of a storage slot
// (the value it had before this call tree touched it), used by SSTORE's
// net-gas-metering refund computation.
func (s *AccountState) StorageOriginal(addr common.Address, key *uint256.Int) (*uint256.Int, error) {
	e, ok := s.entry(addr)
	if !ok {
		return nil, requireAccount(addr)
	}
	slot, ok := e.storage[*key]
	if !ok || !slot.committed {
		return nil, requireStorage(addr, key)
	}
	v := slot.original
	return &v, nil
}

// StorageStore writes a storage slot, used by SSTORE. The slot must
// already be committed (SLOAD or an earlier SSTORE in this call tree
// always precedes a write in the checked opcode cycle).
func (s *AccountState) StorageStore(addr common.Address, key, value *uint256.Int) {
	e := s.accounts[addr]
	slot, ok := e.storage[*key]
	if !ok {
		slot = &storageSlot{committed: true, original: *value}
		e.storage[*key] = slot
	}
	slot.current = *value
}

// IncreaseBalance credits amount to addr's balance.
func (s *AccountState) IncreaseBalance(addr common.Address, amount *uint256.Int) {
	e, ok := s.accounts[addr]
	if !ok {
		e = newAccountEntry()
		s.accounts[addr] = e
	}
	e.exists = true
	e.balance.Add(&e.balance, amount)
}

// DecreaseBalance debits amount from addr's balance.
func (s *AccountState) DecreaseBalance(addr common.Address, amount *uint256.Int) {
	e := s.accounts[addr]
	e.balance.Sub(&e.balance, amount)
}

// Transfer moves value from one account's balance to another's, used by
// apply_sub to fold a successful CALL/CALLCODE's value movement into the
// parent's adopted world-view once the child has already run to completion
// (spec.md §4.1).
func (s *AccountState) Transfer(from, to common.Address, value *uint256.Int) {
	if value == nil || value.IsZero() {
		return
	}
	s.DecreaseBalance(from, value)
	s.IncreaseBalance(to, value)
}

// Create materializes a brand-new contract account at addr with the given
// balance and code, used by apply_sub after a successful CREATE/CREATE2.
func (s *AccountState) Create(addr common.Address, value *uint256.Int, code []byte) {
	e, ok := s.accounts[addr]
	if !ok {
		e = newAccountEntry()
		s.accounts[addr] = e
	}
	e.exists = true
	e.balance.Add(&e.balance, value)
	e.codeCommitted = true
	e.code = code
}

// MarkDeleted flags addr for deletion, used by SELFDESTRUCT. The core does
// not itself remove the account from the world (that is the driver's job
// at transaction-commit time, spec.md §1 Non-goals) — it only records the
// intent so the driver can act on it.
func (s *AccountState) MarkDeleted(addr common.Address) {
	e, ok := s.accounts[addr]
	if !ok {
		e = newAccountEntry()
		s.accounts[addr] = e
	}
	e.deleted = true
}

// IsDeleted reports whether addr was flagged by SELFDESTRUCT.
func (s *AccountState) IsDeleted(addr common.Address) bool {
	e, ok := s.accounts[addr]
	return ok && e.deleted
}

// BlockhashState is a mapping from block number to block hash, populated
// identically to AccountState: reads of an uncommitted number fail with
// RequireError::Blockhash (spec.md §3).
type BlockhashState struct {
	hashes map[uint64]common.Hash
}

// NewBlockhashState returns an empty cache.
func NewBlockhashState() *BlockhashState {
	return &BlockhashState{hashes: make(map[uint64]common.Hash)}
}

// Clone deep-copies the cache for Machine.Derive.
func (s *BlockhashState) Clone() *BlockhashState {
	out := &BlockhashState{hashes: make(map[uint64]common.Hash, len(s.hashes))}
	for k, v := range s.hashes {
		out.hashes[k] = v
	}
	return out
}

// Commit records number's hash. Idempotent; ErrAlreadyCommitted on a
// conflicting re-commit.
func (s *BlockhashState) Commit(number uint64, hash common.Hash) error {
	if existing, ok := s.hashes[number]; ok {
		if existing != hash {
			return ErrAlreadyCommitted
		}
		return nil
	}
	s.hashes[number] = hash
	return nil
}

// Get returns the committed hash for number, or a RequireError if it has
// not yet been committed.
func (s *BlockhashState) Get(number uint64) (common.Hash, error) {
	h, ok := s.hashes[number]
	if !ok {
		return common.Hash{}, requireBlockhash(number)
	}
	return h, nil
}
