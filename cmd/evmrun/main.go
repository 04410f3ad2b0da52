// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Command evmrun drives a single call-frame Machine to completion against an
// in-memory world state loaded from a genesis-style JSON file, printing its
// final status, gas usage, return data and logs. It is a thin convenience
// wrapper around vm.Drive, not part of the core's own scope (spec.md §1).
package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dsnet/golib/unitconv"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/urfave/cli/v2"

	"github.com/sputnikvm-go/sputnikvm/vm"
)

func main() {
	app := &cli.App{
		Name:  "evmrun",
		Usage: "run a single EVM call frame against a genesis-style world state",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "state", Usage: "path to a genesis-style JSON world state", Required: true},
			&cli.StringFlag{Name: "code", Usage: "hex-encoded bytecode to execute (overrides --to's own code)"},
			&cli.StringFlag{Name: "to", Usage: "callee address (hex)", Required: true},
			&cli.StringFlag{Name: "from", Usage: "caller/origin address (hex)", Value: "0x0000000000000000000000000000000000000000"},
			&cli.StringFlag{Name: "data", Usage: "hex-encoded call data"},
			&cli.StringFlag{Name: "value", Usage: "wei transferred with the call, decimal", Value: "0"},
			&cli.Uint64Flag{Name: "gas", Usage: "gas limit for the call", Value: 10_000_000},
			&cli.Uint64Flag{Name: "gas-price", Usage: "gas price, decimal", Value: 1},
			&cli.Uint64Flag{Name: "block-number", Value: 1},
			&cli.Uint64Flag{Name: "block-timestamp", Value: 0},
			&cli.Uint64Flag{Name: "chain-id", Value: 1},
			&cli.StringFlag{Name: "revision", Usage: "frontier|istanbul", Value: "istanbul"},
			&cli.BoolFlag{Name: "static", Usage: "run as a STATICCALL (no state mutation allowed)"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "evmrun:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	world, err := loadWorld(c.String("state"))
	if err != nil {
		return fmt.Errorf("loading state: %w", err)
	}

	to := common.HexToAddress(c.String("to"))
	from := common.HexToAddress(c.String("from"))

	code, err := resolveCode(c, world, to)
	if err != nil {
		return err
	}
	data, err := hexOrEmpty(c.String("data"))
	if err != nil {
		return fmt.Errorf("--data: %w", err)
	}
	value, err := parseUint256(c.String("value"))
	if err != nil {
		return fmt.Errorf("--value: %w", err)
	}

	patch := vm.DefaultPatch
	if c.String("revision") == "frontier" {
		patch = vm.FrontierPatch
	}
	patch.ChainID = c.Uint64("chain-id")

	context := vm.Context{
		Address:  to,
		Caller:   from,
		Origin:   from,
		Value:    value,
		Data:     data,
		Code:     code,
		GasPrice: uint256.NewInt(c.Uint64("gas-price")),
		GasLimit: c.Uint64("gas"),
	}
	block := vm.BlockHeader{
		Coinbase:   common.Address{},
		Timestamp:  c.Uint64("block-timestamp"),
		Number:     c.Uint64("block-number"),
		Difficulty: uint256.NewInt(0),
		GasLimit:   c.Uint64("gas"),
	}

	m := vm.New(context, block, patch, 0)
	m.State().ReadOnly = c.Bool("static")
	status, err := vm.Drive(m, world)
	if err != nil {
		return fmt.Errorf("driving machine: %w", err)
	}

	printResult(m, status)
	return nil
}

func resolveCode(c *cli.Context, world *worldState, to common.Address) ([]byte, error) {
	if hexCode := c.String("code"); hexCode != "" {
		return hexOrEmpty(hexCode)
	}
	acc, ok := world.accounts[to]
	if !ok {
		return nil, fmt.Errorf("--to %s has no code in --state and --code was not given", to)
	}
	return acc.Code, nil
}

func printResult(m *vm.Machine, status vm.MachineStatus) {
	st := m.State()
	switch status.Kind {
	case vm.StatusExitedOk:
		fmt.Println("status: ok")
	case vm.StatusExitedErr:
		fmt.Println("status: error:", status.Err)
	default:
		fmt.Println("status: unexpected non-terminal kind", status.Kind)
	}
	fmt.Printf("gas used:    %s (%d)\n", unitconv.FormatPrefix(float64(st.UsedGas), unitconv.SI, 2), st.UsedGas)
	fmt.Printf("gas refund:  %s (%d)\n", unitconv.FormatPrefix(float64(st.RefundedGas), unitconv.SI, 2), st.RefundedGas)
	fmt.Printf("return data: 0x%s (%s)\n", hex.EncodeToString(st.Out), unitconv.FormatPrefix(float64(len(st.Out)), unitconv.IEC, 0))
	for i, l := range st.Logs {
		fmt.Printf("log[%d]: address=%s topics=%d data=0x%s\n", i, l.Address, len(l.Topics), hex.EncodeToString(l.Data))
	}
}

func hexOrEmpty(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	s = trimHexPrefix(s)
	return hex.DecodeString(s)
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

func parseUint256(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// worldState is a flat, pre-loaded account set that answers vm.Resolver
// straight out of memory — no lazy fetch, no RequireError ever goes
// unresolved. Shaped after a genesis.json allocation block.
type worldState struct {
	accounts map[common.Address]*worldAccount
}

type worldAccount struct {
	Balance *uint256.Int
	Nonce   uint64
	Code    []byte
	Storage map[uint256.Int]uint256.Int
}

type genesisAccount struct {
	Balance string            `json:"balance"`
	Nonce   uint64            `json:"nonce"`
	Code    string            `json:"code"`
	Storage map[string]string `json:"storage"`
}

func loadWorld(path string) (*worldState, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc map[string]genesisAccount
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	world := &worldState{accounts: make(map[common.Address]*worldAccount, len(doc))}
	for addrHex, ga := range doc {
		addr := common.HexToAddress(addrHex)
		balance := uint256.NewInt(0)
		if ga.Balance != "" {
			balance, err = uint256.FromDecimal(ga.Balance)
			if err != nil {
				return nil, fmt.Errorf("account %s: balance: %w", addrHex, err)
			}
		}
		code, err := hexOrEmpty(ga.Code)
		if err != nil {
			return nil, fmt.Errorf("account %s: code: %w", addrHex, err)
		}
		storage := make(map[uint256.Int]uint256.Int, len(ga.Storage))
		for k, v := range ga.Storage {
			var key, val uint256.Int
			kb, err := hexOrEmpty(k)
			if err != nil {
				return nil, fmt.Errorf("account %s: storage key %s: %w", addrHex, k, err)
			}
			key.SetBytes(kb)
			vb, err := hexOrEmpty(v)
			if err != nil {
				return nil, fmt.Errorf("account %s: storage value %s: %w", addrHex, k, err)
			}
			val.SetBytes(vb)
			storage[key] = val
		}
		world.accounts[addr] = &worldAccount{
			Balance: balance,
			Nonce:   ga.Nonce,
			Code:    code,
			Storage: storage,
		}
	}
	return world, nil
}

func (w *worldState) Account(addr common.Address) (exists bool, balance *uint256.Int, nonce uint64) {
	acc, ok := w.accounts[addr]
	if !ok {
		return false, nil, 0
	}
	return true, acc.Balance, acc.Nonce
}

func (w *worldState) Code(addr common.Address) []byte {
	acc, ok := w.accounts[addr]
	if !ok {
		return nil
	}
	return acc.Code
}

func (w *worldState) Storage(addr common.Address, key *uint256.Int) *uint256.Int {
	acc, ok := w.accounts[addr]
	if !ok {
		return uint256.NewInt(0)
	}
	if v, ok := acc.Storage[*key]; ok {
		return &v
	}
	return uint256.NewInt(0)
}

func (w *worldState) Blockhash(number uint64) common.Hash {
	return common.Hash{}
}
