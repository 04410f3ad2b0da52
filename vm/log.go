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

// Log is a record of a LOG0..LOG4 emission: an address, up to four topics,
// and an opaque data payload. Appended to State.Logs and folded into the
// parent's log buffer on a successful sub-call (spec.md §3, §4.1).
type Log struct {
	Address common.Address
	Topics  []uint256.Int
	Data    []byte
}

// cloneLogs returns an independent copy of a log slice, used by
// Machine.Derive to give a child its own snapshot of the parent's logs
// (spec.md §3's "clone-on-descend" ownership rule).
func cloneLogs(logs []Log) []Log {
	out := make([]Log, len(logs))
	copy(out, logs)
	for i := range out {
		topics := make([]uint256.Int, len(out[i].Topics))
		copy(topics, out[i].Topics)
		out[i].Topics = topics
		data := make([]byte, len(out[i].Data))
		copy(data, out[i].Data)
		out[i].Data = data
	}
	return out
}
