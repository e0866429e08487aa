// Package blocksstate implements the leaf value stored in the blocks
// state tree (spec §4.1, §4.4): one leaf per ingested block, chained to
// its predecessor by hashing in the prior root.
package blocksstate

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Data is one blocks-state leaf.
type Data struct {
	BlockNum   uint64
	Root       common.Hash
	Txs        common.Hash
	ProfitRoot common.Hash
}

// Zero returns the zero value: an unrecorded block.
func Zero() Data { return Data{} }

// IsZero reports whether d is the zero leaf (no block recorded).
func (d Data) IsZero() bool {
	return d.BlockNum == 0 && d.Root == (common.Hash{}) && d.Txs == (common.Hash{}) && d.ProfitRoot == (common.Hash{})
}

var argTypes = abi.Arguments{
	{Type: mustType("uint64")},
	{Type: mustType("bytes32")},
	{Type: mustType("bytes32")},
	{Type: mustType("bytes32")},
}

func mustType(name string) abi.Type {
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(fmt.Sprintf("blocksstate: bad abi type %q: %v", name, err))
	}
	return t
}

// Encode ABI-encodes d as (uint64,bytes32,bytes32,bytes32).
func Encode(d Data) []byte {
	packed, err := argTypes.Pack(d.BlockNum, [32]byte(d.Root), [32]byte(d.Txs), [32]byte(d.ProfitRoot))
	if err != nil {
		panic(fmt.Sprintf("blocksstate: encode: %v", err))
	}
	return packed
}

// Decode reverses Encode.
func Decode(data []byte) (Data, error) {
	vals, err := argTypes.Unpack(data)
	if err != nil {
		return Data{}, fmt.Errorf("blocksstate: decode: %w", err)
	}
	return Data{
		BlockNum:   vals[0].(uint64),
		Root:       common.Hash(vals[1].([32]byte)),
		Txs:        common.Hash(vals[2].([32]byte)),
		ProfitRoot: common.Hash(vals[3].([32]byte)),
	}, nil
}

// ChainRoot computes the chained root for a new block: Keccak256(prev.Root
// || txs || profitRoot). The genesis block chains from the zero hash.
func ChainRoot(prev Data, txs, profitRoot common.Hash) common.Hash {
	var buf [96]byte
	copy(buf[0:32], prev.Root[:])
	copy(buf[32:64], txs[:])
	copy(buf[64:96], profitRoot[:])
	return crypto.Keccak256Hash(buf[:])
}

// Codec adapts Data to smt.Codec.
type Codec struct{}

func (Codec) Encode(v Data) []byte             { return Encode(v) }
func (Codec) Decode(data []byte) (Data, error) { return Decode(data) }
func (Codec) IsZero(v Data) bool               { return v.IsZero() }
func (Codec) Zero() Data                       { return Zero() }
