// Package keys derives the 32-byte leaf paths used by the profit and
// blocks state trees (spec §4.1, §8 S4). Both derivations go through
// go-ethereum's ABI encoder so they are bit-exact with the on-chain
// fee-manager's own key derivation.
package keys

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var profitArgTypes = abi.Arguments{
	{Type: mustType("uint256")},
	{Type: mustType("address")},
	{Type: mustType("address")},
}

var blockArgTypes = abi.Arguments{
	{Type: mustType("uint256")},
}

func mustType(name string) abi.Type {
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		panic("keys: bad abi type " + name + ": " + err.Error())
	}
	return t
}

// Profit derives the leaf key for a (chainID, token, user) profit-state
// entry: Keccak256(abi.encode(uint256 chainID, address token, address
// user)).
func Profit(chainID uint64, token, user common.Address) common.Hash {
	packed, err := profitArgTypes.Pack(new(big.Int).SetUint64(chainID), token, user)
	if err != nil {
		panic("keys: profit pack: " + err.Error())
	}
	return crypto.Keccak256Hash(packed)
}

// Block derives the leaf key for a block-state entry: Keccak256(abi.encode
// (uint256 blockNumber)).
func Block(blockNumber uint64) common.Hash {
	packed, err := blockArgTypes.Pack(new(big.Int).SetUint64(blockNumber))
	if err != nil {
		panic("keys: block pack: " + err.Error())
	}
	return crypto.Keccak256Hash(packed)
}
