// Package profitstate implements the leaf value stored in the profit state
// tree (spec §4.1, §4.8): each leaf tracks a single (chain, token, user)
// balance/debt pair, ABI-encoded the same way the fee-manager contract
// would decode it on-chain.
package profitstate

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Data is one profit-state leaf: the token a user is owed, which chain
// that token lives on, their settled balance, and any outstanding debt
// (spec §4.8). The "cleared form" invariant holds once both Balance and
// Debt are zero: Token and TokenChainID must also be reset to zero.
type Data struct {
	Token        common.Address
	TokenChainID uint64
	Balance      *uint256.Int
	Debt         *uint256.Int
}

// Zero returns the cleared-form zero value.
func Zero() Data {
	return Data{Balance: new(uint256.Int), Debt: new(uint256.Int)}
}

// IsZero reports whether d is the cleared-form zero leaf.
func (d Data) IsZero() bool {
	return (d.Balance == nil || d.Balance.IsZero()) && (d.Debt == nil || d.Debt.IsZero())
}

var argTypes = abi.Arguments{
	{Type: mustType("address")},
	{Type: mustType("uint64")},
	{Type: mustType("uint256")},
	{Type: mustType("uint256")},
}

func mustType(name string) abi.Type {
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(fmt.Sprintf("profitstate: bad abi type %q: %v", name, err))
	}
	return t
}

// Encode ABI-encodes d as (address,uint64,uint256,uint256), matching the
// on-chain fee-manager's storage layout.
func Encode(d Data) []byte {
	balance := d.Balance
	if balance == nil {
		balance = new(uint256.Int)
	}
	debt := d.Debt
	if debt == nil {
		debt = new(uint256.Int)
	}
	packed, err := argTypes.Pack(d.Token, d.TokenChainID, balance.ToBig(), debt.ToBig())
	if err != nil {
		panic(fmt.Sprintf("profitstate: encode: %v", err))
	}
	return packed
}

// Decode reverses Encode.
func Decode(data []byte) (Data, error) {
	vals, err := argTypes.Unpack(data)
	if err != nil {
		return Data{}, fmt.Errorf("profitstate: decode: %w", err)
	}
	token := vals[0].(common.Address)
	chainID := vals[1].(uint64)
	balanceBig := vals[2].(*big.Int)
	debtBig := vals[3].(*big.Int)
	balance, overflow := uint256.FromBig(balanceBig)
	if overflow {
		return Data{}, fmt.Errorf("profitstate: decode: balance overflows uint256")
	}
	debt, overflow := uint256.FromBig(debtBig)
	if overflow {
		return Data{}, fmt.Errorf("profitstate: decode: debt overflows uint256")
	}
	return Data{Token: token, TokenChainID: chainID, Balance: balance, Debt: debt}, nil
}

// AddBalance credits amount, paying off outstanding debt first and only
// increasing Balance with whatever remains (spec §4.8). Panics on
// uint256 overflow: amounts in this system are bounded well below 2^256
// and an overflow here indicates corrupted upstream state.
func (d *Data) AddBalance(amount *uint256.Int) {
	if d.Debt == nil {
		d.Debt = new(uint256.Int)
	}
	if d.Balance == nil {
		d.Balance = new(uint256.Int)
	}
	if amount.Cmp(d.Debt) <= 0 {
		d.Debt = new(uint256.Int).Sub(d.Debt, amount)
		return
	}
	remaining := new(uint256.Int).Sub(amount, d.Debt)
	d.Debt = new(uint256.Int)
	sum, overflow := new(uint256.Int).AddOverflow(d.Balance, remaining)
	if overflow {
		panic("profitstate: AddBalance overflow")
	}
	d.Balance = sum
}

// SubBalance debits amount, drawing down Balance first and only increasing
// Debt with whatever remains (spec §4.8).
func (d *Data) SubBalance(amount *uint256.Int) {
	if d.Debt == nil {
		d.Debt = new(uint256.Int)
	}
	if d.Balance == nil {
		d.Balance = new(uint256.Int)
	}
	if amount.Cmp(d.Balance) <= 0 {
		d.Balance = new(uint256.Int).Sub(d.Balance, amount)
		return
	}
	remaining := new(uint256.Int).Sub(amount, d.Balance)
	d.Balance = new(uint256.Int)
	sum, overflow := new(uint256.Int).AddOverflow(d.Debt, remaining)
	if overflow {
		panic("profitstate: SubBalance overflow")
	}
	d.Debt = sum
}

// ClearIfZero resets Token/TokenChainID once both Balance and Debt are
// zero, maintaining the cleared-form invariant.
func (d *Data) ClearIfZero() {
	if d.IsZero() {
		d.Token = common.Address{}
		d.TokenChainID = 0
	}
}

// Codec adapts Data to smt.Codec.
type Codec struct{}

func (Codec) Encode(v Data) []byte             { return Encode(v) }
func (Codec) Decode(data []byte) (Data, error) { return Decode(data) }
func (Codec) IsZero(v Data) bool               { return v.IsZero() }
func (Codec) Zero() Data                       { return Zero() }
