// Package domain defines the data model shared across the settlement
// pipeline: chain primitives, the two authenticated leaf types, raw chain
// events, cross-chain transactions, and the fee-manager duration phase.
package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Duration is the fee-manager contract's alternating phase.
type Duration uint8

const (
	DurationLock Duration = iota
	DurationChallenge
	DurationWithdraw
)

func (d Duration) String() string {
	switch d {
	case DurationLock:
		return "lock"
	case DurationChallenge:
		return "challenge"
	case DurationWithdraw:
		return "withdraw"
	default:
		return "unknown"
	}
}

// ChainType drives the per-chain confirmation delay applied by the tx
// crawler (spec §4.6 step 2).
type ChainType uint8

const (
	ChainTypeNormal ChainType = iota
	ChainTypeOP
	ChainTypeZK
)

// ChainTypes is the operator-extendable registry mapping a chain id to its
// ChainType. Unknown chains default to ChainTypeNormal.
var ChainTypes = map[uint64]ChainType{
	1: ChainTypeNormal,
	5: ChainTypeNormal,
}

// GetChainType returns the registered ChainType for chainID, defaulting to
// ChainTypeNormal when unregistered.
func GetChainType(chainID uint64) ChainType {
	if t, ok := ChainTypes[chainID]; ok {
		return t
	}
	return ChainTypeNormal
}

// BlockStorage is the on-chain fee-manager state observed at a given block.
type BlockStorage struct {
	Duration            Duration
	LastStartBlock      uint64
	LastUpdateBlock     uint64
	LastSubmitTimestamp uint64
	BlockTimestamp      uint64
	BlockNumber         uint64
	ProfitRoot          common.Hash
}

// EventKind distinguishes Deposit from Withdraw within Event.
type EventKind uint8

const (
	EventDeposit EventKind = iota
	EventWithdraw
	// EventERC20Deposit is the structurally-reserved slot for ERC-20
	// deposit recognition via a separate transfer-log path (spec §4.3:
	// "ERC-20 deposits are recognised via a separate transfer-log path
	// ... must be structurally reserved"; spec §9 open question (a)).
	// GetFeeManagerEvents never produces it: chainadapter.GetERC20DepositEvents
	// holds the disabled scan this kind feeds, pending a decision on the
	// token allow-list the original gates it behind.
	EventERC20Deposit
)

// Event is a single Deposit or Withdraw emitted by the fee-manager contract.
type Event struct {
	Kind        EventKind
	BlockNumber uint64
	User        common.Address
	ChainID     uint64
	Token       common.Address
	Amount      *uint256.Int
}

// BlockInfo bundles the fee-manager state at a block together with any
// Deposit/Withdraw events observed within it. It is the unit of work
// published on the broadcast bus (spec §3).
type BlockInfo struct {
	Storage BlockStorage
	Events  []Event
}

// CrossTx is a normalised cross-chain transaction fetched from the tx
// source adapter (spec §3). The triple (TargetTime, TargetChain, TargetID)
// is the tx index sort key.
type CrossTx struct {
	Dealer       common.Address
	Profit       *uint256.Int
	SourceChain  uint64
	SourceID     string
	SourceMaker  common.Address
	SourceTime   uint64 // ms
	SourceToken  common.Address
	TargetAddr   common.Address
	TargetAmount *uint256.Int
	TargetChain  uint64
	TargetID     common.Hash
	TargetMaker  *common.Address
	TargetTime   uint64 // ms
	TargetToken  common.Address
}

// CrossTxProfit is the attributed profit stored alongside each CrossTx in
// the tx index.
type CrossTxProfit struct {
	Maker   common.Address
	Dealer  common.Address
	Profit  *uint256.Int
	ChainID uint64
	Token   common.Address
}

// ProfitStatistics accumulates raw on-chain flow for a (user, chain, token)
// tuple, independent of the authoritative profit state (spec §4.5).
type ProfitStatistics struct {
	TotalProfit    *uint256.Int
	TotalWithdrawn *uint256.Int
	TotalDeposit   *uint256.Int
}

// ZeroAddress is the native-asset token sentinel.
var ZeroAddress = common.Address{}

// BigFromUint256 converts a *uint256.Int to *big.Int, returning a zero
// big.Int for a nil input.
func BigFromUint256(v *uint256.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v.ToBig()
}
