// Package rpcapi implements T5, the read-side RPC method surface over the
// authenticated profit and blocks state trees (spec §6): account lookups,
// proof generation, and proof byte-comparison, plus a debug namespace
// gated by operator flag.
package rpcapi

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/Orbiter-Finance/OB-Submitter/internal/blocksstate"
	"github.com/Orbiter-Finance/OB-Submitter/internal/domain"
	"github.com/Orbiter-Finance/OB-Submitter/internal/index"
	"github.com/Orbiter-Finance/OB-Submitter/internal/keys"
	"github.com/Orbiter-Finance/OB-Submitter/internal/profitstate"
	"github.com/Orbiter-Finance/OB-Submitter/internal/smt"
	"github.com/Orbiter-Finance/OB-Submitter/internal/txindex"
)

// ErrorKind classifies an API-level failure, mapped to a numeric RPC code
// by Code (spec §7).
type ErrorKind int

const (
	ErrKindNone ErrorKind = iota
	ErrKindState
	ErrKindAccountNotExists
	ErrKindReadLock
	ErrKindWriteLock
	ErrKindBadParameters
)

// Code maps a kind to its JSON-RPC numeric error code.
func (k ErrorKind) Code() int {
	switch k {
	case ErrKindState:
		return 666
	case ErrKindAccountNotExists:
		return 777
	case ErrKindReadLock:
		return 887
	case ErrKindWriteLock:
		return 888
	case ErrKindBadParameters:
		return 889
	default:
		return 0
	}
}

// Error is an RPC-facing error carrying both a kind and a message.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func badParams(format string, args ...interface{}) *Error {
	return &Error{Kind: ErrKindBadParameters, Msg: fmt.Sprintf(format, args...)}
}

func stateErr(format string, args ...interface{}) *Error {
	return &Error{Kind: ErrKindState, Msg: fmt.Sprintf(format, args...)}
}

// TokenQuery identifies one (chainID, token) leaf to look up.
type TokenQuery struct {
	ChainID uint64
	Token   common.Address
}

// ProfitEntry is one element of getProfitInfo/getAllProfitInfo's result
// array.
type ProfitEntry struct {
	Token          common.Address `json:"token"`
	TokenChainID   uint64         `json:"tokenChainId"`
	Balance        *uint256.Int   `json:"balance"`
	Debt           *uint256.Int   `json:"debt"`
	TotalProfit    *uint256.Int   `json:"totalProfit"`
	TotalWithdrawn *uint256.Int   `json:"totalWithdrawn"`
}

// ProfitProof is the response shape of getProfitProof for one requested
// leaf.
type ProfitProof struct {
	Path         common.Hash      `json:"path"`
	LeafBitmap   [32]byte         `json:"leafBitmap"`
	Token        profitstate.Data `json:"token"`
	Siblings     []common.Hash    `json:"siblings"`
	Root         common.Hash      `json:"root"`
	No1ZeroCount uint8            `json:"no1ZeroCount"`
	No1ZeroBits  common.Hash      `json:"no1ZeroBits"`
}

// API is the RPC method surface, backed directly by the live state
// engines and auxiliary indexes; it takes no lock of its own, relying on
// the engines' own store transactions for a consistent read.
type API struct {
	profit *smt.Engine[profitstate.Data]
	blocks *smt.Engine[blocksstate.Data]
	index  *index.Index
	txIdx  *txindex.Index
	debug  bool
}

// New constructs an API. debug enables the debug namespace's methods.
func New(profit *smt.Engine[profitstate.Data], blocks *smt.Engine[blocksstate.Data], idx *index.Index, txIdx *txindex.Index, debug bool) *API {
	return &API{profit: profit, blocks: blocks, index: idx, txIdx: txIdx, debug: debug}
}

// GetProfitInfo returns one ProfitEntry per requested token, omitting any
// entry whose balance and debt are both zero (spec §6).
func (a *API) GetProfitInfo(ctx context.Context, user common.Address, tokens []TokenQuery) ([]ProfitEntry, error) {
	out := make([]ProfitEntry, 0, len(tokens))
	for _, q := range tokens {
		entry, ok, err := a.lookupEntry(user, q.ChainID, q.Token)
		if err != nil {
			return nil, stateErr("get_profit_info: %v", err)
		}
		if ok {
			out = append(out, entry)
		}
	}
	return out, nil
}

// GetAllProfitInfo returns a ProfitEntry for every (chainID, token) user
// has ever touched, per the user-tokens index, with the same zero-entry
// omission rule as GetProfitInfo.
func (a *API) GetAllProfitInfo(ctx context.Context, user common.Address) ([]ProfitEntry, error) {
	refs, err := a.index.UserTokens(user)
	if err != nil {
		return nil, stateErr("get_all_profit_info: user tokens: %v", err)
	}
	out := make([]ProfitEntry, 0, len(refs))
	for _, ref := range refs {
		entry, ok, err := a.lookupEntry(user, ref.ChainID, ref.Token)
		if err != nil {
			return nil, stateErr("get_all_profit_info: %v", err)
		}
		if ok {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (a *API) lookupEntry(user common.Address, chainID uint64, token common.Address) (ProfitEntry, bool, error) {
	leaf, err := a.profit.Get(keys.Profit(chainID, token, user))
	if err != nil {
		return ProfitEntry{}, false, err
	}
	if leaf.IsZero() {
		return ProfitEntry{}, false, nil
	}
	stats, err := a.index.ProfitStatisticsFor(user, chainID, token)
	if err != nil {
		return ProfitEntry{}, false, err
	}
	return ProfitEntry{
		Token:          token,
		TokenChainID:   chainID,
		Balance:        leaf.Balance,
		Debt:           leaf.Debt,
		TotalProfit:    stats.TotalProfit,
		TotalWithdrawn: stats.TotalWithdrawn,
	}, true, nil
}

// GetProfitByTxHash returns the attributed CrossTxProfit for a tx target
// id, or (zero value, false) if it was never indexed.
func (a *API) GetProfitByTxHash(ctx context.Context, txHash common.Hash) (domain.CrossTxProfit, bool, error) {
	rec, found, err := a.txIdx.FindByTargetID(txHash)
	if err != nil {
		return domain.CrossTxProfit{}, false, stateErr("get_profit_by_tx_hash: %v", err)
	}
	if !found {
		return domain.CrossTxProfit{}, false, nil
	}
	return rec.Profit, true, nil
}

// GetRoot returns the current profit state root.
func (a *API) GetRoot(ctx context.Context) (common.Hash, error) {
	root, err := a.profit.Root()
	if err != nil {
		return common.Hash{}, stateErr("get_root: %v", err)
	}
	return root, nil
}

// GetProfitRootByBlockNum returns the blocks-state leaf recorded for
// blockNum, zero-valued if the block has not been archived.
func (a *API) GetProfitRootByBlockNum(ctx context.Context, blockNum uint64) (blocksstate.Data, error) {
	v, err := a.blocks.Get(keys.Block(blockNum))
	if err != nil {
		return blocksstate.Data{}, stateErr("get_profit_root_by_block_num: %v", err)
	}
	return v, nil
}

// GetProfitProof builds one ProfitProof per requested (chainID, token)
// leaf for user.
func (a *API) GetProfitProof(ctx context.Context, user common.Address, tokens []TokenQuery) ([]ProfitProof, error) {
	root, err := a.profit.Root()
	if err != nil {
		return nil, stateErr("get_profit_proof: root: %v", err)
	}
	out := make([]ProfitProof, 0, len(tokens))
	for _, q := range tokens {
		key := keys.Profit(q.ChainID, q.Token, user)
		leaf, err := a.profit.Get(key)
		if err != nil {
			return nil, stateErr("get_profit_proof: get leaf: %v", err)
		}
		bitmap, siblings, err := a.profit.ProofParts(key)
		if err != nil {
			return nil, stateErr("get_profit_proof: proof parts: %v", err)
		}
		zeroCount, zeroBits, err := a.profit.NoFirstMergeValue(key)
		if err != nil {
			return nil, stateErr("get_profit_proof: no1_merge_value: %v", err)
		}
		out = append(out, ProfitProof{
			Path:         key,
			LeafBitmap:   bitmap,
			Token:        leaf,
			Siblings:     siblings,
			Root:         root,
			No1ZeroCount: zeroCount,
			No1ZeroBits:  zeroBits,
		})
	}
	return out, nil
}

// Verify compares the engine's own compiled proof for (chainID, token,
// user) against the supplied bytes, byte for byte: it does not
// cryptographically re-derive anything (spec §6).
func (a *API) Verify(ctx context.Context, chainID uint64, token, user common.Address, compiledProofBytes []byte) (bool, error) {
	key := keys.Profit(chainID, token, user)
	proof, err := a.profit.Proof([]common.Hash{key})
	if err != nil {
		return false, stateErr("verify: build proof: %v", err)
	}
	return bytes.Equal(proof.Marshal(), compiledProofBytes), nil
}

// --- debug namespace ---

// ErrDebugDisabled is returned by every debug method when the API was
// constructed with debug=false.
var ErrDebugDisabled = &Error{Kind: ErrKindBadParameters, Msg: "rpcapi: debug namespace disabled"}

// ClearState wipes both authenticated trees. Debug-only.
func (a *API) ClearState(ctx context.Context) error {
	if !a.debug {
		return ErrDebugDisabled
	}
	if err := a.profit.Clear(); err != nil {
		return stateErr("clear_state: profit: %v", err)
	}
	if err := a.blocks.Clear(); err != nil {
		return stateErr("clear_state: blocks: %v", err)
	}
	return nil
}

// UpdateProfit force-writes a single profit leaf. Debug-only.
func (a *API) UpdateProfit(ctx context.Context, chainID uint64, token, user common.Address, data profitstate.Data) error {
	if !a.debug {
		return ErrDebugDisabled
	}
	key := keys.Profit(chainID, token, user)
	if err := a.profit.UpdateAll(map[common.Hash]profitstate.Data{key: data}); err != nil {
		return stateErr("update_profit: %v", err)
	}
	return nil
}

// UpdateProfitByCount synthesizes count sequential profit leaves keyed by
// chain id 1 and a deterministic address/balance derived from the loop
// index, for load testing. Debug-only.
func (a *API) UpdateProfitByCount(ctx context.Context, count uint64) error {
	if !a.debug {
		return ErrDebugDisabled
	}
	if count == 0 {
		return badParams("update_profit_by_count: count must be > 0")
	}
	batch := make(map[common.Hash]profitstate.Data, count)
	for i := uint64(0); i < count; i++ {
		var user common.Address
		binaryPutUint64(user[12:], i+1)
		key := keys.Profit(1, domain.ZeroAddress, user)
		batch[key] = profitstate.Data{
			TokenChainID: 1,
			Balance:      uint256.NewInt(i + 1),
			Debt:         new(uint256.Int),
		}
	}
	if err := a.profit.UpdateAll(batch); err != nil {
		return stateErr("update_profit_by_count: %v", err)
	}
	return nil
}

func binaryPutUint64(b []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}
