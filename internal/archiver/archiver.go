// Package archiver implements C7, the archiver / submitter (spec §4.7,
// §4.9): during the contract's Lock phase it advances an
// archived-through pointer block by block, folding deposit/withdraw
// events and attributed tx profit into the profit state, chaining
// blocks into the blocks state, and periodically commits both roots
// on-chain.
package archiver

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/Orbiter-Finance/OB-Submitter/internal/blocksstate"
	"github.com/Orbiter-Finance/OB-Submitter/internal/chainadapter"
	"github.com/Orbiter-Finance/OB-Submitter/internal/domain"
	"github.com/Orbiter-Finance/OB-Submitter/internal/index"
	"github.com/Orbiter-Finance/OB-Submitter/internal/keys"
	"github.com/Orbiter-Finance/OB-Submitter/internal/profitstate"
	"github.com/Orbiter-Finance/OB-Submitter/internal/smt"
	"github.com/Orbiter-Finance/OB-Submitter/internal/txindex"
)

// State is the archiver's coarse lifecycle state (spec §4.9).
type State int

const (
	StateIdle State = iota
	StateLock
	StateDraining
	StateSubmitting
	StateError
)

// SubmitCooldown is the minimum sleep between submit_root calls (spec
// §4.7 step 6). It is exposed as a constant rather than enforced inside
// OnHead, which is pure with respect to time: the supervisor loop that
// drives OnHead is responsible for honoring it.
const SubmitCooldown = 12 // seconds

// ErrBlockInfoMissing indicates a required BlockInfo has not yet been
// ingested; the caller should back off and retry the same head.
var ErrBlockInfoMissing = errors.New("archiver: required block-info not yet ingested")

// Archiver is the single archiver/submitter task.
type Archiver struct {
	profit *smt.Engine[profitstate.Data]
	blocks *smt.Engine[blocksstate.Data]
	index  *index.Index
	txIdx  *txindex.Index
	chain  chainadapter.Adapter

	confirmationDelay uint64
	archivedThrough   uint64
	lastSubmitted     uint64
	state             State
}

// New constructs an Archiver resuming at archivedThrough.
func New(
	profit *smt.Engine[profitstate.Data],
	blocks *smt.Engine[blocksstate.Data],
	idx *index.Index,
	txIdx *txindex.Index,
	chain chainadapter.Adapter,
	confirmationDelay, archivedThrough uint64,
) *Archiver {
	return &Archiver{
		profit: profit, blocks: blocks, index: idx, txIdx: txIdx, chain: chain,
		confirmationDelay: confirmationDelay, archivedThrough: archivedThrough, state: StateIdle,
	}
}

// State returns the archiver's current lifecycle state.
func (a *Archiver) State() State { return a.state }

// ArchivedThrough returns the next block number the archiver has not
// yet folded into the authenticated state.
func (a *Archiver) ArchivedThrough() uint64 { return a.archivedThrough }

// OnHead processes one BlockInfo delivery per spec §4.7.
func (a *Archiver) OnHead(ctx context.Context, head domain.BlockInfo) error {
	if head.Storage.BlockNumber <= a.lastSubmitted {
		return nil
	}
	if head.Storage.Duration != domain.DurationLock {
		a.state = StateIdle
		return nil
	}
	a.state = StateLock

	if head.Storage.BlockNumber < a.confirmationDelay+2 {
		return nil
	}
	trusted := head.Storage.BlockNumber - a.confirmationDelay
	end := trusted - 2
	if end <= a.archivedThrough {
		return nil
	}

	for n := a.archivedThrough; n < end; n++ {
		if _, ok, err := a.index.BlockTxCount(n); err != nil {
			return fmt.Errorf("archiver: block tx count %d: %w", n, err)
		} else if !ok {
			return nil
		}
	}

	a.state = StateDraining
	for n := a.archivedThrough; n < end; n++ {
		if err := a.drainBlock(n); err != nil {
			if errors.Is(err, ErrBlockInfoMissing) {
				return nil
			}
			a.state = StateError
			return err
		}
		a.archivedThrough = n + 1
	}

	pr, err := a.profit.Root()
	if err != nil {
		a.state = StateError
		return fmt.Errorf("archiver: profit root: %w", err)
	}
	if pr == head.Storage.ProfitRoot {
		a.state = StateLock
		return nil
	}
	br, err := a.blocks.Root()
	if err != nil {
		a.state = StateError
		return fmt.Errorf("archiver: blocks root: %w", err)
	}

	a.state = StateSubmitting
	result, submitErr := a.chain.SubmitRoot(ctx, head.Storage.LastUpdateBlock, end, pr, br)
	if submitErr != nil {
		var failed *chainadapter.SubmitRootFailedError
		if errors.As(submitErr, &failed) && failed.IncludedBlock != nil {
			a.lastSubmitted = *failed.IncludedBlock
		}
		a.state = StateError
		return fmt.Errorf("archiver: submit root: %w", submitErr)
	}
	if result.IncludedBlock != nil {
		a.lastSubmitted = *result.IncludedBlock
	}
	a.state = StateLock
	return nil
}

func (a *Archiver) drainBlock(n uint64) error {
	biN, ok, err := a.index.GetBlockInfo(n)
	if err != nil {
		return fmt.Errorf("archiver: get block info %d: %w", n, err)
	}
	if !ok {
		return ErrBlockInfoMissing
	}
	var biPrev domain.BlockInfo
	if n > 0 {
		var okPrev bool
		biPrev, okPrev, err = a.index.GetBlockInfo(n - 1)
		if err != nil {
			return fmt.Errorf("archiver: get block info %d: %w", n-1, err)
		}
		if !okPrev {
			return ErrBlockInfoMissing
		}
	}

	pending := make(map[common.Hash]profitstate.Data)

	for _, ev := range biN.Events {
		var add bool
		switch ev.Kind {
		case domain.EventDeposit:
			add = true
		case domain.EventWithdraw:
			add = false
		default:
			continue
		}
		if err := a.applyDelta(pending, ev.ChainID, ev.Token, ev.User, add, ev.Amount); err != nil {
			return fmt.Errorf("archiver: apply event at block %d: %w", n, err)
		}
	}

	lower := biPrev.Storage.BlockTimestamp * 1000
	upper := biN.Storage.BlockTimestamp * 1000
	records, err := a.txIdx.RangeByTime(lower, upper)
	if err != nil {
		return fmt.Errorf("archiver: range by time [%d,%d): %w", lower, upper, err)
	}

	var txIDs []common.Hash
	for _, rec := range records {
		if rec.Profit.Profit == nil || rec.Profit.Profit.IsZero() {
			continue
		}
		if err := a.applyDelta(pending, rec.Profit.ChainID, rec.Profit.Token, rec.Profit.Maker, false, rec.Profit.Profit); err != nil {
			return fmt.Errorf("archiver: debit maker: %w", err)
		}
		if err := a.applyDelta(pending, rec.Profit.ChainID, rec.Profit.Token, rec.Profit.Dealer, true, rec.Profit.Profit); err != nil {
			return fmt.Errorf("archiver: credit dealer: %w", err)
		}
		if err := a.index.AddUserToken(rec.Profit.Maker, rec.Profit.ChainID, rec.Profit.Token); err != nil {
			return fmt.Errorf("archiver: add user token (maker): %w", err)
		}
		if err := a.index.AddUserToken(rec.Profit.Dealer, rec.Profit.ChainID, rec.Profit.Token); err != nil {
			return fmt.Errorf("archiver: add user token (dealer): %w", err)
		}
		if err := a.index.AddTotalProfit(rec.Profit.Dealer, rec.Profit.ChainID, rec.Profit.Token, rec.Profit.Profit); err != nil {
			return fmt.Errorf("archiver: add total profit: %w", err)
		}
		if err := a.index.AddTotalWithdrawn(rec.Profit.Maker, rec.Profit.ChainID, rec.Profit.Token, rec.Profit.Profit); err != nil {
			return fmt.Errorf("archiver: add total withdrawn: %w", err)
		}
		txIDs = append(txIDs, rec.TargetID)
	}

	if len(pending) > 0 {
		if err := a.profit.UpdateAll(pending); err != nil {
			return fmt.Errorf("archiver: update profit state at block %d: %w", n, err)
		}
	}

	txsHash := hashSortedIDs(txIDs)

	profitRoot, err := a.profit.Root()
	if err != nil {
		return fmt.Errorf("archiver: profit root at block %d: %w", n, err)
	}
	prevBlockData := blocksstate.Zero()
	if n > 0 {
		prevBlockData, err = a.blocks.Get(keys.Block(n - 1))
		if err != nil {
			return fmt.Errorf("archiver: get prev block leaf: %w", err)
		}
	}

	newBlock := blocksstate.Data{
		BlockNum:   n,
		Txs:        txsHash,
		ProfitRoot: profitRoot,
	}
	newBlock.Root = blocksstate.ChainRoot(prevBlockData, txsHash, profitRoot)

	if err := a.blocks.UpdateAll(map[common.Hash]blocksstate.Data{keys.Block(n): newBlock}); err != nil {
		return fmt.Errorf("archiver: update blocks state at %d: %w", n, err)
	}
	return nil
}

// applyDelta folds one balance/debt delta into pending, the batch of
// profit-leaf writes accumulated for the block currently being drained
// (spec §5 "every mutation is wrapped in a single transaction per
// block"). It reads through pending first so that multiple deltas to
// the same leaf within one block see each other's effect before the
// batch is committed in one UpdateAll call.
func (a *Archiver) applyDelta(pending map[common.Hash]profitstate.Data, chainID uint64, token common.Address, user common.Address, add bool, amount *uint256.Int) error {
	key := keys.Profit(chainID, token, user)
	v, ok := pending[key]
	if !ok {
		var err error
		v, err = a.profit.Get(key)
		if err != nil {
			return err
		}
	}
	v.Token = token
	v.TokenChainID = chainID
	if add {
		v.AddBalance(amount)
	} else {
		v.SubBalance(amount)
	}
	v.ClearIfZero()
	pending[key] = v
	return nil
}

func hashSortedIDs(ids []common.Hash) common.Hash {
	if len(ids) == 0 {
		return common.Hash{}
	}
	sorted := make([]common.Hash, len(ids))
	copy(sorted, ids)
	sortHashes(sorted)
	buf := make([]byte, 0, 32*len(sorted))
	for _, id := range sorted {
		buf = append(buf, id[:]...)
	}
	return crypto.Keccak256Hash(buf)
}

// sortHashes orders hashes ascending by byte value with a plain
// insertion sort; the list is bounded by one block's tx count, so this
// never needs to be asymptotically better than O(n^2).
func sortHashes(hashes []common.Hash) {
	for i := 1; i < len(hashes); i++ {
		for j := i; j > 0 && bytes.Compare(hashes[j][:], hashes[j-1][:]) < 0; j-- {
			hashes[j], hashes[j-1] = hashes[j-1], hashes[j]
		}
	}
}
