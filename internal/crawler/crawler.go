// Package crawler implements C6, the tx crawler / profit attributor
// (spec §4.6): for each ingested block still missing a tx count, it
// fetches the target-time window of cross-chain txs from every
// supported chain, attributes each one to a block, looks up or caches
// the dealer's profit percent, and records both the attributed profit
// and the block's tx count.
package crawler

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/Orbiter-Finance/OB-Submitter/internal/chainadapter"
	"github.com/Orbiter-Finance/OB-Submitter/internal/domain"
	"github.com/Orbiter-Finance/OB-Submitter/internal/index"
	"github.com/Orbiter-Finance/OB-Submitter/internal/txindex"
	"github.com/Orbiter-Finance/OB-Submitter/internal/txsource"
)

// MaxWindow is the largest contiguous BlockInfo window loaded per step
// (spec §4.6 step 1).
const MaxWindow = 100

// ppmDenominator is the denominator of a parts-per-million profit ratio.
const ppmDenominator = 1_000_000

// Delays holds the per-ChainType confirmation delays applied to
// request_txs windows, in milliseconds.
type Delays struct {
	Common uint64
	OP     uint64
	ZK     uint64
}

func (d Delays) forChain(chainID uint64) uint64 {
	switch domain.GetChainType(chainID) {
	case domain.ChainTypeOP:
		return d.Common + d.OP
	case domain.ChainTypeZK:
		return d.Common + d.ZK
	default:
		return d.Common
	}
}

// Crawler is the single tx-crawling task.
type Crawler struct {
	index    *index.Index
	txIndex  *txindex.Index
	chain    chainadapter.Adapter
	txSource txsource.Source
	delays   Delays

	current uint64
}

// New constructs a Crawler resuming from startFrom.
func New(idx *index.Index, txIdx *txindex.Index, chain chainadapter.Adapter, src txsource.Source, delays Delays, startFrom uint64) *Crawler {
	return &Crawler{index: idx, txIndex: txIdx, chain: chain, txSource: src, delays: delays, current: startFrom}
}

// Current returns the crawler's resumption cursor.
func (c *Crawler) Current() uint64 { return c.current }

// Step processes at most one contiguous window of up to MaxWindow
// blocks. It returns advanced=false when there is nothing yet to do
// (the window is empty or every loaded block is already attributed),
// in which case the caller should sleep and retry.
func (c *Crawler) Step(ctx context.Context) (advanced bool, err error) {
	for {
		_, ok, err := c.index.BlockTxCount(c.current)
		if err != nil {
			return false, fmt.Errorf("crawler: block tx count %d: %w", c.current, err)
		}
		if !ok {
			break
		}
		c.current++
	}

	infos, err := c.index.BlockInfosFrom(c.current, MaxWindow)
	if err != nil {
		return false, fmt.Errorf("crawler: block infos from %d: %w", c.current, err)
	}
	if len(infos) == 0 {
		return false, nil
	}

	chains, err := c.txSource.GetSupportChains(ctx)
	if err != nil {
		return false, fmt.Errorf("crawler: get support chains: %w", err)
	}
	supported := dedupeChains(chains)

	fromBI := infos[0]
	toBI := infos[len(infos)-1]

	counts := make(map[uint64]int, len(infos))
	for _, bi := range infos {
		counts[bi.Storage.BlockNumber] = 0
	}

	for chainID := range supported {
		delay := c.delays.forChain(chainID)
		txs, err := c.txSource.RequestTxs(ctx, chainID, fromBI.Storage.BlockTimestamp*1000, toBI.Storage.BlockTimestamp*1000, delay)
		if err != nil {
			return false, fmt.Errorf("crawler: request txs chain %d: %w", chainID, err)
		}
		for _, tx := range txs {
			if !supported[tx.TargetChain] || !supported[tx.SourceChain] {
				continue
			}
			block, found := attributeBlock(infos, tx.TargetTime)
			if !found {
				continue
			}
			percent, err := c.dealerPercent(ctx, tx.Dealer, block.Storage.BlockNumber, tx.SourceToken)
			if err != nil {
				return false, fmt.Errorf("crawler: dealer percent: %w", err)
			}
			profit := new(uint256.Int).Mul(tx.Profit, uint256.NewInt(percent))
			profit.Div(profit, uint256.NewInt(ppmDenominator))

			rec := domain.CrossTxProfit{
				Maker:   resolveMaker(tx),
				Dealer:  tx.Dealer,
				Profit:  profit,
				ChainID: tx.SourceChain,
				Token:   tx.SourceToken,
			}
			if err := c.txIndex.Put(tx.TargetTime, tx.TargetChain, tx.TargetID, rec); err != nil {
				return false, fmt.Errorf("crawler: put tx index: %w", err)
			}
			counts[block.Storage.BlockNumber]++
		}
	}

	for _, bi := range infos {
		if err := c.index.SetBlockTxCount(bi.Storage.BlockNumber, uint64(counts[bi.Storage.BlockNumber])); err != nil {
			return false, fmt.Errorf("crawler: set block tx count %d: %w", bi.Storage.BlockNumber, err)
		}
	}

	c.current = toBI.Storage.BlockNumber + 1
	return true, nil
}

func resolveMaker(tx domain.CrossTx) common.Address {
	if tx.TargetMaker != nil {
		return *tx.TargetMaker
	}
	return tx.SourceMaker
}

func dedupeChains(chains []uint64) map[uint64]bool {
	out := make(map[uint64]bool, len(chains))
	for _, c := range chains {
		out[c] = true
	}
	return out
}

// attributeBlock finds the block B among infos (ascending by block
// number) whose half-open interval [B.block_timestamp*1000,
// next(B).block_timestamp*1000) contains targetTime. The last block in
// the window is never a match, since its upper bound requires a block
// not yet loaded (spec §4.6 step 3).
func attributeBlock(infos []domain.BlockInfo, targetTime uint64) (domain.BlockInfo, bool) {
	for i := 0; i < len(infos)-1; i++ {
		lower := infos[i].Storage.BlockTimestamp * 1000
		upper := infos[i+1].Storage.BlockTimestamp * 1000
		if targetTime >= lower && targetTime < upper {
			return infos[i], true
		}
	}
	return domain.BlockInfo{}, false
}

func (c *Crawler) dealerPercent(ctx context.Context, dealer common.Address, block uint64, token common.Address) (uint64, error) {
	if ppm, ok, err := c.index.MakerProfitPercent(dealer, block, token); err != nil {
		return 0, err
	} else if ok {
		return ppm, nil
	}
	ppm, err := c.chain.GetDealerProfitPercent(ctx, dealer, block, token)
	if err != nil {
		return 0, err
	}
	if err := c.index.SetMakerProfitPercent(dealer, block, token, ppm); err != nil {
		return 0, err
	}
	return ppm, nil
}
