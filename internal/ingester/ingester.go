// Package ingester implements C5, the block ingester (spec §4.5): it
// tails the broadcast bus for the latest observed chain head and
// persists finalised block-info plus deposit/withdraw accounting into
// the auxiliary indexes.
package ingester

import (
	"context"
	"fmt"

	"github.com/Orbiter-Finance/OB-Submitter/internal/bus"
	"github.com/Orbiter-Finance/OB-Submitter/internal/chainadapter"
	"github.com/Orbiter-Finance/OB-Submitter/internal/domain"
	"github.com/Orbiter-Finance/OB-Submitter/internal/index"
)

// WindowSize is the offset added to "from" to compute each window's
// upper bound, `to = min(from+WindowSize, end)` (spec §4.5), giving a
// window of up to WindowSize+1 blocks.
const WindowSize = 15

// Ingester is the single block-ingestion task.
type Ingester struct {
	chain             chainadapter.Adapter
	index             *index.Index
	confirmationDelay uint64

	from uint64
}

// New constructs an Ingester resuming from startFrom (the next block
// number it has not yet persisted).
func New(chain chainadapter.Adapter, idx *index.Index, confirmationDelay, startFrom uint64) *Ingester {
	return &Ingester{chain: chain, index: idx, confirmationDelay: confirmationDelay, from: startFrom}
}

// Run consumes BlockInfo deliveries off sub until ctx is cancelled,
// driving OnHead on each one. Catch-up after a dropped delivery is
// automatic: OnHead always advances from the ingester's own in-memory
// "from" cursor, not from the delivered BlockInfo itself.
func (g *Ingester) Run(ctx context.Context, sub *bus.Subscription, onLog func(string)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case head, ok := <-sub.Chan():
			if !ok {
				return nil
			}
			if err := g.OnHead(ctx, head); err != nil {
				if onLog != nil {
					onLog(fmt.Sprintf("ingester: %v", err))
				}
			}
		}
	}
}

// OnHead advances the ingester as far as it can toward
// head.block_number - confirmationDelay, persisting every block it
// reads along the way. It is idempotent: re-delivering the same or an
// older head is a no-op once "from" has passed it.
func (g *Ingester) OnHead(ctx context.Context, head domain.BlockInfo) error {
	if head.Storage.BlockNumber < g.confirmationDelay {
		return nil
	}
	end := head.Storage.BlockNumber - g.confirmationDelay

	for g.from <= end {
		if has, err := g.index.HasBlockInfo(g.from); err != nil {
			return fmt.Errorf("ingester: has block info %d: %w", g.from, err)
		} else if has {
			g.from++
			continue
		}

		to := g.from + WindowSize
		if to > end {
			to = end
		}

		infos, err := g.chain.GetBlockInfos(ctx, g.from, to)
		if err != nil {
			return fmt.Errorf("ingester: get block infos [%d,%d]: %w", g.from, to, err)
		}
		if len(infos) == 0 {
			return fmt.Errorf("ingester: empty block infos for [%d,%d], will retry", g.from, to)
		}

		for _, bi := range infos {
			if err := g.persist(bi); err != nil {
				return err
			}
		}
		g.from = to + 1
	}
	return nil
}

func (g *Ingester) persist(bi domain.BlockInfo) error {
	if err := g.index.PutBlockInfo(bi.Storage.BlockNumber, bi); err != nil {
		return fmt.Errorf("ingester: put block info %d: %w", bi.Storage.BlockNumber, err)
	}
	for _, ev := range bi.Events {
		if err := g.index.AddUserToken(ev.User, ev.ChainID, ev.Token); err != nil {
			return fmt.Errorf("ingester: add user token: %w", err)
		}
		switch ev.Kind {
		case domain.EventDeposit:
			if err := g.index.AddTotalDeposit(ev.User, ev.ChainID, ev.Token, ev.Amount); err != nil {
				return fmt.Errorf("ingester: add total deposit: %w", err)
			}
		case domain.EventWithdraw:
			if err := g.index.AddTotalWithdrawn(ev.User, ev.ChainID, ev.Token, ev.Amount); err != nil {
				return fmt.Errorf("ingester: add total withdrawn: %w", err)
			}
		}
	}
	return nil
}

// From returns the ingester's current resumption cursor, for
// persistence/inspection.
func (g *Ingester) From() uint64 { return g.from }
