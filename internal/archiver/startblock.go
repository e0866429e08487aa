package archiver

import (
	"context"
	"fmt"

	"github.com/Orbiter-Finance/OB-Submitter/internal/blocksstate"
	"github.com/Orbiter-Finance/OB-Submitter/internal/chainadapter"
	"github.com/Orbiter-Finance/OB-Submitter/internal/keys"
	"github.com/Orbiter-Finance/OB-Submitter/internal/smt"
)

// DiscoverStart resolves the true resumption block for a fresh process
// given the operator-supplied start, performed once before the three
// pipeline tasks are spawned (spec §4.7 "Start-block discovery").
func DiscoverStart(ctx context.Context, chain chainadapter.Adapter, blocks *smt.Engine[blocksstate.Data], confirmationDelay, start uint64) (uint64, error) {
	head, err := chain.LatestBlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("archiver: latest block number: %w", err)
	}
	if head < confirmationDelay {
		return 0, fmt.Errorf("archiver: chain head %d below confirmation delay %d", head, confirmationDelay)
	}
	trusted := head - confirmationDelay
	if start > trusted {
		return 0, fmt.Errorf("archiver: start block %d is ahead of trusted head %d", start, trusted)
	}

	root, err := blocks.Root()
	if err != nil {
		return 0, fmt.Errorf("archiver: blocks root: %w", err)
	}
	if root.Big().Sign() == 0 {
		return start, nil
	}

	startLeaf, err := blocks.Get(keys.Block(start))
	if err != nil {
		return 0, fmt.Errorf("archiver: get block leaf %d: %w", start, err)
	}
	if startLeaf.IsZero() {
		return 0, fmt.Errorf("archiver: block leaf %d is not populated, cannot resume from start", start)
	}

	for n := start + 1; n <= trusted; n++ {
		v, err := blocks.Get(keys.Block(n))
		if err != nil {
			return 0, fmt.Errorf("archiver: get block leaf %d: %w", n, err)
		}
		if v.IsZero() {
			return n, nil
		}
	}
	return 0, fmt.Errorf("archiver: no gap found in [%d,%d], caller should wait for more blocks", start+1, trusted)
}
