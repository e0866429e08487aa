package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/Orbiter-Finance/OB-Submitter/internal/bus"
	"github.com/Orbiter-Finance/OB-Submitter/internal/chainadapter"
	"github.com/Orbiter-Finance/OB-Submitter/internal/domain"
)

// PollInterval is how often the head tailer checks latest_block_number
// (spec §4.3, T1).
const PollInterval = 10 * time.Second

// HeadTailer is T1: it polls the chain for a new head and publishes the
// resulting BlockStorage onto the bus for its subscribers to react to.
// Transient chain errors are swallowed and retried on the next tick.
type HeadTailer struct {
	chain chainadapter.Adapter
	bus   *bus.Bus
	onLog func(format string, args ...interface{})

	last uint64
}

// NewHeadTailer constructs a HeadTailer publishing onto b.
func NewHeadTailer(chain chainadapter.Adapter, b *bus.Bus, onLog func(format string, args ...interface{})) *HeadTailer {
	return &HeadTailer{chain: chain, bus: b, onLog: onLog}
}

// Run implements Task.
func (h *HeadTailer) Run(ctx context.Context) error {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := h.poll(ctx); err != nil && h.onLog != nil {
				h.onLog("head tailer: %v", err)
			}
		}
	}
}

func (h *HeadTailer) poll(ctx context.Context) error {
	n, err := h.chain.LatestBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("latest block number: %w", err)
	}
	if n == h.last {
		return nil
	}
	storage, err := h.chain.GetBlockStorage(ctx, n)
	if err != nil {
		return fmt.Errorf("block storage at %d: %w", n, err)
	}
	h.last = n
	h.bus.Publish(domain.BlockInfo{Storage: storage})
	return nil
}
