package supervisor

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Orbiter-Finance/OB-Submitter/internal/bus"
	"github.com/Orbiter-Finance/OB-Submitter/internal/chainadapter"
	"github.com/Orbiter-Finance/OB-Submitter/internal/domain"
)

type fakeChain struct {
	head    uint64
	storage domain.BlockStorage
}

func (f *fakeChain) LatestBlockNumber(ctx context.Context) (uint64, error) { return f.head, nil }
func (f *fakeChain) GetBlockStorage(ctx context.Context, n uint64) (domain.BlockStorage, error) {
	f.storage.BlockNumber = n
	return f.storage, nil
}
func (f *fakeChain) GetFeeManagerEvents(ctx context.Context, from, to uint64) ([]domain.Event, error) {
	return nil, nil
}
func (f *fakeChain) GetBlockInfos(ctx context.Context, from, to uint64) ([]domain.BlockInfo, error) {
	return nil, nil
}
func (f *fakeChain) GetDealerProfitPercent(ctx context.Context, dealer common.Address, block uint64, token common.Address) (uint64, error) {
	return 0, nil
}
func (f *fakeChain) SubmitRoot(ctx context.Context, start, end uint64, profitRoot, blocksRoot common.Hash) (chainadapter.SubmitResult, error) {
	return chainadapter.SubmitResult{}, nil
}

func TestPollPublishesOnlyWhenHeadChanges(t *testing.T) {
	chain := &fakeChain{head: 10}
	b := bus.New()
	sub := b.Subscribe()
	h := NewHeadTailer(chain, b, nil)

	if err := h.poll(context.Background()); err != nil {
		t.Fatal(err)
	}
	select {
	case info := <-sub.Chan():
		if info.Storage.BlockNumber != 10 {
			t.Fatalf("got block %d, want 10", info.Storage.BlockNumber)
		}
	default:
		t.Fatal("expected a publish on first poll")
	}

	if err := h.poll(context.Background()); err != nil {
		t.Fatal(err)
	}
	select {
	case info := <-sub.Chan():
		t.Fatalf("expected no publish when head unchanged, got %+v", info)
	default:
	}

	chain.head = 11
	if err := h.poll(context.Background()); err != nil {
		t.Fatal(err)
	}
	select {
	case info := <-sub.Chan():
		if info.Storage.BlockNumber != 11 {
			t.Fatalf("got block %d, want 11", info.Storage.BlockNumber)
		}
	default:
		t.Fatal("expected a publish when head advances")
	}
}
