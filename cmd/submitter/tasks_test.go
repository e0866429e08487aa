package main

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Orbiter-Finance/OB-Submitter/internal/chainadapter"
	"github.com/Orbiter-Finance/OB-Submitter/internal/crawler"
	"github.com/Orbiter-Finance/OB-Submitter/internal/domain"
	"github.com/Orbiter-Finance/OB-Submitter/internal/index"
	"github.com/Orbiter-Finance/OB-Submitter/internal/kvstore"
	"github.com/Orbiter-Finance/OB-Submitter/internal/txindex"
	ob "github.com/Orbiter-Finance/OB-Submitter/log"
)

type idleChain struct{}

func (idleChain) LatestBlockNumber(ctx context.Context) (uint64, error) { return 0, nil }
func (idleChain) GetBlockStorage(ctx context.Context, n uint64) (domain.BlockStorage, error) {
	return domain.BlockStorage{}, nil
}
func (idleChain) GetFeeManagerEvents(ctx context.Context, from, to uint64) ([]domain.Event, error) {
	return nil, nil
}
func (idleChain) GetBlockInfos(ctx context.Context, from, to uint64) ([]domain.BlockInfo, error) {
	return nil, nil
}
func (idleChain) GetDealerProfitPercent(ctx context.Context, dealer common.Address, block uint64, token common.Address) (uint64, error) {
	return 0, nil
}
func (idleChain) SubmitRoot(ctx context.Context, start, end uint64, profitRoot, blocksRoot common.Hash) (chainadapter.SubmitResult, error) {
	return chainadapter.SubmitResult{}, nil
}

type idleSource struct{}

func (idleSource) RequestTxs(ctx context.Context, targetChain uint64, startMs, endMs, delayMs uint64) ([]domain.CrossTx, error) {
	return nil, nil
}
func (idleSource) GetSupportChains(ctx context.Context) ([]uint64, error) { return nil, nil }
func (idleSource) GetMainnetSupportTokens(ctx context.Context) ([]common.Address, error) {
	return nil, nil
}

func TestCrawlerTaskStopsOnContextCancel(t *testing.T) {
	store := kvstore.NewMemoryStore()
	idx := index.New(store)
	txIdx := txindex.New(store)
	c := crawler.New(idx, txIdx, idleChain{}, idleSource{}, crawler.Delays{Common: 1}, 0)
	task := &crawlerTask{crawler: c, log: ob.Default().Module("crawler")}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- task.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("got %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("crawlerTask did not stop after context cancel")
	}
}
