package ingester

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/Orbiter-Finance/OB-Submitter/internal/chainadapter"
	"github.com/Orbiter-Finance/OB-Submitter/internal/domain"
	"github.com/Orbiter-Finance/OB-Submitter/internal/index"
	"github.com/Orbiter-Finance/OB-Submitter/internal/kvstore"
)

type fakeChain struct {
	infos map[uint64]domain.BlockInfo
	fail  map[string]bool // "from-to" windows to fail once
}

func newFakeChain() *fakeChain {
	return &fakeChain{infos: make(map[uint64]domain.BlockInfo), fail: make(map[string]bool)}
}

func (f *fakeChain) LatestBlockNumber(ctx context.Context) (uint64, error) { return 0, nil }

func (f *fakeChain) GetBlockStorage(ctx context.Context, n uint64) (domain.BlockStorage, error) {
	return domain.BlockStorage{}, nil
}

func (f *fakeChain) GetFeeManagerEvents(ctx context.Context, from, to uint64) ([]domain.Event, error) {
	return nil, nil
}

func (f *fakeChain) GetBlockInfos(ctx context.Context, from, to uint64) ([]domain.BlockInfo, error) {
	var out []domain.BlockInfo
	for n := from; n <= to; n++ {
		bi, ok := f.infos[n]
		if !ok {
			return nil, nil
		}
		out = append(out, bi)
	}
	return out, nil
}

func (f *fakeChain) GetDealerProfitPercent(ctx context.Context, dealer common.Address, block uint64, token common.Address) (uint64, error) {
	return 0, nil
}

func (f *fakeChain) SubmitRoot(ctx context.Context, start, end uint64, profitRoot, blocksRoot common.Hash) (chainadapter.SubmitResult, error) {
	return chainadapter.SubmitResult{}, nil
}

func newTestIngester(chain *fakeChain, idx *index.Index, confirmationDelay, startFrom uint64) *Ingester {
	return New(chain, idx, confirmationDelay, startFrom)
}

func TestOnHeadIngestsUpToConfirmationDelay(t *testing.T) {
	chain := newFakeChain()
	for n := uint64(1); n <= 10; n++ {
		chain.infos[n] = domain.BlockInfo{Storage: domain.BlockStorage{BlockNumber: n}}
	}
	idx := index.New(kvstore.NewMemoryStore())
	ing := newTestIngester(chain, idx, 2, 1)

	head := domain.BlockInfo{Storage: domain.BlockStorage{BlockNumber: 10}}
	if err := ing.OnHead(context.Background(), head); err != nil {
		t.Fatal(err)
	}
	if ing.From() != 9 {
		t.Fatalf("got from=%d, want 9 (end = 10-2 = 8, from advances to 9)", ing.From())
	}
	for n := uint64(1); n <= 8; n++ {
		has, err := idx.HasBlockInfo(n)
		if err != nil {
			t.Fatal(err)
		}
		if !has {
			t.Fatalf("expected block %d to be persisted", n)
		}
	}
	if has, _ := idx.HasBlockInfo(9); has {
		t.Fatal("expected block 9 to not yet be persisted (beyond confirmation delay)")
	}
}

func TestOnHeadIsIdempotentAcrossDuplicateDeliveries(t *testing.T) {
	chain := newFakeChain()
	for n := uint64(1); n <= 5; n++ {
		chain.infos[n] = domain.BlockInfo{Storage: domain.BlockStorage{BlockNumber: n}}
	}
	idx := index.New(kvstore.NewMemoryStore())
	ing := newTestIngester(chain, idx, 0, 1)

	head := domain.BlockInfo{Storage: domain.BlockStorage{BlockNumber: 5}}
	if err := ing.OnHead(context.Background(), head); err != nil {
		t.Fatal(err)
	}
	firstFrom := ing.From()

	// re-deliver the same head; should be a no-op since from already
	// passed it.
	if err := ing.OnHead(context.Background(), head); err != nil {
		t.Fatal(err)
	}
	if ing.From() != firstFrom {
		t.Fatalf("got from=%d after duplicate delivery, want unchanged %d", ing.From(), firstFrom)
	}
}

func TestOnHeadRecordsDepositAndWithdrawAccounting(t *testing.T) {
	user := common.HexToAddress("0x1111111111111111111111111111111111111111")
	token := common.HexToAddress("0x2222222222222222222222222222222222222222")

	chain := newFakeChain()
	chain.infos[1] = domain.BlockInfo{
		Storage: domain.BlockStorage{BlockNumber: 1},
		Events: []domain.Event{
			{Kind: domain.EventDeposit, User: user, ChainID: 1, Token: token, Amount: uint256.NewInt(100)},
			{Kind: domain.EventWithdraw, User: user, ChainID: 1, Token: token, Amount: uint256.NewInt(40)},
		},
	}
	idx := index.New(kvstore.NewMemoryStore())
	ing := newTestIngester(chain, idx, 0, 1)

	head := domain.BlockInfo{Storage: domain.BlockStorage{BlockNumber: 1}}
	if err := ing.OnHead(context.Background(), head); err != nil {
		t.Fatal(err)
	}

	stats, err := idx.ProfitStatisticsFor(user, 1, token)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalDeposit.Uint64() != 100 {
		t.Fatalf("got total deposit %s, want 100", stats.TotalDeposit.String())
	}
	if stats.TotalWithdrawn.Uint64() != 40 {
		t.Fatalf("got total withdrawn %s, want 40", stats.TotalWithdrawn.String())
	}

	tokens, err := idx.UserTokens(user)
	if err != nil {
		t.Fatal(err)
	}
	if len(tokens) != 1 || tokens[0].Token != token || tokens[0].ChainID != 1 {
		t.Fatalf("got tokens %+v", tokens)
	}
}
