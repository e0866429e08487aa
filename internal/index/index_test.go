package index

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/Orbiter-Finance/OB-Submitter/internal/domain"
	"github.com/Orbiter-Finance/OB-Submitter/internal/kvstore"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	return New(kvstore.NewMemoryStore())
}

func TestBlockInfoRoundTrip(t *testing.T) {
	x := newTestIndex(t)
	bi := domain.BlockInfo{Storage: domain.BlockStorage{BlockNumber: 42, Duration: domain.DurationLock}}
	if err := x.PutBlockInfo(42, bi); err != nil {
		t.Fatal(err)
	}
	got, ok, err := x.GetBlockInfo(42)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected block info to be present")
	}
	if got.Storage.BlockNumber != 42 || got.Storage.Duration != domain.DurationLock {
		t.Fatalf("got %+v", got)
	}
	if _, ok, _ := x.GetBlockInfo(43); ok {
		t.Fatal("expected block 43 to be absent")
	}
}

func TestBlockInfosFromIsOrderedAndBounded(t *testing.T) {
	x := newTestIndex(t)
	for n := uint64(10); n <= 20; n++ {
		if err := x.PutBlockInfo(n, domain.BlockInfo{Storage: domain.BlockStorage{BlockNumber: n}}); err != nil {
			t.Fatal(err)
		}
	}
	got, err := x.BlockInfosFrom(12, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3", len(got))
	}
	for i, want := range []uint64{12, 13, 14} {
		if got[i].Storage.BlockNumber != want {
			t.Fatalf("entry %d = %d, want %d", i, got[i].Storage.BlockNumber, want)
		}
	}
}

func TestBlockTxCountAbsentUntilSet(t *testing.T) {
	x := newTestIndex(t)
	if _, ok, err := x.BlockTxCount(5); err != nil || ok {
		t.Fatalf("expected absent, got ok=%v err=%v", ok, err)
	}
	if err := x.SetBlockTxCount(5, 7); err != nil {
		t.Fatal(err)
	}
	count, ok, err := x.BlockTxCount(5)
	if err != nil || !ok || count != 7 {
		t.Fatalf("got count=%d ok=%v err=%v", count, ok, err)
	}
}

func TestUserTokensDedupAndOrder(t *testing.T) {
	x := newTestIndex(t)
	user := common.HexToAddress("0x1111111111111111111111111111111111111111")
	tokA := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	tokB := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	for _, err := range []error{
		x.AddUserToken(user, 5, tokB),
		x.AddUserToken(user, 1, tokA),
		x.AddUserToken(user, 5, tokB), // duplicate, no-op
	} {
		if err != nil {
			t.Fatal(err)
		}
	}
	refs, err := x.UserTokens(user)
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 2 {
		t.Fatalf("got %d refs, want 2", len(refs))
	}
	if refs[0].ChainID != 1 || refs[1].ChainID != 5 {
		t.Fatalf("expected ascending chain id order, got %+v", refs)
	}
}

func TestProfitStatisticsAccumulate(t *testing.T) {
	x := newTestIndex(t)
	user := common.HexToAddress("0x1111111111111111111111111111111111111111")
	tok := common.Address{}

	if err := x.AddTotalDeposit(user, 5, tok, uint256.NewInt(100)); err != nil {
		t.Fatal(err)
	}
	if err := x.AddTotalDeposit(user, 5, tok, uint256.NewInt(50)); err != nil {
		t.Fatal(err)
	}
	if err := x.AddTotalWithdrawn(user, 5, tok, uint256.NewInt(20)); err != nil {
		t.Fatal(err)
	}

	stats, err := x.ProfitStatisticsFor(user, 5, tok)
	if err != nil {
		t.Fatal(err)
	}
	if !stats.TotalDeposit.Eq(uint256.NewInt(150)) {
		t.Fatalf("total deposit = %s, want 150", stats.TotalDeposit)
	}
	if !stats.TotalWithdrawn.Eq(uint256.NewInt(20)) {
		t.Fatalf("total withdrawn = %s, want 20", stats.TotalWithdrawn)
	}
	if !stats.TotalProfit.IsZero() {
		t.Fatalf("total profit = %s, want 0", stats.TotalProfit)
	}
}
