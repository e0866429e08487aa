package chainadapter

import (
	"context"
	"testing"
)

func TestEmbeddedABIParses(t *testing.T) {
	// mustParseABI panics on a malformed ABI; calling it is the test.
	abi := mustParseABI()
	for _, name := range []string{"durationCheck", "submissions", "getDealerInfo", "submit"} {
		if _, ok := abi.Methods[name]; !ok {
			t.Fatalf("missing method %q in embedded abi", name)
		}
	}
	for _, name := range []string{"ETHDeposit", "Withdraw"} {
		if _, ok := abi.Events[name]; !ok {
			t.Fatalf("missing event %q in embedded abi", name)
		}
	}
}

func TestSubmitRootFailedErrorMessage(t *testing.T) {
	block := uint64(100)
	err := &SubmitRootFailedError{Reason: "reverted", IncludedBlock: &block}
	if err.Error() == "" {
		t.Fatal("expected non-empty error message")
	}
	bare := &SubmitRootFailedError{Reason: "timeout"}
	if bare.Error() == "" {
		t.Fatal("expected non-empty error message without an included block")
	}
}

// TestTransferEventSignature pins the topic0 the structurally-reserved
// ERC-20 deposit path filters on to the well-known
// Transfer(address,address,uint256) selector.
func TestTransferEventSignature(t *testing.T) {
	const want = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"
	if got := transferEventSignature.Hex(); got != want {
		t.Fatalf("transfer event signature = %s, want %s", got, want)
	}
}

// TestGetERC20DepositEventsEmptyTokens exercises the structurally-reserved
// path's no-op shape: with no allow-listed tokens it returns without ever
// touching the chain client.
func TestGetERC20DepositEventsEmptyTokens(t *testing.T) {
	var a EthAdapter
	events, err := a.GetERC20DepositEvents(context.Background(), nil, 1, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if events != nil {
		t.Fatalf("expected nil events for empty token list, got %v", events)
	}
}
