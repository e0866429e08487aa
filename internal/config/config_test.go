package config

import (
	"os"
	"testing"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	env := map[string]string{
		"MAINNET_RPC_URLS":             "https://rpc1.example;https://rpc2.example",
		"MAINNET_CHAIN_ID":             "5",
		"FEE_MANAGER_CONTRACT_ADDRESS": "0x1111111111111111111111111111111111111111",
		"TXS_SOURCE_URL":               "https://txs.example",
		"SUPPORT_CHAINS_SOURCE_URL":    "https://chains.example",
		"COMMON_DELAY_SECONDS":         "60",
		"OP_DELAY_SECONDS":             "120",
		"ZK_DELAY_SECONDS":             "180",
	}
	for k, v := range env {
		t.Setenv(k, v)
	}
	for _, k := range []string{"BLOCK_INFOS_BATCH", "DEALER_WITHDRAW_DELAY", "WITHDRAW_DURATION", "LOCK_DURATION"} {
		os.Unsetenv(k)
	}
}

func TestFromEnvAppliesDefaults(t *testing.T) {
	setRequiredEnv(t)
	c, err := FromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if c.BlockInfosBatch != 10 {
		t.Fatalf("got BlockInfosBatch=%d, want default 10", c.BlockInfosBatch)
	}
	if c.DealerWithdrawDelay != 3600 || c.WithdrawDuration != 3360 || c.LockDuration != 240 {
		t.Fatalf("got %+v, want default timing values", c)
	}
	if len(c.MainnetRPCURLs) != 2 {
		t.Fatalf("got %d rpc urls, want 2", len(c.MainnetRPCURLs))
	}
}

func TestFromEnvOverridesDefaults(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BLOCK_INFOS_BATCH", "25")
	t.Setenv("LOCK_DURATION", "300")

	c, err := FromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if c.BlockInfosBatch != 25 {
		t.Fatalf("got BlockInfosBatch=%d, want 25", c.BlockInfosBatch)
	}
	if c.LockDuration != 300 {
		t.Fatalf("got LockDuration=%d, want 300", c.LockDuration)
	}
}

func TestFromEnvFailsWhenRequiredVarMissing(t *testing.T) {
	setRequiredEnv(t)
	os.Unsetenv("TXS_SOURCE_URL")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected an error when TXS_SOURCE_URL is unset")
	}
}

func TestValidateRejectsZeroLockDuration(t *testing.T) {
	c := DefaultConfig()
	c.MainnetRPCURLs = []string{"https://rpc.example"}
	c.MainnetChainID = 1
	c.FeeManagerContractAddress = "0x1111111111111111111111111111111111111111"
	c.TxsSourceURL = "https://txs.example"
	c.SupportChainsSourceURL = "https://chains.example"
	c.LockDuration = 0
	if err := c.Validate(); err == nil {
		t.Fatal("expected validation error for zero lock duration")
	}
}
