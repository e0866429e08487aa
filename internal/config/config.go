// Package config loads the submitter's environment-variable configuration
// (spec §6), mirroring node/config.go's Config/Validate shape.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds every environment-variable setting the submitter needs.
type Config struct {
	// MainnetRPCURLs is the semicolon-separated list of mainnet JSON-RPC
	// endpoints; the first reachable one is used.
	MainnetRPCURLs []string

	// MainnetChainID is the chain id the fee-manager contract is deployed on.
	MainnetChainID uint64

	// FeeManagerContractAddress is the fee-manager contract's address.
	FeeManagerContractAddress string

	// TxsSourceURL is the tx source adapter's base URL.
	TxsSourceURL string

	// SupportChainsSourceURL is the supported-chains discovery URL.
	SupportChainsSourceURL string

	// CommonDelaySeconds, OPDelaySeconds, ZKDelaySeconds are the tx
	// crawler's per-ChainType confirmation delays (spec §4.6 step 2).
	CommonDelaySeconds uint64
	OPDelaySeconds     uint64
	ZKDelaySeconds     uint64

	// BlockInfosBatch is loaded and validated (default 10) but is not read
	// by the ingester, whose window size is fixed by ingester.WindowSize.
	BlockInfosBatch int

	// DealerWithdrawDelay, WithdrawDuration, LockDuration are fee-manager
	// contract phase timing parameters, in seconds.
	DealerWithdrawDelay uint64
	WithdrawDuration    uint64
	LockDuration        uint64
}

// DefaultConfig returns a Config populated with every value spec §6 gives
// a default for; every other field is left zero and must be supplied by
// FromEnv before Validate will accept it.
func DefaultConfig() Config {
	return Config{
		BlockInfosBatch:     10,
		DealerWithdrawDelay: 3600,
		WithdrawDuration:    3360,
		LockDuration:        240,
	}
}

// FromEnv loads a Config from the process environment, starting from
// DefaultConfig and overriding with whichever of the recognized variables
// are set.
func FromEnv() (Config, error) {
	c := DefaultConfig()

	urls, err := requireEnv("MAINNET_RPC_URLS")
	if err != nil {
		return Config{}, err
	}
	c.MainnetRPCURLs = splitSemicolon(urls)

	if c.MainnetChainID, err = requireUint64Env("MAINNET_CHAIN_ID"); err != nil {
		return Config{}, err
	}
	if c.FeeManagerContractAddress, err = requireEnv("FEE_MANAGER_CONTRACT_ADDRESS"); err != nil {
		return Config{}, err
	}
	if c.TxsSourceURL, err = requireEnv("TXS_SOURCE_URL"); err != nil {
		return Config{}, err
	}
	if c.SupportChainsSourceURL, err = requireEnv("SUPPORT_CHAINS_SOURCE_URL"); err != nil {
		return Config{}, err
	}
	if c.CommonDelaySeconds, err = requireUint64Env("COMMON_DELAY_SECONDS"); err != nil {
		return Config{}, err
	}
	if c.OPDelaySeconds, err = requireUint64Env("OP_DELAY_SECONDS"); err != nil {
		return Config{}, err
	}
	if c.ZKDelaySeconds, err = requireUint64Env("ZK_DELAY_SECONDS"); err != nil {
		return Config{}, err
	}

	if v, ok := os.LookupEnv("BLOCK_INFOS_BATCH"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: BLOCK_INFOS_BATCH: %w", err)
		}
		c.BlockInfosBatch = n
	}
	if v, ok := os.LookupEnv("DEALER_WITHDRAW_DELAY"); ok {
		if c.DealerWithdrawDelay, err = strconv.ParseUint(v, 10, 64); err != nil {
			return Config{}, fmt.Errorf("config: DEALER_WITHDRAW_DELAY: %w", err)
		}
	}
	if v, ok := os.LookupEnv("WITHDRAW_DURATION"); ok {
		if c.WithdrawDuration, err = strconv.ParseUint(v, 10, 64); err != nil {
			return Config{}, fmt.Errorf("config: WITHDRAW_DURATION: %w", err)
		}
	}
	if v, ok := os.LookupEnv("LOCK_DURATION"); ok {
		if c.LockDuration, err = strconv.ParseUint(v, 10, 64); err != nil {
			return Config{}, fmt.Errorf("config: LOCK_DURATION: %w", err)
		}
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks Config for internal consistency.
func (c *Config) Validate() error {
	if len(c.MainnetRPCURLs) == 0 {
		return errors.New("config: MAINNET_RPC_URLS must not be empty")
	}
	if c.MainnetChainID == 0 {
		return errors.New("config: MAINNET_CHAIN_ID must be set")
	}
	if c.FeeManagerContractAddress == "" {
		return errors.New("config: FEE_MANAGER_CONTRACT_ADDRESS must not be empty")
	}
	if c.TxsSourceURL == "" {
		return errors.New("config: TXS_SOURCE_URL must not be empty")
	}
	if c.SupportChainsSourceURL == "" {
		return errors.New("config: SUPPORT_CHAINS_SOURCE_URL must not be empty")
	}
	if c.BlockInfosBatch <= 0 {
		return fmt.Errorf("config: invalid BLOCK_INFOS_BATCH: %d", c.BlockInfosBatch)
	}
	if c.LockDuration == 0 {
		return errors.New("config: LOCK_DURATION must be > 0")
	}
	return nil
}

func requireEnv(name string) (string, error) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return "", fmt.Errorf("config: %s is required", name)
	}
	return v, nil
}

func requireUint64Env(name string) (uint64, error) {
	v, err := requireEnv(name)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", name, err)
	}
	return n, nil
}

func splitSemicolon(s string) []string {
	parts := strings.Split(s, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
