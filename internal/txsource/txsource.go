// Package txsource implements C4, the external cross-chain transaction
// index client (spec §4.4).
package txsource

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/Orbiter-Finance/OB-Submitter/internal/domain"
)

// Source is the tx source adapter interface.
type Source interface {
	RequestTxs(ctx context.Context, targetChain uint64, startMs, endMs, delayMs uint64) ([]domain.CrossTx, error)
	GetSupportChains(ctx context.Context) ([]uint64, error)
	GetMainnetSupportTokens(ctx context.Context) ([]common.Address, error)
}

// HTTPSource is the production Source, backed by the external tx index
// HTTP service.
type HTTPSource struct {
	txsURL        string
	supportChains string
	client        *http.Client
}

// New constructs an HTTPSource. txsURL serves request_txs queries;
// supportChainsURL serves both get_support_chains and
// get_mainnet_support_tokens.
func New(txsURL, supportChainsURL string, client *http.Client) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{txsURL: txsURL, supportChains: supportChainsURL, client: client}
}

type crossTxRaw struct {
	Dealer       string `json:"dealer"`
	Profit       string `json:"profit"`
	SourceChain  uint64 `json:"sourceChain"`
	SourceID     string `json:"sourceId"`
	SourceMaker  string `json:"sourceMaker"`
	SourceTime   uint64 `json:"sourceTime"`
	SourceToken  string `json:"sourceToken"`
	TargetAddr   string `json:"targetAddress"`
	TargetAmount string `json:"targetAmount"`
	TargetChain  uint64 `json:"targetChain"`
	TargetTxHash string `json:"targetTxHash"`
	TargetMaker  string `json:"targetMaker,omitempty"`
	TargetTime   uint64 `json:"targetTime"`
	TargetToken  string `json:"targetToken"`
}

// RequestTxs fetches settled cross-chain txs targeting targetChain whose
// target_time falls in the confirmation-shifted window: the query window
// is shifted backwards by delayMs before the request, then delayMs is
// re-added to every returned target_time (spec §4.4).
func (s *HTTPSource) RequestTxs(ctx context.Context, targetChain, startMs, endMs, delayMs uint64) ([]domain.CrossTx, error) {
	shiftedStart := saturatingSub(startMs, delayMs)
	shiftedEnd := saturatingSub(endMs, delayMs)

	q := url.Values{}
	q.Set("targetChain", strconv.FormatUint(targetChain, 10))
	q.Set("startMs", strconv.FormatUint(shiftedStart, 10))
	q.Set("endMs", strconv.FormatUint(shiftedEnd, 10))

	var raws []crossTxRaw
	if err := s.getJSON(ctx, s.txsURL+"?"+q.Encode(), &raws); err != nil {
		return nil, fmt.Errorf("txsource: request_txs: %w", err)
	}

	out := make([]domain.CrossTx, 0, len(raws))
	for _, r := range raws {
		tx, err := fromRaw(r)
		if err != nil {
			return nil, fmt.Errorf("txsource: decode tx %s: %w", r.TargetTxHash, err)
		}
		tx.TargetTime += delayMs
		out = append(out, tx)
	}
	return out, nil
}

func saturatingSub(a, b uint64) uint64 {
	if b >= a {
		return 0
	}
	return a - b
}

func fromRaw(r crossTxRaw) (domain.CrossTx, error) {
	profit, err := parseU256(r.Profit)
	if err != nil {
		return domain.CrossTx{}, fmt.Errorf("profit: %w", err)
	}
	amount, err := parseU256(r.TargetAmount)
	if err != nil {
		return domain.CrossTx{}, fmt.Errorf("targetAmount: %w", err)
	}
	targetID, err := targetIDFromTxHash(r.TargetTxHash)
	if err != nil {
		return domain.CrossTx{}, fmt.Errorf("targetTxHash: %w", err)
	}

	tx := domain.CrossTx{
		Dealer:       common.HexToAddress(r.Dealer),
		Profit:       profit,
		SourceChain:  r.SourceChain,
		SourceID:     r.SourceID,
		SourceMaker:  common.HexToAddress(r.SourceMaker),
		SourceTime:   r.SourceTime,
		SourceToken:  common.HexToAddress(r.SourceToken),
		TargetAddr:   common.HexToAddress(r.TargetAddr),
		TargetAmount: amount,
		TargetChain:  r.TargetChain,
		TargetID:     targetID,
		TargetTime:   r.TargetTime,
		TargetToken:  common.HexToAddress(r.TargetToken),
	}
	if r.TargetMaker != "" {
		addr := common.HexToAddress(r.TargetMaker)
		tx.TargetMaker = &addr
	}
	return tx, nil
}

func parseU256(s string) (*uint256.Int, error) {
	if s == "" {
		return new(uint256.Int), nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// targetIDFromTxHash derives the sort-key target_id as the first 32 bytes
// of the hex transaction hash (spec §4.4) — in practice the whole hash,
// since Ethereum-style tx hashes are exactly 32 bytes.
func targetIDFromTxHash(hexHash string) (common.Hash, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(hexHash, "0x"))
	if err != nil {
		return common.Hash{}, err
	}
	var h common.Hash
	n := copy(h[:], raw)
	if n == 0 {
		return common.Hash{}, fmt.Errorf("empty tx hash")
	}
	return h, nil
}

// GetSupportChains returns the chain ids the external index supports.
func (s *HTTPSource) GetSupportChains(ctx context.Context) ([]uint64, error) {
	var chains []uint64
	if err := s.getJSON(ctx, s.supportChains+"/chains", &chains); err != nil {
		return nil, fmt.Errorf("txsource: get_support_chains: %w", err)
	}
	return chains, nil
}

// GetMainnetSupportTokens returns the deduplicated set of mainnet tokens
// the bridge supports, including the zero address (native asset).
func (s *HTTPSource) GetMainnetSupportTokens(ctx context.Context) ([]common.Address, error) {
	var raws []string
	if err := s.getJSON(ctx, s.supportChains+"/tokens", &raws); err != nil {
		return nil, fmt.Errorf("txsource: get_mainnet_support_tokens: %w", err)
	}
	seen := make(map[common.Address]bool, len(raws)+1)
	out := make([]common.Address, 0, len(raws)+1)
	seen[common.Address{}] = true
	out = append(out, common.Address{})
	for _, r := range raws {
		addr := common.HexToAddress(r)
		if seen[addr] {
			continue
		}
		seen[addr] = true
		out = append(out, addr)
	}
	return out, nil
}

func (s *HTTPSource) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, rawURL)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
