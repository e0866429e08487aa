// Package chainadapter implements C3, the read-only view of the
// fee-manager contract plus the single on-chain write (spec §4.3).
package chainadapter

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"

	"github.com/Orbiter-Finance/OB-Submitter/internal/domain"
)

// transferEventSignature is the ERC-20 Transfer(address,address,uint256)
// topic0, used only by the reserved-but-disabled ERC-20 deposit path
// (GetERC20DepositEvents below).
var transferEventSignature = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// SubmitRootFailedError is the distinguished error variant of spec §7: a
// failed submit_root call, carrying the on-chain block the failure was
// observed at (if any) so the archiver can suppress immediate retries.
type SubmitRootFailedError struct {
	Reason        string
	IncludedBlock *uint64
}

func (e *SubmitRootFailedError) Error() string {
	if e.IncludedBlock != nil {
		return fmt.Sprintf("submit_root failed at block %d: %s", *e.IncludedBlock, e.Reason)
	}
	return fmt.Sprintf("submit_root failed: %s", e.Reason)
}

// SubmitResult is the successful outcome of SubmitRoot.
type SubmitResult struct {
	TxHash        common.Hash
	IncludedBlock *uint64
}

// Adapter is the chain-adapter interface consumed by the ingester,
// crawler and archiver. It is satisfied by *EthAdapter in production and
// by a fake in tests.
type Adapter interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	GetBlockStorage(ctx context.Context, n uint64) (domain.BlockStorage, error)
	GetFeeManagerEvents(ctx context.Context, from, to uint64) ([]domain.Event, error)
	GetBlockInfos(ctx context.Context, from, to uint64) ([]domain.BlockInfo, error)
	GetDealerProfitPercent(ctx context.Context, dealer common.Address, block uint64, token common.Address) (uint64, error)
	SubmitRoot(ctx context.Context, start, end uint64, profitRoot, blocksRoot common.Hash) (SubmitResult, error)
}

// EthAdapter is the ethclient-backed Adapter implementation.
type EthAdapter struct {
	client    *ethclient.Client
	contract  *bind.BoundContract
	address   common.Address
	parsedABI abi.ABI
	signer    *bind.TransactOpts
}

// New constructs an EthAdapter against feeManager, using client for both
// reads and writes. signer may be nil if SubmitRoot will never be called
// (e.g. a read-only RPC process).
func New(client *ethclient.Client, feeManager common.Address, signer *bind.TransactOpts) *EthAdapter {
	parsed := mustParseABI()
	return &EthAdapter{
		client:    client,
		contract:  bind.NewBoundContract(feeManager, parsed, client, client, client),
		address:   feeManager,
		parsedABI: parsed,
		signer:    signer,
	}
}

// LatestBlockNumber returns the chain's current head block number.
func (a *EthAdapter) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return a.client.BlockNumber(ctx)
}

// rpcBlockHeader is the subset of eth_getBlockByNumber's result this
// adapter needs: the block's own timestamp, batched alongside the two
// contract reads below.
type rpcBlockHeader struct {
	Timestamp hexutil.Uint64 `json:"timestamp"`
}

// ethCallMsg is the JSON shape eth_call expects for its first parameter;
// bind.BoundContract builds this internally for a single call, but batching
// three calls into one round trip means constructing it by hand here.
func ethCallMsg(to common.Address, data []byte) map[string]interface{} {
	return map[string]interface{}{"to": to, "data": hexutil.Bytes(data)}
}

// GetBlockStorage reads the fee-manager's phase, submission window, and
// profit root, pinned to block n, combined with that block's own
// timestamp (spec §4.3). All three reads are pinned to the same block
// number and folded into a single JSON-RPC batch request via
// go-ethereum's rpc.Client.BatchCallContext, rather than three
// sequential round-trips.
func (a *EthAdapter) GetBlockStorage(ctx context.Context, n uint64) (domain.BlockStorage, error) {
	blockTag := hexutil.EncodeBig(new(big.Int).SetUint64(n))

	durationCall, err := a.parsedABI.Pack("durationCheck")
	if err != nil {
		return domain.BlockStorage{}, fmt.Errorf("chainadapter: pack durationCheck: %w", err)
	}
	submissionsCall, err := a.parsedABI.Pack("submissions")
	if err != nil {
		return domain.BlockStorage{}, fmt.Errorf("chainadapter: pack submissions: %w", err)
	}

	var durationResult, submissionsResult hexutil.Bytes
	var header rpcBlockHeader
	batch := []rpc.BatchElem{
		{Method: "eth_call", Args: []interface{}{ethCallMsg(a.address, durationCall), blockTag}, Result: &durationResult},
		{Method: "eth_call", Args: []interface{}{ethCallMsg(a.address, submissionsCall), blockTag}, Result: &submissionsResult},
		{Method: "eth_getBlockByNumber", Args: []interface{}{blockTag, false}, Result: &header},
	}
	if err := a.client.Client().BatchCallContext(ctx, batch); err != nil {
		return domain.BlockStorage{}, fmt.Errorf("chainadapter: batch read at %d: %w", n, err)
	}
	for _, elem := range batch {
		if elem.Error != nil {
			return domain.BlockStorage{}, fmt.Errorf("chainadapter: batch read at %d (%s): %w", n, elem.Method, elem.Error)
		}
	}

	durationOut, err := a.parsedABI.Unpack("durationCheck", durationResult)
	if err != nil {
		return domain.BlockStorage{}, fmt.Errorf("chainadapter: unpack durationCheck at %d: %w", n, err)
	}
	subsOut, err := a.parsedABI.Unpack("submissions", submissionsResult)
	if err != nil {
		return domain.BlockStorage{}, fmt.Errorf("chainadapter: unpack submissions at %d: %w", n, err)
	}

	return domain.BlockStorage{
		Duration:            domain.Duration(durationOut[0].(uint8)),
		LastStartBlock:      subsOut[0].(uint64),
		LastUpdateBlock:     subsOut[1].(uint64),
		LastSubmitTimestamp: subsOut[2].(uint64),
		BlockTimestamp:      uint64(header.Timestamp),
		BlockNumber:         n,
		ProfitRoot:          common.Hash(subsOut[3].([32]byte)),
	}, nil
}

// GetFeeManagerEvents returns Deposit/Withdraw events in [from,to]
// inclusive.
func (a *EthAdapter) GetFeeManagerEvents(ctx context.Context, from, to uint64) ([]domain.Event, error) {
	depositID := a.parsedABI.Events["ETHDeposit"].ID
	withdrawID := a.parsedABI.Events["Withdraw"].ID

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{a.address},
		Topics:    [][]common.Hash{{depositID, withdrawID}},
	}
	logs, err := a.client.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("chainadapter: filter logs [%d,%d]: %w", from, to, err)
	}

	var out []domain.Event
	for _, lg := range logs {
		ev, err := a.decodeEvent(lg)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

func (a *EthAdapter) decodeEvent(lg types.Log) (domain.Event, error) {
	if len(lg.Topics) == 0 {
		return domain.Event{}, fmt.Errorf("chainadapter: log with no topics at block %d", lg.BlockNumber)
	}
	switch lg.Topics[0] {
	case a.parsedABI.Events["ETHDeposit"].ID:
		vals, err := a.parsedABI.Events["ETHDeposit"].Inputs.Unpack(lg.Data)
		if err != nil {
			return domain.Event{}, fmt.Errorf("chainadapter: unpack ETHDeposit: %w", err)
		}
		amount, _ := uint256.FromBig(vals[1].(*big.Int))
		return domain.Event{
			Kind:        domain.EventDeposit,
			BlockNumber: lg.BlockNumber,
			User:        vals[0].(common.Address),
			ChainID:     0, // ETHDeposit carries no chain id; native-asset deposits are recorded under chain id 0
			Token:       common.Address{},
			Amount:      amount,
		}, nil
	case a.parsedABI.Events["Withdraw"].ID:
		vals, err := a.parsedABI.Events["Withdraw"].Inputs.Unpack(lg.Data)
		if err != nil {
			return domain.Event{}, fmt.Errorf("chainadapter: unpack Withdraw: %w", err)
		}
		amount, _ := uint256.FromBig(vals[3].(*big.Int))
		return domain.Event{
			Kind:        domain.EventWithdraw,
			BlockNumber: lg.BlockNumber,
			User:        vals[0].(common.Address),
			ChainID:     vals[1].(uint64),
			Token:       vals[2].(common.Address),
			Amount:      amount,
		}, nil
	default:
		return domain.Event{}, fmt.Errorf("chainadapter: unrecognized log topic %s", lg.Topics[0])
	}
}

// GetERC20DepositEvents is the structurally-reserved ERC-20 deposit
// recognition path (spec §4.3: "ERC-20 deposits are recognised via a
// separate transfer-log path ... must be structurally reserved"; spec §9
// open question (a)). It mirrors the original's
// get_erc20_transfer_events_by_tokens_id: for each allow-listed token,
// scan that token's own Transfer(address,address,uint256) logs at block n
// for transfers whose `to` is the fee-manager contract, turning each into
// a synthetic EventERC20Deposit credited to `from` on mainnetChainID.
// GetFeeManagerEvents/GetBlockInfos never call this: nothing in the
// pipeline decides the token allow-list the original gates the call
// behind, so it stays reachable only from tests until that decision is
// made.
func (a *EthAdapter) GetERC20DepositEvents(ctx context.Context, tokens []common.Address, mainnetChainID, n uint64) ([]domain.Event, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	blockNum := new(big.Int).SetUint64(n)
	toTopic := common.BytesToHash(a.address.Bytes())

	var out []domain.Event
	for _, token := range tokens {
		query := ethereum.FilterQuery{
			FromBlock: blockNum,
			ToBlock:   blockNum,
			Addresses: []common.Address{token},
			Topics:    [][]common.Hash{{transferEventSignature}, nil, {toTopic}},
		}
		logs, err := a.client.FilterLogs(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("chainadapter: erc20 transfer logs for %s at %d: %w", token, n, err)
		}
		for _, lg := range logs {
			if len(lg.Topics) != 3 {
				continue
			}
			amount, overflow := uint256.FromBig(new(big.Int).SetBytes(lg.Data))
			if overflow {
				return nil, fmt.Errorf("chainadapter: erc20 transfer amount overflow for %s at block %d", token, lg.BlockNumber)
			}
			out = append(out, domain.Event{
				Kind:        domain.EventERC20Deposit,
				BlockNumber: lg.BlockNumber,
				User:        common.BytesToAddress(lg.Topics[1].Bytes()),
				ChainID:     mainnetChainID,
				Token:       token,
				Amount:      amount,
			})
		}
	}
	return out, nil
}

// GetBlockInfos fans GetBlockStorage and GetFeeManagerEvents out across
// [from,to], bucketing events per block. If any block read fails, the
// whole window is discarded so the caller retries it entirely (spec
// §4.3).
func (a *EthAdapter) GetBlockInfos(ctx context.Context, from, to uint64) ([]domain.BlockInfo, error) {
	events, err := a.GetFeeManagerEvents(ctx, from, to)
	if err != nil {
		return nil, nil // caller retries the whole window
	}
	byBlock := make(map[uint64][]domain.Event, len(events))
	for _, ev := range events {
		byBlock[ev.BlockNumber] = append(byBlock[ev.BlockNumber], ev)
	}

	out := make([]domain.BlockInfo, 0, to-from+1)
	for n := from; n <= to; n++ {
		storage, err := a.GetBlockStorage(ctx, n)
		if err != nil {
			return nil, nil
		}
		out = append(out, domain.BlockInfo{Storage: storage, Events: byBlock[n]})
	}
	return out, nil
}

// GetDealerProfitPercent reads the dealer's fee ratio (parts-per-million)
// as of block.
func (a *EthAdapter) GetDealerProfitPercent(ctx context.Context, dealer common.Address, block uint64, token common.Address) (uint64, error) {
	opts := &bind.CallOpts{Context: ctx, BlockNumber: new(big.Int).SetUint64(block)}
	var out []interface{}
	if err := a.contract.Call(opts, &out, "getDealerInfo", dealer); err != nil {
		return 0, fmt.Errorf("chainadapter: getDealerInfo at %d: %w", block, err)
	}
	return out[0].(uint64), nil
}

// SubmitRoot calls the fee-manager's submit function with the newly
// computed roots.
func (a *EthAdapter) SubmitRoot(ctx context.Context, start, end uint64, profitRoot, blocksRoot common.Hash) (SubmitResult, error) {
	if a.signer == nil {
		return SubmitResult{}, &SubmitRootFailedError{Reason: "no signer configured"}
	}
	opts := *a.signer
	opts.Context = ctx
	tx, err := a.contract.Transact(&opts, "submit", start, end, [32]byte(profitRoot), [32]byte(blocksRoot))
	if err != nil {
		return SubmitResult{}, &SubmitRootFailedError{Reason: err.Error()}
	}

	receipt, err := bind.WaitMined(ctx, a.client, tx)
	if err != nil {
		return SubmitResult{}, &SubmitRootFailedError{Reason: err.Error()}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		included := receipt.BlockNumber.Uint64()
		return SubmitResult{}, &SubmitRootFailedError{Reason: "transaction reverted", IncludedBlock: &included}
	}
	included := receipt.BlockNumber.Uint64()
	return SubmitResult{TxHash: tx.Hash(), IncludedBlock: &included}, nil
}

// DealerFeeRatioToPPM converts a fee-ratio as stored on-chain (already
// parts-per-million per spec) through, kept as a named conversion point
// in case the on-chain representation changes denominators.
func DealerFeeRatioToPPM(raw uint64) uint64 { return raw }
