// Package index implements the auxiliary KV-backed indexes of spec §4.2:
// block-info, block-tx-count, per-(dealer,block,token) maker profit
// percent, the per-user token set, and raw profit-statistics counters.
// All five live as separate buckets of one kvstore.Store.
package index

import (
	"bytes"
	"encoding/binary"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/Orbiter-Finance/OB-Submitter/internal/domain"
	"github.com/Orbiter-Finance/OB-Submitter/internal/kvstore"
)

const (
	bucketBlockInfo    = "block-info"
	bucketBlockTxCount = "block-tx-count"
	bucketMakerPercent = "maker-profit-percent"
	bucketUserTokens   = "user-tokens"
	bucketProfitStats  = "profit-statistics"
)

// Index is the shared handle for all five auxiliary indexes.
type Index struct {
	store kvstore.Store
}

// New wraps store with the auxiliary index operations.
func New(store kvstore.Store) *Index {
	return &Index{store: store}
}

func u64Key(n uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return b
}

// --- block-info ---

// PutBlockInfo records the BlockInfo observed at block n.
func (x *Index) PutBlockInfo(n uint64, bi domain.BlockInfo) error {
	data, err := json.Marshal(bi)
	if err != nil {
		return err
	}
	return x.store.Update(func(tx kvstore.WriteTx) error {
		return tx.Put(bucketBlockInfo, u64Key(n), data)
	})
}

// GetBlockInfo returns the BlockInfo recorded at block n, if any.
func (x *Index) GetBlockInfo(n uint64) (bi domain.BlockInfo, ok bool, err error) {
	err = x.store.View(func(tx kvstore.ReadTx) error {
		raw, gerr := tx.Get(bucketBlockInfo, u64Key(n))
		if gerr == kvstore.ErrNotFound {
			return nil
		}
		if gerr != nil {
			return gerr
		}
		ok = true
		return json.Unmarshal(raw, &bi)
	})
	return bi, ok, err
}

// HasBlockInfo reports whether block n has been ingested.
func (x *Index) HasBlockInfo(n uint64) (bool, error) {
	_, ok, err := x.GetBlockInfo(n)
	return ok, err
}

// BlockInfosFrom returns up to max BlockInfo entries starting at or after
// from, in ascending block-number order. It does not verify that the
// returned block numbers are contiguous; a gap in the index is returned
// as is.
func (x *Index) BlockInfosFrom(from uint64, max int) ([]domain.BlockInfo, error) {
	var out []domain.BlockInfo
	err := x.store.View(func(tx kvstore.ReadTx) error {
		return tx.Iterate(bucketBlockInfo, nil, u64Key(from), func(k, v []byte) bool {
			if len(out) >= max {
				return false
			}
			var bi domain.BlockInfo
			if uerr := json.Unmarshal(v, &bi); uerr != nil {
				return false
			}
			out = append(out, bi)
			return true
		})
	})
	return out, err
}

// --- block-tx-count ---

// SetBlockTxCount records the number of attributed txs for block n,
// doubling as the crawler's completion flag for that block.
func (x *Index) SetBlockTxCount(n uint64, count uint64) error {
	return x.store.Update(func(tx kvstore.WriteTx) error {
		return tx.Put(bucketBlockTxCount, u64Key(n), u64Key(count))
	})
}

// BlockTxCount returns the recorded tx count for block n, and whether it
// has been set at all (absence means the crawler has not finished n).
func (x *Index) BlockTxCount(n uint64) (count uint64, ok bool, err error) {
	err = x.store.View(func(tx kvstore.ReadTx) error {
		raw, gerr := tx.Get(bucketBlockTxCount, u64Key(n))
		if gerr == kvstore.ErrNotFound {
			return nil
		}
		if gerr != nil {
			return gerr
		}
		ok = true
		count = binary.BigEndian.Uint64(raw)
		return nil
	})
	return count, ok, err
}

// --- maker-profit-percent ---

func makerKey(dealer common.Address, block uint64, token common.Address) []byte {
	k := make([]byte, 0, 20+8+20)
	k = append(k, dealer[:]...)
	k = append(k, u64Key(block)...)
	k = append(k, token[:]...)
	return k
}

// SetMakerProfitPercent caches the dealer's fee ratio (parts-per-million)
// observed on-chain at block.
func (x *Index) SetMakerProfitPercent(dealer common.Address, block uint64, token common.Address, ppm uint64) error {
	return x.store.Update(func(tx kvstore.WriteTx) error {
		return tx.Put(bucketMakerPercent, makerKey(dealer, block, token), u64Key(ppm))
	})
}

// MakerProfitPercent returns a cached dealer fee ratio, if any.
func (x *Index) MakerProfitPercent(dealer common.Address, block uint64, token common.Address) (ppm uint64, ok bool, err error) {
	err = x.store.View(func(tx kvstore.ReadTx) error {
		raw, gerr := tx.Get(bucketMakerPercent, makerKey(dealer, block, token))
		if gerr == kvstore.ErrNotFound {
			return nil
		}
		if gerr != nil {
			return gerr
		}
		ok = true
		ppm = binary.BigEndian.Uint64(raw)
		return nil
	})
	return ppm, ok, err
}

// --- user-tokens ---

// TokenRef identifies a token on a specific chain.
type TokenRef struct {
	ChainID uint64         `json:"chainId"`
	Token   common.Address `json:"token"`
}

// AddUserToken inserts (chainID, token) into user's ordered-unique token
// set, a no-op if already present.
func (x *Index) AddUserToken(user common.Address, chainID uint64, token common.Address) error {
	return x.store.Update(func(tx kvstore.WriteTx) error {
		refs, err := readUserTokens(tx, user)
		if err != nil {
			return err
		}
		for _, r := range refs {
			if r.ChainID == chainID && r.Token == token {
				return nil
			}
		}
		refs = append(refs, TokenRef{ChainID: chainID, Token: token})
		sortTokenRefs(refs)
		data, err := json.Marshal(refs)
		if err != nil {
			return err
		}
		return tx.Put(bucketUserTokens, user[:], data)
	})
}

// UserTokens returns user's recorded (chainID, token) set in ascending
// order.
func (x *Index) UserTokens(user common.Address) ([]TokenRef, error) {
	var refs []TokenRef
	err := x.store.View(func(tx kvstore.ReadTx) error {
		r, err := readUserTokens(tx, user)
		refs = r
		return err
	})
	return refs, err
}

func readUserTokens(tx kvstore.ReadTx, user common.Address) ([]TokenRef, error) {
	raw, err := tx.Get(bucketUserTokens, user[:])
	if err == kvstore.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var refs []TokenRef
	if err := json.Unmarshal(raw, &refs); err != nil {
		return nil, err
	}
	return refs, nil
}

func sortTokenRefs(refs []TokenRef) {
	for i := 1; i < len(refs); i++ {
		for j := i; j > 0 && lessTokenRef(refs[j], refs[j-1]); j-- {
			refs[j], refs[j-1] = refs[j-1], refs[j]
		}
	}
}

func lessTokenRef(a, b TokenRef) bool {
	if a.ChainID != b.ChainID {
		return a.ChainID < b.ChainID
	}
	return bytes.Compare(a.Token[:], b.Token[:]) < 0
}

// --- profit-statistics ---

func statsKey(user common.Address, chainID uint64, token common.Address) []byte {
	k := make([]byte, 0, 20+8+20)
	k = append(k, user[:]...)
	k = append(k, u64Key(chainID)...)
	k = append(k, token[:]...)
	return k
}

type statsJSON struct {
	TotalProfit    *uint256.Int `json:"totalProfit"`
	TotalWithdrawn *uint256.Int `json:"totalWithdrawn"`
	TotalDeposit   *uint256.Int `json:"totalDeposit"`
}

// ProfitStatisticsFor returns the recorded counters for (user, chainID,
// token), zero-valued if never touched.
func (x *Index) ProfitStatisticsFor(user common.Address, chainID uint64, token common.Address) (domain.ProfitStatistics, error) {
	var out domain.ProfitStatistics
	err := x.store.View(func(tx kvstore.ReadTx) error {
		s, err := readStats(tx, user, chainID, token)
		out = s
		return err
	})
	return out, err
}

func readStats(tx kvstore.ReadTx, user common.Address, chainID uint64, token common.Address) (domain.ProfitStatistics, error) {
	raw, err := tx.Get(bucketProfitStats, statsKey(user, chainID, token))
	if err == kvstore.ErrNotFound {
		return domain.ProfitStatistics{
			TotalProfit:    new(uint256.Int),
			TotalWithdrawn: new(uint256.Int),
			TotalDeposit:   new(uint256.Int),
		}, nil
	}
	if err != nil {
		return domain.ProfitStatistics{}, err
	}
	var s statsJSON
	if err := json.Unmarshal(raw, &s); err != nil {
		return domain.ProfitStatistics{}, err
	}
	return domain.ProfitStatistics{TotalProfit: s.TotalProfit, TotalWithdrawn: s.TotalWithdrawn, TotalDeposit: s.TotalDeposit}, nil
}

func writeStats(tx kvstore.WriteTx, user common.Address, chainID uint64, token common.Address, s domain.ProfitStatistics) error {
	data, err := json.Marshal(statsJSON{TotalProfit: s.TotalProfit, TotalWithdrawn: s.TotalWithdrawn, TotalDeposit: s.TotalDeposit})
	if err != nil {
		return err
	}
	return tx.Put(bucketProfitStats, statsKey(user, chainID, token), data)
}

// AddTotalDeposit accumulates amount into the raw on-chain deposit
// counter, independent of the authoritative profit state.
func (x *Index) AddTotalDeposit(user common.Address, chainID uint64, token common.Address, amount *uint256.Int) error {
	return x.mutateStats(user, chainID, token, func(s *domain.ProfitStatistics) {
		s.TotalDeposit = new(uint256.Int).Add(s.TotalDeposit, amount)
	})
}

// AddTotalWithdrawn accumulates amount into the raw on-chain withdraw
// counter.
func (x *Index) AddTotalWithdrawn(user common.Address, chainID uint64, token common.Address, amount *uint256.Int) error {
	return x.mutateStats(user, chainID, token, func(s *domain.ProfitStatistics) {
		s.TotalWithdrawn = new(uint256.Int).Add(s.TotalWithdrawn, amount)
	})
}

// AddTotalProfit accumulates amount into the attributed-profit counter.
func (x *Index) AddTotalProfit(user common.Address, chainID uint64, token common.Address, amount *uint256.Int) error {
	return x.mutateStats(user, chainID, token, func(s *domain.ProfitStatistics) {
		s.TotalProfit = new(uint256.Int).Add(s.TotalProfit, amount)
	})
}

func (x *Index) mutateStats(user common.Address, chainID uint64, token common.Address, fn func(*domain.ProfitStatistics)) error {
	return x.store.Update(func(tx kvstore.WriteTx) error {
		s, err := readStats(tx, user, chainID, token)
		if err != nil {
			return err
		}
		fn(&s)
		return writeStats(tx, user, chainID, token, s)
	})
}
