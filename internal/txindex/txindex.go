// Package txindex implements the ordered tx index of spec §4.2/§9: entries
// sorted by (target_time, target_chain, target_id), emulated (per the
// design note) by composing that triple into a byte-ordered key prefix
// rather than relying on a store-level custom comparator. bbolt's cursor
// already iterates keys in plain lexicographic order, so this composition
// is sufficient on its own.
package txindex

import (
	"bytes"
	"encoding/binary"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/Orbiter-Finance/OB-Submitter/internal/domain"
	"github.com/Orbiter-Finance/OB-Submitter/internal/kvstore"
)

const bucket = "tx-index"

const keyLen = 8 + 8 + 32

// Index is the ordered tx index.
type Index struct {
	store kvstore.Store
}

// New wraps store with the tx index operations.
func New(store kvstore.Store) *Index {
	return &Index{store: store}
}

// Record is one attributed cross-chain tx as stored in the index.
type Record struct {
	TargetTime  uint64
	TargetChain uint64
	TargetID    common.Hash
	Profit      domain.CrossTxProfit
}

func composeKey(targetTime, targetChain uint64, targetID common.Hash) []byte {
	k := make([]byte, 0, keyLen)
	var t, c [8]byte
	binary.BigEndian.PutUint64(t[:], targetTime)
	binary.BigEndian.PutUint64(c[:], targetChain)
	k = append(k, t[:]...)
	k = append(k, c[:]...)
	k = append(k, targetID[:]...)
	return k
}

func decomposeKey(k []byte) (targetTime, targetChain uint64, targetID common.Hash) {
	targetTime = binary.BigEndian.Uint64(k[0:8])
	targetChain = binary.BigEndian.Uint64(k[8:16])
	copy(targetID[:], k[16:48])
	return
}

type profitJSON struct {
	Maker   common.Address `json:"maker"`
	Dealer  common.Address `json:"dealer"`
	Profit  *uint256.Int   `json:"profit"`
	ChainID uint64         `json:"chainId"`
	Token   common.Address `json:"token"`
}

// Put writes one attributed tx into the index, keyed by its (target_time,
// target_chain, target_id) triple. A later Put with the same triple
// overwrites the earlier one.
func (x *Index) Put(targetTime, targetChain uint64, targetID common.Hash, profit domain.CrossTxProfit) error {
	data, err := json.Marshal(profitJSON{
		Maker: profit.Maker, Dealer: profit.Dealer, Profit: profit.Profit,
		ChainID: profit.ChainID, Token: profit.Token,
	})
	if err != nil {
		return err
	}
	return x.store.Update(func(tx kvstore.WriteTx) error {
		return tx.Put(bucket, composeKey(targetTime, targetChain, targetID), data)
	})
}

// RangeByTime returns every record with target_time in
// [lowerInclusive, upperExclusive), in ascending (target_time,
// target_chain, target_id) order (spec §4.7 step 3c).
func (x *Index) RangeByTime(lowerInclusive, upperExclusive uint64) ([]Record, error) {
	var upperKey [8]byte
	binary.BigEndian.PutUint64(upperKey[:], upperExclusive)

	var out []Record
	err := x.store.View(func(tx kvstore.ReadTx) error {
		start := composeKey(lowerInclusive, 0, common.Hash{})
		return tx.Iterate(bucket, nil, start, func(k, v []byte) bool {
			if bytes.Compare(k[0:8], upperKey[:]) >= 0 {
				return false
			}
			rec, ok := decodeRecord(k, v)
			if !ok {
				return true
			}
			out = append(out, rec)
			return true
		})
	})
	return out, err
}

// FindByTargetID scans the whole index for a record whose target_id
// matches id (spec §C.3: no secondary index exists for this lookup).
func (x *Index) FindByTargetID(id common.Hash) (rec Record, found bool, err error) {
	err = x.store.View(func(tx kvstore.ReadTx) error {
		return tx.Iterate(bucket, nil, nil, func(k, v []byte) bool {
			_, _, targetID := decomposeKey(k)
			if targetID != id {
				return true
			}
			r, ok := decodeRecord(k, v)
			if ok {
				rec, found = r, true
			}
			return false
		})
	})
	return rec, found, err
}

func decodeRecord(k, v []byte) (Record, bool) {
	if len(k) != keyLen {
		return Record{}, false
	}
	var p profitJSON
	if err := json.Unmarshal(v, &p); err != nil {
		return Record{}, false
	}
	targetTime, targetChain, targetID := decomposeKey(k)
	return Record{
		TargetTime:  targetTime,
		TargetChain: targetChain,
		TargetID:    targetID,
		Profit: domain.CrossTxProfit{
			Maker: p.Maker, Dealer: p.Dealer, Profit: p.Profit,
			ChainID: p.ChainID, Token: p.Token,
		},
	}, true
}
