// Package smt implements the authenticated key-value state engine (spec
// §4.1): a depth-256 sparse Merkle tree keyed by 32-byte leaf paths, with
// the zero-value/zero-hash convention that keeps an all-default subtree's
// hash at H256::ZERO regardless of depth. Only non-zero leaves are ever
// persisted; everything else is implied.
//
// The combine function folds in the subtree height so that a genuinely
// empty subtree collapses to the zero hash at every level (clearing the
// tree resets Root to the zero hash in one step), while any subtree that
// contains a real leaf hashes normally even when its sibling is empty.
package smt

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Orbiter-Finance/OB-Submitter/internal/kvstore"
)

// Depth is the number of bit levels below the root; leaf paths are
// therefore exactly 32 bytes (256 bits).
const Depth = 256

// Codec binds a concrete value type to the byte encoding stored at each
// leaf. A value for which IsZero returns true is never persisted: storing
// it is equivalent to deleting the leaf.
type Codec[V any] interface {
	Encode(v V) []byte
	Decode(data []byte) (V, error)
	IsZero(v V) bool
	Zero() V
}

// Engine is an authenticated KV store over one bucket of a kvstore.Store,
// parameterised by a Codec for its value type. It implements C1 of the
// settlement pipeline: both the profit-state tree and the blocks-state
// tree are Engine instances over different codecs and buckets.
type Engine[V any] struct {
	store  kvstore.Store
	bucket string
	codec  Codec[V]
}

// New returns an Engine storing values in the given store bucket.
func New[V any](store kvstore.Store, bucket string, codec Codec[V]) *Engine[V] {
	return &Engine[V]{store: store, bucket: bucket, codec: codec}
}

// Get returns the value at key, or the codec's zero value if the leaf is
// unset.
func (e *Engine[V]) Get(key common.Hash) (V, error) {
	var raw []byte
	err := e.store.View(func(tx kvstore.ReadTx) error {
		r, gerr := tx.Get(e.bucket, key[:])
		if gerr == kvstore.ErrNotFound {
			return nil
		}
		if gerr != nil {
			return gerr
		}
		raw = r
		return nil
	})
	if err != nil {
		return e.codec.Zero(), err
	}
	if raw == nil {
		return e.codec.Zero(), nil
	}
	return e.codec.Decode(raw)
}

// UpdateAll applies a batch of leaf writes atomically. A value for which
// IsZero is true deletes the leaf rather than storing it, preserving the
// zero-hash-equals-unset invariant.
func (e *Engine[V]) UpdateAll(batch map[common.Hash]V) error {
	return e.store.Update(func(tx kvstore.WriteTx) error {
		for k, v := range batch {
			if e.codec.IsZero(v) {
				if err := tx.Delete(e.bucket, k[:]); err != nil {
					return err
				}
				continue
			}
			if err := tx.Put(e.bucket, k[:], e.codec.Encode(v)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Clear removes every leaf, resetting Root to the zero hash.
func (e *Engine[V]) Clear() error {
	return e.store.Update(func(tx kvstore.WriteTx) error {
		return tx.DeletePrefix(e.bucket, nil)
	})
}

// leaf is a materialized non-zero leaf: its 32-byte path and the Keccak256
// hash of its encoded value.
type leaf struct {
	key  common.Hash
	hash common.Hash
}

func (e *Engine[V]) snapshotLeaves() ([]leaf, error) {
	var out []leaf
	err := e.store.View(func(tx kvstore.ReadTx) error {
		return tx.Iterate(e.bucket, nil, nil, func(k, v []byte) bool {
			var key common.Hash
			copy(key[:], k)
			out = append(out, leaf{key: key, hash: hashEncoded(v)})
			return true
		})
	})
	return out, err
}

// hashEncoded is the leaf hash of an already-encoded non-zero value. A
// stored leaf is, by construction, never the codec's zero value (UpdateAll
// deletes those), so this is safe to call on every persisted entry.
func hashEncoded(encoded []byte) common.Hash {
	return crypto.Keccak256Hash(encoded)
}

// Root returns the current tree root, the zero hash for an empty tree.
func (e *Engine[V]) Root() (common.Hash, error) {
	leaves, err := e.snapshotLeaves()
	if err != nil {
		return common.Hash{}, err
	}
	return fullRoot(leaves, 0), nil
}

func bitAt(key common.Hash, depth int) int {
	byteIdx := depth / 8
	bitIdx := 7 - (depth % 8)
	return int((key[byteIdx] >> uint(bitIdx)) & 1)
}

func partition(leaves []leaf, depth int) (left, right []leaf) {
	for _, l := range leaves {
		if bitAt(l.key, depth) == 0 {
			left = append(left, l)
		} else {
			right = append(right, l)
		}
	}
	return
}

func combine(depth int, left, right common.Hash) common.Hash {
	if left == (common.Hash{}) && right == (common.Hash{}) {
		return common.Hash{}
	}
	var buf [65]byte
	buf[0] = byte(depth)
	copy(buf[1:33], left[:])
	copy(buf[33:65], right[:])
	return crypto.Keccak256Hash(buf[:])
}

// fullRoot computes the subtree root for leaves known to lie entirely
// within this subtree, rooted at depth. An empty subtree short-circuits to
// the zero hash without further recursion.
func fullRoot(leaves []leaf, depth int) common.Hash {
	if len(leaves) == 0 {
		return common.Hash{}
	}
	if depth == Depth {
		return leaves[0].hash
	}
	left, right := partition(leaves, depth)
	return combine(depth, fullRoot(left, depth+1), fullRoot(right, depth+1))
}
