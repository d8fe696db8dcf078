package poolregistry

import (
	"github.com/ethereum/go-ethereum/common"
)

// IndexablePoolSnapshot is a fetched pool snapshot with one entry per pool
// address, in the order the index reported the pools.
type IndexablePoolSnapshot struct {
	byAddress map[common.Address]struct{}
	all       []PoolView
}

// NewIndexablePoolSnapshot indexes pools by address. When the same address appears
// more than once, the first occurrence wins and later ones are dropped.
func NewIndexablePoolSnapshot(pools []PoolView) *IndexablePoolSnapshot {
	byAddress := make(map[common.Address]struct{}, len(pools))
	all := make([]PoolView, 0, len(pools))

	for _, p := range pools {
		if _, seen := byAddress[p.Address]; seen {
			continue
		}
		byAddress[p.Address] = struct{}{}
		all = append(all, p)
	}

	return &IndexablePoolSnapshot{
		byAddress: byAddress,
		all:       all,
	}
}

// Len returns the number of distinct pools.
func (s *IndexablePoolSnapshot) Len() int {
	return len(s.all)
}

// All returns a copy of the pools in snapshot order.
func (s *IndexablePoolSnapshot) All() []PoolView {
	allCopy := make([]PoolView, len(s.all))
	copy(allCopy, s.all)
	return allCopy
}
