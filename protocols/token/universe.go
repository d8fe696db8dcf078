package token

import (
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
)

// Universe accumulates every token address seen during a sync run.
//
// It is an insertion-ordered set: duplicates are ignored and Addresses returns
// tokens in first-seen order. There is no removal. Universe is not safe for
// concurrent use; the run that owns it adds tokens from a single goroutine.
type Universe struct {
	seen  mapset.Set[common.Address]
	order []common.Address
}

// NewUniverse creates an empty Universe.
func NewUniverse() *Universe {
	return &Universe{
		seen: mapset.NewThreadUnsafeSet[common.Address](),
	}
}

// Add inserts addresses that have not been seen before.
func (u *Universe) Add(addrs ...common.Address) {
	for _, a := range addrs {
		if u.seen.Add(a) {
			u.order = append(u.order, a)
		}
	}
}

// Len returns the number of distinct tokens.
func (u *Universe) Len() int {
	return len(u.order)
}

// Addresses returns a copy of all tokens in first-seen order.
func (u *Universe) Addresses() []common.Address {
	allCopy := make([]common.Address, len(u.order))
	copy(allCopy, u.order)
	return allCopy
}
