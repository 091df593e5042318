package boxcontroller

import (
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetNextIDConcurrentUniqueness(t *testing.T) {
	const (
		workers   = 8
		perWorker = 5000
		initial   = 42
	)

	bc := New(2)
	bc.SetMaxID(initial)

	results := make([][]uint64, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			ids := make([]uint64, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				ids = append(ids, bc.GetNextID())
			}
			results[w] = ids
		}(w)
	}
	wg.Wait()

	all := make([]uint64, 0, workers*perWorker)
	for _, ids := range results {
		all = append(all, ids...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })

	require.Len(t, all, workers*perWorker)
	for i, id := range all {
		require.Equal(t, uint64(initial+i), id, "ids must cover the range without gaps or duplicates")
	}
	assert.Equal(t, uint64(initial+workers*perWorker), bc.MaxID())
}

func TestClaimIDRangeThenNext(t *testing.T) {
	bc := New(3)
	bc.GetNextID()

	first := bc.ClaimIDRange(8)
	assert.Equal(t, uint64(1), first)
	assert.Equal(t, first+8, bc.GetNextID())

	first = bc.ClaimIDRange(0)
	assert.Equal(t, uint64(10), first)
	assert.Equal(t, uint64(10), bc.GetNextID())
}

func TestClaimIDRangeConcurrentNoOverlap(t *testing.T) {
	const (
		workers   = 8
		perWorker = 500
	)

	bc := New(3)
	type claim struct{ first, n uint64 }
	claims := make(chan claim, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				n := uint64(1 + (w+i)%9)
				claims <- claim{first: bc.ClaimIDRange(n), n: n}
			}
		}(w)
	}
	wg.Wait()
	close(claims)

	var all []claim
	var total uint64
	for c := range claims {
		all = append(all, c)
		total += c.n
	}
	sort.Slice(all, func(i, j int) bool { return all[i].first < all[j].first })

	next := uint64(0)
	for _, c := range all {
		require.Equal(t, next, c.first, "ranges must be contiguous and disjoint")
		next = c.first + c.n
	}
	assert.Equal(t, total, bc.MaxID())
}
