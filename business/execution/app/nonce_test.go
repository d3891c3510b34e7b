package app

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fd1az/sandwich-bot/internal/apperror"
)

type fakeNonceSource struct {
	mu    sync.Mutex
	next  uint64
	calls int
	err   error
}

func (f *fakeNonceSource) PendingNonce(context.Context, string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.next, nil
}

func TestNonceManager_PairsAreConsecutive(t *testing.T) {
	m := NewNonceManager(&fakeNonceSource{next: 42})

	front, back, err := m.NextPair(context.Background(), "ethereum", "0xwallet")
	require.NoError(t, err)
	require.Equal(t, uint64(42), front)
	require.Equal(t, uint64(43), back)

	front2, back2, err := m.NextPair(context.Background(), "ethereum", "0xwallet")
	require.NoError(t, err)
	require.Equal(t, uint64(44), front2)
	require.Equal(t, uint64(45), back2)
}

func TestNonceManager_ConcurrentPairsAreDisjoint(t *testing.T) {
	m := NewNonceManager(&fakeNonceSource{})

	const n = 50
	results := make(chan uint64, 2*n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			front, back, err := m.NextPair(context.Background(), "ethereum", "0xwallet")
			require.NoError(t, err)
			results <- front
			results <- back
		}()
	}
	wg.Wait()
	close(results)

	var all []uint64
	for v := range results {
		all = append(all, v)
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })

	require.Len(t, all, 2*n)
	for i, v := range all {
		require.Equal(t, uint64(i), v, "nonces must cover a contiguous range without duplicates")
	}
}

func TestNonceManager_WalletsAreIndependent(t *testing.T) {
	m := NewNonceManager(&fakeNonceSource{next: 10})

	frontA, _, err := m.NextPair(context.Background(), "ethereum", "0xaaa")
	require.NoError(t, err)
	frontB, _, err := m.NextPair(context.Background(), "ethereum", "0xbbb")
	require.NoError(t, err)

	require.Equal(t, uint64(10), frontA)
	require.Equal(t, uint64(10), frontB)
}

func TestNonceManager_RefreshReprimesFromChain(t *testing.T) {
	src := &fakeNonceSource{next: 5}
	m := NewNonceManager(src)

	_, _, err := m.NextPair(context.Background(), "ethereum", "0xwallet")
	require.NoError(t, err)
	require.Equal(t, 1, src.calls)

	// A conflict occurred: the chain says 20 now.
	src.mu.Lock()
	src.next = 20
	src.mu.Unlock()
	m.Refresh("ethereum", "0xwallet")

	front, back, err := m.NextPair(context.Background(), "ethereum", "0xwallet")
	require.NoError(t, err)
	require.Equal(t, uint64(20), front)
	require.Equal(t, uint64(21), back)
	require.Equal(t, 2, src.calls)
}

func TestNonceManager_SourceErrorSurfaces(t *testing.T) {
	m := NewNonceManager(&fakeNonceSource{err: errors.New("rpc down")})

	_, _, err := m.NextPair(context.Background(), "ethereum", "0xwallet")
	require.Error(t, err)
	require.Equal(t, apperror.CodeChainRPCError, apperror.GetCode(err))
}
