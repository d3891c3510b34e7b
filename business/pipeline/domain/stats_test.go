package domain

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExecutionStats_Accumulates(t *testing.T) {
	var stats ExecutionStats

	stats.IncSeen()
	stats.IncSeen()
	stats.IncUndecoded()
	stats.IncRejectedDetection()
	stats.IncRejectedOptimizer()
	stats.IncRejectedExecution()
	stats.IncSubmitted()
	stats.IncIncluded()
	stats.IncExpired()
	stats.IncFailed()

	snap := stats.Snapshot()
	require.Equal(t, uint64(2), snap.Seen)
	require.Equal(t, uint64(1), snap.Undecoded)
	require.Equal(t, uint64(1), snap.RejectedDetection)
	require.Equal(t, uint64(1), snap.RejectedOptimizer)
	require.Equal(t, uint64(1), snap.RejectedExecution)
	require.Equal(t, uint64(1), snap.Submitted)
	require.Equal(t, uint64(1), snap.Included)
	require.Equal(t, uint64(1), snap.Expired)
	require.Equal(t, uint64(1), snap.Failed)
}

func TestExecutionStats_ConcurrentIncrements(t *testing.T) {
	var stats ExecutionStats

	const workers = 8
	const perWorker = 1000

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				stats.IncSeen()
				stats.IncSubmitted()
			}
		}()
	}
	wg.Wait()

	snap := stats.Snapshot()
	require.Equal(t, uint64(workers*perWorker), snap.Seen)
	require.Equal(t, uint64(workers*perWorker), snap.Submitted)
}

func TestExecutionStats_SnapshotDoesNotMutate(t *testing.T) {
	var stats ExecutionStats
	stats.IncSeen()

	first := stats.Snapshot()
	second := stats.Snapshot()
	require.Equal(t, first, second)
}
