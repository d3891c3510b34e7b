// Package domain contains shared pipeline types: aggregate counters and the
// observer contract the stages report through.
package domain

import "sync/atomic"

// ExecutionStats accumulates pipeline counters monotonically. Reset only on
// process restart.
type ExecutionStats struct {
	seen               atomic.Uint64
	undecoded          atomic.Uint64
	rejectedDetection  atomic.Uint64
	rejectedOptimizer  atomic.Uint64
	rejectedExecution  atomic.Uint64
	submitted          atomic.Uint64
	included           atomic.Uint64
	expired            atomic.Uint64
	failed             atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	Seen              uint64 `json:"seen"`
	Undecoded         uint64 `json:"undecoded"`
	RejectedDetection uint64 `json:"rejected_detection"`
	RejectedOptimizer uint64 `json:"rejected_optimizer"`
	RejectedExecution uint64 `json:"rejected_execution"`
	Submitted         uint64 `json:"submitted"`
	Included          uint64 `json:"included"`
	Expired           uint64 `json:"expired"`
	Failed            uint64 `json:"failed"`
}

func (s *ExecutionStats) IncSeen()              { s.seen.Add(1) }
func (s *ExecutionStats) IncUndecoded()         { s.undecoded.Add(1) }
func (s *ExecutionStats) IncRejectedDetection() { s.rejectedDetection.Add(1) }
func (s *ExecutionStats) IncRejectedOptimizer() { s.rejectedOptimizer.Add(1) }
func (s *ExecutionStats) IncRejectedExecution() { s.rejectedExecution.Add(1) }
func (s *ExecutionStats) IncSubmitted()         { s.submitted.Add(1) }
func (s *ExecutionStats) IncIncluded()          { s.included.Add(1) }
func (s *ExecutionStats) IncExpired()           { s.expired.Add(1) }
func (s *ExecutionStats) IncFailed()            { s.failed.Add(1) }

// Snapshot returns a consistent-enough copy for reporting. Counters are read
// individually; exactness across fields is not required.
func (s *ExecutionStats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Seen:              s.seen.Load(),
		Undecoded:         s.undecoded.Load(),
		RejectedDetection: s.rejectedDetection.Load(),
		RejectedOptimizer: s.rejectedOptimizer.Load(),
		RejectedExecution: s.rejectedExecution.Load(),
		Submitted:         s.submitted.Load(),
		Included:          s.included.Load(),
		Expired:           s.expired.Load(),
		Failed:            s.failed.Load(),
	}
}
