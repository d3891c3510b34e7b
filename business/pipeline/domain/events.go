package domain

import (
	detection "github.com/fd1az/sandwich-bot/business/detection/domain"
	execution "github.com/fd1az/sandwich-bot/business/execution/domain"
	optimization "github.com/fd1az/sandwich-bot/business/optimization/domain"
)

// Reporter receives pipeline lifecycle events. Implementations must not
// block: events fire from hot paths.
type Reporter interface {
	OpportunityDetected(opp *detection.SandwichOpportunity)
	ProfitEstimated(opp *detection.SandwichOpportunity, est *optimization.ProfitEstimate)
	BundleSubmitted(bundle *execution.Bundle)
	BundleIncluded(bundle *execution.Bundle)
	BundleFailed(bundle *execution.Bundle, reason string)
	StatsUpdated(snapshot StatsSnapshot)
}

// NopReporter discards every event.
type NopReporter struct{}

func (NopReporter) OpportunityDetected(*detection.SandwichOpportunity) {}
func (NopReporter) ProfitEstimated(*detection.SandwichOpportunity, *optimization.ProfitEstimate) {
}
func (NopReporter) BundleSubmitted(*execution.Bundle)      {}
func (NopReporter) BundleIncluded(*execution.Bundle)       {}
func (NopReporter) BundleFailed(*execution.Bundle, string) {}
func (NopReporter) StatsUpdated(StatsSnapshot)             {}
