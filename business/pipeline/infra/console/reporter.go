// Package console reports pipeline events through the structured logger.
package console

import (
	"context"

	detection "github.com/fd1az/sandwich-bot/business/detection/domain"
	execution "github.com/fd1az/sandwich-bot/business/execution/domain"
	optimization "github.com/fd1az/sandwich-bot/business/optimization/domain"
	pipeline "github.com/fd1az/sandwich-bot/business/pipeline/domain"
	"github.com/fd1az/sandwich-bot/internal/logger"
)

// Reporter logs every pipeline event. Log writes are asynchronous enough for
// hot-path use; nothing here blocks on IO.
type Reporter struct {
	logger logger.LoggerInterface
}

// NewReporter creates a console reporter.
func NewReporter(log logger.LoggerInterface) *Reporter {
	return &Reporter{logger: log}
}

func (r *Reporter) OpportunityDetected(opp *detection.SandwichOpportunity) {
	r.logger.Info(context.Background(), "opportunity detected",
		"opportunity_id", opp.ID,
		"chain", opp.Chain.Name,
		"victim_tx", opp.VictimTxHash,
		"price_impact_bps", opp.PriceImpact,
		"confidence", opp.Confidence.String(),
	)
}

func (r *Reporter) ProfitEstimated(opp *detection.SandwichOpportunity, est *optimization.ProfitEstimate) {
	r.logger.Info(context.Background(), "profit estimated",
		"opportunity_id", opp.ID,
		"chain", opp.Chain.Name,
		"front_run", est.FrontRunAmount.String(),
		"net_profit_usd", est.NetProfitUSD.StringFixed(2),
		"risk_score", est.RiskScore.StringFixed(3),
	)
}

func (r *Reporter) BundleSubmitted(bundle *execution.Bundle) {
	r.logger.Info(context.Background(), "bundle submitted",
		"bundle_id", bundle.ID,
		"chain", bundle.Chain.Name,
		"opportunity_id", bundle.OpportunityID,
		"target_block", bundle.TargetBlock,
	)
}

func (r *Reporter) BundleIncluded(bundle *execution.Bundle) {
	r.logger.Info(context.Background(), "bundle included",
		"bundle_id", bundle.ID,
		"chain", bundle.Chain.Name,
		"opportunity_id", bundle.OpportunityID,
	)
}

func (r *Reporter) BundleFailed(bundle *execution.Bundle, reason string) {
	r.logger.Warn(context.Background(), "bundle failed",
		"bundle_id", bundle.ID,
		"chain", bundle.Chain.Name,
		"opportunity_id", bundle.OpportunityID,
		"reason", reason,
	)
}

func (r *Reporter) StatsUpdated(snapshot pipeline.StatsSnapshot) {
	r.logger.Info(context.Background(), "pipeline stats",
		"seen", snapshot.Seen,
		"undecoded", snapshot.Undecoded,
		"rejected_detection", snapshot.RejectedDetection,
		"rejected_optimizer", snapshot.RejectedOptimizer,
		"rejected_execution", snapshot.RejectedExecution,
		"submitted", snapshot.Submitted,
		"included", snapshot.Included,
		"expired", snapshot.Expired,
		"failed", snapshot.Failed,
	)
}
