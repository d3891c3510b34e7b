// Package di contains dependency injection tokens for the pipeline context.
package di

import (
	"github.com/fd1az/sandwich-bot/business/pipeline/app"
	"github.com/fd1az/sandwich-bot/business/pipeline/domain"
	"github.com/fd1az/sandwich-bot/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Pipeline = di.NewToken[*app.Pipeline]("pipeline.Pipeline")
	// Reporter is public: the executor emits bundle lifecycle events through it.
	Reporter = di.NewToken[domain.Reporter]("pipeline.Reporter")
)

// GetPipeline resolves the pipeline service.
func GetPipeline(c di.ServiceRegistry) *app.Pipeline {
	return di.GetToken(c, Pipeline)
}

// GetReporter resolves the event reporter.
func GetReporter(c di.ServiceRegistry) domain.Reporter {
	return di.GetToken(c, Reporter)
}
