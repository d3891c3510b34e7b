// Package di contains dependency injection tokens for the execution context.
package di

import (
	"github.com/fd1az/sandwich-bot/business/execution/app"
	"github.com/fd1az/sandwich-bot/internal/di"
)

// Public service tokens - exposed to other modules
var (
	// Orchestrators holds one executor per chain name.
	Orchestrators = di.NewToken[map[string]*app.Orchestrator]("execution.Orchestrators")
)

// GetOrchestrators resolves the per-chain execution orchestrators.
func GetOrchestrators(c di.ServiceRegistry) map[string]*app.Orchestrator {
	return di.GetToken(c, Orchestrators)
}
