// Package di contains dependency injection tokens for the optimization context.
package di

import (
	"github.com/fd1az/sandwich-bot/business/optimization/app"
	"github.com/fd1az/sandwich-bot/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Optimizer = di.NewToken[*app.Optimizer]("optimization.Optimizer")
)

// GetOptimizer resolves the profit optimizer.
func GetOptimizer(c di.ServiceRegistry) *app.Optimizer {
	return di.GetToken(c, Optimizer)
}
