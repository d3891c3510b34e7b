// Package di contains dependency injection tokens for the detection context.
package di

import (
	"github.com/fd1az/sandwich-bot/business/detection/app"
	"github.com/fd1az/sandwich-bot/business/detection/domain"
	"github.com/fd1az/sandwich-bot/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Detector = di.NewToken[*app.Detector]("detection.Detector")
	// PoolProvider is public: the optimizer resolves token metadata and the
	// executor re-reads reserves through it.
	PoolProvider = di.NewToken[app.PoolProvider]("detection.PoolProvider")
)

// Private dependency tokens - internal to the detection module
var (
	MempoolSources = di.NewToken[[]app.MempoolSource]("detection:mempoolSources")
	SwapDecoders   = di.NewToken[map[domain.ChainFamily]app.SwapDecoder]("detection:swapDecoders")
)

// GetDetector resolves the opportunity detector.
func GetDetector(c di.ServiceRegistry) *app.Detector {
	return di.GetToken(c, Detector)
}

// GetPoolProvider resolves the multi-chain pool provider.
func GetPoolProvider(c di.ServiceRegistry) app.PoolProvider {
	return di.GetToken(c, PoolProvider)
}
