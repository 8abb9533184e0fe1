//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"github.com/danghungithp/chungquyen-VN/pkg/config"
	"github.com/danghungithp/chungquyen-VN/pkg/server"
)

var coreSet = wire.NewSet(
	ProvideLogger,
	ProvideMetrics,
	ProvideMarketData,
	ProvideSnapshotStore,
	ProvideResultPublisher,
	ProvideVolatilityEstimator,
	ProvideEvaluator,
	ProvideBatchRunner,
	ProvideSnapshotCollector,
	ProvideFXValuer,
)

// InitializeApp wires the long-running HTTP service.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		coreSet,
		ProvideTradeCollector,
		ProvideKafkaConsumer,
		ProvideHandler,
		ProvideApp,
	)
	return nil, nil, nil
}

// InitializePipeline wires the one-shot batch command.
func InitializePipeline(cfg *config.Config) (*Pipeline, func(), error) {
	wire.Build(coreSet, ProvidePipeline)
	return nil, nil, nil
}
