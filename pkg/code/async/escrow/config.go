package async_escrow

import (
	"github.com/code-payments/code-escrow/pkg/config"
	"github.com/code-payments/code-escrow/pkg/config/env"
	"github.com/code-payments/code-escrow/pkg/config/memory"
	"github.com/code-payments/code-escrow/pkg/config/wrapper"
)

const (
	envConfigPrefix = "ESCROW_RECONCILER_"

	BatchSizeConfigEnvName = envConfigPrefix + "WORKER_BATCH_SIZE"
	defaultBatchSize       = 100

	WorkerCountConfigEnvName = envConfigPrefix + "WORKER_COUNT"
	defaultWorkerCount       = 8

	QueueSizeConfigEnvName = envConfigPrefix + "WORKER_QUEUE_SIZE"
	defaultQueueSize       = 64

	DisableReconciliationConfigEnvName = envConfigPrefix + "DISABLE_RECONCILIATION"
	defaultDisableReconciliation       = false
)

type conf struct {
	batchSize   config.Uint64
	workerCount config.Uint64
	queueSize   config.Uint64

	disableReconciliation config.Bool
}

// ConfigProvider defines how config values are pulled
type ConfigProvider func() *conf

// WithEnvConfigs returns configuration pulled from environment variables
func WithEnvConfigs() ConfigProvider {
	return func() *conf {
		return &conf{
			batchSize:   env.NewUint64Config(BatchSizeConfigEnvName, defaultBatchSize),
			workerCount: env.NewUint64Config(WorkerCountConfigEnvName, defaultWorkerCount),
			queueSize:   env.NewUint64Config(QueueSizeConfigEnvName, defaultQueueSize),

			disableReconciliation: env.NewBoolConfig(DisableReconciliationConfigEnvName, defaultDisableReconciliation),
		}
	}
}

type testOverrides struct {
	batchSize             uint64
	disableReconciliation bool
}

func withManualTestOverrides(overrides *testOverrides) ConfigProvider {
	return func() *conf {
		return &conf{
			batchSize:   wrapper.NewUint64Config(memory.NewConfig(overrides.batchSize), defaultBatchSize),
			workerCount: wrapper.NewUint64Config(memory.NewConfig(uint64(2)), defaultWorkerCount),
			queueSize:   wrapper.NewUint64Config(memory.NewConfig(uint64(1)), defaultQueueSize),

			disableReconciliation: wrapper.NewBoolConfig(memory.NewConfig(overrides.disableReconciliation), defaultDisableReconciliation),
		}
	}
}
