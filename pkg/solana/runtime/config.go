package runtime

import (
	"github.com/code-payments/code-escrow/pkg/config"
	"github.com/code-payments/code-escrow/pkg/config/env"
	"github.com/code-payments/code-escrow/pkg/config/memory"
	"github.com/code-payments/code-escrow/pkg/config/wrapper"
)

const (
	envConfigPrefix = "LEDGER_"

	LamportsPerByteYearConfigEnvName = envConfigPrefix + "LAMPORTS_PER_BYTE_YEAR"
	defaultLamportsPerByteYear       = 3480

	ExemptionThresholdConfigEnvName = envConfigPrefix + "EXEMPTION_THRESHOLD_YEARS"
	defaultExemptionThreshold       = 2

	LamportsPerSignatureConfigEnvName = envConfigPrefix + "LAMPORTS_PER_SIGNATURE"
	defaultLamportsPerSignature       = 5000

	MaxAccountDataLengthConfigEnvName = envConfigPrefix + "MAX_ACCOUNT_DATA_LENGTH"
	defaultMaxAccountDataLength       = 10 * 1024 * 1024

	MaxInvocationDepthConfigEnvName = envConfigPrefix + "MAX_INVOCATION_DEPTH"
	defaultMaxInvocationDepth       = 4

	RecentBlockhashCountConfigEnvName = envConfigPrefix + "RECENT_BLOCKHASH_COUNT"
	defaultRecentBlockhashCount       = 150
)

type conf struct {
	lamportsPerByteYear  config.Uint64
	exemptionThreshold   config.Uint64
	lamportsPerSignature config.Uint64
	maxAccountDataLength config.Uint64
	maxInvocationDepth   config.Uint64
	recentBlockhashCount config.Uint64
}

// ConfigProvider defines how config values are pulled
type ConfigProvider func() *conf

// WithEnvConfigs returns configuration pulled from environment variables
func WithEnvConfigs() ConfigProvider {
	return func() *conf {
		return &conf{
			lamportsPerByteYear:  env.NewUint64Config(LamportsPerByteYearConfigEnvName, defaultLamportsPerByteYear),
			exemptionThreshold:   env.NewUint64Config(ExemptionThresholdConfigEnvName, defaultExemptionThreshold),
			lamportsPerSignature: env.NewUint64Config(LamportsPerSignatureConfigEnvName, defaultLamportsPerSignature),
			maxAccountDataLength: env.NewUint64Config(MaxAccountDataLengthConfigEnvName, defaultMaxAccountDataLength),
			maxInvocationDepth:   env.NewUint64Config(MaxInvocationDepthConfigEnvName, defaultMaxInvocationDepth),
			recentBlockhashCount: env.NewUint64Config(RecentBlockhashCountConfigEnvName, defaultRecentBlockhashCount),
		}
	}
}

// TestOverrides adjusts ledger parameters for tests. Zero values keep the
// defaults.
type TestOverrides struct {
	LamportsPerSignature *uint64
	MaxInvocationDepth   uint64
	RecentBlockhashCount uint64
}

// WithTestOverrides returns an in-memory configuration with the defaults and
// any provided overrides.
func WithTestOverrides(overrides *TestOverrides) ConfigProvider {
	return func() *conf {
		lamportsPerSignature := uint64(defaultLamportsPerSignature)
		maxInvocationDepth := uint64(defaultMaxInvocationDepth)
		recentBlockhashCount := uint64(defaultRecentBlockhashCount)
		if overrides != nil {
			if overrides.LamportsPerSignature != nil {
				lamportsPerSignature = *overrides.LamportsPerSignature
			}
			if overrides.MaxInvocationDepth > 0 {
				maxInvocationDepth = overrides.MaxInvocationDepth
			}
			if overrides.RecentBlockhashCount > 0 {
				recentBlockhashCount = overrides.RecentBlockhashCount
			}
		}

		return &conf{
			lamportsPerByteYear:  wrapper.NewUint64Config(memory.NewConfig(uint64(defaultLamportsPerByteYear)), defaultLamportsPerByteYear),
			exemptionThreshold:   wrapper.NewUint64Config(memory.NewConfig(uint64(defaultExemptionThreshold)), defaultExemptionThreshold),
			lamportsPerSignature: wrapper.NewUint64Config(memory.NewConfig(lamportsPerSignature), defaultLamportsPerSignature),
			maxAccountDataLength: wrapper.NewUint64Config(memory.NewConfig(uint64(defaultMaxAccountDataLength)), defaultMaxAccountDataLength),
			maxInvocationDepth:   wrapper.NewUint64Config(memory.NewConfig(maxInvocationDepth), defaultMaxInvocationDepth),
			recentBlockhashCount: wrapper.NewUint64Config(memory.NewConfig(recentBlockhashCount), defaultRecentBlockhashCount),
		}
	}
}
