package escrow

import (
	"time"

	"github.com/code-payments/code-escrow/pkg/config"
	"github.com/code-payments/code-escrow/pkg/config/env"
	"github.com/code-payments/code-escrow/pkg/config/memory"
	"github.com/code-payments/code-escrow/pkg/config/wrapper"
)

const (
	envConfigPrefix = "ESCROW_CLIENT_"

	CommitmentConfigEnvName = envConfigPrefix + "COMMITMENT"
	defaultCommitment       = "finalized"

	ConfirmationPollIntervalConfigEnvName = envConfigPrefix + "CONFIRMATION_POLL_INTERVAL"
	defaultConfirmationPollInterval       = 500 * time.Millisecond

	ConfirmationTimeoutConfigEnvName = envConfigPrefix + "CONFIRMATION_TIMEOUT"
	defaultConfirmationTimeout       = 30 * time.Second

	SubmissionAttemptsConfigEnvName = envConfigPrefix + "SUBMISSION_ATTEMPTS"
	defaultSubmissionAttempts       = 3

	// Zero disables the limiter
	MaxMakerSubmissionsPerSecondConfigEnvName = envConfigPrefix + "MAX_MAKER_SUBMISSIONS_PER_SECOND"
	defaultMaxMakerSubmissionsPerSecond       = 5
)

type conf struct {
	commitment                   config.String
	confirmationPollInterval     config.Duration
	confirmationTimeout          config.Duration
	submissionAttempts           config.Uint64
	maxMakerSubmissionsPerSecond config.Uint64
}

// ConfigProvider defines how config values are pulled
type ConfigProvider func() *conf

// WithEnvConfigs returns configuration pulled from environment variables
func WithEnvConfigs() ConfigProvider {
	return func() *conf {
		return &conf{
			commitment:                   env.NewStringConfig(CommitmentConfigEnvName, defaultCommitment),
			confirmationPollInterval:     env.NewDurationConfig(ConfirmationPollIntervalConfigEnvName, defaultConfirmationPollInterval),
			confirmationTimeout:          env.NewDurationConfig(ConfirmationTimeoutConfigEnvName, defaultConfirmationTimeout),
			submissionAttempts:           env.NewUint64Config(SubmissionAttemptsConfigEnvName, defaultSubmissionAttempts),
			maxMakerSubmissionsPerSecond: env.NewUint64Config(MaxMakerSubmissionsPerSecondConfigEnvName, defaultMaxMakerSubmissionsPerSecond),
		}
	}
}

type testOverrides struct {
	maxMakerSubmissionsPerSecond uint64
}

func withManualTestOverrides(overrides *testOverrides) ConfigProvider {
	return func() *conf {
		return &conf{
			commitment:                   wrapper.NewStringConfig(memory.NewConfig(defaultCommitment), defaultCommitment),
			confirmationPollInterval:     wrapper.NewDurationConfig(memory.NewConfig(time.Millisecond), defaultConfirmationPollInterval),
			confirmationTimeout:          wrapper.NewDurationConfig(memory.NewConfig(100*time.Millisecond), defaultConfirmationTimeout),
			submissionAttempts:           wrapper.NewUint64Config(memory.NewConfig(uint64(defaultSubmissionAttempts)), defaultSubmissionAttempts),
			maxMakerSubmissionsPerSecond: wrapper.NewUint64Config(memory.NewConfig(overrides.maxMakerSubmissionsPerSecond), defaultMaxMakerSubmissionsPerSecond),
		}
	}
}
