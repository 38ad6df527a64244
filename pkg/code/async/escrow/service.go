package async_escrow

import (
	"context"
	"crypto/ed25519"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/code-escrow/pkg/code/async"
	"github.com/code-payments/code-escrow/pkg/code/data/escrow"
	"github.com/code-payments/code-escrow/pkg/metrics"
	"github.com/code-payments/code-escrow/pkg/solana"
)

type service struct {
	log       *logrus.Entry
	conf      *conf
	data      escrow.Store
	ledger    solana.Client
	programID ed25519.PublicKey
}

// New returns a service that closes index records for escrows that no longer
// exist on the ledger.
func New(data escrow.Store, ledger solana.Client, programID ed25519.PublicKey, configProvider ConfigProvider) async.Service {
	return &service{
		log:       logrus.StandardLogger().WithField("service", "escrow"),
		conf:      configProvider(),
		data:      data,
		ledger:    ledger,
		programID: programID,
	}
}

func (p *service) Start(ctx context.Context, interval time.Duration) error {
	if nr, _ := ctx.Value(metrics.NewRelicContextKey{}).(*newrelic.Application); nr != nil {
		p.log = metrics.NewNewRelicLogger(nr).WithField("service", "escrow")
	}

	go func() {
		err := p.worker(ctx, interval)
		if err != nil && err != context.Canceled {
			p.log.WithError(err).Warn("escrow reconciliation loop terminated unexpectedly")
		}
	}()

	go func() {
		err := p.metricsGaugeWorker(ctx)
		if err != nil && err != context.Canceled {
			p.log.WithError(err).Warn("escrow metrics gauge loop terminated unexpectedly")
		}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	}
}
