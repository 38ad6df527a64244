package async_escrow

import (
	"context"
	"time"

	"github.com/code-payments/code-escrow/pkg/code/data/escrow"
	"github.com/code-payments/code-escrow/pkg/metrics"
)

const (
	escrowCountEventName            = "EscrowCountPollingCheck"
	escrowClosedExternallyEventName = "EscrowClosedExternally"

	reconciledCountMetricName    = "Escrow/Reconciler/ClosedCount"
	reconciliationTimeMetricName = "Escrow/Reconciler/Duration"
)

func (p *service) metricsGaugeWorker(ctx context.Context) error {
	delay := time.Second

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			start := time.Now()

			for _, state := range []escrow.State{
				escrow.StateOpen,
				escrow.StateSettled,
				escrow.StateRefunded,
				escrow.StateClosed,
			} {
				count, err := p.data.CountByState(ctx, state)
				if err != nil {
					continue
				}
				recordEscrowCountEvent(ctx, state, count)
			}

			delay = time.Second - time.Since(start)
		}
	}
}

func recordEscrowCountEvent(ctx context.Context, state escrow.State, count uint64) {
	metrics.RecordEvent(ctx, escrowCountEventName, map[string]interface{}{
		"count": count,
		"state": state.String(),
	})
}

func recordEscrowClosedExternallyEvent(ctx context.Context, record *escrow.Record) {
	metrics.RecordEvent(ctx, escrowClosedExternallyEventName, map[string]interface{}{
		"escrow":  record.Address,
		"maker":   record.Maker,
		"mint_a":  record.MintA,
		"mint_b":  record.MintB,
		"amount":  record.Amount,
		"receive": record.Receive,
	})
}

func recordReconciliationMetrics(ctx context.Context, closed uint64, elapsed time.Duration) {
	metrics.RecordCount(ctx, reconciledCountMetricName, closed)
	metrics.RecordDuration(ctx, reconciliationTimeMetricName, elapsed)
}
