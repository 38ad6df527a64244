package async_escrow

import (
	"bytes"
	"context"
	base "sync"
	"time"

	"github.com/mr-tron/base58"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/code-escrow/pkg/code/data/escrow"
	"github.com/code-payments/code-escrow/pkg/database/query"
	"github.com/code-payments/code-escrow/pkg/metrics"
	"github.com/code-payments/code-escrow/pkg/pointer"
	"github.com/code-payments/code-escrow/pkg/retry"
	"github.com/code-payments/code-escrow/pkg/solana"
	"github.com/code-payments/code-escrow/pkg/sync"
)

func (p *service) worker(serviceCtx context.Context, interval time.Duration) error {
	delay := interval

	err := retry.Loop(
		func() (err error) {
			time.Sleep(delay)

			if err := serviceCtx.Err(); err != nil {
				return err
			}

			if p.conf.disableReconciliation.Get(serviceCtx) {
				return nil
			}

			nr, _ := serviceCtx.Value(metrics.NewRelicContextKey{}).(*newrelic.Application)
			m := nr.StartTransaction("async__escrow_service__reconcile_open_escrows")
			defer m.End()
			tracedCtx := newrelic.NewContext(serviceCtx, m)

			start := time.Now()
			closed, err := p.reconcile(tracedCtx)
			recordReconciliationMetrics(tracedCtx, closed, time.Since(start))
			if err != nil {
				m.NoticeError(err)
				p.log.WithError(err).Warn("failure reconciling open escrows")
			}
			return err
		},
		retry.NonRetriableErrors(context.Canceled),
	)

	return err
}

// reconcile checks every open escrow against the ledger and returns the
// number of records that were closed.
func (p *service) reconcile(ctx context.Context) (uint64, error) {
	channel := sync.NewStripedChannel(uint(p.conf.workerCount.Get(ctx)), uint(p.conf.queueSize.Get(ctx)))

	var closed uint64
	var closedMu base.Mutex

	var wg base.WaitGroup
	for _, receiver := range channel.GetChannels() {
		wg.Add(1)

		go func(receiver <-chan interface{}) {
			defer wg.Done()

			for item := range receiver {
				record := item.(*escrow.Record)

				ok, err := p.handleOpenEscrow(ctx, record)
				if err != nil {
					p.log.WithError(err).WithField("escrow", record.Address).Warn("failure reconciling escrow")
					continue
				}

				if ok {
					closedMu.Lock()
					closed++
					closedMu.Unlock()
				}
			}
		}(receiver)
	}

	var cursor query.Cursor
	var err error
	for {
		var records []*escrow.Record
		records, err = p.data.GetAllByState(
			ctx,
			escrow.StateOpen,
			cursor,
			p.conf.batchSize.Get(ctx),
			query.Ascending,
		)
		if err == escrow.ErrEscrowNotFound {
			err = nil
			break
		} else if err != nil {
			err = errors.Wrap(err, "error getting open escrows")
			break
		}

		for _, record := range records {
			channel.BlockingSend([]byte(record.Address), record)
		}

		cursor = query.ToCursor(records[len(records)-1].Id)
	}

	channel.Close()
	wg.Wait()

	return closed, err
}

// handleOpenEscrow marks the record closed if its escrow account is gone from
// the ledger, returning whether it did so.
func (p *service) handleOpenEscrow(ctx context.Context, record *escrow.Record) (bool, error) {
	log := p.log.WithFields(logrus.Fields{
		"method": "handleOpenEscrow",
		"escrow": record.Address,
		"maker":  record.Maker,
	})

	address, err := base58.Decode(record.Address)
	if err != nil {
		return false, errors.Wrap(err, "invalid escrow address")
	}

	info, err := p.ledger.GetAccountInfo(address, solana.CommitmentFinalized)
	switch err {
	case nil:
		if bytes.Equal(info.Owner, p.programID) {
			return false, nil
		}
	case solana.ErrNoAccountInfo:
	default:
		return false, errors.Wrap(err, "error getting escrow account")
	}

	record.State = escrow.StateClosed
	record.ClosedAt = pointer.Time(time.Now())

	err = p.data.Save(ctx, record)
	switch err {
	case nil:
	case escrow.ErrStaleVersion, escrow.ErrInvalidStateTransition:
		// Closed through the client in the meantime
		log.WithError(err).Debug("escrow record changed during reconciliation")
		return false, nil
	default:
		return false, errors.Wrap(err, "error saving escrow record")
	}

	log.Info("escrow closed outside of the client")
	recordEscrowClosedExternallyEvent(ctx, record)

	return true, nil
}
