package runtime

import "context"

// accountStorageOverhead is the number of bytes charged for every account in
// addition to its data.
const accountStorageOverhead = 128

// MinimumBalance returns the lamports an account with size bytes of data must
// hold to be exempt from rent.
func (l *Ledger) MinimumBalance(size uint64) uint64 {
	return minimumBalance(context.Background(), l.conf, size)
}

func minimumBalance(ctx context.Context, conf *conf, size uint64) uint64 {
	return (accountStorageOverhead + size) * conf.lamportsPerByteYear.Get(ctx) * conf.exemptionThreshold.Get(ctx)
}

func isRentExempt(ctx context.Context, conf *conf, account *Account) bool {
	return account.Lamports >= minimumBalance(ctx, conf, uint64(len(account.Data)))
}
