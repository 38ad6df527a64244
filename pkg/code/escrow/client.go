package escrow

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"time"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	xrate "golang.org/x/time/rate"

	"github.com/code-payments/code-escrow/pkg/cache"
	escrow_data "github.com/code-payments/code-escrow/pkg/code/data/escrow"
	"github.com/code-payments/code-escrow/pkg/metrics"
	"github.com/code-payments/code-escrow/pkg/pointer"
	"github.com/code-payments/code-escrow/pkg/rate"
	"github.com/code-payments/code-escrow/pkg/retry"
	"github.com/code-payments/code-escrow/pkg/retry/backoff"
	"github.com/code-payments/code-escrow/pkg/solana"
	escrow_program "github.com/code-payments/code-escrow/pkg/solana/escrow"
	"github.com/code-payments/code-escrow/pkg/solana/token"
	"github.com/code-payments/code-escrow/pkg/sync"
)

const (
	metricsStructName = "escrow.client"

	escrowLockStripes   = 1024
	indexUpdateAttempts = 3
	mintCacheBudget     = 1024
)

var (
	ErrEscrowNotFound         = errors.New("escrow not found")
	ErrRateLimited            = errors.New("maker submission rate limited")
	ErrInvalidAmount          = errors.New("deposit and receive amounts must be positive")
	ErrTokenProgramMismatch   = errors.New("mints are owned by different token programs")
	ErrConfirmationNotReached = errors.New("transaction did not reach the requested commitment")
)

// MakeArgs describes a new escrow offering Amount of MintA for Receive of
// MintB.
type MakeArgs struct {
	MintA ed25519.PublicKey
	MintB ed25519.PublicKey

	Seed    uint64
	Amount  uint64
	Receive uint64
}

// Escrow is an open escrow as currently observed on the ledger.
type Escrow struct {
	Address      ed25519.PublicKey
	Vault        ed25519.PublicKey
	TokenProgram ed25519.PublicKey

	State *escrow_program.EscrowAccount

	// Balance of the vault in mint A units
	Deposited uint64
}

// Client builds, signs and submits escrow transactions, and keeps the escrow
// index in sync with what it submitted.
type Client struct {
	log  *logrus.Entry
	conf *conf

	ledger      solana.Client
	tokenClient *token.Client
	data        escrow_data.Store
	programID   ed25519.PublicKey

	escrowLocks  *sync.StripedLock
	makerLimiter rate.Limiter

	// Mint address to token.MintKind
	mintKinds cache.Cache
}

// NewClient returns a new escrow Client for the program deployed at
// programID.
func NewClient(ledger solana.Client, data escrow_data.Store, programID ed25519.PublicKey, configProvider ConfigProvider) *Client {
	conf := configProvider()

	var limiter rate.Limiter = &rate.NoLimiter{}
	if maxRate := conf.maxMakerSubmissionsPerSecond.Get(context.Background()); maxRate > 0 {
		limiter = rate.NewLocalRateLimiter(xrate.Limit(maxRate))
	}

	return &Client{
		log:  logrus.StandardLogger().WithField("type", "escrow/client"),
		conf: conf,

		ledger:      ledger,
		tokenClient: token.NewClient(ledger),
		data:        data,
		programID:   programID,

		escrowLocks:  sync.NewStripedLock(escrowLockStripes),
		makerLimiter: limiter,

		mintKinds: cache.NewCache(mintCacheBudget),
	}
}

// Make deposits args.Amount of mint A from the maker into a new escrow and
// indexes it as open.
func (c *Client) Make(ctx context.Context, maker ed25519.PrivateKey, args *MakeArgs) (record *escrow_data.Record, err error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Make")
	defer func() {
		tracer.OnError(err)
		tracer.End()
	}()

	makerPub := maker.Public().(ed25519.PublicKey)

	log := c.log.WithFields(logrus.Fields{
		"method": "Make",
		"maker":  base58.Encode(makerPub),
		"seed":   args.Seed,
	})

	if args.Amount == 0 || args.Receive == 0 {
		return nil, ErrInvalidAmount
	}

	allowed, err := c.makerLimiter.Allow(base58.Encode(makerPub))
	if err != nil {
		log.WithError(err).Warn("failure checking rate limit")
	} else if !allowed {
		return nil, ErrRateLimited
	}

	escrowAddress, bump, err := escrow_program.GetEscrowAddress(&escrow_program.GetEscrowAddressArgs{
		Maker: makerPub,
		Seed:  args.Seed,
	}, c.programID)
	if err != nil {
		return nil, errors.Wrap(err, "error deriving escrow address")
	}

	log = log.WithField("escrow", base58.Encode(escrowAddress))
	tracer.AddAttribute("escrow", base58.Encode(escrowAddress))

	lock := c.escrowLocks.Get(escrowAddress)
	lock.Lock()
	defer lock.Unlock()

	tokenProgram, err := c.getTokenProgram(ctx, args.MintA, args.MintB)
	if err != nil {
		return nil, err
	}

	makerAtaA, err := token.GetAssociatedAccountForProgram(makerPub, args.MintA, tokenProgram)
	if err != nil {
		return nil, errors.Wrap(err, "error deriving maker mint a account")
	}
	vault, err := escrow_program.GetVaultAddress(escrowAddress, args.MintA, tokenProgram)
	if err != nil {
		return nil, errors.Wrap(err, "error deriving vault address")
	}

	ix := escrow_program.NewMakeInstruction(
		c.programID,
		&escrow_program.MakeInstructionAccounts{
			Maker:        makerPub,
			Escrow:       escrowAddress,
			MintA:        args.MintA,
			MintB:        args.MintB,
			MakerAtaA:    makerAtaA,
			Vault:        vault,
			TokenProgram: tokenProgram,
		},
		&escrow_program.MakeInstructionArgs{
			Seed:    args.Seed,
			Receive: args.Receive,
			Amount:  args.Amount,
		},
	)

	sig, err := c.submit(ctx, maker, ix)
	if err != nil {
		log.WithError(err).Info("make transaction failed")
		return nil, err
	}

	log.WithField("signature", sig.String()).Debug("escrow created")

	record = &escrow_data.Record{
		Address: base58.Encode(escrowAddress),

		Maker: base58.Encode(makerPub),
		MintA: base58.Encode(args.MintA),
		MintB: base58.Encode(args.MintB),

		Seed:    args.Seed,
		Bump:    bump,
		Receive: args.Receive,
		Amount:  args.Amount,

		State: escrow_data.StateOpen,

		MakeSignature: sig.String(),

		CreatedAt: time.Now(),
	}
	if err := c.data.Save(ctx, record); err != nil {
		log.WithError(err).Warn("failure indexing escrow")
		return nil, errors.Wrap(err, "error saving escrow record")
	}

	return record, nil
}

// Take settles an open escrow: the taker pays the requested mint B amount to
// the maker and receives the deposit.
func (c *Client) Take(ctx context.Context, taker ed25519.PrivateKey, escrow ed25519.PublicKey) (sig solana.Signature, err error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Take")
	tracer.AddAttribute("escrow", base58.Encode(escrow))
	defer func() {
		tracer.OnError(err)
		tracer.End()
	}()

	takerPub := taker.Public().(ed25519.PublicKey)

	log := c.log.WithFields(logrus.Fields{
		"method": "Take",
		"escrow": base58.Encode(escrow),
		"taker":  base58.Encode(takerPub),
	})

	lock := c.escrowLocks.Get(escrow)
	lock.Lock()
	defer lock.Unlock()

	state, err := c.GetEscrow(ctx, escrow)
	if err != nil {
		return sig, err
	}

	takerAtaA, err := token.GetAssociatedAccountForProgram(takerPub, state.State.MintA, state.TokenProgram)
	if err != nil {
		return sig, errors.Wrap(err, "error deriving taker mint a account")
	}
	takerAtaB, err := token.GetAssociatedAccountForProgram(takerPub, state.State.MintB, state.TokenProgram)
	if err != nil {
		return sig, errors.Wrap(err, "error deriving taker mint b account")
	}
	makerAtaB, err := token.GetAssociatedAccountForProgram(state.State.Maker, state.State.MintB, state.TokenProgram)
	if err != nil {
		return sig, errors.Wrap(err, "error deriving maker mint b account")
	}

	ix := escrow_program.NewTakeInstruction(
		c.programID,
		&escrow_program.TakeInstructionAccounts{
			Taker:        takerPub,
			Maker:        state.State.Maker,
			Escrow:       escrow,
			MintA:        state.State.MintA,
			MintB:        state.State.MintB,
			Vault:        state.Vault,
			TakerAtaA:    takerAtaA,
			TakerAtaB:    takerAtaB,
			MakerAtaB:    makerAtaB,
			TokenProgram: state.TokenProgram,
		},
	)

	sig, err = c.submit(ctx, taker, ix)
	if err != nil {
		log.WithError(err).Info("take transaction failed")
		return sig, err
	}

	log.WithField("signature", sig.String()).Debug("escrow settled")

	err = c.markClosed(ctx, escrow, escrow_data.StateSettled, pointer.String(base58.Encode(takerPub)), sig)
	if err != nil {
		log.WithError(err).Warn("failure updating escrow record")
		return sig, err
	}
	return sig, nil
}

// Refund cancels an open escrow, returning the deposit to the maker.
func (c *Client) Refund(ctx context.Context, maker ed25519.PrivateKey, escrow ed25519.PublicKey) (sig solana.Signature, err error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Refund")
	tracer.AddAttribute("escrow", base58.Encode(escrow))
	defer func() {
		tracer.OnError(err)
		tracer.End()
	}()

	makerPub := maker.Public().(ed25519.PublicKey)

	log := c.log.WithFields(logrus.Fields{
		"method": "Refund",
		"escrow": base58.Encode(escrow),
		"maker":  base58.Encode(makerPub),
	})

	lock := c.escrowLocks.Get(escrow)
	lock.Lock()
	defer lock.Unlock()

	state, err := c.GetEscrow(ctx, escrow)
	if err != nil {
		return sig, err
	}

	makerAtaA, err := token.GetAssociatedAccountForProgram(makerPub, state.State.MintA, state.TokenProgram)
	if err != nil {
		return sig, errors.Wrap(err, "error deriving maker mint a account")
	}

	ix := escrow_program.NewRefundInstruction(
		c.programID,
		&escrow_program.RefundInstructionAccounts{
			Maker:        makerPub,
			Escrow:       escrow,
			MintA:        state.State.MintA,
			MakerAtaA:    makerAtaA,
			Vault:        state.Vault,
			TokenProgram: state.TokenProgram,
		},
	)

	sig, err = c.submit(ctx, maker, ix)
	if err != nil {
		log.WithError(err).Info("refund transaction failed")
		return sig, err
	}

	log.WithField("signature", sig.String()).Debug("escrow refunded")

	err = c.markClosed(ctx, escrow, escrow_data.StateRefunded, nil, sig)
	if err != nil {
		log.WithError(err).Warn("failure updating escrow record")
		return sig, err
	}
	return sig, nil
}

// GetEscrow returns the on-ledger state of an open escrow. ErrEscrowNotFound
// is returned if the account doesn't exist or isn't an escrow record.
func (c *Client) GetEscrow(ctx context.Context, address ed25519.PublicKey) (escrow *Escrow, err error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "GetEscrow")
	defer func() {
		tracer.OnError(err)
		tracer.End()
	}()

	commitment := solana.CommitmentFromString(c.conf.commitment.Get(ctx))

	info, err := c.ledger.GetAccountInfo(address, commitment)
	if err == solana.ErrNoAccountInfo {
		return nil, ErrEscrowNotFound
	} else if err != nil {
		return nil, errors.Wrap(err, "error getting escrow account")
	}

	if !bytes.Equal(info.Owner, c.programID) {
		return nil, ErrEscrowNotFound
	}

	var state escrow_program.EscrowAccount
	if err := state.Unmarshal(info.Data); err != nil {
		return nil, ErrEscrowNotFound
	}

	tokenProgram, err := c.getTokenProgram(ctx, state.MintA, state.MintB)
	if err != nil {
		return nil, err
	}

	vault, err := escrow_program.GetVaultAddress(address, state.MintA, tokenProgram)
	if err != nil {
		return nil, errors.Wrap(err, "error deriving vault address")
	}

	vaultAccount, err := c.tokenClient.GetAccount(vault, state.MintA, commitment)
	if err != nil {
		return nil, errors.Wrap(err, "error getting vault account")
	}

	return &Escrow{
		Address:      address,
		Vault:        vault,
		TokenProgram: tokenProgram,
		State:        &state,
		Deposited:    vaultAccount.Amount,
	}, nil
}

// GetEscrowsByMaker returns every open escrow created by maker, ordered by
// address.
func (c *Client) GetEscrowsByMaker(ctx context.Context, maker ed25519.PublicKey) (escrows []*Escrow, err error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "GetEscrowsByMaker")
	defer func() {
		tracer.OnError(err)
		tracer.End()
	}()

	addresses, _, err := c.ledger.GetFilteredProgramAccounts(c.programID, escrow_program.MakerOffset, maker)
	if err != nil {
		return nil, errors.Wrap(err, "error scanning program accounts")
	}

	for _, encoded := range addresses {
		address, err := base58.Decode(encoded)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid program account address %s", encoded)
		}

		escrow, err := c.GetEscrow(ctx, address)
		if err == ErrEscrowNotFound {
			// Closed since the scan
			continue
		} else if err != nil {
			return nil, err
		}

		escrows = append(escrows, escrow)
	}

	return escrows, nil
}

// getTokenProgram returns the token program owning both mints.
func (c *Client) getTokenProgram(ctx context.Context, mintA, mintB ed25519.PublicKey) (ed25519.PublicKey, error) {
	kindA, err := c.getMintKind(ctx, mintA)
	if err != nil {
		return nil, errors.Wrap(err, "error getting mint a")
	}
	kindB, err := c.getMintKind(ctx, mintB)
	if err != nil {
		return nil, errors.Wrap(err, "error getting mint b")
	}

	if kindA != kindB {
		return nil, ErrTokenProgramMismatch
	}
	return token.ProgramForMintKind(kindA), nil
}

func (c *Client) getMintKind(ctx context.Context, mint ed25519.PublicKey) (token.MintKind, error) {
	key := base58.Encode(mint)
	if cached, ok := c.mintKinds.Retrieve(key); ok {
		return cached.(token.MintKind), nil
	}

	_, kind, err := c.tokenClient.GetMint(mint, solana.CommitmentFromString(c.conf.commitment.Get(ctx)))
	if err != nil {
		return token.MintKindUnknown, err
	}

	// Mints never change owner
	c.mintKinds.Insert(key, kind, 1)
	return kind, nil
}

// submit signs and submits a transaction paid for by signer, waiting for it
// to reach the configured commitment. Expired blockhashes and transport
// failures are retried with a fresh blockhash; transaction errors are not.
func (c *Client) submit(ctx context.Context, signer ed25519.PrivateKey, instructions ...solana.Instruction) (solana.Signature, error) {
	commitment := solana.CommitmentFromString(c.conf.commitment.Get(ctx))
	pollInterval := c.conf.confirmationPollInterval.Get(ctx)

	var sig solana.Signature
	_, err := retry.Retry(
		func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			blockhash, err := c.ledger.GetLatestBlockhash()
			if err != nil {
				return errors.Wrap(err, "error getting latest blockhash")
			}

			txn := solana.NewTransaction(signer.Public().(ed25519.PublicKey), instructions...)
			txn.SetBlockhash(blockhash)
			if err := txn.Sign(signer); err != nil {
				return errors.Wrap(err, "error signing transaction")
			}

			sig, err = c.ledger.SubmitTransaction(txn, commitment)
			return err
		},
		retry.NonRetriableIf(isTerminalSubmissionError),
		retry.Limit(uint(c.conf.submissionAttempts.Get(ctx))),
		retry.Backoff(backoff.Constant(pollInterval), pollInterval),
	)
	if err != nil {
		return sig, err
	}

	maxPolls := uint(c.conf.confirmationTimeout.Get(ctx)/pollInterval) + 1
	status, err := solana.PollSignatureStatus(
		c.ledger,
		sig,
		commitment,
		retry.Limit(maxPolls),
		retry.Backoff(backoff.Constant(pollInterval), pollInterval),
	)
	if err != nil {
		if status != nil || errors.Cause(err) == solana.ErrSignatureNotFound {
			return sig, ErrConfirmationNotReached
		}
		return sig, errors.Wrap(err, "error polling signature status")
	}
	if status.ErrorResult != nil {
		return sig, status.ErrorResult
	}

	return sig, nil
}

func isTerminalSubmissionError(err error) bool {
	cause := errors.Cause(err)
	if cause == context.Canceled || cause == context.DeadlineExceeded {
		return true
	}

	txErr, ok := cause.(*solana.TransactionError)
	if !ok {
		return false
	}
	return txErr.ErrorKey() != solana.TransactionErrorBlockhashNotFound
}

// markClosed moves the index record for an escrow into a terminal state.
// Escrows created outside of this client have no record and are skipped.
func (c *Client) markClosed(ctx context.Context, escrow ed25519.PublicKey, state escrow_data.State, taker *string, sig solana.Signature) error {
	_, err := retry.Retry(
		func() error {
			record, err := c.data.GetByAddress(ctx, base58.Encode(escrow))
			if err == escrow_data.ErrEscrowNotFound {
				return nil
			} else if err != nil {
				return err
			}

			if record.State.IsTerminal() {
				return nil
			}

			record.State = state
			record.Taker = taker
			record.CloseSignature = pointer.String(sig.String())
			record.ClosedAt = pointer.Time(time.Now())
			return c.data.Save(ctx, record)
		},
		retry.RetriableErrors(escrow_data.ErrStaleVersion),
		retry.Limit(indexUpdateAttempts),
	)
	if err != nil {
		return errors.Wrap(err, "error updating escrow record")
	}
	return nil
}
