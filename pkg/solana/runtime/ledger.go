package runtime

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"sync"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/code-escrow/pkg/metrics"
	"github.com/code-payments/code-escrow/pkg/solana"
	"github.com/code-payments/code-escrow/pkg/solana/system"
	"github.com/code-payments/code-escrow/pkg/solana/token"
)

const (
	metricsStructName = "solana.runtime.ledger"
)

var (
	// NativeLoaderKey owns the builtin programs.
	NativeLoaderKey = mustBase58Decode("NativeLoader1111111111111111111111111111111")

	// BPFLoaderKey owns programs registered with RegisterProgram.
	BPFLoaderKey = mustBase58Decode("BPFLoaderUpgradeab1e11111111111111111111111")
)

// Ledger is an in-process, single node ledger. It executes legacy
// transactions atomically against an account store, with native system,
// token and associated token account programs, and implements
// solana.Client so code written against an RPC node can run against it.
type Ledger struct {
	log  *logrus.Entry
	conf *conf

	mu          sync.Mutex
	accounts    map[string]*Account
	programs    map[string]Program
	slot        uint64
	blockhash   solana.Blockhash
	blockhashes []solana.Blockhash
	statuses    map[solana.Signature]*solana.SignatureStatus
}

// NewLedger returns a ledger with the native programs registered.
func NewLedger(configProvider ConfigProvider) *Ledger {
	l := &Ledger{
		log:      logrus.StandardLogger().WithField("type", "solana/runtime/ledger"),
		conf:     configProvider(),
		accounts: make(map[string]*Account),
		programs: make(map[string]Program),
		statuses: make(map[solana.Signature]*solana.SignatureStatus),
	}

	l.blockhash = sha256.Sum256([]byte("genesis"))
	l.blockhashes = []solana.Blockhash{l.blockhash}

	l.registerProgram(system.ProgramKey[:], NativeLoaderKey, &systemProgram{})
	l.registerProgram(token.ProgramKey, NativeLoaderKey, &tokenProgram{})
	l.registerProgram(token.Token2022ProgramKey, NativeLoaderKey, &tokenProgram{})
	l.registerProgram(token.AssociatedTokenAccountProgramKey, NativeLoaderKey, &associatedTokenProgram{})

	return l
}

// RegisterProgram deploys p at address.
func (l *Ledger) RegisterProgram(address ed25519.PublicKey, p Program) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.registerProgram(address, BPFLoaderKey, p)
}

func (l *Ledger) registerProgram(address, loader ed25519.PublicKey, p Program) {
	l.programs[string(address)] = p
	l.accounts[string(address)] = &Account{
		Lamports:   1,
		Owner:      loader,
		Executable: true,
	}
}

// ExecuteTransaction verifies and executes txn. Either every instruction
// succeeds and all changes are committed, or the transaction fails with a
// *solana.TransactionError and nothing is changed.
func (l *Ledger) ExecuteTransaction(ctx context.Context, txn solana.Transaction) (sig solana.Signature, err error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "ExecuteTransaction")
	defer func() {
		tracer.OnError(err)
		tracer.End()
	}()

	if len(txn.Signatures) > 0 {
		sig = txn.Signatures[0]
	}

	log := l.log.WithFields(logrus.Fields{
		"method":    "ExecuteTransaction",
		"signature": sig.String(),
	})

	if err := txn.VerifySignatures(); err != nil {
		log.WithError(err).Debug("signature verification failed")
		return sig, solana.NewTransactionError(solana.TransactionErrorSignatureFailure)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.isRecentBlockhash(txn.Message.RecentBlockhash) {
		return sig, solana.NewTransactionError(solana.TransactionErrorBlockhashNotFound)
	}
	if _, ok := l.statuses[sig]; ok {
		return sig, solana.NewTransactionError(solana.TransactionErrorAlreadyProcessed)
	}

	exec := &executor{
		ctx:     ctx,
		log:     log,
		conf:    l.conf,
		ledger:  l,
		working: make(map[string]*Account),
	}

	msg := txn.Message
	feePayer := exec.load(msg.Accounts[0])
	fee := l.conf.lamportsPerSignature.Get(ctx) * uint64(len(txn.Signatures))
	if feePayer.Lamports < fee {
		return sig, solana.NewTransactionError(solana.TransactionErrorInsufficientFundsForFee)
	}
	feePayer.Lamports -= fee

	for i, compiled := range msg.Instructions {
		if int(compiled.ProgramIndex) >= len(msg.Accounts) {
			return sig, solana.NewTransactionError(solana.TransactionErrorInvalidAccountIndex)
		}

		accounts := make([]*AccountInfo, len(compiled.Accounts))
		for j, index := range compiled.Accounts {
			if int(index) >= len(msg.Accounts) {
				return sig, solana.NewTransactionError(solana.TransactionErrorInvalidAccountIndex)
			}

			accounts[j] = &AccountInfo{
				Key:        msg.Accounts[index],
				IsSigner:   msg.IsSigner(int(index)),
				IsWritable: msg.IsWritable(int(index)),
				account:    exec.load(msg.Accounts[index]),
			}
		}

		err := exec.invoke(msg.Accounts[compiled.ProgramIndex], accounts, compiled.Data)
		if err != nil {
			log.WithError(err).WithField("instruction", i).Debug("instruction failed")
			return sig, newInstructionFailure(i, err)
		}
	}

	for key, account := range exec.working {
		if !l.isModified(key, account) {
			continue
		}
		if len(account.Data) > 0 && account.exists() && !account.Executable && !isRentExempt(ctx, l.conf, account) {
			log.WithField("account", base58.Encode([]byte(key))).Debug("account is not rent exempt")
			return sig, solana.NewTransactionError(solana.TransactionErrorInsufficientFundsForRent)
		}
	}

	l.commit(exec.working)
	l.statuses[sig] = &solana.SignatureStatus{
		Slot:               l.slot,
		ConfirmationStatus: "finalized",
	}

	log.WithField("slot", l.slot).Debug("transaction committed")
	return sig, nil
}

func newInstructionFailure(index int, err error) error {
	cause := errors.Cause(err)
	if !solana.IsProgramError(cause) {
		cause = solana.ErrGeneric
	}

	txErr, convErr := solana.TransactionErrorFromInstructionError(&solana.InstructionError{
		Index: index,
		Err:   cause,
	})
	if convErr != nil {
		return errors.Wrap(err, "failed to convert instruction error")
	}
	return txErr
}

func (l *Ledger) isModified(key string, account *Account) bool {
	committed, ok := l.accounts[key]
	if !ok {
		return account.exists()
	}
	return committed.Lamports != account.Lamports ||
		!bytes.Equal(committed.Owner, account.Owner) ||
		!bytes.Equal(committed.Data, account.Data)
}

// commit applies the working set and advances the ledger by one slot.
func (l *Ledger) commit(working map[string]*Account) {
	for key, account := range working {
		if !account.exists() {
			delete(l.accounts, key)
			continue
		}
		l.accounts[key] = account
	}
	l.advance()
}

func (l *Ledger) advance() {
	var slotBytes [8]byte
	binary.LittleEndian.PutUint64(slotBytes[:], l.slot)

	l.slot++
	l.blockhash = sha256.Sum256(append(l.blockhash[:], slotBytes[:]...))
	l.blockhashes = append(l.blockhashes, l.blockhash)

	limit := int(l.conf.recentBlockhashCount.Get(context.Background()))
	if len(l.blockhashes) > limit {
		l.blockhashes = l.blockhashes[len(l.blockhashes)-limit:]
	}
}

func (l *Ledger) isRecentBlockhash(bh solana.Blockhash) bool {
	for _, recent := range l.blockhashes {
		if bytes.Equal(recent[:], bh[:]) {
			return true
		}
	}
	return false
}

// Airdrop credits lamports to a system account, creating it if needed.
func (l *Ledger) Airdrop(address ed25519.PublicKey, lamports uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	account, ok := l.accounts[string(address)]
	if !ok {
		account = newEmptyAccount()
		l.accounts[string(address)] = account
	}
	account.Lamports += lamports
}

// SetAccount overwrites the account stored at address. A zero lamport
// account deletes it.
func (l *Ledger) SetAccount(address ed25519.PublicKey, account *Account) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if account == nil || !account.exists() {
		delete(l.accounts, string(address))
		return
	}
	l.accounts[string(address)] = account.clone()
}

// GetAccount returns a copy of the account at address.
func (l *Ledger) GetAccount(address ed25519.PublicKey) (*Account, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	account, ok := l.accounts[string(address)]
	if !ok {
		return nil, false
	}
	return account.clone(), true
}

func mustBase58Decode(value string) ed25519.PublicKey {
	decoded, err := base58.Decode(value)
	if err != nil {
		panic(err)
	}
	return decoded
}
