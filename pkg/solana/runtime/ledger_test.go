package runtime_test

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-escrow/pkg/solana"
	"github.com/code-payments/code-escrow/pkg/solana/runtime"
	"github.com/code-payments/code-escrow/pkg/solana/system"
	"github.com/code-payments/code-escrow/pkg/solana/token"
	"github.com/code-payments/code-escrow/pkg/testutil"
)

const testFee = 5000

func TestLedger_SystemTransfer(t *testing.T) {
	ledger := testutil.NewTestLedger(t)

	sender := testutil.NewFundedAccount(t, ledger)
	receiver := testutil.GenerateSolanaKeys(t, 1)[0]

	sig, err := testutil.SubmitTransaction(t, ledger, []ed25519.PrivateKey{sender}, system.Transfer(testutil.PublicKey(sender), receiver, 1000))
	require.NoError(t, err)

	info, err := ledger.GetAccountInfo(testutil.PublicKey(sender), solana.CommitmentFinalized)
	require.NoError(t, err)
	assert.EqualValues(t, testutil.DefaultAirdrop-1000-testFee, info.Lamports)
	assert.EqualValues(t, system.ProgramKey[:], info.Owner)

	info, err = ledger.GetAccountInfo(receiver, solana.CommitmentFinalized)
	require.NoError(t, err)
	assert.EqualValues(t, 1000, info.Lamports)

	status, err := ledger.GetSignatureStatus(sig, solana.CommitmentFinalized)
	require.NoError(t, err)
	assert.True(t, status.Finalized())
	assert.Nil(t, status.ErrorResult)

	status, err = solana.PollSignatureStatus(ledger, sig, solana.CommitmentConfirmed)
	require.NoError(t, err)
	assert.True(t, status.Confirmed())
}

func TestLedger_TransactionChecks(t *testing.T) {
	ledger := testutil.NewTestLedger(t)

	sender := testutil.NewFundedAccount(t, ledger)
	receiver := testutil.GenerateSolanaKeys(t, 1)[0]

	newTxn := func() solana.Transaction {
		txn := solana.NewTransaction(testutil.PublicKey(sender), system.Transfer(testutil.PublicKey(sender), receiver, 1000))
		bh, err := ledger.GetLatestBlockhash()
		require.NoError(t, err)
		txn.SetBlockhash(bh)
		return txn
	}

	// unsigned
	txn := newTxn()
	_, err := ledger.SubmitTransaction(txn, solana.CommitmentFinalized)
	assertTransactionError(t, err, solana.TransactionErrorSignatureFailure)

	// signed by the wrong key
	require.NoError(t, txn.Sign(sender))
	txn.Message.Instructions[0].Data[4] = 0xff
	_, err = ledger.SubmitTransaction(txn, solana.CommitmentFinalized)
	assertTransactionError(t, err, solana.TransactionErrorSignatureFailure)

	// unknown blockhash
	txn = newTxn()
	txn.SetBlockhash(solana.Blockhash{1, 2, 3})
	require.NoError(t, txn.Sign(sender))
	_, err = ledger.SubmitTransaction(txn, solana.CommitmentFinalized)
	assertTransactionError(t, err, solana.TransactionErrorBlockhashNotFound)

	// replay
	txn = newTxn()
	require.NoError(t, txn.Sign(sender))
	_, err = ledger.SubmitTransaction(txn, solana.CommitmentFinalized)
	require.NoError(t, err)
	_, err = ledger.SubmitTransaction(txn, solana.CommitmentFinalized)
	assertTransactionError(t, err, solana.TransactionErrorAlreadyProcessed)

	// fee payer without funds
	broke := testutil.NewRandomAccount(t)
	_, err = testutil.SubmitTransaction(t, ledger, []ed25519.PrivateKey{broke}, system.Transfer(testutil.PublicKey(broke), receiver, 1))
	assertTransactionError(t, err, solana.TransactionErrorInsufficientFundsForFee)
}

func TestLedger_Atomicity(t *testing.T) {
	ledger := testutil.NewTestLedger(t)

	sender := testutil.NewFundedAccount(t, ledger)
	receiver := testutil.GenerateSolanaKeys(t, 1)[0]

	_, err := testutil.SubmitTransaction(
		t,
		ledger,
		[]ed25519.PrivateKey{sender},
		system.Transfer(testutil.PublicKey(sender), receiver, 1000),
		system.Transfer(testutil.PublicKey(sender), receiver, 2*testutil.DefaultAirdrop),
	)
	require.Error(t, err)
	assert.True(t, solana.IsInstructionError(err, system.ErrorResultWithNegativeLamports))
	assert.Equal(t, 1, solana.GetInstructionError(err).Index)

	_, err = ledger.GetAccountInfo(receiver, solana.CommitmentFinalized)
	assert.Equal(t, solana.ErrNoAccountInfo, err)

	info, err := ledger.GetAccountInfo(testutil.PublicKey(sender), solana.CommitmentFinalized)
	require.NoError(t, err)
	assert.EqualValues(t, testutil.DefaultAirdrop, info.Lamports)
}

func TestLedger_TokenLifecycle(t *testing.T) {
	for _, tokenProgram := range []ed25519.PublicKey{token.ProgramKey, token.Token2022ProgramKey} {
		ledger := testutil.NewTestLedger(t)

		authority := testutil.NewFundedAccount(t, ledger)
		owner := testutil.NewFundedAccount(t, ledger)
		other := testutil.GenerateSolanaKeys(t, 1)[0]

		mint := testutil.CreateMint(t, ledger, tokenProgram, authority, 6)
		source := testutil.MintTokens(t, ledger, tokenProgram, authority, mint, testutil.PublicKey(owner), 1000)
		assert.EqualValues(t, 1000, testutil.GetTokenBalance(t, ledger, source))

		expectedSource, err := token.GetAssociatedAccountForProgram(testutil.PublicKey(owner), mint, tokenProgram)
		require.NoError(t, err)
		assert.EqualValues(t, expectedSource, source)

		mintInfo, err := ledger.GetAccountInfo(mint, solana.CommitmentFinalized)
		require.NoError(t, err)
		kind, err := token.ResolveMintInterface(mintInfo.Owner, mintInfo.Data)
		require.NoError(t, err)
		assert.EqualValues(t, tokenProgram, token.ProgramForMintKind(kind))

		dest := testutil.CreateAssociatedTokenAccount(t, ledger, tokenProgram, authority, other, mint)

		// only the owner may move tokens
		_, err = testutil.SubmitTransaction(t, ledger, []ed25519.PrivateKey{authority}, token.Transfer(tokenProgram, source, dest, testutil.PublicKey(authority), 1))
		assert.True(t, solana.IsInstructionError(err, token.ErrorOwnerMismatch))

		_, err = testutil.SubmitTransaction(t, ledger, []ed25519.PrivateKey{owner}, token.Transfer(tokenProgram, source, dest, testutil.PublicKey(owner), 1001))
		assert.True(t, solana.IsInstructionError(err, token.ErrorInsufficientFunds))

		_, err = testutil.SubmitTransaction(t, ledger, []ed25519.PrivateKey{owner}, token.Transfer(tokenProgram, source, dest, testutil.PublicKey(owner), 1000))
		require.NoError(t, err)
		assert.EqualValues(t, 0, testutil.GetTokenBalance(t, ledger, source))
		assert.EqualValues(t, 1000, testutil.GetTokenBalance(t, ledger, dest))

		// closing returns rent to the destination
		before, err := ledger.GetAccountInfo(testutil.PublicKey(owner), solana.CommitmentFinalized)
		require.NoError(t, err)
		_, err = testutil.SubmitTransaction(t, ledger, []ed25519.PrivateKey{owner}, token.CloseAccount(tokenProgram, source, testutil.PublicKey(owner), testutil.PublicKey(owner)))
		require.NoError(t, err)

		after, err := ledger.GetAccountInfo(testutil.PublicKey(owner), solana.CommitmentFinalized)
		require.NoError(t, err)
		assert.EqualValues(t, before.Lamports+ledger.MinimumBalance(token.AccountSize)-testFee, after.Lamports)

		_, err = ledger.GetAccountInfo(source, solana.CommitmentFinalized)
		assert.Equal(t, solana.ErrNoAccountInfo, err)

		// accounts with a balance can't be closed
		_, err = testutil.SubmitTransaction(t, ledger, []ed25519.PrivateKey{authority}, token.CloseAccount(tokenProgram, dest, testutil.PublicKey(authority), testutil.PublicKey(authority)))
		assert.True(t, solana.IsInstructionError(err, token.ErrorNonNativeHasBalance))
	}
}

func TestLedger_AssociatedTokenAccount(t *testing.T) {
	ledger := testutil.NewTestLedger(t)

	authority := testutil.NewFundedAccount(t, ledger)
	owner := testutil.GenerateSolanaKeys(t, 1)[0]
	mint := testutil.CreateMint(t, ledger, token.ProgramKey, authority, 0)

	ix, address, err := token.CreateAssociatedTokenAccount(token.ProgramKey, testutil.PublicKey(authority), owner, mint)
	require.NoError(t, err)
	_, err = testutil.SubmitTransaction(t, ledger, []ed25519.PrivateKey{authority}, ix)
	require.NoError(t, err)

	info, err := ledger.GetAccountInfo(address, solana.CommitmentFinalized)
	require.NoError(t, err)
	assert.EqualValues(t, token.ProgramKey, info.Owner)
	assert.Len(t, info.Data, token.AccountSize)
	assert.EqualValues(t, ledger.MinimumBalance(token.AccountSize), info.Lamports)

	var account token.Account
	require.True(t, account.Unmarshal(info.Data))
	assert.EqualValues(t, owner, account.Owner)
	assert.EqualValues(t, mint, account.Mint)
	assert.Equal(t, token.AccountStateInitialized, account.State)

	// a second create fails, the idempotent variant does not
	ix, _, err = token.CreateAssociatedTokenAccount(token.ProgramKey, testutil.PublicKey(authority), owner, mint)
	require.NoError(t, err)
	_, err = testutil.SubmitTransaction(t, ledger, []ed25519.PrivateKey{authority}, ix)
	assert.True(t, solana.IsInstructionError(err, solana.ErrAccountAlreadyInitialized))

	ix, _, err = token.CreateAssociatedTokenAccountIdempotent(token.ProgramKey, testutil.PublicKey(authority), owner, mint)
	require.NoError(t, err)
	_, err = testutil.SubmitTransaction(t, ledger, []ed25519.PrivateKey{authority}, ix)
	assert.NoError(t, err)

	// a mint from the other token program is rejected
	ix, _, err = token.CreateAssociatedTokenAccount(token.Token2022ProgramKey, testutil.PublicKey(authority), owner, mint)
	require.NoError(t, err)
	_, err = testutil.SubmitTransaction(t, ledger, []ed25519.PrivateKey{authority}, ix)
	assert.True(t, solana.IsInstructionError(err, solana.ErrIncorrectProgramID))
}

func TestLedger_RentExemption(t *testing.T) {
	ledger := testutil.NewTestLedger(t)

	payer := testutil.NewFundedAccount(t, ledger)
	account := testutil.NewRandomAccount(t)
	owner := testutil.GenerateSolanaKeys(t, 1)[0]

	_, err := testutil.SubmitTransaction(
		t,
		ledger,
		[]ed25519.PrivateKey{payer, account},
		system.CreateAccount(testutil.PublicKey(payer), testutil.PublicKey(account), owner, 1, 64),
	)
	assertTransactionError(t, err, solana.TransactionErrorInsufficientFundsForRent)

	_, err = testutil.SubmitTransaction(
		t,
		ledger,
		[]ed25519.PrivateKey{payer, account},
		system.CreateAccount(testutil.PublicKey(payer), testutil.PublicKey(account), owner, ledger.MinimumBalance(64), 64),
	)
	require.NoError(t, err)

	// (128 + 64) * 3480 * 2
	assert.EqualValues(t, 1336320, ledger.MinimumBalance(64))
	minimum, err := ledger.GetMinimumBalanceForRentExemption(64)
	require.NoError(t, err)
	assert.EqualValues(t, 1336320, minimum)

	_, err = testutil.SubmitTransaction(
		t,
		ledger,
		[]ed25519.PrivateKey{payer, account},
		system.CreateAccount(testutil.PublicKey(payer), testutil.PublicKey(account), owner, ledger.MinimumBalance(64), 64),
	)
	assert.True(t, solana.IsInstructionError(err, system.ErrorAccountAlreadyInUse))
}

func TestLedger_GetFilteredProgramAccounts(t *testing.T) {
	ledger := testutil.NewTestLedger(t)

	program := testutil.GenerateSolanaKeys(t, 1)[0]
	keys := testutil.GenerateSolanaKeys(t, 3)

	ledger.SetAccount(keys[0], &runtime.Account{Lamports: 1, Owner: program, Data: []byte{0, 1, 2, 3}})
	ledger.SetAccount(keys[1], &runtime.Account{Lamports: 1, Owner: program, Data: []byte{0, 1, 9, 9}})
	ledger.SetAccount(keys[2], &runtime.Account{Lamports: 1, Owner: keys[0], Data: []byte{0, 1, 2, 3}})

	addresses, _, err := ledger.GetFilteredProgramAccounts(program, 1, []byte{1, 2})
	require.NoError(t, err)
	require.Len(t, addresses, 1)
	assert.Equal(t, base58.Encode(keys[0]), addresses[0])

	addresses, _, err = ledger.GetFilteredProgramAccounts(program, 3, []byte{3, 4})
	require.NoError(t, err)
	assert.Empty(t, addresses)

	ledger.SetAccount(keys[0], nil)
	_, ok := ledger.GetAccount(keys[0])
	assert.False(t, ok)
}

func TestLedger_RequestAirdrop(t *testing.T) {
	ledger := testutil.NewTestLedger(t)
	key := testutil.GenerateSolanaKeys(t, 1)[0]

	slot, err := ledger.GetSlot(solana.CommitmentFinalized)
	require.NoError(t, err)

	sig, err := ledger.RequestAirdrop(key, 42, solana.CommitmentFinalized)
	require.NoError(t, err)

	status, err := ledger.GetSignatureStatus(sig, solana.CommitmentFinalized)
	require.NoError(t, err)
	assert.Equal(t, slot, status.Slot)

	info, err := ledger.GetAccountInfo(key, solana.CommitmentFinalized)
	require.NoError(t, err)
	assert.EqualValues(t, 42, info.Lamports)

	newSlot, err := ledger.GetSlot(solana.CommitmentFinalized)
	require.NoError(t, err)
	assert.Equal(t, slot+1, newSlot)

	_, err = ledger.RequestAirdrop(key, 0, solana.CommitmentFinalized)
	assert.Error(t, err)
}

func TestLedger_ExpiredBlockhash(t *testing.T) {
	ledger := runtime.NewLedger(runtime.WithTestOverrides(&runtime.TestOverrides{RecentBlockhashCount: 2}))
	sender := testutil.NewFundedAccount(t, ledger)
	receiver := testutil.GenerateSolanaKeys(t, 1)[0]

	bh, err := ledger.GetLatestBlockhash()
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := ledger.RequestAirdrop(receiver, 1, solana.CommitmentFinalized)
		require.NoError(t, err)
	}

	txn := solana.NewTransaction(testutil.PublicKey(sender), system.Transfer(testutil.PublicKey(sender), receiver, 1))
	txn.SetBlockhash(bh)
	require.NoError(t, txn.Sign(sender))
	_, err = ledger.ExecuteTransaction(context.Background(), txn)
	assertTransactionError(t, err, solana.TransactionErrorBlockhashNotFound)
}

func assertTransactionError(t *testing.T, err error, expected solana.TransactionErrorKey) {
	require.Error(t, err)
	txErr, ok := err.(*solana.TransactionError)
	require.True(t, ok)
	assert.Equal(t, expected, txErr.ErrorKey())
}
