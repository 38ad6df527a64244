package testutil

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-escrow/pkg/solana"
	"github.com/code-payments/code-escrow/pkg/solana/runtime"
	"github.com/code-payments/code-escrow/pkg/solana/system"
	"github.com/code-payments/code-escrow/pkg/solana/token"
)

// DefaultAirdrop is the balance given to accounts created by NewFundedAccount.
const DefaultAirdrop = 10_000_000_000

// NewTestLedger returns an in-process ledger with test defaults.
func NewTestLedger(t *testing.T) *runtime.Ledger {
	return runtime.NewLedger(runtime.WithTestOverrides(&runtime.TestOverrides{}))
}

// NewFundedAccount returns a new keypair whose system account holds
// DefaultAirdrop lamports.
func NewFundedAccount(t *testing.T, ledger *runtime.Ledger) ed25519.PrivateKey {
	account := NewRandomAccount(t)
	ledger.Airdrop(PublicKey(account), DefaultAirdrop)
	return account
}

// SubmitTransaction signs and executes a transaction paid for by the first
// signer.
func SubmitTransaction(t *testing.T, ledger *runtime.Ledger, signers []ed25519.PrivateKey, instructions ...solana.Instruction) (solana.Signature, error) {
	require.NotEmpty(t, signers)

	txn := solana.NewTransaction(PublicKey(signers[0]), instructions...)

	bh, err := ledger.GetLatestBlockhash()
	require.NoError(t, err)
	txn.SetBlockhash(bh)
	require.NoError(t, txn.Sign(signers...))

	return ledger.ExecuteTransaction(context.Background(), txn)
}

// CreateMint creates and initializes a mint under tokenProgram with authority
// as its mint authority.
func CreateMint(t *testing.T, ledger *runtime.Ledger, tokenProgram ed25519.PublicKey, authority ed25519.PrivateKey, decimals byte) ed25519.PublicKey {
	mint := NewRandomAccount(t)

	_, err := SubmitTransaction(
		t,
		ledger,
		[]ed25519.PrivateKey{authority, mint},
		system.CreateAccount(
			PublicKey(authority),
			PublicKey(mint),
			tokenProgram,
			ledger.MinimumBalance(token.MintSize),
			token.MintSize,
		),
		token.InitializeMint2(tokenProgram, PublicKey(mint), decimals, PublicKey(authority)),
	)
	require.NoError(t, err)

	return PublicKey(mint)
}

// CreateAssociatedTokenAccount creates the associated token account of owner
// for mint, paid for by payer.
func CreateAssociatedTokenAccount(t *testing.T, ledger *runtime.Ledger, tokenProgram ed25519.PublicKey, payer ed25519.PrivateKey, owner, mint ed25519.PublicKey) ed25519.PublicKey {
	ix, address, err := token.CreateAssociatedTokenAccountIdempotent(tokenProgram, PublicKey(payer), owner, mint)
	require.NoError(t, err)

	_, err = SubmitTransaction(t, ledger, []ed25519.PrivateKey{payer}, ix)
	require.NoError(t, err)

	return address
}

// MintTokens mints amount tokens to the associated token account of owner,
// creating it if needed.
func MintTokens(t *testing.T, ledger *runtime.Ledger, tokenProgram ed25519.PublicKey, authority ed25519.PrivateKey, mint, owner ed25519.PublicKey, amount uint64) ed25519.PublicKey {
	address := CreateAssociatedTokenAccount(t, ledger, tokenProgram, authority, owner, mint)

	_, err := SubmitTransaction(
		t,
		ledger,
		[]ed25519.PrivateKey{authority},
		token.MintTo(tokenProgram, mint, address, PublicKey(authority), amount),
	)
	require.NoError(t, err)

	return address
}

// GetTokenBalance returns the token balance held at address, or zero if the
// account doesn't exist.
func GetTokenBalance(t *testing.T, ledger *runtime.Ledger, address ed25519.PublicKey) uint64 {
	account, ok := ledger.GetAccount(address)
	if !ok {
		return 0
	}

	var tokenAccount token.Account
	require.True(t, tokenAccount.Unmarshal(account.Data))
	return tokenAccount.Amount
}
