package escrow_test

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-escrow/pkg/solana"
	"github.com/code-payments/code-escrow/pkg/solana/escrow"
	"github.com/code-payments/code-escrow/pkg/solana/runtime"
	"github.com/code-payments/code-escrow/pkg/solana/system"
	"github.com/code-payments/code-escrow/pkg/solana/token"
	"github.com/code-payments/code-escrow/pkg/testutil"
)

const (
	testFee = 5000

	makerMintABalance = 5000
	takerMintBBalance = 2000
)

type testEnv struct {
	ledger       *runtime.Ledger
	tokenProgram ed25519.PublicKey

	maker ed25519.PrivateKey
	taker ed25519.PrivateKey

	mintA ed25519.PublicKey
	mintB ed25519.PublicKey

	makerAtaA ed25519.PublicKey
	takerAtaB ed25519.PublicKey
}

func setup(t *testing.T, tokenProgram ed25519.PublicKey) *testEnv {
	ledger := testutil.NewTestLedger(t)
	ledger.RegisterProgram(escrow.PROGRAM_ID, escrow.NewProgram(escrow.PROGRAM_ID))

	authority := testutil.NewFundedAccount(t, ledger)
	maker := testutil.NewFundedAccount(t, ledger)
	taker := testutil.NewFundedAccount(t, ledger)

	mintA := testutil.CreateMint(t, ledger, tokenProgram, authority, 6)
	mintB := testutil.CreateMint(t, ledger, tokenProgram, authority, 6)

	return &testEnv{
		ledger:       ledger,
		tokenProgram: tokenProgram,
		maker:        maker,
		taker:        taker,
		mintA:        mintA,
		mintB:        mintB,
		makerAtaA:    testutil.MintTokens(t, ledger, tokenProgram, authority, mintA, testutil.PublicKey(maker), makerMintABalance),
		takerAtaB:    testutil.MintTokens(t, ledger, tokenProgram, authority, mintB, testutil.PublicKey(taker), takerMintBBalance),
	}
}

func (e *testEnv) addresses(t *testing.T, seed uint64) (ed25519.PublicKey, uint8, ed25519.PublicKey) {
	address, bump, err := escrow.GetEscrowAddress(&escrow.GetEscrowAddressArgs{
		Maker: testutil.PublicKey(e.maker),
		Seed:  seed,
	}, escrow.PROGRAM_ID)
	require.NoError(t, err)

	vault, err := escrow.GetVaultAddress(address, e.mintA, e.tokenProgram)
	require.NoError(t, err)

	return address, bump, vault
}

func (e *testEnv) makeInstruction(t *testing.T, seed, receive, amount uint64) solana.Instruction {
	address, _, vault := e.addresses(t, seed)

	return escrow.NewMakeInstruction(
		escrow.PROGRAM_ID,
		&escrow.MakeInstructionAccounts{
			Maker:        testutil.PublicKey(e.maker),
			Escrow:       address,
			MintA:        e.mintA,
			MintB:        e.mintB,
			MakerAtaA:    e.makerAtaA,
			Vault:        vault,
			TokenProgram: e.tokenProgram,
		},
		&escrow.MakeInstructionArgs{
			Seed:    seed,
			Receive: receive,
			Amount:  amount,
		},
	)
}

func (e *testEnv) takeInstruction(t *testing.T, seed uint64) solana.Instruction {
	address, _, vault := e.addresses(t, seed)

	takerAtaA, err := token.GetAssociatedAccountForProgram(testutil.PublicKey(e.taker), e.mintA, e.tokenProgram)
	require.NoError(t, err)
	makerAtaB, err := token.GetAssociatedAccountForProgram(testutil.PublicKey(e.maker), e.mintB, e.tokenProgram)
	require.NoError(t, err)

	return escrow.NewTakeInstruction(
		escrow.PROGRAM_ID,
		&escrow.TakeInstructionAccounts{
			Taker:        testutil.PublicKey(e.taker),
			Maker:        testutil.PublicKey(e.maker),
			Escrow:       address,
			MintA:        e.mintA,
			MintB:        e.mintB,
			Vault:        vault,
			TakerAtaA:    takerAtaA,
			TakerAtaB:    e.takerAtaB,
			MakerAtaB:    makerAtaB,
			TokenProgram: e.tokenProgram,
		},
	)
}

func (e *testEnv) refundInstruction(t *testing.T, seed uint64) solana.Instruction {
	address, _, vault := e.addresses(t, seed)

	return escrow.NewRefundInstruction(
		escrow.PROGRAM_ID,
		&escrow.RefundInstructionAccounts{
			Maker:        testutil.PublicKey(e.maker),
			Escrow:       address,
			MintA:        e.mintA,
			MakerAtaA:    e.makerAtaA,
			Vault:        vault,
			TokenProgram: e.tokenProgram,
		},
	)
}

func (e *testEnv) make(t *testing.T, seed, receive, amount uint64) {
	_, err := testutil.SubmitTransaction(t, e.ledger, []ed25519.PrivateKey{e.maker}, e.makeInstruction(t, seed, receive, amount))
	require.NoError(t, err)
}

func (e *testEnv) lamports(address ed25519.PublicKey) uint64 {
	account, ok := e.ledger.GetAccount(address)
	if !ok {
		return 0
	}
	return account.Lamports
}

func (e *testEnv) assertClosed(t *testing.T, seed uint64) {
	address, _, vault := e.addresses(t, seed)

	_, ok := e.ledger.GetAccount(address)
	assert.False(t, ok)
	_, ok = e.ledger.GetAccount(vault)
	assert.False(t, ok)

	_, err := e.ledger.GetAccountInfo(address, solana.CommitmentFinalized)
	assert.Equal(t, solana.ErrNoAccountInfo, err)
}

func assertProgramError(t *testing.T, err error, expected error) {
	require.Error(t, err)
	assert.True(t, solana.IsInstructionError(err, expected), "expected %v, got %v", expected, err)
	assert.Equal(t, expected.Error(), escrow.GetProgramError(err).Error())
}

func TestEscrow_MakeAndTake(t *testing.T) {
	for _, tokenProgram := range []ed25519.PublicKey{token.ProgramKey, token.Token2022ProgramKey} {
		env := setup(t, tokenProgram)
		address, bump, vault := env.addresses(t, 7)

		env.make(t, 7, 500, 1000)

		account, ok := env.ledger.GetAccount(address)
		require.True(t, ok)
		assert.EqualValues(t, escrow.PROGRAM_ID, account.Owner)
		assert.EqualValues(t, env.ledger.MinimumBalance(escrow.EscrowAccountSize), account.Lamports)

		var record escrow.EscrowAccount
		require.NoError(t, record.Unmarshal(account.Data))
		assert.EqualValues(t, 7, record.Seed)
		assert.EqualValues(t, testutil.PublicKey(env.maker), record.Maker)
		assert.EqualValues(t, env.mintA, record.MintA)
		assert.EqualValues(t, env.mintB, record.MintB)
		assert.EqualValues(t, 500, record.Receive)
		assert.Equal(t, bump, record.Bump)

		vaultAccount, err := token.NewClient(env.ledger).GetAccount(vault, env.mintA, solana.CommitmentFinalized)
		require.NoError(t, err)
		assert.EqualValues(t, 1000, vaultAccount.Amount)
		assert.EqualValues(t, address, vaultAccount.Owner)
		assert.EqualValues(t, makerMintABalance-1000, testutil.GetTokenBalance(t, env.ledger, env.makerAtaA))

		expectedMakerLamports := testutil.DefaultAirdrop -
			testFee -
			env.ledger.MinimumBalance(escrow.EscrowAccountSize) -
			env.ledger.MinimumBalance(token.AccountSize)
		assert.EqualValues(t, expectedMakerLamports, env.lamports(testutil.PublicKey(env.maker)))

		_, err = testutil.SubmitTransaction(t, env.ledger, []ed25519.PrivateKey{env.taker}, env.takeInstruction(t, 7))
		require.NoError(t, err)

		takerAtaA, err := token.GetAssociatedAccountForProgram(testutil.PublicKey(env.taker), env.mintA, tokenProgram)
		require.NoError(t, err)
		makerAtaB, err := token.GetAssociatedAccountForProgram(testutil.PublicKey(env.maker), env.mintB, tokenProgram)
		require.NoError(t, err)

		assert.EqualValues(t, 1000, testutil.GetTokenBalance(t, env.ledger, takerAtaA))
		assert.EqualValues(t, 500, testutil.GetTokenBalance(t, env.ledger, makerAtaB))
		assert.EqualValues(t, takerMintBBalance-500, testutil.GetTokenBalance(t, env.ledger, env.takerAtaB))
		assert.EqualValues(t, makerMintABalance-1000, testutil.GetTokenBalance(t, env.ledger, env.makerAtaA))

		// The maker recovers the rent of both closed accounts.
		assert.EqualValues(t, testutil.DefaultAirdrop-testFee, env.lamports(testutil.PublicKey(env.maker)))

		env.assertClosed(t, 7)
	}
}

func TestEscrow_Refund(t *testing.T) {
	env := setup(t, token.ProgramKey)

	env.make(t, 7, 500, 1000)
	assert.EqualValues(t, makerMintABalance-1000, testutil.GetTokenBalance(t, env.ledger, env.makerAtaA))

	_, err := testutil.SubmitTransaction(t, env.ledger, []ed25519.PrivateKey{env.maker}, env.refundInstruction(t, 7))
	require.NoError(t, err)

	assert.EqualValues(t, makerMintABalance, testutil.GetTokenBalance(t, env.ledger, env.makerAtaA))
	assert.EqualValues(t, takerMintBBalance, testutil.GetTokenBalance(t, env.ledger, env.takerAtaB))
	assert.EqualValues(t, testutil.DefaultAirdrop-2*testFee, env.lamports(testutil.PublicKey(env.maker)))

	makerAtaB, err := token.GetAssociatedAccountForProgram(testutil.PublicKey(env.maker), env.mintB, token.ProgramKey)
	require.NoError(t, err)
	_, ok := env.ledger.GetAccount(makerAtaB)
	assert.False(t, ok)

	env.assertClosed(t, 7)
}

func TestEscrow_Replay(t *testing.T) {
	env := setup(t, token.ProgramKey)

	env.make(t, 1, 10, 20)
	_, err := testutil.SubmitTransaction(t, env.ledger, []ed25519.PrivateKey{env.taker}, env.takeInstruction(t, 1))
	require.NoError(t, err)

	_, err = testutil.SubmitTransaction(t, env.ledger, []ed25519.PrivateKey{env.taker}, env.takeInstruction(t, 1))
	assertProgramError(t, err, solana.ErrInvalidAccountOwner)

	_, err = testutil.SubmitTransaction(t, env.ledger, []ed25519.PrivateKey{env.maker}, env.refundInstruction(t, 1))
	assertProgramError(t, err, solana.ErrInvalidAccountOwner)

	env.make(t, 2, 10, 20)
	_, err = testutil.SubmitTransaction(t, env.ledger, []ed25519.PrivateKey{env.maker}, env.refundInstruction(t, 2))
	require.NoError(t, err)

	_, err = testutil.SubmitTransaction(t, env.ledger, []ed25519.PrivateKey{env.maker}, env.refundInstruction(t, 2))
	assertProgramError(t, err, solana.ErrInvalidAccountOwner)

	// A closed escrow can be recreated under the same seed.
	env.make(t, 2, 10, 20)
}

func TestEscrow_MakeValidation(t *testing.T) {
	env := setup(t, token.ProgramKey)
	address, _, _ := env.addresses(t, 7)

	for _, tc := range []struct {
		name     string
		ix       func() solana.Instruction
		signers  []ed25519.PrivateKey
		expected error
	}{
		{
			name: "zero amount",
			ix: func() solana.Instruction {
				return env.makeInstruction(t, 7, 500, 0)
			},
			expected: solana.ErrInvalidInstructionData,
		},
		{
			name: "zero receive",
			ix: func() solana.Instruction {
				return env.makeInstruction(t, 7, 0, 1000)
			},
			expected: solana.ErrInvalidInstructionData,
		},
		{
			name: "short payload",
			ix: func() solana.Instruction {
				ix := env.makeInstruction(t, 7, 500, 1000)
				ix.Data = ix.Data[:20]
				return ix
			},
			expected: solana.ErrInvalidInstructionData,
		},
		{
			name: "long payload",
			ix: func() solana.Instruction {
				ix := env.makeInstruction(t, 7, 500, 1000)
				ix.Data = append(ix.Data, 0)
				return ix
			},
			expected: solana.ErrInvalidInstructionData,
		},
		{
			name: "empty data",
			ix: func() solana.Instruction {
				ix := env.makeInstruction(t, 7, 500, 1000)
				ix.Data = nil
				return ix
			},
			expected: solana.ErrInvalidInstructionData,
		},
		{
			name: "unknown opcode",
			ix: func() solana.Instruction {
				ix := env.makeInstruction(t, 7, 500, 1000)
				ix.Data[0] = 3
				return ix
			},
			expected: solana.ErrInvalidInstructionData,
		},
		{
			name: "not enough accounts",
			ix: func() solana.Instruction {
				ix := env.makeInstruction(t, 7, 500, 1000)
				ix.Accounts = ix.Accounts[:7]
				return ix
			},
			expected: solana.ErrNotEnoughAccountKeys,
		},
		{
			name: "missing associated token program",
			ix: func() solana.Instruction {
				ix := env.makeInstruction(t, 7, 500, 1000)
				ix.Accounts = ix.Accounts[:8]
				return ix
			},
			expected: solana.ErrNotEnoughAccountKeys,
		},
		{
			name: "incorrect associated token program",
			ix: func() solana.Instruction {
				ix := env.makeInstruction(t, 7, 500, 1000)
				ix.Accounts[8].PublicKey = testutil.GenerateSolanaKeys(t, 1)[0]
				return ix
			},
			expected: solana.ErrIncorrectProgramID,
		},
		{
			name: "maker not signer",
			ix: func() solana.Instruction {
				ix := env.makeInstruction(t, 7, 500, 1000)
				ix.Accounts[0].IsSigner = false
				return ix
			},
			signers:  []ed25519.PrivateKey{env.taker},
			expected: escrow.ErrNotSigner,
		},
		{
			name: "escrow address mismatch",
			ix: func() solana.Instruction {
				ix := env.makeInstruction(t, 7, 500, 1000)
				other, _, _ := env.addresses(t, 8)
				ix.Accounts[1].PublicKey = other
				return ix
			},
			expected: solana.ErrInvalidAccountData,
		},
		{
			name: "vault address mismatch",
			ix: func() solana.Instruction {
				ix := env.makeInstruction(t, 7, 500, 1000)
				ix.Accounts[5].PublicKey = testutil.GenerateSolanaKeys(t, 1)[0]
				return ix
			},
			expected: solana.ErrInvalidAccountData,
		},
		{
			name: "incorrect system program",
			ix: func() solana.Instruction {
				ix := env.makeInstruction(t, 7, 500, 1000)
				ix.Accounts[6].PublicKey = token.ProgramKey
				return ix
			},
			expected: solana.ErrIncorrectProgramID,
		},
		{
			name: "mint not owned by token program",
			ix: func() solana.Instruction {
				ix := env.makeInstruction(t, 7, 500, 1000)
				ix.Accounts[3].PublicKey = testutil.PublicKey(env.taker)
				return ix
			},
			expected: solana.ErrInvalidAccountOwner,
		},
		{
			name: "mints under different token program",
			ix: func() solana.Instruction {
				ix := env.makeInstruction(t, 7, 500, 1000)
				ix.Accounts[7].PublicKey = token.Token2022ProgramKey
				return ix
			},
			expected: solana.ErrIncorrectProgramID,
		},
		{
			name: "insufficient mint a",
			ix: func() solana.Instruction {
				return env.makeInstruction(t, 7, 500, makerMintABalance+1)
			},
			expected: token.ErrorInsufficientFunds,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			signers := tc.signers
			if signers == nil {
				signers = []ed25519.PrivateKey{env.maker}
			}

			_, err := testutil.SubmitTransaction(t, env.ledger, signers, tc.ix())
			assertProgramError(t, err, tc.expected)

			_, ok := env.ledger.GetAccount(address)
			assert.False(t, ok)
			assert.EqualValues(t, makerMintABalance, testutil.GetTokenBalance(t, env.ledger, env.makerAtaA))
		})
	}
}

func TestEscrow_DuplicateMake(t *testing.T) {
	env := setup(t, token.ProgramKey)

	env.make(t, 7, 500, 1000)

	_, err := testutil.SubmitTransaction(t, env.ledger, []ed25519.PrivateKey{env.maker}, env.makeInstruction(t, 7, 600, 100))
	assertProgramError(t, err, solana.ErrAccountAlreadyInitialized)

	// Distinct seeds produce independent escrows.
	env.make(t, 8, 600, 100)
	assert.EqualValues(t, makerMintABalance-1100, testutil.GetTokenBalance(t, env.ledger, env.makerAtaA))
}

func TestEscrow_TakeValidation(t *testing.T) {
	env := setup(t, token.ProgramKey)
	env.make(t, 7, 500, 1000)

	for _, tc := range []struct {
		name     string
		ix       func() solana.Instruction
		signers  []ed25519.PrivateKey
		expected error
	}{
		{
			name: "not enough accounts",
			ix: func() solana.Instruction {
				ix := env.takeInstruction(t, 7)
				ix.Accounts = ix.Accounts[:10]
				return ix
			},
			expected: solana.ErrNotEnoughAccountKeys,
		},
		{
			name: "missing associated token program",
			ix: func() solana.Instruction {
				ix := env.takeInstruction(t, 7)
				ix.Accounts = ix.Accounts[:11]
				return ix
			},
			expected: solana.ErrNotEnoughAccountKeys,
		},
		{
			name: "incorrect associated token program",
			ix: func() solana.Instruction {
				ix := env.takeInstruction(t, 7)
				ix.Accounts[11].PublicKey = testutil.GenerateSolanaKeys(t, 1)[0]
				return ix
			},
			expected: solana.ErrIncorrectProgramID,
		},
		{
			name: "taker not signer",
			ix: func() solana.Instruction {
				ix := env.takeInstruction(t, 7)
				ix.Accounts[0].IsSigner = false
				return ix
			},
			signers:  []ed25519.PrivateKey{env.maker},
			expected: escrow.ErrNotSigner,
		},
		{
			name: "wrong maker",
			ix: func() solana.Instruction {
				ix := env.takeInstruction(t, 7)
				ix.Accounts[1].PublicKey = testutil.GenerateSolanaKeys(t, 1)[0]
				return ix
			},
			expected: solana.ErrInvalidAccountOwner,
		},
		{
			name: "wrong mint b",
			ix: func() solana.Instruction {
				ix := env.takeInstruction(t, 7)
				ix.Accounts[4].PublicKey = env.mintA
				return ix
			},
			expected: solana.ErrInvalidAccountData,
		},
		{
			name: "wrong vault",
			ix: func() solana.Instruction {
				ix := env.takeInstruction(t, 7)
				ix.Accounts[5].PublicKey = env.makerAtaA
				return ix
			},
			expected: solana.ErrInvalidAccountData,
		},
		{
			name: "wrong taker destination",
			ix: func() solana.Instruction {
				ix := env.takeInstruction(t, 7)
				ix.Accounts[6].PublicKey = env.takerAtaB
				return ix
			},
			expected: solana.ErrInvalidAccountData,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			signers := tc.signers
			if signers == nil {
				signers = []ed25519.PrivateKey{env.taker}
			}

			_, err := testutil.SubmitTransaction(t, env.ledger, signers, tc.ix())
			assertProgramError(t, err, tc.expected)

			_, _, vault := env.addresses(t, 7)
			assert.EqualValues(t, 1000, testutil.GetTokenBalance(t, env.ledger, vault))
			assert.EqualValues(t, takerMintBBalance, testutil.GetTokenBalance(t, env.ledger, env.takerAtaB))
		})
	}
}

func TestEscrow_TakeInsufficientFunds(t *testing.T) {
	env := setup(t, token.ProgramKey)
	address, _, vault := env.addresses(t, 7)

	env.make(t, 7, takerMintBBalance+1, 1000)

	_, err := testutil.SubmitTransaction(t, env.ledger, []ed25519.PrivateKey{env.taker}, env.takeInstruction(t, 7))
	assertProgramError(t, err, token.ErrorInsufficientFunds)

	// Nothing moved, including the asset A leg that precedes the failure.
	takerAtaA, err := token.GetAssociatedAccountForProgram(testutil.PublicKey(env.taker), env.mintA, token.ProgramKey)
	require.NoError(t, err)
	_, ok := env.ledger.GetAccount(takerAtaA)
	assert.False(t, ok)

	assert.EqualValues(t, 1000, testutil.GetTokenBalance(t, env.ledger, vault))
	assert.EqualValues(t, takerMintBBalance, testutil.GetTokenBalance(t, env.ledger, env.takerAtaB))

	account, ok := env.ledger.GetAccount(address)
	require.True(t, ok)
	assert.EqualValues(t, escrow.PROGRAM_ID, account.Owner)
}

func TestEscrow_RefundValidation(t *testing.T) {
	env := setup(t, token.ProgramKey)
	env.make(t, 7, 500, 1000)

	t.Run("not enough accounts", func(t *testing.T) {
		ix := env.refundInstruction(t, 7)
		ix.Accounts = ix.Accounts[:6]

		_, err := testutil.SubmitTransaction(t, env.ledger, []ed25519.PrivateKey{env.maker}, ix)
		assertProgramError(t, err, solana.ErrNotEnoughAccountKeys)
	})

	t.Run("missing associated token program", func(t *testing.T) {
		ix := env.refundInstruction(t, 7)
		ix.Accounts = ix.Accounts[:7]

		_, err := testutil.SubmitTransaction(t, env.ledger, []ed25519.PrivateKey{env.maker}, ix)
		assertProgramError(t, err, solana.ErrNotEnoughAccountKeys)
	})

	t.Run("incorrect associated token program", func(t *testing.T) {
		ix := env.refundInstruction(t, 7)
		ix.Accounts[7].PublicKey = testutil.GenerateSolanaKeys(t, 1)[0]

		_, err := testutil.SubmitTransaction(t, env.ledger, []ed25519.PrivateKey{env.maker}, ix)
		assertProgramError(t, err, solana.ErrIncorrectProgramID)
	})

	t.Run("maker not signer", func(t *testing.T) {
		ix := env.refundInstruction(t, 7)
		ix.Accounts[0].IsSigner = false

		_, err := testutil.SubmitTransaction(t, env.ledger, []ed25519.PrivateKey{env.taker}, ix)
		assertProgramError(t, err, escrow.ErrNotSigner)
	})

	t.Run("refund by someone else", func(t *testing.T) {
		ix := env.refundInstruction(t, 7)
		ix.Accounts[0].PublicKey = testutil.PublicKey(env.taker)

		_, err := testutil.SubmitTransaction(t, env.ledger, []ed25519.PrivateKey{env.taker}, ix)
		assertProgramError(t, err, solana.ErrInvalidAccountOwner)
	})

	t.Run("mint a not a mint", func(t *testing.T) {
		ix := env.refundInstruction(t, 7)
		ix.Accounts[2].PublicKey = env.makerAtaA

		_, err := testutil.SubmitTransaction(t, env.ledger, []ed25519.PrivateKey{env.maker}, ix)
		assertProgramError(t, err, solana.ErrInvalidAccountData)
	})

	_, _, vault := env.addresses(t, 7)
	assert.EqualValues(t, 1000, testutil.GetTokenBalance(t, env.ledger, vault))
	assert.EqualValues(t, makerMintABalance-1000, testutil.GetTokenBalance(t, env.ledger, env.makerAtaA))
}

func TestEscrow_ForgedRecord(t *testing.T) {
	env := setup(t, token.ProgramKey)
	address, bump, _ := env.addresses(t, 7)

	record := &escrow.EscrowAccount{
		Seed:    7,
		Maker:   testutil.PublicKey(env.maker),
		MintA:   env.mintA,
		MintB:   env.mintB,
		Receive: 1,
		Bump:    bump,
	}

	refund := func(escrowAddress ed25519.PublicKey) error {
		ix := env.refundInstruction(t, 7)
		ix.Accounts[1].PublicKey = escrowAddress
		_, err := testutil.SubmitTransaction(t, env.ledger, []ed25519.PrivateKey{env.maker}, ix)
		return err
	}

	// A program owned record at an address that doesn't derive from its
	// contents.
	forged := testutil.GenerateSolanaKeys(t, 1)[0]
	env.ledger.SetAccount(forged, &runtime.Account{
		Lamports: env.ledger.MinimumBalance(escrow.EscrowAccountSize),
		Data:     record.Marshal(),
		Owner:    escrow.PROGRAM_ID,
	})
	assertProgramError(t, refund(forged), solana.ErrInvalidAccountOwner)

	// A record at the right address, but not owned by the program.
	env.ledger.SetAccount(address, &runtime.Account{
		Lamports: env.ledger.MinimumBalance(escrow.EscrowAccountSize),
		Data:     record.Marshal(),
		Owner:    system.ProgramKey[:],
	})
	assertProgramError(t, refund(address), solana.ErrInvalidAccountOwner)

	// A program owned record of the wrong size.
	env.ledger.SetAccount(address, &runtime.Account{
		Lamports: env.ledger.MinimumBalance(escrow.EscrowAccountSize + 1),
		Data:     append(record.Marshal(), 0),
		Owner:    escrow.PROGRAM_ID,
	})
	assertProgramError(t, refund(address), solana.ErrInvalidAccountData)

	// A record whose stored bump doesn't reproduce its address.
	record.Bump--
	env.ledger.SetAccount(address, &runtime.Account{
		Lamports: env.ledger.MinimumBalance(escrow.EscrowAccountSize),
		Data:     record.Marshal(),
		Owner:    escrow.PROGRAM_ID,
	})
	assertProgramError(t, refund(address), solana.ErrInvalidAccountOwner)
}

func TestEscrow_Token2022ExtendedMint(t *testing.T) {
	env := setup(t, token.Token2022ProgramKey)

	account, ok := env.ledger.GetAccount(env.mintA)
	require.True(t, ok)

	extended := append(account.Data, make([]byte, 83)...)
	extended[0] = 2
	env.ledger.SetAccount(env.mintA, &runtime.Account{
		Lamports: env.ledger.MinimumBalance(uint64(len(extended))),
		Data:     extended,
		Owner:    token.Token2022ProgramKey,
	})

	env.make(t, 7, 500, 1000)
	_, err := testutil.SubmitTransaction(t, env.ledger, []ed25519.PrivateKey{env.maker}, env.refundInstruction(t, 7))
	require.NoError(t, err)
	assert.EqualValues(t, makerMintABalance, testutil.GetTokenBalance(t, env.ledger, env.makerAtaA))

	// Without the mint discriminator an oversized mint is rejected.
	extended[0] = 1
	env.ledger.SetAccount(env.mintA, &runtime.Account{
		Lamports: env.ledger.MinimumBalance(uint64(len(extended))),
		Data:     extended,
		Owner:    token.Token2022ProgramKey,
	})

	_, err = testutil.SubmitTransaction(t, env.ledger, []ed25519.PrivateKey{env.maker}, env.makeInstruction(t, 7, 500, 1000))
	assertProgramError(t, err, solana.ErrInvalidAccountData)
}

func TestEscrow_LegacyMintSizeIsStrict(t *testing.T) {
	env := setup(t, token.ProgramKey)

	account, ok := env.ledger.GetAccount(env.mintB)
	require.True(t, ok)

	extended := append(account.Data, make([]byte, 83)...)
	extended[0] = 2
	env.ledger.SetAccount(env.mintB, &runtime.Account{
		Lamports: env.ledger.MinimumBalance(uint64(len(extended))),
		Data:     extended,
		Owner:    token.ProgramKey,
	})

	_, err := testutil.SubmitTransaction(t, env.ledger, []ed25519.PrivateKey{env.maker}, env.makeInstruction(t, 7, 500, 1000))
	assertProgramError(t, err, solana.ErrInvalidAccountData)
}
