package token

import (
	"bytes"
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/code-payments/code-escrow/pkg/solana"
)

var (
	// ErrAccountNotFound indicates there is no account for the given address.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInvalidTokenAccount indicates that a Solana account exists at the
	// given address, but it is either not initialized, or not configured correctly.
	ErrInvalidTokenAccount = errors.New("invalid token account")
	// ErrInvalidMint indicates that an account exists at the given address, but
	// it is not a mint under either token program.
	ErrInvalidMint = errors.New("invalid mint")
)

// Client provides utilities for accessing token accounts and mints under
// either token program.
type Client struct {
	sc solana.Client
}

// NewClient creates a new Client.
func NewClient(sc solana.Client) *Client {
	return &Client{
		sc: sc,
	}
}

// GetAccount returns the token account info for the specified account.
//
// If the account is not initialized, or belongs to a different mint than
// the one provided, then ErrInvalidTokenAccount is returned. A nil mint
// skips the mint check.
func (c *Client) GetAccount(accountID, mint ed25519.PublicKey, commitment solana.Commitment) (*Account, error) {
	accountInfo, err := c.sc.GetAccountInfo(accountID, commitment)
	if err == solana.ErrNoAccountInfo {
		return nil, ErrAccountNotFound
	} else if err != nil {
		return nil, errors.Wrap(err, "failed to get account info")
	}

	if !IsTokenProgram(accountInfo.Owner) {
		return nil, ErrInvalidTokenAccount
	}

	var account Account
	if !account.Unmarshal(accountInfo.Data) || account.State == AccountStateUninitialized {
		return nil, ErrInvalidTokenAccount
	}

	if mint != nil && !bytes.Equal(mint, account.Mint) {
		return nil, ErrInvalidTokenAccount
	}

	return &account, nil
}

// GetMint returns the mint state along with the token program that owns it.
func (c *Client) GetMint(mint ed25519.PublicKey, commitment solana.Commitment) (*Mint, MintKind, error) {
	accountInfo, err := c.sc.GetAccountInfo(mint, commitment)
	if err == solana.ErrNoAccountInfo {
		return nil, MintKindUnknown, ErrAccountNotFound
	} else if err != nil {
		return nil, MintKindUnknown, errors.Wrap(err, "failed to get account info")
	}

	kind, err := ResolveMintInterface(accountInfo.Owner, accountInfo.Data)
	if err != nil {
		return nil, MintKindUnknown, ErrInvalidMint
	}

	var m Mint
	if !m.Unmarshal(accountInfo.Data) {
		// Extended mints with a bare discriminator carry no base state.
		return &Mint{}, kind, nil
	}
	return &m, kind, nil
}
