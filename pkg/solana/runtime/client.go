package runtime

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"sort"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/code-payments/code-escrow/pkg/solana"
)

var _ solana.Client = (*Ledger)(nil)

// GetAccountInfo implements solana.Client.GetAccountInfo.
func (l *Ledger) GetAccountInfo(address ed25519.PublicKey, _ solana.Commitment) (solana.AccountInfo, error) {
	account, ok := l.GetAccount(address)
	if !ok {
		return solana.AccountInfo{}, solana.ErrNoAccountInfo
	}

	return solana.AccountInfo{
		Data:       account.Data,
		Owner:      account.Owner,
		Lamports:   account.Lamports,
		Executable: account.Executable,
	}, nil
}

// GetMinimumBalanceForRentExemption implements solana.Client.GetMinimumBalanceForRentExemption.
func (l *Ledger) GetMinimumBalanceForRentExemption(size uint64) (uint64, error) {
	return l.MinimumBalance(size), nil
}

// GetLatestBlockhash implements solana.Client.GetLatestBlockhash.
func (l *Ledger) GetLatestBlockhash() (solana.Blockhash, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.blockhash, nil
}

// GetSlot implements solana.Client.GetSlot.
func (l *Ledger) GetSlot(_ solana.Commitment) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.slot, nil
}

// GetSignatureStatus implements solana.Client.GetSignatureStatus. Committed
// transactions are final immediately.
func (l *Ledger) GetSignatureStatus(sig solana.Signature, _ solana.Commitment) (*solana.SignatureStatus, error) {
	statuses, err := l.GetSignatureStatuses([]solana.Signature{sig})
	if err != nil {
		return nil, err
	}
	if statuses[0] == nil {
		return nil, solana.ErrSignatureNotFound
	}
	return statuses[0], nil
}

// GetSignatureStatuses implements solana.Client.GetSignatureStatuses.
func (l *Ledger) GetSignatureStatuses(sigs []solana.Signature) ([]*solana.SignatureStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	statuses := make([]*solana.SignatureStatus, len(sigs))
	for i, sig := range sigs {
		if status, ok := l.statuses[sig]; ok {
			cloned := *status
			statuses[i] = &cloned
		}
	}
	return statuses, nil
}

// GetFilteredProgramAccounts implements solana.Client.GetFilteredProgramAccounts.
// Addresses are returned in base58 order.
func (l *Ledger) GetFilteredProgramAccounts(program ed25519.PublicKey, offset uint, filterValue []byte) ([]string, uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var addresses []string
	for key, account := range l.accounts {
		if !bytes.Equal(account.Owner, program) {
			continue
		}

		end := int(offset) + len(filterValue)
		if end > len(account.Data) || !bytes.Equal(account.Data[offset:end], filterValue) {
			continue
		}

		addresses = append(addresses, base58.Encode([]byte(key)))
	}
	sort.Strings(addresses)

	return addresses, l.slot, nil
}

// RequestAirdrop implements solana.Client.RequestAirdrop.
func (l *Ledger) RequestAirdrop(address ed25519.PublicKey, lamports uint64, _ solana.Commitment) (solana.Signature, error) {
	if lamports == 0 {
		return solana.Signature{}, errors.New("airdrop amount must be positive")
	}

	l.Airdrop(address, lamports)

	l.mu.Lock()
	defer l.mu.Unlock()

	var lamportBytes, slotBytes [8]byte
	binary.LittleEndian.PutUint64(lamportBytes[:], lamports)
	binary.LittleEndian.PutUint64(slotBytes[:], l.slot)

	h := sha256.New()
	h.Write(address)
	h.Write(lamportBytes[:])
	h.Write(slotBytes[:])
	h.Write(l.blockhash[:])

	var sig solana.Signature
	digest := h.Sum(nil)
	copy(sig[:], digest)
	copy(sig[sha256.Size:], digest)

	l.statuses[sig] = &solana.SignatureStatus{
		Slot:               l.slot,
		ConfirmationStatus: "finalized",
	}
	l.advance()

	return sig, nil
}

// SubmitTransaction implements solana.Client.SubmitTransaction.
func (l *Ledger) SubmitTransaction(txn solana.Transaction, _ solana.Commitment) (solana.Signature, error) {
	return l.ExecuteTransaction(context.Background(), txn)
}
