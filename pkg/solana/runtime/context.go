package runtime

import (
	"bytes"
	"context"
	"crypto/ed25519"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/code-escrow/pkg/solana"
)

// Program is an on-ledger program. Process executes a single instruction
// addressed to the program.
type Program interface {
	Process(ctx *Context, accounts []*AccountInfo, data []byte) error
}

// ProgramFunc adapts a function to a Program.
type ProgramFunc func(ctx *Context, accounts []*AccountInfo, data []byte) error

func (f ProgramFunc) Process(ctx *Context, accounts []*AccountInfo, data []byte) error {
	return f(ctx, accounts, data)
}

// Context is the execution context of a single program invocation.
type Context struct {
	exec  *executor
	frame *frame
}

// ProgramID returns the address of the executing program.
func (c *Context) ProgramID() ed25519.PublicKey {
	return c.frame.program
}

// MinimumBalance returns the rent exempt minimum for size bytes of data.
func (c *Context) MinimumBalance(size uint64) uint64 {
	return minimumBalance(c.exec.ctx, c.exec.conf, size)
}

// Invoke calls another program with the privileges of the current
// instruction.
func (c *Context) Invoke(ix solana.Instruction) error {
	return c.InvokeSigned(ix)
}

// InvokeSigned calls another program, additionally granting signer privileges
// to the program derived addresses of the executing program described by each
// set of signer seeds.
func (c *Context) InvokeSigned(ix solana.Instruction, signerSeeds ...[][]byte) error {
	pdaSigners := make(map[string]struct{})
	for _, seeds := range signerSeeds {
		addr, err := solana.CreateProgramAddress(c.frame.program, seeds...)
		if err != nil {
			return errors.Wrap(solana.ErrInvalidSeeds, err.Error())
		}
		pdaSigners[string(addr)] = struct{}{}
	}

	accounts := make([]*AccountInfo, len(ix.Accounts))
	for i, meta := range ix.Accounts {
		callerInfo := c.frame.find(meta.PublicKey)
		if callerInfo == nil {
			return errors.Wrapf(solana.ErrMissingAccount, "account %s not passed to caller", base58.Encode(meta.PublicKey))
		}

		if meta.IsWritable && !c.frame.isWritable(meta.PublicKey) {
			return errors.Wrapf(solana.ErrPrivilegeEscalation, "account %s is not writable", base58.Encode(meta.PublicKey))
		}

		if meta.IsSigner && !c.frame.isSigner(meta.PublicKey) {
			if _, ok := pdaSigners[string(meta.PublicKey)]; !ok {
				return errors.Wrapf(solana.ErrPrivilegeEscalation, "account %s is not a signer", base58.Encode(meta.PublicKey))
			}
		}

		accounts[i] = &AccountInfo{
			Key:        meta.PublicKey,
			IsSigner:   meta.IsSigner,
			IsWritable: meta.IsWritable,
			account:    callerInfo.account,
		}
	}

	return c.exec.invoke(ix.Program, accounts, ix.Data)
}

// executor runs the instructions of a single transaction against a working
// set of accounts.
type executor struct {
	ctx    context.Context
	log    *logrus.Entry
	conf   *conf
	ledger *Ledger
	stack  []*frame

	working map[string]*Account
}

func (e *executor) load(key ed25519.PublicKey) *Account {
	if account, ok := e.working[string(key)]; ok {
		return account
	}

	var account *Account
	if committed, ok := e.ledger.accounts[string(key)]; ok {
		account = committed.clone()
	} else {
		account = newEmptyAccount()
	}
	e.working[string(key)] = account
	return account
}

func (e *executor) invoke(program ed25519.PublicKey, accounts []*AccountInfo, data []byte) error {
	if uint64(len(e.stack)) >= e.conf.maxInvocationDepth.Get(e.ctx) {
		return solana.ErrCallDepth
	}

	// A program may call itself directly, but not through another program.
	if len(e.stack) > 0 && !bytes.Equal(e.stack[len(e.stack)-1].program, program) {
		for _, f := range e.stack {
			if bytes.Equal(f.program, program) {
				return solana.ErrReentrancyNotAllowed
			}
		}
	}

	p, ok := e.ledger.programs[string(program)]
	if !ok {
		return errors.Wrapf(solana.ErrUnsupportedProgramID, "program %s", base58.Encode(program))
	}

	var caller *frame
	if len(e.stack) > 0 {
		caller = e.stack[len(e.stack)-1]
		if err := caller.verify(e.maxAccountDataLength()); err != nil {
			return err
		}
	}

	e.log.WithFields(logrus.Fields{
		"program": base58.Encode(program),
		"depth":   len(e.stack) + 1,
	}).Debug("invoking program")

	f := newFrame(program, accounts)
	e.stack = append(e.stack, f)
	err := p.Process(&Context{exec: e, frame: f}, accounts, data)
	e.stack = e.stack[:len(e.stack)-1]
	if err != nil {
		return err
	}

	if err := f.verify(e.maxAccountDataLength()); err != nil {
		return err
	}

	if caller != nil {
		caller.snapshot()
	}
	return nil
}

func (e *executor) maxAccountDataLength() uint64 {
	return e.conf.maxAccountDataLength.Get(e.ctx)
}

// frame tracks the accounts of one program invocation and their state when
// the program last gained control.
type frame struct {
	program  ed25519.PublicKey
	accounts []*AccountInfo
	pre      map[string]*Account
}

func newFrame(program ed25519.PublicKey, accounts []*AccountInfo) *frame {
	f := &frame{
		program:  program,
		accounts: accounts,
	}
	f.snapshot()
	return f
}

func (f *frame) snapshot() {
	f.pre = make(map[string]*Account)
	for _, info := range f.accounts {
		f.pre[string(info.Key)] = info.account.clone()
	}
}

func (f *frame) find(key ed25519.PublicKey) *AccountInfo {
	for _, info := range f.accounts {
		if bytes.Equal(info.Key, key) {
			return info
		}
	}
	return nil
}

func (f *frame) isWritable(key ed25519.PublicKey) bool {
	for _, info := range f.accounts {
		if info.IsWritable && bytes.Equal(info.Key, key) {
			return true
		}
	}
	return false
}

func (f *frame) isSigner(key ed25519.PublicKey) bool {
	for _, info := range f.accounts {
		if info.IsSigner && bytes.Equal(info.Key, key) {
			return true
		}
	}
	return false
}

// verify checks every change made since the last snapshot against the
// ownership and privilege rules of the executing program.
func (f *frame) verify(maxDataLength uint64) error {
	var preTotal, postTotal uint64

	for key, pre := range f.pre {
		post := f.find(ed25519.PublicKey(key)).account
		writable := f.isWritable(ed25519.PublicKey(key))
		owned := bytes.Equal(pre.Owner, f.program)

		if !bytes.Equal(pre.Owner, post.Owner) {
			if !writable || !owned || post.Executable || !isZeroed(post.Data) {
				return errors.Wrapf(solana.ErrModifiedProgramID, "account %s", base58.Encode([]byte(key)))
			}
		}

		if pre.Lamports != post.Lamports {
			if !writable {
				return errors.Wrapf(solana.ErrReadonlyLamportChange, "account %s", base58.Encode([]byte(key)))
			}
			if post.Lamports < pre.Lamports && !owned {
				return errors.Wrapf(solana.ErrExternalAccountLamportSpend, "account %s", base58.Encode([]byte(key)))
			}
		}

		if len(pre.Data) != len(post.Data) || !bytes.Equal(pre.Data, post.Data) {
			if !writable {
				return errors.Wrapf(solana.ErrReadonlyDataModified, "account %s", base58.Encode([]byte(key)))
			}
			if !owned {
				return errors.Wrapf(solana.ErrExternalAccountDataModified, "account %s", base58.Encode([]byte(key)))
			}
		}

		if uint64(len(post.Data)) > maxDataLength {
			return errors.Wrapf(solana.ErrInvalidRealloc, "account %s", base58.Encode([]byte(key)))
		}

		if pre.Executable != post.Executable {
			return errors.Wrapf(solana.ErrExecutableModified, "account %s", base58.Encode([]byte(key)))
		}

		preTotal += pre.Lamports
		postTotal += post.Lamports
	}

	if preTotal != postTotal {
		return solana.ErrUnbalancedInstruction
	}
	return nil
}
