package solbc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/rovshanmuradov/solana-launchpad/internal/blockchain/solbc/transaction"
	"github.com/rovshanmuradov/solana-launchpad/internal/domain"
	"github.com/rovshanmuradov/solana-launchpad/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeRPC struct {
	mu          sync.Mutex
	sendErrs    []error
	sends       int
	statuses    map[solana.Signature]*rpc.SignatureStatusesResult
	accounts    map[solana.PublicKey]*rpc.Account
	accountErrs []error
	accountRead int
	slot        uint64
}

func newFakeRPC() *fakeRPC {
	return &fakeRPC{
		statuses: make(map[solana.Signature]*rpc.SignatureStatusesResult),
		accounts: make(map[solana.PublicKey]*rpc.Account),
		slot:     100,
	}
}

func (f *fakeRPC) GetLatestBlockhash(context.Context, rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	return &rpc.GetLatestBlockhashResult{Value: &rpc.LatestBlockhashResult{Blockhash: solana.Hash{7}}}, nil
}

func (f *fakeRPC) SendTransactionWithOpts(_ context.Context, tx *solana.Transaction, _ rpc.TransactionOpts) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.sends
	f.sends++
	if i < len(f.sendErrs) && f.sendErrs[i] != nil {
		return solana.Signature{}, f.sendErrs[i]
	}
	f.statuses[tx.Signatures[0]] = &rpc.SignatureStatusesResult{Slot: f.slot, ConfirmationStatus: rpc.ConfirmationStatusConfirmed}
	return tx.Signatures[0], nil
}

func (f *fakeRPC) GetSignatureStatuses(_ context.Context, _ bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &rpc.GetSignatureStatusesResult{}
	for _, sig := range sigs {
		out.Value = append(out.Value, f.statuses[sig])
	}
	return out, nil
}

func (f *fakeRPC) GetAccountInfoWithOpts(_ context.Context, account solana.PublicKey, _ *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.accountRead
	f.accountRead++
	if i < len(f.accountErrs) && f.accountErrs[i] != nil {
		return nil, f.accountErrs[i]
	}
	acc, ok := f.accounts[account]
	if !ok {
		return nil, rpc.ErrNotFound
	}
	res := &rpc.GetAccountInfoResult{Value: acc}
	res.Context.Slot = f.slot
	return res, nil
}

func testClient(t *testing.T, f *fakeRPC) *Client {
	return NewClient(f, zaptest.NewLogger(t), Config{
		ConfirmTimeout: 200 * time.Millisecond,
		PollInterval:   time.Millisecond,
		Retry:          retry.Policy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond},
	}, nil)
}

func signedTransfer(t *testing.T) *solana.Transaction {
	payer := solana.NewWallet().PrivateKey
	prepared, err := transaction.NewBuilder().
		AddInstruction(system.NewTransferInstruction(5000, payer.PublicKey(), solana.NewWallet().PublicKey()).Build()).
		AddSigner(payer).
		Build(solana.Hash{7})
	require.NoError(t, err)
	return prepared.Tx
}

func TestSubmit_RetriesTransientErrors(t *testing.T) {
	f := newFakeRPC()
	f.sendErrs = []error{
		errors.New("Post \"https://rpc\": dial tcp: connection refused"),
		&jsonrpc.RPCError{Code: -32005, Message: "Node is unhealthy"},
	}
	c := testClient(t, f)
	tx := signedTransfer(t)

	sig, err := c.Submit(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, tx.Signatures[0], sig)
	assert.Equal(t, 3, f.sends)
}

func TestSubmit_PreflightRejectionIsTerminal(t *testing.T) {
	f := newFakeRPC()
	f.sendErrs = []error{&jsonrpc.RPCError{Code: -32002, Message: "Transaction simulation failed: insufficient funds"}}
	c := testClient(t, f)

	_, err := c.Submit(context.Background(), signedTransfer(t))
	assert.ErrorIs(t, err, domain.ErrOnChainFailure)
	assert.Equal(t, 1, f.sends)
}

func TestSubmit_ExhaustedRetriesSurfaceTransient(t *testing.T) {
	f := newFakeRPC()
	for i := 0; i < 5; i++ {
		f.sendErrs = append(f.sendErrs, errors.New("503 Service Unavailable"))
	}
	c := testClient(t, f)

	_, err := c.Submit(context.Background(), signedTransfer(t))
	assert.ErrorIs(t, err, domain.ErrTransientRPC)
	assert.ErrorIs(t, err, retry.ErrExhausted)
	assert.Equal(t, 5, f.sends)
}

func TestSubmit_AlreadyProcessedIsSuccess(t *testing.T) {
	f := newFakeRPC()
	f.sendErrs = []error{&jsonrpc.RPCError{Code: -32002, Message: "Transaction simulation failed: This transaction has already been processed"}}
	c := testClient(t, f)
	tx := signedTransfer(t)

	sig, err := c.Submit(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, tx.Signatures[0], sig)
}

func TestSubmit_RejectsUnsigned(t *testing.T) {
	f := newFakeRPC()
	c := testClient(t, f)
	tx := signedTransfer(t)
	tx.Signatures[0] = solana.Signature{}

	_, err := c.Submit(context.Background(), tx)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Zero(t, f.sends)
}

func TestSendAndConfirm(t *testing.T) {
	f := newFakeRPC()
	c := testClient(t, f)
	tx := signedTransfer(t)

	conf, err := c.SendAndConfirm(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, tx.Signatures[0], conf.Signature)
	assert.Equal(t, uint64(100), conf.Slot)
}

func TestConfirm_UnknownSignatureTimesOut(t *testing.T) {
	c := testClient(t, newFakeRPC())
	_, err := c.Confirm(context.Background(), solana.Signature{9}, rpc.CommitmentConfirmed, 20*time.Millisecond)
	assert.ErrorIs(t, err, domain.ErrConfirmationTimeout)
}

func TestGetAccountState(t *testing.T) {
	f := newFakeRPC()
	present := solana.NewWallet().PublicKey()
	f.accounts[present] = &rpc.Account{
		Lamports: 42,
		Owner:    solana.SystemProgramID,
		Data:     rpc.DataBytesOrJSONFromBytes([]byte{1, 2, 3}),
	}
	f.accountErrs = []error{errors.New("i/o timeout")}
	c := testClient(t, f)

	state, err := c.GetAccountState(context.Background(), present)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, []byte{1, 2, 3}, state.Data)
	assert.Equal(t, uint64(100), state.Slot)
	assert.Equal(t, uint64(42), state.Lamports)

	missing, err := c.GetAccountState(context.Background(), solana.NewWallet().PublicKey())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestLatestBlockhash(t *testing.T) {
	c := testClient(t, newFakeRPC())
	hash, err := c.LatestBlockhash(context.Background())
	require.NoError(t, err)
	assert.Equal(t, solana.Hash{7}, hash)
}
