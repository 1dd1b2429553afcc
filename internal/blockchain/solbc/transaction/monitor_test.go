package transaction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rovshanmuradov/solana-launchpad/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// scriptedStatuses отдает статусы по очереди, последний повторяется.
type scriptedStatuses struct {
	mu      sync.Mutex
	results []*rpc.SignatureStatusesResult
	errs    []error
	calls   int
}

func (s *scriptedStatuses) GetSignatureStatuses(_ context.Context, _ bool, _ ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	return &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{s.results[i]}}, nil
}

func fastConfig() Config {
	return Config{
		Commitment:      rpc.CommitmentConfirmed,
		ConfirmTimeout:  time.Second,
		PollInterval:    time.Millisecond,
		MaxPollInterval: 5 * time.Millisecond,
	}
}

func TestAwaitConfirmation_PollsUntilTarget(t *testing.T) {
	reader := &scriptedStatuses{
		errs: []error{errors.New("429 Too Many Requests")},
		results: []*rpc.SignatureStatusesResult{
			nil,
			nil,
			{Slot: 10, ConfirmationStatus: rpc.ConfirmationStatusProcessed},
			{Slot: 11, ConfirmationStatus: rpc.ConfirmationStatusConfirmed},
		},
	}
	m := NewMonitor(reader, zaptest.NewLogger(t), fastConfig(), nil)

	conf, err := m.AwaitConfirmation(context.Background(), solana.Signature{1}, "", 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), conf.Slot)
	assert.Equal(t, rpc.ConfirmationStatusConfirmed, conf.Status)
	assert.Equal(t, 4, reader.calls)
}

func TestAwaitConfirmation_OnChainFailure(t *testing.T) {
	reader := &scriptedStatuses{results: []*rpc.SignatureStatusesResult{
		{Slot: 5, ConfirmationStatus: rpc.ConfirmationStatusConfirmed, Err: map[string]interface{}{"InstructionError": []interface{}{2, map[string]interface{}{"Custom": 6004}}}},
	}}
	m := NewMonitor(reader, zaptest.NewLogger(t), fastConfig(), nil)

	_, err := m.AwaitConfirmation(context.Background(), solana.Signature{2}, rpc.CommitmentConfirmed, time.Second)
	assert.ErrorIs(t, err, domain.ErrOnChainFailure)
	assert.NotErrorIs(t, err, domain.ErrConfirmationTimeout)
}

func TestAwaitConfirmation_TimeoutIsDistinct(t *testing.T) {
	reader := &scriptedStatuses{results: []*rpc.SignatureStatusesResult{nil}}
	m := NewMonitor(reader, zaptest.NewLogger(t), fastConfig(), nil)

	_, err := m.AwaitConfirmation(context.Background(), solana.Signature{3}, rpc.CommitmentFinalized, 30*time.Millisecond)
	assert.ErrorIs(t, err, domain.ErrConfirmationTimeout)
	assert.NotErrorIs(t, err, domain.ErrOnChainFailure)
	assert.True(t, domain.IsUnknownOutcome(err))
}
