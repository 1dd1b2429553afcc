package solbc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	solbcrpc "github.com/rovshanmuradov/solana-launchpad/internal/blockchain/solbc/rpc"
	"go.uber.org/zap"
)

// RPCPool раздает вызовы по нескольким RPC по кругу. Endpoint, вернувший
// транзиентную ошибку, пропускается до истечения cooldown; повтор вызова
// (retry.Do в Client) уходит на следующий.
type RPCPool struct {
	mu        sync.Mutex
	endpoints []*endpoint
	next      int
	cooldown  time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

type endpoint struct {
	// name без URL: в URL провайдера бывает API ключ
	name      string
	client    RPC
	downUntil time.Time
}

var _ RPC = (*RPCPool)(nil)

// NewRPCPool создает пул для списка URL; первый - основной.
func NewRPCPool(urls []string, cooldown time.Duration, logger *zap.Logger) *RPCPool {
	clients := make([]RPC, 0, len(urls))
	for _, url := range urls {
		clients = append(clients, rpc.New(url))
	}
	return NewRPCPoolFromClients(cooldown, logger, clients...)
}

func NewRPCPoolFromClients(cooldown time.Duration, logger *zap.Logger, clients ...RPC) *RPCPool {
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	p := &RPCPool{
		cooldown: cooldown,
		now:      time.Now,
		logger:   logger.Named("rpc-pool"),
	}
	for i, c := range clients {
		p.endpoints = append(p.endpoints, &endpoint{name: fmt.Sprintf("endpoint-%d", i), client: c})
	}
	return p
}

// pick следующий здоровый endpoint; если все на cooldown - просто следующий по кругу.
func (p *RPCPool) pick() *endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	n := len(p.endpoints)
	for i := 0; i < n; i++ {
		ep := p.endpoints[(p.next+i)%n]
		if !now.Before(ep.downUntil) {
			p.next = (p.next + i + 1) % n
			return ep
		}
	}
	ep := p.endpoints[p.next]
	p.next = (p.next + 1) % n
	return ep
}

func (p *RPCPool) report(ctx context.Context, ep *endpoint, err error) {
	// отмена вызывающего не говорит ничего о здоровье endpoint
	if err == nil || ctx.Err() != nil || !solbcrpc.IsRetryableError(err) {
		return
	}
	p.mu.Lock()
	ep.downUntil = p.now().Add(p.cooldown)
	p.mu.Unlock()
	p.logger.Warn("RPC endpoint marked down",
		zap.String("endpoint", ep.name),
		zap.Duration("cooldown", p.cooldown),
		zap.Error(err))
}

// Healthy число endpoint'ов вне cooldown.
func (p *RPCPool) Healthy() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	healthy := 0
	for _, ep := range p.endpoints {
		if !now.Before(ep.downUntil) {
			healthy++
		}
	}
	return healthy
}

// CheckHealth опрашивает все endpoint'ы; ответивший снимается с cooldown досрочно.
func (p *RPCPool) CheckHealth(ctx context.Context) int {
	for _, ep := range p.endpoints {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, err := ep.client.GetLatestBlockhash(checkCtx, rpc.CommitmentFinalized)
		cancel()
		if err != nil {
			p.report(ctx, ep, err)
			continue
		}
		p.mu.Lock()
		ep.downUntil = time.Time{}
		p.mu.Unlock()
	}
	return p.Healthy()
}

func (p *RPCPool) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	ep := p.pick()
	res, err := ep.client.GetLatestBlockhash(ctx, commitment)
	p.report(ctx, ep, err)
	return res, err
}

func (p *RPCPool) SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error) {
	ep := p.pick()
	sig, err := ep.client.SendTransactionWithOpts(ctx, tx, opts)
	p.report(ctx, ep, err)
	return sig, err
}

func (p *RPCPool) GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	ep := p.pick()
	res, err := ep.client.GetSignatureStatuses(ctx, searchTransactionHistory, sigs...)
	p.report(ctx, ep, err)
	return res, err
}

func (p *RPCPool) GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error) {
	ep := p.pick()
	res, err := ep.client.GetAccountInfoWithOpts(ctx, account, opts)
	p.report(ctx, ep, err)
	return res, err
}
