// Package solbctest - in-process цепочка, исполняющая инструкции программы bonding curve.
// Реализует solbc.RPC, используется в тестах оркестратора, леджера и API.
package solbctest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/rovshanmuradov/solana-launchpad/internal/curve"
	"github.com/rovshanmuradov/solana-launchpad/internal/dex/dbc"
)

// FakeChain однопоточный (под мьютексом) симулятор программы.
type FakeChain struct {
	mu sync.Mutex

	program  *dbc.Program
	slot     uint64
	accounts map[solana.PublicKey]*rpc.Account
	statuses map[solana.Signature]*rpc.SignatureStatusesResult
	hidden   map[solana.Signature]*rpc.SignatureStatusesResult
	balances map[string]uint64

	sendErrs     []error
	readErrs     []error
	programErrs  map[dbc.InstructionKind]string
	hideStatuses bool

	sends      int
	migrations int
	claims     int
}

func NewFakeChain(programID solana.PublicKey) *FakeChain {
	return &FakeChain{
		program:     dbc.New(programID),
		slot:        1,
		accounts:    make(map[solana.PublicKey]*rpc.Account),
		statuses:    make(map[solana.Signature]*rpc.SignatureStatusesResult),
		hidden:      make(map[solana.Signature]*rpc.SignatureStatusesResult),
		balances:    make(map[string]uint64),
		programErrs: make(map[dbc.InstructionKind]string),
	}
}

func (f *FakeChain) Program() *dbc.Program { return f.program }

// FailSends следующие отправки вернут err (по одной на элемент).
func (f *FakeChain) FailSends(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErrs = append(f.sendErrs, errs...)
}

// FailReads следующие чтения аккаунтов вернут err.
func (f *FakeChain) FailReads(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readErrs = append(f.readErrs, errs...)
}

// FailInstruction следующая инструкция kind будет отклонена программой.
func (f *FakeChain) FailInstruction(kind dbc.InstructionKind, anchorName string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.programErrs[kind] = anchorName
}

// HideStatuses транзакции исполняются, но статусы не видны до RevealStatuses.
func (f *FakeChain) HideStatuses(hide bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hideStatuses = hide
}

func (f *FakeChain) RevealStatuses() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for sig, st := range f.hidden {
		f.statuses[sig] = st
	}
	f.hidden = make(map[solana.Signature]*rpc.SignatureStatusesResult)
	f.hideStatuses = false
}

func (f *FakeChain) Sends() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sends
}

func (f *FakeChain) Migrations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.migrations
}

func (f *FakeChain) Claims() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.claims
}

// Pool текущее состояние пула или nil.
func (f *FakeChain) Pool(address solana.PublicKey) *dbc.VirtualPool {
	f.mu.Lock()
	defer f.mu.Unlock()
	pool, _ := f.loadPool(f.accounts, address)
	return pool
}

// SetPool записывает состояние пула напрямую.
func (f *FakeChain) SetPool(address solana.PublicKey, pool *dbc.VirtualPool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_ = f.storePool(f.accounts, address, pool)
}

// SetConfig записывает конфигурацию напрямую.
func (f *FakeChain) SetConfig(address solana.PublicKey, cfg *dbc.PoolConfig) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, _ := dbc.EncodePoolConfig(cfg)
	f.accounts[address] = programAccount(f.program.ID, data)
}

// TokenBalance баланс трейдера в минимальных единицах.
func (f *FakeChain) TokenBalance(owner, mint solana.PublicKey) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[balanceKey(owner, mint)]
}

func (f *FakeChain) SetTokenBalance(owner, mint solana.PublicKey, units uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[balanceKey(owner, mint)] = units
}

func (f *FakeChain) GetLatestBlockhash(context.Context, rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := &rpc.GetLatestBlockhashResult{Value: &rpc.LatestBlockhashResult{
		Blockhash:            solana.Hash{0xb1, 0x0c, byte(f.slot)},
		LastValidBlockHeight: f.slot + 150,
	}}
	res.Context.Slot = f.slot
	return res, nil
}

func (f *FakeChain) GetSignatureStatuses(_ context.Context, _ bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &rpc.GetSignatureStatusesResult{}
	out.Context.Slot = f.slot
	for _, sig := range sigs {
		out.Value = append(out.Value, f.statuses[sig])
	}
	return out, nil
}

func (f *FakeChain) GetAccountInfoWithOpts(_ context.Context, account solana.PublicKey, _ *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.readErrs) > 0 {
		err := f.readErrs[0]
		f.readErrs = f.readErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	acc, ok := f.accounts[account]
	if !ok {
		return nil, rpc.ErrNotFound
	}
	cp := *acc
	cp.Data = rpc.DataBytesOrJSONFromBytes(append([]byte(nil), acc.Data.GetBinary()...))
	res := &rpc.GetAccountInfoResult{Value: &cp}
	res.Context.Slot = f.slot
	return res, nil
}

// SendTransactionWithOpts проверяет подписи и атомарно исполняет инструкции программы.
// С preflight ошибка программы возвращается синхронно, без него - попадает в статус.
func (f *FakeChain) SendTransactionWithOpts(_ context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends++

	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		if err != nil {
			return solana.Signature{}, err
		}
	}
	if len(tx.Signatures) == 0 {
		return solana.Signature{}, &jsonrpc.RPCError{Code: -32003, Message: "Transaction signature verification failure"}
	}
	sig := tx.Signatures[0]
	if _, seen := f.statuses[sig]; seen {
		return solana.Signature{}, preflightError("This transaction has already been processed", "")
	}
	if _, seen := f.hidden[sig]; seen {
		return solana.Signature{}, preflightError("This transaction has already been processed", "")
	}
	if err := tx.VerifySignatures(); err != nil {
		return solana.Signature{}, &jsonrpc.RPCError{Code: -32003, Message: "Transaction signature verification failure"}
	}

	staged := make(map[solana.PublicKey]*rpc.Account, len(f.accounts))
	for k, v := range f.accounts {
		staged[k] = v
	}
	balances := make(map[string]uint64, len(f.balances))
	for k, v := range f.balances {
		balances[k] = v
	}

	execErr := f.execute(tx, staged, balances)
	if execErr != nil && !opts.SkipPreflight {
		return solana.Signature{}, preflightError("Error processing Instruction", execErr.Error())
	}

	f.slot++
	status := &rpc.SignatureStatusesResult{Slot: f.slot, ConfirmationStatus: rpc.ConfirmationStatusFinalized}
	if execErr != nil {
		status.Err = map[string]interface{}{"InstructionError": execErr.Error()}
	} else {
		f.accounts = staged
		f.balances = balances
	}
	if f.hideStatuses {
		f.hidden[sig] = status
	} else {
		f.statuses[sig] = status
	}
	return sig, nil
}

func (f *FakeChain) execute(tx *solana.Transaction, accounts map[solana.PublicKey]*rpc.Account, balances map[string]uint64) error {
	keys := tx.Message.AccountKeys
	for _, ix := range tx.Message.Instructions {
		if int(ix.ProgramIDIndex) >= len(keys) || !keys[ix.ProgramIDIndex].Equals(f.program.ID) {
			continue
		}
		kind, args, err := dbc.ParseInstruction(ix.Data)
		if err != nil {
			return anchorError("InstructionDidNotDeserialize", err.Error())
		}
		if name, ok := f.programErrs[kind]; ok {
			delete(f.programErrs, kind)
			return anchorError(name, "injected failure")
		}
		metas := make([]solana.PublicKey, 0, len(ix.Accounts))
		for _, idx := range ix.Accounts {
			metas = append(metas, keys[idx])
		}

		switch kind {
		case dbc.KindCreateConfig:
			err = f.createConfig(accounts, metas, args.(*dbc.CreateConfigArgs))
		case dbc.KindInitializePool:
			err = f.initializePool(accounts, metas)
		case dbc.KindSwap:
			err = f.swap(accounts, balances, metas, args.(*dbc.SwapArgs))
		case dbc.KindClaimFee:
			err = f.claimFee(accounts, metas, args.(*dbc.ClaimFeeArgs))
		case dbc.KindMigrate:
			err = f.migrate(accounts, metas)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (f *FakeChain) createConfig(accounts map[solana.PublicKey]*rpc.Account, metas []solana.PublicKey, args *dbc.CreateConfigArgs) error {
	config := metas[0]
	if _, exists := accounts[config]; exists {
		return anchorError("AccountAlreadyInitialized", "config exists")
	}
	data, err := dbc.EncodePoolConfig(&dbc.PoolConfig{
		FeeClaimer:          metas[1],
		TradingFeeBps:       args.TradingFeeBps,
		CreatorFeeShareBps:  args.CreatorFeeShareBps,
		InitialVirtualSol:   args.InitialVirtualSol,
		InitialVirtualToken: args.InitialVirtualToken,
		TotalSupply:         args.TotalSupply,
		MigrationThreshold:  args.MigrationThreshold,
	})
	if err != nil {
		return err
	}
	accounts[config] = programAccount(f.program.ID, data)
	return nil
}

func (f *FakeChain) initializePool(accounts map[solana.PublicKey]*rpc.Account, metas []solana.PublicKey) error {
	configAddr, creator, mint, poolAddr := metas[0], metas[2], metas[3], metas[4]
	cfg, err := f.loadConfig(accounts, configAddr)
	if err != nil {
		return err
	}
	if _, exists := accounts[poolAddr]; exists {
		return anchorError("AccountAlreadyInitialized", "pool exists")
	}
	if _, exists := accounts[mint]; exists {
		return anchorError("AccountAlreadyInitialized", "mint exists")
	}
	accounts[mint] = &rpc.Account{Owner: solana.TokenProgramID, Lamports: 1_461_600, Data: rpc.DataBytesOrJSONFromBytes(make([]byte, 82))}
	return f.storePool(accounts, poolAddr, &dbc.VirtualPool{
		Config:       configAddr,
		Creator:      creator,
		Mint:         mint,
		VirtualSol:   cfg.InitialVirtualSol,
		VirtualToken: cfg.InitialVirtualToken,
		RealToken:    cfg.TotalSupply,
	})
}

func (f *FakeChain) swap(accounts map[solana.PublicKey]*rpc.Account, balances map[string]uint64, metas []solana.PublicKey, args *dbc.SwapArgs) error {
	configAddr, poolAddr, mint, trader := metas[1], metas[2], metas[6], metas[7]
	cfg, err := f.loadConfig(accounts, configAddr)
	if err != nil {
		return err
	}
	pool, err := f.loadPool(accounts, poolAddr)
	if err != nil {
		return err
	}
	if pool.Migrated() {
		return anchorError("PoolIsCompleted", "pool is migrated")
	}

	key := balanceKey(trader, mint)
	virtualSol := curve.FromLamports(pool.VirtualSol)
	virtualToken := curve.FromBaseUnits(pool.VirtualToken)

	var fee float64
	switch args.Direction {
	case dbc.DirectionBuy:
		q, err := curve.QuoteBuy(curve.FromLamports(args.AmountIn), virtualSol, virtualToken, cfg.TradingFeeBps)
		if err != nil {
			return anchorError("MathOverflow", err.Error())
		}
		out := curve.BaseUnits(q.TokensOut)
		if out < args.MinimumAmountOut {
			return anchorError("ExceededSlippage", "Exceeded slippage tolerance")
		}
		pool.VirtualSol += curve.Lamports(q.SolAfterFee)
		pool.VirtualToken -= out
		pool.RealSol += args.AmountIn
		pool.RealToken -= min(out, pool.RealToken)
		balances[key] += out
		fee = q.FeeSol
	case dbc.DirectionSell:
		if balances[key] < args.AmountIn {
			return anchorError("InsufficientFunds", "token balance too low")
		}
		q, err := curve.QuoteSell(curve.FromBaseUnits(args.AmountIn), virtualSol, virtualToken, cfg.TradingFeeBps)
		if err != nil {
			return anchorError("MathOverflow", err.Error())
		}
		out := curve.Lamports(q.SolOut)
		if out < args.MinimumAmountOut {
			return anchorError("ExceededSlippage", "Exceeded slippage tolerance")
		}
		if out > pool.RealSol {
			return anchorError("InsufficientLiquidity", "vault cannot cover sell")
		}
		pool.VirtualSol -= curve.Lamports(q.GrossSolOut)
		pool.VirtualToken += args.AmountIn
		pool.RealSol -= out
		pool.RealToken += args.AmountIn
		balances[key] -= args.AmountIn
		fee = q.FeeSol
	default:
		return anchorError("InvalidDirection", fmt.Sprintf("direction %d", args.Direction))
	}

	feeLamports := curve.Lamports(fee)
	creatorFee := uint64(math.Floor(float64(feeLamports) * float64(cfg.CreatorFeeShareBps) / 10_000))
	pool.CreatorFee += creatorFee
	pool.PartnerFee += feeLamports - creatorFee
	return f.storePool(accounts, poolAddr, pool)
}

func (f *FakeChain) claimFee(accounts map[solana.PublicKey]*rpc.Account, metas []solana.PublicKey, args *dbc.ClaimFeeArgs) error {
	configAddr, poolAddr, claimer := metas[1], metas[2], metas[4]
	cfg, err := f.loadConfig(accounts, configAddr)
	if err != nil {
		return err
	}
	if !cfg.FeeClaimer.Equals(claimer) {
		return anchorError("InvalidFeeClaimer", "signer is not the fee claimer")
	}
	pool, err := f.loadPool(accounts, poolAddr)
	if err != nil {
		return err
	}
	amount := min(pool.PartnerFee, args.MaxAmount)
	pool.PartnerFee -= amount
	pool.RealSol -= min(amount, pool.RealSol)
	f.claims++
	return f.storePool(accounts, poolAddr, pool)
}

func (f *FakeChain) migrate(accounts map[solana.PublicKey]*rpc.Account, metas []solana.PublicKey) error {
	configAddr, poolAddr, migrated := metas[1], metas[2], metas[3]
	cfg, err := f.loadConfig(accounts, configAddr)
	if err != nil {
		return err
	}
	pool, err := f.loadPool(accounts, poolAddr)
	if err != nil {
		return err
	}
	if pool.Migrated() {
		return anchorError("PoolAlreadyMigrated", "pool is already migrated")
	}
	if pool.RealSol < cfg.MigrationThreshold {
		return anchorError("NotReadyForMigration", "threshold not reached")
	}
	pool.IsMigrated = 1
	pool.MigratedPool = migrated
	accounts[migrated] = &rpc.Account{Owner: f.program.ID, Lamports: pool.RealSol, Data: rpc.DataBytesOrJSONFromBytes([]byte{1})}
	f.migrations++
	return f.storePool(accounts, poolAddr, pool)
}

func (f *FakeChain) loadConfig(accounts map[solana.PublicKey]*rpc.Account, address solana.PublicKey) (*dbc.PoolConfig, error) {
	acc, ok := accounts[address]
	if !ok {
		return nil, anchorError("AccountNotInitialized", "config missing")
	}
	return dbc.DecodePoolConfig(acc.Data.GetBinary())
}

func (f *FakeChain) loadPool(accounts map[solana.PublicKey]*rpc.Account, address solana.PublicKey) (*dbc.VirtualPool, error) {
	acc, ok := accounts[address]
	if !ok {
		return nil, anchorError("AccountNotInitialized", "pool missing")
	}
	return dbc.DecodeVirtualPool(acc.Data.GetBinary())
}

func (f *FakeChain) storePool(accounts map[solana.PublicKey]*rpc.Account, address solana.PublicKey, pool *dbc.VirtualPool) error {
	data, err := dbc.EncodeVirtualPool(pool)
	if err != nil {
		return err
	}
	accounts[address] = programAccount(f.program.ID, data)
	return nil
}

func programAccount(owner solana.PublicKey, data []byte) *rpc.Account {
	return &rpc.Account{Owner: owner, Lamports: 1_000_000, Data: rpc.DataBytesOrJSONFromBytes(data)}
}

func balanceKey(owner, mint solana.PublicKey) string {
	return owner.String() + "/" + mint.String()
}

// programError ошибка исполнения в формате лога Anchor.
type programError struct {
	name string
	msg  string
}

func (e *programError) Error() string {
	return fmt.Sprintf("Program log: AnchorError occurred. Error Code: %s. Error Number: 6000. Error Message: %s.", e.name, e.msg)
}

func anchorError(name, msg string) error {
	return &programError{name: name, msg: msg}
}

func preflightError(message, log string) error {
	rpcErr := &jsonrpc.RPCError{Code: -32002, Message: "Transaction simulation failed: " + message}
	if log != "" {
		rpcErr.Data = map[string]interface{}{"logs": []interface{}{log}}
	}
	return rpcErr
}

// ErrInjected удобная транзиентная ошибка для FailSends/FailReads.
var ErrInjected = errors.New("fake rpc: 503 Service Unavailable")
