package executor

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ayo6706/ramp-orchestrator/internal/domain"
	"github.com/ayo6706/ramp-orchestrator/internal/models"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const erc20ABI = `[{"constant":false,"inputs":[{"name":"_to","type":"address"},{"name":"_value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"}]`

// tokenTransferer sends ERC-20 transfers from a single signing key.
type tokenTransferer interface {
	Transfer(ctx context.Context, token, to common.Address, amount *big.Int) (common.Hash, error)
	ChainID(ctx context.Context) (int64, error)
	From() common.Address
}

// EVMExecutor signs payments with a server-held key over JSON-RPC.
type EVMExecutor struct {
	signer tokenTransferer

	mu      sync.Mutex
	cancels map[uuid.UUID]context.CancelFunc
}

type EVMConfig struct {
	RPCURL        string
	PrivateKeyHex string
}

// NewEVMExecutor dials the RPC endpoint and prepares the transactor.
func NewEVMExecutor(ctx context.Context, cfg EVMConfig) (*EVMExecutor, error) {
	signer, err := newEthTransferer(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return newEVMExecutor(signer), nil
}

func newEVMExecutor(signer tokenTransferer) *EVMExecutor {
	return &EVMExecutor{signer: signer, cancels: make(map[uuid.UUID]context.CancelFunc)}
}

// ActiveChainID returns the chain of the RPC endpoint. The wallet argument
// is ignored since the executor signs with its own key.
func (e *EVMExecutor) ActiveChainID(ctx context.Context, _ string) (int64, error) {
	return e.signer.ChainID(ctx)
}

func (e *EVMExecutor) Submit(ctx context.Context, inst models.PaymentInstruction, onSuccess func(string), onFailure func(error)) {
	amount, err := domain.ParseAmount(inst.Amount)
	if err != nil {
		go onFailure(fmt.Errorf("payment amount: %w", err))
		return
	}
	if !common.IsHexAddress(inst.Recipient) || !common.IsHexAddress(inst.TokenAddress) {
		go onFailure(fmt.Errorf("invalid recipient or token address"))
		return
	}
	units := domain.NewMoney(amount, "").ToTokenUnits(inst.Decimals)

	// Detached from the request so the transaction outlives the HTTP call.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.mu.Lock()
	e.cancels[inst.OrderID] = cancel
	e.mu.Unlock()

	zap.L().Info("submitting evm token transfer",
		zap.String("order_id", inst.OrderID.String()),
		zap.String("from", e.signer.From().Hex()),
		zap.String("token", inst.TokenAddress),
		zap.String("units", units.String()),
	)
	go func() {
		defer e.forget(inst.OrderID)
		hash, err := e.signer.Transfer(runCtx, common.HexToAddress(inst.TokenAddress), common.HexToAddress(inst.Recipient), units)
		if runCtx.Err() != nil {
			zap.L().Info("evm payment canceled", zap.String("order_id", inst.OrderID.String()))
			return
		}
		if err != nil {
			onFailure(fmt.Errorf("send token transfer: %w", err))
			return
		}
		onSuccess(hash.Hex())
	}()
}

func (e *EVMExecutor) Cancel(orderID uuid.UUID) {
	e.mu.Lock()
	cancel, ok := e.cancels[orderID]
	delete(e.cancels, orderID)
	e.mu.Unlock()
	if ok {
		cancel()
	}
}

func (e *EVMExecutor) forget(orderID uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cancel, ok := e.cancels[orderID]; ok {
		cancel()
		delete(e.cancels, orderID)
	}
}

type ethTransferer struct {
	client    *ethclient.Client
	abi       abi.ABI
	chainID   *big.Int
	transacts *bind.TransactOpts
}

func newEthTransferer(ctx context.Context, cfg EVMConfig) (*ethTransferer, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	cli, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	parsedABI, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}

	pk, err := parsePrivateKey(cfg.PrivateKeyHex)
	if err != nil {
		return nil, err
	}
	chainID, err := cli.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}
	txOpts, err := bind.NewKeyedTransactorWithChainID(pk, chainID)
	if err != nil {
		return nil, fmt.Errorf("transactor: %w", err)
	}

	return &ethTransferer{client: cli, abi: parsedABI, chainID: chainID, transacts: txOpts}, nil
}

func (t *ethTransferer) Transfer(ctx context.Context, token, to common.Address, amount *big.Int) (common.Hash, error) {
	contract := bind.NewBoundContract(token, t.abi, t.client, t.client, t.client)
	opts := *t.transacts
	opts.Context = ctx
	tx, err := contract.Transact(&opts, "transfer", to, amount)
	if err != nil {
		return common.Hash{}, err
	}
	return tx.Hash(), nil
}

func (t *ethTransferer) ChainID(_ context.Context) (int64, error) {
	return t.chainID.Int64(), nil
}

func (t *ethTransferer) From() common.Address {
	return t.transacts.From
}

func parsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}
