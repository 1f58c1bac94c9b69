package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	"github.com/i474232898/weather-markets/internal/metrics"
)

const (
	defaultReceiptTimeout = 2 * time.Minute
	defaultPollInterval   = 2 * time.Second
	// gasHeadroomPct pads the estimate against state drift between
	// estimation and inclusion.
	gasHeadroomPct = 120
)

var (
	// ErrTxReverted is returned when a mined transaction has a failed status.
	ErrTxReverted = errors.New("transaction reverted")
	// ErrReceiptTimeout is returned when no receipt arrives in time.
	ErrReceiptTimeout = errors.New("timed out waiting for receipt")
)

// Transactor sends contract transactions from one account, one at a time:
// the lock is held from nonce lookup until the receipt arrives, so two
// writes never race for the same nonce.
type Transactor struct {
	backend        Backend
	key            *ecdsa.PrivateKey
	from           common.Address
	receiptTimeout time.Duration
	pollInterval   time.Duration
	logger         logrus.FieldLogger

	mu      sync.Mutex
	chainID *big.Int
}

func NewTransactor(backend Backend, opts Options, logger logrus.FieldLogger) *Transactor {
	t := &Transactor{
		backend:        backend,
		key:            opts.Key,
		receiptTimeout: opts.ReceiptTimeout,
		pollInterval:   opts.PollInterval,
		logger:         logger,
	}
	if t.receiptTimeout <= 0 {
		t.receiptTimeout = defaultReceiptTimeout
	}
	if t.pollInterval <= 0 {
		t.pollInterval = defaultPollInterval
	}
	if opts.Key != nil {
		t.from = crypto.PubkeyToAddress(opts.Key.PublicKey)
	}
	return t
}

// From returns the sending account.
func (t *Transactor) From() common.Address {
	return t.from
}

// Send packs method(args) for the contract at to, simulates it, signs and
// submits it, then waits for a successful receipt.
func (t *Transactor) Send(ctx context.Context, to common.Address, method string, args ...interface{}) (*types.Receipt, error) {
	receipt, err := t.send(ctx, to, method, args...)
	metrics.Transactions.WithLabelValues(method, metrics.OutcomeOf(err)).Inc()
	return receipt, err
}

func (t *Transactor) send(ctx context.Context, to common.Address, method string, args ...interface{}) (*types.Receipt, error) {
	if t.key == nil {
		return nil, errors.New("no signing key configured")
	}
	data, err := parsedABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	msg := ethereum.CallMsg{From: t.from, To: &to, Data: data}
	if _, err := t.backend.CallContract(ctx, msg, nil); err != nil {
		return nil, fmt.Errorf("simulate %s: %w", method, err)
	}
	gas, err := t.backend.EstimateGas(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("estimate gas %s: %w", method, err)
	}
	gas = gas * gasHeadroomPct / 100

	chainID, err := t.chain(ctx)
	if err != nil {
		return nil, err
	}
	nonce, err := t.backend.PendingNonceAt(ctx, t.from)
	if err != nil {
		return nil, fmt.Errorf("pending nonce: %w", err)
	}
	tx, err := t.buildTx(ctx, chainID, nonce, gas, to, data)
	if err != nil {
		return nil, err
	}

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), t.key)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}
	if err := t.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	log := t.logger.WithFields(logrus.Fields{"method": method, "tx": signed.Hash().Hex(), "nonce": nonce})
	log.Info("transaction submitted")

	receipt, err := t.waitReceipt(ctx, signed.Hash())
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, signed.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%s %s: %w", method, signed.Hash().Hex(), ErrTxReverted)
	}
	log.WithField("block", receipt.BlockNumber).Info("transaction mined")
	return receipt, nil
}

func (t *Transactor) chain(ctx context.Context) (*big.Int, error) {
	if t.chainID != nil {
		return t.chainID, nil
	}
	id, err := t.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	t.chainID = id
	return id, nil
}

// buildTx uses a dynamic-fee transaction on London chains and a legacy one
// otherwise.
func (t *Transactor) buildTx(ctx context.Context, chainID *big.Int, nonce, gas uint64, to common.Address, data []byte) (*types.Transaction, error) {
	head, err := t.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("latest header: %w", err)
	}

	if head.BaseFee == nil {
		gasPrice, err := t.backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("gas price: %w", err)
		}
		return types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      gas,
			To:       &to,
			Value:    big.NewInt(0),
			Data:     data,
		}), nil
	}

	tip, err := t.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas tip: %w", err)
	}
	feeCap := new(big.Int).Add(new(big.Int).Mul(head.BaseFee, big.NewInt(2)), tip)
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     big.NewInt(0),
		Data:      data,
	}), nil
}

func (t *Transactor) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, t.receiptTimeout)
	defer cancel()

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()
	for {
		receipt, err := t.backend.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			t.logger.WithError(err).WithField("tx", hash.Hex()).Warn("receipt lookup failed, retrying")
		}
		select {
		case <-ctx.Done():
			return nil, ErrReceiptTimeout
		case <-ticker.C:
		}
	}
}
