// Package chain is the client for the weather market contract: plain RPC
// reads and a single-writer transactor for state-changing calls.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/i474232898/weather-markets/internal/market"
)

// Backend is the part of ethclient.Client the contract client uses.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

var parsedABI = mustParseABI()

func mustParseABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(marketABI))
	if err != nil {
		panic(fmt.Sprintf("chain: parse market abi: %v", err))
	}
	return parsed
}

// Options configures a Contract.
type Options struct {
	Address        common.Address
	Key            *ecdsa.PrivateKey
	ReceiptTimeout time.Duration
	PollInterval   time.Duration
}

// Contract reads and writes the weather market contract.
type Contract struct {
	backend Backend
	address common.Address
	tx      *Transactor
	logger  logrus.FieldLogger
}

// Dial connects to rpcURL and returns a Contract signing with privateKeyHex.
func Dial(ctx context.Context, rpcURL, contractAddress, privateKeyHex string, receiptTimeout time.Duration, logger logrus.FieldLogger) (*Contract, *ethclient.Client, error) {
	if !common.IsHexAddress(contractAddress) {
		return nil, nil, fmt.Errorf("invalid contract address %q", contractAddress)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, nil, fmt.Errorf("decode settler key: %w", err)
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rpc: %w", err)
	}
	c := New(client, Options{
		Address:        common.HexToAddress(contractAddress),
		Key:            key,
		ReceiptTimeout: receiptTimeout,
	}, logger)
	return c, client, nil
}

// New builds a Contract over an existing backend.
func New(backend Backend, opts Options, logger logrus.FieldLogger) *Contract {
	logger = logger.WithField("component", "market-contract")
	return &Contract{
		backend: backend,
		address: opts.Address,
		tx:      NewTransactor(backend, opts, logger),
		logger:  logger,
	}
}

// From is the settler account used for writes.
func (c *Contract) From() common.Address {
	return c.tx.From()
}

func (c *Contract) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsedABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	res, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &c.address, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	out, err := parsedABI.Unpack(method, res)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return out, nil
}

// GetMarketCount returns the number of markets ever created.
func (c *Contract) GetMarketCount(ctx context.Context) (uint64, error) {
	out, err := c.call(ctx, "getMarketCount")
	if err != nil {
		return 0, err
	}
	n, ok := out[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("getMarketCount: unexpected type %T", out[0])
	}
	return n.Uint64(), nil
}

var errShape = errors.New("unexpected getMarket output")

// GetMarket reads one market.
func (c *Contract) GetMarket(ctx context.Context, id uint64) (market.Market, error) {
	out, err := c.call(ctx, "getMarket", new(big.Int).SetUint64(id))
	if err != nil {
		return market.Market{}, err
	}
	if len(out) != 12 {
		return market.Market{}, fmt.Errorf("%w: %d values", errShape, len(out))
	}

	cityHash, ok1 := out[0].([32]byte)
	resolveTime, ok2 := out[1].(*big.Int)
	deadline, ok3 := out[2].(*big.Int)
	threshold, ok4 := out[3].(*big.Int)
	currency, ok5 := out[4].(uint8)
	status, ok6 := out[5].(uint8)
	yes, ok7 := out[6].(*big.Int)
	no, ok8 := out[7].(*big.Int)
	fees, ok9 := out[8].(*big.Int)
	resolvedTemp, ok10 := out[9].(*big.Int)
	observed, ok11 := out[10].(*big.Int)
	outcome, ok12 := out[11].(bool)
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6 && ok7 && ok8 && ok9 && ok10 && ok11 && ok12) {
		return market.Market{}, errShape
	}

	m := market.Market{
		ID:                 id,
		CityHash:           common.Hash(cityHash),
		ResolveTimeSec:     resolveTime.Int64(),
		BettingDeadlineSec: deadline.Int64(),
		ThresholdTenths:    threshold.Int64(),
		Currency:           market.Currency(currency),
		RawStatus:          market.RawStatus(status),
		YesPool:            yes,
		NoPool:             no,
		TotalFees:          fees,
	}
	if m.RawStatus == market.RawResolved {
		temp, ts := resolvedTemp.Int64(), observed.Int64()
		m.ResolvedTempTenths = &temp
		m.ObservedTimestamp = &ts
		m.Outcome = &outcome
	}
	return m, nil
}

func (c *Contract) address0(ctx context.Context, method string) (common.Address, error) {
	out, err := c.call(ctx, method)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%s: unexpected type %T", method, out[0])
	}
	return addr, nil
}

// Owner returns the contract owner.
func (c *Contract) Owner(ctx context.Context) (common.Address, error) {
	return c.address0(ctx, "owner")
}

// Settler returns the account allowed to resolve and cancel markets.
func (c *Contract) Settler(ctx context.Context) (common.Address, error) {
	return c.address0(ctx, "settler")
}

// CreateMarket creates a market and returns its id, taken from the
// MarketCreated event or, failing that, getMarketCount()-1.
func (c *Contract) CreateMarket(ctx context.Context, cityHash common.Hash, resolveTimeSec, thresholdTenths int64, currency market.Currency) (uint64, error) {
	receipt, err := c.tx.Send(ctx, c.address, "createMarket",
		[32]byte(cityHash), big.NewInt(resolveTimeSec), big.NewInt(thresholdTenths), uint8(currency))
	if err != nil {
		return 0, err
	}
	if id, ok := marketIDFromLogs(receipt.Logs, c.address); ok {
		return id, nil
	}

	count, err := c.GetMarketCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("market created in %s but id unknown: %w", receipt.TxHash.Hex(), err)
	}
	if count == 0 {
		return 0, fmt.Errorf("market created in %s but count is zero", receipt.TxHash.Hex())
	}
	return count - 1, nil
}

func marketIDFromLogs(logs []*types.Log, address common.Address) (uint64, bool) {
	event := parsedABI.Events["MarketCreated"]
	for _, l := range logs {
		if l == nil || l.Address != address || len(l.Topics) < 2 || l.Topics[0] != event.ID {
			continue
		}
		return new(big.Int).SetBytes(l.Topics[1].Bytes()).Uint64(), true
	}
	return 0, false
}

// ResolveMarket submits the observed temperature for a market.
func (c *Contract) ResolveMarket(ctx context.Context, id uint64, tempTenths, observedTimestamp int64) (common.Hash, error) {
	return c.write(ctx, "resolveMarket", new(big.Int).SetUint64(id), big.NewInt(tempTenths), big.NewInt(observedTimestamp))
}

// ResolveMarketWithProof submits an attested reading with its Merkle proof.
func (c *Contract) ResolveMarketWithProof(ctx context.Context, id uint64, proof [][32]byte, attestationData []byte) (common.Hash, error) {
	return c.write(ctx, "resolveMarketWithProof", new(big.Int).SetUint64(id), proof, attestationData)
}

// CancelMarketBySettler cancels a market so bettors can be refunded.
func (c *Contract) CancelMarketBySettler(ctx context.Context, id uint64) (common.Hash, error) {
	return c.write(ctx, "cancelMarketBySettler", new(big.Int).SetUint64(id))
}

func (c *Contract) Pause(ctx context.Context) (common.Hash, error) {
	return c.write(ctx, "pause")
}

func (c *Contract) Unpause(ctx context.Context) (common.Hash, error) {
	return c.write(ctx, "unpause")
}

func (c *Contract) write(ctx context.Context, method string, args ...interface{}) (common.Hash, error) {
	receipt, err := c.tx.Send(ctx, c.address, method, args...)
	if err != nil {
		return common.Hash{}, err
	}
	return receipt.TxHash, nil
}

var _ market.Contract = (*Contract)(nil)
