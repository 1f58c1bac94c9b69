package chain

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/i474232898/weather-markets/internal/logging"
)

var testContractAddr = common.HexToAddress("0x00000000000000000000000000000000000000aa")

// fakeBackend answers reads from packed outputs and mines every sent
// transaction after one pending receipt lookup.
type fakeBackend struct {
	mu        sync.Mutex
	outputs   map[string][]byte
	reverts   map[string]error
	sent      []*types.Transaction
	lookups   map[common.Hash]int
	status    uint64
	baseFee   *big.Int
	chainID   *big.Int
	logsForTx func(tx *types.Transaction) []*types.Log
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		outputs: map[string][]byte{},
		reverts: map[string]error{},
		lookups: map[common.Hash]int{},
		status:  types.ReceiptStatusSuccessful,
		baseFee: big.NewInt(1_000_000_000),
		chainID: big.NewInt(31337),
	}
}

func methodName(data []byte) string {
	if len(data) < 4 {
		return ""
	}
	for name, m := range parsedABI.Methods {
		if bytes.Equal(m.ID, data[:4]) {
			return name
		}
	}
	return ""
}

func (f *fakeBackend) setOutput(t *testing.T, method string, values ...interface{}) {
	t.Helper()
	packed, err := parsedABI.Methods[method].Outputs.Pack(values...)
	if err != nil {
		t.Fatalf("pack %s outputs: %v", method, err)
	}
	f.mu.Lock()
	f.outputs[method] = packed
	f.mu.Unlock()
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := methodName(msg.Data)
	if err := f.reverts[name]; err != nil {
		return nil, err
	}
	return f.outputs[name], nil
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 100_000, nil
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.sent)), nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(2_000_000_000), nil
}

func (f *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000), nil
}

func (f *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(10), BaseFee: f.baseFee}, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups[hash]++
	if f.lookups[hash] == 1 {
		return nil, ethereum.NotFound
	}
	for _, tx := range f.sent {
		if tx.Hash() != hash {
			continue
		}
		r := &types.Receipt{Status: f.status, TxHash: hash, BlockNumber: big.NewInt(11)}
		if f.logsForTx != nil {
			r.Logs = f.logsForTx(tx)
		}
		return r, nil
	}
	return nil, fmt.Errorf("unknown tx %s", hash.Hex())
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) {
	return f.chainID, nil
}

func (f *fakeBackend) sentTxs() []*types.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*types.Transaction(nil), f.sent...)
}

func newTestContract(t *testing.T, backend *fakeBackend) (*Contract, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	c := New(backend, Options{
		Address:        testContractAddr,
		Key:            key,
		ReceiptTimeout: 2 * time.Second,
		PollInterval:   time.Millisecond,
	}, logging.Discard())
	return c, key
}
