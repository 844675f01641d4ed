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
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/likefeed/backend/internal/secret"
)

var testChainID = big.NewInt(1337)

// fakeBackend is an in-memory node. When lagging is set, PendingNonceAt keeps
// reporting the nonce it had before any broadcast.
type fakeBackend struct {
	mu sync.Mutex

	native   map[common.Address]*big.Int
	tokens   map[common.Address]*big.Int
	decimals uint8
	gasPrice *big.Int
	estimate uint64
	estErr   error
	pending  map[common.Address]uint64
	nonceErr error
	lagging  bool
	receipts map[common.Hash]*types.Receipt

	// send, when set, replaces the default accept-everything behaviour.
	send func(ctx context.Context, tx *types.Transaction) error
	sent []*types.Transaction
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		native:   make(map[common.Address]*big.Int),
		tokens:   make(map[common.Address]*big.Int),
		decimals: 18,
		gasPrice: big.NewInt(1_000_000_000),
		estimate: 52000,
		pending:  make(map[common.Address]uint64),
		receipts: make(map[common.Hash]*types.Receipt),
	}
}

func (f *fakeBackend) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.native[account]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(msg.Data) < 4 {
		return nil, fmt.Errorf("short call data")
	}
	selector, args := msg.Data[:4], msg.Data[4:]
	decimals := erc20ABI.Methods["decimals"]
	balanceOf := erc20ABI.Methods["balanceOf"]
	switch {
	case bytes.Equal(selector, decimals.ID):
		return decimals.Outputs.Pack(f.decimals)
	case bytes.Equal(selector, balanceOf.ID):
		in, err := balanceOf.Inputs.Unpack(args)
		if err != nil {
			return nil, err
		}
		owner := in[0].(common.Address)
		bal, ok := f.tokens[owner]
		if !ok {
			bal = new(big.Int)
		}
		return balanceOf.Outputs.Pack(bal)
	}
	return nil, fmt.Errorf("execution reverted")
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.estErr != nil {
		return 0, f.estErr
	}
	return f.estimate, nil
}

func (f *fakeBackend) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.nonceErr != nil {
		return 0, f.nonceErr
	}
	return f.pending[account], nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.gasPrice), nil
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(testChainID), nil
}

func (f *fakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	send := f.send
	f.mu.Unlock()
	if send != nil {
		if err := send(ctx, tx); err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	if !f.lagging {
		from, err := types.Sender(types.NewEIP155Signer(testChainID), tx)
		if err != nil {
			return err
		}
		if tx.Nonce()+1 > f.pending[from] {
			f.pending[from] = tx.Nonce() + 1
		}
	}
	return nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.receipts[hash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (f *fakeBackend) sentTxs() []*types.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*types.Transaction, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeBackend) setNative(addr common.Address, v *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.native[addr] = v
}

func (f *fakeBackend) setToken(addr common.Address, v *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[addr] = v
}

type testAccount struct {
	key  secret.SigningKey
	priv *ecdsa.PrivateKey
	addr common.Address
}

func newTestAccount(t *testing.T) testAccount {
	t.Helper()
	priv, err := gethcrypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	return testAccount{
		key:  secret.SigningKeyFromBytes(gethcrypto.FromECDSA(priv)),
		priv: priv,
		addr: gethcrypto.PubkeyToAddress(priv.PublicKey),
	}
}

var testToken = common.HexToAddress("0x00000000000000000000000000000000000070c3")

func newTestClient(t *testing.T, b *fakeBackend, token common.Address, timeout time.Duration) *Client {
	t.Helper()
	c, err := NewClient(b, Config{ChainID: testChainID, Token: token, Timeout: timeout}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

// nodeError is a JSON-RPC error reply, as ethclient surfaces it.
type nodeError struct {
	code int
	msg  string
}

func (e nodeError) Error() string  { return e.msg }
func (e nodeError) ErrorCode() int { return e.code }
