// Package chain wraps one EVM JSON-RPC network: balance and gas reads,
// preflight, transaction construction, local signing and broadcast.
//
// A Client is constructed explicitly with its configuration; several clients
// for different networks may live in one process.
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
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/likefeed/backend/internal/apperr"
	"github.com/likefeed/backend/internal/secret"
)

// Gas limits used when estimation fails.
const (
	TokenTransferGasFallback  uint64 = 100000
	NativeTransferGasFallback uint64 = 21000
)

const defaultTimeout = 15 * time.Second

var ErrReceiptNotFound = errors.New("receipt not found")

// Backend is the subset of the Ethereum RPC used by the reward path.
// *ethclient.Client satisfies it.
type Backend interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

type Config struct {
	// ChainID is required by NewClient. Dial fills it from the node when nil.
	ChainID *big.Int
	// Token is the reward token contract; the zero address selects native
	// currency transfers.
	Token common.Address
	// Timeout bounds every individual RPC call.
	Timeout time.Duration
}

type Client struct {
	backend Backend
	chainID *big.Int
	token   common.Address
	timeout time.Duration
	signer  types.Signer
	locks   *senderLocks
	nonces  *nonceTracker
	log     *zap.Logger
}

func NewClient(backend Backend, cfg Config, log *zap.Logger) (*Client, error) {
	if backend == nil {
		return nil, fmt.Errorf("chain backend required")
	}
	if cfg.ChainID == nil || cfg.ChainID.Sign() <= 0 {
		return nil, fmt.Errorf("chain id required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	chainID := new(big.Int).Set(cfg.ChainID)
	return &Client{
		backend: backend,
		chainID: chainID,
		token:   cfg.Token,
		timeout: cfg.Timeout,
		signer:  types.NewEIP155Signer(chainID),
		locks:   newSenderLocks(),
		nonces:  newNonceTracker(),
		log:     log,
	}, nil
}

// Dial connects to rpcURL. When cfg.ChainID is nil the chain id is read from
// the node once here and then pinned for the life of the client.
func Dial(ctx context.Context, rpcURL string, cfg Config, log *zap.Logger) (*Client, error) {
	trimmed := strings.TrimSpace(rpcURL)
	if trimmed == "" {
		return nil, fmt.Errorf("rpc url required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ec, err := ethclient.DialContext(dialCtx, trimmed)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", trimmed, err)
	}
	if cfg.ChainID == nil || cfg.ChainID.Sign() <= 0 {
		id, err := ec.ChainID(dialCtx)
		if err != nil {
			ec.Close()
			return nil, fmt.Errorf("read chain id: %w", err)
		}
		cfg.ChainID = id
	}
	c, err := NewClient(ec, cfg, log)
	if err != nil {
		ec.Close()
		return nil, err
	}
	log.Info("chain client connected",
		zap.String("chain_id", cfg.ChainID.String()),
		zap.Bool("native", c.IsNative()),
	)
	return c, nil
}

// Close releases the underlying RPC connection when the backend owns one.
func (c *Client) Close() {
	if closer, ok := c.backend.(interface{ Close() }); ok {
		closer.Close()
	}
}

func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

func (c *Client) IsNative() bool {
	return c.token == (common.Address{})
}

func (c *Client) Token() common.Address {
	return c.token
}

func (c *Client) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// NativeBalance returns the latest native balance of addr.
func (c *Client) NativeBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	cctx, cancel := c.callCtx(ctx)
	defer cancel()
	bal, err := c.backend.BalanceAt(cctx, addr, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindNetworkUnavailable, err, "read native balance")
	}
	return bal, nil
}

// TokenBalance returns owner's balance of token together with the token's
// decimals. Both are read on every call.
func (c *Client) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, uint8, error) {
	decimals, err := c.tokenDecimals(ctx, token)
	if err != nil {
		return nil, 0, err
	}
	data, err := packBalanceOf(owner)
	if err != nil {
		return nil, 0, fmt.Errorf("pack balanceOf: %w", err)
	}
	out, err := c.call(ctx, token, data)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.KindNetworkUnavailable, err, "read token balance")
	}
	bal, err := unpackBalance(out)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.KindNetworkUnavailable, err, "decode token balance")
	}
	return bal, decimals, nil
}

func (c *Client) tokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	data, err := packDecimals()
	if err != nil {
		return 0, fmt.Errorf("pack decimals: %w", err)
	}
	out, err := c.call(ctx, token, data)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindNetworkUnavailable, err, "read token decimals")
	}
	dec, err := unpackDecimals(out)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindNetworkUnavailable, err, "decode token decimals")
	}
	return dec, nil
}

func (c *Client) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	cctx, cancel := c.callCtx(ctx)
	defer cancel()
	return c.backend.CallContract(cctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}

// SuggestGasPrice returns the node's current gas price.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	cctx, cancel := c.callCtx(ctx)
	defer cancel()
	price, err := c.backend.SuggestGasPrice(cctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindNetworkUnavailable, err, "read gas price")
	}
	return price, nil
}

// EstimateGas never fails: when the node cannot estimate, the conservative
// fallback for the transfer kind is returned with estimated=false.
func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (gas uint64, estimated bool) {
	fallback := NativeTransferGasFallback
	if len(msg.Data) > 0 {
		fallback = TokenTransferGasFallback
	}
	cctx, cancel := c.callCtx(ctx)
	defer cancel()
	gas, err := c.backend.EstimateGas(cctx, msg)
	if err != nil || gas == 0 {
		c.log.Debug("gas estimation failed, using fallback",
			zap.Uint64("fallback", fallback),
			zap.Error(err),
		)
		return fallback, false
	}
	return gas, true
}

// Receipt returns the mined receipt for hash or ErrReceiptNotFound.
func (c *Client) Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	cctx, cancel := c.callCtx(ctx)
	defer cancel()
	receipt, err := c.backend.TransactionReceipt(cctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, ErrReceiptNotFound
		}
		return nil, apperr.Wrap(apperr.KindNetworkUnavailable, err, "read receipt")
	}
	if receipt == nil {
		return nil, ErrReceiptNotFound
	}
	return receipt, nil
}

// privateKey turns the opaque key into an ECDSA key. The result must not
// outlive the calling frame.
func privateKey(k secret.SigningKey) (*ecdsa.PrivateKey, error) {
	if err := k.Validate(); err != nil {
		return nil, apperr.New(apperr.KindInvalidCredential, "signing key is malformed")
	}
	raw := k.Expose()
	defer clear(raw)
	priv, err := gethcrypto.ToECDSA(raw)
	if err != nil {
		return nil, apperr.New(apperr.KindInvalidCredential, "signing key is not a valid secp256k1 key")
	}
	return priv, nil
}

// AddressOf derives the account address controlled by k.
func AddressOf(k secret.SigningKey) (common.Address, error) {
	priv, err := privateKey(k)
	if err != nil {
		return common.Address{}, err
	}
	return gethcrypto.PubkeyToAddress(priv.PublicKey), nil
}
