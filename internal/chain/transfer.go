package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/likefeed/backend/internal/apperr"
	"github.com/likefeed/backend/internal/secret"
)

// TransferRequest asks for Amount (decimal token units) to be paid to To.
type TransferRequest struct {
	To     common.Address
	Amount string
}

// Quote is the outcome of a passed preflight: everything needed to build the
// transaction except the nonce, which is read right before signing.
type Quote struct {
	From          common.Address
	To            common.Address // recipient of the reward
	Token         common.Address // zero for native transfers
	Amount        *big.Int       // base units
	Decimals      uint8
	GasPrice      *big.Int
	GasLimit      uint64
	GasEstimated  bool
	NativeBalance *big.Int
	TokenBalance  *big.Int // nil for native transfers

	target common.Address // tx "to": token contract or recipient
	value  *big.Int
	data   []byte
}

// GasCost is GasLimit * GasPrice.
func (q *Quote) GasCost() *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(q.GasLimit), q.GasPrice)
}

// Prepare runs the preflight policy. It fails with InsufficientFunds before
// anything is signed when the sender cannot cover gas (and, for native
// transfers, the amount) or lacks the token amount.
func (c *Client) Prepare(ctx context.Context, key secret.SigningKey, req TransferRequest) (*Quote, error) {
	priv, err := privateKey(key)
	if err != nil {
		return nil, err
	}
	from := gethcrypto.PubkeyToAddress(priv.PublicKey)
	if req.To == (common.Address{}) {
		return nil, apperr.New(apperr.KindInvalidArgument, "recipient address required")
	}

	q := &Quote{From: from, To: req.To, Token: c.token}

	if c.IsNative() {
		q.Decimals = NativeDecimals
		q.Amount, err = ToBaseUnits(req.Amount, q.Decimals)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInvalidArgument, err, "%v", err)
		}
		q.target = req.To
		q.value = q.Amount
	} else {
		q.TokenBalance, q.Decimals, err = c.TokenBalance(ctx, c.token, from)
		if err != nil {
			return nil, err
		}
		q.Amount, err = ToBaseUnits(req.Amount, q.Decimals)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInvalidArgument, err, "%v", err)
		}
		q.data, err = packTransfer(req.To, q.Amount)
		if err != nil {
			return nil, fmt.Errorf("pack transfer: %w", err)
		}
		q.target = c.token
		q.value = new(big.Int)
	}

	q.GasPrice, err = c.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}
	target := q.target
	q.GasLimit, q.GasEstimated = c.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &target,
		Value: q.value,
		Data:  q.data,
	})

	q.NativeBalance, err = c.NativeBalance(ctx, from)
	if err != nil {
		return nil, err
	}

	need := q.GasCost()
	if c.IsNative() {
		need.Add(need, q.Amount)
	}
	if q.NativeBalance.Cmp(need) < 0 {
		return nil, apperr.New(apperr.KindInsufficientFunds,
			"native balance %s below required %s", q.NativeBalance, need)
	}
	if q.TokenBalance != nil && q.TokenBalance.Cmp(q.Amount) < 0 {
		return nil, apperr.New(apperr.KindInsufficientFunds,
			"token balance %s below transfer amount %s", q.TokenBalance, q.Amount)
	}
	return q, nil
}

// BuildAndSign builds a legacy EIP-155 transaction from q and signs it
// locally. The nonce is read here, immediately before signing. Callers that
// share a sender across goroutines must go through Submit instead.
func (c *Client) BuildAndSign(ctx context.Context, key secret.SigningKey, q *Quote) (*types.Transaction, error) {
	priv, err := privateKey(key)
	if err != nil {
		return nil, err
	}
	if gethcrypto.PubkeyToAddress(priv.PublicKey) != q.From {
		return nil, apperr.New(apperr.KindInvalidCredential, "signing key does not match quoted sender")
	}

	cctx, cancel := c.callCtx(ctx)
	pending, err := c.backend.PendingNonceAt(cctx, q.From)
	cancel()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransactionFailed, err, "read account nonce: %s", err.Error())
	}
	nonce := c.nonces.Pick(q.From, pending)

	target := q.target
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: q.GasPrice,
		Gas:      q.GasLimit,
		To:       &target,
		Value:    q.value,
		Data:     q.data,
	})
	signed, err := types.SignTx(tx, c.signer, priv)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransactionFailed, err, "sign transaction")
	}
	return signed, nil
}

// Broadcast submits a signed transaction and returns its hash once the node
// accepts it. It does not wait for inclusion. Only a JSON-RPC error reply is
// a rejection; a timeout or transport failure yields TransactionFailed with
// OutcomeUnknown set. It is never retried here.
func (c *Client) Broadcast(ctx context.Context, tx *types.Transaction) (common.Hash, error) {
	from, err := types.Sender(c.signer, tx)
	if err != nil {
		return common.Hash{}, apperr.Wrap(apperr.KindTransactionFailed, err, "recover sender")
	}
	if err := ctx.Err(); err != nil {
		return common.Hash{}, apperr.Wrap(apperr.KindTransactionFailed, err, "request cancelled before broadcast")
	}

	cctx, cancel := c.callCtx(ctx)
	defer cancel()
	err = c.backend.SendTransaction(cctx, tx)
	switch {
	case err == nil, isAlreadyKnown(err):
		c.nonces.Accepted(from, tx.Nonce())
		c.log.Info("transaction broadcast",
			zap.String("tx_hash", tx.Hash().Hex()),
			zap.String("from", from.Hex()),
			zap.Uint64("nonce", tx.Nonce()),
		)
		return tx.Hash(), nil
	case cctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		c.nonces.Forget(from)
		return common.Hash{}, apperr.Unknown(err, "broadcast of %s did not complete, outcome unknown", tx.Hash().Hex())
	case isRejection(err):
		c.nonces.Forget(from)
		return common.Hash{}, apperr.Wrap(apperr.KindTransactionFailed, err, "node rejected transaction: %s", err.Error())
	default:
		c.nonces.Forget(from)
		return common.Hash{}, apperr.Unknown(err, "broadcast of %s interrupted (%s), outcome unknown", tx.Hash().Hex(), err.Error())
	}
}

// isRejection reports whether err is a JSON-RPC error reply, meaning the node
// read the transaction and refused it.
func isRejection(err error) bool {
	var rpcErr rpc.Error
	return errors.As(err, &rpcErr)
}

// Submit serialises nonce acquisition, signing and broadcast per sender so
// two concurrent callers sharing a key never reuse a nonce. beforeBroadcast,
// when set, runs with the signed transaction while the lock is held; an
// error from it aborts without broadcasting.
func (c *Client) Submit(ctx context.Context, key secret.SigningKey, q *Quote, beforeBroadcast func(*types.Transaction) error) (common.Hash, error) {
	unlock := c.locks.Lock(q.From)
	defer unlock()

	tx, err := c.BuildAndSign(ctx, key, q)
	if err != nil {
		return common.Hash{}, err
	}
	if beforeBroadcast != nil {
		if err := beforeBroadcast(tx); err != nil {
			return common.Hash{}, err
		}
	}
	return c.Broadcast(ctx, tx)
}

func isAlreadyKnown(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "already known")
}
