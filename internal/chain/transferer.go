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
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"stakepool/internal/ledger"
)

// transferGas covers a plain value transfer. Recipients whose fallback needs
// more gas fail the transfer, which the ledger treats as a rejected payment.
const transferGas = 21_000

// Backend is the part of the RPC client a Transferer needs. *Client
// implements it.
type Backend interface {
	GetChainID(ctx context.Context) (*big.Int, error)
	PendingNonce(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// TransferConfig holds payout settings.
type TransferConfig struct {
	PrivateKey     string
	Retry          RetryPolicy
	PollInterval   time.Duration
	ConfirmTimeout time.Duration
}

// Transferer pays withdrawals out as native value transfers signed by the
// custody key and waits for them to be mined.
type Transferer struct {
	client  Backend
	key     *ecdsa.PrivateKey
	from    common.Address
	cfg     TransferConfig
	logger  *zap.Logger
	chainID *big.Int
}

func NewTransferer(ctx context.Context, client Backend, cfg TransferConfig, logger *zap.Logger) (*Transferer, error) {
	if client == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 2 * time.Minute
	}

	t := &Transferer{
		client: client,
		key:    key,
		from:   crypto.PubkeyToAddress(key.PublicKey),
		cfg:    cfg,
		logger: logger,
	}
	err = withRetry(ctx, cfg.Retry, func(ctx context.Context) error {
		var err error
		t.chainID, err = client.GetChainID(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get chain id: %w", err)
	}
	return t, nil
}

// From returns the custody account that funds payouts.
func (t *Transferer) From() common.Address {
	return t.from
}

// Transfer sends amount to the recipient. Failures before the send leave the
// funds in custody. Once sent, the transaction may still be mined, so a
// receipt that cannot be had within ConfirmTimeout yields
// ledger.ErrTransferPending whatever happens to ctx. Only a reverted receipt
// is a failed payment after that point.
func (t *Transferer) Transfer(ctx context.Context, to common.Address, amount *uint256.Int) error {
	var nonce uint64
	err := withRetry(ctx, t.cfg.Retry, func(ctx context.Context) error {
		var err error
		nonce, err = t.client.PendingNonce(ctx, t.from)
		if err != nil {
			t.logger.Warn("pending nonce fetch failed", zap.Error(err))
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("pending nonce: %w", err)
	}

	var gasPrice *big.Int
	err = withRetry(ctx, t.cfg.Retry, func(ctx context.Context) error {
		var err error
		gasPrice, err = t.client.SuggestGasPrice(ctx)
		if err != nil {
			t.logger.Warn("gas price fetch failed", zap.Error(err))
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    amount.ToBig(),
		Gas:      transferGas,
		GasPrice: gasPrice,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(t.chainID), t.key)
	if err != nil {
		return fmt.Errorf("sign transfer: %w", err)
	}

	// Sends are never retried.
	if err := t.client.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("send transfer: %w", err)
	}
	t.logger.Info("payout sent",
		zap.String("to", to.Hex()),
		zap.String("amount", amount.Dec()),
		zap.String("tx", signed.Hash().Hex()),
		zap.Uint64("nonce", nonce),
	)

	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.cfg.ConfirmTimeout)
	defer cancel()

	receipt, err := t.waitMined(waitCtx, signed.Hash())
	if err != nil {
		return fmt.Errorf("%w: %w", ledger.ErrTransferPending, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("transfer %s reverted", signed.Hash().Hex())
	}
	return nil
}

func (t *Transferer) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := t.client.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			t.logger.Warn("receipt fetch failed", zap.String("tx", hash.Hex()), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
