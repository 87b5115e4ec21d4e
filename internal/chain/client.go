// Package chain implements the asset-transfer and payment collaborators
// against an EVM-compatible host ledger via go-ethereum.
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Config holds the connection and operator-key parameters for the chain
// client. PrivateKey is hex without the 0x prefix, as returned by the key
// manager.
type Config struct {
	RPCURL      string
	ChainID     int64
	PrivateKey  string
	CallTimeout time.Duration
}

// Client wraps an ethclient connection and the operator key used to sign
// settlement transactions.
type Client struct {
	eth      *ethclient.Client
	key      *ecdsa.PrivateKey
	operator common.Address
	chainID  *big.Int
	timeout  time.Duration
}

// Dial connects to the RPC endpoint and prepares the operator transactor.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", cfg.RPCURL, err)
	}

	key, err := gethcrypto.HexToECDSA(cfg.PrivateKey)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("chain: parse operator key: %w", err)
	}

	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		eth:      eth,
		key:      key,
		operator: gethcrypto.PubkeyToAddress(key.PublicKey),
		chainID:  big.NewInt(cfg.ChainID),
		timeout:  timeout,
	}, nil
}

// Operator returns the address derived from the operator key. Sellers approve
// this address to move their assets; the payment vault recognizes it as the
// settlement caller.
func (c *Client) Operator() common.Address {
	return c.operator
}

// Close shuts down the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// opContext derives a bounded context for a single chain operation.
func (c *Client) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// txOpts builds signed transaction options bound to ctx.
func (c *Client) txOpts(ctx context.Context) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("chain: build transactor: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}

// waitMined blocks until the transaction is mined and returns an error when
// the receipt reports a revert.
func (c *Client) waitMined(ctx context.Context, tx *types.Transaction) error {
	receipt, err := bind.WaitMined(ctx, c.eth, tx)
	if err != nil {
		return fmt.Errorf("chain: wait mined %s: %w", tx.Hash(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("chain: tx %s reverted", tx.Hash())
	}
	return nil
}
