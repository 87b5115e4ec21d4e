package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/vogeb-org/auctiond/internal/domain"
)

// paymentVaultABI is the disbursement surface of the escrow vault. Buyers fund
// a pool before purchase; settlement disburses fee, proceeds, and refund out
// of it.
const paymentVaultABI = `[
	{"type":"function","name":"disburse","stateMutability":"nonpayable","inputs":[{"name":"pool","type":"bytes32"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]}
]`

// PaymentVault implements domain.PaymentMover against the on-chain escrow
// vault contract.
type PaymentVault struct {
	client   *Client
	contract *bind.BoundContract
}

// NewPaymentVault creates a PaymentVault bound to the vault at addr.
func NewPaymentVault(c *Client, addr common.Address) (*PaymentVault, error) {
	vaultABI, err := abi.JSON(strings.NewReader(paymentVaultABI))
	if err != nil {
		return nil, fmt.Errorf("chain: parse vault abi: %w", err)
	}
	return &PaymentVault{
		client:   c,
		contract: bind.NewBoundContract(addr, vaultABI, c.eth, c.eth, c.eth),
	}, nil
}

// poolID maps a payment reference to the vault's bytes32 pool identifier.
// A 32-byte hex reference is used verbatim; anything else is hashed.
func poolID(ref domain.PaymentRef) common.Hash {
	s := string(ref)
	if strings.HasPrefix(s, "0x") && len(s) == 66 {
		return common.HexToHash(s)
	}
	return gethcrypto.Keccak256Hash([]byte(s))
}

// Pay disburses amount from the referenced pool to the recipient and waits for
// the transaction to be mined. A non-positive amount is a no-op.
func (v *PaymentVault) Pay(ctx context.Context, pool domain.PaymentRef, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}

	ctx, cancel := v.client.opContext(ctx)
	defer cancel()

	opts, err := v.client.txOpts(ctx)
	if err != nil {
		return err
	}

	tx, err := v.contract.Transact(opts, "disburse", poolID(pool), to, amount)
	if err != nil {
		return fmt.Errorf("chain: disburse from pool %s: %w", pool, err)
	}
	return v.client.waitMined(ctx, tx)
}

// Compile-time interface check.
var _ domain.PaymentMover = (*PaymentVault)(nil)
