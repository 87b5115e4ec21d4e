package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AssetTransferor moves an asset between parties on the host ledger. The
// engine never takes custody: the asset stays with the seller until a
// successful purchase invokes Transfer exactly once.
type AssetTransferor interface {
	// Transfer moves the referenced asset from one party to another. Unique
	// assets move whole; fungible assets move a fixed unit quantity of 1.
	Transfer(ctx context.Context, ref AssetRef, from, to common.Address) error

	// IsAuthorized reports whether owner has pre-authorized the engine to
	// move the referenced asset.
	IsAuthorized(ctx context.Context, ref AssetRef, owner common.Address) (bool, error)
}

// PaymentMover disburses monetary value from a buyer-funded payment pool.
// A single inbound payment supports multiple partial disbursements (platform
// fee, seller proceeds, surplus refund).
type PaymentMover interface {
	Pay(ctx context.Context, pool PaymentRef, to common.Address, amount *big.Int) error
}
