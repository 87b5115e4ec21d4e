package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/vogeb-org/auctiond/internal/domain"
)

// Minimal ABI fragments for the two asset families the engine settles.
const (
	uniqueAssetABI = `[
		{"type":"function","name":"transferFrom","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"}],"outputs":[]},
		{"type":"function","name":"ownerOf","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
		{"type":"function","name":"isApprovedForAll","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"operator","type":"address"}],"outputs":[{"name":"","type":"bool"}]}
	]`

	fungibleAssetABI = `[
		{"type":"function","name":"transferFrom","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
		{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
	]`
)

// fungibleUnit is the fixed quantity a fungible-asset listing sells.
var fungibleUnit = big.NewInt(1)

// AssetBridge implements domain.AssetTransferor by calling the asset contract
// directly. Unique assets move via token-id transferFrom; fungible assets move
// a fixed unit amount.
type AssetBridge struct {
	client      *Client
	uniqueABI   abi.ABI
	fungibleABI abi.ABI
}

// NewAssetBridge creates an AssetBridge on top of the given chain client.
func NewAssetBridge(c *Client) (*AssetBridge, error) {
	uniq, err := abi.JSON(strings.NewReader(uniqueAssetABI))
	if err != nil {
		return nil, fmt.Errorf("chain: parse unique asset abi: %w", err)
	}
	fung, err := abi.JSON(strings.NewReader(fungibleAssetABI))
	if err != nil {
		return nil, fmt.Errorf("chain: parse fungible asset abi: %w", err)
	}
	return &AssetBridge{client: c, uniqueABI: uniq, fungibleABI: fung}, nil
}

func (b *AssetBridge) contract(ref domain.AssetRef) *bind.BoundContract {
	contractABI := b.fungibleABI
	if ref.Unique {
		contractABI = b.uniqueABI
	}
	return bind.NewBoundContract(ref.Contract, contractABI, b.client.eth, b.client.eth, b.client.eth)
}

// Transfer moves the auctioned asset from the seller to the buyer and waits
// for the transaction to be mined.
func (b *AssetBridge) Transfer(ctx context.Context, ref domain.AssetRef, from, to common.Address) error {
	ctx, cancel := b.client.opContext(ctx)
	defer cancel()

	opts, err := b.client.txOpts(ctx)
	if err != nil {
		return err
	}

	amount := fungibleUnit
	if ref.Unique {
		if ref.ItemID == nil {
			return fmt.Errorf("chain: unique asset %s missing item id", ref.Contract)
		}
		amount = ref.ItemID
	}

	tx, err := b.contract(ref).Transact(opts, "transferFrom", from, to, amount)
	if err != nil {
		return fmt.Errorf("chain: transfer asset %s: %w", ref.Contract, err)
	}
	return b.client.waitMined(ctx, tx)
}

// IsAuthorized reports whether the owner still holds the asset and has
// approved the operator to move it.
func (b *AssetBridge) IsAuthorized(ctx context.Context, ref domain.AssetRef, owner common.Address) (bool, error) {
	ctx, cancel := b.client.opContext(ctx)
	defer cancel()

	callOpts := &bind.CallOpts{Context: ctx}
	contract := b.contract(ref)

	if ref.Unique {
		if ref.ItemID == nil {
			return false, fmt.Errorf("chain: unique asset %s missing item id", ref.Contract)
		}

		var out []interface{}
		if err := contract.Call(callOpts, &out, "ownerOf", ref.ItemID); err != nil {
			return false, fmt.Errorf("chain: ownerOf %s: %w", ref.Contract, err)
		}
		if out[0].(common.Address) != owner {
			return false, nil
		}

		out = out[:0]
		if err := contract.Call(callOpts, &out, "isApprovedForAll", owner, b.client.operator); err != nil {
			return false, fmt.Errorf("chain: isApprovedForAll %s: %w", ref.Contract, err)
		}
		return out[0].(bool), nil
	}

	var out []interface{}
	if err := contract.Call(callOpts, &out, "balanceOf", owner); err != nil {
		return false, fmt.Errorf("chain: balanceOf %s: %w", ref.Contract, err)
	}
	if out[0].(*big.Int).Cmp(fungibleUnit) < 0 {
		return false, nil
	}

	out = out[:0]
	if err := contract.Call(callOpts, &out, "allowance", owner, b.client.operator); err != nil {
		return false, fmt.Errorf("chain: allowance %s: %w", ref.Contract, err)
	}
	return out[0].(*big.Int).Cmp(fungibleUnit) >= 0, nil
}

// Compile-time interface check.
var _ domain.AssetTransferor = (*AssetBridge)(nil)
