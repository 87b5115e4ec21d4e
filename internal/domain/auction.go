package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// AuctionStatus represents the lifecycle state of an auction record. The only
// legal transitions are open -> sold and open -> cancelled; both are terminal.
type AuctionStatus string

const (
	AuctionStatusOpen      AuctionStatus = "open"
	AuctionStatusSold      AuctionStatus = "sold"
	AuctionStatusCancelled AuctionStatus = "cancelled"
)

// Terminal reports whether the status is one of the two terminal states.
func (s AuctionStatus) Terminal() bool {
	return s == AuctionStatusSold || s == AuctionStatusCancelled
}

// AuctionID is a densely increasing identifier assigned at creation and never
// reused.
type AuctionID uint64

// AssetRef is an opaque reference to the asset being sold: a contract address
// plus, for unique assets, the item identifier within that contract. Fungible
// assets are sold in a fixed unit quantity of 1.
type AssetRef struct {
	Contract common.Address `json:"contract"`
	ItemID   *big.Int       `json:"item_id,omitempty"`
	Unique   bool           `json:"unique"`
}

// Auction represents one descending-price listing. All fields except Status
// (and ClosedAt, which is set when Status becomes terminal) are immutable
// after creation.
type Auction struct {
	ID         AuctionID      `json:"id"`
	Seller     common.Address `json:"seller"`
	Asset      AssetRef       `json:"asset"`
	StartPrice *big.Int       `json:"start_price"`
	FloorPrice *big.Int       `json:"floor_price"`
	// PriceStep is the per-second price decrement, derived once at creation
	// and stored so repeated price reads never recompute (and never drift).
	PriceStep *big.Int      `json:"price_step"`
	StartTime time.Time     `json:"start_time"`
	Duration  time.Duration `json:"duration"`
	Status    AuctionStatus `json:"status"`
	ClosedAt  *time.Time    `json:"closed_at,omitempty"`
}

// PaymentRef identifies the buyer-funded payment pool that settlement
// disburses from (fee, seller proceeds, surplus refund).
type PaymentRef string

// Receipt is returned from a successful purchase.
type Receipt struct {
	ID             string         `json:"id"`
	AuctionID      AuctionID      `json:"auction_id"`
	Buyer          common.Address `json:"buyer"`
	PricePaid      *big.Int       `json:"price_paid"`
	Fee            *big.Int       `json:"fee"`
	SellerProceeds *big.Int       `json:"seller_proceeds"`
	Refund         *big.Int       `json:"refund"`
	SoldAt         time.Time      `json:"sold_at"`
}
