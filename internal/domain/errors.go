package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAuctionParams = errors.New("invalid auction parameters")
	ErrAssetNotAuthorized   = errors.New("asset not authorized for transfer")
	ErrAuctionNotFound      = errors.New("auction not found")
	ErrAuctionTerminated    = errors.New("auction already terminated")
	ErrNotSeller            = errors.New("caller is not the seller")
	ErrInsufficientPayment  = errors.New("offered amount below current price")
	ErrEnginePaused         = errors.New("engine is paused")
	ErrLockHeld             = errors.New("lock already held")
)

// SettlementStage identifies how far a Buy call progressed before failing.
type SettlementStage string

const (
	StageAssetTransfer SettlementStage = "asset_transfer"
	StageFeePayment    SettlementStage = "fee_payment"
	StageSellerPayout  SettlementStage = "seller_payout"
	StageRefund        SettlementStage = "refund"
)

// AssetTransferError reports that the asset-transfer collaborator rejected a
// transfer during settlement. The auction is rolled back to open; no funds
// have moved.
type AssetTransferError struct {
	AuctionID AuctionID
	Err       error
}

func (e *AssetTransferError) Error() string {
	return fmt.Sprintf("auction %d: asset transfer failed: %v", e.AuctionID, e.Err)
}

func (e *AssetTransferError) Unwrap() error { return e.Err }

// PaymentError reports a payment-collaborator failure after the asset already
// moved. The engine does not attempt compensating asset reversal; the stage
// tells external reconciliation exactly which disbursement did not complete.
type PaymentError struct {
	AuctionID AuctionID
	Stage     SettlementStage
	Err       error
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("auction %d: payment failed at stage %s: %v", e.AuctionID, e.Stage, e.Err)
}

func (e *PaymentError) Unwrap() error { return e.Err }
