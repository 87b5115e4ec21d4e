package domain

// EventType names one engine event. The same value is used for the signal bus
// envelope, the audit log, and the notification filter, so operators configure
// a single vocabulary everywhere.
type EventType string

const (
	EventAuctionCreated          EventType = "auction_created"
	EventAuctionSold             EventType = "auction_sold"
	EventAuctionCancelled        EventType = "auction_cancelled"
	EventSettlementInconsistency EventType = "settlement_inconsistency"

	// Operational events recorded in the audit log only.
	EventAssetTransferFailed EventType = "asset_transfer_failed"
	EventPersistFailed       EventType = "persist_failed"
	EventArchiveRun          EventType = "archive_run"
)
