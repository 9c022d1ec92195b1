package domain

import "context"

// VenueClient is the external market-data collaborator. Implementations live
// outside the engine; they are expected to cache internally and degrade to
// stale data on error rather than failing the cycle.
type VenueClient interface {
	Name() string
	FetchMarkets(ctx context.Context, limit int) ([]Market, error)
	FetchEvents(ctx context.Context, limit int) ([]Event, error)
}

// MarketStatus is the venue's view of a single market, polled by the
// lifecycle component to detect resolution.
type MarketStatus struct {
	MarketID string
	YesPrice float64
	NoPrice  float64
	Closed   bool
	// Outcome is "yes" or "no" when the venue reports an explicit winner,
	// empty otherwise.
	Outcome string
}

// MarketStatusClient resolves current status for individual markets.
type MarketStatusClient interface {
	FetchMarketStatus(ctx context.Context, marketID string) (MarketStatus, error)
}

// OrderResult is the submission collaborator's answer.
type OrderResult struct {
	OK      bool
	OrderID string
}

// OrderSubmitter is the external wallet/order machinery. The engine only
// hands it a sized request; signing and settlement are not its concern.
type OrderSubmitter interface {
	SubmitOrder(ctx context.Context, marketID string, side Side, amountUSD, limitPrice float64) (OrderResult, error)
}

// AlertSender is the external notification channel, rate-limited by the
// caller to at most one send per configured interval.
type AlertSender interface {
	SendAlert(ctx context.Context, message string) error
}
