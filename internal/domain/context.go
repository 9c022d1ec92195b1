package domain

// DetectionContext carries the optional auxiliary feeds a detector may use.
// Every field may be nil/empty; a detector treats missing data as "no
// signal", never as an error.
type DetectionContext struct {
	// Events groups markets of multi-outcome questions, for multi-outcome
	// arbitrage.
	Events []Event
	// CrossVenueMarkets is a second venue's market list, for cross-platform
	// arbitrage. Keyed presentation is flat; matching is textual.
	CrossVenueMarkets []Market
	// WhaleTransactions is the recent large-trade feed.
	WhaleTransactions []WhaleTransaction
	// VolumeHistory maps market ID to its trailing average hourly volume.
	VolumeHistory map[string]float64
	// Sentiment maps market ID to the latest coarse sentiment signal.
	Sentiment map[string]SentimentSignal
}
