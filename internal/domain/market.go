// Package domain defines the value types and collaborator interfaces shared
// by every component of the engine. Values are constructed fresh each fetch
// cycle and never mutated afterwards; a changed price is a new Market value.
package domain

import (
	"math"
	"time"
)

// MarketCategory groups markets by topic for diversification caps.
type MarketCategory string

const (
	CategoryPolitics      MarketCategory = "politics"
	CategoryCrypto        MarketCategory = "crypto"
	CategorySports        MarketCategory = "sports"
	CategoryScience       MarketCategory = "science"
	CategoryBusiness      MarketCategory = "business"
	CategoryEntertainment MarketCategory = "entertainment"
	CategoryOther         MarketCategory = "other"
)

// Market is a venue-agnostic snapshot of a binary prediction market.
type Market struct {
	ID            string
	Question      string
	Slug          string
	YesPrice      float64
	NoPrice       float64
	Volume24h     float64
	VolumeTotal   float64
	Liquidity     float64
	PriceChange1h float64
	PriceChange24h float64
	EndDate       *time.Time
	CreatedAt     *time.Time
	Category      MarketCategory
	IsActive      bool
	IsClosed      bool
}

// Valid reports whether the snapshot satisfies the price invariant: both
// prices finite and inside [0,1]. Invalid snapshots are dropped at ingestion,
// never propagated.
func (m Market) Valid() bool {
	for _, p := range [...]float64{m.YesPrice, m.NoPrice} {
		if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 || p > 1 {
			return false
		}
	}
	return true
}

// DaysToResolution returns the number of days until the market's end date,
// measured from now. The second return is false when no end date is known.
func (m Market) DaysToResolution(now time.Time) (float64, bool) {
	if m.EndDate == nil {
		return 0, false
	}
	return m.EndDate.Sub(now).Hours() / 24, true
}

// PriceSum is YesPrice + NoPrice; in an efficient market it is ~1.0.
func (m Market) PriceSum() float64 {
	return m.YesPrice + m.NoPrice
}

// Spread is the absolute YES/NO price gap.
func (m Market) Spread() float64 {
	return math.Abs(m.YesPrice - m.NoPrice)
}

// Tradeable reports whether the market is open for trading and its prices
// carry signal (strictly inside (0,1)).
func (m Market) Tradeable() bool {
	return m.IsActive && !m.IsClosed && m.YesPrice > 0 && m.YesPrice < 1
}

// Event groups the constituent markets of a multi-outcome question
// (e.g. "who wins the election" with one market per candidate).
type Event struct {
	ID      string
	Title   string
	Markets []Market
}

// WhaleTransaction is a single large trade observed by an external tracker.
type WhaleTransaction struct {
	MarketID  string
	Side      Side
	AmountUSD float64
	Wallet    string
	SeenAt    time.Time
}

// SentimentSignal is the coarse output of an external sentiment collaborator.
type SentimentSignal struct {
	MarketID  string
	Label     string // "positive", "negative", "neutral"
	BuzzScore float64
}
