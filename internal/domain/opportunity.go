package domain

import "time"

// OpportunityType identifies the heuristic family that produced a candidate
// trade. The set is closed: adding a type requires updating TypePriority, so
// a missing table entry is caught by the exhaustiveness test.
type OpportunityType string

const (
	// Arbitrage (mathematically bounded risk).
	TypeMultiOutcomeArb  OpportunityType = "multi_outcome_arb"
	TypeCrossPlatformArb OpportunityType = "cross_platform_arb"
	TypeYesNoMismatch    OpportunityType = "yes_no_mismatch"

	// Time decay.
	TypeTimeDecay          OpportunityType = "time_decay"
	TypeImprobableExpiring OpportunityType = "improbable_expiring"

	// Resolution predictable.
	TypeAlreadyResolved OpportunityType = "already_resolved"
	TypeNearCertain     OpportunityType = "near_certain"

	// Whale / volume.
	TypeWhaleActivity  OpportunityType = "whale_activity"
	TypeAbnormalVolume OpportunityType = "abnormal_volume"

	// Momentum.
	TypeMomentumShort OpportunityType = "momentum_short"
	TypeMomentumLong  OpportunityType = "momentum_long"
	TypeContrarian    OpportunityType = "contrarian"

	// Mispricing.
	TypeNewMarketMispricing    OpportunityType = "new_market_mispricing"
	TypeLowLiquidityMispricing OpportunityType = "low_liquidity_mispricing"

	// Correlation.
	TypeCorrelationDivergence OpportunityType = "correlation_divergence"
)

// TypePriority is the fixed per-type base priority used in the composite
// rank score. Higher is better. Arbitrage > resolution > time decay >
// whale/volume > momentum > mispricing > correlation.
var TypePriority = map[OpportunityType]int{
	TypeMultiOutcomeArb:  100,
	TypeYesNoMismatch:    98,
	TypeCrossPlatformArb: 95,

	TypeAlreadyResolved: 90,
	TypeNearCertain:     85,

	TypeTimeDecay:          80,
	TypeImprobableExpiring: 75,

	TypeWhaleActivity:  70,
	TypeAbnormalVolume: 65,

	TypeMomentumLong:  60,
	TypeMomentumShort: 55,
	TypeContrarian:    50,

	TypeNewMarketMispricing:    45,
	TypeLowLiquidityMispricing: 40,

	TypeCorrelationDivergence: 25,
}

// AllOpportunityTypes lists every member of the closed enum, in priority order.
var AllOpportunityTypes = []OpportunityType{
	TypeMultiOutcomeArb, TypeYesNoMismatch, TypeCrossPlatformArb,
	TypeAlreadyResolved, TypeNearCertain,
	TypeTimeDecay, TypeImprobableExpiring,
	TypeWhaleActivity, TypeAbnormalVolume,
	TypeMomentumLong, TypeMomentumShort, TypeContrarian,
	TypeNewMarketMispricing, TypeLowLiquidityMispricing,
	TypeCorrelationDivergence,
}

// Action is what the engine should do about an opportunity.
type Action string

const (
	ActionBuyYes    Action = "buy_yes"
	ActionBuyNo     Action = "buy_no"
	ActionBuyBoth   Action = "buy_both"    // YES/NO mismatch arbitrage
	ActionBuyAllYes Action = "buy_all_yes" // multi-outcome, sum < 1
	ActionBuyAllNo  Action = "buy_all_no"  // multi-outcome, sum > 1
)

// YesFlavored reports whether the action buys YES exposure. Both-sided
// arbitrage actions are neither yes- nor no-flavored for conflict purposes.
func (a Action) YesFlavored() bool { return a == ActionBuyYes || a == ActionBuyAllYes }

// NoFlavored reports whether the action buys NO exposure.
func (a Action) NoFlavored() bool { return a == ActionBuyNo || a == ActionBuyAllNo }

// OpportunityLeg is one constituent market of a multi-outcome opportunity.
type OpportunityLeg struct {
	MarketID string
	Question string
	YesPrice float64
}

// Opportunity is a candidate trade emitted by exactly one detector. It is
// immutable after ranking except for RankScore, which the ranker sets.
type Opportunity struct {
	Type             OpportunityType
	Action           Action
	DetectorName     string
	ExpectedProfitPct float64 // non-negative
	Confidence       float64 // 0..100
	MarketID         string
	MarketQuestion   string
	YesPrice         float64
	NoPrice          float64
	DaysToResolution *float64
	Legs             []OpportunityLeg // multi-outcome only
	Extra            map[string]string
	DetectedAt       time.Time
	RankScore        float64 // computed by the ranker
}

// IsArbitrage reports whether the opportunity's type carries mathematically
// bounded risk and therefore bypasses the threshold filter.
func (o Opportunity) IsArbitrage() bool {
	switch o.Type {
	case TypeMultiOutcomeArb, TypeCrossPlatformArb, TypeYesNoMismatch:
		return true
	}
	return false
}

// TypePriorityValue returns the base priority for the opportunity's type,
// zero for unknown types.
func (o Opportunity) TypePriorityValue() int {
	return TypePriority[o.Type]
}

// ExpectedValue estimates EV per 100 units staked, assuming total loss on the
// losing branch: EV = p*profit - (1-p)*100 with p = confidence/100.
func (o Opportunity) ExpectedValue() float64 {
	p := o.Confidence / 100
	return p*o.ExpectedProfitPct - (1-p)*100
}
