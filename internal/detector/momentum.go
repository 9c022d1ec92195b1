package detector

import (
	"math"
	"time"

	"github.com/quantfold/polyscout/internal/config"
	"github.com/quantfold/polyscout/internal/domain"
)

// Momentum trades price trends: short 1h bursts, sustained 24h moves with
// aligned direction, and contrarian rebounds after drops that sentiment
// cannot explain.
type Momentum struct {
	cfg config.MomentumDetectorConfig
	now func() time.Time
}

func NewMomentum(cfg config.MomentumDetectorConfig) *Momentum {
	return &Momentum{cfg: cfg, now: time.Now}
}

func (d *Momentum) Name() string { return "momentum" }

func (d *Momentum) Detect(markets []domain.Market, dctx domain.DetectionContext) []domain.Opportunity {
	now := d.now()
	var opps []domain.Opportunity
	for _, m := range tradeable(markets) {
		if o, ok := d.shortMomentum(m, now); ok {
			opps = append(opps, o)
		}
		if o, ok := d.longMomentum(m, now); ok {
			opps = append(opps, o)
		}
		if o, ok := d.contrarian(m, dctx.Sentiment, now); ok {
			opps = append(opps, o)
		}
	}
	return opps
}

// shortMomentum follows a 1h move, expecting roughly half of it to continue.
func (d *Momentum) shortMomentum(m domain.Market, now time.Time) (domain.Opportunity, bool) {
	change := m.PriceChange1h
	if math.Abs(change) < d.cfg.MinMomentum1h {
		return domain.Opportunity{}, false
	}
	action := domain.ActionBuyYes
	if change < 0 {
		action = domain.ActionBuyNo
	}
	return domain.Opportunity{
		Type:              domain.TypeMomentumShort,
		Action:            action,
		DetectorName:      d.Name(),
		ExpectedProfitPct: math.Abs(change) * 50,
		Confidence:        math.Min(75, 55+math.Abs(change)*200),
		MarketID:          m.ID,
		MarketQuestion:    m.Question,
		YesPrice:          m.YesPrice,
		NoPrice:           m.NoPrice,
		Extra: map[string]string{
			"change_1h": fmtFloat(change),
		},
		DaysToResolution: resolutionDays(m, now),
		DetectedAt:       now,
	}, true
}

// longMomentum requires the 24h move and 1h move to point the same way; a
// diverging 1h change means the trend is losing force.
func (d *Momentum) longMomentum(m domain.Market, now time.Time) (domain.Opportunity, bool) {
	change := m.PriceChange24h
	if math.Abs(change) < d.cfg.MinMomentum24h {
		return domain.Opportunity{}, false
	}
	if m.PriceChange1h*change < 0 {
		return domain.Opportunity{}, false
	}
	action := domain.ActionBuyYes
	if change < 0 {
		action = domain.ActionBuyNo
	}
	return domain.Opportunity{
		Type:              domain.TypeMomentumLong,
		Action:            action,
		DetectorName:      d.Name(),
		ExpectedProfitPct: math.Abs(change) * 30,
		Confidence:        math.Min(80, 60+math.Abs(change)*100),
		MarketID:          m.ID,
		MarketQuestion:    m.Question,
		YesPrice:          m.YesPrice,
		NoPrice:           m.NoPrice,
		Extra: map[string]string{
			"change_24h": fmtFloat(change),
			"change_1h":  fmtFloat(m.PriceChange1h),
		},
		DaysToResolution: resolutionDays(m, now),
		DetectedAt:       now,
	}, true
}

// contrarian buys a sharp 1h drop when no negative sentiment justifies it,
// expecting a rebound of about half the move.
func (d *Momentum) contrarian(m domain.Market, sentiment map[string]domain.SentimentSignal, now time.Time) (domain.Opportunity, bool) {
	change := m.PriceChange1h
	if change > d.cfg.ContrarianThreshold {
		return domain.Opportunity{}, false
	}
	if sig, ok := sentiment[m.ID]; ok && sig.Label == "negative" {
		// Drop is justified; nothing irrational to fade.
		return domain.Opportunity{}, false
	}
	return domain.Opportunity{
		Type:              domain.TypeContrarian,
		Action:            domain.ActionBuyYes,
		DetectorName:      d.Name(),
		ExpectedProfitPct: math.Abs(change) * 0.5 * 100,
		Confidence:        math.Min(70, 50+math.Abs(change)*150),
		MarketID:          m.ID,
		MarketQuestion:    m.Question,
		YesPrice:          m.YesPrice,
		NoPrice:           m.NoPrice,
		Extra: map[string]string{
			"drop_1h": fmtFloat(change),
		},
		DaysToResolution: resolutionDays(m, now),
		DetectedAt:       now,
	}, true
}

// resolutionDays carries the market's horizon onto the opportunity so the
// risk manager can enforce the minimum-hours floor for momentum plays. Nil
// when the market has no end date.
func resolutionDays(m domain.Market, now time.Time) *float64 {
	if d, ok := m.DaysToResolution(now); ok {
		return &d
	}
	return nil
}
