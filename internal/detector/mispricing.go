package detector

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/quantfold/polyscout/internal/config"
	"github.com/quantfold/polyscout/internal/domain"
)

// fairValuePattern maps a question pattern to a crude prior probability.
// Used only for fresh markets where the crowd has not set the price yet.
type fairValuePattern struct {
	pattern *regexp.Regexp
	prob    float64
}

var fairValuePatterns = []fairValuePattern{
	{regexp.MustCompile(`super\s*bowl`), 0.95},
	{regexp.MustCompile(`fed.*rate.*cut`), 0.65},
	{regexp.MustCompile(`fed.*rate.*hike`), 0.30},
	{regexp.MustCompile(`shutdown`), 0.25},
	{regexp.MustCompile(`alien`), 0.02},
}

// Mispricing finds prices the crowd has not corrected yet: markets too new
// to be efficient, and thin markets trading away from their category peers.
type Mispricing struct {
	cfg config.MispricingDetectorConfig
	now func() time.Time
}

func NewMispricing(cfg config.MispricingDetectorConfig) *Mispricing {
	return &Mispricing{cfg: cfg, now: time.Now}
}

func (d *Mispricing) Name() string { return "mispricing" }

func (d *Mispricing) Detect(markets []domain.Market, _ domain.DetectionContext) []domain.Opportunity {
	live := tradeable(markets)
	byCategory := groupByCategory(live)

	now := d.now()
	var opps []domain.Opportunity
	for _, m := range live {
		if o, ok := d.newMarket(m, now); ok {
			opps = append(opps, o)
		}
		if o, ok := d.lowLiquidity(m, byCategory[m.Category], now); ok {
			opps = append(opps, o)
		}
	}
	return opps
}

// newMarket compares a market under the configured age against a prior
// probability from its question pattern (0.5 when nothing matches). High
// 24h volume means the price has already been arbitraged.
func (d *Mispricing) newMarket(m domain.Market, now time.Time) (domain.Opportunity, bool) {
	if m.CreatedAt == nil {
		return domain.Opportunity{}, false
	}
	age := now.Sub(*m.CreatedAt).Hours()
	if age < 0 || age > d.cfg.NewMarketHours {
		return domain.Opportunity{}, false
	}
	if m.Volume24h > 50000 {
		return domain.Opportunity{}, false
	}

	fair := estimateFairValue(m.Question)
	gap := fair - m.YesPrice
	if math.Abs(gap) < d.cfg.MinMispricing {
		return domain.Opportunity{}, false
	}

	action := domain.ActionBuyYes
	if gap < 0 {
		action, gap = domain.ActionBuyNo, -gap
	}
	return domain.Opportunity{
		Type:              domain.TypeNewMarketMispricing,
		Action:            action,
		DetectorName:      d.Name(),
		ExpectedProfitPct: gap * 100,
		Confidence:        60, // fair value is an estimate
		MarketID:          m.ID,
		MarketQuestion:    m.Question,
		YesPrice:          m.YesPrice,
		NoPrice:           m.NoPrice,
		Extra: map[string]string{
			"fair_value_estimate": fmtFloat(fair),
			"hours_since_create":  fmtDays(age),
		},
		DetectedAt: now,
	}, true
}

// lowLiquidity compares a thin but not dead market against the mean YES
// price of its category peers. Requires at least two peers to form a mean.
func (d *Mispricing) lowLiquidity(m domain.Market, peers []domain.Market, now time.Time) (domain.Opportunity, bool) {
	if m.Volume24h > d.cfg.LowLiquidityThreshold || m.Volume24h < 100 {
		return domain.Opportunity{}, false
	}

	sum, n := 0.0, 0
	for _, p := range peers {
		if p.ID == m.ID {
			continue
		}
		sum += p.YesPrice
		n++
	}
	if n < 2 {
		return domain.Opportunity{}, false
	}

	avg := sum / float64(n)
	gap := avg - m.YesPrice
	if math.Abs(gap) < d.cfg.MinMispricing {
		return domain.Opportunity{}, false
	}

	action := domain.ActionBuyYes
	if gap < 0 {
		action, gap = domain.ActionBuyNo, -gap
	}
	return domain.Opportunity{
		Type:              domain.TypeLowLiquidityMispricing,
		Action:            action,
		DetectorName:      d.Name(),
		ExpectedProfitPct: gap * 100,
		Confidence:        55, // thin book, exit may be hard
		MarketID:          m.ID,
		MarketQuestion:    m.Question,
		YesPrice:          m.YesPrice,
		NoPrice:           m.NoPrice,
		Extra: map[string]string{
			"peer_count":     strconv.Itoa(n),
			"avg_peer_price": fmtFloat(avg),
		},
		DetectedAt: now,
	}, true
}

func estimateFairValue(question string) float64 {
	q := strings.ToLower(question)
	for _, fv := range fairValuePatterns {
		if fv.pattern.MatchString(q) {
			return fv.prob
		}
	}
	return 0.5
}

func groupByCategory(markets []domain.Market) map[domain.MarketCategory][]domain.Market {
	groups := make(map[domain.MarketCategory][]domain.Market)
	for _, m := range markets {
		groups[m.Category] = append(groups[m.Category], m)
	}
	return groups
}
