package detector

import (
	"math"
	"strconv"
	"time"

	"github.com/quantfold/polyscout/internal/config"
	"github.com/quantfold/polyscout/internal/domain"
)

// Whale follows smart money: consensus among large trades in one direction,
// and abnormal volume spikes with no sentiment coverage to explain them.
type Whale struct {
	cfg config.WhaleDetectorConfig
	now func() time.Time
}

func NewWhale(cfg config.WhaleDetectorConfig) *Whale {
	return &Whale{cfg: cfg, now: time.Now}
}

func (d *Whale) Name() string { return "whale" }

func (d *Whale) Detect(markets []domain.Market, dctx domain.DetectionContext) []domain.Opportunity {
	live := tradeable(markets)
	var opps []domain.Opportunity
	opps = append(opps, d.whaleConsensus(live, dctx.WhaleTransactions)...)
	opps = append(opps, d.abnormalVolume(live, dctx.VolumeHistory, dctx.Sentiment)...)
	return opps
}

// whaleConsensus fires when large trades on one market lean at least the
// consensus threshold toward one side. Confidence scales with the lean.
func (d *Whale) whaleConsensus(markets []domain.Market, txs []domain.WhaleTransaction) []domain.Opportunity {
	if len(txs) == 0 {
		return nil
	}

	type flow struct {
		yesUSD, noUSD float64
		count         int
	}
	flows := make(map[string]*flow)
	for _, tx := range txs {
		if tx.AmountUSD < d.cfg.MinWhaleAmountUSD {
			continue
		}
		f := flows[tx.MarketID]
		if f == nil {
			f = &flow{}
			flows[tx.MarketID] = f
		}
		if tx.Side == domain.SideYes {
			f.yesUSD += tx.AmountUSD
		} else {
			f.noUSD += tx.AmountUSD
		}
		f.count++
	}

	now := d.now()
	var opps []domain.Opportunity
	for _, m := range markets {
		f := flows[m.ID]
		if f == nil {
			continue
		}
		total := f.yesUSD + f.noUSD
		if total < d.cfg.MinWhaleAmountUSD*2 {
			continue
		}
		yesRatio := f.yesUSD / total

		var action domain.Action
		var consensus float64
		switch {
		case yesRatio >= d.cfg.ConsensusThreshold:
			action, consensus = domain.ActionBuyYes, yesRatio
		case yesRatio <= 1-d.cfg.ConsensusThreshold:
			action, consensus = domain.ActionBuyNo, 1-yesRatio
		default:
			continue
		}

		opps = append(opps, domain.Opportunity{
			Type:              domain.TypeWhaleActivity,
			Action:            action,
			DetectorName:      d.Name(),
			ExpectedProfitPct: 15, // follow-the-whale estimate
			Confidence:        consensus * 90,
			MarketID:          m.ID,
			MarketQuestion:    m.Question,
			YesPrice:          m.YesPrice,
			NoPrice:           m.NoPrice,
			Extra: map[string]string{
				"whale_count":     strconv.Itoa(f.count),
				"total_usd":       fmtFloat(total),
				"consensus_ratio": fmtFloat(consensus),
			},
			DetectedAt: now,
		})
	}
	return opps
}

// abnormalVolume fires when recent hourly volume runs a multiple of the
// trailing average with no sentiment coverage, a possible insider tell. The
// 1h price change supplies the direction; flat prices give no signal.
func (d *Whale) abnormalVolume(markets []domain.Market, volumeHistory map[string]float64, sentiment map[string]domain.SentimentSignal) []domain.Opportunity {
	if len(volumeHistory) == 0 {
		return nil
	}

	now := d.now()
	var opps []domain.Opportunity
	for _, m := range markets {
		hourly := m.Volume24h / 24
		avg, ok := volumeHistory[m.ID]
		if !ok {
			avg = hourly
		}
		if avg <= 0 {
			continue
		}
		ratio := hourly / avg
		if ratio < d.cfg.MinVolumeRatio {
			continue
		}

		// Covered markets have an explanation for the spike.
		if sig, ok := sentiment[m.ID]; ok && sig.BuzzScore > 0 {
			continue
		}

		var action domain.Action
		switch {
		case m.PriceChange1h > 0.03:
			action = domain.ActionBuyYes
		case m.PriceChange1h < -0.03:
			action = domain.ActionBuyNo
		default:
			continue
		}

		opps = append(opps, domain.Opportunity{
			Type:              domain.TypeAbnormalVolume,
			Action:            action,
			DetectorName:      d.Name(),
			ExpectedProfitPct: 10,
			Confidence:        math.Min(80, 60+math.Abs(m.PriceChange1h)*200),
			MarketID:          m.ID,
			MarketQuestion:    m.Question,
			YesPrice:          m.YesPrice,
			NoPrice:           m.NoPrice,
			Extra: map[string]string{
				"volume_ratio":    fmtFloat(ratio),
				"avg_hourly_usd":  fmtFloat(avg),
				"price_change_1h": fmtFloat(m.PriceChange1h),
			},
			DetectedAt: now,
		})
	}
	return opps
}
