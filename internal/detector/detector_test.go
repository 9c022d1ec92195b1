package detector

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/quantfold/polyscout/internal/config"
	"github.com/quantfold/polyscout/internal/domain"
)

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func market(id string, yes, no float64) domain.Market {
	return domain.Market{
		ID:       id,
		Question: "Will something happen?",
		YesPrice: yes,
		NoPrice:  no,
		IsActive: true,
	}
}

func TestArbitrageYesNoMismatch(t *testing.T) {
	d := NewArbitrage(config.Defaults().Detectors.Arbitrage)
	d.now = func() time.Time { return testTime }

	markets := []domain.Market{
		market("m1", 0.52, 0.45), // sum 0.97, below 0.98 threshold
		market("m2", 0.52, 0.47), // sum 0.99, inside tolerance
		market("m3", 0.60, 0.45), // sum 1.05, not buyable
	}

	opps := d.Detect(markets, domain.DetectionContext{})
	if len(opps) != 1 {
		t.Fatalf("got %d opportunities, want 1", len(opps))
	}
	o := opps[0]
	if o.Type != domain.TypeYesNoMismatch || o.Action != domain.ActionBuyBoth {
		t.Errorf("got type=%s action=%s", o.Type, o.Action)
	}
	if o.MarketID != "m1" {
		t.Errorf("got market %s, want m1", o.MarketID)
	}
	if got, want := o.ExpectedProfitPct, 3.0; !approx(got, want, 1e-9) {
		t.Errorf("profit = %v, want %v", got, want)
	}
	if o.Confidence != 99 {
		t.Errorf("confidence = %v, want 99", o.Confidence)
	}
}

func TestArbitrageMultiOutcome(t *testing.T) {
	cfg := config.Defaults().Detectors.Arbitrage
	d := NewArbitrage(cfg)
	d.now = func() time.Time { return testTime }

	mk := func(id string, yes float64) domain.Market {
		m := market(id, yes, 1-yes)
		m.Liquidity = 1000
		return m
	}

	tests := []struct {
		name       string
		markets    []domain.Market
		wantCount  int
		wantAction domain.Action
	}{
		{
			name:       "sum well above one buys NO everywhere",
			markets:    []domain.Market{mk("a", 0.50), mk("b", 0.45), mk("c", 0.35)}, // sum 1.30
			wantCount:  1,
			wantAction: domain.ActionBuyAllNo,
		},
		{
			name:       "sum well below one buys YES everywhere",
			markets:    []domain.Market{mk("a", 0.25), mk("b", 0.20), mk("c", 0.25)}, // sum 0.70
			wantCount:  1,
			wantAction: domain.ActionBuyAllYes,
		},
		{
			name:      "two outcomes is below the floor",
			markets:   []domain.Market{mk("a", 0.80), mk("b", 0.55)},
			wantCount: 0,
		},
		{
			name:      "gap smaller than fees yields nothing",
			markets:   []domain.Market{mk("a", 0.35), mk("b", 0.35), mk("c", 0.35)}, // sum 1.05
			wantCount: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dctx := domain.DetectionContext{
				Events: []domain.Event{{ID: "ev", Title: "Who wins?", Markets: tt.markets}},
			}
			opps := d.Detect(nil, dctx)
			if len(opps) != tt.wantCount {
				t.Fatalf("got %d opportunities, want %d", len(opps), tt.wantCount)
			}
			if tt.wantCount == 1 {
				if opps[0].Action != tt.wantAction {
					t.Errorf("action = %s, want %s", opps[0].Action, tt.wantAction)
				}
				if opps[0].Type != domain.TypeMultiOutcomeArb {
					t.Errorf("type = %s", opps[0].Type)
				}
				if len(opps[0].Legs) != len(tt.markets) {
					t.Errorf("legs = %d, want %d", len(opps[0].Legs), len(tt.markets))
				}
			}
		})
	}
}

func TestArbitrageMultiOutcomeLiquidityFloor(t *testing.T) {
	d := NewArbitrage(config.Defaults().Detectors.Arbitrage)
	d.now = func() time.Time { return testTime }

	thin := []domain.Market{market("a", 0.50, 0.50), market("b", 0.45, 0.55), market("c", 0.35, 0.65)}
	dctx := domain.DetectionContext{Events: []domain.Event{{ID: "ev", Markets: thin}}}
	if opps := d.Detect(nil, dctx); len(opps) != 0 {
		t.Fatalf("thin event fired %d opportunities, want 0", len(opps))
	}
}

func TestArbitrageCrossPlatformOnlyWhenHomeCheaper(t *testing.T) {
	d := NewArbitrage(config.Defaults().Detectors.Arbitrage)
	d.now = func() time.Time { return testTime }

	home := market("pm1", 0.78, 0.22)
	home.Question = "Will the fed cut interest rates in March?"

	expensive := market("k1", 0.85, 0.15)
	expensive.Question = "Fed cuts interest rates in March"

	opps := d.Detect([]domain.Market{home}, domain.DetectionContext{
		CrossVenueMarkets: []domain.Market{expensive},
	})
	if len(opps) != 1 {
		t.Fatalf("got %d opportunities, want 1", len(opps))
	}
	if opps[0].Action != domain.ActionBuyYes {
		t.Errorf("action = %s, want buy_yes", opps[0].Action)
	}

	// Flip the prices: home venue is now the expensive side, nothing to do.
	home.YesPrice, expensive.YesPrice = 0.85, 0.78
	opps = d.Detect([]domain.Market{home}, domain.DetectionContext{
		CrossVenueMarkets: []domain.Market{expensive},
	})
	if len(opps) != 0 {
		t.Fatalf("home-expensive direction fired %d opportunities, want 0", len(opps))
	}
}

func TestTimeDecayDeadline(t *testing.T) {
	d := NewTimeDecay(config.Defaults().Detectors.TimeDecay)
	d.now = func() time.Time { return testTime }

	endIn := func(days float64) *time.Time {
		e := testTime.Add(time.Duration(days * 24 * float64(time.Hour)))
		return &e
	}

	tests := []struct {
		name     string
		yes      float64
		days     float64
		question string
		want     bool
		wantConf float64
	}{
		{"close deadline high theta", 0.20, 1.5, "Will X happen before April?", true, 85},
		{"five day window", 0.25, 4, "Will X happen before April?", true, 75},
		{"ten day window", 0.30, 9, "Will X happen before April?", true, 65},
		{"not a deadline question", 0.20, 1.5, "Who wins the cup final match", false, 0},
		{"yes too high, event likely", 0.80, 2, "Will X happen before April?", false, 0},
		{"yes too low, nothing left", 0.03, 2, "Will X happen before April?", false, 0},
		{"theta below floor", 0.10, 13, "Will X happen before April?", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := market("m", tt.yes, 1-tt.yes)
			m.Question = tt.question
			m.EndDate = endIn(tt.days)

			opps := d.deadlineApproaching([]domain.Market{m})
			if got := len(opps) == 1; got != tt.want {
				t.Fatalf("fired=%v, want %v", got, tt.want)
			}
			if tt.want {
				if opps[0].Action != domain.ActionBuyNo {
					t.Errorf("action = %s, want buy_no", opps[0].Action)
				}
				if opps[0].Confidence != tt.wantConf {
					t.Errorf("confidence = %v, want %v", opps[0].Confidence, tt.wantConf)
				}
			}
		})
	}
}

func TestTimeDecayImprobableExpiring(t *testing.T) {
	d := NewTimeDecay(config.Defaults().Detectors.TimeDecay)
	d.now = func() time.Time { return testTime }

	end := testTime.Add(10 * 24 * time.Hour)

	alien := market("m1", 0.08, 0.92)
	alien.Question = "Will alien contact be confirmed this year?"
	alien.EndDate = &end

	cheap := market("m2", 0.02, 0.98)
	cheap.Question = "Will the outsider candidate win?"
	cheap.EndDate = &end

	plain := market("m3", 0.10, 0.90)
	plain.Question = "Will the outsider candidate win?"
	plain.EndDate = &end

	opps := d.improbableExpiring([]domain.Market{alien, cheap, plain})
	if len(opps) != 2 {
		t.Fatalf("got %d opportunities, want 2", len(opps))
	}
	if opps[0].MarketID != "m1" || opps[0].Confidence != 95 {
		t.Errorf("pattern hit: market=%s confidence=%v, want m1/95", opps[0].MarketID, opps[0].Confidence)
	}
	if opps[1].MarketID != "m2" || opps[1].Confidence != 90 {
		t.Errorf("cheap yes: market=%s confidence=%v, want m2/90", opps[1].MarketID, opps[1].Confidence)
	}
}

func TestResolutionNearCertain(t *testing.T) {
	d := NewResolution(config.Defaults().Detectors.Resolution)
	d.now = func() time.Time { return testTime }

	bowl := market("m1", 0.90, 0.10)
	bowl.Question = "Will the Super Bowl 2026 take place?"

	doom := market("m2", 0.20, 0.80)
	doom.Question = "Will the world end this year?"

	pinned := market("m3", 0.995, 0.005)
	pinned.Question = "Will the NBA Finals take place?"

	opps := d.Detect([]domain.Market{bowl, doom, pinned}, domain.DetectionContext{})
	if len(opps) != 2 {
		t.Fatalf("got %d opportunities, want 2", len(opps))
	}
	if opps[0].Action != domain.ActionBuyYes || opps[0].MarketID != "m1" {
		t.Errorf("certain-yes: action=%s market=%s", opps[0].Action, opps[0].MarketID)
	}
	if opps[1].Action != domain.ActionBuyNo || opps[1].MarketID != "m2" {
		t.Errorf("certain-no: action=%s market=%s", opps[1].Action, opps[1].MarketID)
	}
}

func TestResolutionPastEndDate(t *testing.T) {
	d := NewResolution(config.Defaults().Detectors.Resolution)
	d.now = func() time.Time { return testTime }

	past := testTime.Add(-48 * time.Hour)

	decidedYes := market("m1", 0.88, 0.12)
	decidedYes.EndDate = &past
	ambiguous := market("m2", 0.55, 0.45)
	ambiguous.EndDate = &past

	opps := d.Detect([]domain.Market{decidedYes, ambiguous}, domain.DetectionContext{})
	if len(opps) != 1 {
		t.Fatalf("got %d opportunities, want 1", len(opps))
	}
	if opps[0].Type != domain.TypeAlreadyResolved || opps[0].Action != domain.ActionBuyYes {
		t.Errorf("got type=%s action=%s", opps[0].Type, opps[0].Action)
	}
	if opps[0].Confidence != 92 {
		t.Errorf("confidence = %v, want 92", opps[0].Confidence)
	}
}

func TestWhaleConsensus(t *testing.T) {
	d := NewWhale(config.Defaults().Detectors.Whale)
	d.now = func() time.Time { return testTime }

	m := market("m1", 0.40, 0.60)
	txs := []domain.WhaleTransaction{
		{MarketID: "m1", Side: domain.SideYes, AmountUSD: 8000},
		{MarketID: "m1", Side: domain.SideYes, AmountUSD: 6000},
		{MarketID: "m1", Side: domain.SideNo, AmountUSD: 5000},
		{MarketID: "m1", Side: domain.SideYes, AmountUSD: 4000}, // below $5K floor, ignored
	}

	opps := d.Detect([]domain.Market{m}, domain.DetectionContext{WhaleTransactions: txs})
	if len(opps) != 1 {
		t.Fatalf("got %d opportunities, want 1", len(opps))
	}
	o := opps[0]
	if o.Type != domain.TypeWhaleActivity || o.Action != domain.ActionBuyYes {
		t.Errorf("got type=%s action=%s", o.Type, o.Action)
	}
	// 14000/19000 yes ratio, times 90.
	wantConf := 14000.0 / 19000.0 * 90
	if !approx(o.Confidence, wantConf, 1e-9) {
		t.Errorf("confidence = %v, want %v", o.Confidence, wantConf)
	}
}

func TestWhaleConsensusSplitFlowIsSilent(t *testing.T) {
	d := NewWhale(config.Defaults().Detectors.Whale)
	d.now = func() time.Time { return testTime }

	m := market("m1", 0.40, 0.60)
	txs := []domain.WhaleTransaction{
		{MarketID: "m1", Side: domain.SideYes, AmountUSD: 6000},
		{MarketID: "m1", Side: domain.SideNo, AmountUSD: 6000},
	}
	if opps := d.Detect([]domain.Market{m}, domain.DetectionContext{WhaleTransactions: txs}); len(opps) != 0 {
		t.Fatalf("split flow fired %d opportunities, want 0", len(opps))
	}
}

func TestAbnormalVolume(t *testing.T) {
	d := NewWhale(config.Defaults().Detectors.Whale)
	d.now = func() time.Time { return testTime }

	spike := market("m1", 0.50, 0.50)
	spike.Volume24h = 24000 // 1000/hour
	spike.PriceChange1h = 0.06

	covered := market("m2", 0.50, 0.50)
	covered.Volume24h = 24000
	covered.PriceChange1h = 0.06

	flat := market("m3", 0.50, 0.50)
	flat.Volume24h = 24000
	flat.PriceChange1h = 0.01

	dctx := domain.DetectionContext{
		VolumeHistory: map[string]float64{"m1": 100, "m2": 100, "m3": 100},
		Sentiment: map[string]domain.SentimentSignal{
			"m2": {MarketID: "m2", Label: "positive", BuzzScore: 0.9},
		},
	}
	opps := d.Detect([]domain.Market{spike, covered, flat}, dctx)
	if len(opps) != 1 {
		t.Fatalf("got %d opportunities, want 1", len(opps))
	}
	if opps[0].MarketID != "m1" || opps[0].Action != domain.ActionBuyYes {
		t.Errorf("got market=%s action=%s", opps[0].MarketID, opps[0].Action)
	}
}

func TestMomentumLongRequiresAlignedDirection(t *testing.T) {
	d := NewMomentum(config.Defaults().Detectors.Momentum)
	d.now = func() time.Time { return testTime }

	aligned := market("m1", 0.60, 0.40)
	aligned.PriceChange24h = 0.20
	aligned.PriceChange1h = 0.02

	diverging := market("m2", 0.60, 0.40)
	diverging.PriceChange24h = 0.20
	diverging.PriceChange1h = -0.02

	opps := d.Detect([]domain.Market{aligned, diverging}, domain.DetectionContext{})

	var long []domain.Opportunity
	for _, o := range opps {
		if o.Type == domain.TypeMomentumLong {
			long = append(long, o)
		}
	}
	if len(long) != 1 {
		t.Fatalf("got %d long-momentum opportunities, want 1", len(long))
	}
	if long[0].MarketID != "m1" {
		t.Errorf("got market %s, want m1", long[0].MarketID)
	}
	if want := 0.20 * 30; !approx(long[0].ExpectedProfitPct, want, 1e-9) {
		t.Errorf("profit = %v, want %v", long[0].ExpectedProfitPct, want)
	}
}

func TestContrarianSkipsJustifiedDrops(t *testing.T) {
	d := NewMomentum(config.Defaults().Detectors.Momentum)
	d.now = func() time.Time { return testTime }

	unexplained := market("m1", 0.40, 0.60)
	unexplained.PriceChange1h = -0.12

	justified := market("m2", 0.40, 0.60)
	justified.PriceChange1h = -0.12

	dctx := domain.DetectionContext{
		Sentiment: map[string]domain.SentimentSignal{
			"m2": {MarketID: "m2", Label: "negative", BuzzScore: 0.8},
		},
	}
	opps := d.Detect([]domain.Market{unexplained, justified}, dctx)

	var contrarian []domain.Opportunity
	for _, o := range opps {
		if o.Type == domain.TypeContrarian {
			contrarian = append(contrarian, o)
		}
	}
	if len(contrarian) != 1 {
		t.Fatalf("got %d contrarian opportunities, want 1", len(contrarian))
	}
	if contrarian[0].MarketID != "m1" || contrarian[0].Action != domain.ActionBuyYes {
		t.Errorf("got market=%s action=%s", contrarian[0].MarketID, contrarian[0].Action)
	}
}

func TestMomentumCarriesResolutionHorizon(t *testing.T) {
	d := NewMomentum(config.Defaults().Detectors.Momentum)
	d.now = func() time.Time { return testTime }

	end := testTime.Add(2 * time.Hour)

	ending := market("m1", 0.45, 0.55)
	ending.PriceChange1h = -0.12
	ending.PriceChange24h = 0.20
	ending.EndDate = &end

	openEnded := market("m2", 0.45, 0.55)
	openEnded.PriceChange1h = 0.10

	opps := d.Detect([]domain.Market{ending, openEnded}, domain.DetectionContext{})
	if len(opps) < 3 {
		t.Fatalf("got %d opportunities, want at least 3", len(opps))
	}
	for _, o := range opps {
		switch o.MarketID {
		case "m1":
			if o.DaysToResolution == nil {
				t.Fatalf("%s on m1: days to resolution not set", o.Type)
			}
			if want := 2.0 / 24; !approx(*o.DaysToResolution, want, 1e-9) {
				t.Errorf("%s on m1: days = %v, want %v", o.Type, *o.DaysToResolution, want)
			}
		case "m2":
			if o.DaysToResolution != nil {
				t.Errorf("%s on m2: days = %v, want nil for open-ended market", o.Type, *o.DaysToResolution)
			}
		}
	}
}

func TestMispricingNewMarket(t *testing.T) {
	d := NewMispricing(config.Defaults().Detectors.Mispricing)
	d.now = func() time.Time { return testTime }

	created := testTime.Add(-6 * time.Hour)

	fresh := market("m1", 0.20, 0.80) // fair default 0.5, gap 0.30
	fresh.CreatedAt = &created
	fresh.Volume24h = 1000

	busy := market("m2", 0.20, 0.80)
	busy.CreatedAt = &created
	busy.Volume24h = 80000 // already arbitraged

	old := market("m3", 0.20, 0.80)
	oldCreated := testTime.Add(-72 * time.Hour)
	old.CreatedAt = &oldCreated
	old.Volume24h = 1000

	opps := d.Detect([]domain.Market{fresh, busy, old}, domain.DetectionContext{})

	var newMkt []domain.Opportunity
	for _, o := range opps {
		if o.Type == domain.TypeNewMarketMispricing {
			newMkt = append(newMkt, o)
		}
	}
	if len(newMkt) != 1 {
		t.Fatalf("got %d new-market opportunities, want 1", len(newMkt))
	}
	o := newMkt[0]
	if o.MarketID != "m1" || o.Action != domain.ActionBuyYes {
		t.Errorf("got market=%s action=%s", o.MarketID, o.Action)
	}
	if want := 30.0; !approx(o.ExpectedProfitPct, want, 1e-9) {
		t.Errorf("profit = %v, want %v", o.ExpectedProfitPct, want)
	}
}

func TestMispricingLowLiquidityVsPeers(t *testing.T) {
	d := NewMispricing(config.Defaults().Detectors.Mispricing)
	d.now = func() time.Time { return testTime }

	mk := func(id string, yes, vol float64) domain.Market {
		m := market(id, yes, 1-yes)
		m.Volume24h = vol
		m.Category = domain.CategoryPolitics
		return m
	}

	thin := mk("m1", 0.30, 500)
	peer1 := mk("m2", 0.55, 50000)
	peer2 := mk("m3", 0.60, 50000)

	opps := d.Detect([]domain.Market{thin, peer1, peer2}, domain.DetectionContext{})

	var lowLiq []domain.Opportunity
	for _, o := range opps {
		if o.Type == domain.TypeLowLiquidityMispricing {
			lowLiq = append(lowLiq, o)
		}
	}
	if len(lowLiq) != 1 {
		t.Fatalf("got %d low-liquidity opportunities, want 1", len(lowLiq))
	}
	if lowLiq[0].MarketID != "m1" || lowLiq[0].Action != domain.ActionBuyYes {
		t.Errorf("got market=%s action=%s", lowLiq[0].MarketID, lowLiq[0].Action)
	}
}

func TestCorrelationDivergence(t *testing.T) {
	d := NewCorrelation(config.Defaults().Detectors.Correlation)
	d.now = func() time.Time { return testTime }

	anchor := market("m1", 0.70, 0.30)
	anchor.Question = "Will Trump win the election?"

	cheapDerived := market("m2", 0.40, 0.60)
	cheapDerived.Question = "Will a Republican win the election?"

	opps := d.Detect([]domain.Market{anchor, cheapDerived}, domain.DetectionContext{})
	if len(opps) != 1 {
		t.Fatalf("got %d opportunities, want 1", len(opps))
	}
	o := opps[0]
	// expected = 0.70*0.95 + 0.05*0.5 = 0.69; divergence 0.29, cheap side.
	if o.MarketID != "m2" || o.Action != domain.ActionBuyYes {
		t.Errorf("got market=%s action=%s", o.MarketID, o.Action)
	}
	if want := 0.29 * 50; !approx(o.ExpectedProfitPct, want, 1e-9) {
		t.Errorf("profit = %v, want %v", o.ExpectedProfitPct, want)
	}
}

func TestRegistryPreservesOrderAndSkipsUnknown(t *testing.T) {
	r := DefaultRegistry()

	cfg := config.Defaults().Detectors
	cfg.Enabled = []string{"momentum", "arbitrage", "not_a_detector"}

	detectors := r.CreateAll(cfg, discardLogger())
	if len(detectors) != 2 {
		t.Fatalf("got %d detectors, want 2", len(detectors))
	}
	// Registration order wins over config order.
	if detectors[0].Name() != "arbitrage" || detectors[1].Name() != "momentum" {
		t.Errorf("order = [%s %s], want [arbitrage momentum]", detectors[0].Name(), detectors[1].Name())
	}
}

type panicky struct{}

func (panicky) Name() string { return "panicky" }
func (panicky) Detect([]domain.Market, domain.DetectionContext) []domain.Opportunity {
	panic("boom")
}

type fixed struct {
	name string
	opps []domain.Opportunity
}

func (f fixed) Name() string { return f.name }
func (f fixed) Detect([]domain.Market, domain.DetectionContext) []domain.Opportunity {
	return f.opps
}

func TestRunnerSurvivesPanicAndKeepsOrder(t *testing.T) {
	a := fixed{name: "a", opps: []domain.Opportunity{{MarketID: "a1"}, {MarketID: "a2"}}}
	b := fixed{name: "b", opps: []domain.Opportunity{{MarketID: "b1"}}}

	r := NewRunner([]Detector{a, panicky{}, b}, 2, discardLogger())

	opps := r.Run(context.Background(), nil, domain.DetectionContext{})
	if len(opps) != 3 {
		t.Fatalf("got %d opportunities, want 3", len(opps))
	}
	want := []string{"a1", "a2", "b1"}
	for i, id := range want {
		if opps[i].MarketID != id {
			t.Errorf("opps[%d] = %s, want %s", i, opps[i].MarketID, id)
		}
	}

	for _, st := range r.Stats() {
		if st.Name == "panicky" {
			if st.Errors != 1 || st.OpportunitiesFound != 0 {
				t.Errorf("panicky stats = %+v", st)
			}
		}
		if st.TotalScans != 1 {
			t.Errorf("%s scans = %d, want 1", st.Name, st.TotalScans)
		}
	}
}

func approx(a, b, eps float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= eps
}
