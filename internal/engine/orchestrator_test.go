package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/quantfold/polyscout/internal/config"
	"github.com/quantfold/polyscout/internal/detector"
	"github.com/quantfold/polyscout/internal/domain"
	"github.com/quantfold/polyscout/internal/lifecycle"
	"github.com/quantfold/polyscout/internal/metrics"
	"github.com/quantfold/polyscout/internal/rank"
	"github.com/quantfold/polyscout/internal/risk"
)

var testTime = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

// In-memory collaborators.

type memPositions struct {
	items     map[string]domain.Position
	updateErr error
}

func newMemPositions() *memPositions {
	return &memPositions{items: make(map[string]domain.Position)}
}

func (s *memPositions) Create(_ context.Context, p domain.Position) error {
	s.items[p.ID] = p
	return nil
}

func (s *memPositions) Update(_ context.Context, p domain.Position) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	if _, ok := s.items[p.ID]; !ok {
		return domain.ErrNotFound
	}
	s.items[p.ID] = p
	return nil
}

func (s *memPositions) GetByID(_ context.Context, id string) (domain.Position, error) {
	p, ok := s.items[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *memPositions) ListOpen(_ context.Context) ([]domain.Position, error) {
	var out []domain.Position
	for _, p := range s.items {
		if p.Status == domain.PositionOpen {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memPositions) ListHistory(_ context.Context, _ domain.ListOpts) ([]domain.Position, error) {
	var out []domain.Position
	for _, p := range s.items {
		if p.Status != domain.PositionOpen {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memPositions) CountOpenByMarket(_ context.Context, marketID string) (int, error) {
	n := 0
	for _, p := range s.items {
		if p.Status == domain.PositionOpen && p.MarketID == marketID {
			n++
		}
	}
	return n, nil
}

type memRiskStore struct {
	state domain.RiskState
	saves int
}

func (s *memRiskStore) Save(_ context.Context, st domain.RiskState) error {
	s.state = st
	s.saves++
	return nil
}

func (s *memRiskStore) Load(_ context.Context) (domain.RiskState, error) {
	return s.state, nil
}

type memStats struct{ upserts int }

func (s *memStats) Upsert(_ context.Context, _ domain.DetectorStats) error {
	s.upserts++
	return nil
}

func (s *memStats) List(_ context.Context) ([]domain.DetectorStats, error) { return nil, nil }

type fakeVenue struct {
	markets []domain.Market
	events  []domain.Event
	err     error
}

func (v *fakeVenue) Name() string { return "fake" }

func (v *fakeVenue) FetchMarkets(_ context.Context, _ int) ([]domain.Market, error) {
	return v.markets, v.err
}

func (v *fakeVenue) FetchEvents(_ context.Context, _ int) ([]domain.Event, error) {
	return v.events, nil
}

type captureSink struct{ snaps []Snapshot }

func (s *captureSink) PublishSnapshot(_ context.Context, snap Snapshot) error {
	s.snaps = append(s.snaps, snap)
	return nil
}

type captureAlerter struct {
	alerts []domain.Opportunity
	err    error
}

func (a *captureAlerter) AlertOpportunity(_ context.Context, o domain.Opportunity) error {
	if a.err != nil {
		return a.err
	}
	a.alerts = append(a.alerts, o)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	orch  *Orchestrator
	store *memPositions
	risk  *memRiskStore
	stats *memStats
	venue *fakeVenue
	sink  *captureSink
}

func newFixture(t *testing.T, detectors []detector.Detector, venue *fakeVenue) *fixture {
	t.Helper()
	cfg := config.Defaults()
	logger := discardLogger()

	store := newMemPositions()
	riskStore := &memRiskStore{}
	stats := &memStats{}
	sink := &captureSink{}

	riskMgr := risk.NewManager(cfg.Risk, cfg.Trading, domain.RiskState{}, logger)
	resolver := lifecycle.NewResolver(cfg.Trading, logger)

	orch, err := New(Deps{
		Engine:    cfg.Engine,
		Trading:   cfg.Trading,
		Venues:    []domain.VenueClient{venue},
		Runner:    detector.NewRunner(detectors, cfg.Engine.DetectorPoolSize, logger),
		Ranker:    rank.New(cfg.Ranker, logger),
		Risk:      riskMgr,
		Resolver:  resolver,
		Positions: store,
		RiskStore: riskStore,
		Stats:     stats,
		Sinks:     []Sink{sink},
		Metrics:   metrics.New(),
		Logger:    logger,
	})
	if err != nil {
		t.Fatal(err)
	}
	orch.now = func() time.Time { return testTime }
	return &fixture{orch: orch, store: store, risk: riskStore, stats: stats, venue: venue, sink: sink}
}

func mismatchMarket() domain.Market {
	return domain.Market{
		ID: "m1", Question: "Will the measure pass?",
		YesPrice: 0.45, NoPrice: 0.45,
		Liquidity: 5000, Volume24h: 1000, IsActive: true,
	}
}

func TestCycleOpensPositionFromDetection(t *testing.T) {
	cfg := config.Defaults()
	venue := &fakeVenue{markets: []domain.Market{mismatchMarket()}}
	f := newFixture(t, []detector.Detector{detector.NewArbitrage(cfg.Detectors.Arbitrage)}, venue)

	if err := f.orch.bootstrap(context.Background()); err != nil {
		t.Fatal(err)
	}
	f.orch.runCycle(context.Background())

	open, _ := f.store.ListOpen(context.Background())
	if len(open) != 1 {
		t.Fatalf("open positions = %d, want 1", len(open))
	}
	pos := open[0]
	if pos.MarketID != "m1" || pos.Status != domain.PositionOpen {
		t.Errorf("position = %+v", pos)
	}
	if len(pos.Legs) != 2 {
		t.Errorf("mismatch entry should be a two-leg pair, got %d legs", len(pos.Legs))
	}
	if pos.AmountUSD <= 0 || pos.AmountUSD > cfg.Risk.MaxBetUSD {
		t.Errorf("amount = %v outside (0, maxBet]", pos.AmountUSD)
	}
	if f.orch.cash >= cfg.Trading.StartingBalanceUSD {
		t.Errorf("cash = %v, want reduced by the entry", f.orch.cash)
	}

	if len(f.sink.snaps) != 1 {
		t.Fatalf("published snapshots = %d, want 1", len(f.sink.snaps))
	}
	snap := f.sink.snaps[0]
	if snap.Cycle != 1 || len(snap.Opportunities) == 0 || len(snap.OpenPositions) != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
	if f.risk.saves != 1 {
		t.Errorf("risk state saves = %d, want 1", f.risk.saves)
	}
	if f.stats.upserts == 0 {
		t.Error("detector stats never persisted")
	}
}

func TestCycleClosesTakeProfit(t *testing.T) {
	venue := &fakeVenue{markets: []domain.Market{{
		ID: "m1", YesPrice: 0.50, NoPrice: 0.50,
		Liquidity: 5000, Volume24h: 1000, IsActive: true,
	}}}
	f := newFixture(t, nil, venue)

	seed := domain.Position{
		ID: "p1", MarketID: "m1", Side: domain.SideYes,
		EntryPrice: 0.40, AmountUSD: 4, Shares: 10,
		CurrentPrice: 0.40, Status: domain.PositionOpen,
		OpenedAt: testTime.Add(-2 * time.Hour),
	}
	f.store.items[seed.ID] = seed

	if err := f.orch.bootstrap(context.Background()); err != nil {
		t.Fatal(err)
	}
	cashBefore := f.orch.cash
	f.orch.runCycle(context.Background())

	got, _ := f.store.GetByID(context.Background(), "p1")
	if got.Status != domain.PositionClosed || got.ExitReason != domain.ExitTakeProfit {
		t.Fatalf("position = %+v, want take-profit close", got)
	}
	if got.ExitPrice == nil || *got.ExitPrice != 0.50 {
		t.Errorf("exit price = %v, want refreshed 0.50", got.ExitPrice)
	}
	if want := cashBefore + 10*0.50; f.orch.cash != want {
		t.Errorf("cash = %v, want %v (proceeds credited)", f.orch.cash, want)
	}
	if !approx(f.orch.realized, 1.0, 1e-9) {
		t.Errorf("realized = %v, want 1.0", f.orch.realized)
	}

	snap := f.sink.snaps[0]
	if len(snap.ClosedThisCycle) != 1 || len(snap.OpenPositions) != 0 {
		t.Errorf("snapshot closed=%d open=%d", len(snap.ClosedThisCycle), len(snap.OpenPositions))
	}
}

func TestCycleCloseWriteFailureKeepsPositionOpen(t *testing.T) {
	venue := &fakeVenue{markets: []domain.Market{{
		ID: "m1", YesPrice: 0.50, NoPrice: 0.50,
		Liquidity: 5000, Volume24h: 1000, IsActive: true,
	}}}
	f := newFixture(t, nil, venue)
	f.store.items["p1"] = domain.Position{
		ID: "p1", MarketID: "m1", Side: domain.SideYes,
		EntryPrice: 0.40, AmountUSD: 4, Shares: 10,
		CurrentPrice: 0.40, Status: domain.PositionOpen,
		OpenedAt: testTime.Add(-2 * time.Hour),
	}
	f.store.updateErr = errors.New("db down")

	if err := f.orch.bootstrap(context.Background()); err != nil {
		t.Fatal(err)
	}
	cashBefore := f.orch.cash
	f.orch.runCycle(context.Background())

	snap := f.sink.snaps[0]
	if len(snap.OpenPositions) != 1 || len(snap.ClosedThisCycle) != 0 {
		t.Fatalf("snapshot open=%d closed=%d, want close deferred", len(snap.OpenPositions), len(snap.ClosedThisCycle))
	}
	if f.orch.cash != cashBefore || f.orch.realized != 0 {
		t.Error("ledger moved despite failed close write")
	}
}

func TestCyclePausedBlocksEntries(t *testing.T) {
	cfg := config.Defaults()
	venue := &fakeVenue{markets: []domain.Market{mismatchMarket()}}
	f := newFixture(t, []detector.Detector{detector.NewArbitrage(cfg.Detectors.Arbitrage)}, venue)

	// Drive the circuit breaker into max drawdown before the cycle.
	f.orch.d.Risk.UpdateBalance(100)
	f.orch.d.Risk.UpdateBalance(60)

	if err := f.orch.bootstrap(context.Background()); err != nil {
		t.Fatal(err)
	}
	f.orch.runCycle(context.Background())

	if open, _ := f.store.ListOpen(context.Background()); len(open) != 0 {
		t.Fatalf("open positions = %d, want 0 while paused", len(open))
	}
	// Detection still ran; pause gates entries only.
	if len(f.sink.snaps[0].Opportunities) == 0 {
		t.Error("paused cycle should still report opportunities")
	}
}

func TestCycleStaleSnapshotStillTrades(t *testing.T) {
	cfg := config.Defaults()
	venue := &fakeVenue{
		markets: []domain.Market{mismatchMarket()},
		err:     domain.ErrStaleCache,
	}
	f := newFixture(t, []detector.Detector{detector.NewArbitrage(cfg.Detectors.Arbitrage)}, venue)

	if err := f.orch.bootstrap(context.Background()); err != nil {
		t.Fatal(err)
	}
	f.orch.runCycle(context.Background())

	snap := f.sink.snaps[0]
	if !snap.Stale {
		t.Error("snapshot should be flagged stale")
	}
	if len(snap.Opportunities) == 0 {
		t.Error("stale data should still feed detection")
	}
}

func TestCycleDropsInvalidMarkets(t *testing.T) {
	venue := &fakeVenue{markets: []domain.Market{
		{ID: "bad", YesPrice: 1.4, NoPrice: -0.4, IsActive: true},
		mismatchMarket(),
	}}
	f := newFixture(t, nil, venue)

	if err := f.orch.bootstrap(context.Background()); err != nil {
		t.Fatal(err)
	}
	f.orch.runCycle(context.Background())

	if got := f.sink.snaps[0].MarketsFetched; got != 1 {
		t.Errorf("markets fetched = %d, want invariant violator dropped", got)
	}
}

func TestMaybeAlertRespectsThresholdAndCooldown(t *testing.T) {
	venue := &fakeVenue{}
	f := newFixture(t, nil, venue)
	alerter := &captureAlerter{}
	f.orch.d.Alerter = alerter

	low := domain.Opportunity{MarketID: "m1", RankScore: 50}
	f.orch.maybeAlert(context.Background(), []domain.Opportunity{low})
	if len(alerter.alerts) != 0 {
		t.Fatal("score below threshold must not alert")
	}

	high := domain.Opportunity{MarketID: "m1", RankScore: 95}
	f.orch.maybeAlert(context.Background(), []domain.Opportunity{high})
	if len(alerter.alerts) != 1 {
		t.Fatal("score above threshold should alert")
	}

	alerter.err = domain.ErrRateLimited
	f.orch.maybeAlert(context.Background(), []domain.Opportunity{high})
	if len(alerter.alerts) != 1 {
		t.Fatal("rate-limited alert must be swallowed")
	}
}

func TestBuildPositionShapes(t *testing.T) {
	venue := &fakeVenue{}
	f := newFixture(t, nil, venue)

	both := domain.Opportunity{
		Type: domain.TypeYesNoMismatch, Action: domain.ActionBuyBoth,
		MarketID: "m1", YesPrice: 0.45, NoPrice: 0.45,
	}
	pos, err := f.orch.buildPosition(both, 3)
	if err != nil {
		t.Fatal(err)
	}
	if pos.EntryPrice != 0.45 { // pair cost 0.90 over two half-weight legs
		t.Errorf("entry = %v, want 0.45", pos.EntryPrice)
	}
	if len(pos.Legs) != 2 || pos.Legs[0].Weight != 0.5 {
		t.Errorf("legs = %+v", pos.Legs)
	}

	multi := domain.Opportunity{
		Type: domain.TypeMultiOutcomeArb, Action: domain.ActionBuyAllNo,
		MarketID: "e1",
		Legs: []domain.OpportunityLeg{
			{MarketID: "a", YesPrice: 0.40},
			{MarketID: "b", YesPrice: 0.50},
		},
	}
	pos, err = f.orch.buildPosition(multi, 2)
	if err != nil {
		t.Fatal(err)
	}
	if pos.Side != domain.SideNo || len(pos.Legs) != 2 {
		t.Fatalf("position = %+v", pos)
	}
	if want := (0.60 + 0.50) / 2; !approx(pos.EntryPrice, want, 1e-9) {
		t.Errorf("entry = %v, want %v", pos.EntryPrice, want)
	}

	if _, err := f.orch.buildPosition(domain.Opportunity{Action: domain.ActionBuyAllYes}, 2); err == nil {
		t.Error("multi-outcome without legs should fail")
	}

	no := domain.Opportunity{Action: domain.ActionBuyNo, MarketID: "m2", YesPrice: 0.70, NoPrice: 0.30}
	pos, err = f.orch.buildPosition(no, 1)
	if err != nil {
		t.Fatal(err)
	}
	if pos.Side != domain.SideNo || pos.EntryPrice != 0.30 {
		t.Errorf("position = %+v, want NO at 0.30", pos)
	}
}

func approx(a, b, eps float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= eps
}

func TestBootstrapRebuildsLedger(t *testing.T) {
	venue := &fakeVenue{}
	f := newFixture(t, nil, venue)

	closedAt := testTime.Add(-30 * time.Hour)
	exit := 0.80
	f.store.items["closed"] = domain.Position{
		ID: "closed", MarketID: "m9", Side: domain.SideYes,
		EntryPrice: 0.50, AmountUSD: 5, Shares: 10,
		CurrentPrice: exit, ExitPrice: &exit, RealizedPnl: 3,
		Status: domain.PositionClosed, ExitReason: domain.ExitTakeProfit,
		OpenedAt: testTime.Add(-40 * time.Hour), ClosedAt: &closedAt,
	}
	f.store.items["open"] = domain.Position{
		ID: "open", MarketID: "m8", Side: domain.SideYes,
		EntryPrice: 0.25, AmountUSD: 2, Shares: 8,
		CurrentPrice: 0.25, Status: domain.PositionOpen,
		OpenedAt: testTime.Add(-1 * time.Hour),
	}

	if err := f.orch.bootstrap(context.Background()); err != nil {
		t.Fatal(err)
	}
	if want := 100.0 + 3 - 2; f.orch.cash != want {
		t.Errorf("cash = %v, want %v", f.orch.cash, want)
	}
	if f.orch.realized != 3 {
		t.Errorf("realized = %v, want 3", f.orch.realized)
	}
	// Yesterday's close does not count toward today's ledger.
	if f.orch.day.trades != 0 {
		t.Errorf("day trades = %d, want 0", f.orch.day.trades)
	}
}
