package venue

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/quantfold/polyscout/internal/domain"
)

const marketsJSON = `[
  {"id": "m1", "question": "Will the bill pass?", "yes_price": 0.62, "no_price": 0.38,
   "volume_24h": 15000, "liquidity": 40000, "category": "politics", "active": true},
  {"id": "m2", "question": "Will it rain tomorrow?", "yes_price": 0.10, "no_price": 0.90,
   "active": true},
  {"id": "m3", "question": "Did the event happen?", "yes_price": 0.99, "no_price": 0.01,
   "closed": true, "outcome": "yes"}
]`

const eventsJSON = `[
  {"id": "ev1", "title": "Election winner", "markets": [
    {"id": "m10", "yes_price": 0.40, "no_price": 0.60, "active": true},
    {"id": "m11", "yes_price": 0.35, "no_price": 0.65, "active": true}
  ]}
]`

func writeSnapshotDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "markets.json"), []byte(marketsJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "events.json"), []byte(eventsJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestReplayFetchMarkets(t *testing.T) {
	r := NewReplay("polymarket", writeSnapshotDir(t))

	markets, err := r.FetchMarkets(context.Background(), 0)
	if err != nil {
		t.Fatalf("FetchMarkets: %v", err)
	}
	if len(markets) != 3 {
		t.Fatalf("got %d markets, want 3", len(markets))
	}
	if markets[0].ID != "m1" || markets[0].YesPrice != 0.62 {
		t.Errorf("first market = %+v", markets[0])
	}
	if markets[0].Category != domain.CategoryPolitics {
		t.Errorf("category = %q, want politics", markets[0].Category)
	}
	if markets[1].Category != domain.CategoryOther {
		t.Errorf("missing category = %q, want other", markets[1].Category)
	}
	if !markets[2].IsClosed {
		t.Error("m3 should be closed")
	}
}

func TestReplayFetchMarketsLimit(t *testing.T) {
	r := NewReplay("polymarket", writeSnapshotDir(t))

	markets, err := r.FetchMarkets(context.Background(), 2)
	if err != nil {
		t.Fatalf("FetchMarkets: %v", err)
	}
	if len(markets) != 2 {
		t.Errorf("got %d markets, want 2", len(markets))
	}
}

func TestReplayFetchMarketsMissingFile(t *testing.T) {
	r := NewReplay("polymarket", t.TempDir())

	if _, err := r.FetchMarkets(context.Background(), 0); err == nil {
		t.Fatal("expected error for missing markets.json")
	}
}

func TestReplayFetchEvents(t *testing.T) {
	r := NewReplay("polymarket", writeSnapshotDir(t))

	events, err := r.FetchEvents(context.Background(), 0)
	if err != nil {
		t.Fatalf("FetchEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].ID != "ev1" || len(events[0].Markets) != 2 {
		t.Errorf("event = %+v", events[0])
	}
}

func TestReplayFetchEventsMissingFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "markets.json"), []byte("[]"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := NewReplay("polymarket", dir)

	events, err := r.FetchEvents(context.Background(), 0)
	if err != nil {
		t.Fatalf("FetchEvents: %v", err)
	}
	if events != nil {
		t.Errorf("events = %+v, want nil", events)
	}
}

func TestReplayFetchMarketStatus(t *testing.T) {
	r := NewReplay("polymarket", writeSnapshotDir(t))

	status, err := r.FetchMarketStatus(context.Background(), "m3")
	if err != nil {
		t.Fatalf("FetchMarketStatus: %v", err)
	}
	if !status.Closed || status.Outcome != "yes" {
		t.Errorf("status = %+v, want closed with outcome yes", status)
	}

	if _, err := r.FetchMarketStatus(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
