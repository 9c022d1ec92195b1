package venue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/quantfold/polyscout/internal/domain"
)

type fakeClient struct {
	markets []domain.Market
	events  []domain.Event
	err     error
	calls   int
}

func (f *fakeClient) Name() string { return "testvenue" }

func (f *fakeClient) FetchMarkets(_ context.Context, _ int) ([]domain.Market, error) {
	f.calls++
	return f.markets, f.err
}

func (f *fakeClient) FetchEvents(_ context.Context, _ int) ([]domain.Event, error) {
	f.calls++
	return f.events, f.err
}

type fakeCache struct {
	markets    []domain.Market
	events     []domain.Event
	getErr     error
	setMarkets int
	setEvents  int
}

func (f *fakeCache) SetMarkets(_ context.Context, _ string, markets []domain.Market, _ time.Duration) error {
	f.markets = markets
	f.setMarkets++
	return nil
}

func (f *fakeCache) GetMarkets(_ context.Context, _ string) ([]domain.Market, error) {
	return f.markets, f.getErr
}

func (f *fakeCache) SetEvents(_ context.Context, _ string, events []domain.Event, _ time.Duration) error {
	f.events = events
	f.setEvents++
	return nil
}

func (f *fakeCache) GetEvents(_ context.Context, _ string) ([]domain.Event, error) {
	return f.events, f.getErr
}

func newCached(inner *fakeClient, cache *fakeCache) *Cached {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewCached(inner, cache, time.Minute, logger)
}

func TestFetchMarketsWritesThrough(t *testing.T) {
	inner := &fakeClient{markets: []domain.Market{{ID: "m1"}}}
	cache := &fakeCache{}
	c := newCached(inner, cache)

	got, err := c.FetchMarkets(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "m1" {
		t.Fatalf("markets = %+v", got)
	}
	if cache.setMarkets != 1 {
		t.Error("successful fetch should populate the cache")
	}
}

func TestFetchMarketsDegradesToCache(t *testing.T) {
	inner := &fakeClient{err: errors.New("upstream down")}
	cache := &fakeCache{markets: []domain.Market{{ID: "cached"}}}
	c := newCached(inner, cache)

	got, err := c.FetchMarkets(context.Background(), 10)
	if err != nil {
		t.Fatalf("fresh cache copy should mask the fetch error, got %v", err)
	}
	if len(got) != 1 || got[0].ID != "cached" {
		t.Fatalf("markets = %+v", got)
	}
}

func TestFetchMarketsSurfacesStaleness(t *testing.T) {
	inner := &fakeClient{err: errors.New("upstream down")}
	cache := &fakeCache{
		markets: []domain.Market{{ID: "old"}},
		getErr:  domain.ErrStaleCache,
	}
	c := newCached(inner, cache)

	got, err := c.FetchMarkets(context.Background(), 10)
	if !errors.Is(err, domain.ErrStaleCache) {
		t.Fatalf("err = %v, want ErrStaleCache", err)
	}
	if len(got) != 1 {
		t.Fatal("stale error must still carry the data")
	}
}

func TestFetchMarketsFailsWithEmptyCache(t *testing.T) {
	inner := &fakeClient{err: errors.New("upstream down")}
	cache := &fakeCache{getErr: domain.ErrNotFound}
	c := newCached(inner, cache)

	if _, err := c.FetchMarkets(context.Background(), 10); err == nil {
		t.Fatal("no fresh data and no cache should fail")
	} else if errors.Is(err, domain.ErrStaleCache) {
		t.Fatal("empty cache is not staleness")
	}
}

func TestFetchEventsDegradesToCache(t *testing.T) {
	inner := &fakeClient{err: errors.New("upstream down")}
	cache := &fakeCache{events: []domain.Event{{ID: "e1"}}}
	c := newCached(inner, cache)

	got, err := c.FetchEvents(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "e1" {
		t.Fatalf("events = %+v", got)
	}
}
