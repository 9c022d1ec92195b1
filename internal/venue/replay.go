package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/quantfold/polyscout/internal/domain"
)

// Replay serves market snapshots from JSON files in a directory. An external
// fetcher owns the venue HTTP traffic and drops markets.json / events.json
// atomically; the engine only ever reads the latest files. It doubles as the
// MarketStatusClient, answering status lookups from the same markets file.
type Replay struct {
	name string
	dir  string
}

var (
	_ domain.VenueClient        = (*Replay)(nil)
	_ domain.MarketStatusClient = (*Replay)(nil)
)

func NewReplay(name, dir string) *Replay {
	return &Replay{name: name, dir: dir}
}

func (r *Replay) Name() string { return r.name }

// marketRecord is the on-disk market shape.
type marketRecord struct {
	ID             string     `json:"id"`
	Question       string     `json:"question"`
	Slug           string     `json:"slug"`
	YesPrice       float64    `json:"yes_price"`
	NoPrice        float64    `json:"no_price"`
	Volume24h      float64    `json:"volume_24h"`
	VolumeTotal    float64    `json:"volume_total"`
	Liquidity      float64    `json:"liquidity"`
	PriceChange1h  float64    `json:"price_change_1h"`
	PriceChange24h float64    `json:"price_change_24h"`
	EndDate        *time.Time `json:"end_date"`
	CreatedAt      *time.Time `json:"created_at"`
	Category       string     `json:"category"`
	Active         bool       `json:"active"`
	Closed         bool       `json:"closed"`
	Outcome        string     `json:"outcome"`
}

type eventRecord struct {
	ID      string         `json:"id"`
	Title   string         `json:"title"`
	Markets []marketRecord `json:"markets"`
}

func (rec marketRecord) toMarket() domain.Market {
	category := domain.MarketCategory(rec.Category)
	if category == "" {
		category = domain.CategoryOther
	}
	return domain.Market{
		ID:             rec.ID,
		Question:       rec.Question,
		Slug:           rec.Slug,
		YesPrice:       rec.YesPrice,
		NoPrice:        rec.NoPrice,
		Volume24h:      rec.Volume24h,
		VolumeTotal:    rec.VolumeTotal,
		Liquidity:      rec.Liquidity,
		PriceChange1h:  rec.PriceChange1h,
		PriceChange24h: rec.PriceChange24h,
		EndDate:        rec.EndDate,
		CreatedAt:      rec.CreatedAt,
		Category:       category,
		IsActive:       rec.Active,
		IsClosed:       rec.Closed,
	}
}

func (r *Replay) FetchMarkets(ctx context.Context, limit int) ([]domain.Market, error) {
	records, err := r.readMarkets()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	markets := make([]domain.Market, 0, len(records))
	for _, rec := range records {
		markets = append(markets, rec.toMarket())
	}
	return markets, nil
}

// FetchEvents reads events.json. A missing file means the venue groups no
// markets into events; that is not an error.
func (r *Replay) FetchEvents(ctx context.Context, limit int) ([]domain.Event, error) {
	data, err := os.ReadFile(filepath.Join(r.dir, "events.json"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("venue %s: read events: %w", r.name, err)
	}

	var records []eventRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("venue %s: decode events: %w", r.name, err)
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	events := make([]domain.Event, 0, len(records))
	for _, rec := range records {
		ev := domain.Event{ID: rec.ID, Title: rec.Title}
		for _, m := range rec.Markets {
			ev.Markets = append(ev.Markets, m.toMarket())
		}
		events = append(events, ev)
	}
	return events, nil
}

// FetchMarketStatus answers resolution polling from the current markets file.
func (r *Replay) FetchMarketStatus(ctx context.Context, marketID string) (domain.MarketStatus, error) {
	records, err := r.readMarkets()
	if err != nil {
		return domain.MarketStatus{}, err
	}
	for _, rec := range records {
		if rec.ID == marketID {
			return domain.MarketStatus{
				MarketID: rec.ID,
				YesPrice: rec.YesPrice,
				NoPrice:  rec.NoPrice,
				Closed:   rec.Closed,
				Outcome:  rec.Outcome,
			}, nil
		}
	}
	return domain.MarketStatus{}, fmt.Errorf("venue %s: market %s: %w", r.name, marketID, domain.ErrNotFound)
}

func (r *Replay) readMarkets() ([]marketRecord, error) {
	data, err := os.ReadFile(filepath.Join(r.dir, "markets.json"))
	if err != nil {
		return nil, fmt.Errorf("venue %s: read markets: %w", r.name, err)
	}
	var records []marketRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("venue %s: decode markets: %w", r.name, err)
	}
	return records, nil
}
