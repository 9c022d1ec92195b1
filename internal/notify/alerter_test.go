package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/quantfold/polyscout/internal/domain"
)

type recordSender struct {
	name     string
	err      error
	titles   []string
	messages []string
}

func (s *recordSender) Send(_ context.Context, title, message string) error {
	if s.err != nil {
		return s.err
	}
	s.titles = append(s.titles, title)
	s.messages = append(s.messages, message)
	return nil
}

func (s *recordSender) Name() string { return s.name }

type fakeLimiter struct {
	allowed bool
	err     error
	calls   int
}

func (l *fakeLimiter) Allow(_ context.Context, _ string, _ int, _ time.Duration) (bool, error) {
	l.calls++
	return l.allowed, l.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleOpportunity() domain.Opportunity {
	days := 3.5
	return domain.Opportunity{
		Type:              domain.TypeTimeDecay,
		Action:            domain.ActionBuyNo,
		MarketQuestion:    "Will the bill pass by June 30?",
		Confidence:        85,
		ExpectedProfitPct: 22,
		RankScore:         91.2,
		YesPrice:          0.22,
		NoPrice:           0.78,
		DaysToResolution:  &days,
	}
}

func TestAlertFansOutToAllSenders(t *testing.T) {
	tg := &recordSender{name: "telegram"}
	dc := &recordSender{name: "discord"}
	a := NewAlerter([]Sender{tg, dc}, &fakeLimiter{allowed: true}, time.Minute, discardLogger())

	if err := a.AlertOpportunity(context.Background(), sampleOpportunity()); err != nil {
		t.Fatal(err)
	}
	if len(tg.messages) != 1 || len(dc.messages) != 1 {
		t.Fatalf("sends: telegram=%d discord=%d, want 1 each", len(tg.messages), len(dc.messages))
	}
	if !strings.Contains(tg.titles[0], string(domain.TypeTimeDecay)) {
		t.Errorf("title = %q, want the opportunity type", tg.titles[0])
	}
	msg := tg.messages[0]
	for _, want := range []string{"Will the bill pass", "buy_no", "85%", "3.5 days"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestAlertCooldownSuppresses(t *testing.T) {
	tg := &recordSender{name: "telegram"}
	limiter := &fakeLimiter{allowed: false}
	a := NewAlerter([]Sender{tg}, limiter, time.Minute, discardLogger())

	err := a.AlertOpportunity(context.Background(), sampleOpportunity())
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	if len(tg.messages) != 0 {
		t.Error("suppressed alert must not reach senders")
	}
}

func TestAlertOneSenderFailingStillDeliversOthers(t *testing.T) {
	bad := &recordSender{name: "telegram", err: errors.New("api down")}
	good := &recordSender{name: "discord"}
	a := NewAlerter([]Sender{bad, good}, nil, 0, discardLogger())

	err := a.AlertOpportunity(context.Background(), sampleOpportunity())
	if err == nil {
		t.Fatal("failed sender should surface an error")
	}
	if len(good.messages) != 1 {
		t.Error("healthy sender should still deliver")
	}
}

func TestAlertNoSendersSkipsCooldown(t *testing.T) {
	limiter := &fakeLimiter{allowed: true}
	a := NewAlerter(nil, limiter, time.Minute, discardLogger())

	if err := a.AlertOpportunity(context.Background(), sampleOpportunity()); err != nil {
		t.Fatal(err)
	}
	if limiter.calls != 0 {
		t.Error("no senders configured should not consume the cooldown")
	}
}
