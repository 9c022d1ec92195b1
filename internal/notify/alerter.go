// Package notify dispatches opportunity alerts to external channels
// (Telegram, Discord) behind a distributed cooldown, so operators get at
// most one alert per configured interval no matter how many engine replicas
// or restarts happen.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/quantfold/polyscout/internal/domain"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// alertKey is the rate-limiter key shared by all alert kinds.
const alertKey = "alerts"

// Alerter formats and fans out alerts. A nil limiter disables the cooldown
// (useful in tests); an empty sender list makes every alert a no-op.
type Alerter struct {
	senders     []Sender
	limiter     domain.RateLimiter
	minInterval time.Duration
	logger      *slog.Logger
}

func NewAlerter(senders []Sender, limiter domain.RateLimiter, minInterval time.Duration, logger *slog.Logger) *Alerter {
	return &Alerter{
		senders:     senders,
		limiter:     limiter,
		minInterval: minInterval,
		logger:      logger.With(slog.String("component", "alerter")),
	}
}

// AlertOpportunity formats and dispatches a ranked opportunity. It returns
// domain.ErrRateLimited when the cooldown suppresses the alert.
func (a *Alerter) AlertOpportunity(ctx context.Context, o domain.Opportunity) error {
	if len(a.senders) == 0 {
		return nil
	}

	if a.limiter != nil && a.minInterval > 0 {
		allowed, err := a.limiter.Allow(ctx, alertKey, 1, a.minInterval)
		if err != nil {
			return fmt.Errorf("notify: cooldown check: %w", err)
		}
		if !allowed {
			return domain.ErrRateLimited
		}
	}

	title := fmt.Sprintf("Opportunity: %s", o.Type)
	return a.dispatch(ctx, title, formatOpportunity(o))
}

// dispatch fans out to every sender; one channel failing does not stop the
// others.
func (a *Alerter) dispatch(ctx context.Context, title, message string) error {
	var failed []string
	for _, s := range a.senders {
		if err := s.Send(ctx, title, message); err != nil {
			a.logger.Error("sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			failed = append(failed, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		a.logger.Debug("alert sent", slog.String("sender", s.Name()))
	}
	if len(failed) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(failed), strings.Join(failed, "; "))
	}
	return nil
}

func formatOpportunity(o domain.Opportunity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", o.MarketQuestion)
	fmt.Fprintf(&b, "Action: %s\n", o.Action)
	fmt.Fprintf(&b, "Confidence: %.0f%%  Est. profit: %.1f%%  Score: %.1f\n",
		o.Confidence, o.ExpectedProfitPct, o.RankScore)
	fmt.Fprintf(&b, "YES %.3f / NO %.3f", o.YesPrice, o.NoPrice)
	if o.DaysToResolution != nil {
		fmt.Fprintf(&b, "\nResolves in %.1f days", *o.DaysToResolution)
	}
	if len(o.Legs) > 0 {
		fmt.Fprintf(&b, "\nLegs: %d", len(o.Legs))
	}
	return b.String()
}
