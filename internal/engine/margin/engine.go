// Package margin scans margin accounts on a slow cadence and issues margin
// calls when equity falls below the maintenance threshold.
package margin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/calebhsu/longbox/internal/domain"
	"github.com/calebhsu/longbox/internal/notify"
	"github.com/calebhsu/longbox/internal/scheduler"
)

// Engine is the margin maintenance engine. Accounts not breaching the
// threshold are left untouched; breaching accounts transition to margin_call
// with the call date and the current shortfall recorded.
type Engine struct {
	accounts domain.MarginStore
	bus      domain.EventBus
	notifier *notify.Notifier
	logger   *slog.Logger

	// refreshCalls controls repeat breaches: when true (the default) the
	// call amount and date are overwritten each cycle the account remains
	// in breach, so the recorded shortfall tracks the current one; when
	// false an outstanding call suppresses re-issuance.
	refreshCalls bool
	now          func() time.Time
}

// Config holds the margin engine tunables.
type Config struct {
	RefreshCalls bool
}

// New creates a margin Engine. bus and notifier may be nil.
func New(accounts domain.MarginStore, bus domain.EventBus, notifier *notify.Notifier, cfg Config, logger *slog.Logger) *Engine {
	return &Engine{
		accounts:     accounts,
		bus:          bus,
		notifier:     notifier,
		logger:       logger.With(slog.String("component", "margin_engine")),
		refreshCalls: cfg.RefreshCalls,
		now:          time.Now,
	}
}

// Tick checks every margin account. A failure on one account does not stop
// the scan of the rest.
func (e *Engine) Tick(ctx context.Context) (scheduler.TickResult, error) {
	var res scheduler.TickResult

	accounts, err := e.accounts.ListAll(ctx)
	if err != nil {
		return res, err
	}
	if len(accounts) == 0 {
		return res, nil
	}

	now := e.now()
	callsIssued := 0
	for _, acct := range accounts {
		res.Processed++

		if !acct.Breached() {
			// Idempotent for the non-breaching case: no writes at all.
			res.Succeeded++
			continue
		}
		if acct.Status == domain.MarginStatusCall && !e.refreshCalls {
			res.Succeeded++
			continue
		}

		shortfall := acct.Shortfall()
		if err := e.accounts.IssueCall(ctx, acct.ID, acct.Version, now, shortfall); err != nil {
			res.AddError("account %s: %v", acct.ID, err)
			e.logger.Warn("margin call issuance failed",
				slog.String("account_id", acct.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		res.Succeeded++
		callsIssued++

		e.logger.Info("margin call issued",
			slog.String("account_id", acct.ID),
			slog.String("user_id", acct.UserID),
			slog.Float64("shortfall", shortfall),
		)
		e.announce(ctx, acct, shortfall, now)
	}

	if callsIssued > 0 {
		e.logger.Info("margin maintenance cycle complete",
			slog.Int("accounts", res.Processed),
			slog.Int("calls_issued", callsIssued),
		)
	}
	return res, nil
}

func (e *Engine) announce(ctx context.Context, acct domain.MarginAccount, shortfall float64, at time.Time) {
	if e.bus != nil {
		payload, _ := json.Marshal(map[string]any{
			"event":      "margin_call",
			"account_id": acct.ID,
			"user_id":    acct.UserID,
			"shortfall":  shortfall,
			"timestamp":  at.Format(time.RFC3339Nano),
		})
		if err := e.bus.Publish(ctx, "margin", payload); err != nil {
			e.logger.Warn("publish margin call event failed",
				slog.String("account_id", acct.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if e.notifier != nil {
		msg := fmt.Sprintf("Account %s is below maintenance margin. Required deposit: $%.2f", acct.ID, shortfall)
		if err := e.notifier.Notify(ctx, "margin_call", "Margin call issued", msg); err != nil {
			e.logger.Warn("margin call notification failed",
				slog.String("account_id", acct.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}
