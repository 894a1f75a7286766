package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Engine drives one reconciliation run: list candidates, diff against the
// ledger, then fetch, deliver and commit strictly one item at a time. A
// failing item never blocks the rest of the sequence; only a ledger commit
// failure aborts the run.
type Engine struct {
	source    Source
	fetcher   Fetcher
	deliverer Deliverer
	notifier  Notifier
	ledger    Ledger
	logger    *slog.Logger
}

type EngineConfig struct {
	Source    Source
	Fetcher   Fetcher
	Deliverer Deliverer
	Notifier  Notifier
	Ledger    Ledger
	Logger    *slog.Logger
}

func NewEngine(cfg EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		source:    cfg.Source,
		fetcher:   cfg.Fetcher,
		deliverer: cfg.Deliverer,
		notifier:  cfg.Notifier,
		ledger:    cfg.Ledger,
		logger:    logger,
	}
}

// Run executes one pass. The returned summary is valid even when err is
// non-nil: items committed before a fatal error remain committed and counted.
func (e *Engine) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{}

	e.logger.Info("Run starting", "source", e.source.Name(), "target", e.deliverer.Name())

	itemChan, errChan := e.source.List(ctx)

	// Collapses duplicate identifiers within a single sequence, including
	// ones whose first occurrence failed and never reached the ledger.
	seen := make(map[string]struct{})

	for {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		case err := <-errChan:
			if err != nil {
				return summary, e.failListing(ctx, err)
			}
		case item, ok := <-itemChan:
			if !ok {
				// A source that finishes synchronously may have
				// reported its fatal error and closed both channels
				// before this select ran. Both cases are ready then
				// and the closed item channel can win, so drain the
				// error channel before declaring the run clean.
				// Sources always close it, so this never blocks.
				if err, pending := <-errChan; pending && err != nil {
					return summary, e.failListing(ctx, err)
				}
				e.logSummary(summary)
				return summary, nil
			}

			if _, dup := seen[item.ID]; dup {
				summary.Skipped++
				continue
			}
			seen[item.ID] = struct{}{}

			if e.ledger.Contains(item.ID) {
				summary.Skipped++
				e.logger.Debug("Already delivered, skipping", "id", item.ID)
				continue
			}

			if err := e.processItem(ctx, item, summary); err != nil {
				e.logSummary(summary)
				return summary, err
			}
		}
	}
}

// processItem walks one item through fetch, deliver, commit. Fetch and
// delivery failures are recorded and absorbed; a commit failure is returned
// and fatal.
func (e *Engine) processItem(ctx context.Context, item Item, summary *Summary) error {
	e.logger.Info("Processing new item", "id", item.ID, "group", item.Group)

	payload, err := e.fetcher.Fetch(ctx, item.FetchURL)
	if err != nil {
		summary.FetchFailed++
		summary.Results = append(summary.Results, Result{Item: item, Status: StatusFetchFailed, Reason: err.Error()})

		retriable := true
		var fe *FetchError
		if errors.As(err, &fe) {
			retriable = fe.Retriable()
		}
		e.logger.Error("Fetch failed", "id", item.ID, "retriable", retriable, "error", err)
		e.notify(ctx, fmt.Sprintf("Fetch failed for %s: %v", item.ID, err))
		return nil
	}

	if err := e.deliverer.Deliver(ctx, item.ID, payload); err != nil {
		summary.DeliveryFailed++
		summary.Results = append(summary.Results, Result{Item: item, Status: StatusDeliveryFailed, Reason: err.Error()})
		e.logger.Error("Delivery failed", "id", item.ID, "target", e.deliverer.Name(), "error", err)
		e.notify(ctx, fmt.Sprintf("Delivery failed for %s: %v", item.ID, err))
		return nil
	}

	// Durable before the next item starts. This ordering is what makes a
	// crash leave only fully delivered identifiers behind.
	if err := e.ledger.Commit(ctx, item.ID); err != nil {
		e.logger.Error("Ledger commit failed, aborting run", "id", item.ID, "error", err)
		if IsPersistenceError(err) {
			return err
		}
		return &PersistenceError{Op: "commit", Err: err}
	}

	summary.Delivered++
	summary.Results = append(summary.Results, Result{Item: item, Status: StatusDelivered})
	e.logger.Info("Delivered", "id", item.ID, "target", e.deliverer.Name())
	e.notify(ctx, fmt.Sprintf("Sent: %s", item.ID))

	return nil
}

// failListing logs and reports a fatal listing failure as a ListingError.
func (e *Engine) failListing(ctx context.Context, err error) error {
	e.logger.Error("Listing failed", "source", e.source.Name(), "error", err)
	e.notify(ctx, fmt.Sprintf("Listing failed: %v", err))
	return &ListingError{Source: e.source.Name(), Err: err}
}

// notify is fire-and-forget: a notification failure is logged and dropped.
func (e *Engine) notify(ctx context.Context, text string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, text); err != nil {
		e.logger.Warn("Notification failed", "error", err)
	}
}

func (e *Engine) logSummary(summary *Summary) {
	e.logger.Info("Run finished",
		"delivered", summary.Delivered,
		"skipped", summary.Skipped,
		"fetch_failed", summary.FetchFailed,
		"delivery_failed", summary.DeliveryFailed,
	)
}
