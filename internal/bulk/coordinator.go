// Package bulk drives rate limited batches of writes. Items are processed one
// at a time; a failing item is retried only when its error looks transient,
// and never aborts the rest of the batch.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/disciplinary/internal/engine"
	"github.com/wolfeidau/disciplinary/internal/lifecycle"
	"github.com/wolfeidau/disciplinary/internal/store"
	"github.com/wolfeidau/disciplinary/internal/telemetry"
	"github.com/wolfeidau/disciplinary/internal/tenant"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// BackoffConfig configures exponential backoff retry
type BackoffConfig struct {
	// InitialInterval is the first retry delay
	InitialInterval time.Duration

	// MaxInterval is the maximum retry delay
	MaxInterval time.Duration

	// Multiplier controls backoff growth (e.g., 2.0 for exponential)
	Multiplier float64
}

type Options struct {
	// Delay is waited between items to respect downstream rate limits.
	Delay time.Duration

	// MaxAttempts bounds attempts per item, including the first.
	MaxAttempts int

	RetryBackoff BackoffConfig
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		Delay:       100 * time.Millisecond,
		MaxAttempts: 3,
		RetryBackoff: BackoffConfig{
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     10 * time.Second,
			Multiplier:      2.0,
		},
	}
}

// Item is one document to create.
type Item struct {
	Kind tenant.Kind
	// ID is optional; one is generated when empty.
	ID   string
	Data store.Fields
	// Description identifies the item in progress reports and errors.
	Description string
}

// Progress is reported after every processed item.
type Progress struct {
	Processed int
	Total     int
	Percent   int
	Current   string
}

// ItemError describes an item that permanently failed.
type ItemError struct {
	Index       int    `json:"index"`
	Description string `json:"description"`
	Attempts    int    `json:"attempts"`
	Error       string `json:"error"`
}

// Result is the structured partial result of a bulk create.
type Result struct {
	Success int         `json:"success"`
	Failed  int         `json:"failed"`
	Errors  []ItemError `json:"errors"`
	IDs     []string    `json:"ids"`
}

// Coordinator runs bulk operations through the engine.
type Coordinator struct {
	engine    *engine.Engine
	lifecycle *lifecycle.Machine
	opts      Options
}

func NewCoordinator(e *engine.Engine, m *lifecycle.Machine, opts Options) *Coordinator {
	defaults := DefaultOptions()
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaults.MaxAttempts
	}
	if opts.Delay < 0 {
		opts.Delay = 0
	}
	if opts.RetryBackoff.InitialInterval <= 0 {
		opts.RetryBackoff.InitialInterval = defaults.RetryBackoff.InitialInterval
	}
	if opts.RetryBackoff.MaxInterval <= 0 {
		opts.RetryBackoff.MaxInterval = defaults.RetryBackoff.MaxInterval
	}
	if opts.RetryBackoff.Multiplier < 1 {
		opts.RetryBackoff.Multiplier = defaults.RetryBackoff.Multiplier
	}
	return &Coordinator{engine: e, lifecycle: m, opts: opts}
}

// Retryable reports whether a bulk item failure looks transient: rate
// limiting, temporary unavailability, version conflicts and permission errors
// that clear once access propagates.
func Retryable(err error) bool {
	return store.IsTransient(err) || errors.Is(err, store.ErrPermissionDenied)
}

// BulkCreate creates items sequentially in one organization. Cancellation is
// checked between items; items already created stay created and the partial
// result is returned with the context error.
func (c *Coordinator) BulkCreate(ctx context.Context, orgID string, items []Item, progress func(Progress)) (*Result, error) {
	res := &Result{Errors: []ItemError{}, IDs: []string{}}

	for i, item := range items {
		if i > 0 {
			if err := c.pause(ctx); err != nil {
				return res, err
			}
		} else if err := ctx.Err(); err != nil {
			return res, err
		}

		desc := item.Description
		if desc == "" {
			desc = fmt.Sprintf("%s #%d", item.Kind, i+1)
		}

		attempts := 0
		id, err := backoff.Retry(ctx, func() (string, error) {
			attempts++
			id, err := c.engine.Create(ctx, orgID, item.Kind, item.Data, item.ID)
			if err != nil && !Retryable(err) {
				return "", backoff.Permanent(err)
			}
			return id, err
		},
			backoff.WithBackOff(c.newBackOff()),
			backoff.WithMaxTries(uint(c.opts.MaxAttempts)),
			backoff.WithNotify(func(err error, next time.Duration) {
				telemetry.GetMetrics().BulkRetriesTotal.Add(ctx, 1)
				log.Warn().Err(err).Str("org_id", orgID).Str("item", desc).Dur("next_retry", next).Msg("bulk item failed, will retry")
			}),
		)

		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, ItemError{Index: i, Description: desc, Attempts: attempts, Error: err.Error()})
			c.count(ctx, "failed")
			log.Error().Err(err).Str("org_id", orgID).Str("item", desc).Int("attempts", attempts).Msg("bulk item failed")
		} else {
			res.Success++
			res.IDs = append(res.IDs, id)
			c.count(ctx, "succeeded")
		}

		if progress != nil {
			progress(Progress{
				Processed: i + 1,
				Total:     len(items),
				Percent:   (i + 1) * 100 / len(items),
				Current:   desc,
			})
		}
	}

	log.Info().Str("org_id", orgID).Int("success", res.Success).Int("failed", res.Failed).Msg("bulk create finished")
	return res, nil
}

func (c *Coordinator) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.RetryBackoff.InitialInterval
	b.MaxInterval = c.opts.RetryBackoff.MaxInterval
	b.Multiplier = c.opts.RetryBackoff.Multiplier
	return b
}

// pause waits the inter item delay unless the context ends first.
func (c *Coordinator) pause(ctx context.Context) error {
	if c.opts.Delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(c.opts.Delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) count(ctx context.Context, outcome string) {
	telemetry.GetMetrics().BulkItemsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
