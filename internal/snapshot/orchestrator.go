package snapshot

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// OrchestratorConfig holds configuration for the aggregation orchestrator.
type OrchestratorConfig struct {
	// Providers are the configured data sources, one per category.
	Providers []Provider

	// Logger for orchestration events.
	Logger zerolog.Logger

	// CeilingTimeout bounds the whole aggregation regardless of the
	// per-provider budgets (default: 45 seconds).
	CeilingTimeout time.Duration
}

// Orchestrator fans a query out to all configured providers, collects
// their results with independent timeouts, and assembles the unified
// response. A provider failure never fails the request; only an invalid
// query does.
type Orchestrator struct {
	providers []Provider
	logger    zerolog.Logger
	ceiling   time.Duration
	nowFn     func() time.Time
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	ceiling := cfg.CeilingTimeout
	if ceiling <= 0 {
		ceiling = 45 * time.Second
	}
	return &Orchestrator{
		providers: cfg.Providers,
		logger:    cfg.Logger,
		ceiling:   ceiling,
		nowFn:     time.Now,
	}
}

// Snapshot runs the aggregation. The returned error is non-nil only for
// an invalid query; provider-level problems surface in the response's
// warnings instead.
func (o *Orchestrator) Snapshot(ctx context.Context, q Query) (*Response, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	start := o.nowFn()

	ctx, cancel := context.WithTimeout(ctx, o.ceiling)
	defer cancel()

	results := make(chan Result, len(o.providers))
	for _, p := range o.providers {
		go o.resolve(ctx, p, q, results)
	}

	collected := make(map[string]Result, len(o.providers))
collect:
	for len(collected) < len(o.providers) {
		select {
		case r := <-results:
			collected[r.Category] = r
		case <-ctx.Done():
			break collect
		}
	}

	// Anything that did not report by the ceiling is a timeout, recorded
	// rather than silently dropped.
	for _, p := range o.providers {
		if _, ok := collected[p.Category()]; !ok {
			collected[p.Category()] = Failed(p.Category(), KindTimeout,
				fmt.Sprintf("%s did not respond within the request ceiling", p.Category()))
		}
	}

	return o.assemble(q, collected, o.nowFn().Sub(start)), nil
}

// resolve runs one provider under its own timeout and always delivers
// exactly one result, converting panics and deadline overruns to failures.
func (o *Orchestrator) resolve(ctx context.Context, p Provider, q Query, results chan<- Result) {
	category := p.Category()
	start := time.Now()

	pctx, cancel := context.WithTimeout(ctx, p.Timeout())
	defer cancel()

	done := make(chan Result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				o.logger.Error().
					Str("category", category).
					Interface("panic", rec).
					Msg("provider panicked")
				done <- Failed(category, KindTransient, fmt.Sprintf("%s provider panicked", category))
			}
		}()
		done <- p.Resolve(pctx, q)
	}()

	var r Result
	select {
	case r = <-done:
	case <-pctx.Done():
		// The provider ignored cancellation; abandon it.
		r = Failed(category, KindTimeout, fmt.Sprintf("%s exceeded its %s budget", category, p.Timeout()))
	}
	r.Category = category
	r.Elapsed = time.Since(start)

	o.logger.Debug().
		Str("category", category).
		Str("status", string(r.Status)).
		Dur("elapsed", r.Elapsed).
		Msg("provider resolved")

	results <- r
}

// assemble merges results by category key, so completion order never
// affects the response.
func (o *Orchestrator) assemble(q Query, collected map[string]Result, elapsed time.Duration) *Response {
	data := make(map[string]any, len(collected))
	warnings := make([]string, 0)
	successful := 0

	categories := make([]string, 0, len(collected))
	for category := range collected {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	for _, category := range categories {
		r := collected[category]
		switch r.Status {
		case StatusSuccess:
			data[category] = r.Payload
			successful++
		case StatusEmpty:
			data[category] = nil
			warnings = append(warnings, fmt.Sprintf("%s: %s", category, emptyReason(r)))
		case StatusFailed:
			data[category] = nil
			warnings = append(warnings, fmt.Sprintf("%s: %s (%s)", category, r.Reason, r.Kind))
			o.logger.Warn().
				Str("category", category).
				Str("kind", string(r.Kind)).
				Str("reason", r.Reason).
				Msg("provider failed")
		}
	}

	return &Response{
		Location: Location{
			Latitude:     q.Coordinate.Lat,
			Longitude:    q.Coordinate.Lon,
			RadiusMeters: q.RadiusMeters,
		},
		Timestamp: o.nowFn().UTC(),
		Data:      data,
		Metadata: Metadata{
			ProcessingTimeMs:  elapsed.Milliseconds(),
			SourcesQueried:    len(o.providers),
			SourcesSuccessful: successful,
			Warnings:          warnings,
		},
	}
}

func emptyReason(r Result) string {
	if r.Reason != "" {
		return r.Reason
	}
	return "no data available"
}
