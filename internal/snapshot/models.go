// Package snapshot aggregates environmental data sources into a single
// point-and-radius answer with explainable partial failures.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/safeout/safeout/internal/geo"
	"github.com/safeout/safeout/internal/provider/resilience"
)

// Radius bounds for a query, in meters.
const (
	MinRadiusMeters = 100
	MaxRadiusMeters = 50000
)

// ErrInvalidQuery rejects a request before anything is dispatched.
var ErrInvalidQuery = errors.New("invalid query")

// Query is one inbound point-and-radius request. Read-only for the
// lifetime of the aggregation.
type Query struct {
	Coordinate   geo.Coordinate
	RadiusMeters float64
}

// Validate checks coordinate and radius bounds.
func (q Query) Validate() error {
	if err := q.Coordinate.Validate(); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidQuery, err)
	}
	if q.RadiusMeters < MinRadiusMeters || q.RadiusMeters > MaxRadiusMeters {
		return fmt.Errorf("%w: radius must be between %d and %d meters", ErrInvalidQuery, MinRadiusMeters, MaxRadiusMeters)
	}
	return nil
}

// Status tags the outcome of one provider resolution.
type Status string

const (
	// StatusSuccess carries a payload for the category.
	StatusSuccess Status = "success"
	// StatusEmpty means the provider answered but had no data for the
	// window. Expected and common (e.g. no granule over open ocean).
	StatusEmpty Status = "empty"
	// StatusFailed means the provider could not answer.
	StatusFailed Status = "failed"
)

// ErrorKind classifies a failed resolution.
type ErrorKind string

const (
	KindTransient ErrorKind = "transient"
	KindTimeout   ErrorKind = "timeout"
	KindAuth      ErrorKind = "auth"
	KindDecode    ErrorKind = "decode"
)

// Result is the outcome of one provider for one query. Exactly one is
// produced per configured provider and none is ever silently dropped.
type Result struct {
	Category string
	Status   Status
	Payload  any
	Kind     ErrorKind
	Reason   string
	Elapsed  time.Duration
}

// Success builds a populated result.
func Success(category string, payload any) Result {
	return Result{Category: category, Status: StatusSuccess, Payload: payload}
}

// Empty builds a no-data result with a human-readable reason.
func Empty(category, reason string) Result {
	return Result{Category: category, Status: StatusEmpty, Reason: reason}
}

// Failed builds a failure result.
func Failed(category string, kind ErrorKind, reason string) Result {
	return Result{Category: category, Status: StatusFailed, Kind: kind, Reason: reason}
}

// Classify maps an adapter error to an ErrorKind.
func Classify(err error) ErrorKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrAuth), errors.Is(err, resilience.ErrUnauthorized):
		return KindAuth
	case errors.Is(err, ErrDecode):
		return KindDecode
	default:
		return KindTransient
	}
}

// Sentinel causes for Classify. Adapters wrap collaborator errors with
// these when the cause is known.
var (
	ErrAuth   = errors.New("authentication failed")
	ErrDecode = errors.New("granule decode failed")
)

// Provider is the single capability the orchestrator needs from a data
// source. Implementations convert every internal error to a Result; a
// resolution never aborts the orchestrator or its siblings.
type Provider interface {
	// Category names the response slot this provider fills.
	Category() string

	// Timeout is this provider's individual budget. Grid sources need a
	// much larger budget than point APIs because they may download files.
	Timeout() time.Duration

	// Resolve answers the query. The context carries the provider's
	// timeout; implementations must respect cancellation.
	Resolve(ctx context.Context, q Query) Result
}

// Location echoes the queried point in the response.
type Location struct {
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	RadiusMeters float64 `json:"radius_meters"`
}

// Metadata summarizes how the aggregation went.
type Metadata struct {
	ProcessingTimeMs  int64    `json:"processing_time_ms"`
	SourcesQueried    int      `json:"sources_queried"`
	SourcesSuccessful int      `json:"sources_successful"`
	Warnings          []string `json:"warnings"`
}

// Response is the assembled answer. Every configured category appears in
// Data, null when unavailable; every degraded category appears in
// Metadata.Warnings.
type Response struct {
	Location  Location       `json:"location"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
	Metadata  Metadata       `json:"metadata"`
}

// PartiallyServed reports whether any configured source failed to
// contribute, for HTTP status selection at the host boundary.
func (r *Response) PartiallyServed() bool {
	return r.Metadata.SourcesSuccessful < r.Metadata.SourcesQueried
}
