// Package scraper fetches raw job offers from external boards and
// normalizes them into postings. Every board is one Adapter; the closed set
// of adapters lives in a Registry keyed by source tag.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"time"

	"jobmate/discovery-service/internal/logger"
	"jobmate/discovery-service/internal/model"
)

// Adapter fetches offers from one external source. Implementations hold no
// state shared with other adapters.
type Adapter interface {
	Source() model.Source
	Fetch(ctx context.Context, q model.Query) ([]model.RawPosting, error)
	Normalize(raw model.RawPosting, now time.Time) model.Posting
}

// ErrorKind separates failures worth one retry from those that are not.
type ErrorKind string

const (
	KindTransient ErrorKind = "transient"
	KindPermanent ErrorKind = "permanent"
)

// FetchError is returned by adapters for every failed fetch.
type FetchError struct {
	Source model.Source
	Kind   ErrorKind
	Status int // HTTP status, 0 when no response was received
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s failure (status %d): %v", e.Source, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s failure: %v", e.Source, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func transient(src model.Source, status int, err error) *FetchError {
	return &FetchError{Source: src, Kind: KindTransient, Status: status, Err: err}
}

func permanent(src model.Source, status int, err error) *FetchError {
	return &FetchError{Source: src, Kind: KindPermanent, Status: status, Err: err}
}

// statusError classifies a non-200 response: 408, 429 and 5xx are transient,
// every other status is permanent.
func statusError(src model.Source, status int, body []byte) *FetchError {
	err := fmt.Errorf("unexpected status %d: %s", status, sample(body))
	if status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= 500 {
		return transient(src, status, err)
	}
	return permanent(src, status, err)
}

// KindOf classifies any error returned by Fetch. Timeouts and network
// errors count as transient even when an adapter did not wrap them.
func KindOf(err error) ErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return KindTransient
	}
	return KindPermanent
}

func sample(body []byte) string {
	return logger.Truncate(string(body), 200)
}

// ─── Registry ────────────────────────────────────────────────────────────────

// ErrUnknownSource is returned by Select for a tag with no adapter.
var ErrUnknownSource = errors.New("unknown source")

// Registry is the lookup table of configured adapters.
type Registry struct {
	adapters map[model.Source]Adapter
}

// NewRegistry indexes adapters by source tag. Two adapters may not share a
// tag.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[model.Source]Adapter, len(adapters))}
	for _, a := range adapters {
		if _, dup := r.adapters[a.Source()]; dup {
			return nil, fmt.Errorf("duplicate adapter for source %q", a.Source())
		}
		r.adapters[a.Source()] = a
	}
	return r, nil
}

// Lookup returns the adapter registered for src.
func (r *Registry) Lookup(src model.Source) (Adapter, bool) {
	a, ok := r.adapters[src]
	return a, ok
}

// Sources lists the registered tags in sorted order.
func (r *Registry) Sources() []model.Source {
	out := make([]model.Source, 0, len(r.adapters))
	for s := range r.adapters {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Select resolves source tags to adapters. An empty list selects every
// registered adapter; an unknown tag is an error.
func (r *Registry) Select(sources []model.Source) ([]Adapter, error) {
	if len(sources) == 0 {
		sources = r.Sources()
	}
	out := make([]Adapter, 0, len(sources))
	seen := make(map[model.Source]bool, len(sources))
	for _, s := range sources {
		if seen[s] {
			continue
		}
		seen[s] = true
		a, ok := r.adapters[s]
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrUnknownSource, s)
		}
		out = append(out, a)
	}
	return out, nil
}
