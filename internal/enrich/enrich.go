// Package enrich fills missing media references in a finished itinerary by
// looking each item up with an image search.
package enrich

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/trip-planner/internal/credential"
	"github.com/sells-group/trip-planner/internal/model"
	"github.com/sells-group/trip-planner/internal/recovery"
	"github.com/sells-group/trip-planner/internal/resilience"
)

// Kind is the type of item a target belongs to.
type Kind string

const (
	KindLodging  Kind = "lodging"
	KindActivity Kind = "activity"
)

// Target is one media field that still needs a value.
type Target struct {
	// Path locates the field in the document's JSON form, e.g.
	// "lodging.1.image_url".
	Path  string
	Query string
	Kind  Kind
	dst   *string
}

// Lookup resolves a query to a media URL. found is false when the search
// had no usable result.
type Lookup interface {
	Search(ctx context.Context, query string) (url string, found bool, err error)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(ctx context.Context, query string) (string, bool, error)

// Search implements Lookup.
func (f LookupFunc) Search(ctx context.Context, query string) (string, bool, error) {
	return f(ctx, query)
}

// Report summarises an enrichment pass.
type Report struct {
	Targets int `json:"targets"`
	Filled  int `json:"filled"`
	Missed  int `json:"missed"`
	Failed  int `json:"failed"`
}

// Lookups is the number of lookups attempted.
func (r Report) Lookups() int { return r.Filled + r.Missed + r.Failed }

// ErrKeysExhausted reports that every search key was rejected or out of
// quota.
var ErrKeysExhausted = eris.New("enrich: all search keys exhausted")

// tripsBreaker reports whether err means no further lookup in the pass can
// succeed.
func tripsBreaker(err error) bool {
	return errors.Is(err, ErrKeysExhausted) || errors.Is(err, credential.ErrNoCredentials)
}

// Options configure a Service.
type Options struct {
	// Concurrency bounds in-flight lookups. Defaults to 4.
	Concurrency int
	// RPS paces lookups; 0 disables pacing.
	RPS float64
	// Breaker configures the per-pass breaker. Only key exhaustion counts
	// toward its threshold; other lookup failures stay confined to their item.
	Breaker resilience.CircuitBreakerConfig
	// Recovery receives lookup failures. Optional.
	Recovery *recovery.Controller
}

// Service runs enrichment passes. It is safe for concurrent use. Only the
// limiter is shared across passes; each pass gets its own breaker.
type Service struct {
	lookup      Lookup
	limiter     *rate.Limiter
	breaker     resilience.CircuitBreakerConfig
	concurrency int
	rc          *recovery.Controller
}

// NewService creates a Service around lookup.
func NewService(lookup Lookup, opts Options) *Service {
	if opts.Concurrency < 1 {
		opts.Concurrency = 4
	}
	limit := rate.Inf
	if opts.RPS > 0 {
		limit = rate.Limit(opts.RPS)
	}
	return &Service{
		lookup:      lookup,
		limiter:     rate.NewLimiter(limit, opts.Concurrency),
		breaker:     opts.Breaker,
		concurrency: opts.Concurrency,
		rc:          opts.Recovery,
	}
}

// Targets lists the media fields of doc that hold no usable value, lodging
// first and then activities in day order.
func Targets(doc *model.Itinerary) []Target {
	if doc == nil {
		return nil
	}
	var out []Target
	for i := range doc.Lodging {
		l := &doc.Lodging[i]
		if model.IsPlaceholderMedia(l.ImageURL) && strings.TrimSpace(l.Name) != "" {
			out = append(out, Target{
				Path:  "lodging." + strconv.Itoa(i) + ".image_url",
				Query: query(l.Name, doc.Destination),
				Kind:  KindLodging,
				dst:   &l.ImageURL,
			})
		}
	}
	for d := range doc.Days {
		for a := range doc.Days[d].Activities {
			act := &doc.Days[d].Activities[a]
			if model.IsPlaceholderMedia(act.ImageURL) && strings.TrimSpace(act.Name) != "" {
				out = append(out, Target{
					Path:  "days." + strconv.Itoa(d) + ".activities." + strconv.Itoa(a) + ".image_url",
					Query: query(act.Name, doc.Destination),
					Kind:  KindActivity,
					dst:   &act.ImageURL,
				})
			}
		}
	}
	return out
}

func query(name, destination string) string {
	return strings.Join(strings.Fields(name+" "+destination), " ")
}

// Enrich looks up every target of doc and writes the results in place.
// Lookup failures are recorded and never stop the pass. A fully populated
// document causes no lookups.
func (s *Service) Enrich(ctx context.Context, doc *model.Itinerary) Report {
	targets := Targets(doc)
	rep := Report{Targets: len(targets)}
	if len(targets) == 0 {
		return rep
	}

	cfg := s.breaker
	cfg.ShouldTrip = tripsBreaker
	cb := resilience.NewCircuitBreaker(cfg)

	var filled, missed, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, t := range targets {
		g.Go(func() error {
			url, found, err := s.resolve(ctx, cb, t.Query)
			switch {
			case err != nil:
				failed.Add(1)
				s.degrade(ctx, t, err)
			case !found:
				missed.Add(1)
			default:
				*t.dst = url
				filled.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	rep.Filled = int(filled.Load())
	rep.Missed = int(missed.Load())
	rep.Failed = int(failed.Load())
	zap.L().Info("enrich: pass complete",
		zap.String("destination", doc.Destination),
		zap.Int("targets", rep.Targets),
		zap.Int("filled", rep.Filled),
		zap.Int("missed", rep.Missed),
		zap.Int("failed", rep.Failed),
	)
	return rep
}

func (s *Service) resolve(ctx context.Context, cb *resilience.CircuitBreaker, q string) (string, bool, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", false, err
	}
	type hit struct {
		url   string
		found bool
	}
	h, err := resilience.ExecuteVal(ctx, cb, func(ctx context.Context) (hit, error) {
		url, found, err := s.lookup.Search(ctx, q)
		return hit{url: url, found: found}, err
	})
	if err != nil {
		return "", false, err
	}
	if !h.found || model.IsPlaceholderMedia(h.url) {
		return "", false, nil
	}
	return h.url, true, nil
}

func (s *Service) degrade(ctx context.Context, t Target, err error) {
	f := recovery.NewLookupFailure(t.Query, err)
	if s.rc != nil {
		s.rc.Degrade(recovery.RunIDFrom(ctx), f)
		return
	}
	zap.L().Warn("enrich: lookup failed", zap.String("path", t.Path), zap.Error(err))
}
