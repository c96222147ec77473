// Package planner serves trip requests from the plan cache or the stage
// pipeline and hands finished runs to the configured sink.
package planner

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/sells-group/trip-planner/internal/cache"
	"github.com/sells-group/trip-planner/internal/model"
	"github.com/sells-group/trip-planner/internal/pipeline"
	"github.com/sells-group/trip-planner/internal/sink"
)

// Outcome sources.
const (
	SourceCache    = "cache"
	SourcePipeline = "ai"
)

// ErrInvalidRequest wraps request validation failures.
var ErrInvalidRequest = eris.New("planner: invalid request")

// Runner executes a request through the stage pipeline.
type Runner interface {
	Run(ctx context.Context, req model.Request) (*pipeline.Result, error)
}

// Options configure a Service. Nil members are replaced by no-ops.
type Options struct {
	Cache cache.Cache
	Sink  sink.Sink
	Now   func() time.Time
}

// Service answers planning requests.
type Service struct {
	runner Runner
	cache  cache.Cache
	sink   sink.Sink
	now    func() time.Time
}

// New creates a Service.
func New(runner Runner, opts Options) *Service {
	if opts.Cache == nil {
		opts.Cache = cache.Nop{}
	}
	if opts.Sink == nil {
		opts.Sink = sink.Nop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{runner: runner, cache: opts.Cache, sink: opts.Sink, now: opts.Now}
}

// Outcome is the answer to one request.
type Outcome struct {
	RunID      string
	SearchHash string
	Status     model.RunStatus
	Source     string
	Itinerary  *model.Itinerary
	Rejection  json.RawMessage
	// Result is nil for cache hits.
	Result *pipeline.Result
}

// Plan answers req. A failed run returns the outcome together with the
// run's public error.
func (s *Service) Plan(ctx context.Context, req model.Request) (*Outcome, error) {
	req = req.Normalize(s.now())
	if err := req.Validate(); err != nil {
		return nil, eris.Wrap(ErrInvalidRequest, err.Error())
	}
	hash := cache.SearchHash(req)
	log := zap.L().With(zap.String("search_hash", hash), zap.String("destination", req.Destination))

	if !req.ForceRefresh {
		if doc, ok := s.cache.Get(ctx, hash); ok {
			log.Info("planner: cache hit")
			return &Outcome{SearchHash: hash, Status: model.RunStatusCompleted, Source: SourceCache, Itinerary: doc}, nil
		}
	}

	res, err := s.runner.Run(ctx, req)
	if res == nil {
		if err == nil {
			err = eris.New("planner: runner returned no result")
		}
		return nil, err
	}

	out := &Outcome{
		RunID:      res.RunID,
		SearchHash: hash,
		Status:     res.Status,
		Source:     SourcePipeline,
		Itinerary:  res.Itinerary,
		Result:     res,
	}
	if !res.Rejection.IsZero() {
		out.Rejection = json.RawMessage(res.Rejection.Bytes())
	}

	switch res.Status {
	case model.RunStatusCompleted:
		if perr := s.cache.Put(ctx, hash, res.Itinerary); perr != nil {
			log.Warn("planner: cache put failed", zap.Error(perr))
		}
		s.deliver(ctx, out, req, res)
	case model.RunStatusRejected:
		s.deliver(ctx, out, req, res)
	}
	return out, err
}

func (s *Service) deliver(ctx context.Context, out *Outcome, req model.Request, res *pipeline.Result) {
	rec := sink.Record{
		RunID:      out.RunID,
		SearchHash: out.SearchHash,
		Request:    req,
		Status:     out.Status,
		Document:   out.Itinerary,
		Rejection:  out.Rejection,
		CostUSD:    res.CostUSD,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.sink.Accept(ctx, rec); err != nil {
		zap.L().Error("planner: sink rejected run", zap.String("run_id", out.RunID), zap.Error(err))
	}
}

// Body renders the client-facing JSON for o: the itinerary for completed
// runs, or the feasibility verdict for rejected ones, stamped with source and
// run_id.
func (o *Outcome) Body() ([]byte, error) {
	var (
		body []byte
		err  error
	)
	switch o.Status {
	case model.RunStatusCompleted:
		body, err = json.Marshal(o.Itinerary)
		if err != nil {
			return nil, eris.Wrap(err, "planner: marshal itinerary")
		}
	case model.RunStatusRejected:
		body = []byte(`{}`)
		if len(o.Rejection) > 0 {
			body, err = sjson.SetRawBytes(body, "feasibility", o.Rejection)
			if err != nil {
				return nil, eris.Wrap(err, "planner: set feasibility")
			}
		}
	default:
		body = []byte(`{"error":"trip planning failed"}`)
	}

	for path, v := range map[string]string{
		"status":      string(o.Status),
		"source":      o.Source,
		"run_id":      o.RunID,
		"search_hash": o.SearchHash,
	} {
		if v == "" {
			continue
		}
		if body, err = sjson.SetBytes(body, path, v); err != nil {
			return nil, eris.Wrapf(err, "planner: set %s", path)
		}
	}
	return body, nil
}
