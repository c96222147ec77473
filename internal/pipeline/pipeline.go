// Package pipeline executes the stage graph of a planning run: the gate
// stage first, then each dependency group in order, ending with the
// finalized itinerary.
package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/trip-planner/internal/agent"
	"github.com/sells-group/trip-planner/internal/cost"
	"github.com/sells-group/trip-planner/internal/credential"
	"github.com/sells-group/trip-planner/internal/enrich"
	"github.com/sells-group/trip-planner/internal/extract"
	"github.com/sells-group/trip-planner/internal/model"
	"github.com/sells-group/trip-planner/internal/recovery"
	"github.com/sells-group/trip-planner/internal/resilience"
	"github.com/sells-group/trip-planner/internal/stage"
)

// Generator performs one generation call for a stage.
type Generator interface {
	Invoke(ctx context.Context, cred credential.Credential, stageName string, data map[string]any) (*agent.Reply, error)
	Provider() string
}

// Enricher fills media gaps in a finished itinerary.
type Enricher interface {
	Enrich(ctx context.Context, doc *model.Itinerary) enrich.Report
}

// BudgetHinter estimates a lower bound for a trip's cost.
type BudgetHinter interface {
	Hint(ctx context.Context, req model.Request) (float64, error)
}

// Options tune an Executor. The zero value runs groups sequentially with no
// cooldown and the default retry policy.
type Options struct {
	Cooldown Cooldown
	Retry    resilience.RetryConfig
	// GroupConcurrency > 1 runs the stages of a group in parallel.
	GroupConcurrency int
	Enricher         Enricher
	BudgetHint       BudgetHinter
	Costs            *cost.Calculator
	Now              func() time.Time
}

// Result is the outcome of one run.
type Result struct {
	RunID     string
	Request   model.Request
	Status    model.RunStatus
	Itinerary *model.Itinerary
	// Rejection is the gate stage's verdict, unchanged, when the run was
	// rejected.
	Rejection extract.Value
	// Failure is the classified cause when the run failed.
	Failure    *recovery.Failure
	Outputs    map[string]extract.Value
	Completed  []string
	Usage      model.TokenUsage
	CostUSD    float64
	Enrichment *enrich.Report
	Duration   time.Duration
}

// Executor runs planning requests through the stage graph. It holds no
// per-run state and is safe for concurrent use.
type Executor struct {
	gen      Generator
	pool     *credential.Pool
	graph    *stage.Graph
	recovery *recovery.Controller
	opts     Options
}

// New creates an Executor.
func New(gen Generator, pool *credential.Pool, graph *stage.Graph, rc *recovery.Controller, opts Options) *Executor {
	if opts.Cooldown == nil {
		opts.Cooldown = NoCooldown{}
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = resilience.DefaultRetryConfig()
	}
	if opts.GroupConcurrency < 1 {
		opts.GroupConcurrency = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if rc == nil {
		rc, _ = recovery.NewController("", 0)
	}
	return &Executor{gen: gen, pool: pool, graph: graph, recovery: rc, opts: opts}
}

// run is the mutable state of one execution. Only the executor touches it.
type run struct {
	id      string
	req     model.Request
	base    *orderedmap.OrderedMap[string, any]
	log     *zap.Logger
	mu      sync.Mutex
	result  *Result
	outputs map[string]extract.Value
}

func (r *run) record(name string, v extract.Value) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs[name] = v
	r.result.Completed = append(r.result.Completed, name)
}

func (r *run) output(name string) (extract.Value, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.outputs[name]
	return v, ok
}

func (r *run) completed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.result.Completed...)
}

func (r *run) addUsage(u model.TokenUsage, usd float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result.Usage.Add(u)
	r.result.CostUSD += usd
}

// Run executes req. A rejected run returns a nil error. A failed run returns
// the result together with a *recovery.ExecutionError that carries no
// internal detail.
func (e *Executor) Run(ctx context.Context, req model.Request) (*Result, error) {
	start := e.opts.Now()
	req = req.Normalize(start)
	if err := req.Validate(); err != nil {
		return nil, eris.Wrap(err, "pipeline: invalid request")
	}

	r := &run{
		id:      uuid.New().String(),
		req:     req,
		base:    req.Context(),
		outputs: make(map[string]extract.Value),
	}
	r.result = &Result{RunID: r.id, Request: req, Status: model.RunStatusRunning, Outputs: r.outputs}
	r.log = zap.L().With(zap.String("run_id", r.id), zap.String("destination", req.Destination))
	ctx = recovery.WithRunID(ctx, r.id)
	r.log.Info("pipeline: starting run", zap.Int("days", req.Days), zap.Float64("budget", req.Budget))

	defer func() {
		r.result.Duration = time.Since(start)
		r.log.Info("pipeline: run finished",
			zap.String("status", string(r.result.Status)),
			zap.Duration("duration", r.result.Duration),
			zap.Int64("tokens", r.result.Usage.Total()),
			zap.Float64("cost_usd", r.result.CostUSD),
		)
	}()

	if e.opts.BudgetHint != nil {
		floor, err := e.opts.BudgetHint.Hint(ctx, req)
		switch {
		case err != nil:
			r.log.Warn("pipeline: budget hint unavailable", zap.Error(err))
		case floor > 0:
			r.base.Set("budget_floor", floor)
		}
	}

	groups := e.graph.Groups()
	gate, hasGate := e.graph.Gate()
	for gi, group := range groups {
		if gi > 0 {
			if err := e.opts.Cooldown.Wait(ctx, gi); err != nil {
				return e.fail(r, recovery.Classify("", eris.Wrap(err, "pipeline: cooldown")))
			}
		}
		if f := e.runGroup(ctx, r, group); f != nil {
			return e.fail(r, f)
		}

		if gi == 0 && hasGate {
			verdict, _ := r.output(gate.Name)
			if feasible, ok := verdict.Bool("is_feasible"); ok && !feasible {
				r.result.Status = model.RunStatusRejected
				r.result.Rejection = verdict
				r.log.Info("pipeline: request rejected",
					zap.String("stage", gate.Name),
					zap.String("reason", verdict.Get("reason").String()),
				)
				return r.result, nil
			}
		}
	}

	final := e.graph.Final()
	v, _ := r.output(final)
	doc := &model.Itinerary{}
	if err := v.Decode(doc); err != nil {
		return e.fail(r, &recovery.Failure{Kind: recovery.KindParse, Stage: final, Raw: v.String(), Err: err})
	}
	e.complete(r, doc)

	if e.opts.Enricher != nil {
		rep := e.opts.Enricher.Enrich(ctx, doc)
		r.result.Enrichment = &rep
		if e.opts.Costs != nil {
			r.result.CostUSD += e.opts.Costs.ImageSearch(rep.Lookups())
		}
	}

	r.result.Itinerary = doc
	r.result.Status = model.RunStatusCompleted
	return r.result, nil
}

// runGroup executes the stages of one group and returns the first fatal
// failure. After a failure no further stage of the group is started.
func (e *Executor) runGroup(ctx context.Context, r *run, group []stage.Stage) *recovery.Failure {
	if e.opts.GroupConcurrency <= 1 || len(group) == 1 {
		for _, st := range group {
			if err := ctx.Err(); err != nil {
				return recovery.Classify(st.Name, err)
			}
			v, f := e.runStage(ctx, r, st)
			if f != nil {
				return f
			}
			r.record(st.Name, v)
		}
		return nil
	}

	var (
		once  sync.Once
		first *recovery.Failure
	)
	// gctx only keeps queued stages from starting after a failure; stages
	// already in flight run on ctx and finish.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.GroupConcurrency)
	for _, st := range group {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			v, f := e.runStage(ctx, r, st)
			if f != nil {
				once.Do(func() { first = f })
				return f
			}
			r.record(st.Name, v)
			return nil
		})
	}
	_ = g.Wait()
	if first == nil && ctx.Err() != nil {
		return recovery.Classify("", ctx.Err())
	}
	return first
}

// runStage invokes st until its output parses or the parse retry budget is
// spent. Generation errors are retried by the retry policy alone.
func (e *Executor) runStage(ctx context.Context, r *run, st stage.Stage) (extract.Value, *recovery.Failure) {
	data, deps := e.stageData(r, st)
	log := r.log.With(zap.String("stage", st.Name))
	log.Debug("pipeline: stage starting", zap.Strings("context", contextKeys(deps)))

	var last ExtractionFailure
	for attempt := 0; attempt <= st.ParseRetries; attempt++ {
		text, err := e.generate(ctx, r, st.Name, data)
		if err != nil {
			return extract.Value{}, recovery.Classify(st.Name, err)
		}

		switch out := Classify(text).(type) {
		case RawText:
			log.Info("pipeline: stage complete", zap.Int("attempt", attempt+1))
			return out.Value, nil
		case ExtractionFailure:
			last = out
			log.Warn("pipeline: stage output not parseable",
				zap.Int("attempt", attempt+1),
				zap.Int("max_attempts", st.ParseRetries+1),
				zap.String("reason", out.Err.Reason),
			)
		}
	}
	return extract.Value{}, recovery.Classify(st.Name, last.Err)
}

// generate draws a fresh credential for every attempt.
func (e *Executor) generate(ctx context.Context, r *run, stageName string, data map[string]any) (string, error) {
	retry := e.opts.Retry
	retry.OnRetry = resilience.RetryLogger("generation", stageName)

	reply, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*agent.Reply, error) {
		cred, err := e.pool.Next()
		if err != nil {
			return nil, err
		}
		return recovery.Guard(ctx, stageName, func(ctx context.Context) (*agent.Reply, error) {
			return e.gen.Invoke(ctx, cred, stageName, data)
		})
	})
	if err != nil {
		return "", err
	}

	var usd float64
	if e.opts.Costs != nil {
		usd = e.opts.Costs.Generation(e.gen.Provider(), reply.Model, reply.Usage.InputTokens, reply.Usage.OutputTokens)
	}
	r.addUsage(reply.Usage, usd)
	return reply.Text, nil
}

// StageContext collects the outputs of st's declared dependencies in
// declaration order. Outputs of other stages are never included.
func StageContext(st stage.Stage, outputs map[string]extract.Value) *orderedmap.OrderedMap[string, extract.Value] {
	m := orderedmap.New[string, extract.Value]()
	for _, dep := range st.DependsOn {
		if v, ok := outputs[dep]; ok {
			m.Set(dep, v)
		}
	}
	return m
}

func contextKeys(m *orderedmap.OrderedMap[string, extract.Value]) []string {
	keys := make([]string, 0, m.Len())
	for pair := m.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

func (e *Executor) stageData(r *run, st stage.Stage) (map[string]any, *orderedmap.OrderedMap[string, extract.Value]) {
	r.mu.Lock()
	deps := StageContext(st, r.outputs)
	r.mu.Unlock()

	data := make(map[string]any, r.base.Len()+2)
	for pair := r.base.Oldest(); pair != nil; pair = pair.Next() {
		data[pair.Key] = pair.Value
	}

	var b strings.Builder
	fields := make(map[string]any, deps.Len())
	for pair := deps.Oldest(); pair != nil; pair = pair.Next() {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("### " + pair.Key + "\n" + pair.Value.String())
		fields[pair.Key] = pair.Value.Fields()
	}
	data["context"] = b.String()
	data["deps"] = fields
	return data, deps
}

// complete fills what the final stage left out from the request and from
// the specialist stages, then reconciles the budget.
func (e *Executor) complete(r *run, doc *model.Itinerary) {
	if doc.Destination == "" {
		doc.Destination = r.req.Destination
	}
	if doc.Origin == "" {
		doc.Origin = r.req.Origin
	}
	if len(doc.Days) == 0 {
		if v, ok := r.output("itinerary"); ok {
			var part struct {
				Days []model.Day `json:"days"`
			}
			if v.Decode(&part) == nil {
				doc.Days = part.Days
			}
		}
	}
	if len(doc.Lodging) == 0 {
		if v, ok := r.output("lodging"); ok {
			var part struct {
				Lodging []model.Lodging `json:"lodging"`
			}
			if v.Decode(&part) == nil {
				doc.Lodging = part.Lodging
			}
		}
	}
	if len(doc.Transport) == 0 {
		if v, ok := r.output("transport"); ok {
			var part struct {
				Transport []model.Transport `json:"transport"`
			}
			if v.Decode(&part) == nil {
				doc.Transport = part.Transport
			}
		}
	}
	if doc.Budget.Currency == "" {
		doc.Budget.Currency = r.req.Currency
	}
	doc.Budget.Reconcile(r.req.Budget)
}

func (e *Executor) fail(r *run, f *recovery.Failure) (*Result, error) {
	r.result.Status = model.RunStatusFailed
	r.result.Failure = f
	return r.result, e.recovery.Fatal(r.id, f, r.completed())
}
