package zpt

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/cache"
	"github.com/fyrsmithlabs/corpusd/internal/fault"
	"github.com/fyrsmithlabs/corpusd/internal/graph"
	"github.com/fyrsmithlabs/corpusd/internal/limit"
)

// NavigatorConfig bounds the navigation service.
type NavigatorConfig struct {
	// SelectionTimeout bounds the selector stage.
	SelectionTimeout time.Duration

	// TransformTimeout bounds the transformer stage.
	TransformTimeout time.Duration

	// NavigationTimeout bounds the whole call.
	NavigationTimeout time.Duration

	// CacheSize bounds each cache tier.
	CacheSize int

	// FallbackEnabled serves cached selections when the store is down.
	FallbackEnabled bool

	// Corpus names the namespace corpuscles are recorded into.
	Corpus string

	// RecordCorpuscles persists each navigation's selected element set as
	// a named Corpuscle. Recording failures are logged, never fatal.
	RecordCorpuscles bool

	// CommunityMethod names the community-detection algorithm behind the
	// graph, recorded in every view for observability.
	CommunityMethod string
}

// DefaultNavigatorConfig returns the standard stage budgets.
func DefaultNavigatorConfig() NavigatorConfig {
	return NavigatorConfig{
		SelectionTimeout:  30 * time.Second,
		TransformTimeout:  45 * time.Second,
		NavigationTimeout: 90 * time.Second,
		CacheSize:         10000,
	}
}

// Navigator is the outer navigation contract: validation, rate limiting,
// cached selection and transformation, and session/view provenance.
type Navigator struct {
	store       graph.Store
	selector    *Selector
	transformer *Transformer
	sessions    *SessionStore
	limiter     *limit.PerClient
	cfg         NavigatorConfig
	logger      *zap.Logger
	tracer      trace.Tracer
	meter       metric.Meter

	// Cache tiers: validation (short TTL), selection (medium), output (long).
	l1, l2, l3 *cache.Cache

	navCounter  metric.Int64Counter
	failCounter metric.Int64Counter
}

// NewNavigator wires the service.
func NewNavigator(store graph.Store, selector *Selector, transformer *Transformer, sessions *SessionStore, limiter *limit.PerClient, cfg NavigatorConfig, logger *zap.Logger) (*Navigator, error) {
	if store == nil {
		return nil, fault.Invalid("graph store is required")
	}
	if selector == nil {
		return nil, fault.Invalid("selector is required")
	}
	if transformer == nil {
		return nil, fault.Invalid("transformer is required")
	}
	if sessions == nil {
		sessions = NewSessionStore()
	}
	if cfg.SelectionTimeout <= 0 {
		cfg.SelectionTimeout = 30 * time.Second
	}
	if cfg.TransformTimeout <= 0 {
		cfg.TransformTimeout = 45 * time.Second
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 90 * time.Second
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 10000
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	n := &Navigator{
		store:       store,
		selector:    selector,
		transformer: transformer,
		sessions:    sessions,
		limiter:     limiter,
		cfg:         cfg,
		logger:      logger.Named("navigator"),
		tracer:      otel.Tracer(instrumentationName),
		meter:       otel.Meter(instrumentationName),
		l1:          cache.New(cfg.CacheSize, 30*time.Second),
		l2:          cache.New(cfg.CacheSize, 5*time.Minute),
		l3:          cache.New(cfg.CacheSize, 30*time.Minute),
	}
	n.initMetrics()
	return n, nil
}

func (n *Navigator) initMetrics() {
	var err error
	n.navCounter, err = n.meter.Int64Counter(
		"corpusd.navigation.requests_total",
		metric.WithDescription("Total navigation requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		n.logger.Warn("failed to create navigation counter", zap.Error(err))
	}
	n.failCounter, err = n.meter.Int64Counter(
		"corpusd.navigation.failures_total",
		metric.WithDescription("Failed navigation requests by code"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		n.logger.Warn("failed to create failure counter", zap.Error(err))
	}
}

// Sessions exposes the provenance log.
func (n *Navigator) Sessions() *SessionStore { return n.sessions }

// Navigate runs one navigation call end to end.
func (n *Navigator) Navigate(ctx context.Context, req Request) (*Envelope, error) {
	ctx, span := n.tracer.Start(ctx, "zpt.navigate")
	defer span.End()

	if n.navCounter != nil {
		n.navCounter.Add(ctx, 1)
	}

	env, err := n.navigate(ctx, req)
	if err != nil {
		code := string(fault.CodeOf(err))
		span.SetAttributes(attribute.String("error_code", code))
		if n.failCounter != nil {
			n.failCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
		}
		return nil, err
	}
	return env, nil
}

func (n *Navigator) navigate(ctx context.Context, req Request) (*Envelope, error) {
	timings := make(map[string]int64)

	// Validation first: invalid input must not touch any adapter. The L1
	// tier memoises the verdict for repeated parameter shapes.
	start := time.Now()
	if _, err := n.l1.Do(ctx, "validate:"+hashRequest(req, 0), func(context.Context) (any, error) {
		r := req
		if err := r.Validate(); err != nil {
			return nil, err
		}
		return r.Transform, nil
	}); err != nil {
		return nil, err
	}
	// Validation normalises transform defaults; redo locally for this call.
	if err := req.Validate(); err != nil {
		return nil, err
	}
	timings["validate"] = time.Since(start).Milliseconds()

	if n.limiter != nil {
		if err := n.limiter.Allow(req.ClientID); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, n.cfg.NavigationTimeout)
	defer cancel()

	session := n.sessions.Begin(req.ClientID)

	selection, mode, err := n.selectStage(ctx, req, timings)
	if err != nil {
		n.recordFailure(session, req, timings, err)
		return nil, err
	}

	env, err := n.transformStage(ctx, req, selection, timings)
	if err != nil {
		n.recordFailure(session, req, timings, err)
		return nil, err
	}

	// One request, one view. Cancelled requests never commit a view, which
	// the earlier stages guarantee by returning Cancelled before this point.
	view := n.sessions.Append(View{
		SessionID:       session.ID,
		Request:         req,
		ElementIDs:      env.Metadata.ElementIDs,
		Scores:          scoresOf(selection),
		TimingsMS:       timings,
		Mode:            mode,
		CommunityMethod: n.cfg.CommunityMethod,
		Warnings:        selection.Warnings,
	})

	env.Content.Summary = summariseLabels(env.Content.Items)
	env.Metadata.SessionID = session.ID
	env.Metadata.ViewID = view.ID
	env.Metadata.PipelineTimings = timings
	env.Metadata.GeneratedAt = view.CreatedAt
	env.Metadata.Mode = mode
	env.Metadata.CommunityMethod = n.cfg.CommunityMethod
	env.Metadata.Warnings = selection.Warnings

	if n.cfg.RecordCorpuscles && mode == "live" {
		n.recordCorpuscle(ctx, view, env.Metadata.ElementIDs)
	}
	return env, nil
}

// recordCorpuscle persists one navigation's selected set as a Corpuscle whose
// members attach via connectsTo "member" edges.
func (n *Navigator) recordCorpuscle(ctx context.Context, view View, elementIDs []string) {
	if len(elementIDs) == 0 {
		return
	}
	id := "corpusd://" + n.cfg.Corpus + "/corpuscle/" + view.ID
	err := n.store.UpsertElement(ctx, graph.Element{
		ID:     id,
		Kind:   graph.KindCorpuscle,
		Label:  "navigation " + view.ID,
		Corpus: n.cfg.Corpus,
		Source: view.ID,
	})
	if err != nil {
		n.logger.Warn("corpuscle record failed", zap.Error(err))
		return
	}
	for _, member := range elementIDs {
		edge := graph.Edge{Predicate: graph.PredConnectsTo, Src: id, Dst: member, SubType: "member"}
		if err := n.store.AddEdge(ctx, edge); err != nil {
			n.logger.Warn("corpuscle member edge failed",
				zap.String("member", member),
				zap.Error(err),
			)
		}
	}
}

// selectStage runs the cached selection under its stage timeout, degrading
// to the fallback tier when the store is unreachable.
func (n *Navigator) selectStage(ctx context.Context, req Request, timings map[string]int64) (*Selection, string, error) {
	start := time.Now()
	defer func() { timings["selection"] = time.Since(start).Milliseconds() }()

	key := "select:" + hashRequest(req, n.store.Version())
	latestKey := "latest:" + hashRequest(req, 0)
	v, err := n.l2.Do(ctx, key, func(ctx context.Context) (any, error) {
		stageCtx, cancel := context.WithTimeout(ctx, n.cfg.SelectionTimeout)
		defer cancel()
		sel, err := n.selector.Select(stageCtx, req)
		if err != nil {
			if fault.CodeOf(err) == fault.CodeTimeout || (stageCtx.Err() != nil && ctx.Err() == nil) {
				return nil, fault.Timeout(err, "selection stage")
			}
			return nil, err
		}
		return sel, nil
	})
	if err == nil {
		sel := v.(*Selection)
		n.l2.Put(latestKey, sel)
		return sel, "live", nil
	}

	// Store unreachable: serve the most recent cached selection for these
	// parameters when fallback is on.
	if n.cfg.FallbackEnabled && fault.CodeOf(err) == fault.CodeUnavailable {
		if cached, ok := n.l2.Get(latestKey); ok {
			sel := cached.(*Selection)
			n.logger.Warn("serving fallback selection", zap.Uint64("graph_version", sel.GraphVersion))
			return sel, "fallback", nil
		}
	}
	return nil, "", err
}

// transformStage runs the cached transformation under its stage timeout.
func (n *Navigator) transformStage(ctx context.Context, req Request, selection *Selection, timings map[string]int64) (*Envelope, error) {
	start := time.Now()
	defer func() { timings["transform"] = time.Since(start).Milliseconds() }()

	key := fmt.Sprintf("transform:%s:%d", hashRequest(req, selection.GraphVersion), len(selection.Items))
	v, err := n.l3.Do(ctx, key, func(ctx context.Context) (any, error) {
		stageCtx, cancel := context.WithTimeout(ctx, n.cfg.TransformTimeout)
		defer cancel()
		env, err := n.transformer.Transform(stageCtx, req, selection)
		if err != nil {
			if stageCtx.Err() != nil && ctx.Err() == nil {
				return nil, fault.Timeout(err, "transformation stage")
			}
			return nil, err
		}
		return env, nil
	})
	if err != nil {
		return nil, err
	}

	// Each caller gets its own envelope copy; the cache holds the template.
	cached := v.(*Envelope)
	env := *cached
	return &env, nil
}

// recordFailure appends an error view unless the request was cancelled, in
// which case nothing is committed.
func (n *Navigator) recordFailure(session Session, req Request, timings map[string]int64, err error) {
	code := fault.CodeOf(err)
	if code == fault.CodeCancelled {
		return
	}
	n.sessions.Append(View{
		SessionID:       session.ID,
		Request:         req,
		TimingsMS:       timings,
		Mode:            "live",
		CommunityMethod: n.cfg.CommunityMethod,
		ErrCode:         string(code),
	})
}

func scoresOf(selection *Selection) []float64 {
	out := make([]float64, len(selection.Items))
	for i, item := range selection.Items {
		out[i] = item.Score
	}
	return out
}

// hashRequest keys the cache tiers by the canonical request plus the graph
// version the stage depends on.
func hashRequest(req Request, version uint64) string {
	canonical := struct {
		Query     string    `json:"q"`
		Zoom      Zoom      `json:"z"`
		Pan       Pan       `json:"p"`
		Tilt      Tilt      `json:"t"`
		Transform Transform `json:"x"`
		Version   uint64    `json:"v"`
	}{req.Query, req.Zoom, req.Pan, req.Tilt, req.Transform, version}

	data, _ := json.Marshal(canonical)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:16])
}
