// Package pipeline orchestrates the eight-agent analysis graph for one
// opportunity: six independent agents, a hard barrier, then the two
// decision agents, with every per-agent outcome persisted as a new
// extraction version.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/dealsense/internal/agent"
	"github.com/sells-group/dealsense/internal/config"
	"github.com/sells-group/dealsense/internal/cost"
	"github.com/sells-group/dealsense/internal/invoker"
	"github.com/sells-group/dealsense/internal/model"
	"github.com/sells-group/dealsense/internal/store"
)

// ErrContextUnavailable is the only run-fatal error: the opportunity or its
// transcript could not be loaded. Nothing is persisted and no inference
// call is made.
var ErrContextUnavailable = eris.New("pipeline: context unavailable")

// ContextSource loads the conversation and opportunity context for a run.
type ContextSource interface {
	GetOpportunity(ctx context.Context, id string) (*model.OpportunityContext, error)
	GetTranscript(ctx context.Context, opportunityID string) ([]model.Message, error)
}

// ConfigSource resolves per-agent run configuration. A (nil, nil) return
// means "not configured".
type ConfigSource interface {
	GetAgentConfig(ctx context.Context, agentType model.AgentType) (*model.AgentRunConfig, error)
}

// Invoker abstracts the agent invoker for tests.
type Invoker interface {
	Run(ctx context.Context, def agent.Definition, in invoker.Input) invoker.Result
}

// Pipeline runs the full agent graph.
type Pipeline struct {
	store    store.ExtractionStore
	source   ContextSource
	configs  ConfigSource
	invoker  Invoker
	cfg      config.PipelineConfig
	costCalc *cost.Calculator
}

// New creates a Pipeline.
func New(st store.ExtractionStore, source ContextSource, configs ConfigSource, inv Invoker, cfg config.PipelineConfig) *Pipeline {
	return &Pipeline{
		store:    st,
		source:   source,
		configs:  configs,
		invoker:  inv,
		cfg:      cfg,
		costCalc: cost.NewCalculator(cost.DefaultRates()),
	}
}

// agentRun is the internal per-agent record assembled during a run.
type agentRun struct {
	def    agent.Definition
	result invoker.Result
	// fresh marks agents skipped under the staleness threshold; they keep
	// their existing extraction and get no new version.
	fresh   *model.Extraction
	persist *model.Extraction
	saveErr error
}

// Run executes the eight-agent graph for one opportunity. Only a context
// load failure is returned as an error; every agent-level failure is
// captured in the report. The run always completes within the configured
// run timeout.
func (p *Pipeline) Run(ctx context.Context, opportunityID string, force bool) (*model.RunReport, error) {
	start := time.Now()
	runID := uuid.New().String()
	log := zap.L().With(
		zap.String("run_id", runID),
		zap.String("opportunity", opportunityID),
	)
	log.Info("pipeline: starting analysis", zap.Bool("force", force))

	// Context load is the only run-fatal step.
	opp, err := p.source.GetOpportunity(ctx, opportunityID)
	if err != nil {
		return nil, eris.Wrapf(ErrContextUnavailable, "pipeline: load opportunity %s: %v", opportunityID, err)
	}
	transcript, err := p.source.GetTranscript(ctx, opportunityID)
	if err != nil {
		return nil, eris.Wrapf(ErrContextUnavailable, "pipeline: load transcript %s: %v", opportunityID, err)
	}

	// Snapshot of known-good extractions before this run; feeds the
	// staleness check and the decision agents' upstream inputs.
	prior, err := p.store.LatestPerType(ctx, opportunityID)
	if err != nil {
		log.Warn("pipeline: loading prior extractions failed", zap.Error(err))
		prior = make(map[model.AgentType]model.Extraction)
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if p.cfg.RunTimeout() > 0 {
		runCtx, cancel = context.WithTimeout(ctx, p.cfg.RunTimeout())
		defer cancel()
	}

	runs := make(map[model.AgentType]*agentRun, 8)
	for _, def := range agent.All() {
		runs[def.Type] = &agentRun{def: def}
	}

	// Level 1: six independent agents, all reaching a terminal outcome
	// before level 2 starts.
	var mu sync.Mutex
	p.runLevel(runCtx, agent.Level1(), runs, &mu, force, prior, *opp, transcript, nil)

	// Level 2 consumes the latest succeeded level-1 outputs: this run's
	// successes, falling back to prior versions for agents that were
	// skipped as fresh or failed.
	upstream := make(map[model.AgentType]model.Extraction, len(prior))
	for t, e := range prior {
		upstream[t] = e
	}
	mu.Lock()
	for t, ar := range runs {
		if ar.result.Status == model.ExtractionSucceeded {
			upstream[t] = model.Extraction{
				OpportunityID: opportunityID,
				AgentType:     t,
				Version:       versionAfter(prior, t),
				Status:        model.ExtractionSucceeded,
				Payload:       ar.result.Payload,
				Confidence:    ar.result.Confidence,
			}
		}
	}
	mu.Unlock()

	p.runLevel(runCtx, agent.Level2(), runs, &mu, force, prior, *opp, transcript, upstream)

	// Persist outcomes in canonical order so versions are assigned
	// deterministically within a run.
	for _, def := range agent.All() {
		ar := runs[def.Type]
		if ar.fresh != nil || ar.result.Status == "" {
			continue
		}
		e := &model.Extraction{
			OpportunityID:     opportunityID,
			AgentType:         def.Type,
			Status:            ar.result.Status,
			Reason:            ar.result.Reason,
			Payload:           ar.result.Payload,
			Confidence:        ar.result.Confidence,
			ConfidenceClamped: ar.result.ConfidenceClamped,
			Provenance:        ar.result.Provenance,
		}
		saved, saveErr := p.store.AppendExtraction(ctx, e)
		if saveErr != nil {
			log.Error("pipeline: persist extraction failed",
				zap.String("agent", string(def.Type)),
				zap.Error(saveErr),
			)
			ar.saveErr = saveErr
			continue
		}
		ar.persist = saved
	}

	report := p.buildReport(ctx, runID, opportunityID, runs, start)
	log.Info("pipeline: analysis complete",
		zap.String("status", string(report.Status)),
		zap.Int("tokens", report.TotalTokens),
		zap.Int64("duration_ms", report.DurationMs),
	)
	return report, nil
}

// runLevel invokes one tier of agents concurrently and blocks until each
// reaches a terminal outcome. Agent failures never propagate through the
// group; they are captured per agent.
func (p *Pipeline) runLevel(
	runCtx context.Context,
	defs []agent.Definition,
	runs map[model.AgentType]*agentRun,
	mu *sync.Mutex,
	force bool,
	prior map[model.AgentType]model.Extraction,
	opp model.OpportunityContext,
	transcript []model.Message,
	upstream map[model.AgentType]model.Extraction,
) {
	g, gCtx := errgroup.WithContext(runCtx)
	for _, def := range defs {
		g.Go(func() error {
			ar := p.runAgent(gCtx, def, force, prior, opp, transcript, upstream)
			mu.Lock()
			*runs[def.Type] = ar
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Pipeline) runAgent(
	ctx context.Context,
	def agent.Definition,
	force bool,
	prior map[model.AgentType]model.Extraction,
	opp model.OpportunityContext,
	transcript []model.Message,
	upstream map[model.AgentType]model.Extraction,
) agentRun {
	ar := agentRun{def: def}

	// Staleness skip: without force, a recent enough succeeded extraction
	// short-circuits the agent entirely.
	if !force && p.cfg.StalenessThreshold() > 0 {
		if e, ok := prior[def.Type]; ok && time.Since(e.CreatedAt) < p.cfg.StalenessThreshold() {
			fresh := e
			ar.fresh = &fresh
			return ar
		}
	}

	runCfg, err := p.configs.GetAgentConfig(ctx, def.Type)
	if err != nil {
		ar.result = invoker.Result{
			Status: model.ExtractionFailed,
			Reason: model.ReasonTimeoutOrTransport,
			Err:    eris.Wrapf(err, "pipeline: load config for %s", def.Type),
		}
		return ar
	}

	ar.result = p.invoker.Run(ctx, def, invoker.Input{
		Opportunity: opp,
		Transcript:  transcript,
		Config:      runCfg,
		Upstream:    upstream,
	})

	// An agent cut down by the overall run deadline is a run timeout, not
	// an ordinary transport failure.
	if ar.result.Status == model.ExtractionFailed &&
		ar.result.Reason == model.ReasonTimeoutOrTransport &&
		errors.Is(ctx.Err(), context.DeadlineExceeded) {
		ar.result.Reason = model.ReasonRunTimeout
	}
	return ar
}

func (p *Pipeline) buildReport(ctx context.Context, runID, opportunityID string, runs map[model.AgentType]*agentRun, start time.Time) *model.RunReport {
	report := &model.RunReport{
		RunID:         runID,
		OpportunityID: opportunityID,
		Status:        model.RunCompleted,
		StartedAt:     start.UTC(),
	}

	for _, def := range agent.All() {
		ar := runs[def.Type]
		outcome := model.AgentOutcome{AgentType: def.Type}

		switch {
		case ar.fresh != nil:
			outcome.Status = model.OutcomeFresh
			outcome.Version = ar.fresh.Version
			outcome.Confidence = ar.fresh.Confidence
		case ar.result.Status == model.ExtractionSucceeded:
			outcome.Status = model.OutcomeSucceeded
			outcome.Confidence = ar.result.Confidence
			outcome.DurationMs = ar.result.Provenance.DurationMs
			outcome.Tokens = ar.result.Provenance.TotalTokens()
			if ar.persist != nil {
				outcome.Version = ar.persist.Version
			}
		case ar.result.Status == model.ExtractionSkipped:
			outcome.Status = model.OutcomeNotConfigured
			report.Status = model.RunCompletedPartial
		default:
			outcome.Status = model.OutcomeFailed
			outcome.Reason = ar.result.Reason
			outcome.DurationMs = ar.result.Provenance.DurationMs
			outcome.Tokens = ar.result.Provenance.TotalTokens()
			if ar.result.Err != nil {
				outcome.Error = ar.result.Err.Error()
			}
			report.Status = model.RunCompletedPartial
		}
		if ar.saveErr != nil && outcome.Error == "" {
			outcome.Error = "persist: " + ar.saveErr.Error()
		}

		report.TotalTokens += outcome.Tokens
		report.TotalCostUSD += p.costCalc.Tokens(
			ar.result.Provenance.Model,
			ar.result.Provenance.InputTokens,
			ar.result.Provenance.OutputTokens,
		)
		report.Outcomes = append(report.Outcomes, outcome)
	}

	latest, err := p.store.LatestPerType(ctx, opportunityID)
	if err != nil {
		zap.L().Warn("pipeline: loading latest extractions for report failed", zap.Error(err))
		latest = make(map[model.AgentType]model.Extraction)
	}
	report.Latest = latest
	if e, ok := latest[model.AgentPipelineClassifier]; ok && e.Payload != nil {
		report.Recommended = e.Payload.Stage
	}

	report.DurationMs = time.Since(start).Milliseconds()
	return report
}

// versionAfter predicts the version a success in this run will receive:
// one past the latest known version. Used only for upstream traceability
// before persistence assigns the real number.
func versionAfter(prior map[model.AgentType]model.Extraction, t model.AgentType) int {
	if e, ok := prior[t]; ok {
		return e.Version + 1
	}
	return 1
}
