// Package invoker executes exactly one agent against one opportunity's
// conversation context.
package invoker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/dealsense/internal/agent"
	"github.com/sells-group/dealsense/internal/inference"
	"github.com/sells-group/dealsense/internal/model"
	"github.com/sells-group/dealsense/internal/resilience"
)

// schemaRetries is the number of in-process re-asks after a schema
// violation (total attempts = schemaRetries + 1).
const schemaRetries = 2

// defaultMaxTokens applies when an AgentRunConfig leaves max_tokens unset.
const defaultMaxTokens = 2048

// Config tunes invocation behavior.
type Config struct {
	// CallTimeout bounds each inference round trip.
	CallTimeout time.Duration
	// Retry governs transport-level retries within one round trip.
	Retry resilience.RetryConfig
}

// DefaultConfig returns the invocation defaults: 30s per call, transport
// retries with 1s base backoff doubling.
func DefaultConfig() Config {
	return Config{
		CallTimeout: 30 * time.Second,
		Retry:       resilience.DefaultRetryConfig(),
	}
}

// Input carries everything one invocation needs.
type Input struct {
	Opportunity model.OpportunityContext
	Transcript  []model.Message
	// Config is the agent's run configuration; nil or inactive means the
	// agent is skipped without any network call.
	Config *model.AgentRunConfig
	// Upstream holds the latest succeeded extractions available to
	// decision agents, keyed by agent type.
	Upstream map[model.AgentType]model.Extraction
}

// Result is the terminal per-agent outcome of one invocation. The invoker
// never writes the store; the orchestrator owns persistence.
type Result struct {
	Status            model.ExtractionStatus
	Reason            model.FailureReason
	Err               error
	Payload           *model.Payload
	Confidence        float64
	ConfidenceClamped bool
	Provenance        model.Provenance
}

// Invoker runs single agents against the inference collaborator.
type Invoker struct {
	client inference.Client
	cfg    Config
}

// New creates an Invoker.
func New(client inference.Client, cfg Config) *Invoker {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	return &Invoker{client: client, cfg: cfg}
}

// Run executes one agent. All failures fold into the Result; nothing
// escapes as an error.
func (inv *Invoker) Run(ctx context.Context, def agent.Definition, in Input) Result {
	log := zap.L().With(
		zap.String("agent", string(def.Type)),
		zap.String("opportunity", in.Opportunity.ID),
	)

	if in.Config == nil || !in.Config.Active {
		log.Debug("invoker: agent not configured, skipping")
		return Result{Status: model.ExtractionSkipped}
	}

	start := time.Now()
	res := Result{
		Provenance: model.Provenance{Model: in.Config.Model},
	}
	if def.Category == model.CategoryDecision {
		res.Provenance.ConsumedInputs, res.Provenance.MissingInputs = upstreamProvenance(def, in.Upstream)
	}

	maxTokens := in.Config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	req := inference.Request{
		Model:       in.Config.Model,
		System:      in.Config.SystemPrompt,
		MaxTokens:   maxTokens,
		Temperature: in.Config.Temperature,
		Messages: []inference.Message{
			{Role: "user", Content: BuildUserPrompt(def, in.Opportunity, in.Transcript, in.Upstream)},
		},
	}

	var lastViolation error
	for attempt := 0; attempt <= schemaRetries; attempt++ {
		resp, err := inv.infer(ctx, req)
		if resp != nil {
			res.Provenance.InputTokens += resp.InputTokens
			res.Provenance.OutputTokens += resp.OutputTokens
		}
		if err != nil {
			res.Status = model.ExtractionFailed
			res.Reason = model.ReasonTimeoutOrTransport
			res.Err = err
			res.Provenance.DurationMs = time.Since(start).Milliseconds()
			log.Warn("invoker: inference failed", zap.Error(err))
			return res
		}

		payload, confidence, decodeErr := agent.Decode(def.Type, []byte(extractJSON(resp.Text)))
		if decodeErr != nil {
			lastViolation = decodeErr
			log.Warn("invoker: schema violation",
				zap.Int("attempt", attempt+1),
				zap.Error(decodeErr),
			)
			continue
		}

		res.Status = model.ExtractionSucceeded
		res.Payload = payload
		res.Confidence, res.ConfidenceClamped = model.ClampConfidence(confidence)
		if res.ConfidenceClamped {
			log.Warn("invoker: confidence out of range, clamped",
				zap.Float64("reported", confidence),
				zap.Float64("stored", res.Confidence),
			)
		}
		res.Provenance.DurationMs = time.Since(start).Milliseconds()
		return res
	}

	res.Status = model.ExtractionFailed
	res.Reason = model.ReasonSchemaViolation
	res.Err = lastViolation
	res.Provenance.DurationMs = time.Since(start).Milliseconds()
	return res
}

// infer performs one inference round trip with transport retries and the
// per-call timeout.
func (inv *Invoker) infer(ctx context.Context, req inference.Request) (*inference.Response, error) {
	retryCfg := inv.cfg.Retry
	retryCfg.Service = "inference"
	retryCfg.Operation = req.Model

	return resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*inference.Response, error) {
		callCtx, cancel := context.WithTimeout(ctx, inv.cfg.CallTimeout)
		defer cancel()

		resp, err := inv.client.Infer(callCtx, req)
		if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			// Per-call timeout, not run cancellation: transient.
			return nil, resilience.NewTransientError(err, 0)
		}
		return resp, err
	})
}

func upstreamProvenance(def agent.Definition, upstream map[model.AgentType]model.Extraction) (map[model.AgentType]int, []model.AgentType) {
	consumed := make(map[model.AgentType]int)
	var missing []model.AgentType
	for _, t := range def.Consumes {
		if e, ok := upstream[t]; ok {
			consumed[t] = e.Version
		} else {
			missing = append(missing, t)
		}
	}
	if len(consumed) == 0 {
		consumed = nil
	}
	return consumed, missing
}
