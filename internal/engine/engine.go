// Package engine implements the chat execution engine (spec §4.2): the
// pipeline that turns one dispatched Turn into a RunSummary, run as eight
// enginePhase steps (policy derivation and provider selection share the
// first one). It is built as an explicit state machine — a for loop over enginePhase
// values — rather than a deep call chain, so runState stays inspectable
// at every phase boundary for telemetry, matching the shape of the
// teacher's agentic loop.
package engine

import (
	"context"
	"time"

	"github.com/nova-run/orchestrator/internal/devlog"
	"github.com/nova-run/orchestrator/internal/dispatch"
	"github.com/nova-run/orchestrator/internal/observability"
	"github.com/nova-run/orchestrator/internal/pending"
	"github.com/nova-run/orchestrator/internal/provider"
	"github.com/nova-run/orchestrator/internal/sessionstore"
	"github.com/nova-run/orchestrator/internal/shortterm"
	"github.com/nova-run/orchestrator/internal/telemetry"
	"github.com/nova-run/orchestrator/internal/wshub"
	"github.com/nova-run/orchestrator/pkg/models"
)

// Engine implements dispatch.ChatEngine.
var _ dispatch.ChatEngine = (*Engine)(nil)

const (
	DefaultMaxPromptTokens     = 6000
	DefaultResponseReserve     = 800
	DefaultMinHistoryTokens    = 200
	DefaultMaxHistoryTokens    = 3000
	DefaultHistoryTargetTokens = 1500

	DefaultMaxToolSteps        = 8
	DefaultMaxToolCallsPerStep = 4
	DefaultToolLoopMaxDuration = 60 * time.Second
	DefaultToolStepTimeout     = 8 * time.Second
	DefaultToolExecTimeout     = 10 * time.Second
	DefaultRecoveryBudget      = 5 * time.Second

	DefaultSlowTurnThresholdMs = int64(4000)
	DefaultEnrichmentTimeout   = 2500 * time.Millisecond
)

// ProviderIntegration is one entry in the integrations snapshot §4.2.1
// ranks to build the provider candidate list.
type ProviderIntegration struct {
	Name           string
	Keyed          bool
	Enabled        bool
	Preferred      int // lower sorts first
	DefaultModel   string
	FallbackModels []string
}

// Config bounds the engine's prompt budget, tool loop, and recovery
// behavior. Zero-value fields fall back to the Default* constants.
type Config struct {
	MaxPromptTokens     int
	ResponseReserve     int
	MinHistoryTokens    int
	MaxHistoryTokens    int
	HistoryTargetTokens int

	MaxToolSteps        int
	MaxToolCallsPerStep int
	ToolLoopMaxDuration time.Duration
	ToolStepTimeout     time.Duration
	ToolExecTimeout     time.Duration
	RecoveryBudget      time.Duration

	SensitiveTools      map[string]bool
	SlowTurnThresholdMs int64
	EnrichmentTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxPromptTokens <= 0 {
		c.MaxPromptTokens = DefaultMaxPromptTokens
	}
	if c.ResponseReserve <= 0 {
		c.ResponseReserve = DefaultResponseReserve
	}
	if c.MinHistoryTokens <= 0 {
		c.MinHistoryTokens = DefaultMinHistoryTokens
	}
	if c.MaxHistoryTokens <= 0 {
		c.MaxHistoryTokens = DefaultMaxHistoryTokens
	}
	if c.HistoryTargetTokens <= 0 {
		c.HistoryTargetTokens = DefaultHistoryTargetTokens
	}
	if c.MaxToolSteps <= 0 {
		c.MaxToolSteps = DefaultMaxToolSteps
	}
	if c.MaxToolCallsPerStep <= 0 {
		c.MaxToolCallsPerStep = DefaultMaxToolCallsPerStep
	}
	if c.ToolLoopMaxDuration <= 0 {
		c.ToolLoopMaxDuration = DefaultToolLoopMaxDuration
	}
	if c.ToolStepTimeout <= 0 {
		c.ToolStepTimeout = DefaultToolStepTimeout
	}
	if c.ToolExecTimeout <= 0 {
		c.ToolExecTimeout = DefaultToolExecTimeout
	}
	if c.RecoveryBudget <= 0 {
		c.RecoveryBudget = DefaultRecoveryBudget
	}
	if c.SlowTurnThresholdMs <= 0 {
		c.SlowTurnThresholdMs = DefaultSlowTurnThresholdMs
	}
	if c.EnrichmentTimeout <= 0 {
		c.EnrichmentTimeout = DefaultEnrichmentTimeout
	}
	if c.SensitiveTools == nil {
		c.SensitiveTools = map[string]bool{
			"gmail_forward_message": true,
			"gmail_reply_draft":     true,
		}
	}
	return c
}

// Engine runs the chat execution engine. Every collaborator field except
// Registry is optional; a nil collaborator simply disables the phase
// sub-step it would have served (no persona source means no persona
// section, no ToolRuntime means the tool loop is never entered).
type Engine struct {
	Registry     *provider.Registry
	Integrations []ProviderIntegration

	Sessions sessionstore.Store
	Pending  *pending.Store
	ShortTerm *shortterm.Store

	ToolRuntime ToolRuntime

	FastWeather FastPathWeather
	FastCrypto  FastPathCrypto

	Persona      PersonaSource
	Preferences  PreferenceMemory
	Identity     IdentitySignals
	Personality  PersonalityCalibration
	WebSearch    WebSearcher
	LinkFetch    LinkFetcher
	MemoryRecall MemoryRecallSource

	Broadcaster wshub.Broadcaster
	HudTokens   *wshub.HudTokenIssuer

	DevLog     *devlog.Sink
	DevLogMode devlog.RedactMode
	Metrics    *observability.Metrics
	Tracer     *observability.Tracer

	Config Config

	// Now is the clock used for persisted timestamps; defaults to
	// time.Now. Tests may override it for determinism.
	Now func() time.Time
}

// New builds an Engine, applying Config defaults.
func New(registry *provider.Registry, integrations []ProviderIntegration) *Engine {
	return &Engine{
		Registry:     registry,
		Integrations: integrations,
		Config:       Config{}.withDefaults(),
		Now:          time.Now,
	}
}

// Run implements dispatch.ChatEngine: it drives runState through every
// phase in §4.2's order, stopping early wherever a phase short-circuits
// (a fast-path reply skips straight to persistence; a provider-selection
// failure aborts before any completion is attempted).
func (e *Engine) Run(ctx context.Context, turn models.Turn) (*models.RunSummary, error) {
	if e.Now == nil {
		e.Now = time.Now
	}
	cfg := e.Config.withDefaults()
	e.Config = cfg

	st := newRunState(turn)
	st.startedAt = e.Now()
	rec := telemetry.NewStageRecorder(e.Tracer, e.Metrics, "chat")
	defer rec.Finish()

	if e.Broadcaster != nil {
		e.Broadcaster.BroadcastState(turn.SessionKey, "processing")
		e.Broadcaster.BroadcastThinkingStatus(turn.SessionKey, true)
		defer e.Broadcaster.BroadcastThinkingStatus(turn.SessionKey, false)
	}

	phase := phasePolicySelect
	for phase != phaseDone {
		current := phase
		var next enginePhase
		var err error
		stageErr := rec.Stage(ctx, current.String(), func(stageCtx context.Context) error {
			var stepErr error
			next, stepErr = e.runPhase(stageCtx, current, st)
			return stepErr
		})
		if stageErr != nil {
			err = stageErr
		}
		if err != nil {
			st.err = err
			if e.Broadcaster != nil {
				e.Broadcaster.BroadcastState(turn.SessionKey, "error")
			}
			return e.errorSummary(st, rec), err
		}
		phase = next
	}

	if e.Broadcaster != nil {
		e.Broadcaster.BroadcastState(turn.SessionKey, "idle")
	}

	summary := e.buildSummary(st, rec)
	return summary, nil
}

func (e *Engine) runPhase(ctx context.Context, phase enginePhase, st *runState) (enginePhase, error) {
	switch phase {
	case phasePolicySelect:
		return e.runPolicySelect(ctx, st)
	case phaseFastPath:
		return e.runFastPath(ctx, st)
	case phasePromptAssembly:
		return e.runPromptAssembly(ctx, st)
	case phaseProviderCall:
		return e.runProviderCall(ctx, st)
	case phaseRefusalRecovery:
		return e.runRefusalRecovery(ctx, st)
	case phaseConstraintCorrection:
		return e.runConstraintCorrection(ctx, st)
	case phaseNormalize:
		return e.runNormalize(ctx, st)
	case phasePersist:
		return e.runPersist(ctx, st)
	default:
		return phaseDone, nil
	}
}

func (e *Engine) errorSummary(st *runState, rec *telemetry.StageRecorder) *models.RunSummary {
	return &models.RunSummary{
		Route:         st.route,
		OK:            false,
		Err:           st.err,
		LatencyStages: rec.Stages(),
		LatencyHotPath: rec.HotPath(),
	}
}

func (e *Engine) buildSummary(st *runState, rec *telemetry.StageRecorder) *models.RunSummary {
	return &models.RunSummary{
		Route:            st.route,
		OK:               true,
		Reply:            st.normalized,
		Provider:         st.usedProvider,
		Model:            st.usedModel,
		PromptTokens:     st.completion.Usage.PromptTokens,
		CompletionTokens: st.completion.Usage.CompletionTokens,
		TotalTokens:      st.completion.Usage.PromptTokens + st.completion.Usage.CompletionTokens,
		ToolCalls:        st.toolObservations,
		RetryLadder:      st.retryLadder,
		LatencyStages:    rec.Stages(),
		LatencyHotPath:   rec.HotPath(),
		FallbackStage:    st.fallbackStage,
		FallbackReason:   st.fallbackReason,
		HadCandidateBeforeFallback: st.hadCandidateBeforeFallback,
		ToolLoop:         st.toolLoopSnapshot,
		MemoryRecallUsed: st.memoryRecallUsed,
		WebSearchUsed:    st.webSearchUsed,
		LinkContextUsed:  st.linkContextUsed,
		RankedProviderCandidates: candidateStrings(st.candidates),
	}
}

func candidateStrings(cands []provider.ModelCandidate) []string {
	if len(cands) == 0 {
		return nil
	}
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.String()
	}
	return out
}
