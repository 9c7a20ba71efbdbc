package engine

import (
	"time"

	"github.com/nova-run/orchestrator/internal/provider"
	"github.com/nova-run/orchestrator/pkg/models"
)

// enginePhase names one stage of the turn pipeline (spec §4.2). Run
// drives a for loop over these, mirroring the teacher's agentic loop
// state machine so every phase boundary is a place telemetry and tests
// can inspect runState without unwinding a deep call chain.
type enginePhase int

const (
	phasePolicySelect enginePhase = iota
	phaseFastPath
	phasePromptAssembly
	phaseProviderCall
	phaseRefusalRecovery
	phaseConstraintCorrection
	phaseNormalize
	phasePersist
	phaseDone
)

func (p enginePhase) String() string {
	switch p {
	case phasePolicySelect:
		return "policy_select"
	case phaseFastPath:
		return "fast_path"
	case phasePromptAssembly:
		return "prompt_assembly"
	case phaseProviderCall:
		return "provider_call"
	case phaseRefusalRecovery:
		return "refusal_recovery"
	case phaseConstraintCorrection:
		return "constraint_correction"
	case phaseNormalize:
		return "normalize"
	case phasePersist:
		return "persist"
	default:
		return "done"
	}
}

// runState is the engine's in-flight, phase-tagged mutable record for one
// turn — frozen into a models.RunSummary once phasePersist completes.
type runState struct {
	turn      models.Turn
	startedAt time.Time

	policy      models.TurnPolicy
	execPolicy  models.ExecutionPolicy
	constraints models.OutputConstraints
	candidates  []provider.ModelCandidate

	systemPrompt string
	messages     []models.CompletionMessage

	fastPathUsed   bool
	route          string
	reply          string
	normalized     string
	usedProvider   string
	usedModel      string
	completion     models.Completion

	memoryRecallUsed bool
	webSearchUsed    bool
	linkContextUsed  bool

	toolObservations []models.ToolCallObservation
	retryLadder      []models.RetryLadderEntry
	toolLoopSnapshot *models.ToolLoopSnapshot

	fallbackStage              string
	fallbackReason             string
	hadCandidateBeforeFallback bool
	constraintCorrectionRan    bool

	streamID string

	err error
}

func newRunState(turn models.Turn) *runState {
	return &runState{turn: turn, route: "chat_engine"}
}
