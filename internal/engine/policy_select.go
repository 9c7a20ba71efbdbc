package engine

import (
	"context"
	"sort"

	"github.com/nova-run/orchestrator/internal/constraints"
	"github.com/nova-run/orchestrator/internal/provider"
	"github.com/nova-run/orchestrator/internal/turnpolicy"
	"github.com/nova-run/orchestrator/pkg/models"
)

// runPolicySelect implements spec §4.2.1: derive the turn policy,
// intersect it with actual tool-runtime capabilities, parse strict
// output constraints, and rank provider candidates.
func (e *Engine) runPolicySelect(_ context.Context, st *runState) (enginePhase, error) {
	st.policy = turnpolicy.Derive(st.turn.Text)
	st.constraints = constraints.Parse(st.turn.Text)

	caps := turnpolicy.ToolRuntimeCapabilities{}
	if e.ToolRuntime != nil {
		caps.Available = true
		caps.HasWebSearch = e.WebSearch != nil
		caps.HasWebFetch = e.LinkFetch != nil
		caps.HasMemory = e.MemoryRecall != nil
	}
	st.execPolicy = turnpolicy.Intersect(st.policy, caps)

	candidates, err := e.selectCandidates(st.policy)
	if err != nil {
		return phaseDone, err
	}
	st.candidates = candidates
	if len(candidates) > 0 {
		st.usedProvider = candidates[0].Provider
		st.usedModel = candidates[0].Model
	}

	return phaseFastPath, nil
}

// selectCandidates ranks connected, keyed integrations per §4.2.1: a
// single connected provider is used outright; otherwise tool-calling
// requirements narrow the field, then the Preferred ordering breaks
// ties. Each integration contributes its default model followed by its
// hardcoded fallbacks, so ResolveChatRuntime can retry within a provider
// before moving to the next one.
func (e *Engine) selectCandidates(policy models.TurnPolicy) ([]provider.ModelCandidate, error) {
	keyed := make([]ProviderIntegration, 0, len(e.Integrations))
	for _, in := range e.Integrations {
		if in.Keyed && in.Enabled {
			keyed = append(keyed, in)
		}
	}
	if len(keyed) == 0 {
		return nil, ErrNoProviderConnected
	}

	requireTools := policy.ToolLoopCandidate && e.ToolRuntime != nil
	if requireTools {
		toolCapable := keyed[:0:0]
		for _, in := range keyed {
			backend := e.Registry.Backend(in.Name)
			if backend != nil && backend.SupportsTools() {
				toolCapable = append(toolCapable, in)
			}
		}
		if len(toolCapable) == 0 {
			return nil, ErrNoToolCapableProvider
		}
		keyed = toolCapable
	}

	sort.SliceStable(keyed, func(i, j int) bool { return keyed[i].Preferred < keyed[j].Preferred })

	var out []provider.ModelCandidate
	for _, in := range keyed {
		out = append(out, candidatesForIntegration(in)...)
	}
	return out, nil
}

func candidatesForIntegration(in ProviderIntegration) []provider.ModelCandidate {
	out := make([]provider.ModelCandidate, 0, 1+len(in.FallbackModels))
	if in.DefaultModel != "" {
		out = append(out, provider.ModelCandidate{Provider: in.Name, Model: in.DefaultModel})
	}
	for _, m := range in.FallbackModels {
		out = append(out, provider.ModelCandidate{Provider: in.Name, Model: m})
	}
	return out
}
