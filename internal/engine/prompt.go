package engine

import (
	"context"
	"sync"

	"github.com/nova-run/orchestrator/internal/promptbudget"
	"github.com/nova-run/orchestrator/internal/shortterm"
	"github.com/nova-run/orchestrator/internal/turnpolicy"
	"github.com/nova-run/orchestrator/pkg/models"
)

// runPromptAssembly implements spec §4.2.3: appends each system-prompt
// section subject to a dynamic token budget, shrinking the budget on
// fast-lane and strict turns, then runs the three enrichment tasks in
// parallel. No conversation history is loaded or budgeted: st.messages
// holds only the current user utterance, and no later phase adds history.
func (e *Engine) runPromptAssembly(ctx context.Context, st *runState) (enginePhase, error) {
	maxPrompt := e.Config.MaxPromptTokens
	if st.policy.FastLaneSimpleChat || st.constraints.Active() {
		maxPrompt /= 2
	}
	remaining := maxPrompt

	var prompt string
	appendSection := func(title, body string) {
		if body == "" {
			return
		}
		res := promptbudget.AppendBudgetedSection(prompt, title, body, remaining, remaining)
		if res.Included {
			prompt = res.Prompt
			remaining -= promptbudget.EstimateTokens(title) + promptbudget.EstimateTokens(body)
		}
	}

	if e.Persona != nil {
		if base, err := e.Persona.BasePersona(ctx, st.turn); err == nil {
			appendSection("Persona", base)
		}
	}
	appendSection("Runtime persona overlay", renderPersonaOverlay(st.turn.Persona))

	if e.Preferences != nil {
		if prefs, err := e.Preferences.TopPreferences(ctx, st.turn.UserContextID); err == nil {
			appendSection("User preferences", prefs)
		}
		e.Preferences.CaptureFromUtterance(ctx, st.turn.UserContextID, st.turn.Text)
	}

	if e.Identity != nil {
		if signals, err := e.Identity.Derive(ctx, st.turn); err == nil {
			appendSection("Identity intelligence", signals)
		}
	}

	if e.Personality != nil {
		if calibration, err := e.Personality.Calibrate(ctx, st.turn.UserContextID); err == nil {
			appendSection("Personality calibration", calibration)
		}
	}

	if e.ShortTerm != nil {
		normalized := turnpolicy.Normalize(st.turn.Text)
		if shortterm.IsNonCriticalFollowUp(normalized) {
			if stc, ok := e.ShortTerm.Get(st.turn.UserContextID, st.turn.ConversationID, models.DomainAssistant); ok {
				appendSection("Recent context", stc.LastAssistantExcerpt)
			}
		}
	}

	appendSection("Strict output requirements", st.constraints.Instructions)

	e.runEnrichment(ctx, st, func(title, body string) { appendSection(title, body) })

	st.systemPrompt = prompt
	st.messages = []models.CompletionMessage{{Role: "user", Content: st.turn.Text}}
	return phaseProviderCall, nil
}

func renderPersonaOverlay(p models.PersonaOverrides) string {
	var out string
	add := func(label, v string) {
		if v == "" {
			return
		}
		if out != "" {
			out += "\n"
		}
		out += label + ": " + v
	}
	add("Tone", p.Tone)
	add("Assistant name", p.AssistantName)
	add("Communication style", p.CommunicationStyle)
	add("Custom instructions", p.CustomInstructions)
	return out
}

// runEnrichment fans out up to three independent tasks, each wrapped in
// a hard timeout, per §4.2.3's "parallel enrichment" paragraph. Failures
// are isolated: one task's error or timeout never blocks the others or
// aborts prompt assembly.
func (e *Engine) runEnrichment(ctx context.Context, st *runState, appendSection func(title, body string)) {
	type result struct {
		title, body string
	}
	var wg sync.WaitGroup
	results := make(chan result, 3)

	ectx, cancel := context.WithTimeout(ctx, e.Config.EnrichmentTimeout)
	defer cancel()

	if e.WebSearch != nil && e.WebSearch.MatchesPreloadIntent(st.turn.Text) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if body, err := e.WebSearch.Search(ectx, st.turn.Text); err == nil && body != "" {
				st.webSearchUsed = true
				results <- result{"Live web search", wrapExternalContent(body)}
			}
		}()
	}

	if e.LinkFetch != nil && e.LinkFetch.HasURL(st.turn.Text) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if body, err := e.LinkFetch.Fetch(ectx, st.turn.Text); err == nil && body != "" {
				st.linkContextUsed = true
				results <- result{"Link context", wrapExternalContent(body)}
			}
		}()
	}

	if e.MemoryRecall != nil && e.MemoryRecall.Qualifies(st.turn) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if body, err := e.MemoryRecall.Recall(ectx, st.turn.UserContextID); err == nil && body != "" {
				st.memoryRecallUsed = true
				results <- result{"Memory recall", body}
			}
		}()
	}

	wg.Wait()
	close(results)
	for r := range results {
		appendSection(r.title, r.body)
	}
}

// wrapExternalContent wraps fetched/searched content in an envelope so
// the model never confuses it with an instruction from the operator —
// suspicious content (prompt-injection attempts embedded in a page) is
// still included, just clearly scoped as untrusted external text.
func wrapExternalContent(body string) string {
	return "<external_content untrusted=\"true\">\n" + body + "\n</external_content>"
}
