package engine

import (
	"context"

	"github.com/nova-run/orchestrator/internal/constraints"
	"github.com/nova-run/orchestrator/pkg/models"
)

// runConstraintCorrection implements spec §4.2.7: if output constraints
// are active and the reply violates them, run exactly one correction
// pass on the same provider/model that produced the reply.
func (e *Engine) runConstraintCorrection(ctx context.Context, st *runState) (enginePhase, error) {
	if !st.constraints.Active() || constraints.Validate(st.constraints, st.reply) {
		return phaseNormalize, nil
	}

	backend := e.Registry.Backend(st.usedProvider)
	if backend == nil {
		return phaseNormalize, nil
	}

	messages := append([]models.CompletionMessage{}, st.messages...)
	messages = append(messages,
		models.CompletionMessage{Role: "assistant", Content: st.reply},
		models.CompletionMessage{Role: "user", Content: "That reply did not follow the strict output requirements above. Rewrite it so it does, with nothing else added."},
	)

	req := models.CompletionRequest{
		Model:     st.usedModel,
		System:    st.systemPrompt,
		Messages:  messages,
		MaxTokens: adaptiveMaxCompletionTokens(st.turn.Text, st.constraints),
	}

	completion, err := backend.Create(ctx, req)
	if err != nil || completion.Text == "" {
		return phaseNormalize, nil
	}

	st.reply = completion.Text
	st.completion = completion
	st.constraintCorrectionRan = true
	return phaseNormalize, nil
}
