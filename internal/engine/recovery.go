package engine

import (
	"context"
	"regexp"
)

var noWebAccessClaimRe = regexp.MustCompile(`(?i)\b(i don'?t have (?:live |real-?time )?(?:access to the )?(?:internet|web)|i (?:can'?t|cannot) (?:browse|access) the (?:internet|web)|i do not have (?:live )?web access)\b`)

// runRefusalRecovery implements spec §4.2.6: if the reply claims no live
// web access but the execution policy says web search is actually
// available, run one search and append a correction instead of letting
// the false refusal stand.
func (e *Engine) runRefusalRecovery(ctx context.Context, st *runState) (enginePhase, error) {
	if st.reply == "" || !st.execPolicy.CanRunWebSearch || e.WebSearch == nil {
		return phaseConstraintCorrection, nil
	}
	if !noWebAccessClaimRe.MatchString(st.reply) {
		return phaseConstraintCorrection, nil
	}

	results, err := e.WebSearch.Search(ctx, st.turn.Text)
	if err != nil || results == "" {
		return phaseConstraintCorrection, nil
	}
	st.webSearchUsed = true

	correction := "\n\nCorrection: I do have live web access. Current results:\n" + results
	st.reply += correction
	if e.Broadcaster != nil && st.streamID != "" {
		e.Broadcaster.BroadcastAssistantStreamDelta(st.turn.SessionKey, st.streamID, correction)
	}

	return phaseConstraintCorrection, nil
}
