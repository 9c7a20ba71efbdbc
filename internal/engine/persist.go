package engine

import (
	"context"
	"time"

	"github.com/nova-run/orchestrator/internal/devlog"
	"github.com/nova-run/orchestrator/pkg/models"
)

// runPersist implements spec §4.2.9: append the turn to the transcript,
// emit the dev-log record, and report cost/usage to the broadcaster.
// This is the pipeline's terminal phase.
func (e *Engine) runPersist(ctx context.Context, st *runState) (enginePhase, error) {
	now := e.Now()

	if e.Sessions != nil && st.turn.SessionKey != "" {
		_ = e.Sessions.Append(ctx, st.turn.SessionKey, models.TranscriptTurn{
			Role:      models.TranscriptRoleUser,
			Text:      st.turn.Text,
			Timestamp: st.turn.ReceivedAt,
		})
		_ = e.Sessions.Append(ctx, st.turn.SessionKey, models.TranscriptTurn{
			Role:             models.TranscriptRoleAssistant,
			Text:             st.normalized,
			Timestamp:        now,
			Provider:         st.usedProvider,
			Model:            st.usedModel,
			PromptTokens:     st.completion.Usage.PromptTokens,
			CompletionTokens: st.completion.Usage.CompletionTokens,
		})
	}

	if e.Broadcaster != nil {
		e.Broadcaster.BroadcastMessage(st.turn.SessionKey, string(models.TranscriptRoleAssistant), st.normalized)
	}

	if e.DevLog != nil {
		e.logDevLogEvent(st, now)
	}

	return phaseDone, nil
}

func (e *Engine) logDevLogEvent(st *runState, now time.Time) {
	mode := e.DevLogMode
	if mode == "" {
		mode = devlog.RedactTruncate
	}
	userPlain, userHash := devlog.Redact(mode, st.turn.Text)
	replyPlain, replyHash := devlog.Redact(mode, st.normalized)

	latencyMs := now.Sub(st.startedAt).Milliseconds()
	score, tags := devlog.Score(devlog.QualityScoreInput{
		EmptyReply:       st.normalized == "",
		LatencyMs:        latencyMs,
		SlowThresholdMs:  e.Config.SlowTurnThresholdMs,
		RuntimeError:     st.err != nil,
		DegradedFallback: st.fallbackStage != "",
		ConstraintPass:   st.constraintCorrectionRan,
	})
	if st.policy.WeatherIntent && st.fastPathUsed {
		tags = append(tags, devlog.TagHotPathWeather)
	}
	if st.policy.CryptoIntent && st.fastPathUsed {
		tags = append(tags, devlog.TagHotPathCrypto)
	}
	if st.toolLoopSnapshot != nil {
		if st.toolLoopSnapshot.BudgetExhausted {
			tags = append(tags, devlog.TagBudgetExhausted)
		}
		if st.toolLoopSnapshot.StepTimeouts > 0 {
			tags = append(tags, devlog.TagStepTimeout)
		}
		if st.toolLoopSnapshot.ToolExecutionTimeouts > 0 {
			tags = append(tags, devlog.TagToolExecTimeout)
		}
		if st.toolLoopSnapshot.CallsCapped > 0 {
			tags = append(tags, devlog.TagCallCapped)
		}
	}

	e.DevLog.Log(&devlog.Event{
		Timestamp:     now,
		SessionKey:    st.turn.SessionKey,
		UserContextID: st.turn.UserContextID,
		UserText:      userPlain,
		UserTextHash:  userHash,
		ReplyText:     replyPlain,
		ReplyTextHash: replyHash,
		LatencyMs:     latencyMs,
		Provider:      st.usedProvider,
		Model:         st.usedModel,
		QualityScore:  score,
		Tags:          tags,
	})
}
