package engine

import (
	"context"

	"github.com/nova-run/orchestrator/internal/fastpath"
	"github.com/nova-run/orchestrator/pkg/models"
)

// runFastPath implements spec §4.2.2. A fast-path reply bypasses the LLM
// entirely, so its only remaining phase is persistence. A weather request
// with no location instead arms a pending location confirmation and
// replies with a question asking for one, also going straight to
// persistence (the confirmation is resolved by the dispatcher on the next
// inbound turn, §4.1 step 6).
func (e *Engine) runFastPath(ctx context.Context, st *runState) (enginePhase, error) {
	if st.constraints.Active() {
		return phasePromptAssembly, nil
	}

	if weather := fastpath.DetectWeather(st.turn.Text); weather.Matched {
		if weather.Location == "" {
			if e.Pending != nil {
				e.Pending.Set(st.turn.SessionKey, models.PendingConfirmation{
					Kind:   models.ConfirmationWeather,
					Prompt: "Which location?",
				})
			}
			st.route = "fast_path_weather_confirm"
			st.reply = "Sure — which location would you like the weather for?"
			st.normalized = st.reply
			return phasePersist, nil
		}
		if e.FastWeather != nil {
			reply, err := e.FastWeather.Lookup(ctx, weather.Location)
			if err == nil && reply != "" {
				st.route = "fast_path_weather"
				st.fastPathUsed = true
				st.reply = reply
				st.normalized = reply
				return phasePersist, nil
			}
		}
	}

	if fastpath.DetectCrypto(st.turn.Text) && e.FastCrypto != nil {
		reply, err := e.FastCrypto.Report(ctx, st.turn.UserContextID)
		if err == nil && reply != "" {
			st.route = "fast_path_crypto"
			st.fastPathUsed = true
			st.reply = reply
			st.normalized = reply
			return phasePersist, nil
		}
	}

	return phasePromptAssembly, nil
}
