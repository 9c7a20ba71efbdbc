// Package dispatch implements the turn dispatcher (spec §4.1): it
// classifies an inbound turn and hands it to exactly one downstream
// path. The dispatcher never calls a provider itself — chat completion
// only happens inside the chat execution engine, which is just one of
// its possible routes.
package dispatch

import (
	"context"
	"regexp"
	"strings"

	"github.com/nova-run/orchestrator/internal/dedupe"
	"github.com/nova-run/orchestrator/internal/fastpath"
	"github.com/nova-run/orchestrator/internal/pending"
	"github.com/nova-run/orchestrator/internal/shortterm"
	"github.com/nova-run/orchestrator/internal/turnpolicy"
	"github.com/nova-run/orchestrator/pkg/models"
)

// Route identifies which branch handled a turn, mirroring
// RunSummary.Route.
type Route string

const (
	RouteShutdown         Route = "shutdown"
	RouteDuplicateDropped Route = "duplicate_dropped"
	RouteMemoryUpdate     Route = "memory_update"
	RouteSkillPreference  Route = "skill_preference"
	RouteMissionCancel    Route = "mission_cancel"
	RouteMissionRefine    Route = "mission_refine"
	RouteWeatherConfirm   Route = "weather_confirm"
	RouteMissionConfirm   Route = "mission_confirm"
	RouteWorkflowBuild    Route = "workflow_build"
	RouteWorkflowConfirm  Route = "workflow_confirm"
	RouteSpotify          Route = "spotify"
	RouteChatEngine       Route = "chat_engine"
)

var shutdownPhrases = map[string]bool{
	"nova shutdown": true, "nova shut down": true, "shutdown nova": true,
}

var (
	memoryUpdateRe    = regexp.MustCompile(`(?i)^update your memory\s*[:\-]?\s*(.+)$`)
	skillPreferenceRe = regexp.MustCompile(`(?i)^for (\w+)[, ]+(prefer|always|never)\s+(.+)$`)
	workflowBuildRe   = regexp.MustCompile(`(?i)\b(build|create|set up)\s+(a\s+)?(workflow|automation|mission)\b`)
	workflowConfirmRe = regexp.MustCompile(`(?i)\b(workflow|automation|mission)\b.*\b(confirm|go ahead|do it|yes)\b`)
	spotifyKeywordRe  = regexp.MustCompile(`(?i)\b(spotify|play\s+music|skip\s+track|pause\s+music)\b`)
	spotifyPlayRe     = regexp.MustCompile(`(?i)^play\s+(.+?)(?:\s+by\s+(.+))?$`)
	spotifyExcludeRe  = regexp.MustCompile(`(?i)^play\s+a\s+(game|video|role)\b`)
	confirmYesRe      = regexp.MustCompile(`(?i)^(yes|yeah|yep|sure|ok|okay)\b`)
)

// Handlers are the sub-handlers the dispatcher delegates to once it has
// classified a turn. Each is optional; a nil handler falls through to
// the next routing check as though that branch never matched, with three
// exceptions: an accepted pending weather confirmation with no
// WeatherConfirm, or an accepted pending mission with no WorkflowBuilder,
// still returns that route with an empty reply; and a nil ChatEngine
// makes the final fallthrough return an error.
type Handlers struct {
	MemoryUpdate    MemoryUpdateHandler
	SkillPreference SkillPreferenceHandler
	WorkflowBuilder WorkflowBuilder
	WeatherConfirm  WeatherConfirmHandler
	Spotify         SpotifyHandler
	ChatEngine      ChatEngine
}

// MemoryUpdateHandler upserts a parsed fact into the user's persisted
// memory and returns a confirmation reply.
type MemoryUpdateHandler interface {
	UpsertFact(ctx context.Context, userContextID, fact string) (reply string, err error)
}

// SkillPreferenceHandler applies a per-skill directive parsed from the
// turn text.
type SkillPreferenceHandler interface {
	ApplyDirective(ctx context.Context, userContextID, skill, directive string) (reply string, err error)
}

// WorkflowBuilder constructs and (on confirm) executes a workflow/mission
// from an assembled prompt.
type WorkflowBuilder interface {
	Build(ctx context.Context, prompt string) (reply string, err error)
	Confirm(ctx context.Context, prompt string) (reply string, err error)
}

// WeatherConfirmHandler runs the confirmed weather fast-path lookup once
// the user has accepted a suggested location.
type WeatherConfirmHandler interface {
	Lookup(ctx context.Context, location string) (reply string, err error)
}

// SpotifyHandler dispatches a recognized music-control intent.
type SpotifyHandler interface {
	Handle(ctx context.Context, text string) (reply string, err error)
}

// ChatEngine is the fallback path (spec §4.2) for anything the dispatcher
// doesn't recognize as a more specific intent.
type ChatEngine interface {
	Run(ctx context.Context, turn models.Turn) (*models.RunSummary, error)
}

// Dispatcher holds the stateful collaborators a turn's routing decision
// consults: the dedupe filter and the two TTL stores. It has no
// provider reference.
type Dispatcher struct {
	Dedupe    *dedupe.Filter
	Pending   *pending.Store
	ShortTerm *shortterm.Store
	Handlers  Handlers
}

// New builds a Dispatcher from its collaborators.
func New(dedupeFilter *dedupe.Filter, pendingStore *pending.Store, shortTermStore *shortterm.Store, handlers Handlers) *Dispatcher {
	return &Dispatcher{Dedupe: dedupeFilter, Pending: pendingStore, ShortTerm: shortTermStore, Handlers: handlers}
}

// Dispatch classifies turn and runs exactly one downstream path,
// returning a run summary whose Route field names the branch taken.
// Errors from sub-handlers propagate; the dispatcher never silently
// drops a turn.
func (d *Dispatcher) Dispatch(ctx context.Context, turn models.Turn) (*models.RunSummary, error) {
	normalized := turnpolicy.Normalize(turn.Text)

	// 1. Shutdown phrases.
	if shutdownPhrases[normalized] {
		return &models.RunSummary{Route: string(RouteShutdown), OK: true, Reply: "Shutting down now. If you need me again, just restart the system."}, nil
	}

	// 2. Duplicate inbound, with carve-outs.
	_, missionInProgress := d.Pending.Get(turn.SessionKey)
	carveOut := dedupe.Classify(normalized, missionInProgress)
	if carveOut == dedupe.CarveOutNone {
		key := dedupe.Key(string(turn.Source), turn.SenderID, turn.UserContextID, turn.SessionKey, normalized)
		if d.Dedupe.Check(key) {
			return &models.RunSummary{Route: string(RouteDuplicateDropped), OK: true, Reply: dedupe.SkippedReplyText}, nil
		}
	}

	// 3. Memory-update phrase.
	if m := memoryUpdateRe.FindStringSubmatch(turn.Text); m != nil && d.Handlers.MemoryUpdate != nil {
		reply, err := d.Handlers.MemoryUpdate.UpsertFact(ctx, turn.UserContextID, strings.TrimSpace(m[1]))
		return summaryOrErr(RouteMemoryUpdate, reply, err)
	}

	// 4. Skill-preference update.
	if m := skillPreferenceRe.FindStringSubmatch(turn.Text); m != nil && d.Handlers.SkillPreference != nil {
		directive := strings.TrimSpace(m[2] + " " + m[3])
		reply, err := d.Handlers.SkillPreference.ApplyDirective(ctx, turn.UserContextID, m[1], directive)
		return summaryOrErr(RouteSkillPreference, reply, err)
	}

	// 5. Mission short-term-context cancel / refine.
	missionCtx, hasMissionCtx := d.ShortTerm.Get(turn.UserContextID, turn.ConversationID, models.DomainMissionTask)
	if hasMissionCtx {
		if shortterm.IsCancel(normalized) {
			d.ShortTerm.Clear(turn.UserContextID, turn.ConversationID, models.DomainMissionTask)
			return &models.RunSummary{Route: string(RouteMissionCancel), OK: true, Reply: "Okay, dropped that."}, nil
		}
		if shortterm.IsNonCriticalFollowUp(normalized) {
			if _, hasPending := d.Pending.Get(turn.SessionKey); !hasPending {
				refined := strings.TrimSpace(missionCtx.LastUserExcerpt + " " + turn.Text)
				d.Pending.Set(turn.SessionKey, models.PendingConfirmation{
					Kind:   models.ConfirmationMission,
					Prompt: refined,
				})
				return &models.RunSummary{Route: string(RouteMissionRefine), OK: true, Reply: "Got it — want me to go ahead with: " + refined + "?"}, nil
			}
		}
	}

	// 6. Pending weather confirmation.
	if pc, ok := d.Pending.Get(turn.SessionKey); ok && pc.Kind == models.ConfirmationWeather {
		if confirmYesRe.MatchString(normalized) {
			d.Pending.Clear(turn.SessionKey)
			location := fastpath.ExtractConfirmedLocation(turn.Text)
			if location == "" {
				location = pc.SuggestedLocation
			}
			if d.Handlers.WeatherConfirm != nil {
				reply, err := d.Handlers.WeatherConfirm.Lookup(ctx, location)
				return summaryOrErr(RouteWeatherConfirm, reply, err)
			}
			return &models.RunSummary{Route: string(RouteWeatherConfirm), OK: true}, nil
		}
		// "no", or anything else — clear to avoid a yes/no trap and
		// continue routing this turn as a fresh one.
		d.Pending.Clear(turn.SessionKey)
	}

	// 7. Pending mission confirmation.
	if pc, ok := d.Pending.Get(turn.SessionKey); ok && pc.Kind == models.ConfirmationMission {
		switch {
		case normalized == "yes" || normalized == "yeah" || normalized == "yep" || normalized == "sure" || normalized == "ok" || normalized == "okay":
			d.Pending.Clear(turn.SessionKey)
			if d.Handlers.WorkflowBuilder != nil {
				reply, err := d.Handlers.WorkflowBuilder.Confirm(ctx, pc.Prompt)
				return summaryOrErr(RouteMissionConfirm, reply, err)
			}
			return &models.RunSummary{Route: string(RouteMissionConfirm), OK: true}, nil
		case normalized == "no" || normalized == "nope" || normalized == "nah":
			d.Pending.Clear(turn.SessionKey)
			return &models.RunSummary{Route: string(RouteMissionCancel), OK: true, Reply: "Okay, dropped that."}, nil
		case isMissionDetailFollowUp(normalized):
			merged := strings.TrimSpace(pc.Prompt + " " + turn.Text)
			d.Pending.Set(turn.SessionKey, models.PendingConfirmation{Kind: models.ConfirmationMission, Prompt: merged})
			return &models.RunSummary{Route: string(RouteMissionRefine), OK: true, Reply: "Updated — want me to go ahead with: " + merged + "?"}, nil
		}
	}

	// 8. Mission-creation request with concrete schedule details (a time
	// or channel) arms a pending confirmation instead of building
	// immediately — it's specific enough to actually schedule, so it
	// needs a yes/no round-trip before anything is committed.
	if workflowBuildRe.MatchString(normalized) && isMissionDetailFollowUp(normalized) {
		return d.armMissionConfirmation(turn)
	}

	// 9. Workflow-build intent: vague enough (no schedule specifics yet)
	// to hand straight to the builder rather than confirm first.
	if workflowBuildRe.MatchString(normalized) && d.Handlers.WorkflowBuilder != nil {
		reply, err := d.Handlers.WorkflowBuilder.Build(ctx, turn.Text)
		return summaryOrErr(RouteWorkflowBuild, reply, err)
	}

	// 10. Workflow-confirm intent: explicit in-message confirmation
	// language ("...go ahead and confirm it").
	if workflowConfirmRe.MatchString(normalized) {
		return d.armMissionConfirmation(turn)
	}

	// 11. Music/Spotify intent.
	if isSpotifyIntent(normalized) && d.Handlers.Spotify != nil {
		reply, err := d.Handlers.Spotify.Handle(ctx, turn.Text)
		return summaryOrErr(RouteSpotify, reply, err)
	}

	// 12. Fall through to the chat execution engine.
	if d.Handlers.ChatEngine == nil {
		return nil, errNoChatEngine
	}
	return d.Handlers.ChatEngine.Run(ctx, turn)
}

var detailFollowUpMarkers = []string{"channel", "time", "am", "pm", "daily", "weekly", "every"}

func isMissionDetailFollowUp(normalized string) bool {
	for _, m := range detailFollowUpMarkers {
		if strings.Contains(normalized, m) {
			return true
		}
	}
	return false
}

func isSpotifyIntent(normalized string) bool {
	if spotifyExcludeRe.MatchString(normalized) {
		return false
	}
	if spotifyKeywordRe.MatchString(normalized) {
		return true
	}
	return spotifyPlayRe.MatchString(normalized)
}

// armMissionConfirmation parks turn's text as a pending mission and asks
// the user to confirm it, rather than building it immediately.
func (d *Dispatcher) armMissionConfirmation(turn models.Turn) (*models.RunSummary, error) {
	d.Pending.Set(turn.SessionKey, models.PendingConfirmation{Kind: models.ConfirmationMission, Prompt: turn.Text})
	return &models.RunSummary{Route: string(RouteWorkflowConfirm), OK: true, Reply: "Want me to go ahead with: " + turn.Text + "?"}, nil
}

func summaryOrErr(route Route, reply string, err error) (*models.RunSummary, error) {
	if err != nil {
		return nil, err
	}
	return &models.RunSummary{Route: string(route), OK: true, Reply: reply}, nil
}

var errNoChatEngine = &dispatchError{"dispatch: no chat engine configured for fallthrough route"}

type dispatchError struct{ msg string }

func (e *dispatchError) Error() string { return e.msg }
