package engine

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nova-run/orchestrator/internal/pending"
	"github.com/nova-run/orchestrator/internal/provider"
	"github.com/nova-run/orchestrator/internal/toolloop"
	"github.com/nova-run/orchestrator/pkg/models"
)

// stubProvider is a controllable provider.ChatProvider for engine tests.
type stubProvider struct {
	name          string
	supportsTools bool

	createFunc func(ctx context.Context, req models.CompletionRequest) (models.Completion, error)
	streamFunc func(ctx context.Context, req models.CompletionRequest, onDelta func(provider.StreamDelta) error) error

	createCalls int
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Create(ctx context.Context, req models.CompletionRequest) (models.Completion, error) {
	p.createCalls++
	if p.createFunc != nil {
		return p.createFunc(ctx, req)
	}
	return models.Completion{Text: "default reply"}, nil
}

func (p *stubProvider) Stream(ctx context.Context, req models.CompletionRequest, onDelta func(provider.StreamDelta) error) error {
	if p.streamFunc != nil {
		return p.streamFunc(ctx, req, onDelta)
	}
	if err := onDelta(provider.StreamDelta{Text: "streamed reply"}); err != nil {
		return err
	}
	return onDelta(provider.StreamDelta{Done: true})
}

func (p *stubProvider) SupportsTools() bool { return p.supportsTools }

func (p *stubProvider) EstimateCost(model string, usage models.CompletionUsage) float64 { return 0 }

func newTestEngine(backends ...provider.ChatProvider) *Engine {
	integrations := make([]ProviderIntegration, 0, len(backends))
	for i, b := range backends {
		sp := b.(*stubProvider)
		integrations = append(integrations, ProviderIntegration{
			Name: sp.name, Keyed: true, Enabled: true, Preferred: i, DefaultModel: "model-1",
		})
	}
	e := New(provider.NewRegistry(backends...), integrations)
	e.Now = func() time.Time { return time.Unix(1700000000, 0) }
	return e
}

func baseTurn(text string) models.Turn {
	return models.Turn{
		Text:          text,
		SessionKey:    "session-1",
		UserContextID: "user-1",
		ReceivedAt:    time.Unix(1699999990, 0),
	}
}

func TestRunNoProviderConnected(t *testing.T) {
	e := New(provider.NewRegistry(), nil)
	e.Now = time.Now

	summary, err := e.Run(context.Background(), baseTurn("hello there"))
	if !errors.Is(err, ErrNoProviderConnected) {
		t.Fatalf("expected ErrNoProviderConnected, got %v", err)
	}
	if summary == nil || summary.OK {
		t.Fatalf("expected a non-OK summary, got %+v", summary)
	}
}

func TestRunStreamingDirectHappyPath(t *testing.T) {
	backend := &stubProvider{name: "anthropic"}
	e := newTestEngine(backend)

	summary, err := e.Run(context.Background(), baseTurn("tell me a short joke"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !summary.OK {
		t.Fatalf("expected OK summary, got %+v", summary)
	}
	if summary.Reply != "streamed reply" {
		t.Fatalf("expected streamed reply text, got %q", summary.Reply)
	}
	if summary.Provider != "anthropic" {
		t.Fatalf("expected anthropic provider, got %q", summary.Provider)
	}
}

func TestRunFastPathWeatherWithLocation(t *testing.T) {
	backend := &stubProvider{name: "anthropic"}
	e := newTestEngine(backend)
	e.FastWeather = fastWeatherFunc(func(ctx context.Context, location string) (string, error) {
		if location != "Boston" {
			t.Fatalf("expected Boston, got %q", location)
		}
		return "Sunny and 72F in Boston.", nil
	})

	summary, err := e.Run(context.Background(), baseTurn("what's the weather in Boston"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Reply != "Sunny and 72F in Boston." {
		t.Fatalf("expected fast-path weather reply, got %q", summary.Reply)
	}
	if backend.createCalls != 0 {
		t.Fatalf("expected the provider to never be called on a fast-path hit, got %d calls", backend.createCalls)
	}
}

func TestRunFastPathWeatherWithoutLocationArmsPending(t *testing.T) {
	backend := &stubProvider{name: "anthropic"}
	e := newTestEngine(backend)
	e.Pending = pending.New(0)

	summary, err := e.Run(context.Background(), baseTurn("what's the weather like"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Route != "fast_path_weather_confirm" {
		t.Fatalf("expected weather confirm route, got %q", summary.Route)
	}
	pc, ok := e.Pending.Get("session-1")
	if !ok || pc.Kind != models.ConfirmationWeather {
		t.Fatalf("expected a pending weather confirmation to be armed, got %+v ok=%v", pc, ok)
	}
}

func TestRunFastPathCrypto(t *testing.T) {
	backend := &stubProvider{name: "anthropic"}
	e := newTestEngine(backend)
	e.FastCrypto = fastCryptoFunc(func(ctx context.Context, userContextID string) (string, error) {
		return "Your BTC is up 3% today.", nil
	})

	summary, err := e.Run(context.Background(), baseTurn("give me my crypto portfolio report"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Reply != "Your BTC is up 3% today." {
		t.Fatalf("expected crypto fast-path reply, got %q", summary.Reply)
	}
}

func TestRunConstraintOneWordUsesNonStreamingDirect(t *testing.T) {
	backend := &stubProvider{
		name: "anthropic",
		createFunc: func(ctx context.Context, req models.CompletionRequest) (models.Completion, error) {
			return models.Completion{Text: "Yes"}, nil
		},
	}
	e := newTestEngine(backend)

	summary, err := e.Run(context.Background(), baseTurn("answer in one word: are you there"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Reply != "Yes" {
		t.Fatalf("expected the non-streaming completion's text, got %q", summary.Reply)
	}
	if backend.createCalls != 1 {
		t.Fatalf("expected exactly one Create call, got %d", backend.createCalls)
	}
}

func TestRunConstraintCorrectionPassRewritesInvalidReply(t *testing.T) {
	calls := 0
	backend := &stubProvider{
		name: "anthropic",
		createFunc: func(ctx context.Context, req models.CompletionRequest) (models.Completion, error) {
			calls++
			if calls == 1 {
				return models.Completion{Text: "Sure, happy to help with that!"}, nil
			}
			return models.Completion{Text: "Acknowledged"}, nil
		},
	}
	e := newTestEngine(backend)

	summary, err := e.Run(context.Background(), baseTurn("answer in one word: are you there"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected a correction pass to run a second Create call, got %d calls", calls)
	}
	if summary.Reply != "Acknowledged" {
		t.Fatalf("expected the corrected one-word reply, got %q", summary.Reply)
	}
}

func TestRunEmptyReplyFallsBackDeterministically(t *testing.T) {
	backend := &stubProvider{
		name: "anthropic",
		streamFunc: func(ctx context.Context, req models.CompletionRequest, onDelta func(provider.StreamDelta) error) error {
			return onDelta(provider.StreamDelta{Done: true})
		},
	}
	e := newTestEngine(backend)

	summary, err := e.Run(context.Background(), baseTurn("ping"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Reply == "" {
		t.Fatalf("expected a non-empty deterministic fallback reply")
	}
	if summary.FallbackStage != "deterministic_fallback" {
		t.Fatalf("expected deterministic_fallback stage, got %q", summary.FallbackStage)
	}
}

func TestRunToolLoopHappyPath(t *testing.T) {
	step := 0
	backend := &stubProvider{
		name:          "openai",
		supportsTools: true,
		createFunc: func(ctx context.Context, req models.CompletionRequest) (models.Completion, error) {
			step++
			if step == 1 {
				return models.Completion{
					ToolCalls: []models.ToolCall{{ID: "call-1", Name: "lookup", Input: json.RawMessage(`{"q":"go"}`)}},
				}, nil
			}
			return models.Completion{Text: "Here's your answer."}, nil
		},
	}
	e := newTestEngine(backend)
	e.ToolRuntime = &stubToolRuntime{
		tools: []models.ToolDefinition{{Name: "lookup", InputSchema: json.RawMessage(`{"type":"object"}`)}},
		execute: func(ctx context.Context, call models.ToolCall) (models.ToolResult, error) {
			return models.ToolResult{ToolCallID: call.ID, Content: "42"}, nil
		},
	}

	summary, err := e.Run(context.Background(), baseTurn("run a search for go tutorials please"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Reply != "Here's your answer." {
		t.Fatalf("expected the post-tool-call reply, got %q", summary.Reply)
	}
	if len(summary.ToolCalls) != 1 || summary.ToolCalls[0].Status != "ok" {
		t.Fatalf("expected one successful tool observation, got %+v", summary.ToolCalls)
	}
	if summary.ToolLoop == nil || summary.ToolLoop.TotalToolCalls != 1 {
		t.Fatalf("expected a tool loop snapshot with one call, got %+v", summary.ToolLoop)
	}
}

func TestRunToolLoopBudgetExhaustionTriggersRecovery(t *testing.T) {
	backend := &stubProvider{
		name:          "openai",
		supportsTools: true,
		createFunc: func(ctx context.Context, req models.CompletionRequest) (models.Completion, error) {
			return models.Completion{Text: "Recovered answer."}, nil
		},
	}
	e := newTestEngine(backend)
	e.ToolRuntime = &stubToolRuntime{tools: []models.ToolDefinition{{Name: "lookup"}}}
	// A positive but vanishingly small budget is exhausted by the time the
	// loop's first IsExhausted check runs, without tripping withDefaults'
	// <=0 replacement.
	e.Config.ToolLoopMaxDuration = time.Nanosecond

	summary, err := e.Run(context.Background(), baseTurn("run a search for go tutorials please"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Reply != "Recovered answer." {
		t.Fatalf("expected the recovery completion's reply, got %q", summary.Reply)
	}
	if summary.ToolLoop == nil || !summary.ToolLoop.BudgetExhausted {
		t.Fatalf("expected BudgetExhausted to be recorded, got %+v", summary.ToolLoop)
	}
}

func TestRunToolLoopSwitchesCandidateOnFirstStepTimeout(t *testing.T) {
	primary := &stubProvider{
		name:          "openai",
		supportsTools: true,
		createFunc: func(ctx context.Context, req models.CompletionRequest) (models.Completion, error) {
			return models.Completion{}, errors.New("context deadline exceeded")
		},
	}
	secondary := &stubProvider{
		name:          "anthropic",
		supportsTools: true,
		createFunc: func(ctx context.Context, req models.CompletionRequest) (models.Completion, error) {
			return models.Completion{Text: "From the fallback provider."}, nil
		},
	}
	e := newTestEngine(primary, secondary)
	e.ToolRuntime = &stubToolRuntime{tools: []models.ToolDefinition{{Name: "lookup"}}}

	summary, err := e.Run(context.Background(), baseTurn("run a search for go tutorials please"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Reply != "From the fallback provider." {
		t.Fatalf("expected the secondary candidate's reply, got %q", summary.Reply)
	}
	if len(summary.RetryLadder) != 1 || summary.RetryLadder[0].Reason != "transport_timeout" {
		t.Fatalf("expected one retry ladder entry for the timeout switch, got %+v", summary.RetryLadder)
	}
}

func TestRunToolLoopSensitiveToolRequiresHudToken(t *testing.T) {
	step := 0
	backend := &stubProvider{
		name:          "openai",
		supportsTools: true,
		createFunc: func(ctx context.Context, req models.CompletionRequest) (models.Completion, error) {
			step++
			if step == 1 {
				return models.Completion{
					ToolCalls: []models.ToolCall{{ID: "call-1", Name: "gmail_forward_message", Input: json.RawMessage(`{}`)}},
				}, nil
			}
			return models.Completion{Text: "Done."}, nil
		},
	}
	e := newTestEngine(backend)
	e.ToolRuntime = &stubToolRuntime{
		tools: []models.ToolDefinition{{Name: "gmail_forward_message"}},
		execute: func(ctx context.Context, call models.ToolCall) (models.ToolResult, error) {
			t.Fatalf("sensitive tool should never execute without a valid HUD token")
			return models.ToolResult{}, nil
		},
	}
	// No HudTokens issuer configured, so consumeHudToken always fails closed.

	summary, err := e.Run(context.Background(), baseTurn("run a search for go tutorials please"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(summary.ToolCalls) != 1 || summary.ToolCalls[0].Status != "error" {
		t.Fatalf("expected the sensitive call to be recorded as an error, got %+v", summary.ToolCalls)
	}
}

func TestRunToolLoopForcedFallbackShortCircuits(t *testing.T) {
	step := 0
	backend := &stubProvider{
		name:          "openai",
		supportsTools: true,
		createFunc: func(ctx context.Context, req models.CompletionRequest) (models.Completion, error) {
			step++
			if step == 1 {
				return models.Completion{
					ToolCalls: []models.ToolCall{{ID: "call-1", Name: "web_search", Input: json.RawMessage(`{"q":"go"}`)}},
				}, nil
			}
			t.Fatalf("forced fallback should exit the loop before asking the model again")
			return models.Completion{}, nil
		},
	}
	e := newTestEngine(backend)
	e.ToolRuntime = &stubToolRuntime{
		tools: []models.ToolDefinition{{Name: "web_search"}},
		execute: func(ctx context.Context, call models.ToolCall) (models.ToolResult, error) {
			return models.ToolResult{}, errors.New("brave api key is missing")
		},
	}

	summary, err := e.Run(context.Background(), baseTurn("run a search for go tutorials please"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Reply != "I can't search the web right now — the search provider isn't configured." {
		t.Fatalf("expected the deterministic forced-fallback reply, got %q", summary.Reply)
	}
	if summary.ToolLoop == nil || summary.ToolLoop.ForcedFallback != string(toolloop.ForcedFallbackMissingAPIKey) {
		t.Fatalf("expected ForcedFallback to be recorded on the snapshot, got %+v", summary.ToolLoop)
	}
}

func TestRunRefusalRecoveryCorrectsFalseNoWebAccessClaim(t *testing.T) {
	backend := &stubProvider{
		name: "anthropic",
		streamFunc: func(ctx context.Context, req models.CompletionRequest, onDelta func(provider.StreamDelta) error) error {
			if err := onDelta(provider.StreamDelta{Text: "I don't have access to the internet."}); err != nil {
				return err
			}
			return onDelta(provider.StreamDelta{Done: true})
		},
	}
	e := newTestEngine(backend)
	// No tool-loop keywords in the turn text, so policy.ToolLoopCandidate
	// stays false and the provider call takes the streaming-direct path
	// even though a tool runtime and web searcher are both configured.
	e.ToolRuntime = &stubToolRuntime{}
	e.WebSearch = stubWebSearcher{
		matches: true,
		search:  func(ctx context.Context, query string) (string, error) { return "today's top headline", nil },
	}

	summary, err := e.Run(context.Background(), baseTurn("is the server still up"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !summary.WebSearchUsed {
		t.Fatalf("expected WebSearchUsed to be true after the refusal correction")
	}
	if !containsAll(summary.Reply, "don't have access", "Correction", "today's top headline") {
		t.Fatalf("expected a corrected reply, got %q", summary.Reply)
	}
}

func TestRunPersistsTranscriptAndDevLog(t *testing.T) {
	backend := &stubProvider{name: "anthropic"}
	e := newTestEngine(backend)
	sessions := newRecordingSessionStore()
	e.Sessions = sessions

	_, err := e.Run(context.Background(), baseTurn("tell me a short joke"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sessions.appended) != 2 {
		t.Fatalf("expected one user + one assistant transcript turn, got %d", len(sessions.appended))
	}
	if sessions.appended[0].Role != models.TranscriptRoleUser || sessions.appended[1].Role != models.TranscriptRoleAssistant {
		t.Fatalf("expected user-then-assistant ordering, got %+v", sessions.appended)
	}
}

// --- test collaborators ---

type fastWeatherFunc func(ctx context.Context, location string) (string, error)

func (f fastWeatherFunc) Lookup(ctx context.Context, location string) (string, error) {
	return f(ctx, location)
}

type fastCryptoFunc func(ctx context.Context, userContextID string) (string, error)

func (f fastCryptoFunc) Report(ctx context.Context, userContextID string) (string, error) {
	return f(ctx, userContextID)
}

type stubToolRuntime struct {
	tools   []models.ToolDefinition
	execute func(ctx context.Context, call models.ToolCall) (models.ToolResult, error)
}

func (s *stubToolRuntime) Tools() []models.ToolDefinition { return s.tools }

func (s *stubToolRuntime) Execute(ctx context.Context, call models.ToolCall) (models.ToolResult, error) {
	if s.execute != nil {
		return s.execute(ctx, call)
	}
	return models.ToolResult{ToolCallID: call.ID, Content: "ok"}, nil
}

type stubWebSearcher struct {
	matches bool
	search  func(ctx context.Context, query string) (string, error)
}

func (s stubWebSearcher) MatchesPreloadIntent(text string) bool { return s.matches }

func (s stubWebSearcher) Search(ctx context.Context, query string) (string, error) {
	return s.search(ctx, query)
}

type recordingSessionStore struct {
	appended []models.TranscriptTurn
}

func newRecordingSessionStore() *recordingSessionStore {
	return &recordingSessionStore{}
}

func (r *recordingSessionStore) Append(ctx context.Context, sessionKey string, turn models.TranscriptTurn) error {
	r.appended = append(r.appended, turn)
	return nil
}

func (r *recordingSessionStore) History(ctx context.Context, sessionKey string, limit int) ([]models.TranscriptTurn, error) {
	return r.appended, nil
}

func (r *recordingSessionStore) Close() error { return nil }

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
