// Package models contains the wire-level data shapes shared between the
// dispatcher, the chat execution engine, and their external collaborators.
package models

import "time"

// Source identifies which transport a turn arrived through.
type Source string

const (
	SourceHUD       Source = "hud"
	SourceVoice     Source = "voice"
	SourceTelegram  Source = "telegram"
	SourceDiscord   Source = "discord"
	SourceNovaChat  Source = "novachat"
)

// PersonaOverrides carries per-turn runtime persona adjustments. Any zero
// value means "use the configured default for this field".
type PersonaOverrides struct {
	Tone                string `json:"tone,omitempty"`
	CommunicationStyle  string `json:"communication_style,omitempty"`
	AssistantName       string `json:"assistant_name,omitempty"`
	CustomInstructions  string `json:"custom_instructions,omitempty"`
	Proactivity         string `json:"proactivity,omitempty"`
	Humor               string `json:"humor,omitempty"`
	Risk                string `json:"risk,omitempty"`
	Structure           string `json:"structure,omitempty"`
	Challenge           string `json:"challenge,omitempty"`
}

// Turn is the orchestrator's unit of work: one user utterance awaiting
// exactly one assistant reply.
type Turn struct {
	Text                string           `json:"text"`
	Source              Source           `json:"source"`
	SenderID            string           `json:"sender_id"`
	UserContextID        string          `json:"user_context_id"`
	SessionKey          string           `json:"session_key"`
	ConversationID      string           `json:"conversation_id,omitempty"`
	InboundMessageID    string           `json:"inbound_message_id,omitempty"`
	Persona             PersonaOverrides `json:"persona,omitempty"`
	HUDOpToken          string           `json:"hud_op_token,omitempty"`
	ProviderAccessToken string           `json:"provider_access_token,omitempty"`
	ReceivedAt          time.Time        `json:"received_at"`
}

// TranscriptRole is the author of one transcript turn.
type TranscriptRole string

const (
	TranscriptRoleUser      TranscriptRole = "user"
	TranscriptRoleAssistant TranscriptRole = "assistant"
)

// NLPDiagnostics captures optional preprocessor output attached to a
// transcript turn. The NLP preprocessor itself is an external collaborator;
// this is only the shape the engine threads through.
type NLPDiagnostics struct {
	Intent     string         `json:"intent,omitempty"`
	Entities   map[string]any `json:"entities,omitempty"`
	Confidence float64        `json:"confidence,omitempty"`
}

// TranscriptTurn is one appended entry in a session's transcript.
type TranscriptTurn struct {
	Role             TranscriptRole  `json:"role"`
	Text             string          `json:"text"`
	Timestamp        time.Time       `json:"timestamp"`
	Provider         string          `json:"provider,omitempty"`
	Model            string          `json:"model,omitempty"`
	PromptTokens     int             `json:"prompt_tokens,omitempty"`
	CompletionTokens int             `json:"completion_tokens,omitempty"`
	NLP              *NLPDiagnostics `json:"nlp,omitempty"`
}

// SessionContext pairs a session key with that session's transcript,
// most recent first.
type SessionContext struct {
	SessionKey string           `json:"session_key"`
	Transcript []TranscriptTurn `json:"transcript"`
}
