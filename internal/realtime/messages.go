package realtime

import "encoding/json"

// MessageType discriminates envelopes on the session channel.
type MessageType string

const (
	MessageTypeSessionState    MessageType = "session_state"
	MessageTypeCodeUpdate      MessageType = "code_update"
	MessageTypeChatMessage     MessageType = "chat_message"
	MessageTypeParticipantJoin MessageType = "participant_joined"
	MessageTypeParticipantLeft MessageType = "participant_left"
	MessageTypeAgentRequest    MessageType = "agent_request"
	MessageTypeAgentResponse   MessageType = "agent_response"
	MessageTypeError           MessageType = "error"
	MessageTypePing            MessageType = "ping"
	MessageTypePong            MessageType = "pong"
)

// Envelope is the wire frame: a type tag plus a type-specific payload.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Role is what a participant may do in the session.
type Role string

const (
	RoleHost     Role = "host"
	RoleCoAuthor Role = "co-author"
	RoleViewer   Role = "viewer"
)

// Participant is one person in the session. UserID is empty for guests, who are identified by
// display name only.
type Participant struct {
	UserID      string `json:"user_id,omitempty"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role"`
}

// SessionState is the server's full picture of the session, sent on join and on membership
// changes.
type SessionState struct {
	SessionID    string        `json:"session_id"`
	Code         string        `json:"code"`
	StrudelID    string        `json:"strudel_id,omitempty"`
	StrudelTitle string        `json:"strudel_title,omitempty"`
	Participants []Participant `json:"participants,omitempty"`
	Role         Role          `json:"role,omitempty"`
}

// CodeUpdate carries a whole-buffer snapshot, both directions.
type CodeUpdate struct {
	Code   string `json:"code"`
	Sender string `json:"sender,omitempty"`
}

type ChatMessage struct {
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	SentAtMs  int64  `json:"sent_at_ms,omitempty"`
	IsSystem  bool   `json:"is_system,omitempty"`
	SenderID  string `json:"sender_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

// AgentRequest asks the server-side agent for an AI edit of the session's code.
type AgentRequest struct {
	RequestID           string            `json:"request_id"`
	Query               string            `json:"query"`
	Code                string            `json:"code"`
	ConversationHistory []HistoryMessage  `json:"conversation_history,omitempty"`
	Provider            string            `json:"provider,omitempty"`
	ProviderAPIKey      string            `json:"provider_api_key,omitempty"`
	Options             map[string]string `json:"options,omitempty"`
}

// HistoryMessage mirrors the draft store's conversation entries on the wire.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type AgentResponse struct {
	RequestID string `json:"request_id"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

type ErrorMessage struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}
