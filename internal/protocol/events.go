package protocol

import (
	"encoding/json"

	"github.com/peteat123/Peteat-sub001/internal/domain"
)

// Inbound event types.
const (
	TypeSendMessage = "send-message"
	TypeMarkRead    = "mark-read"
	TypePing        = "ping"
)

// Outbound event types.
const (
	TypeMessageSaved        = "message-saved"
	TypeReceiveMessage      = "receive-message"
	TypeConversationUpdated = "conversation-updated"
	TypeReadReceipt         = "read-receipt"
	TypeError               = "error"
	TypePong                = "pong"
	TypeSessionReplaced     = "session-replaced"
)

// Envelope for WS JSON messages
type Envelope struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"` // client correlation id, echoed on replies
	Payload json.RawMessage `json:"payload,omitempty"`
}

type SendMessage struct {
	Recipient   string   `json:"recipient"`
	Content     string   `json:"content,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
}

type MarkRead struct {
	MessageIDs []string `json:"messageIds"`
}

type MessageSaved struct {
	Message *domain.Message `json:"message"`
}

type ReceiveMessage struct {
	Message *domain.Message `json:"message"`
}

type ConversationUpdated struct {
	Conversation *domain.Conversation `json:"conversation"`
}

type ReadReceipt struct {
	MessageIDs []string `json:"messageIds"`
}

type Error struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Encode wraps payload in an envelope of type typ.
func Encode(typ, id string, payload any) ([]byte, error) {
	env := Envelope{Type: typ, ID: id}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Payload = b
	}
	return json.Marshal(env)
}

// MustEncode is Encode for payloads built from this package's own types.
func MustEncode(typ, id string, payload any) []byte {
	b, err := Encode(typ, id, payload)
	if err != nil {
		panic(err)
	}
	return b
}
