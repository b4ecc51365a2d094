package bus

// Key prefixes in the key-value store.
const (
	bufferKeyPrefix   = "msgbuf:"
	cooldownKeyPrefix = "cooldown:"
)

// BufferKey returns the list key holding pending fragments for a conversation.
func BufferKey(conversationID string) string {
	return bufferKeyPrefix + conversationID
}

// CooldownKey returns the flag key that pauses automation for a conversation.
func CooldownKey(conversationID string) string {
	return cooldownKeyPrefix + conversationID
}

// InboundMessage is one fragment received from the chat transport.
type InboundMessage struct {
	Channel        string            `json:"channel"`
	ConversationID string            `json:"conversation_id"` // normalized sender phone number
	MessageID      string            `json:"message_id,omitempty"`
	Content        string            `json:"content"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// BufferEntry is the payload stored per fragment. "mid" is the field name the
// existing webhook writers use, so it is kept on the wire.
type BufferEntry struct {
	Text      string `json:"text"`
	MessageID string `json:"mid,omitempty"`
}
