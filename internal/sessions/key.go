// Package sessions normalizes conversation ids and holds the blocked-number list.
//
// Conversation ids are the customer's phone number, digits only. Chat
// transports hand them over in several shapes:
//
//	558599999999
//	+55 (85) 9999-9999
//	558599999999@c.us
//	558599999999@s.whatsapp.net
//
// All of them normalize to the same id, so buffer and cooldown keys line up
// no matter which adapter wrote them.
package sessions

import (
	"errors"
	"strings"
)

// ErrEmptyConversationID is returned when an id has no digits.
var ErrEmptyConversationID = errors.New("sessions: conversation id has no digits")

// NormalizeConversationID strips any transport suffix ("@c.us") and keeps digits only.
func NormalizeConversationID(raw string) (string, error) {
	if i := strings.IndexByte(raw, '@'); i >= 0 {
		raw = raw[:i]
	}
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "", ErrEmptyConversationID
	}
	return b.String(), nil
}

// ChatID builds the transport chat id for a normalized conversation id.
//
//	558599999999 → 558599999999@c.us
func ChatID(conversationID string) string {
	return conversationID + "@c.us"
}
