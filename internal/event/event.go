// Package event defines the inbound-message envelope the gateway publishes
// and the moderation service consumes. One envelope per member message;
// service and edit updates never become envelopes.
package event

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/qloooooop1/guardian/internal/telegram"
)

// InboundMessage is the JSON payload carried on the guardian.inbound NATS
// subject.
type InboundMessage struct {
	EventID     string `json:"event_id"` // gateway-assigned uuid, for logs and audit correlation
	ChatID      int64  `json:"chat_id"`
	UserID      int64  `json:"user_id"`
	MessageID   int64  `json:"message_id"`
	UserIsAdmin bool   `json:"user_is_admin"` // set when the transport already knows (sender is chat owner/admin)
	Text        string `json:"text"`
	Ts          int64  `json:"ts"` // unix seconds, platform message timestamp
}

// FromUpdate converts a webhook update into an inbound envelope with a
// fresh event id. The caller filters out updates that should not be
// moderated; FromUpdate assumes u.Message and u.Message.From are set.
func FromUpdate(u *telegram.Update) *InboundMessage {
	msg := u.Message
	return &InboundMessage{
		EventID:   uuid.NewString(),
		ChatID:    msg.Chat.ID,
		UserID:    msg.From.ID,
		MessageID: msg.MessageID,
		Text:      msg.Content(),
		Ts:        msg.Date,
	}
}

// Marshal encodes the envelope for publishing.
func (m *InboundMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// ActionTaken is the enforcement event published on guardian.action.<chat_id>
// after the engine acts on a violation.
type ActionTaken struct {
	EventID string `json:"event_id"` // correlates with the inbound envelope
	ChatID  int64  `json:"chat_id"`
	UserID  int64  `json:"user_id"`
	Action  string `json:"action"` // delete, warn, mute, ban
	Ts      int64  `json:"ts"`     // unix seconds, enforcement time
}

// Marshal encodes the action event for publishing.
func (a *ActionTaken) Marshal() ([]byte, error) {
	return json.Marshal(a)
}

// Unmarshal decodes an envelope received from NATS.
func Unmarshal(data []byte) (*InboundMessage, error) {
	var m InboundMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
