package telegram

// Update is one entry of the Bot API webhook payload. Only the fields the
// engine consumes are modeled.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

// Message is an inbound chat message.
type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from"`
	Chat      Chat   `json:"chat"`
	Date      int64  `json:"date"`
	Text      string `json:"text"`
	Caption   string `json:"caption"` // media posts carry their text here
}

// Content returns the moderatable text of the message: the text for plain
// messages, the caption for media.
func (m *Message) Content() string {
	if m.Text != "" {
		return m.Text
	}
	return m.Caption
}

// User is a message sender.
type User struct {
	ID    int64  `json:"id"`
	IsBot bool   `json:"is_bot"`
	Name  string `json:"first_name"`
}

// Chat identifies the conversation an update belongs to.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"` // "private", "group", "supergroup", "channel"
}

// IsGroup reports whether the chat is a moderatable group conversation.
func (c Chat) IsGroup() bool {
	return c.Type == "group" || c.Type == "supergroup"
}

// chatMember is the getChatMember response payload.
type chatMember struct {
	Status string `json:"status"` // creator, administrator, member, restricted, left, kicked
}
