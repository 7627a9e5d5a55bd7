package chat

import (
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/chat-bridge/irc"
)

// Message is one chat line sent by a user to the joined channel.
type Message struct {
	ID         string    `json:"id"`
	Channel    string    `json:"channel"`
	User       string    `json:"user"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
	Raw        string    `json:"-"`
}

// NewMessage builds a Message from a raw PRIVMSG line. It returns false for anything that
// is not a parseable chat message.
func NewMessage(channel, line string) (Message, bool) {
	pm, ok := irc.ParsePrivateMessage(line)
	if !ok {
		return Message{}, false
	}
	return Message{
		ID:         uuid.NewString(),
		Channel:    channel,
		User:       pm.User,
		Text:       pm.Text,
		ReceivedAt: time.Now().UTC(),
		Raw:        line,
	}, true
}
