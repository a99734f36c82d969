package models

// Message senders as reported by the marketplace chat API. The provider is
// this agent; the requester is the party that posted the instance.
const (
	SenderProvider  = "provider"
	SenderRequester = "requester"
)

type ChatMessage struct {
	Message   string    `json:"message"`
	Sender    string    `json:"sender"`
	Timestamp Timestamp `json:"timestamp"`
}

// Chat is the message history of one instance, oldest first as returned by
// the marketplace.
type Chat []ChatMessage

// HasProviderMessage reports whether this agent has already said anything on
// the instance, which is how a previously started solve attempt is detected.
func (c Chat) HasProviderMessage() bool {
	for _, m := range c {
		if m.Sender == SenderProvider {
			return true
		}
	}
	return false
}

// LastSender returns the sender of the most recent message, or an empty
// string for an empty chat.
func (c Chat) LastSender() string {
	if len(c) == 0 {
		return ""
	}
	last := c[0]
	for _, m := range c[1:] {
		if m.Timestamp.After(last.Timestamp.Time) {
			last = m
		}
	}
	return last.Sender
}
