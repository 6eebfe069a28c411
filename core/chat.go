package core

// ChatService posts short operator-facing messages to a chat channel.
type ChatService interface {
	PostMessage(text string) error
}
