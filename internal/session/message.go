package session

import "time"

// Sender identifies who authored a chat turn.
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// Kind classifies a message by the action that produced it.
type Kind string

const (
	KindChat        Kind = "chat"
	KindGreeting    Kind = "greeting"
	KindHint        Kind = "hint"
	KindExplanation Kind = "explanation"
	KindFeedback    Kind = "feedback"
	KindTransition  Kind = "transition"
	KindSummary     Kind = "summary"
)

// Message is a single chat turn.
type Message struct {
	// ID is assigned by the store and increases monotonically.
	ID     int64
	Sender Sender
	Text   string
	Kind   Kind

	// Complete is false only while the message is an open streamed turn.
	Complete bool

	// At is the arrival time of the message (or of its first chunk).
	At time.Time
}

// UserMessage builds a complete user message.
func UserMessage(kind Kind, text string) Message {
	return Message{Sender: SenderUser, Kind: kind, Text: text, Complete: true}
}

// AIMessage builds a complete, non-streamed AI message.
func AIMessage(kind Kind, text string) Message {
	return Message{Sender: SenderAI, Kind: kind, Text: text, Complete: true}
}

// IsAI reports whether the tutor authored the message.
func (m Message) IsAI() bool { return m.Sender == SenderAI }
