// Package stream carries the tutor's streamed replies from the chat
// websocket into the session store.
package stream

// FrameType discriminates inbound frames.
type FrameType string

const (
	FrameChunk FrameType = "chunk"
	FrameEnd   FrameType = "end"
	FrameError FrameType = "error"
)

// Frame is one inbound JSON message on the chat channel.
type Frame struct {
	Type    FrameType `json:"type"`
	Content string    `json:"content,omitempty"`
}

// Chunk builds a chunk frame.
func Chunk(text string) Frame { return Frame{Type: FrameChunk, Content: text} }

// End builds an end-of-turn frame.
func End() Frame { return Frame{Type: FrameEnd} }

// Error builds an error frame.
func Error(msg string) Frame { return Frame{Type: FrameError, Content: msg} }
