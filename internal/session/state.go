package session

import "time"

// Connection describes the streaming channel as seen by the learner.
type Connection int

const (
	ConnIdle         Connection = iota // No session, no channel
	ConnConnecting                     // First dial in progress
	ConnConnected                      // Frames are flowing
	ConnReconnecting                   // Channel dropped, redialing
	ConnDisconnected                   // Gave up; distinct from idle
)

func (c Connection) String() string {
	switch c {
	case ConnConnecting:
		return "connecting"
	case ConnConnected:
		return "connected"
	case ConnReconnecting:
		return "reconnecting"
	case ConnDisconnected:
		return "disconnected"
	default:
		return "idle"
	}
}

// Info is the configuration a learner picks before starting a session.
type Info struct {
	Problem    string
	Language   string
	SkillLevel string
	Model      string
}

// State is the full client-side view of a learning session. Values handed
// out by the Store are snapshots; mutate them only through Updates.
type State struct {
	// SessionID is empty when no session is active.
	SessionID string

	// Provisional is true while SessionID is the client-generated id that
	// stands in until the server confirms the session.
	Provisional bool

	Info

	// Stage is the current stage; FirstStage when no session is active.
	Stage Stage

	// Messages is the ordered transcript.
	Messages []Message

	// Streaming is true while a streamed reply or a blocking request
	// (feedback, completion) is in flight. Input is gated on it.
	Streaming bool

	// Initializing is true from the start request until the transcript
	// has content to show, or the start fails.
	Initializing bool

	// Transitioning guards overlapping stage transition / completion calls.
	Transitioning bool

	// LearningCompleted is set once completion succeeds in the last stage.
	LearningCompleted bool

	// Err is the global error slot. Empty means no error.
	Err string

	// Challenge is the single active mini-challenge, nil when none.
	Challenge *Challenge

	// Connection is the state of the streaming channel.
	Connection Connection

	// Generation increments on every start and reset. Async results
	// captured under an older generation are discarded.
	Generation uint64

	// OpenTurn is the ID of the streamed message receiving chunks, 0 if none.
	OpenTurn int64

	// NextID is the ID the next message will receive.
	NextID int64

	// MaxMessages caps the transcript length; 0 means unbounded.
	MaxMessages int

	// Dropped counts messages evicted by the cap.
	Dropped int

	// Rev increments on every committed update.
	Rev uint64
}

// NewState returns the empty, no-session state.
func NewState(maxMessages int) State {
	return State{
		Stage:       FirstStage(),
		NextID:      1,
		MaxMessages: maxMessages,
	}
}

// Active reports whether a session (possibly provisional) exists.
func (s State) Active() bool { return s.SessionID != "" }

// Ready reports whether the session is confirmed by the server.
func (s State) Ready() bool { return s.SessionID != "" && !s.Provisional }

// LastMessage returns the final transcript entry.
func (s State) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// FindMessage returns the message with the given ID.
func (s State) FindMessage(id int64) (Message, bool) {
	if i := s.indexOf(id); i >= 0 {
		return s.Messages[i], true
	}
	return Message{}, false
}

// CanAdvance reports whether a stage transition may be issued.
func (s State) CanAdvance() bool {
	return s.Ready() && !s.Stage.IsLast() && !s.LearningCompleted && !s.Transitioning
}

// CanComplete reports whether completion may be issued.
func (s State) CanComplete() bool {
	return s.Ready() && s.Stage.IsLast() && !s.LearningCompleted && !s.Transitioning && !s.Streaming
}

// Clone returns a deep copy that shares no mutable memory with s.
func (s State) Clone() State {
	c := s
	if s.Messages != nil {
		c.Messages = make([]Message, len(s.Messages))
		copy(c.Messages, s.Messages)
	}
	if s.Challenge != nil {
		ch := *s.Challenge
		c.Challenge = &ch
	}
	return c
}

func (s State) indexOf(id int64) int {
	if id == 0 {
		return -1
	}
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].ID == id {
			return i
		}
	}
	return -1
}

// Update is a pure state transition.
type Update func(State) State

// Chain composes updates left to right.
func Chain(updates ...Update) Update {
	return func(s State) State {
		for _, u := range updates {
			s = u(s)
		}
		return s
	}
}

// AddMessage appends m unconditionally, stamping its ID and arrival time.
func AddMessage(m Message, at time.Time) Update {
	return func(s State) State {
		m.ID = s.NextID
		if m.At.IsZero() {
			m.At = at
		}
		s.NextID++
		msgs := make([]Message, len(s.Messages), len(s.Messages)+1)
		copy(msgs, s.Messages)
		s.Messages = append(msgs, m)
		return trim(s)
	}
}

// AppendStreamChunk merges a streamed fragment into the open turn. When no
// turn is open a new, incomplete AI message is started with text as its
// content. Complete messages never receive chunks.
func AppendStreamChunk(text string, at time.Time) Update {
	return func(s State) State {
		if i := s.indexOf(s.OpenTurn); i >= 0 {
			msgs := make([]Message, len(s.Messages))
			copy(msgs, s.Messages)
			msgs[i].Text += text
			s.Messages = msgs
			return s
		}
		s = AddMessage(Message{Sender: SenderAI, Kind: KindChat, Text: text}, at)(s)
		s.OpenTurn = s.NextID - 1
		return s
	}
}

// EndStreamTurn closes the open turn, if any.
func EndStreamTurn() Update {
	return func(s State) State {
		if i := s.indexOf(s.OpenTurn); i >= 0 {
			msgs := make([]Message, len(s.Messages))
			copy(msgs, s.Messages)
			msgs[i].Complete = true
			s.Messages = msgs
		}
		s.OpenTurn = 0
		return s
	}
}

// SetError sets the global error slot; an empty message clears it.
func SetError(msg string) Update {
	return func(s State) State {
		s.Err = msg
		return s
	}
}

// SetStreaming sets the in-flight flag.
func SetStreaming(v bool) Update {
	return func(s State) State {
		s.Streaming = v
		return s
	}
}

// SetInitializing sets the loading-placeholder flag.
func SetInitializing(v bool) Update {
	return func(s State) State {
		s.Initializing = v
		return s
	}
}

// SetConnection records the streaming channel state.
func SetConnection(c Connection) Update {
	return func(s State) State {
		s.Connection = c
		return s
	}
}

// SetChallenge replaces the active challenge; nil clears it.
func SetChallenge(ch *Challenge) Update {
	return func(s State) State {
		if ch != nil {
			c := *ch
			ch = &c
		}
		s.Challenge = ch
		return s
	}
}

// SetStage moves the session to stage. Moves backwards or to unknown
// stages are ignored so the stage only ever advances.
func SetStage(stage Stage) Update {
	return func(s State) State {
		if stage.Index() > s.Stage.Index() {
			s.Stage = stage
		}
		return s
	}
}

// BeginSession installs a provisional session so the UI can show a loading
// placeholder while the start request is in flight. Any previous session
// state is discarded and the generation advances.
func BeginSession(provisionalID string, info Info) Update {
	return func(s State) State {
		next := NewState(s.MaxMessages)
		next.Generation = s.Generation + 1
		next.Rev = s.Rev
		next.NextID = s.NextID
		next.SessionID = provisionalID
		next.Provisional = true
		next.Info = info
		next.Initializing = true
		return next
	}
}

// ConfirmSession replaces the provisional id with the server-issued one and
// seeds the transcript with the greeting. Without a greeting the session
// stays initializing until the first streamed chunk arrives.
func ConfirmSession(sessionID, greeting string, at time.Time) Update {
	return func(s State) State {
		s.SessionID = sessionID
		s.Provisional = false
		s.Stage = FirstStage()
		s.Err = ""
		s.Messages = nil
		s.OpenTurn = 0
		if greeting != "" {
			s = AddMessage(AIMessage(KindGreeting, greeting), at)(s)
			s.Initializing = false
		}
		return s
	}
}

// SetTransitioning sets the transition-in-flight guard.
func SetTransitioning(v bool) Update {
	return func(s State) State {
		s.Transitioning = v
		return s
	}
}

// MarkCompleted records a successful completion. The active challenge is
// cleared with it.
func MarkCompleted() Update {
	return func(s State) State {
		s.LearningCompleted = true
		s.Challenge = nil
		return s
	}
}

// FailSession drops the provisional session and reports msg.
func FailSession(msg string) Update {
	return func(s State) State {
		next := NewState(s.MaxMessages)
		next.Generation = s.Generation
		next.Rev = s.Rev
		next.NextID = s.NextID
		next.Err = msg
		return next
	}
}

// Reset clears the session and everything derived from it.
func Reset() Update {
	return func(s State) State {
		next := NewState(s.MaxMessages)
		next.Generation = s.Generation + 1
		next.Rev = s.Rev
		next.NextID = s.NextID
		return next
	}
}

// trim enforces MaxMessages by evicting the oldest messages. The open
// streamed turn is never evicted.
func trim(s State) State {
	if s.MaxMessages <= 0 || len(s.Messages) <= s.MaxMessages {
		return s
	}
	excess := len(s.Messages) - s.MaxMessages
	kept := make([]Message, 0, s.MaxMessages)
	for _, m := range s.Messages {
		if excess > 0 && m.ID != s.OpenTurn {
			excess--
			s.Dropped++
			continue
		}
		kept = append(kept, m)
	}
	s.Messages = kept
	return s
}
