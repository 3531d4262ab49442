package types

import (
	"encoding/json"
	"time"
)

// MessagePriority is the urgency of a board Post or a point-to-point
// Message (spec §4.G).
type MessagePriority string

const (
	PriorityLow    MessagePriority = "low"
	PriorityNormal MessagePriority = "normal"
	PriorityHigh   MessagePriority = "high"
	PriorityUrgent MessagePriority = "urgent"
)

// MessageType classifies a Message for adapters that render
// differently by kind (e.g. a terminal adapter coloring errors red).
type MessageType string

const (
	MessageStatus       MessageType = "status"
	MessageError        MessageType = "error"
	MessageSuccess      MessageType = "success"
	MessageQuestion     MessageType = "question"
	MessageAnnouncement MessageType = "announcement"
)

// Post is one entry appended to a BoardThread.
type Post struct {
	Author    string          `json:"author"`
	Timestamp time.Time       `json:"timestamp"`
	Body      string          `json:"body"`
	Priority  MessagePriority `json:"priority"`
}

// BoardThread is a named, threaded conversation that can be broadcast
// to one or more channels.
type BoardThread struct {
	ID        string    `json:"id"`
	Channel   string    `json:"channel"`
	Title     string    `json:"title"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	Posts     []Post    `json:"posts"`
	Pinned    bool      `json:"pinned"`
}

// MarshalRecord serializes the thread to its KV hash+list representation.
func (t *BoardThread) MarshalRecord() ([]byte, error) {
	return json.Marshal(t)
}

// UnmarshalBoardThread deserializes a thread previously written by
// MarshalRecord.
func UnmarshalBoardThread(data []byte) (*BoardThread, error) {
	var t BoardThread
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Clone returns a copy safe for return to callers.
func (t *BoardThread) Clone() *BoardThread {
	clone := *t
	clone.Posts = append([]Post(nil), t.Posts...)
	return &clone
}

// Message is a structured point-to-point or channel broadcast,
// consumed by ChannelManager adapters (spec §4.G). The adapters
// themselves (terminal/file/Slack/Discord) are external collaborators;
// only this contract and the narrow Channel interface live in the
// core.
type Message struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	FromAgent string            `json:"from_agent"`
	ToAgent   string            `json:"to_agent,omitempty"`
	Channel   string            `json:"channel,omitempty"`
	Priority  MessagePriority   `json:"priority"`
	Type      MessageType       `json:"type"`
	ThreadID  string            `json:"thread_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}
