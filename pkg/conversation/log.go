package conversation

import (
	"sync"
	"time"
)

type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Message is one rendered line of a conversation.
type Message struct {
	Sender Sender
	Text   string
	At     time.Time
}

// Log is an append-only message history safe for concurrent use.
type Log struct {
	mu       sync.RWMutex
	messages []Message
}

func NewLog() *Log {
	return &Log{}
}

func (l *Log) Append(sender Sender, text string) Message {
	msg := Message{Sender: sender, Text: text, At: time.Now().UTC()}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)

	return msg
}

// Messages returns a snapshot of the history.
func (l *Log) Messages() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.messages) == 0 {
		return nil
	}

	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}
