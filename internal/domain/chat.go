package domain

import (
	"strings"
	"time"
)

type ConversationStatus string

const (
	StatusOpen       ConversationStatus = "open"
	StatusInProgress ConversationStatus = "in progress"
	StatusClosed     ConversationStatus = "closed"
	StatusCanceled   ConversationStatus = "canceled"
)

// ParseConversationStatus accepts the stored values case-insensitively.
func ParseConversationStatus(s string) (ConversationStatus, bool) {
	switch ConversationStatus(strings.ToLower(strings.TrimSpace(s))) {
	case StatusOpen:
		return StatusOpen, true
	case StatusInProgress, "in_progress", "inprogress":
		return StatusInProgress, true
	case StatusClosed:
		return StatusClosed, true
	case StatusCanceled, "cancelled":
		return StatusCanceled, true
	}
	return "", false
}

// Terminal reports whether no transition may leave the status.
func (s ConversationStatus) Terminal() bool {
	return s == StatusClosed || s == StatusCanceled
}

// CanTransition encodes the conversation state machine. Re-claiming an
// in-progress conversation is allowed so a second agent can take over.
func (s ConversationStatus) CanTransition(to ConversationStatus) bool {
	switch s {
	case StatusOpen:
		return to == StatusInProgress || to == StatusCanceled
	case StatusInProgress:
		return to == StatusInProgress || to == StatusClosed || to == StatusCanceled
	default:
		return false
	}
}

type SenderKind string

const (
	SenderCustomer SenderKind = "customer"
	SenderAgent    SenderKind = "agent"
)

// Message is append-only; only Read may change after creation.
type Message struct {
	ID           string    `json:"id" firestore:"id"`
	Timestamp    time.Time `json:"timestamp" firestore:"-"`
	Sender       string    `json:"sender" firestore:"sender"`
	SenderAvatar string    `json:"senderAvatar,omitempty" firestore:"senderAvatar"`
	Text         string    `json:"message" firestore:"message"`
	Read         bool      `json:"read" firestore:"visualizado"`
}

// Key identifies a message across snapshots. Messages written without an id
// fall back to sender and timestamp.
func (m Message) Key() string {
	if m.ID != "" {
		return m.ID
	}
	return m.Sender + "|" + m.Timestamp.UTC().Format(time.RFC3339Nano)
}

// SentBy compares the sender display name against a viewer identity.
func (m Message) SentBy(displayName string) bool {
	return m.Sender == displayName
}

// Participant is the identity a view acts as.
type Participant struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

type Conversation struct {
	ID             string             `json:"id"`
	CustomerID     string             `json:"customerId"`
	CustomerName   string             `json:"customerName"`
	CustomerAvatar string             `json:"customerAvatar,omitempty"`
	AgentName      *string            `json:"agentName,omitempty"`
	AgentAvatar    *string            `json:"agentAvatar,omitempty"`
	AgentActive    bool               `json:"agentActive"`
	Status         ConversationStatus `json:"status"`
	CreatedAt      time.Time          `json:"createdAt"`
	LastActivityAt time.Time          `json:"lastActivityAt"`
	Messages       []Message          `json:"messages"`
}

// KindOf classifies a message from the customer's point of view.
func (c Conversation) KindOf(m Message) SenderKind {
	if m.SentBy(c.CustomerName) {
		return SenderCustomer
	}
	return SenderAgent
}

// Clone deep-copies the conversation so snapshots can be shared between goroutines.
func (c Conversation) Clone() Conversation {
	out := c
	out.Messages = append([]Message(nil), c.Messages...)
	if c.AgentName != nil {
		name := *c.AgentName
		out.AgentName = &name
	}
	if c.AgentAvatar != nil {
		avatar := *c.AgentAvatar
		out.AgentAvatar = &avatar
	}
	return out
}

// HasMessage reports whether a message with the same key is already present.
func (c Conversation) HasMessage(key string) bool {
	for _, m := range c.Messages {
		if m.Key() == key {
			return true
		}
	}
	return false
}
