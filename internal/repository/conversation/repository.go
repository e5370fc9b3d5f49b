// Package conversation persists support chats and streams live snapshots of
// them. Every watcher receives full snapshots, never diffs.
package conversation

import (
	"context"
	"sort"
	"time"

	"ourofino-storefront/internal/domain"
)

// Query selects conversations for a watcher. Empty fields match everything.
type Query struct {
	OwnerID  string
	Statuses []domain.ConversationStatus
}

// Matches reports whether c satisfies the query.
func (q Query) Matches(c domain.Conversation) bool {
	if q.OwnerID != "" && c.CustomerID != q.OwnerID {
		return false
	}
	if len(q.Statuses) == 0 {
		return true
	}
	for _, s := range q.Statuses {
		if c.Status == s {
			return true
		}
	}
	return false
}

type Repository interface {
	Create(ctx context.Context, c domain.Conversation) (*domain.Conversation, error)
	Get(ctx context.Context, id string) (*domain.Conversation, error)
	// AppendMessage adds m unless a message with the same key is present.
	// Terminal conversations reject appends with domain.ErrConversationTerminal.
	AppendMessage(ctx context.Context, id string, m domain.Message) error
	// Transition atomically checks and applies a status change. Claiming
	// (moving to in progress) records agent as the support agent.
	Transition(ctx context.Context, id string, to domain.ConversationStatus, agent *domain.Participant) (*domain.Conversation, error)
	// MarkReadBefore flags every message sent at or before t as read and
	// returns how many changed.
	MarkReadBefore(ctx context.Context, id string, t time.Time) (int, error)
	// Watch streams the matching conversations, newest first, until ctx ends.
	Watch(ctx context.Context, q Query) (<-chan []domain.Conversation, error)
	// WatchOne streams one conversation until ctx ends.
	WatchOne(ctx context.Context, id string) (<-chan domain.Conversation, error)
}

// applyTransition validates and applies a status change in place.
func applyTransition(c *domain.Conversation, to domain.ConversationStatus, agent *domain.Participant, now time.Time) error {
	switch {
	case c.Status == domain.StatusCanceled:
		return domain.ErrConversationCanceled
	case c.Status.Terminal():
		return domain.ErrConversationTerminal
	case !c.Status.CanTransition(to):
		return domain.ErrInvalidTransition
	}
	c.Status = to
	switch to {
	case domain.StatusInProgress:
		if agent != nil {
			name, avatar := agent.Name, agent.Avatar
			c.AgentName = &name
			c.AgentAvatar = &avatar
		}
		c.AgentActive = true
	case domain.StatusClosed, domain.StatusCanceled:
		c.AgentActive = false
	}
	c.LastActivityAt = now
	return nil
}

// markRead flips the read flag of messages sent at or before t.
func markRead(msgs []domain.Message, t time.Time) int {
	changed := 0
	for i := range msgs {
		if !msgs[i].Read && !msgs[i].Timestamp.After(t) {
			msgs[i].Read = true
			changed++
		}
	}
	return changed
}

func sortNewestFirst(list []domain.Conversation) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID > list[j].ID
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}

// deliver hands v to a single-slot channel, replacing an undelivered older
// value. Snapshots are complete, so a stale one can be dropped.
func deliver[T any](ctx context.Context, ch chan T, v T) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case ch <- v:
			return true
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
