package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"ourofino-storefront/internal/domain"
)

// Collection is the Firestore collection holding one document per chat.
const Collection = "chats"

// isoLayout matches the millisecond ISO-8601 strings stored in chat documents.
const isoLayout = "2006-01-02T15:04:05.000Z07:00"

type messageDoc struct {
	ID           string `firestore:"id,omitempty"`
	Timestamp    string `firestore:"timestamp"`
	Sender       string `firestore:"sender"`
	SenderAvatar string `firestore:"senderAvatar,omitempty"`
	Message      string `firestore:"message"`
	Visualizado  bool   `firestore:"visualizado"`
}

type chatDoc struct {
	UserID             string       `firestore:"userId"`
	UserName           string       `firestore:"user_Name"`
	UserAvatar         string       `firestore:"user_avatar"`
	SupportAgentName   *string      `firestore:"supportAgentName"`
	SupportAgentAvatar *string      `firestore:"supportAgentAvatar"`
	Messages           []messageDoc `firestore:"messages"`
	Status             string       `firestore:"status"`
	AgentIsActive      bool         `firestore:"agentIsActive"`
	CreatedAt          string       `firestore:"createdAt"`
	Timestamp          string       `firestore:"timestamp"`
}

func formatISO(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

func parseISO(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func toMessageDoc(m domain.Message) messageDoc {
	return messageDoc{
		ID:           m.ID,
		Timestamp:    formatISO(m.Timestamp),
		Sender:       m.Sender,
		SenderAvatar: m.SenderAvatar,
		Message:      m.Text,
		Visualizado:  m.Read,
	}
}

func toDoc(c domain.Conversation) chatDoc {
	d := chatDoc{
		UserID:             c.CustomerID,
		UserName:           c.CustomerName,
		UserAvatar:         c.CustomerAvatar,
		SupportAgentName:   c.AgentName,
		SupportAgentAvatar: c.AgentAvatar,
		Messages:           make([]messageDoc, 0, len(c.Messages)),
		Status:             string(c.Status),
		AgentIsActive:      c.AgentActive,
		CreatedAt:          formatISO(c.CreatedAt),
		Timestamp:          formatISO(c.LastActivityAt),
	}
	for _, m := range c.Messages {
		d.Messages = append(d.Messages, toMessageDoc(m))
	}
	return d
}

func fromDoc(id string, d chatDoc) (domain.Conversation, error) {
	st, ok := domain.ParseConversationStatus(d.Status)
	if !ok {
		return domain.Conversation{}, fmt.Errorf("conversation %s: unknown status %q", id, d.Status)
	}
	c := domain.Conversation{
		ID:             id,
		CustomerID:     d.UserID,
		CustomerName:   d.UserName,
		CustomerAvatar: d.UserAvatar,
		AgentName:      d.SupportAgentName,
		AgentAvatar:    d.SupportAgentAvatar,
		AgentActive:    d.AgentIsActive,
		Status:         st,
		CreatedAt:      parseISO(d.CreatedAt),
		LastActivityAt: parseISO(d.Timestamp),
		Messages:       make([]domain.Message, 0, len(d.Messages)),
	}
	for _, m := range d.Messages {
		c.Messages = append(c.Messages, domain.Message{
			ID:           m.ID,
			Timestamp:    parseISO(m.Timestamp),
			Sender:       m.Sender,
			SenderAvatar: m.SenderAvatar,
			Text:         m.Message,
			Read:         m.Visualizado,
		})
	}
	return c, nil
}

func decodeSnapshot(snap *firestore.DocumentSnapshot) (domain.Conversation, error) {
	var d chatDoc
	if err := snap.DataTo(&d); err != nil {
		return domain.Conversation{}, fmt.Errorf("conversation %s: %w", snap.Ref.ID, err)
	}
	return fromDoc(snap.Ref.ID, d)
}

type firestoreRepo struct {
	client *firestore.Client
	logger *zap.Logger
	now    func() time.Time
	retry  time.Duration
}

// NewFirestore returns a Repository on the "chats" collection.
func NewFirestore(client *firestore.Client, logger *zap.Logger) Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &firestoreRepo{client: client, logger: logger, now: time.Now, retry: 2 * time.Second}
}

func (r *firestoreRepo) chats() *firestore.CollectionRef {
	return r.client.Collection(Collection)
}

func (r *firestoreRepo) Create(ctx context.Context, c domain.Conversation) (*domain.Conversation, error) {
	ref := r.chats().NewDoc()
	if c.ID != "" {
		ref = r.chats().Doc(c.ID)
	}
	c.ID = ref.ID
	if _, err := ref.Create(ctx, toDoc(c)); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return nil, domain.ErrAlreadyExists
		}
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return &c, nil
}

func (r *firestoreRepo) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	snap, err := r.chats().Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	c, err := decodeSnapshot(snap)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// load reads a conversation inside a transaction.
func load(tx *firestore.Transaction, ref *firestore.DocumentRef) (domain.Conversation, error) {
	snap, err := tx.Get(ref)
	if status.Code(err) == codes.NotFound {
		return domain.Conversation{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Conversation{}, err
	}
	return decodeSnapshot(snap)
}

func (r *firestoreRepo) AppendMessage(ctx context.Context, id string, m domain.Message) error {
	ref := r.chats().Doc(id)
	return r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		c, err := load(tx, ref)
		if err != nil {
			return err
		}
		if c.Status.Terminal() {
			return domain.ErrConversationTerminal
		}
		if c.HasMessage(m.Key()) {
			return nil
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "messages", Value: firestore.ArrayUnion(toMessageDoc(m))},
			{Path: "timestamp", Value: formatISO(r.now())},
		})
	})
}

func (r *firestoreRepo) Transition(ctx context.Context, id string, to domain.ConversationStatus, agent *domain.Participant) (*domain.Conversation, error) {
	ref := r.chats().Doc(id)
	var out domain.Conversation
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		c, err := load(tx, ref)
		if err != nil {
			return err
		}
		if err := applyTransition(&c, to, agent, r.now()); err != nil {
			return err
		}
		updates := []firestore.Update{
			{Path: "status", Value: string(c.Status)},
			{Path: "agentIsActive", Value: c.AgentActive},
			{Path: "timestamp", Value: formatISO(c.LastActivityAt)},
		}
		if to == domain.StatusInProgress && agent != nil {
			updates = append(updates,
				firestore.Update{Path: "supportAgentName", Value: agent.Name},
				firestore.Update{Path: "supportAgentAvatar", Value: agent.Avatar},
			)
		}
		out = c
		return tx.Update(ref, updates)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkReadBefore rewrites the message array inside a transaction, so a
// concurrent append or mark-read makes Firestore retry instead of losing it.
func (r *firestoreRepo) MarkReadBefore(ctx context.Context, id string, t time.Time) (int, error) {
	ref := r.chats().Doc(id)
	var changed int
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		c, err := load(tx, ref)
		if err != nil {
			return err
		}
		changed = markRead(c.Messages, t)
		if changed == 0 {
			return nil
		}
		return tx.Update(ref, []firestore.Update{{Path: "messages", Value: toDoc(c).Messages}})
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}

func (r *firestoreRepo) query(q Query) firestore.Query {
	fq := r.chats().Query
	if q.OwnerID != "" {
		fq = fq.Where("userId", "==", q.OwnerID)
	}
	if len(q.Statuses) > 0 {
		statuses := make([]string, 0, len(q.Statuses))
		for _, s := range q.Statuses {
			statuses = append(statuses, string(s))
		}
		fq = fq.Where("status", "in", statuses)
	}
	return fq
}

func (r *firestoreRepo) Watch(ctx context.Context, q Query) (<-chan []domain.Conversation, error) {
	out := make(chan []domain.Conversation, 1)
	fq := r.query(q)
	go func() {
		defer close(out)
		r.listen(ctx, "query", func() error {
			it := fq.Snapshots(ctx)
			defer it.Stop()
			for {
				snap, err := it.Next()
				if err != nil {
					return err
				}
				docs, err := snap.Documents.GetAll()
				if err != nil {
					return err
				}
				list := make([]domain.Conversation, 0, len(docs))
				for _, d := range docs {
					c, err := decodeSnapshot(d)
					if err != nil {
						r.logger.Warn("skip malformed conversation", zap.Error(err))
						continue
					}
					list = append(list, c)
				}
				sortNewestFirst(list)
				if !deliver(ctx, out, list) {
					return ctx.Err()
				}
			}
		})
	}()
	return out, nil
}

func (r *firestoreRepo) WatchOne(ctx context.Context, id string) (<-chan domain.Conversation, error) {
	out := make(chan domain.Conversation, 1)
	ref := r.chats().Doc(id)
	go func() {
		defer close(out)
		r.listen(ctx, "document", func() error {
			it := ref.Snapshots(ctx)
			defer it.Stop()
			for {
				snap, err := it.Next()
				if err != nil {
					return err
				}
				if !snap.Exists() {
					continue
				}
				c, err := decodeSnapshot(snap)
				if err != nil {
					r.logger.Warn("skip malformed conversation", zap.Error(err))
					continue
				}
				if !deliver(ctx, out, c) {
					return ctx.Err()
				}
			}
		})
	}()
	return out, nil
}

// listen runs a snapshot listener and re-opens it after stream errors until
// ctx ends.
func (r *firestoreRepo) listen(ctx context.Context, kind string, run func() error) {
	backoff := r.retry
	for {
		err := run()
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || status.Code(err) == codes.Canceled {
			return
		}
		r.logger.Warn("conversation listener interrupted, retrying", zap.String("kind", kind), zap.Duration("backoff", backoff), zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < time.Minute {
			backoff *= 2
		}
	}
}
