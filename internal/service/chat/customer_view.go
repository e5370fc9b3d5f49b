package chat

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ourofino-storefront/internal/domain"
	"ourofino-storefront/internal/repository/conversation"
)

// customerStatuses are the statuses a customer keeps seeing; canceled
// conversations disappear from the list.
var customerStatuses = []domain.ConversationStatus{domain.StatusOpen, domain.StatusInProgress, domain.StatusClosed}

// CustomerState is what the customer widget renders.
type CustomerState struct {
	Viewer        domain.Participant    `json:"viewer"`
	Conversations []domain.Conversation `json:"conversations"`
	ActiveID      string                `json:"activeId,omitempty"`
	AgentActive   bool                  `json:"agentActive"`
	OutsideHours  bool                  `json:"outsideHours"`
}

type (
	feedSnapshot struct {
		list []domain.Conversation
	}
	chatCreated struct {
		conv domain.Conversation
	}
	msgAppended struct {
		convID string
		msg    domain.Message
	}
	msgRetracted struct {
		convID string
		key    string
	}
	chatCanceled struct {
		id string
	}
	chatRestored struct {
		conv domain.Conversation
	}
	chatSelected struct {
		id string
	}
)

// customerModel is mutated only by reduce.
type customerModel struct {
	conversations []domain.Conversation
	activeID      string
	unselected    bool
	agentActive   bool
	pending       map[string][]domain.Message
	fresh         map[string]domain.Conversation
	canceled      map[string]struct{}
}

func newCustomerModel() customerModel {
	return customerModel{
		pending:  make(map[string][]domain.Message),
		fresh:    make(map[string]domain.Conversation),
		canceled: make(map[string]struct{}),
	}
}

func (m *customerModel) find(id string) int {
	for i := range m.conversations {
		if m.conversations[i].ID == id {
			return i
		}
	}
	return -1
}

func (m *customerModel) reduce(ev any) {
	switch e := ev.(type) {
	case feedSnapshot:
		inFeed := make(map[string]bool, len(e.list))
		list := make([]domain.Conversation, 0, len(e.list)+len(m.fresh))
		for _, c := range e.list {
			inFeed[c.ID] = true
			delete(m.fresh, c.ID)
			if _, gone := m.canceled[c.ID]; gone {
				continue
			}
			c = c.Clone()
			if still := reconcile(&c, m.pending[c.ID]); len(still) > 0 {
				m.pending[c.ID] = still
			} else {
				delete(m.pending, c.ID)
			}
			list = append(list, c)
		}
		// Conversations created here stay listed until the feed catches up.
		for id, c := range m.fresh {
			if i := m.find(id); i >= 0 {
				c = m.conversations[i]
			}
			list = append(list, c.Clone())
		}
		sortNewestFirst(list)
		for id := range m.canceled {
			if !inFeed[id] {
				delete(m.canceled, id)
			}
		}
		m.conversations = list
		if m.find(m.activeID) < 0 {
			m.activeID = ""
			if len(list) > 0 && !m.unselected {
				m.activeID = list[0].ID
			}
		}

	case chatCreated:
		m.fresh[e.conv.ID] = e.conv.Clone()
		if m.find(e.conv.ID) < 0 {
			m.conversations = append([]domain.Conversation{e.conv.Clone()}, m.conversations...)
		}
		m.activeID = e.conv.ID
		m.unselected = false

	case msgAppended:
		if i := m.find(e.convID); i >= 0 && !m.conversations[i].HasMessage(e.msg.Key()) {
			m.conversations[i].Messages = append(m.conversations[i].Messages, e.msg)
			m.pending[e.convID] = append(m.pending[e.convID], e.msg)
		}

	case msgRetracted:
		m.pending[e.convID] = dropKey(m.pending[e.convID], e.key)
		if i := m.find(e.convID); i >= 0 {
			m.conversations[i].Messages = dropKey(m.conversations[i].Messages, e.key)
		}

	case chatCanceled:
		if i := m.find(e.id); i >= 0 {
			m.conversations = append(m.conversations[:i:i], m.conversations[i+1:]...)
		}
		m.canceled[e.id] = struct{}{}
		delete(m.pending, e.id)
		delete(m.fresh, e.id)
		if m.activeID == e.id {
			m.activeID = ""
		}

	case chatRestored:
		delete(m.canceled, e.conv.ID)
		if m.find(e.conv.ID) < 0 {
			m.conversations = append([]domain.Conversation{e.conv.Clone()}, m.conversations...)
		}

	case chatSelected:
		m.activeID = e.id
		m.unselected = e.id == ""
	}

	m.agentActive = false
	if i := m.find(m.activeID); i >= 0 {
		m.agentActive = m.conversations[i].Status == domain.StatusInProgress
	}
}

func sortNewestFirst(list []domain.Conversation) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}

func dropKey(msgs []domain.Message, key string) []domain.Message {
	out := msgs[:0:0]
	for _, m := range msgs {
		if m.Key() != key {
			out = append(out, m)
		}
	}
	return out
}

// CustomerView is one customer's live view of their own conversations. A
// background goroutine feeds repository snapshots through the same reducer
// as local actions.
type CustomerView struct {
	repo   conversation.Repository
	viewer domain.Participant
	hours  BusinessHours
	logger *zap.Logger
	now    func() time.Time

	mu    sync.Mutex
	model customerModel
	subs  *broadcaster[CustomerState]

	cancel context.CancelFunc
	done   chan struct{}
	synced chan struct{}
}

// NewCustomerView subscribes to the viewer's conversations until Close.
func NewCustomerView(ctx context.Context, repo conversation.Repository, viewer domain.Participant, hours BusinessHours, logger *zap.Logger) (*CustomerView, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(ctx)
	feed, err := repo.Watch(ctx, conversation.Query{OwnerID: viewer.ID, Statuses: customerStatuses})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("watch conversations: %w", err)
	}
	v := &CustomerView{
		repo:   repo,
		viewer: viewer,
		hours:  hours,
		logger: logger.With(zap.String("viewer", viewer.ID)),
		now:    time.Now,
		model:  newCustomerModel(),
		subs:   newBroadcaster[CustomerState](),
		cancel: cancel,
		done:   make(chan struct{}),
		synced: make(chan struct{}),
	}
	go v.run(feed)
	return v, nil
}

func (v *CustomerView) run(feed <-chan []domain.Conversation) {
	defer close(v.done)
	var once sync.Once
	for list := range feed {
		v.dispatch(feedSnapshot{list: list})
		once.Do(func() { close(v.synced) })
	}
}

// Synced is closed once the first snapshot has been applied.
func (v *CustomerView) Synced() <-chan struct{} {
	return v.synced
}

func (v *CustomerView) Close() {
	v.cancel()
	<-v.done
	v.subs.close()
}

func (v *CustomerView) dispatch(ev any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.model.reduce(ev)
	v.subs.publish(v.stateLocked())
}

func (v *CustomerView) stateLocked() CustomerState {
	st := CustomerState{
		Viewer:        v.viewer,
		Conversations: make([]domain.Conversation, 0, len(v.model.conversations)),
		ActiveID:      v.model.activeID,
		AgentActive:   v.model.agentActive,
	}
	var active *domain.Conversation
	for _, c := range v.model.conversations {
		st.Conversations = append(st.Conversations, c.Clone())
		if c.ID == v.model.activeID {
			c := c
			active = &c
		}
	}
	st.OutsideHours = !v.hours.Open(v.now()) && (active == nil || active.Status == domain.StatusOpen)
	return st
}

func (v *CustomerView) State() CustomerState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stateLocked()
}

// Updates streams the state after every change, starting with the current one.
func (v *CustomerView) Updates() (<-chan CustomerState, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.subs.subscribe(v.stateLocked())
}

// StartNewChat opens a conversation and selects it.
func (v *CustomerView) StartNewChat(ctx context.Context) (*domain.Conversation, error) {
	now := v.now().UTC()
	created, err := v.repo.Create(ctx, domain.Conversation{
		CustomerID:     v.viewer.ID,
		CustomerName:   v.viewer.Name,
		CustomerAvatar: v.viewer.Avatar,
		Status:         domain.StatusOpen,
		CreatedAt:      now,
		LastActivityAt: now,
		Messages:       []domain.Message{},
	})
	if err != nil {
		return nil, err
	}
	v.dispatch(chatCreated{conv: *created})
	v.logger.Info("chat started", zap.String("conversation", created.ID))
	return created, nil
}

// SendMessage appends text to the active conversation. The message shows up
// locally at once and is reconciled with the feed echo by id.
func (v *CustomerView) SendMessage(ctx context.Context, text string) (*domain.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty message", domain.ErrInvalidInput)
	}
	v.mu.Lock()
	active := v.model.activeID
	v.mu.Unlock()
	if active == "" {
		return nil, domain.ErrNoActiveConversation
	}
	msg := domain.Message{
		ID:           uuid.NewString(),
		Timestamp:    v.now().UTC().Truncate(time.Millisecond),
		Sender:       v.viewer.Name,
		SenderAvatar: v.viewer.Avatar,
		Text:         text,
	}
	v.dispatch(msgAppended{convID: active, msg: msg})
	if err := v.repo.AppendMessage(ctx, active, msg); err != nil {
		v.dispatch(msgRetracted{convID: active, key: msg.Key()})
		return nil, err
	}
	return &msg, nil
}

// SendSuggestedMessage sends one of the canned customer messages.
func (v *CustomerView) SendSuggestedMessage(ctx context.Context, text string) (*domain.Message, error) {
	return v.SendMessage(ctx, text)
}

// CancelConversation cancels one of the viewer's conversations. It leaves the
// local list immediately and comes back if the store refuses the change.
func (v *CustomerView) CancelConversation(ctx context.Context, id string) error {
	v.mu.Lock()
	i := v.model.find(id)
	var prior domain.Conversation
	if i >= 0 {
		prior = v.model.conversations[i].Clone()
	}
	v.mu.Unlock()
	if i < 0 {
		return domain.ErrNotFound
	}
	v.dispatch(chatCanceled{id: id})
	if _, err := v.repo.Transition(ctx, id, domain.StatusCanceled, nil); err != nil {
		v.dispatch(chatRestored{conv: prior})
		return err
	}
	v.logger.Info("chat canceled", zap.String("conversation", id))
	return nil
}

// Select makes id the active conversation. An empty id clears the selection
// until the customer selects or starts a conversation again.
func (v *CustomerView) Select(id string) error {
	if id != "" {
		v.mu.Lock()
		found := v.model.find(id) >= 0
		v.mu.Unlock()
		if !found {
			return domain.ErrNotFound
		}
	}
	v.dispatch(chatSelected{id: id})
	return nil
}
