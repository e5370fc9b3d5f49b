package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ourofino-storefront/internal/domain"
	"ourofino-storefront/internal/repository/conversation"
)

// AgentState is what the support console renders.
type AgentState struct {
	Agent         domain.Participant    `json:"agent"`
	Conversations []domain.Conversation `json:"conversations"`
	Unread        map[string]int        `json:"unread"`
	OpenTabs      []string              `json:"openTabs"`
	ActiveID      string                `json:"activeId,omitempty"`
	Active        *domain.Conversation  `json:"active,omitempty"`
	History       *domain.Conversation  `json:"history,omitempty"`
	PendingClose  string                `json:"pendingClose,omitempty"`
}

// Filter narrows the conversation list. Zero fields match everything.
type Filter struct {
	Status domain.ConversationStatus
	Name   string
	Date   time.Time
}

// Apply keeps the conversations matching every set field. Date names a
// calendar day; CreatedAt is read in loc before comparing.
func (f Filter) Apply(list []domain.Conversation, loc *time.Location) []domain.Conversation {
	if loc == nil {
		loc = time.UTC
	}
	name := strings.ToLower(strings.TrimSpace(f.Name))
	out := make([]domain.Conversation, 0, len(list))
	for _, c := range list {
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if name != "" && !strings.Contains(strings.ToLower(c.CustomerName), name) {
			continue
		}
		if !f.Date.IsZero() && !sameDay(c.CreatedAt.In(loc), f.Date) {
			continue
		}
		out = append(out, c.Clone())
	}
	return out
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

type (
	agentFeed struct {
		list []domain.Conversation
	}
	activeSnapshot struct {
		conv domain.Conversation
	}
	activated struct {
		id string
		at time.Time
	}
	tabOpened struct {
		id string
	}
	agentSent struct {
		convID string
		msg    domain.Message
	}
	agentRetracted struct {
		convID string
		key    string
	}
	closeRequested struct {
		id string
	}
	closed struct {
		id string
	}
	historyShown struct {
		conv domain.Conversation
	}
)

type (
	deactivated    struct{}
	closeDismissed struct{}
	historyHidden  struct{}
)

type agentModel struct {
	agentName   string
	all         []domain.Conversation
	unread      map[string]int
	counted     map[string]map[string]struct{}
	settled     map[string]struct{}
	lastChecked map[string]time.Time
	tabs        []string
	activeID    string
	active      *domain.Conversation
	pending     map[string][]domain.Message
	history     *domain.Conversation
	closing     string
}

func newAgentModel(agentName string) agentModel {
	return agentModel{
		agentName:   agentName,
		unread:      make(map[string]int),
		counted:     make(map[string]map[string]struct{}),
		settled:     make(map[string]struct{}),
		lastChecked: make(map[string]time.Time),
		pending:     make(map[string][]domain.Message),
	}
}

// observe counts each message once: later snapshots carrying the same
// message never add to the counter again. Terminal conversations with nothing
// unread are settled and their message keys dropped.
func (m *agentModel) observe(c domain.Conversation) {
	if _, ok := m.settled[c.ID]; ok {
		return
	}
	seen := m.seenSet(c.ID)
	for _, msg := range c.Messages {
		key := msg.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		if c.ID == m.activeID || msg.Read || msg.SentBy(m.agentName) {
			continue
		}
		if !msg.Timestamp.After(m.lastChecked[c.ID]) {
			continue
		}
		m.unread[c.ID]++
	}
	if c.Status.Terminal() && m.unread[c.ID] == 0 && c.ID != m.activeID {
		delete(m.counted, c.ID)
		m.settled[c.ID] = struct{}{}
	}
}

func (m *agentModel) seenSet(convID string) map[string]struct{} {
	seen, ok := m.counted[convID]
	if !ok {
		seen = make(map[string]struct{})
		m.counted[convID] = seen
	}
	return seen
}

func (m *agentModel) markSeen(c domain.Conversation) {
	if _, ok := m.settled[c.ID]; ok {
		return
	}
	seen := m.seenSet(c.ID)
	for _, msg := range c.Messages {
		seen[msg.Key()] = struct{}{}
	}
}

// forget drops the bookkeeping of conversations that left the feed.
func (m *agentModel) forget(inFeed map[string]bool) {
	gone := func(id string) bool { return !inFeed[id] && !m.retained(id) }
	for id := range m.settled {
		if gone(id) {
			delete(m.settled, id)
		}
	}
	for id := range m.counted {
		if gone(id) {
			delete(m.counted, id)
		}
	}
	for id := range m.lastChecked {
		if gone(id) {
			delete(m.lastChecked, id)
		}
	}
	for id := range m.unread {
		if gone(id) {
			delete(m.unread, id)
		}
	}
}

func (m *agentModel) retained(id string) bool {
	return id == m.activeID || m.hasTab(id)
}

func (m *agentModel) conversation(id string) (domain.Conversation, bool) {
	for _, c := range m.all {
		if c.ID == id {
			return c, true
		}
	}
	return domain.Conversation{}, false
}

func (m *agentModel) hasTab(id string) bool {
	for _, t := range m.tabs {
		if t == id {
			return true
		}
	}
	return false
}

func (m *agentModel) reduce(ev any) {
	switch e := ev.(type) {
	case agentFeed:
		m.all = make([]domain.Conversation, 0, len(e.list))
		inFeed := make(map[string]bool, len(e.list))
		for _, c := range e.list {
			inFeed[c.ID] = true
			m.observe(c)
			m.all = append(m.all, c.Clone())
		}
		m.forget(inFeed)

	case activeSnapshot:
		if e.conv.ID != m.activeID {
			return
		}
		c := e.conv.Clone()
		if still := reconcile(&c, m.pending[c.ID]); len(still) > 0 {
			m.pending[c.ID] = still
		} else {
			delete(m.pending, c.ID)
		}
		m.markSeen(c)
		m.active = &c

	case activated:
		m.activeID = e.id
		m.unread[e.id] = 0
		m.lastChecked[e.id] = e.at
		if !m.hasTab(e.id) {
			m.tabs = append(m.tabs, e.id)
		}
		m.active = nil
		if c, ok := m.conversation(e.id); ok {
			m.markSeen(c)
			c = c.Clone()
			m.active = &c
		}

	case deactivated:
		m.activeID = ""
		m.active = nil

	case tabOpened:
		if !m.hasTab(e.id) {
			m.tabs = append(m.tabs, e.id)
		}

	case agentSent:
		if m.active != nil && m.active.ID == e.convID && !m.active.HasMessage(e.msg.Key()) {
			m.active.Messages = append(m.active.Messages, e.msg)
			m.pending[e.convID] = append(m.pending[e.convID], e.msg)
		}

	case agentRetracted:
		m.pending[e.convID] = dropKey(m.pending[e.convID], e.key)
		if m.active != nil && m.active.ID == e.convID {
			m.active.Messages = dropKey(m.active.Messages, e.key)
		}

	case closeRequested:
		m.closing = e.id

	case closeDismissed:
		m.closing = ""

	case closed:
		tabs := m.tabs[:0:0]
		for _, t := range m.tabs {
			if t != e.id {
				tabs = append(tabs, t)
			}
		}
		m.tabs = tabs
		m.closing = ""
		delete(m.pending, e.id)
		if m.activeID == e.id {
			m.activeID = ""
			m.active = nil
		}

	case historyShown:
		c := e.conv.Clone()
		m.history = &c

	case historyHidden:
		m.history = nil
	}
}

// needsMarkRead returns the newest unread customer message time in the
// active conversation.
func (m *agentModel) needsMarkRead() (time.Time, bool) {
	if m.active == nil {
		return time.Time{}, false
	}
	var latest time.Time
	found := false
	for _, msg := range m.active.Messages {
		if msg.Read || msg.SentBy(m.agentName) {
			continue
		}
		found = true
		if msg.Timestamp.After(latest) {
			latest = msg.Timestamp
		}
	}
	return latest, found
}

// AgentView is one support agent's console. The whole collection is watched
// for the list and unread counters; the active conversation has its own
// subscription, replaced whenever another one is activated.
type AgentView struct {
	repo      conversation.Repository
	agent     domain.Participant
	templates Templates
	loc       *time.Location
	logger    *zap.Logger
	now       func() time.Time

	mu    sync.Mutex
	model agentModel
	subs  *broadcaster[AgentState]

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	synced chan struct{}

	watchMu     sync.Mutex
	watchCancel context.CancelFunc
	watchDone   chan struct{}
}

// NewAgentView subscribes to every conversation until Close. loc decides
// calendar days for date filters.
func NewAgentView(ctx context.Context, repo conversation.Repository, agent domain.Participant, templates Templates, loc *time.Location, logger *zap.Logger) (*AgentView, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	ctx, cancel := context.WithCancel(ctx)
	feed, err := repo.Watch(ctx, conversation.Query{})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("watch conversations: %w", err)
	}
	v := &AgentView{
		repo:      repo,
		agent:     agent,
		templates: templates,
		loc:       loc,
		logger:    logger.With(zap.String("agent", agent.ID)),
		now:       time.Now,
		model:     newAgentModel(agent.Name),
		subs:      newBroadcaster[AgentState](),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		synced:    make(chan struct{}),
	}
	go v.run(feed)
	return v, nil
}

func (v *AgentView) run(feed <-chan []domain.Conversation) {
	defer close(v.done)
	var once sync.Once
	for list := range feed {
		v.dispatch(agentFeed{list: list})
		once.Do(func() { close(v.synced) })
	}
}

// Synced is closed once the first snapshot has been applied.
func (v *AgentView) Synced() <-chan struct{} {
	return v.synced
}

// Close stops both subscriptions and ends every update stream.
func (v *AgentView) Close() {
	v.cancel()
	v.watchMu.Lock()
	v.stopWatchLocked()
	v.watchMu.Unlock()
	<-v.done
	v.subs.close()
}

func (v *AgentView) dispatch(ev any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.model.reduce(ev)
	v.subs.publish(v.stateLocked())
}

func (v *AgentView) stateLocked() AgentState {
	st := AgentState{
		Agent:         v.agent,
		Conversations: make([]domain.Conversation, 0, len(v.model.all)),
		Unread:        make(map[string]int, len(v.model.unread)),
		OpenTabs:      append([]string{}, v.model.tabs...),
		ActiveID:      v.model.activeID,
		PendingClose:  v.model.closing,
	}
	for _, c := range v.model.all {
		st.Conversations = append(st.Conversations, c.Clone())
	}
	for id, n := range v.model.unread {
		if n > 0 {
			st.Unread[id] = n
		}
	}
	if v.model.active != nil {
		c := v.model.active.Clone()
		st.Active = &c
	}
	if v.model.history != nil {
		c := v.model.history.Clone()
		st.History = &c
	}
	return st
}

func (v *AgentView) State() AgentState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stateLocked()
}

// Updates streams the state after every change, starting with the current one.
func (v *AgentView) Updates() (<-chan AgentState, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.subs.subscribe(v.stateLocked())
}

// Conversations lists the subscribed snapshot through f.
func (v *AgentView) Conversations(f Filter) []domain.Conversation {
	v.mu.Lock()
	defer v.mu.Unlock()
	return f.Apply(v.model.all, v.loc)
}

// Claim assigns the conversation to this agent and makes it active. Closed
// and canceled conversations are not reopened: the error is returned and
// the conversation is shown as read-only history instead.
func (v *AgentView) Claim(ctx context.Context, id string) (*domain.Conversation, error) {
	conv, err := v.repo.Transition(ctx, id, domain.StatusInProgress, &v.agent)
	if errors.Is(err, domain.ErrConversationCanceled) || errors.Is(err, domain.ErrConversationTerminal) {
		if herr := v.ViewHistory(ctx, id); herr != nil {
			v.logger.Warn("load conversation history", zap.String("conversation", id), zap.Error(herr))
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	v.dispatch(tabOpened{id: id})
	if err := v.Activate(ctx, id); err != nil {
		return nil, err
	}
	v.logger.Info("conversation claimed", zap.String("conversation", id))
	return conv, nil
}

// Activate switches the active conversation, resets its unread counter and
// marks its messages read.
func (v *AgentView) Activate(ctx context.Context, id string) error {
	if err := v.switchWatch(id); err != nil {
		return err
	}
	at := v.now().UTC()
	v.dispatch(activated{id: id, at: at})
	if _, err := v.repo.MarkReadBefore(ctx, id, at); err != nil {
		v.logger.Warn("mark conversation read", zap.String("conversation", id), zap.Error(err))
		return err
	}
	return nil
}

// Deactivate leaves no conversation active.
func (v *AgentView) Deactivate() {
	v.watchMu.Lock()
	v.stopWatchLocked()
	v.watchMu.Unlock()
	v.dispatch(deactivated{})
}

func (v *AgentView) switchWatch(id string) error {
	v.watchMu.Lock()
	defer v.watchMu.Unlock()
	v.stopWatchLocked()

	ctx, cancel := context.WithCancel(v.ctx)
	ch, err := v.repo.WatchOne(ctx, id)
	if err != nil {
		cancel()
		return err
	}
	done := make(chan struct{})
	v.watchCancel, v.watchDone = cancel, done
	go v.follow(ctx, ch, done)
	return nil
}

// stopWatchLocked cancels the active subscription and waits for it to end.
func (v *AgentView) stopWatchLocked() {
	if v.watchCancel == nil {
		return
	}
	v.watchCancel()
	<-v.watchDone
	v.watchCancel, v.watchDone = nil, nil
}

func (v *AgentView) follow(ctx context.Context, ch <-chan domain.Conversation, done chan struct{}) {
	defer close(done)
	for c := range ch {
		v.mu.Lock()
		v.model.reduce(activeSnapshot{conv: c})
		latest, unread := v.model.needsMarkRead()
		if c.ID != v.model.activeID {
			unread = false
		}
		v.subs.publish(v.stateLocked())
		v.mu.Unlock()

		if !unread {
			continue
		}
		if _, err := v.repo.MarkReadBefore(ctx, c.ID, latest); err != nil && ctx.Err() == nil {
			v.logger.Warn("mark conversation read", zap.String("conversation", c.ID), zap.Error(err))
		}
	}
}

// SendMessage appends text to the active conversation as the agent.
func (v *AgentView) SendMessage(ctx context.Context, text string) (*domain.Message, error) {
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
		Sender:       v.agent.Name,
		SenderAvatar: v.agent.Avatar,
		Text:         text,
	}
	v.dispatch(agentSent{convID: active, msg: msg})
	if err := v.repo.AppendMessage(ctx, active, msg); err != nil {
		v.dispatch(agentRetracted{convID: active, key: msg.Key()})
		return nil, err
	}
	return &msg, nil
}

// SendTemplateMessage renders the quick reply at index for the active
// customer and sends it.
func (v *AgentView) SendTemplateMessage(ctx context.Context, index int) (*domain.Message, error) {
	if index < 0 || index >= len(v.templates) {
		return nil, fmt.Errorf("%w: unknown template %d", domain.ErrInvalidInput, index)
	}
	v.mu.Lock()
	active := v.model.activeID
	var customer string
	if v.model.active != nil {
		customer = v.model.active.CustomerName
	} else if c, ok := v.model.conversation(active); ok {
		customer = c.CustomerName
	}
	v.mu.Unlock()
	if customer == "" && active != "" {
		if c, err := v.repo.Get(ctx, active); err == nil {
			customer = c.CustomerName
		}
	}
	return v.SendMessage(ctx, Render(v.templates[index], customer))
}

// RequestClose records the intent to close id; ConfirmClose applies it.
func (v *AgentView) RequestClose(id string) error {
	v.mu.Lock()
	_, known := v.model.conversation(id)
	if !known {
		known = v.model.hasTab(id)
	}
	v.mu.Unlock()
	if !known {
		return domain.ErrNotFound
	}
	v.dispatch(closeRequested{id: id})
	return nil
}

func (v *AgentView) DismissClose() {
	v.dispatch(closeDismissed{})
}

// ConfirmClose closes the conversation named by the pending request and
// drops its tab.
func (v *AgentView) ConfirmClose(ctx context.Context) (*domain.Conversation, error) {
	v.mu.Lock()
	id := v.model.closing
	wasActive := id != "" && id == v.model.activeID
	v.mu.Unlock()
	if id == "" {
		return nil, fmt.Errorf("%w: no close requested", domain.ErrInvalidInput)
	}
	conv, err := v.repo.Transition(ctx, id, domain.StatusClosed, nil)
	if err != nil {
		return nil, err
	}
	if wasActive {
		v.watchMu.Lock()
		v.stopWatchLocked()
		v.watchMu.Unlock()
	}
	v.dispatch(closed{id: id})
	v.logger.Info("conversation closed", zap.String("conversation", id))
	return conv, nil
}

// ViewHistory shows a conversation read-only without claiming it.
func (v *AgentView) ViewHistory(ctx context.Context, id string) error {
	conv, err := v.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	v.dispatch(historyShown{conv: *conv})
	return nil
}

func (v *AgentView) CloseHistory() {
	v.dispatch(historyHidden{})
}
