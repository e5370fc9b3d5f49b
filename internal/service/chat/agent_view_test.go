package chat

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ourofino-storefront/internal/domain"
	"ourofino-storefront/internal/repository/conversation"
)

var agent = domain.Participant{ID: "agent_1", Name: "Agente Ana", Avatar: "https://img/ana.png"}

func newAgentView(t *testing.T, repo conversation.Repository) *AgentView {
	t.Helper()
	templates, err := LoadTemplates("")
	require.NoError(t, err)
	v, err := NewAgentView(context.Background(), repo, agent, templates, time.UTC, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(v.Close)
	return v
}

func openConversation(t *testing.T, repo conversation.Repository, status domain.ConversationStatus) *domain.Conversation {
	t.Helper()
	c, err := repo.Create(context.Background(), domain.Conversation{
		CustomerID:   customer.ID,
		CustomerName: customer.Name,
		Status:       status,
		CreatedAt:    time.Now().UTC(),
	})
	require.NoError(t, err)
	return c
}

func customerSays(t *testing.T, repo conversation.Repository, convID, text string) {
	t.Helper()
	require.NoError(t, repo.AppendMessage(context.Background(), convID, domain.Message{
		ID:        text,
		Timestamp: time.Now().UTC(),
		Sender:    customer.Name,
		Text:      text,
	}))
}

func allRead(c *domain.Conversation) bool {
	for _, m := range c.Messages {
		if !m.Read {
			return false
		}
	}
	return true
}

func TestAgentModel_UnreadCounter(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("unread equals customer messages since the last reset", prop.ForAll(
		func(customerMsgs, agentMsgs, repeats int) bool {
			m := newAgentModel(agent.Name)
			base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
			conv := domain.Conversation{ID: "c1", CustomerName: customer.Name, Status: domain.StatusInProgress}
			other := domain.Conversation{ID: "c2", Status: domain.StatusOpen}

			m.reduce(agentFeed{list: []domain.Conversation{conv, other}})
			m.reduce(activated{id: other.ID, at: base})

			ts := base
			for i := 0; i < customerMsgs+agentMsgs; i++ {
				ts = ts.Add(time.Second)
				sender := customer.Name
				if i < agentMsgs {
					sender = agent.Name
				}
				conv.Messages = append(conv.Messages, domain.Message{ID: strconv.Itoa(i), Timestamp: ts, Sender: sender})
				for r := 0; r <= repeats; r++ {
					m.reduce(agentFeed{list: []domain.Conversation{conv.Clone(), other}})
				}
			}
			if m.unread[conv.ID] != customerMsgs {
				return false
			}

			m.reduce(activated{id: conv.ID, at: ts.Add(time.Second)})
			if m.unread[conv.ID] != 0 {
				return false
			}
			for i := range conv.Messages {
				conv.Messages[i].Read = true
			}
			m.reduce(agentFeed{list: []domain.Conversation{conv.Clone(), other}})
			if m.unread[conv.ID] != 0 {
				return false
			}

			// Leaving the conversation starts a fresh count.
			m.reduce(activated{id: other.ID, at: ts.Add(2 * time.Second)})
			conv.Messages = append(conv.Messages, domain.Message{ID: "late", Timestamp: ts.Add(3 * time.Second), Sender: customer.Name})
			m.reduce(agentFeed{list: []domain.Conversation{conv.Clone(), other}})
			return m.unread[conv.ID] == 1
		},
		gen.IntRange(0, 15),
		gen.IntRange(0, 5),
		gen.IntRange(0, 3),
	))

	properties.TestingRun(t)
}

func TestAgentModel_BookkeepingStaysBounded(t *testing.T) {
	m := newAgentModel(agent.Name)
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	msgs := func(n int) []domain.Message {
		out := make([]domain.Message, n)
		for i := range out {
			out[i] = domain.Message{ID: strconv.Itoa(i), Timestamp: base.Add(time.Duration(i+1) * time.Second), Sender: customer.Name}
		}
		return out
	}
	live := domain.Conversation{ID: "live", Status: domain.StatusInProgress, Messages: msgs(3)}
	done := domain.Conversation{ID: "done", Status: domain.StatusClosed, Messages: msgs(4)}
	for i := range done.Messages {
		done.Messages[i].Read = true
	}
	dropped := domain.Conversation{ID: "dropped", Status: domain.StatusOpen, Messages: msgs(2)}

	m.reduce(agentFeed{list: []domain.Conversation{live, done, dropped}})
	assert.Len(t, m.counted["live"], 3)
	assert.NotContains(t, m.counted, "done", "closed with nothing unread is settled")
	assert.Contains(t, m.settled, "done")
	assert.Equal(t, 2, m.unread["dropped"])

	m.reduce(agentFeed{list: []domain.Conversation{live, done}})
	assert.NotContains(t, m.counted, "dropped")
	assert.NotContains(t, m.unread, "dropped")
	assert.Equal(t, 3, m.unread["live"], "repeated snapshots never recount")

	m.reduce(activated{id: "live", at: base.Add(time.Minute)})
	live.Status = domain.StatusClosed
	m.reduce(deactivated{})
	m.reduce(agentFeed{list: []domain.Conversation{live, done}})
	assert.Empty(t, m.counted)
	assert.Zero(t, m.unread["live"])
	assert.True(t, m.hasTab("live"))

	m.reduce(closed{id: "live"})
	m.reduce(agentFeed{list: nil})
	assert.Empty(t, m.settled)
	assert.Empty(t, m.unread)
	assert.Empty(t, m.lastChecked)
}

func TestAgentView_UnreadThenClaim(t *testing.T) {
	ctx := context.Background()
	repo := conversation.NewMemory()
	conv := openConversation(t, repo, domain.StatusOpen)
	for _, text := range []string{"oi", "alguém aí?", "preciso de ajuda"} {
		customerSays(t, repo, conv.ID, text)
	}

	v := newAgentView(t, repo)
	waitFor(t, func() bool { return v.State().Unread[conv.ID] == 3 })

	claimed, err := v.Claim(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, claimed.Status)
	require.NotNil(t, claimed.AgentName)
	assert.Equal(t, agent.Name, *claimed.AgentName)

	st := v.State()
	assert.Equal(t, conv.ID, st.ActiveID)
	assert.Equal(t, []string{conv.ID}, st.OpenTabs)
	assert.Zero(t, st.Unread[conv.ID])
	assert.True(t, allRead(mustGet(t, repo, conv.ID)))

	// Messages arriving while the conversation is active are read at once.
	customerSays(t, repo, conv.ID, "obrigada")
	waitFor(t, func() bool { return allRead(mustGet(t, repo, conv.ID)) })
	waitFor(t, func() bool {
		st := v.State()
		return st.Active != nil && len(st.Active.Messages) == 4
	})
	assert.Zero(t, v.State().Unread[conv.ID])
}

func TestAgentView_ClaimTerminalShowsHistory(t *testing.T) {
	ctx := context.Background()
	repo := conversation.NewMemory()
	canceled := openConversation(t, repo, domain.StatusCanceled)
	closedConv := openConversation(t, repo, domain.StatusClosed)
	v := newAgentView(t, repo)

	_, err := v.Claim(ctx, canceled.ID)
	assert.ErrorIs(t, err, domain.ErrConversationCanceled)
	st := v.State()
	require.NotNil(t, st.History)
	assert.Equal(t, canceled.ID, st.History.ID)
	assert.Empty(t, st.OpenTabs)
	assert.Empty(t, st.ActiveID)
	assert.Equal(t, domain.StatusCanceled, mustGet(t, repo, canceled.ID).Status)

	_, err = v.Claim(ctx, closedConv.ID)
	assert.ErrorIs(t, err, domain.ErrConversationTerminal)
	assert.Equal(t, closedConv.ID, v.State().History.ID)
	assert.Equal(t, domain.StatusClosed, mustGet(t, repo, closedConv.ID).Status)

	v.CloseHistory()
	assert.Nil(t, v.State().History)
}

func TestAgentView_SwitchingTearsDownSubscription(t *testing.T) {
	ctx := context.Background()
	repo := conversation.NewMemory()
	a := openConversation(t, repo, domain.StatusOpen)
	b := openConversation(t, repo, domain.StatusOpen)

	templates, err := LoadTemplates("")
	require.NoError(t, err)
	v, err := NewAgentView(ctx, repo, agent, templates, time.UTC, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = v.Claim(ctx, a.ID)
	require.NoError(t, err)
	_, err = v.Claim(ctx, b.ID)
	require.NoError(t, err)
	waitFor(t, func() bool { return repo.WatcherCount() == 2 })
	assert.Equal(t, []string{a.ID, b.ID}, v.State().OpenTabs)

	require.NoError(t, v.Activate(ctx, a.ID))
	waitFor(t, func() bool { return repo.WatcherCount() == 2 })

	v.Deactivate()
	waitFor(t, func() bool { return repo.WatcherCount() == 1 })

	v.Close()
	waitFor(t, func() bool { return repo.WatcherCount() == 0 })
}

func TestAgentView_TemplatesAndTwoStepClose(t *testing.T) {
	ctx := context.Background()
	repo := conversation.NewMemory()
	conv := openConversation(t, repo, domain.StatusOpen)
	v := newAgentView(t, repo)
	waitFor(t, func() bool { return len(v.State().Conversations) == 1 })

	_, err := v.SendMessage(ctx, "oi")
	assert.ErrorIs(t, err, domain.ErrNoActiveConversation)

	_, err = v.Claim(ctx, conv.ID)
	require.NoError(t, err)

	msg, err := v.SendTemplateMessage(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "Olá Maria Silva, como posso ajudar você hoje?", msg.Text)
	assert.Equal(t, agent.Name, msg.Sender)
	stored := mustGet(t, repo, conv.ID)
	require.Len(t, stored.Messages, 1)
	assert.Equal(t, msg.Text, stored.Messages[0].Text)

	_, err = v.SendTemplateMessage(ctx, 99)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = v.ConfirmClose(ctx)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	require.NoError(t, v.RequestClose(conv.ID))
	assert.Equal(t, conv.ID, v.State().PendingClose)
	v.DismissClose()
	assert.Empty(t, v.State().PendingClose)
	assert.Equal(t, domain.StatusInProgress, mustGet(t, repo, conv.ID).Status)

	require.NoError(t, v.RequestClose(conv.ID))
	closedConv, err := v.ConfirmClose(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, closedConv.Status)
	assert.False(t, closedConv.AgentActive)

	st := v.State()
	assert.Empty(t, st.OpenTabs)
	assert.Empty(t, st.ActiveID)
	assert.Empty(t, st.PendingClose)

	_, err = v.Claim(ctx, conv.ID)
	assert.ErrorIs(t, err, domain.ErrConversationTerminal)
	assert.ErrorIs(t, v.RequestClose("missing"), domain.ErrNotFound)
}

func TestAgentView_Conversations(t *testing.T) {
	repo := conversation.NewMemory()
	openConversation(t, repo, domain.StatusOpen)
	openConversation(t, repo, domain.StatusClosed)
	v := newAgentView(t, repo)

	waitFor(t, func() bool { return len(v.State().Conversations) == 2 })
	assert.Len(t, v.Conversations(Filter{Status: domain.StatusClosed}), 1)
	assert.Len(t, v.Conversations(Filter{Name: "maria"}), 2)
	assert.Empty(t, v.Conversations(Filter{Name: "joão"}))
}
