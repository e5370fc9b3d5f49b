package httpserver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ourofino-storefront/internal/domain"
	"ourofino-storefront/internal/repository/settings"
	chatsvc "ourofino-storefront/internal/service/chat"
)

const (
	anonymousCookie = "anonymous_id"
	syncTimeout     = 3 * time.Second
	heartbeat       = 25 * time.Second
)

type messageRequest struct {
	Text           string `json:"text" binding:"required"`
	ConversationID string `json:"conversationId"`
}

type templateRequest struct {
	Index *int `json:"index" binding:"required"`
}

// anonymousID returns the visitor id from the anonymous cookie, issuing a new
// token when the cookie is missing or no longer valid.
func (h *handlers) anonymousID(c *gin.Context) string {
	if h.deps.Anonymous == nil {
		return ""
	}
	ctx := c.Request.Context()
	if token, err := c.Cookie(anonymousCookie); err == nil && token != "" {
		if id, err := h.deps.Anonymous.LookupByToken(ctx, token); err == nil {
			return id
		}
	}
	token, id, err := h.deps.Anonymous.Issue(ctx)
	if err != nil {
		h.logger.Warn("issue anonymous token", zap.Error(err))
		return ""
	}
	h.setCookie(c, anonymousCookie, token, h.deps.Anonymous.TTLSeconds())
	return id
}

func (h *handlers) customerViewer(c *gin.Context) (domain.Participant, error) {
	id := currentIdentity(c)
	var anonymous string
	if id == nil {
		anonymous = h.anonymousID(c)
	}
	loginRequired := h.opts.ChatLoginRequired
	if h.deps.Settings != nil {
		loginRequired = settings.LoginRequired(c.Request.Context(), h.deps.Settings, loginRequired, h.logger)
	}
	return chatsvc.ResolveViewer(id, anonymous, loginRequired)
}

func agentOf(id *domain.Identity) domain.Participant {
	return domain.Participant{ID: id.UserID, Name: id.DisplayName(), Avatar: id.ImageURL}
}

func waitSynced(ctx context.Context, synced <-chan struct{}) {
	ctx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()
	select {
	case <-synced:
	case <-ctx.Done():
	}
}

// withCustomerView runs fn against the caller's live view, holding a
// reference to it for the duration of the call.
func (h *handlers) withCustomerView(c *gin.Context, fn func(v *chatsvc.CustomerView)) {
	viewer, err := h.customerViewer(c)
	if err != nil {
		writeError(c, err)
		return
	}
	view, release, err := h.deps.Chat.Customer(viewer)
	if err != nil {
		writeError(c, err)
		return
	}
	defer release()
	waitSynced(c.Request.Context(), view.Synced())
	fn(view)
}

func (h *handlers) withAgentView(c *gin.Context, fn func(v *chatsvc.AgentView)) {
	view, release, err := h.deps.Chat.Agent(agentOf(currentIdentity(c)))
	if err != nil {
		writeError(c, err)
		return
	}
	defer release()
	waitSynced(c.Request.Context(), view.Synced())
	fn(view)
}

// stream relays state updates as server-sent events until the client leaves
// or the view closes.
func stream[T any](c *gin.Context, updates <-chan T) {
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(w io.Writer) bool {
		select {
		case st, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent("state", st)
			return true
		case <-ticker.C:
			c.SSEvent("ping", time.Now().UTC().Format(time.RFC3339))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (h *handlers) customerStream(c *gin.Context) {
	h.withCustomerView(c, func(v *chatsvc.CustomerView) {
		updates, unsubscribe := v.Updates()
		defer unsubscribe()
		stream(c, updates)
	})
}

func (h *handlers) customerState(c *gin.Context) {
	h.withCustomerView(c, func(v *chatsvc.CustomerView) {
		c.JSON(http.StatusOK, v.State())
	})
}

func (h *handlers) chatSuggestions(c *gin.Context) {
	if h.deps.Settings == nil {
		c.JSON(http.StatusOK, gin.H{"results": []settings.DefaultMessage{}})
		return
	}
	msgs, err := h.deps.Settings.DefaultMessages(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": msgs})
}

func (h *handlers) startChat(c *gin.Context) {
	h.withCustomerView(c, func(v *chatsvc.CustomerView) {
		conv, err := v.StartNewChat(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, conv)
	})
}

func (h *handlers) selectChat(c *gin.Context) {
	h.withCustomerView(c, func(v *chatsvc.CustomerView) {
		if err := v.Select(c.Param("id")); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, v.State())
	})
}

func (h *handlers) cancelChat(c *gin.Context) {
	h.withCustomerView(c, func(v *chatsvc.CustomerView) {
		if err := v.CancelConversation(c.Request.Context(), c.Param("id")); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, v.State())
	})
}

func (h *handlers) customerMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "message text required")
		return
	}
	h.withCustomerView(c, func(v *chatsvc.CustomerView) {
		if req.ConversationID != "" {
			if err := v.Select(req.ConversationID); err != nil {
				writeError(c, err)
				return
			}
		}
		msg, err := v.SendMessage(c.Request.Context(), req.Text)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, msg)
	})
}

func (h *handlers) agentStream(c *gin.Context) {
	h.withAgentView(c, func(v *chatsvc.AgentView) {
		updates, unsubscribe := v.Updates()
		defer unsubscribe()
		stream(c, updates)
	})
}

// agentConversations filters by ?status=, ?name= and ?date=YYYY-MM-DD.
func (h *handlers) agentConversations(c *gin.Context) {
	var f chatsvc.Filter
	if s := c.Query("status"); s != "" {
		status, ok := domain.ParseConversationStatus(s)
		if !ok {
			badRequest(c, "invalid status")
			return
		}
		f.Status = status
	}
	f.Name = c.Query("name")
	if d := c.Query("date"); d != "" {
		day, err := time.Parse(time.DateOnly, d)
		if err != nil {
			badRequest(c, "invalid date")
			return
		}
		f.Date = day
	}
	h.withAgentView(c, func(v *chatsvc.AgentView) {
		c.JSON(http.StatusOK, gin.H{"results": v.Conversations(f), "unread": v.State().Unread})
	})
}

func (h *handlers) agentTemplates(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"results": h.deps.Chat.Templates()})
}

func (h *handlers) claimChat(c *gin.Context) {
	h.withAgentView(c, func(v *chatsvc.AgentView) {
		conv, err := v.Claim(c.Request.Context(), c.Param("id"))
		if errors.Is(err, domain.ErrConversationCanceled) || errors.Is(err, domain.ErrConversationTerminal) {
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error(), "history": v.State().History})
			return
		}
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, conv)
	})
}

func (h *handlers) activateChat(c *gin.Context) {
	h.withAgentView(c, func(v *chatsvc.AgentView) {
		if err := v.Activate(c.Request.Context(), c.Param("id")); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, v.State())
	})
}

func (h *handlers) showHistory(c *gin.Context) {
	h.withAgentView(c, func(v *chatsvc.AgentView) {
		if err := v.ViewHistory(c.Request.Context(), c.Param("id")); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, v.State().History)
	})
}

func (h *handlers) hideHistory(c *gin.Context) {
	h.withAgentView(c, func(v *chatsvc.AgentView) {
		v.CloseHistory()
		c.Status(http.StatusNoContent)
	})
}

func (h *handlers) agentMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "message text required")
		return
	}
	h.withAgentView(c, func(v *chatsvc.AgentView) {
		if req.ConversationID != "" && req.ConversationID != v.State().ActiveID {
			if err := v.Activate(c.Request.Context(), req.ConversationID); err != nil {
				writeError(c, err)
				return
			}
		}
		msg, err := v.SendMessage(c.Request.Context(), req.Text)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, msg)
	})
}

func (h *handlers) agentTemplateMessage(c *gin.Context) {
	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "template index required")
		return
	}
	h.withAgentView(c, func(v *chatsvc.AgentView) {
		msg, err := v.SendTemplateMessage(c.Request.Context(), *req.Index)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, msg)
	})
}

func (h *handlers) requestClose(c *gin.Context) {
	h.withAgentView(c, func(v *chatsvc.AgentView) {
		if err := v.RequestClose(c.Param("id")); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"pendingClose": c.Param("id")})
	})
}

func (h *handlers) dismissClose(c *gin.Context) {
	h.withAgentView(c, func(v *chatsvc.AgentView) {
		v.DismissClose()
		c.Status(http.StatusNoContent)
	})
}

func (h *handlers) confirmClose(c *gin.Context) {
	h.withAgentView(c, func(v *chatsvc.AgentView) {
		conv, err := v.ConfirmClose(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, conv)
	})
}
