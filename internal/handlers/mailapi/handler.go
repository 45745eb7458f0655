package mailapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"neuromail-go/internal/feed"
	"neuromail-go/internal/handlers/common"
	"neuromail-go/internal/mail"
	"neuromail-go/internal/mailbox"

	"github.com/gin-gonic/gin"
)

const (
	defaultWait = 5 * time.Second
	maxWait     = 60 * time.Second
)

// Handler serves the public mail API.
type Handler struct {
	svc     *mailbox.Service
	feed    *feed.Broadcaster
	origins []string
}

// New builds the handler. feed may be nil, in which case /feed is not served.
func New(svc *mailbox.Service, broadcaster *feed.Broadcaster, allowedOrigins []string) *Handler {
	return &Handler{svc: svc, feed: broadcaster, origins: allowedOrigins}
}

// Register mounts the routes on rg.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/inboxes", h.createInbox)
	rg.GET("/inboxes", h.listInboxes)
	rg.DELETE("/inboxes/:id", h.deleteInbox)
	rg.GET("/inboxes/:id/emails", h.listEmails)
	rg.POST("/inboxes/:id/send", h.sendEmail)
	rg.GET("/inboxes/:id/wait", h.waitForEmail)
	rg.POST("/inboxes/:id/watch", h.watch)
	rg.DELETE("/inboxes/:id/watch", h.unwatch)
	rg.GET("/emails/:id", h.getEmail)
	rg.DELETE("/emails/:id", h.deleteEmail)
	rg.GET("/attachments/:id", h.getAttachment)
	rg.GET("/connection", h.connection)
	rg.GET("/stats", h.stats)
	if h.feed != nil {
		rg.GET("/feed", gin.WrapH(h.feed.Handler(h.origins)))
	}
}

type createInboxRequest struct {
	Name          string                 `json:"name"`
	Description   string                 `json:"description"`
	ExpiresInSecs int                    `json:"expiresInSeconds"`
	Options       map[string]interface{} `json:"options"`
}

func (h *Handler) createInbox(c *gin.Context) {
	var req createInboxRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			common.BadRequest(c, "invalid JSON body: "+err.Error())
			return
		}
	}
	if req.ExpiresInSecs < 0 {
		common.BadRequest(c, "expiresInSeconds must not be negative")
		return
	}
	opts := mail.CreateInboxOptions{Name: req.Name, Description: req.Description, Extra: req.Options}
	if req.ExpiresInSecs > 0 {
		opts.ExpiresAt = time.Now().Add(time.Duration(req.ExpiresInSecs) * time.Second)
	}

	inbox, err := h.svc.CreateInbox(c.Request.Context(), opts)
	if err != nil {
		common.AbortWithUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusCreated, inbox)
}

func (h *Handler) listInboxes(c *gin.Context) {
	inboxes, err := h.svc.Inboxes(c.Request.Context())
	if err != nil {
		common.AbortWithUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"inboxes": inboxes, "count": len(inboxes)})
}

func (h *Handler) deleteInbox(c *gin.Context) {
	if err := h.svc.DeleteInbox(c.Request.Context(), c.Param("id")); err != nil {
		common.AbortWithUpstreamError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listEmails(c *gin.Context) {
	force, _ := strconv.ParseBool(c.DefaultQuery("refresh", "false"))
	emails, err := h.svc.Emails(c.Request.Context(), c.Param("id"), force)
	if err != nil {
		common.AbortWithUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"emails": emails, "count": len(emails)})
}

func (h *Handler) sendEmail(c *gin.Context) {
	var req mail.SendOptions
	if err := c.ShouldBindJSON(&req); err != nil {
		common.BadRequest(c, "invalid JSON body: "+err.Error())
		return
	}
	if len(req.To) == 0 {
		common.BadRequest(c, "at least one recipient is required")
		return
	}
	reply, err := h.svc.SendEmail(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		common.AbortWithUpstreamError(c, err)
		return
	}
	if len(reply) == 0 {
		c.JSON(http.StatusAccepted, gin.H{"sent": true})
		return
	}
	c.Data(http.StatusAccepted, "application/json", reply)
}

func (h *Handler) waitForEmail(c *gin.Context) {
	timeout := defaultWait
	if raw := c.Query("timeout"); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms <= 0 {
			common.BadRequest(c, "timeout must be a positive number of milliseconds")
			return
		}
		timeout = time.Duration(ms) * time.Millisecond
		if timeout > maxWait {
			timeout = maxWait
		}
	}
	email, err := h.svc.WaitForEmail(c.Request.Context(), c.Param("id"), timeout)
	if err != nil {
		common.AbortWithUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, email)
}

func (h *Handler) watch(c *gin.Context) {
	id := c.Param("id")
	if err := h.svc.Watch(c.Request.Context(), id); err != nil {
		common.AbortWithUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"watching": h.svc.Watched()})
}

func (h *Handler) unwatch(c *gin.Context) {
	h.svc.Unwatch(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"watching": h.svc.Watched()})
}

func (h *Handler) getEmail(c *gin.Context) {
	email, err := h.svc.Email(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.AbortWithUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, email)
}

func (h *Handler) deleteEmail(c *gin.Context) {
	if err := h.svc.DeleteEmail(c.Request.Context(), c.Param("id")); err != nil {
		common.AbortWithUpstreamError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getAttachment(c *gin.Context) {
	id := c.Param("id")
	att, err := h.svc.Attachment(c.Request.Context(), id)
	if err != nil {
		common.AbortWithUpstreamError(c, err)
		return
	}
	name := att.Filename(sanitizeFilename(c.DefaultQuery("name", id)))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, att.ContentType, att.Data)
}

func (h *Handler) connection(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Connection(c.Request.Context()))
}

func (h *Handler) stats(c *gin.Context) {
	out := gin.H{"mailbox": h.svc.Stats()}
	if h.feed != nil {
		out["feedClients"] = h.feed.ConnectionCount()
	}
	c.JSON(http.StatusOK, out)
}

func sanitizeFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '"', '\r', '\n':
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	if name == "" {
		return "attachment"
	}
	return name
}
