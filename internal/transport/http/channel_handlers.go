package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/wirechat-irc/internal/core"
	"github.com/vovakirdan/wirechat-irc/internal/store"
)

// ChannelHandlers exposes read-only channel state.
type ChannelHandlers struct {
	hub   *core.Hub
	store store.Store
	log   *zerolog.Logger
}

// NewChannelHandlers creates a new channel handlers instance.
func NewChannelHandlers(hub *core.Hub, st store.Store, logger *zerolog.Logger) *ChannelHandlers {
	return &ChannelHandlers{
		hub:   hub,
		store: st,
		log:   logger,
	}
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ChannelSummary is a channel in list responses.
type ChannelSummary struct {
	Name    string `json:"name"`
	Topic   string `json:"topic"`
	Modes   string `json:"modes"`
	Members int    `json:"members"`
}

// ChannelResponse is the detailed view of a channel.
type ChannelResponse struct {
	Name      string   `json:"name"`
	Topic     string   `json:"topic"`
	TopicBy   string   `json:"topic_by,omitempty"`
	TopicAt   string   `json:"topic_at,omitempty"`
	Modes     string   `json:"modes"`
	Members   []string `json:"members"`
	Operators []string `json:"operators"`
	Invitees  []string `json:"invitees"`
	Bot       string   `json:"bot,omitempty"`
	CreatedAt string   `json:"created_at"`
}

// MessageResponse is a logged message.
type MessageResponse struct {
	ID        int64  `json:"id"`
	Sender    string `json:"sender"`
	Kind      string `json:"kind"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at"`
}

// ListChannels returns every active channel.
// GET /api/channels
func (h *ChannelHandlers) ListChannels(c *gin.Context) {
	resp := lo.Map(h.hub.Channels(), func(info core.Info, _ int) ChannelSummary {
		return ChannelSummary{
			Name:    info.Name,
			Topic:   info.Topic,
			Modes:   info.Modes,
			Members: len(info.Members),
		}
	})
	c.JSON(http.StatusOK, resp)
}

// GetChannel returns a channel's members, operators and modes.
// GET /api/channels/:name
func (h *ChannelHandlers) GetChannel(c *gin.Context) {
	ch, ok := h.hub.Lookup(channelParam(c))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "channel not found"})
		return
	}

	info := ch.Info()
	resp := ChannelResponse{
		Name:      info.Name,
		Topic:     info.Topic,
		TopicBy:   info.TopicBy,
		Modes:     info.Modes,
		Members:   nonNil(info.Members),
		Operators: nonNil(info.Operators),
		Invitees:  nonNil(info.Invitees),
		Bot:       info.Bot,
		CreatedAt: info.CreatedAt.Format(time.RFC3339),
	}
	if !info.TopicAt.IsZero() {
		resp.TopicAt = info.TopicAt.Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}

// ListMessages returns recently logged messages for a channel.
// GET /api/channels/:name/messages?limit=50
func (h *ChannelHandlers) ListMessages(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "message log disabled"})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}

	name := channelParam(c)
	if ch, ok := h.hub.Lookup(name); ok {
		name = ch.Name()
	}

	msgs, err := h.store.RecentMessages(c.Request.Context(), name, limit)
	if err != nil {
		h.log.Error().Err(err).Str("channel", name).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	resp := lo.Map(msgs, func(m store.Message, _ int) MessageResponse {
		return MessageResponse{
			ID:        m.ID,
			Sender:    m.Sender,
			Kind:      string(m.Kind),
			Body:      m.Body,
			CreatedAt: m.CreatedAt.Format(time.RFC3339),
		}
	})
	c.JSON(http.StatusOK, resp)
}

// channelParam restores the leading '#', which clients usually cannot put in a path.
func channelParam(c *gin.Context) string {
	name := c.Param("name")
	if name != "" && !strings.ContainsRune("#&+!", rune(name[0])) {
		name = "#" + name
	}
	return name
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
