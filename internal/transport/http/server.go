package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-irc/internal/config"
	"github.com/vovakirdan/wirechat-irc/internal/core"
	"github.com/vovakirdan/wirechat-irc/internal/store"
)

// NewServer builds the admin API and the IRC-over-WebSocket endpoint.
// st may be nil when message logging is disabled. /ws is mounted on the
// outer mux so the upgrade bypasses gin's response writer.
func NewServer(hub *core.Hub, st store.Store, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", healthHandler)

	channels := NewChannelHandlers(hub, st, logger)
	api := router.Group("/api")
	{
		api.GET("/channels", channels.ListChannels)
		api.GET("/channels/:name", channels.GetChannel)
		api.GET("/channels/:name/messages", channels.ListMessages)
	}

	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(hub, cfg.SendQueueSize, logger))
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
