package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-irc/internal/core"
	"github.com/vovakirdan/wirechat-irc/internal/utils"
)

// WSHandler upgrades HTTP connections and bridges them to core.Client.
// Each text frame carries one or more IRC lines; outbound frames carry one
// line without the CRLF terminator.
type WSHandler struct {
	hub       *core.Hub
	queueSize int
	log       *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, queueSize int, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{hub: hub, queueSize: queueSize, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
		Subprotocols:       []string{"text.ircv3.net"},
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	client := core.NewClient(utils.NewID(), host, h.queueSize)
	h.log.Debug().
		Str("client_id", client.ID()).
		Str("remote", r.RemoteAddr).
		Str("user_agent", r.UserAgent()).
		Msg("ws connection accepted")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	select {
	case <-client.Done():
		// QUIT: the writer drains the queue and exits on its own
	default:
		cancel()
	}
	<-errCh

	select {
	case <-client.Done():
	default:
		h.hub.Disconnect(client, "Connection closed")
	}

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("client_id", client.ID()).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			h.log.Debug().Err(err).Str("client_id", client.ID()).Msg("read ws frame")
			return err
		}
		if typ != websocket.MessageText {
			continue
		}
		for _, line := range strings.Split(string(data), "\n") {
			h.hub.HandleLine(ctx, client, line)
		}
		select {
		case <-client.Done():
			return nil
		default:
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	write := func(line string) error {
		return conn.Write(ctx, websocket.MessageText, []byte(strings.TrimRight(line, "\r\n")))
	}
	for {
		select {
		case line := <-client.Outbox():
			if err := write(line); err != nil {
				h.log.Error().Err(err).Str("client_id", client.ID()).Msg("write ws frame")
				return err
			}
		case <-client.Done():
			for pending := len(client.Outbox()); pending > 0; pending-- {
				if err := write(<-client.Outbox()); err != nil {
					return err
				}
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
