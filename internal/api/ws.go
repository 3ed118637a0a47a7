package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/songparty/internal/domain"
	"github.com/victornm/songparty/internal/errors"
	"github.com/victornm/songparty/internal/game"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// watchRoom pushes the caller's view of the room on every change. Browsers cannot set headers on a
// websocket handshake, so the identity token comes in the token query parameter.
func (a *API) watchRoom(c *gin.Context) {
	code := c.Param("code")

	viewer := ""
	if id, err := a.tokens.Verify(c.Query("token")); err == nil && id.RoomID == code {
		viewer = id.PlayerID
	}

	// Fail before the upgrade so the client gets a regular error response.
	if _, err := a.game.GetRoom(c.Request.Context(), game.GetRoomRequest{RoomID: code}); err != nil {
		abort(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.WarnContext(c.Request.Context(), "api: websocket upgrade failed", "room", code, "error", err)
		return
	}
	defer conn.Close()

	err = a.pushRoom(c.Request.Context(), conn, code, viewer)
	if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		slog.InfoContext(c.Request.Context(), "api: websocket closed", "room", code, "error", err)
	}
}

func (a *API) pushRoom(ctx context.Context, conn *websocket.Conn, code, viewer string) error {
	var (
		cache  game.Cache
		notify = make(chan struct{}, 1)
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	unsubscribe, err := a.game.Watch(ctx, code, func(r *domain.Room) {
		if !cache.Store(r) {
			return
		}
		select {
		case notify <- struct{}{}:
		default:
		}
	})
	if err != nil {
		e := errors.Convert(err)
		msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, e.Message)
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteTimeout))
		return err
	}
	defer unsubscribe()

	eg, ctx := errgroup.WithContext(ctx)

	// The client only sends control frames; reading surfaces its close.
	eg.Go(func() error {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return err
			}
		}
	})

	eg.Go(func() error {
		ping := time.NewTicker(wsPingInterval)
		defer ping.Stop()
		// unblock the reader however the writer stops
		defer func() { _ = conn.SetReadDeadline(time.Now()) }()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
					return err
				}
			case <-notify:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteJSON(game.View(cache.Load(), viewer)); err != nil {
					return err
				}
			}
		}
	})

	return eg.Wait()
}
