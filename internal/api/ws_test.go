package api

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/songparty/internal/domain"
	"github.com/victornm/songparty/internal/game"
	"github.com/victornm/songparty/internal/store"
)

func TestPushRoom_WriteFailureStopsReader(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	t.Cleanup(func() { rc.Close() })

	st := store.NewRedis(store.Config{Redis: rc, Prefix: "test"})
	require.NoError(t, st.Create(context.Background(), &domain.Room{
		RoomID:  "AB12",
		Phase:   domain.PhaseLobby,
		Players: map[string]domain.Player{"host": {ID: "host", Name: "Host", IsHost: true}},
	}))

	a := &API{game: game.NewService(game.Config{Store: st})}

	done := make(chan error, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Error(err)
			done <- nil
			return
		}
		defer conn.Close()

		// Every write to the client fails from here on, while the client stays connected.
		if err := conn.UnderlyingConn().(*net.TCPConn).CloseWrite(); err != nil {
			t.Error(err)
			done <- nil
			return
		}

		done <- a.pushRoom(r.Context(), conn, "AB12", "")
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("pushRoom kept waiting on a client that is still connected")
	}
}
