package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"

	"github.com/victornm/songparty/internal/errors"
	"github.com/victornm/songparty/internal/game"
	"github.com/victornm/songparty/internal/identity"
	"github.com/victornm/songparty/internal/telemetry"
)

const (
	qrSize      = 256
	identityKey = "identity"
)

func (a *API) registerHTTP(e *gin.Engine, allowOrigins []string) {
	e.Use(gin.CustomRecovery(recovery))

	if len(allowOrigins) > 0 {
		e.Use(cors.New(cors.Config{
			AllowOrigins: allowOrigins,
			AllowMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowHeaders: []string{"Content-Type", "Authorization"},
			MaxAge:       12 * time.Hour,
		}))
	}

	g := e.Group("/api")
	g.POST("/rooms", a.handle(createRoom))
	g.POST("/rooms/:code/players", a.optionalAuth, a.handle(joinRoom))
	g.GET("/rooms/:code", a.optionalAuth, a.handle(getRoom))
	g.GET("/rooms/:code/qr.png", a.joinQR)

	room := g.Group("/rooms/:code", a.requireAuth)
	room.POST("/start", a.handle(startGame))
	room.POST("/submissions/open", a.handle(openSubmissions))
	room.POST("/submissions", a.handle(submitSong))
	room.POST("/listening", a.handle(forceListening))
	room.POST("/tracks/next", a.handle(nextTrack))
	room.POST("/tracks/play", a.handle(playTrack))
	room.POST("/guesses", a.handle(submitGuess))
	room.POST("/voting/finalize", a.handle(finalizeVoting))
	room.POST("/reveals/next", a.handle(nextReveal))
	room.POST("/reveals/announce", a.handle(announceReveal))
	room.POST("/rounds/next", a.handle(nextRound))
	room.GET("/leaderboard", a.handle(getLeaderboard))
	room.GET("/history", a.handle(listHistory))
	room.PUT("/credential", a.handle(setCredential))

	g.GET("/search", a.requireAuth, a.searchQuery, a.handle(search))
	g.GET("/devices", a.requireAuth, a.handle(listDevices))
	g.POST("/devices/:id/transfer", a.requireAuth, a.deviceParam, a.handle(transferPlayback))

	e.GET("/ws/rooms/:code", a.watchRoom)
}

// handle runs fn with the request body. The room code of the path, if any, is passed as roomId.
func (a *API) handle(fn action) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			abort(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
			return
		}

		if v, ok := c.Get(bodyKey); ok {
			body = v.([]byte)
		}

		if code := c.Param("code"); code != "" {
			body, err = withField(body, "roomId", code)
			if err != nil {
				abort(c, err)
				return
			}
		}

		resp, err := fn(a, c.Request.Context(), callerOf(c), body)
		if err != nil {
			abort(c, err)
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

const bodyKey = "body"

// searchQuery turns the q and limit query parameters into the search body.
func (a *API) searchQuery(c *gin.Context) {
	req := searchRequest{Query: c.Query("q")}
	if l := c.Query("limit"); l != "" {
		if err := json.Unmarshal([]byte(l), &req.Limit); err != nil {
			abort(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid limit %q", l)))
			return
		}
	}

	b, _ := json.Marshal(req)
	c.Set(bodyKey, b)
	c.Next()
}

func (a *API) deviceParam(c *gin.Context) {
	b, _ := json.Marshal(deviceRequest{DeviceID: c.Param("id")})
	c.Set(bodyKey, b)
	c.Next()
}

// requireAuth rejects requests without a valid identity token, or whose token belongs to another room.
func (a *API) requireAuth(c *gin.Context) {
	id, err := a.tokens.Verify(bearer(c.GetHeader("Authorization")))
	if err != nil {
		abort(c, err)
		return
	}

	if code := c.Param("code"); code != "" && code != id.RoomID {
		abort(c, errors.New(errors.CodePermissionDenied, errors.WithMessagef("token is not valid for room %s", code)))
		return
	}

	c.Set(identityKey, id)
	c.Next()
}

// optionalAuth identifies the caller when a valid token is present and lets anonymous callers through.
func (a *API) optionalAuth(c *gin.Context) {
	if id, err := a.tokens.Verify(bearer(c.GetHeader("Authorization"))); err == nil {
		c.Set(identityKey, id)
	}

	c.Next()
}

func (a *API) joinQR(c *gin.Context) {
	code := c.Param("code")
	if _, err := a.game.GetRoom(c.Request.Context(), game.GetRoomRequest{RoomID: code}); err != nil {
		abort(c, err)
		return
	}

	png, err := qrcode.Encode(a.joinURL(code), qrcode.Medium, qrSize)
	if err != nil {
		abort(c, err)
		return
	}

	c.Data(http.StatusOK, "image/png", png)
}

func (a *API) joinURL(code string) string {
	return strings.TrimRight(a.publicURL, "/") + "/join/" + code
}

func callerOf(c *gin.Context) identity.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return identity.Identity{}
	}

	return v.(identity.Identity)
}

func bearer(header string) string {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}

	return strings.TrimSpace(token)
}

// withField sets a top level field of a JSON object body.
func withField(body []byte, name, value string) ([]byte, error) {
	m := map[string]any{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &m); err != nil {
			return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid request body"), errors.WithCause(err))
		}
	}

	m[name] = value
	return json.Marshal(m)
}

func abort(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal {
		slog.ErrorContext(c.Request.Context(), "api: request failed", "path", c.FullPath(), "error", err)
	}

	c.AbortWithStatusJSON(e.HTTPStatusCode(), e)
}

type recoveryResponse struct {
	Code    errors.Code `json:"code"`
	Message string      `json:"message"`
	Reload  bool        `json:"reload"`
}

// recovery answers a panicking request with an error the client renders as a reload prompt.
func recovery(c *gin.Context, recovered any) {
	telemetry.Panics.WithLabelValues("http").Inc()
	slog.ErrorContext(c.Request.Context(), "api: panic recovered", "path", c.FullPath(), "panic", recovered)

	c.AbortWithStatusJSON(http.StatusInternalServerError, recoveryResponse{
		Code:    errors.CodeInternal,
		Message: "something went wrong, reload the page",
		Reload:  true,
	})
}
