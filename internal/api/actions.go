package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/victornm/songparty/internal/domain"
	"github.com/victornm/songparty/internal/errors"
	"github.com/victornm/songparty/internal/game"
	"github.com/victornm/songparty/internal/history"
	"github.com/victornm/songparty/internal/identity"
	"github.com/victornm/songparty/internal/leaderboard"
	"github.com/victornm/songparty/internal/music"
)

// action is one operation shared by the HTTP and gRPC surfaces. body is the JSON request, id the caller.
type action func(a *API, ctx context.Context, id identity.Identity, body []byte) (any, error)

var (
	errStoreRequired   = errors.New(errors.CodeUnavailable, errors.WithMessagef("service is not configured"))
	errCatalogRequired = errors.New(errors.CodeUnavailable, errors.WithMessagef("music service is not configured"))
)

type (
	RoomResponse struct {
		Room  game.RoomView `json:"room"`
		Token string        `json:"token,omitempty"`
	}

	createRoomRequest struct {
		Name   string `json:"name"`
		Avatar string `json:"avatar"`
	}

	joinRoomRequest struct {
		RoomID string `json:"roomId"`
		Name   string `json:"name"`
		Avatar string `json:"avatar"`
	}

	roomRequest struct {
		RoomID string `json:"roomId"`
	}

	deviceRequest struct {
		DeviceID string `json:"deviceId"`
	}

	finalizeRequest struct {
		Force bool `json:"force"`
	}

	submitSongRequest struct {
		Song domain.Song `json:"song"`
	}

	submitSongResponse struct {
		Room     game.RoomView `json:"room"`
		Accepted bool          `json:"accepted"`
	}

	submitGuessRequest struct {
		SubmissionID   string `json:"submissionId"`
		TargetPlayerID string `json:"targetPlayerId"`
	}

	searchRequest struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}

	credentialRequest struct {
		Token     string `json:"token"`
		ExpiresIn int    `json:"expiresIn"`
	}

	Leaderboard struct {
		RoomID  string             `json:"roomId"`
		Entries []LeaderboardEntry `json:"entries"`
	}

	LeaderboardEntry struct {
		PlayerID string `json:"playerId"`
		Name     string `json:"name"`
		Score    int    `json:"score"`
	}
)

func decode[T any](body []byte) (T, error) {
	var v T
	if len(body) == 0 {
		return v, nil
	}

	if err := json.Unmarshal(body, &v); err != nil {
		return v, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid request body"), errors.WithCause(err))
	}

	return v, nil
}

func (a *API) issue(id identity.Identity) (string, error) {
	return a.tokens.Issue(id, a.now())
}

func createRoom(a *API, ctx context.Context, _ identity.Identity, body []byte) (any, error) {
	req, err := decode[createRoomRequest](body)
	if err != nil {
		return nil, err
	}

	resp, err := a.game.CreateRoom(ctx, game.CreateRoomRequest{HostName: req.Name, Avatar: req.Avatar})
	if err != nil {
		return nil, err
	}

	token, err := a.issue(identity.Identity{PlayerID: resp.Host.ID, PlayerName: resp.Host.Name, RoomID: resp.Room.RoomID})
	if err != nil {
		return nil, err
	}

	return RoomResponse{Room: game.View(resp.Room, resp.Host.ID), Token: token}, nil
}

// joinRoom rejoins as the caller's player when their token belongs to the room, and joins as a new player otherwise.
func joinRoom(a *API, ctx context.Context, id identity.Identity, body []byte) (any, error) {
	req, err := decode[joinRoomRequest](body)
	if err != nil {
		return nil, err
	}

	playerID := ""
	if id.RoomID == req.RoomID {
		playerID = id.PlayerID
	}

	resp, err := a.game.JoinRoom(ctx, game.JoinRoomRequest{
		RoomID:   req.RoomID,
		PlayerID: playerID,
		Name:     req.Name,
		Avatar:   req.Avatar,
	})
	if err != nil {
		return nil, err
	}

	token, err := a.issue(identity.Identity{PlayerID: resp.Player.ID, PlayerName: resp.Player.Name, RoomID: resp.Room.RoomID})
	if err != nil {
		return nil, err
	}

	return RoomResponse{Room: game.View(resp.Room, resp.Player.ID), Token: token}, nil
}

func getRoom(a *API, ctx context.Context, id identity.Identity, body []byte) (any, error) {
	req, err := decode[roomRequest](body)
	if err != nil {
		return nil, err
	}

	r, err := a.game.GetRoom(ctx, game.GetRoomRequest{RoomID: req.RoomID})
	if err != nil {
		return nil, err
	}

	viewer := ""
	if id.RoomID == r.RoomID {
		viewer = id.PlayerID
	}

	return RoomResponse{Room: game.View(r, viewer)}, nil
}

// hostAction adapts a transition that only needs the acting player.
func hostAction(fn func(s *game.Service, ctx context.Context, req game.HostRequest) (*domain.Room, error)) action {
	return func(a *API, ctx context.Context, id identity.Identity, _ []byte) (any, error) {
		r, err := fn(a.game, ctx, game.HostRequest{RoomID: id.RoomID, PlayerID: id.PlayerID})
		if err != nil {
			return nil, err
		}

		return RoomResponse{Room: game.View(r, id.PlayerID)}, nil
	}
}

var (
	startGame       = hostAction((*game.Service).StartGame)
	openSubmissions = hostAction((*game.Service).OpenSubmissions)
	forceListening  = hostAction((*game.Service).ForceListening)
	nextReveal      = hostAction((*game.Service).NextReveal)
	nextRound       = hostAction((*game.Service).NextRound)
)

func nextTrack(a *API, ctx context.Context, id identity.Identity, body []byte) (any, error) {
	req, err := decode[deviceRequest](body)
	if err != nil {
		return nil, err
	}

	r, err := a.game.NextTrack(ctx, game.NextTrackRequest{RoomID: id.RoomID, PlayerID: id.PlayerID, DeviceID: req.DeviceID})
	if err != nil {
		return nil, err
	}

	return RoomResponse{Room: game.View(r, id.PlayerID)}, nil
}

func playTrack(a *API, ctx context.Context, id identity.Identity, body []byte) (any, error) {
	req, err := decode[deviceRequest](body)
	if err != nil {
		return nil, err
	}

	return a.game.PlayTrack(ctx, game.PlayTrackRequest{RoomID: id.RoomID, PlayerID: id.PlayerID, DeviceID: req.DeviceID})
}

func finalizeVoting(a *API, ctx context.Context, id identity.Identity, body []byte) (any, error) {
	req, err := decode[finalizeRequest](body)
	if err != nil {
		return nil, err
	}

	r, err := a.game.FinalizeVoting(ctx, game.FinalizeVotingRequest{RoomID: id.RoomID, PlayerID: id.PlayerID, Force: req.Force})
	if err != nil {
		return nil, err
	}

	return RoomResponse{Room: game.View(r, id.PlayerID)}, nil
}

func announceReveal(a *API, ctx context.Context, id identity.Identity, _ []byte) (any, error) {
	return a.game.AnnounceReveal(ctx, game.HostRequest{RoomID: id.RoomID, PlayerID: id.PlayerID})
}

func submitSong(a *API, ctx context.Context, id identity.Identity, body []byte) (any, error) {
	req, err := decode[submitSongRequest](body)
	if err != nil {
		return nil, err
	}

	resp, err := a.game.SubmitSong(ctx, game.SubmitSongRequest{RoomID: id.RoomID, PlayerID: id.PlayerID, Song: req.Song})
	if err != nil {
		return nil, err
	}

	return submitSongResponse{Room: game.View(resp.Room, id.PlayerID), Accepted: resp.Accepted}, nil
}

func submitGuess(a *API, ctx context.Context, id identity.Identity, body []byte) (any, error) {
	req, err := decode[submitGuessRequest](body)
	if err != nil {
		return nil, err
	}

	r, err := a.game.SubmitGuess(ctx, game.SubmitGuessRequest{
		RoomID:         id.RoomID,
		PlayerID:       id.PlayerID,
		SubmissionID:   req.SubmissionID,
		TargetPlayerID: req.TargetPlayerID,
	})
	if err != nil {
		return nil, err
	}

	return RoomResponse{Room: game.View(r, id.PlayerID)}, nil
}

func getLeaderboard(a *API, ctx context.Context, id identity.Identity, _ []byte) (any, error) {
	if a.leaderboard == nil {
		return nil, errStoreRequired
	}

	l, err := a.leaderboard.GetLeaderboard(ctx, leaderboard.GetLeaderboardRequest{RoomID: id.RoomID})
	if err != nil {
		return nil, err
	}

	return toLeaderboard(*l), nil
}

func listHistory(a *API, ctx context.Context, id identity.Identity, _ []byte) (any, error) {
	if a.history == nil {
		return nil, errors.New(errors.CodeUnavailable, errors.WithMessagef("history is not configured"))
	}

	return a.history.ListResults(ctx, history.ListResultsRequest{RoomID: id.RoomID})
}

// search uses the room's music credential. A credential the catalog rejected is forgotten so the host is
// asked to reconnect.
func search(a *API, ctx context.Context, id identity.Identity, body []byte) (any, error) {
	req, err := decode[searchRequest](body)
	if err != nil {
		return nil, err
	}

	credential := a.credential(ctx, id.RoomID)

	res, err := a.search.Search(ctx, music.SearchRequest{Query: req.Query, Credential: credential, Limit: req.Limit})
	if err != nil {
		return nil, err
	}

	if res.CredentialError && credential != "" && a.credentials != nil {
		if err := a.credentials.Invalidate(ctx, id.RoomID); err != nil {
			slog.WarnContext(ctx, "api: invalidate credential failed", "room", id.RoomID, "error", err)
		}
		if _, err := a.game.DropHostToken(ctx, id.RoomID); err != nil {
			slog.WarnContext(ctx, "api: drop host token failed", "room", id.RoomID, "error", err)
		}
	}

	return res, nil
}

func listDevices(a *API, ctx context.Context, id identity.Identity, _ []byte) (any, error) {
	if a.catalog == nil {
		return nil, errCatalogRequired
	}
	if err := a.requireHost(ctx, id); err != nil {
		return nil, err
	}

	devices, err := a.catalog.Devices(ctx, a.credential(ctx, id.RoomID))
	if err != nil {
		return nil, err
	}

	return map[string]any{"devices": devices}, nil
}

func transferPlayback(a *API, ctx context.Context, id identity.Identity, body []byte) (any, error) {
	req, err := decode[deviceRequest](body)
	if err != nil {
		return nil, err
	}
	if req.DeviceID == "" {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("deviceId is required"))
	}
	if a.catalog == nil {
		return nil, errCatalogRequired
	}
	if err := a.requireHost(ctx, id); err != nil {
		return nil, err
	}

	if err := a.catalog.TransferPlayback(ctx, a.credential(ctx, id.RoomID), req.DeviceID); err != nil {
		return nil, err
	}

	return map[string]any{"deviceId": req.DeviceID}, nil
}

// setCredential keeps the host's music credential for the room and shares it through the room document.
func setCredential(a *API, ctx context.Context, id identity.Identity, body []byte) (any, error) {
	req, err := decode[credentialRequest](body)
	if err != nil {
		return nil, err
	}
	if a.credentials == nil {
		return nil, errStoreRequired
	}
	if err := a.requireHost(ctx, id); err != nil {
		return nil, err
	}

	if err := a.credentials.Store(ctx, id.RoomID, req.Token, time.Duration(req.ExpiresIn)*time.Second); err != nil {
		return nil, err
	}

	r, err := a.game.SetHostToken(ctx, game.SetHostTokenRequest{RoomID: id.RoomID, PlayerID: id.PlayerID, Token: req.Token})
	if err != nil {
		return nil, err
	}

	return RoomResponse{Room: game.View(r, id.PlayerID)}, nil
}

func (a *API) credential(ctx context.Context, roomID string) string {
	if a.credentials == nil {
		return ""
	}

	token, err := a.credentials.Credential(ctx, roomID)
	if err != nil {
		return ""
	}

	return token
}

func (a *API) requireHost(ctx context.Context, id identity.Identity) error {
	r, err := a.game.GetRoom(ctx, game.GetRoomRequest{RoomID: id.RoomID})
	if err != nil {
		return err
	}
	if !r.IsHost(id.PlayerID) {
		return game.ErrNotHost
	}

	return nil
}

func toLeaderboard(l domain.Leaderboard) Leaderboard {
	out := Leaderboard{
		RoomID:  l.RoomID,
		Entries: make([]LeaderboardEntry, 0, len(l.Entries)),
	}

	for _, e := range l.Entries {
		out.Entries = append(out.Entries, LeaderboardEntry{PlayerID: e.PlayerID, Name: e.Name, Score: e.Score})
	}

	return out
}
