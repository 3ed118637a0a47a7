package api

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/victornm/songparty/internal/domain"
	"github.com/victornm/songparty/internal/errors"
	"github.com/victornm/songparty/internal/game"
	"github.com/victornm/songparty/internal/identity"
)

const gameServiceName = "songparty.v1.Game"

// gameServer is served with google.protobuf.Struct messages carrying the same JSON documents as the HTTP API.
type gameServer interface {
	call(ctx context.Context, fn action, auth bool, req *structpb.Struct) (*structpb.Struct, error)
	watch(req *structpb.Struct, stream grpc.ServerStream) error
}

var gameServiceDesc = grpc.ServiceDesc{
	ServiceName: gameServiceName,
	HandlerType: (*gameServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("CreateRoom", createRoom, false),
		unaryMethod("JoinRoom", joinRoom, false),
		unaryMethod("GetRoom", getRoom, false),
		unaryMethod("StartGame", startGame, true),
		unaryMethod("OpenSubmissions", openSubmissions, true),
		unaryMethod("SubmitSong", submitSong, true),
		unaryMethod("ForceListening", forceListening, true),
		unaryMethod("NextTrack", nextTrack, true),
		unaryMethod("SubmitGuess", submitGuess, true),
		unaryMethod("FinalizeVoting", finalizeVoting, true),
		unaryMethod("NextReveal", nextReveal, true),
		unaryMethod("NextRound", nextRound, true),
		unaryMethod("GetLeaderboard", getLeaderboard, true),
		unaryMethod("Search", search, true),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchRoom",
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := new(structpb.Struct)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(gameServer).watch(in, stream)
			},
		},
	},
}

func unaryMethod(name string, fn action, auth bool) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}

			handler := func(ctx context.Context, req any) (any, error) {
				return srv.(gameServer).call(ctx, fn, auth, req.(*structpb.Struct))
			}
			if interceptor == nil {
				return handler(ctx, in)
			}

			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + gameServiceName + "/" + name,
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func (a *API) call(ctx context.Context, fn action, auth bool, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := a.tokens.Verify(incomingToken(ctx))
	if err != nil {
		if auth {
			return nil, errors.Convert(err)
		}
		id = identity.Identity{}
	}

	body, err := protojson.Marshal(req)
	if err != nil {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithCause(err))
	}

	resp, err := fn(a, ctx, id, body)
	if err != nil {
		return nil, errors.Convert(err)
	}

	out, err := toStruct(resp)
	if err != nil {
		return nil, errors.Internal(err)
	}

	return out, nil
}

// watch streams the caller's view of the room, latest snapshot first, until the client goes away.
func (a *API) watch(req *structpb.Struct, stream grpc.ServerStream) error {
	ctx := stream.Context()
	code := req.GetFields()["roomId"].GetStringValue()
	if code == "" {
		return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("roomId is required"))
	}

	viewer := ""
	if id, err := a.tokens.Verify(incomingToken(ctx)); err == nil && id.RoomID == code {
		viewer = id.PlayerID
	}

	var (
		cache  game.Cache
		notify = make(chan struct{}, 1)
	)

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
		return errors.Convert(err)
	}
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-notify:
			out, err := toStruct(game.View(cache.Load(), viewer))
			if err != nil {
				return errors.Internal(err)
			}
			if err := stream.SendMsg(out); err != nil {
				return err
			}
		}
	}
}

func incomingToken(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}

	values := md.Get("authorization")
	if len(values) == 0 {
		return ""
	}

	return bearer(values[0])
}

func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	out := new(structpb.Struct)
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, err
	}

	return out, nil
}
