// Package handler serves the session RPCs. Each call runs behind the session interceptor, which
// has already resolved the caller's x-session-id into a session context.
package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"lms-sessions/internal/server/interceptors"
)

// Full method names of SessionService.
const (
	ServiceName   = "lms.sessions.v1.SessionService"
	CurrentMethod = "/" + ServiceName + "/Current"
	LogoutMethod  = "/" + ServiceName + "/Logout"
)

// Killer deletes a session by sid. *service.Manager implements it.
type Killer interface {
	KillSession(ctx context.Context, sid string) error
}

// SessionServiceServer is the server API for SessionService.
type SessionServiceServer interface {
	// Current returns the caller's session: sid, userid, remote_addr and logged_in.
	Current(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	// Logout kills the caller's session if it belongs to a logged-in user.
	Logout(ctx context.Context, req *emptypb.Empty) (*emptypb.Empty, error)
}

// Server implements SessionServiceServer.
type Server struct {
	killer Killer
}

// NewServer returns a session server. If killer is nil, Logout returns Unimplemented.
func NewServer(killer Killer) *Server {
	return &Server{killer: killer}
}

// Current returns the caller's resolved session.
func (s *Server) Current(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	sc, ok := interceptors.SessionContextFrom(ctx)
	if !ok {
		return nil, status.Error(codes.FailedPrecondition, "no session resolved for this call")
	}
	out, err := structpb.NewStruct(map[string]any{
		"sid":         sc.SID,
		"userid":      sc.UserID,
		"remote_addr": sc.RemoteAddr,
		"logged_in":   sc.LoggedIn(),
	})
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode session")
	}
	return out, nil
}

// Logout kills the caller's session. Anonymous callers have nothing stored and get an empty reply.
func (s *Server) Logout(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if s.killer == nil {
		return nil, status.Error(codes.Unimplemented, "method Logout not implemented")
	}
	sc, ok := interceptors.SessionContextFrom(ctx)
	if !ok {
		return nil, status.Error(codes.FailedPrecondition, "no session resolved for this call")
	}
	if !sc.LoggedIn() {
		return &emptypb.Empty{}, nil
	}
	if err := s.killer.KillSession(ctx, sc.SID); err != nil {
		return nil, status.Error(codes.Internal, "failed to kill session")
	}
	return &emptypb.Empty{}, nil
}

// RegisterSessionServiceServer registers srv on s.
func RegisterSessionServiceServer(s grpc.ServiceRegistrar, srv SessionServiceServer) {
	s.RegisterService(&SessionServiceDesc, srv)
}

// SessionServiceDesc describes SessionService. Requests and replies are protobuf well-known
// types, so the default proto codec carries them.
var SessionServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SessionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Current", Handler: currentHandler},
		{MethodName: "Logout", Handler: logoutHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func currentHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SessionServiceServer).Current(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: CurrentMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SessionServiceServer).Current(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func logoutHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SessionServiceServer).Logout(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: LogoutMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SessionServiceServer).Logout(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}
