package admin

import (
	"net/http"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "andarbahar.admin.v1.AdminService"

const (
	StartRoundProcedure    = "/" + ServiceName + "/StartRound"
	LockBettingProcedure   = "/" + ServiceName + "/LockBetting"
	ForceResetProcedure    = "/" + ServiceName + "/ForceReset"
	GetRoundStatsProcedure = "/" + ServiceName + "/GetRoundStats"
)

// NewHandler returns the path prefix and handler serving svc over the
// Connect, gRPC and gRPC-Web protocols.
func NewHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(StartRoundProcedure, connect.NewUnaryHandler(StartRoundProcedure, svc.StartRound, opts...))
	mux.Handle(LockBettingProcedure, connect.NewUnaryHandler(LockBettingProcedure, svc.LockBetting, opts...))
	mux.Handle(ForceResetProcedure, connect.NewUnaryHandler(ForceResetProcedure, svc.ForceReset, opts...))
	mux.Handle(GetRoundStatsProcedure, connect.NewUnaryHandler(GetRoundStatsProcedure, svc.GetRoundStats, opts...))
	return "/" + ServiceName + "/", mux
}

// Client calls the admin API of a remote server.
type Client struct {
	StartRound    *connect.Client[structpb.Struct, structpb.Struct]
	LockBetting   *connect.Client[structpb.Struct, structpb.Struct]
	ForceReset    *connect.Client[structpb.Struct, structpb.Struct]
	GetRoundStats *connect.Client[structpb.Struct, structpb.Struct]
}

func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	return &Client{
		StartRound:    connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+StartRoundProcedure, opts...),
		LockBetting:   connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+LockBettingProcedure, opts...),
		ForceReset:    connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+ForceResetProcedure, opts...),
		GetRoundStats: connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+GetRoundStatsProcedure, opts...),
	}
}
