// Copyright 2026 © The Avatar Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport carries controller messages over gRPC. The router
// service has a single unary method, Deliver, whose request is a
// structpb.Struct envelope; no generated stubs are needed.
package transport

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jllopis/avatar/pkg/core"
)

const (
	serviceName   = "avatar.transport.v1.Router"
	deliverMethod = "/" + serviceName + "/Deliver"
)

// RouterServer receives delivered messages.
type RouterServer interface {
	Deliver(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error)
}

var routerServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*RouterServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Deliver", Handler: deliverHandler},
	},
	Metadata: "avatar/transport/v1/router.proto",
}

// RegisterRouterServer registers srv on s.
func RegisterRouterServer(s grpc.ServiceRegistrar, srv RouterServer) {
	s.RegisterService(&routerServiceDesc, srv)
}

func deliverHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RouterServer).Deliver(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: deliverMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RouterServer).Deliver(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func encode(msg core.Message) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"id":      msg.ID,
		"from":    msg.From,
		"to":      msg.To,
		"payload": msg.Payload,
	})
}

func decode(in *structpb.Struct) (core.Message, error) {
	fields := in.GetFields()
	get := func(key string) string {
		return fields[key].GetStringValue()
	}
	msg := core.Message{
		ID:      get("id"),
		From:    get("from"),
		To:      get("to"),
		Payload: get("payload"),
	}
	if msg.From == "" || msg.To == "" {
		return core.Message{}, fmt.Errorf("envelope requires from and to")
	}
	return msg, nil
}
