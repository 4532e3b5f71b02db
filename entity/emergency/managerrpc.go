package emergency

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"git.fiblab.net/sim/syncer/v3"
	"github.com/samber/lo"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName       = "tsc.emergency.v1.EmergencyService"
	SubmitProcedure   = "/" + ServiceName + "/Submit"
	CompleteProcedure = "/" + ServiceName + "/Complete"
	ListProcedure     = "/" + ServiceName + "/List"
)

// Register 将紧急抢占服务注册到sidecar
// 说明：请求只写入缓冲区，不需要与控制循环同步
func (c *Controller) Register(sidecar *syncer.Sidecar) {
	sidecar.Register(ServiceName, c.Handler, syncer.WithNoLock())
}

// Handler 构造紧急抢占服务的connect处理器
// 返回：路由前缀与处理器，载荷均为google.protobuf.Struct
func (c *Controller) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(SubmitProcedure, connect.NewUnaryHandler(SubmitProcedure, c.submit, opts...))
	mux.Handle(CompleteProcedure, connect.NewUnaryHandler(CompleteProcedure, c.complete, opts...))
	mux.Handle(ListProcedure, connect.NewUnaryHandler(ListProcedure, c.list, opts...))
	return "/" + ServiceName + "/", mux
}

// submit RPC接口：提交抢占请求
func (c *Controller) submit(
	ctx context.Context, in *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	req, err := RequestFromStruct(in.Msg)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	v, err := c.Submit(req)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	return toResponse(v)
}

// complete RPC接口：显式结束抢占，字段id
func (c *Controller) complete(
	ctx context.Context, in *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	id := in.Msg.GetFields()["id"].GetStringValue()
	if id == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("id is required"))
	}
	if err := c.Complete(id); err != nil {
		return nil, connect.NewError(connect.CodeNotFound, err)
	}
	v, _ := c.Get(id)
	return toResponse(v)
}

// list RPC接口：列出抢占，字段overrides
func (c *Controller) list(
	ctx context.Context, in *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	items := lo.Map(c.List(), func(v View, _ int) any { return viewToMap(v) })
	s, err := structpb.NewStruct(map[string]any{"overrides": items})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(s), nil
}

func viewToMap(v View) map[string]any {
	m := map[string]any{
		"id":             v.ID,
		"emergency_type": v.Type,
		"priority":       v.Priority,
		"route":          lo.ToAnySlice(v.Route),
		"status":         v.Status,
		"duration":       v.Duration,
		"submitted_at":   v.SubmittedAt,
		"started_at":     v.StartedAt,
	}
	if v.UserID != "" {
		m["user_id"] = v.UserID
	}
	if v.Description != "" {
		m["description"] = v.Description
	}
	if v.Warning != "" {
		m["warning"] = v.Warning
	}
	return m
}

func toResponse(v View) (*connect.Response[structpb.Struct], error) {
	s, err := structpb.NewStruct(viewToMap(v))
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(s), nil
}
