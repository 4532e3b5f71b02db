package corridor

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"git.fiblab.net/sim/syncer/v3"
	"github.com/paulmach/orb"
	"github.com/samber/lo"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName      = "tsc.corridor.v1.CorridorService"
	ListProcedure    = "/" + ServiceName + "/List"
	GeoJSONProcedure = "/" + ServiceName + "/GeoJSON"
)

// Register 将绿波方案查询服务注册到sidecar
// 说明：方案初始化后只读，不需要与控制循环同步
func (c *Coordinator) Register(sidecar *syncer.Sidecar) {
	sidecar.Register(ServiceName, c.Handler, syncer.WithNoLock())
}

// Handler 构造绿波方案查询服务的connect处理器，载荷为google.protobuf.Struct
func (c *Coordinator) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(ListProcedure, connect.NewUnaryHandler(ListProcedure, c.list, opts...))
	mux.Handle(GeoJSONProcedure, connect.NewUnaryHandler(GeoJSONProcedure, c.geoJSON, opts...))
	return "/" + ServiceName + "/", mux
}

// list RPC接口：列出全部绿波方案，字段corridors
func (c *Coordinator) list(
	ctx context.Context, in *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	items := lo.Map(c.plans, func(p Plan, _ int) any {
		return map[string]any{
			"group":          p.Group,
			"junction_ids":   lo.ToAnySlice(p.JunctionIDs),
			"target_speed":   p.TargetSpeed,
			"cycle_time":     p.CycleTime,
			"green_duration": p.GreenDuration,
			"offsets": lo.Map(p.Signals, func(s Signal, _ int) any {
				return s.Offset
			}),
		}
	})
	s, err := structpb.NewStruct(map[string]any{"corridors": items})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(s), nil
}

// geoJSON RPC接口：导出指定走廊的GeoJSON，字段group，返回字段geojson（字符串）
func (c *Coordinator) geoJSON(
	ctx context.Context, in *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	group := in.Msg.GetFields()["group"].GetStringValue()
	p, ok := c.Get(group)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, errors.New("corridor group does not exist"))
	}
	b, err := p.GeoJSON(c.locate)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	s, err := structpb.NewStruct(map[string]any{"group": group, "geojson": string(b)})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(s), nil
}

func (c *Coordinator) locate(junctionID string) (orb.Point, bool) {
	j, err := c.ctx.JunctionManager().GetOrError(junctionID)
	if err != nil {
		return orb.Point{}, false
	}
	return j.Location()
}
