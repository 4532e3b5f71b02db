package junction

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	mapv2connect "git.fiblab.net/sim/protos/v2/go/city/map/v2/mapv2connect"
	"git.fiblab.net/sim/syncer/v3"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity/junction/trafficlight"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	StatusServiceName      = "tsc.status.v1.StatusService"
	GetScheduleProcedure   = "/" + StatusServiceName + "/GetSchedule"
	ListSchedulesProcedure = "/" + StatusServiceName + "/ListSchedules"
)

var (
	ErrNoSchedule = errors.New("junction has no schedule yet")
)

// trafficLightService 以模拟器信号灯服务的形式只读暴露当前配时
type trafficLightService struct {
	mapv2connect.UnimplementedTrafficLightServiceHandler

	m *JunctionManager
}

// Register 将Junction管理器注册到sidecar
// 功能：注册信号灯只读服务与配时状态服务
func (m *JunctionManager) Register(sidecar *syncer.Sidecar) {
	sidecar.Register(
		mapv2connect.TrafficLightServiceName,
		m.TrafficLightHandler,
	)
	sidecar.Register(StatusServiceName, m.StatusHandler)
}

// GetTrafficLight RPC接口：获取指定路口当前下发的信号灯程序
// 功能：将当前配时转换为信号灯程序，并按下发以来经过的时间计算相位与剩余时间
// 参数：in-包含模拟器路口ID的请求
// 说明：路口不存在返回CodeInvalidArgument，尚未下发配时返回空响应
func (s *trafficLightService) GetTrafficLight(
	ctx context.Context, in *connect.Request[mapv2.GetTrafficLightRequest],
) (*connect.Response[mapv2.GetTrafficLightResponse], error) {
	j, ok := lo.Find(s.m.junctions, func(j *Junction) bool {
		return j.config.SimID == in.Msg.JunctionId
	})
	if !ok {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("junction id does not exist"))
	}
	current, ok := j.CurrentSchedule()
	if !ok {
		return connect.NewResponse(&mapv2.GetTrafficLightResponse{}), nil
	}
	tl, err := trafficlight.Build(current, j.config)
	if err != nil {
		return nil, connect.NewError(connect.CodeFailedPrecondition, err)
	}
	index, remaining := trafficlight.Locate(tl, s.m.ctx.Clock().T-current.IssuedAt)
	return connect.NewResponse(&mapv2.GetTrafficLightResponse{
		TrafficLight:  tl,
		PhaseIndex:    index,
		TimeRemaining: remaining,
	}), nil
}

// TrafficLightHandler 构造信号灯只读服务的connect处理器
func (m *JunctionManager) TrafficLightHandler(opts ...connect.HandlerOption) (string, http.Handler) {
	return mapv2connect.NewTrafficLightServiceHandler(&trafficLightService{m: m}, opts...)
}

// StatusHandler 构造配时状态服务的connect处理器，载荷为google.protobuf.Struct
func (m *JunctionManager) StatusHandler(opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(GetScheduleProcedure, connect.NewUnaryHandler(GetScheduleProcedure, m.getSchedule, opts...))
	mux.Handle(ListSchedulesProcedure, connect.NewUnaryHandler(ListSchedulesProcedure, m.listSchedules, opts...))
	return "/" + StatusServiceName + "/", mux
}

// getSchedule RPC接口：查询路口当前配时与自适应调整结果，字段junction_id
func (m *JunctionManager) getSchedule(
	ctx context.Context, in *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	id := in.Msg.GetFields()["junction_id"].GetStringValue()
	j, ok := m.data[id]
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, errors.New("junction id does not exist"))
	}
	current, ok := j.CurrentSchedule()
	if !ok {
		return nil, connect.NewError(connect.CodeFailedPrecondition, ErrNoSchedule)
	}
	return toStruct(map[string]any{
		"schedule": current,
		"adaptive": j.AdaptiveResults(),
	})
}

// listSchedules RPC接口：列出全部已下发的配时，字段schedules
func (m *JunctionManager) listSchedules(
	ctx context.Context, in *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	schedules := make([]any, 0, len(m.junctions))
	for _, j := range m.junctions {
		if s, ok := j.CurrentSchedule(); ok {
			schedules = append(schedules, s)
		}
	}
	return toStruct(map[string]any{"schedules": schedules})
}

func toStruct(v any) (*connect.Response[structpb.Struct], error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(b, s); err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(s), nil
}
