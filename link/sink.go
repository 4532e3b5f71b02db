package link

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"connectrpc.com/connect"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	mapv2connect "git.fiblab.net/sim/protos/v2/go/city/map/v2/mapv2connect"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity/junction/timing"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity/junction/trafficlight"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/utils/input"
	"google.golang.org/protobuf/proto"
)

var log = logrus.WithField("module", "link")

// LogSink 只输出日志的下发端
// 说明：抢占配时与模式切换以Info级别输出，正常配时以Debug级别输出
type LogSink struct {
	mtx   sync.Mutex
	modes map[string]timing.Mode
}

func NewLogSink() *LogSink {
	return &LogSink{modes: make(map[string]timing.Mode)}
}

func (s *LogSink) Apply(ctx context.Context, schedule timing.Schedule) error {
	s.mtx.Lock()
	last, ok := s.modes[schedule.JunctionID]
	s.modes[schedule.JunctionID] = schedule.Mode
	s.mtx.Unlock()

	entry := log.WithField("junction", schedule.JunctionID)
	if !ok || last != schedule.Mode || schedule.Mode == timing.ModeEmergency {
		entry.Infof("%s schedule: %s", schedule.Mode, Describe(schedule))
	} else {
		entry.Debugf("%s schedule: %s", schedule.Mode, Describe(schedule))
	}
	return nil
}

// Describe 配时方案的单行描述，进口道按名称排序
func Describe(s timing.Schedule) string {
	names := lo.Keys(s.Phases)
	sort.Strings(names)
	var b strings.Builder
	fmt.Fprintf(&b, "cycle=%d", s.CycleTime)
	for _, name := range names {
		t := s.Phases[name]
		fmt.Fprintf(&b, " %s=%d/%d/%d", name, t.Green, t.Yellow, t.Red)
	}
	if s.OverrideID != "" {
		fmt.Fprintf(&b, " override=%s", s.OverrideID)
	}
	if s.CorridorGroup != "" && s.Offset != nil {
		fmt.Fprintf(&b, " corridor=%s@%d", s.CorridorGroup, *s.Offset)
	}
	return b.String()
}

type pushed struct {
	program    *mapv2.TrafficLight
	mode       timing.Mode
	overrideID string
	at         float64
	cycle      int
}

// SimuletSink 将配时以信号灯程序的形式下发到模拟器
// 功能：通过TrafficLightService.SetTrafficLight设置路口的信号灯程序
// 说明：
// 1. 程序与上次相同时不重复下发
// 2. 模式不变时至少运行完一个周期才替换程序，避免每步重置相位
// 3. 模式切换（进入或退出抢占）或抢占被替换时立即下发
type SimuletSink struct {
	client    mapv2connect.TrafficLightServiceClient
	junctions map[string]input.Junction

	mtx    sync.Mutex
	pushed map[string]pushed
}

// NewSimuletSink 创建模拟器下发端
// 参数：address-模拟器地址，n-路口网络（提供模拟器路口ID与车道映射）
func NewSimuletSink(address string, n *input.Network) *SimuletSink {
	return NewSimuletSinkWithClient(mapv2connect.NewTrafficLightServiceClient(http.DefaultClient, address), n)
}

// NewSimuletSinkWithClient 使用指定客户端创建模拟器下发端
func NewSimuletSinkWithClient(client mapv2connect.TrafficLightServiceClient, n *input.Network) *SimuletSink {
	return &SimuletSink{
		client: client,
		junctions: lo.SliceToMap(n.Junctions, func(j input.Junction) (string, input.Junction) {
			return j.ID, j
		}),
		pushed: make(map[string]pushed),
	}
}

func (s *SimuletSink) Apply(ctx context.Context, schedule timing.Schedule) error {
	j, ok := s.junctions[schedule.JunctionID]
	if !ok {
		return nil
	}
	program, err := trafficlight.Build(schedule, j)
	if err != nil {
		return err
	}
	if len(program.Phases) == 0 {
		return nil
	}

	s.mtx.Lock()
	last, ok := s.pushed[schedule.JunctionID]
	s.mtx.Unlock()
	if ok && last.mode == schedule.Mode && last.overrideID == schedule.OverrideID {
		if proto.Equal(last.program, program) || schedule.IssuedAt-last.at < float64(last.cycle) {
			return nil
		}
	}

	_, err = s.client.SetTrafficLight(ctx, connect.NewRequest(&mapv2.SetTrafficLightRequest{
		TrafficLight:  program,
		PhaseIndex:    0,
		TimeRemaining: program.Phases[0].Duration,
	}))
	if err != nil {
		return err
	}
	s.mtx.Lock()
	s.pushed[schedule.JunctionID] = pushed{
		program:    program,
		mode:       schedule.Mode,
		overrideID: schedule.OverrideID,
		at:         schedule.IssuedAt,
		cycle:      schedule.CycleTime,
	}
	s.mtx.Unlock()
	if !ok || last.mode != schedule.Mode {
		log.Infof("junction %s (sim %d) switched to %s program", j.ID, j.SimID, schedule.Mode)
	}
	return nil
}
