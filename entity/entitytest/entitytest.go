// 测试用的任务上下文与协作者
// 只在测试中使用，按需组装真实的管理器与内存中的数据源、下发端、审计记录器
package entitytest

import (
	"context"
	"sync"

	"github.com/tsinghua-fib-lab/agentsociety-tsc/clock"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity/junction/timing"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/utils/config"
)

// Context 可组装的任务上下文，未设置的协作者返回nil
type Context struct {
	Clk         *clock.Clock
	Cfg         *config.RuntimeConfig
	Roads       entity.IRoadManager
	Junctions   entity.IJunctionManager
	Emergencies entity.IEmergencyController
	Corridors   entity.ICorridorCoordinator
	Src         entity.ITrafficSource
	Snk         entity.ICommandSink
	Rec         entity.IRecorder
}

// NewContext 以配置创建上下文，时钟按配置的控制步初始化，绿波为空操作
func NewContext(c config.Config) (*Context, error) {
	rc, err := config.NewRuntimeConfig(c)
	if err != nil {
		return nil, err
	}
	return &Context{
		Clk:       clock.New(rc.C.Step, rc.C.StartHour),
		Cfg:       rc,
		Corridors: NopCorridor{},
		Src:       NewStaticSource(),
		Snk:       NewRecordingSink(),
		Rec:       NewMemoryRecorder(),
	}, nil
}

func (c *Context) Clock() *clock.Clock                               { return c.Clk }
func (c *Context) RuntimeConfig() *config.RuntimeConfig              { return c.Cfg }
func (c *Context) RoadManager() entity.IRoadManager                  { return c.Roads }
func (c *Context) JunctionManager() entity.IJunctionManager          { return c.Junctions }
func (c *Context) EmergencyController() entity.IEmergencyController { return c.Emergencies }
func (c *Context) CorridorCoordinator() entity.ICorridorCoordinator { return c.Corridors }
func (c *Context) Source() entity.ITrafficSource                     { return c.Src }
func (c *Context) Sink() entity.ICommandSink                         { return c.Snk }
func (c *Context) Recorder() entity.IRecorder                        { return c.Rec }

// NopCorridor 不附加任何绿波元数据
type NopCorridor struct{}

func (NopCorridor) Annotate(*timing.Schedule) {}

// StaticSource 内存中的交通数据源
type StaticSource struct {
	mtx     sync.Mutex
	samples map[string]map[string]timing.Sample
	errs    map[string]error
}

func NewStaticSource() *StaticSource {
	return &StaticSource{
		samples: make(map[string]map[string]timing.Sample),
		errs:    make(map[string]error),
	}
}

// Set 设置路口的测量
func (s *StaticSource) Set(junctionID string, samples map[string]timing.Sample) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.samples[junctionID] = samples
}

// Fail 设置路口读取失败，err为nil时恢复
func (s *StaticSource) Fail(junctionID string, err error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if err == nil {
		delete(s.errs, junctionID)
	} else {
		s.errs[junctionID] = err
	}
}

func (s *StaticSource) Snapshot(ctx context.Context, junctionID string) (timing.ApproachSnapshot, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if err := s.errs[junctionID]; err != nil {
		return timing.ApproachSnapshot{}, err
	}
	return timing.ApproachSnapshot{JunctionID: junctionID, Samples: s.samples[junctionID]}, nil
}

// RecordingSink 记录全部下发配时的下发端
type RecordingSink struct {
	mtx     sync.Mutex
	applied []timing.Schedule
}

func NewRecordingSink() *RecordingSink {
	return &RecordingSink{applied: make([]timing.Schedule, 0)}
}

func (s *RecordingSink) Apply(ctx context.Context, schedule timing.Schedule) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.applied = append(s.applied, schedule.Clone())
	return nil
}

// Applied 全部下发记录
func (s *RecordingSink) Applied() []timing.Schedule {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return append([]timing.Schedule(nil), s.applied...)
}

// Last 路口最近一次下发的配时
func (s *RecordingSink) Last(junctionID string) (timing.Schedule, bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	for i := len(s.applied) - 1; i >= 0; i-- {
		if s.applied[i].JunctionID == junctionID {
			return s.applied[i], true
		}
	}
	return timing.Schedule{}, false
}

// MemoryRecorder 内存中的审计记录器
type MemoryRecorder struct {
	mtx    sync.Mutex
	events []entity.EmergencyEvent
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{events: make([]entity.EmergencyEvent, 0)}
}

func (r *MemoryRecorder) Record(e entity.EmergencyEvent) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.events = append(r.events, e)
}

func (r *MemoryRecorder) Close() {}

// Kinds 某个抢占的事件类型序列
func (r *MemoryRecorder) Kinds(overrideID string) []entity.EmergencyEventKind {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	kinds := make([]entity.EmergencyEventKind, 0)
	for _, e := range r.events {
		if e.OverrideID == overrideID {
			kinds = append(kinds, e.Kind)
		}
	}
	return kinds
}
