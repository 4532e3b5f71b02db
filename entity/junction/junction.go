package junction

import (
	"context"
	"strings"
	"sync"

	"github.com/paulmach/orb"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity/junction/timing"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/utils/input"
)

// Junction 信控路口
// 功能：持有路口静态配置与最近一次的交通测量、正常配时、下发配时
// 说明：静态配置初始化后只读；测量与配时由控制循环写入，RPC协程读取，使用读写锁保护
type Junction struct {
	ctx entity.ITaskContext

	id       string
	config   input.Junction
	phases   []timing.Phase
	bounds   timing.Bounds
	location orb.Point
	located  bool

	mtx         sync.RWMutex
	snapshot    timing.ApproachSnapshot // 最近一次成功读取的测量
	hasSnapshot bool
	normal      timing.Schedule // 最近一次正常配时
	hasNormal   bool
	current     timing.Schedule // 最近一次下发的配时
	hasCurrent  bool
	results     []timing.AdaptiveResult
}

// newJunction 创建并初始化一个新的Junction实例
// 功能：根据静态配置创建Junction对象，确定相位分组、绿灯上下限与坐标
// 参数：ctx-任务上下文，base-路口静态配置
// 返回：初始化完成的Junction实例
func newJunction(ctx entity.ITaskContext, base input.Junction) *Junction {
	j := &Junction{
		ctx:     ctx,
		id:      base.ID,
		config:  base,
		phases:  base.TimingPhases(),
		bounds:  base.Bounds(),
		results: make([]timing.AdaptiveResult, 0),
	}
	if base.Location != nil {
		j.location = orb.Point{base.Location.Lon, base.Location.Lat}
		j.located = true
	}
	return j
}

// ID 获取Junction的唯一标识符
func (j *Junction) ID() string {
	return j.id
}

// Config 路口静态配置
func (j *Junction) Config() input.Junction {
	return j.config
}

// Phases 相位分组
func (j *Junction) Phases() []timing.Phase {
	return j.phases
}

// Bounds 绿灯上下限与黄灯
func (j *Junction) Bounds() timing.Bounds {
	return j.bounds
}

// Location 路口坐标
func (j *Junction) Location() (orb.Point, bool) {
	return j.location, j.located
}

// EmergencyApproaches 紧急车辆所在相位的进口道
// 功能：确定紧急车辆驶入路口的进口道，返回与其同一相位的全部进口道
// 参数：direction-行驶方向（如eastbound），upstream-紧急车辆来自的上游路口
// 算法说明：
// 1. 行驶方向非空时匹配进口道的direction（不区分大小写）
// 2. 否则按上游路口匹配进口道的upstream
// 3. 都无法确定时取第一个相位
func (j *Junction) EmergencyApproaches(direction, upstream string) []string {
	var approach *input.Approach
	if direction != "" {
		if a, ok := lo.Find(j.config.Approaches, func(a input.Approach) bool {
			return strings.EqualFold(a.Direction, direction)
		}); ok {
			approach = &a
		}
	}
	if approach == nil && upstream != "" {
		if a, ok := lo.Find(j.config.Approaches, func(a input.Approach) bool {
			return a.Upstream == upstream
		}); ok {
			approach = &a
		}
	}
	if len(j.phases) == 0 {
		return nil
	}
	if approach != nil {
		for _, p := range j.phases {
			if lo.Contains(p.Approaches, approach.Name) {
				return append([]string(nil), p.Approaches...)
			}
		}
	}
	return append([]string(nil), j.phases[0].Approaches...)
}

// prepare 读取本步交通测量
// 功能：在超时内从数据源读取测量，失败时沿用上一次的测量
func (j *Junction) prepare(ctx context.Context, source entity.ITrafficSource) {
	snapshot, err := source.Snapshot(ctx, j.id)
	if err != nil {
		j.mtx.RLock()
		has := j.hasSnapshot
		j.mtx.RUnlock()
		if has {
			log.Warnf("junction %s snapshot failed, reuse last snapshot: %v", j.id, err)
		} else {
			log.Warnf("junction %s snapshot failed, use fallback flows: %v", j.id, err)
		}
		return
	}
	j.mtx.Lock()
	j.snapshot = snapshot
	j.hasSnapshot = true
	j.mtx.Unlock()
}

// approaches 以最近一次测量构造本步的进口道输入
func (j *Junction) approaches() []timing.Approach {
	j.mtx.RLock()
	snapshot, has := j.snapshot, j.hasSnapshot
	j.mtx.RUnlock()
	return lo.Map(j.config.Approaches, func(a input.Approach, _ int) timing.Approach {
		var sample timing.Sample
		ok := false
		if has {
			sample, ok = snapshot.Samples[a.Name]
		}
		return timing.Resolve(a.Name, a.Direction, a.SaturationFlowOrDefault(), sample, ok)
	})
}

// plan 计算本步的正常配时
// 参数：planner-配时流水线（路口配置了损失时间时覆盖全局值），hour-当前小时
func (j *Junction) plan(planner timing.Planner, hour int) (timing.Schedule, error) {
	planner.Bounds = j.bounds
	if j.config.LostTime > 0 {
		planner.Cycle.LostTime = j.config.LostTime
	}
	s, results, err := planner.Plan(j.id, j.approaches(), j.phases, hour)
	if err != nil {
		return timing.Schedule{}, err
	}
	j.mtx.Lock()
	j.normal = s.Clone()
	j.hasNormal = true
	j.results = results
	j.mtx.Unlock()
	return s, nil
}

// timingPhases 相位分组，未配置时每个进口道单独成相
func (j *Junction) timingPhases() []timing.Phase {
	if len(j.phases) > 0 {
		return j.phases
	}
	return timing.SinglePhases(j.approaches())
}

func (j *Junction) setCurrent(s timing.Schedule) {
	j.mtx.Lock()
	defer j.mtx.Unlock()
	j.current = s.Clone()
	j.hasCurrent = true
}

// NormalSchedule 最近一次正常配时
func (j *Junction) NormalSchedule() (timing.Schedule, bool) {
	j.mtx.RLock()
	defer j.mtx.RUnlock()
	if !j.hasNormal {
		return timing.Schedule{}, false
	}
	return j.normal.Clone(), true
}

// CurrentSchedule 最近一次下发的配时
func (j *Junction) CurrentSchedule() (timing.Schedule, bool) {
	j.mtx.RLock()
	defer j.mtx.RUnlock()
	if !j.hasCurrent {
		return timing.Schedule{}, false
	}
	return j.current.Clone(), true
}

// AdaptiveResults 最近一次正常配时的自适应调整结果
func (j *Junction) AdaptiveResults() []timing.AdaptiveResult {
	j.mtx.RLock()
	defer j.mtx.RUnlock()
	return append([]timing.AdaptiveResult(nil), j.results...)
}
