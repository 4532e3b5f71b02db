package timing

import (
	"fmt"

	"github.com/samber/lo"
)

// Planner 单路口配时流水线
// 功能：周期优化 -> 相位分配 -> 自适应调整 -> 时段修正，生成候选配时方案
// 说明：纯计算，不同路口之间无共享可变状态，可并行执行
type Planner struct {
	Cycle    CycleOptimizer
	Bounds   Bounds
	Adaptive Adjuster
}

// Plan 生成候选配时方案
// 参数：junctionID-路口ID，approaches-本步进口道测量，phases-相位分组，hour-当前小时
// 返回：候选方案、各进口道的自适应调整结果
// 算法说明：
// 1. 计算周期时长并按关键流量比分配基础绿灯（负剩余红灯返回ErrConfiguration）
// 2. 相位内每个进口道以基础绿灯为基准做自适应调整，相位取最大推荐值
// 3. 时段修正：相位内存在优先方向的进口道时叠加绿灯延长
// 4. 调整后的绿灯截断到[MinGreen, min(MaxGreen, C-Yellow)]，保证红灯非负
func (p Planner) Plan(junctionID string, approaches []Approach, phases []Phase, hour int) (Schedule, []AdaptiveResult, error) {
	if len(phases) == 0 {
		phases = SinglePhases(approaches)
	}
	cycle, err := p.Cycle.Optimize(approaches, phases)
	if err != nil {
		return Schedule{}, nil, fmt.Errorf("junction %s cycle: %w", junctionID, err)
	}
	allocator := Allocator{LostTime: p.Cycle.LostTime, Bounds: p.Bounds}
	s, err := allocator.Allocate(junctionID, approaches, phases, cycle)
	if err != nil {
		return Schedule{}, nil, err
	}

	upper := min(p.Bounds.MaxGreen, s.CycleTime-p.Bounds.Yellow)
	if upper < p.Bounds.MinGreen {
		return Schedule{}, nil, fmt.Errorf("junction %s: min green %d exceeds cycle room %d: %w", junctionID, p.Bounds.MinGreen, upper, ErrConfiguration)
	}
	adjuster := p.Adaptive
	adjuster.Bounds = p.Bounds
	profile := ProfileAt(hour)
	byName := lo.SliceToMap(approaches, func(a Approach) (string, Approach) {
		return a.Name, a
	})

	results := make([]AdaptiveResult, 0, len(approaches))
	for _, phase := range phases {
		if len(phase.Approaches) == 0 {
			continue
		}
		base := s.Phases[phase.Approaches[0]].Green
		green := 0
		extend := false
		for _, name := range phase.Approaches {
			a := byName[name]
			r := adjuster.Adjust(junctionID, a, base)
			results = append(results, r)
			green = max(green, r.RecommendedGreen)
			extend = extend || profile.Applies(a.Direction)
		}
		if extend {
			green += profile.GreenExtension
		}
		green = lo.Clamp(green, p.Bounds.MinGreen, upper)
		t, err := NewPhaseTiming(green, p.Bounds.Yellow, s.CycleTime)
		if err != nil {
			return Schedule{}, nil, fmt.Errorf("junction %s phase %s: %w", junctionID, phase.Name, err)
		}
		for _, name := range phase.Approaches {
			s.Phases[name] = t
		}
	}
	s.Profile = profile.AdjustmentType
	s.CycleExtension = profile.CycleExtension
	s.PriorityDirections = profile.PriorityDirections
	return s, results, nil
}
