package timing

import (
	"fmt"
	"math"

	"github.com/samber/lo"
)

// Allocator 相位时长分配器
// 功能：按关键流量比将周期的有效绿灯时间分配到各相位
type Allocator struct {
	LostTime float64
	Bounds   Bounds
}

// PhaseGreens 计算各相位绿灯时间
// 功能：green_i = crit_i / Σcrit * (C - L)，四舍五入后截断到[MinGreen, MaxGreen]
// 参数：cycle-周期优化结果
// 返回：与CriticalRatios同序的绿灯时间
// 说明：Σcrit为0（无流量）时有效绿灯时间平均分配
func (a Allocator) PhaseGreens(cycle CycleResult) []int {
	n := len(cycle.CriticalRatios)
	greens := make([]int, n)
	if n == 0 {
		return greens
	}
	effective := math.Max(0, float64(cycle.CycleTime)-a.LostTime)
	sum := lo.Sum(cycle.CriticalRatios)
	for i, r := range cycle.CriticalRatios {
		var g float64
		if sum > 0 {
			g = r / sum * effective
		} else {
			g = effective / float64(n)
		}
		greens[i] = a.Bounds.Clamp(int(math.Round(g)))
	}
	return greens
}

// Allocate 生成路口的基础配时方案
// 功能：每个相位得到绿灯时间，相位内所有进口道共享该配时，黄灯为路口常量，红灯为周期剩余
// 参数：junctionID-路口ID，approaches-进口道，phases-相位分组，cycle-周期优化结果
// 返回：配时方案；截断后剩余红灯为负时返回ErrConfiguration，不做静默修正
func (a Allocator) Allocate(junctionID string, approaches []Approach, phases []Phase, cycle CycleResult) (Schedule, error) {
	if len(phases) == 0 {
		phases = SinglePhases(approaches)
	}
	if len(phases) != len(cycle.CriticalRatios) {
		return Schedule{}, fmt.Errorf("junction %s: %d phases but %d critical ratios: %w", junctionID, len(phases), len(cycle.CriticalRatios), ErrInvalidConfiguration)
	}
	greens := a.PhaseGreens(cycle)
	s := Schedule{
		JunctionID:   junctionID,
		CycleTime:    cycle.CycleTime,
		Phases:       make(map[string]PhaseTiming, len(approaches)),
		Groups:       phases,
		Mode:         ModeNormal,
		FlowRatioSum: cycle.RawY,
	}
	for i, p := range phases {
		t, err := NewPhaseTiming(greens[i], a.Bounds.Yellow, cycle.CycleTime)
		if err != nil {
			return Schedule{}, fmt.Errorf("junction %s phase %s: %w", junctionID, p.Name, err)
		}
		for _, name := range p.Approaches {
			s.Phases[name] = t
		}
	}
	return s, nil
}

// MinimumGreenSchedule 最小绿灯定时方案
// 功能：每个相位取MinGreen，周期为各相位绿灯与黄灯之和，不依赖交通测量
// 说明：绿灯不超过MaxGreen且红灯非负，结果总能通过Validate(&bounds)
func MinimumGreenSchedule(junctionID string, phases []Phase, bounds Bounds) Schedule {
	cycle := len(phases) * (bounds.MinGreen + bounds.Yellow)
	s := Schedule{
		JunctionID: junctionID,
		CycleTime:  cycle,
		Phases:     make(map[string]PhaseTiming),
		Groups:     phases,
		Mode:       ModeNormal,
	}
	t := PhaseTiming{Green: bounds.MinGreen, Yellow: bounds.Yellow, Red: cycle - bounds.MinGreen - bounds.Yellow}
	for _, p := range phases {
		for _, name := range p.Approaches {
			s.Phases[name] = t
		}
	}
	return s
}
