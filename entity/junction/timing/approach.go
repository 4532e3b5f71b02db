package timing

import (
	"fmt"
	"math"
)

const (
	DefaultSaturationFlow = 1800. // 缺省饱和流量（辆/小时）
	FallbackFlowRatio     = 0.3   // 进口道流量缺失时按饱和流量的该比例补齐
)

// Approach 单个进口道在一个控制步内的交通测量
// 功能：作为周期优化、相位分配与自适应调整的统一输入，每步重新构造
type Approach struct {
	Name           string  // 进口道名称（如north）
	Direction      string  // 行驶方向（如eastbound），用于时段优先方向匹配
	Flow           float64 // 流量（辆/小时）
	SaturationFlow float64 // 饱和流量（辆/小时），必须大于0
	VehicleCount   int     // 车辆数
	QueueLength    int     // 排队长度（辆）
	AvgWaitingTime float64 // 平均等待时间（秒）
}

// FlowRatio 计算流量比
// 功能：返回flow/saturation_flow
// 返回：流量比；饱和流量非正时返回ErrInvalidConfiguration
func (a Approach) FlowRatio() (float64, error) {
	if a.SaturationFlow <= 0 {
		return 0, fmt.Errorf("approach %s saturation flow %v: %w", a.Name, a.SaturationFlow, ErrInvalidConfiguration)
	}
	return a.Flow / a.SaturationFlow, nil
}

// Sample 交通数据源提供的单个进口道原始测量，nil字段表示缺失
type Sample struct {
	Flow           *float64 `json:"flow,omitempty"`
	VehicleCount   *int     `json:"vehicle_count,omitempty"`
	QueueLength    *int     `json:"queue_length,omitempty"`
	AvgWaitingTime *float64 `json:"avg_waiting_time,omitempty"`
}

// ApproachSnapshot 一个路口在一个控制步内所有进口道的原始测量
type ApproachSnapshot struct {
	JunctionID string
	Samples    map[string]Sample // 进口道名称->测量
}

// Resolve 将配置与原始测量合并为Approach
// 功能：按约定的缺省规则补齐缺失或异常的测量值
// 参数：name/direction/saturationFlow-进口道配置，s-测量，ok-测量是否存在
// 返回：补齐后的Approach
// 说明：
// 1. 饱和流量非正时不在这里修正，由配置校验拦截
// 2. 流量缺失或非法（负数、NaN）时取 FallbackFlowRatio*saturationFlow
// 3. 车辆数、排队长度、等待时间缺失或为负时取0
func Resolve(name, direction string, saturationFlow float64, s Sample, ok bool) Approach {
	a := Approach{
		Name:           name,
		Direction:      direction,
		SaturationFlow: saturationFlow,
		Flow:           FallbackFlowRatio * saturationFlow,
	}
	if !ok {
		return a
	}
	if s.Flow != nil && *s.Flow >= 0 && !math.IsNaN(*s.Flow) {
		a.Flow = *s.Flow
	}
	if s.VehicleCount != nil && *s.VehicleCount > 0 {
		a.VehicleCount = *s.VehicleCount
	}
	if s.QueueLength != nil && *s.QueueLength > 0 {
		a.QueueLength = *s.QueueLength
	}
	if s.AvgWaitingTime != nil && *s.AvgWaitingTime > 0 && !math.IsNaN(*s.AvgWaitingTime) {
		a.AvgWaitingTime = *s.AvgWaitingTime
	}
	return a
}

// Phase 同时放行的一组进口道
type Phase struct {
	Name       string   `json:"name" yaml:"name" bson:"name"`
	Approaches []string `json:"approaches" yaml:"approaches" bson:"approaches"`
}

// SinglePhases 每个进口道单独成为一个相位
func SinglePhases(approaches []Approach) []Phase {
	phases := make([]Phase, len(approaches))
	for i, a := range approaches {
		phases[i] = Phase{Name: a.Name, Approaches: []string{a.Name}}
	}
	return phases
}
