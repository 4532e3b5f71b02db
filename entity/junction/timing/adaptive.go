package timing

import (
	"fmt"
	"math"
)

const (
	DefaultHighDensity   = 30 // 高密度阈值（辆）
	DefaultMediumDensity = 15 // 中密度阈值（辆）
	DefaultLowDensity    = 5  // 低密度阈值（辆）
	DefaultBaseGreen     = 30 // 缺省基础绿灯（秒）

	maxQueueBonus   = 0.5
	queueStep       = 0.05
	maxWaitingBonus = 0.3
	waitingStep     = 0.01
)

// Thresholds 车辆密度阈值
type Thresholds struct {
	High   int
	Medium int
	Low    int
}

// DefaultThresholds 缺省密度阈值
func DefaultThresholds() Thresholds {
	return Thresholds{High: DefaultHighDensity, Medium: DefaultMediumDensity, Low: DefaultLowDensity}
}

// Adjuster 实时自适应调整器
// 功能：根据车辆数、排队长度、等待时间三个独立乘子修正绿灯时间
// 说明：纯函数，无隐藏状态
type Adjuster struct {
	Thresholds Thresholds
	BaseGreen  int
	Bounds     Bounds
}

// AdaptiveResult 自适应调整结果
type AdaptiveResult struct {
	JunctionID       string  `json:"junction_id"`
	RecommendedGreen int     `json:"recommended_green_time"`
	DensityFactor    float64 `json:"density_factor"`
	QueueFactor      float64 `json:"queue_factor"`
	WaitingFactor    float64 `json:"waiting_factor"`
	Reasoning        string  `json:"reasoning"`
}

// DensityFactor 密度乘子：>High为1.5，>Medium为1.2，<Low为0.8，否则1.0
func (a Adjuster) DensityFactor(vehicleCount int) float64 {
	switch {
	case vehicleCount > a.Thresholds.High:
		return 1.5
	case vehicleCount > a.Thresholds.Medium:
		return 1.2
	case vehicleCount < a.Thresholds.Low:
		return 0.8
	default:
		return 1.0
	}
}

// QueueFactor 排队乘子：1 + min(0.5, 0.05*queue)
func QueueFactor(queueLength int) float64 {
	return 1 + math.Min(maxQueueBonus, float64(queueLength)*queueStep)
}

// WaitingFactor 等待乘子：1 + min(0.3, 0.01*wait)
func WaitingFactor(avgWaitingTime float64) float64 {
	return 1 + math.Min(maxWaitingBonus, avgWaitingTime*waitingStep)
}

// Adjust 计算推荐绿灯时间
// 参数：junctionID-路口ID，current-当前交通测量，baseGreen-基础绿灯（<=0时使用BaseGreen）
// 返回：推荐绿灯（截断到[MinGreen, MaxGreen]）与三个乘子
func (a Adjuster) Adjust(junctionID string, current Approach, baseGreen int) AdaptiveResult {
	if baseGreen <= 0 {
		baseGreen = a.BaseGreen
	}
	if baseGreen <= 0 {
		baseGreen = DefaultBaseGreen
	}
	d := a.DensityFactor(current.VehicleCount)
	q := QueueFactor(current.QueueLength)
	w := WaitingFactor(current.AvgWaitingTime)
	adjusted := float64(baseGreen) * d * q * w
	adjusted = math.Max(float64(a.Bounds.MinGreen), math.Min(float64(a.Bounds.MaxGreen), adjusted))
	return AdaptiveResult{
		JunctionID:       junctionID,
		RecommendedGreen: int(adjusted),
		DensityFactor:    d,
		QueueFactor:      q,
		WaitingFactor:    w,
		Reasoning: fmt.Sprintf(
			"Vehicles: %d, Queue: %d, Wait: %.1fs",
			current.VehicleCount, current.QueueLength, current.AvgWaitingTime,
		),
	}
}
