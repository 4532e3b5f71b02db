package config

import (
	"fmt"
	"math"
	"time"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity/junction/timing"
)

const (
	DefaultSourceTimeout     = 1.   // 交通数据读取超时（秒）
	DefaultSinkTimeout       = 1.   // 配时下发超时（秒）
	DefaultEmergencyYellow   = 3    // 抢占方案黄灯（秒）
	DefaultEmergencyDuration = 60.  // 抢占缺省时长（秒）
	DefaultEmergencyMax      = 600. // 抢占时长上限（秒）
	DefaultCorridorSpeed     = 50.  // 绿波目标车速（km/h）
	DefaultCorridorCycle     = 90   // 绿波公共周期（秒）
	DefaultCorridorGreen     = 45   // 绿波带宽（秒）
	DefaultRouteKey          = "other"
	LinkModeLog              = "log"
	LinkModeSimulet          = "simulet"
)

// DefaultRoutes 各类紧急事件的缺省路线
func DefaultRoutes() map[string][]string {
	return map[string][]string{
		"medical":       {"J0", "J1", "J5"},
		"fire":          {"J0", "J2", "J6"},
		DefaultRouteKey: {"J0", "J3", "J4"},
	}
}

// RuntimeConfig 运行时配置
// 功能：存储补齐缺省值并通过校验后的配置
type RuntimeConfig struct {
	All Config  // 全部配置
	C   Control // 全局控制配置
}

// NewRuntimeConfig 根据配置初始化运行时配置
// 功能：补齐缺省值并校验配置
// 参数：config-原始配置对象
// 返回：运行时配置；配置非法时返回包装了timing.ErrInvalidConfiguration的错误
// 算法说明：
// 1. 控制参数：损失时间、周期上下限、密度阈值、基础绿灯、读取超时
// 2. 紧急抢占：黄灯、缺省时长、缺省路线
// 3. 绿波走廊：目标车速、公共周期、绿波带宽
// 4. 逐项校验，任一失败即返回
func NewRuntimeConfig(config Config) (*RuntimeConfig, error) {
	c := &config.Control
	if c.Step.Interval == 0 {
		c.Step.Interval = 1
	}
	if c.LostTime == 0 {
		c.LostTime = timing.DefaultLostTime
	}
	if c.MinCycle == 0 {
		c.MinCycle = timing.DefaultMinCycle
	}
	if c.MaxCycle == 0 {
		c.MaxCycle = timing.DefaultMaxCycle
	}
	if c.Thresholds == nil {
		c.Thresholds = &Thresholds{
			High:   timing.DefaultHighDensity,
			Medium: timing.DefaultMediumDensity,
			Low:    timing.DefaultLowDensity,
		}
	}
	if c.BaseGreen == 0 {
		c.BaseGreen = timing.DefaultBaseGreen
	}
	if c.SourceTimeout == 0 {
		c.SourceTimeout = DefaultSourceTimeout
	}
	if c.SinkTimeout == 0 {
		c.SinkTimeout = DefaultSinkTimeout
	}

	e := &config.Emergency
	if e.Yellow == 0 {
		e.Yellow = DefaultEmergencyYellow
	}
	if e.DefaultDuration == 0 {
		e.DefaultDuration = DefaultEmergencyDuration
	}
	if e.MaxDuration == 0 {
		e.MaxDuration = DefaultEmergencyMax
	}
	if e.DefaultRoutes == nil {
		e.DefaultRoutes = DefaultRoutes()
	}

	for i := range config.Corridors {
		corridor := &config.Corridors[i]
		if corridor.TargetSpeed == 0 {
			corridor.TargetSpeed = DefaultCorridorSpeed
		}
		if corridor.CycleTime == 0 {
			corridor.CycleTime = DefaultCorridorCycle
		}
		if corridor.GreenDuration == 0 {
			corridor.GreenDuration = DefaultCorridorGreen
		}
	}
	if config.Link.Mode == "" {
		config.Link.Mode = LinkModeLog
	}

	if err := validate(config); err != nil {
		return nil, err
	}
	return &RuntimeConfig{All: config, C: config.Control}, nil
}

func validate(config Config) error {
	c := config.Control
	if c.Step.Interval < 0 || c.Step.Total <= 0 {
		return fmt.Errorf("control step %+v: %w", c.Step, timing.ErrInvalidConfiguration)
	}
	if c.StartHour < 0 || c.StartHour > 23 {
		return fmt.Errorf("start hour %d: %w", c.StartHour, timing.ErrInvalidConfiguration)
	}
	if c.SourceTimeout < 0 || c.SinkTimeout < 0 || c.BaseGreen < 0 {
		return fmt.Errorf("negative timeout or base green: %w", timing.ErrInvalidConfiguration)
	}
	if err := (timing.CycleOptimizer{LostTime: c.LostTime, MinCycle: c.MinCycle, MaxCycle: c.MaxCycle}).Validate(); err != nil {
		return err
	}
	if t := c.Thresholds; t.Low > t.Medium || t.Medium > t.High {
		return fmt.Errorf("density thresholds %+v not ordered: %w", *t, timing.ErrInvalidConfiguration)
	}

	e := config.Emergency
	if e.Yellow < 0 || e.DefaultDuration < 0 {
		return fmt.Errorf("emergency yellow %d duration %v: %w", e.Yellow, e.DefaultDuration, timing.ErrInvalidConfiguration)
	}
	if math.IsNaN(e.MaxDuration) || math.IsInf(e.MaxDuration, 0) || e.MaxDuration < e.DefaultDuration {
		return fmt.Errorf("emergency max duration %v below default %v: %w", e.MaxDuration, e.DefaultDuration, timing.ErrInvalidConfiguration)
	}
	if _, ok := e.DefaultRoutes[DefaultRouteKey]; !ok {
		return fmt.Errorf("emergency default routes lack %q: %w", DefaultRouteKey, timing.ErrInvalidConfiguration)
	}

	groups := make(map[string]struct{}, len(config.Corridors))
	for _, corridor := range config.Corridors {
		if _, ok := groups[corridor.Group]; ok || corridor.Group == "" {
			return fmt.Errorf("corridor group %q empty or duplicated: %w", corridor.Group, timing.ErrInvalidConfiguration)
		}
		groups[corridor.Group] = struct{}{}
		if len(corridor.Junctions) == 0 || len(lo.Uniq(corridor.Junctions)) != len(corridor.Junctions) {
			return fmt.Errorf("corridor %s junctions %v: %w", corridor.Group, corridor.Junctions, timing.ErrInvalidConfiguration)
		}
		if corridor.TargetSpeed <= 0 || corridor.CycleTime <= 0 || corridor.GreenDuration <= 0 || corridor.GreenDuration > corridor.CycleTime {
			return fmt.Errorf("corridor %s parameters %+v: %w", corridor.Group, corridor, timing.ErrInvalidConfiguration)
		}
	}

	switch config.Link.Mode {
	case LinkModeLog:
	case LinkModeSimulet:
		if config.Link.Address == "" {
			return fmt.Errorf("link mode %s requires address: %w", LinkModeSimulet, timing.ErrInvalidConfiguration)
		}
	default:
		return fmt.Errorf("unknown link mode %q: %w", config.Link.Mode, timing.ErrInvalidConfiguration)
	}
	if config.Link.SyncClock && config.Link.Address == "" {
		return fmt.Errorf("clock sync requires link address: %w", timing.ErrInvalidConfiguration)
	}
	return nil
}

// CycleOptimizer 按配置构造周期优化器
func (rc *RuntimeConfig) CycleOptimizer() timing.CycleOptimizer {
	return timing.CycleOptimizer{
		LostTime: rc.C.LostTime,
		MinCycle: rc.C.MinCycle,
		MaxCycle: rc.C.MaxCycle,
	}
}

// Thresholds 按配置构造密度阈值
func (rc *RuntimeConfig) Thresholds() timing.Thresholds {
	return timing.Thresholds{
		High:   rc.C.Thresholds.High,
		Medium: rc.C.Thresholds.Medium,
		Low:    rc.C.Thresholds.Low,
	}
}

// SourceTimeout 交通数据读取超时
func (rc *RuntimeConfig) SourceTimeout() time.Duration {
	return time.Duration(rc.C.SourceTimeout * float64(time.Second))
}

// SinkTimeout 配时下发超时
func (rc *RuntimeConfig) SinkTimeout() time.Duration {
	return time.Duration(rc.C.SinkTimeout * float64(time.Second))
}

// Planner 按配置构造配时流水线，绿灯上下限由路口自行设置
func (rc *RuntimeConfig) Planner() timing.Planner {
	return timing.Planner{
		Cycle: rc.CycleOptimizer(),
		Adaptive: timing.Adjuster{
			Thresholds: rc.Thresholds(),
			BaseGreen:  rc.C.BaseGreen,
		},
	}
}
