package timing

import (
	"fmt"
	"math"

	"github.com/samber/lo"
)

const (
	DefaultLostTime = 12.  // 每周期总损失时间（启动损失+清空损失，秒）
	DefaultMinCycle = 60   // 周期下限（秒），工程经验取值而非推导结果
	DefaultMaxCycle = 120  // 周期上限（秒）
	OversaturatedY  = 0.9  // Y>=1时的截断值，避免公式发散或为负
	websterFactor   = 1.5  // Webster公式中损失时间系数
	websterConstant = 5.   // Webster公式常数项（秒）
	yCapThreshold   = 1.   // Y达到该值即视为过饱和
)

// CycleOptimizer 周期时长优化器
// 功能：根据各相位关键流量比，使用Webster最优周期公式计算周期时长
type CycleOptimizer struct {
	LostTime float64 // 总损失时间L（秒）
	MinCycle int     // 周期下限
	MaxCycle int     // 周期上限
}

// DefaultCycleOptimizer 缺省参数的周期优化器
func DefaultCycleOptimizer() CycleOptimizer {
	return CycleOptimizer{
		LostTime: DefaultLostTime,
		MinCycle: DefaultMinCycle,
		MaxCycle: DefaultMaxCycle,
	}
}

// Validate 校验周期参数
func (o CycleOptimizer) Validate() error {
	if o.LostTime < 0 {
		return fmt.Errorf("negative lost time %v: %w", o.LostTime, ErrInvalidConfiguration)
	}
	if o.MinCycle <= 0 || o.MinCycle > o.MaxCycle {
		return fmt.Errorf("cycle bounds [%d, %d]: %w", o.MinCycle, o.MaxCycle, ErrInvalidConfiguration)
	}
	return nil
}

// CycleResult 周期优化结果
type CycleResult struct {
	CriticalRatios []float64 // 各相位关键流量比（与phases同序）
	RawY           float64   // 截断前的Y
	Y              float64   // 参与计算的Y
	CycleTime      int       // 周期时长（秒）
}

// CriticalRatios 计算各相位的关键流量比
// 功能：相位内取各进口道流量比的最大值
// 参数：approaches-进口道，phases-相位分组（为空则每个进口道单独成相）
// 返回：与phases同序的关键流量比；饱和流量非正或相位引用未知进口道时返回ErrInvalidConfiguration
func CriticalRatios(approaches []Approach, phases []Phase) ([]float64, error) {
	if len(phases) == 0 {
		phases = SinglePhases(approaches)
	}
	ratios := make(map[string]float64, len(approaches))
	for _, a := range approaches {
		r, err := a.FlowRatio()
		if err != nil {
			return nil, err
		}
		ratios[a.Name] = r
	}
	critical := make([]float64, len(phases))
	for i, p := range phases {
		for _, name := range p.Approaches {
			r, ok := ratios[name]
			if !ok {
				return nil, fmt.Errorf("phase %s references unknown approach %s: %w", p.Name, name, ErrInvalidConfiguration)
			}
			critical[i] = math.Max(critical[i], r)
		}
	}
	return critical, nil
}

// Optimize 计算路口周期时长
// 功能：C = (1.5*L + 5) / (1 - Y)，截断到[MinCycle, MaxCycle]
// 参数：approaches-进口道，phases-相位分组
// 返回：周期优化结果
// 算法说明：
// 1. 计算各相位关键流量比并求和得到Y
// 2. Y>=1时取0.9
// 3. 代入Webster公式并截断，四舍五入为整数秒
func (o CycleOptimizer) Optimize(approaches []Approach, phases []Phase) (CycleResult, error) {
	critical, err := CriticalRatios(approaches, phases)
	if err != nil {
		return CycleResult{}, err
	}
	rawY := lo.Sum(critical)
	y := rawY
	if y >= yCapThreshold {
		y = OversaturatedY
	}
	c := (websterFactor*o.LostTime + websterConstant) / (1 - y)
	c = math.Max(float64(o.MinCycle), math.Min(float64(o.MaxCycle), c))
	return CycleResult{
		CriticalRatios: critical,
		RawY:           rawY,
		Y:              y,
		CycleTime:      int(math.Round(c)),
	}, nil
}
