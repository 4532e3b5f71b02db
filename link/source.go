package link

import (
	"context"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity/junction/timing"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/utils/input"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/utils/randengine"
)

const (
	minDemand     = 0.15 // 平峰流量下限（饱和流量的比例）
	maxDemand     = 0.45 // 平峰流量上限
	rushDemand    = 1.4  // 高峰优先方向的流量放大倍数
	nightDemand   = 0.4  // 夜间流量缩小倍数
	missingRate   = 0.02 // 单个进口道测量缺失的概率
	maxWaitPerCar = 4.   // 每辆排队车辆对平均等待时间的贡献上限（秒）
)

type syntheticJunction struct {
	approaches []input.Approach
	generator  *randengine.Engine
}

// SyntheticSource 合成交通数据源
// 功能：独立运行时按时段生成可复现的随机测量，用于演示与回归
// 说明：每个路口使用独立的随机数引擎（种子为seed+路口下标），结果与并行读取顺序无关
type SyntheticSource struct {
	ctx       entity.ITaskContext
	junctions map[string]*syntheticJunction
}

// NewSyntheticSource 创建合成交通数据源
// 参数：ctx-任务上下文（读取当前小时），n-路口网络，seed-随机种子
func NewSyntheticSource(ctx entity.ITaskContext, n *input.Network, seed uint64) *SyntheticSource {
	s := &SyntheticSource{
		ctx:       ctx,
		junctions: make(map[string]*syntheticJunction, len(n.Junctions)),
	}
	for i, j := range n.Junctions {
		s.junctions[j.ID] = &syntheticJunction{
			approaches: j.Approaches,
			generator:  randengine.New(seed + uint64(i)),
		}
	}
	return s
}

// Snapshot 生成路口本步的测量
// 算法说明：
// 1. 流量在[minDemand, maxDemand]倍饱和流量之间均匀分布，高峰时段优先方向放大、夜间缩小
// 2. 车辆数服从以每分钟到达量为均值的泊松分布，排队长度约为其三分之一
// 3. 平均等待时间随排队长度增长
// 4. 以missingRate的概率缺失整个进口道的测量
func (s *SyntheticSource) Snapshot(ctx context.Context, junctionID string) (timing.ApproachSnapshot, error) {
	snapshot := timing.ApproachSnapshot{
		JunctionID: junctionID,
		Samples:    make(map[string]timing.Sample),
	}
	j, ok := s.junctions[junctionID]
	if !ok {
		return snapshot, nil
	}
	if err := ctx.Err(); err != nil {
		return snapshot, err
	}
	profile := timing.ProfileAt(s.ctx.Clock().Hour())
	for _, a := range j.approaches {
		if j.generator.PTrueSafe(missingRate) {
			continue
		}
		demand := j.generator.UniformSafe(minDemand, maxDemand)
		switch {
		case profile.Applies(a.Direction):
			demand *= rushDemand
		case profile.AdjustmentType == timing.ProfileNight:
			demand *= nightDemand
		}
		flow := demand * a.SaturationFlowOrDefault()
		vehicles := j.generator.PoissonSafe(flow / 60)
		queue := j.generator.PoissonSafe(float64(vehicles) / 3)
		wait := float64(queue) * j.generator.UniformSafe(0, maxWaitPerCar)
		snapshot.Samples[a.Name] = timing.Sample{
			Flow:           lo.ToPtr(flow),
			VehicleCount:   lo.ToPtr(vehicles),
			QueueLength:    lo.ToPtr(queue),
			AvgWaitingTime: lo.ToPtr(wait),
		}
	}
	return snapshot, nil
}
