package entity

import (
	"git.fiblab.net/sim/syncer/v3"
	"github.com/paulmach/orb"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity/junction/timing"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/utils/input"
)

// Manager依赖倒置

// entity/road/manager.go的依赖倒置
type IRoadManager interface {
	Init(n *input.Network) error // 初始化路网图

	// 相邻路口之间的距离（米），无法确定时返回缺省值
	Distance(from, to string) float64
	// 起终点之间的最短路口序列
	Route(origin, destination string) ([]string, error)
	// 距离给定坐标最近的路口
	Nearest(p orb.Point) (string, bool)
}

// entity/junction/manager.go的依赖倒置
type IJunctionManager interface {
	Init(n *input.Network) // 初始化
	Register(sidecar *syncer.Sidecar)

	// 输入Junction ID，查找Junction，如果不存在则panic
	Get(id string) IJunction
	// 输入Junction ID，查找Junction，如果不存在则返回error
	GetOrError(id string) (IJunction, error)

	// 记录本步紧急抢占释放的路口
	SetReleases(releases []Release)

	Prepare() // 准备阶段：读取交通数据
	Update()  // 更新阶段：计算并下发配时
}

// entity/emergency/controller.go的依赖倒置
type IEmergencyController interface {
	Register(sidecar *syncer.Sidecar)

	// 在控制步边界应用缓冲的请求、取消与到期，返回本步释放的路口
	Prepare(now float64) []Release
	// 路口当前生效的抢占配时
	Active(junctionID string) (timing.Schedule, bool)
}

// entity/corridor/coordinator.go的依赖倒置
type ICorridorCoordinator interface {
	// 为配时方案附加绿波相位差（建议性元数据）
	Annotate(s *timing.Schedule)
}
