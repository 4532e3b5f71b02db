// 将配时方案转换为模拟器的信号灯程序
// 相位按分组顺序排列：分组绿灯 -> 分组黄灯，周期剩余时间为全红
package trafficlight

import (
	"errors"
	"fmt"

	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity/junction/timing"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/utils/input"
)

var ErrNoLane = errors.New("junction has no simulator lane")

// interval 程序中的一个相位
type interval struct {
	green    []string // 绿灯进口道
	yellow   []string // 黄灯进口道
	duration int
}

// Build 将配时方案转换为模拟器信号灯程序
// 功能：按相位分组依次生成绿灯与黄灯相位，进口道映射到路口车道序号，未映射的车道恒为红灯
// 参数：s-配时方案，j-路口静态配置（需要SimID与进口道车道序号）
// 返回：信号灯程序；路口没有车道时返回ErrNoLane
// 算法说明：
// 1. 分组内进口道的绿灯取最大值，绿灯为0的分组不生成相位（紧急抢占时的非紧急相位）
// 2. 绿灯相位之后紧跟该分组的黄灯相位
// 3. 各相位之和小于周期时，剩余时间作为全红相位追加在末尾
func Build(s timing.Schedule, j input.Junction) (*mapv2.TrafficLight, error) {
	numLanes := j.NumLanes
	for _, a := range j.Approaches {
		for _, lane := range a.Lanes {
			numLanes = max(numLanes, int(lane)+1)
		}
	}
	if numLanes == 0 {
		return nil, fmt.Errorf("%s: %w", j.ID, ErrNoLane)
	}
	lanes := lo.SliceToMap(j.Approaches, func(a input.Approach) (string, []int32) {
		return a.Name, a.Lanes
	})

	groups := s.Groups
	if len(groups) == 0 {
		groups = j.TimingPhases()
	}
	intervals := make([]interval, 0, 2*len(groups)+1)
	total := 0
	for _, g := range groups {
		green, yellow := 0, 0
		for _, name := range g.Approaches {
			t := s.Phases[name]
			green = max(green, t.Green)
			yellow = max(yellow, t.Yellow)
		}
		if green == 0 {
			continue
		}
		intervals = append(intervals, interval{green: g.Approaches, duration: green})
		total += green
		if yellow > 0 {
			intervals = append(intervals, interval{yellow: g.Approaches, duration: yellow})
			total += yellow
		}
	}
	if rest := s.CycleTime - total; rest > 0 {
		intervals = append(intervals, interval{duration: rest})
	}

	tl := &mapv2.TrafficLight{
		JunctionId: j.SimID,
		Phases:     make([]*mapv2.Phase, 0, len(intervals)),
	}
	for _, it := range intervals {
		states := make([]mapv2.LightState, numLanes)
		for i := range states {
			states[i] = mapv2.LightState_LIGHT_STATE_RED
		}
		for _, name := range it.green {
			for _, lane := range lanes[name] {
				states[lane] = mapv2.LightState_LIGHT_STATE_GREEN
			}
		}
		for _, name := range it.yellow {
			for _, lane := range lanes[name] {
				states[lane] = mapv2.LightState_LIGHT_STATE_YELLOW
			}
		}
		tl.Phases = append(tl.Phases, &mapv2.Phase{
			Duration: float64(it.duration),
			States:   states,
		})
	}
	return tl, nil
}

// Locate 计算程序运行elapsed秒后所处的相位
// 返回：相位下标与该相位剩余时间；程序为空时返回(0, 0)
func Locate(tl *mapv2.TrafficLight, elapsed float64) (int32, float64) {
	if tl == nil || len(tl.Phases) == 0 {
		return 0, 0
	}
	total := lo.SumBy(tl.Phases, func(p *mapv2.Phase) float64 { return p.Duration })
	if total <= 0 {
		return 0, 0
	}
	t := elapsed - float64(int(elapsed/total))*total
	if t < 0 {
		t = 0
	}
	for i, p := range tl.Phases {
		if t < p.Duration {
			return int32(i), p.Duration - t
		}
		t -= p.Duration
	}
	last := len(tl.Phases) - 1
	return int32(last), tl.Phases[last].Duration
}
