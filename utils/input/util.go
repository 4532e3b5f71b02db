package input

import (
	"fmt"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/agentsociety-tsc/entity/junction/timing"
)

var log = logrus.WithField("module", "input")

const (
	DefaultMinGreen = 15 // 缺省最小绿灯（秒）
	DefaultMaxGreen = 60 // 缺省最大绿灯（秒）
	DefaultYellow   = 4  // 缺省黄灯（秒）
)

// SaturationFlowOrDefault 进口道饱和流量，未配置时取缺省值
func (a Approach) SaturationFlowOrDefault() float64 {
	if a.SaturationFlow == nil {
		return timing.DefaultSaturationFlow
	}
	return *a.SaturationFlow
}

// Bounds 路口绿灯上下限与黄灯
func (j Junction) Bounds() timing.Bounds {
	return timing.Bounds{MinGreen: j.MinGreen, MaxGreen: j.MaxGreen, Yellow: j.Yellow}
}

// TimingPhases 相位分组，未配置时每个进口道单独成相
func (j Junction) TimingPhases() []timing.Phase {
	if len(j.Phases) == 0 {
		return lo.Map(j.Approaches, func(a Approach, _ int) timing.Phase {
			return timing.Phase{Name: a.Name, Approaches: []string{a.Name}}
		})
	}
	return lo.Map(j.Phases, func(p Phase, _ int) timing.Phase {
		return timing.Phase{Name: p.Name, Approaches: append([]string(nil), p.Approaches...)}
	})
}

// Validate 校验路口网络
// 功能：检查ID唯一性、饱和流量、绿灯上下限、相位引用、道路端点、车道序号
// 返回：任一检查失败时返回包装了timing.ErrInvalidConfiguration的错误
func (n *Network) Validate() error {
	if len(n.Junctions) == 0 {
		return fmt.Errorf("empty junction network: %w", timing.ErrInvalidConfiguration)
	}
	ids := make(map[string]struct{}, len(n.Junctions))
	for _, j := range n.Junctions {
		if _, ok := ids[j.ID]; ok || j.ID == "" {
			return fmt.Errorf("junction id %q empty or duplicated: %w", j.ID, timing.ErrInvalidConfiguration)
		}
		ids[j.ID] = struct{}{}
		if err := j.validate(); err != nil {
			return err
		}
	}
	for _, r := range n.Roads {
		_, fromOK := ids[r.From]
		_, toOK := ids[r.To]
		if !fromOK || !toOK || r.From == r.To {
			return fmt.Errorf("road %s->%s references unknown junction: %w", r.From, r.To, timing.ErrInvalidConfiguration)
		}
		if r.Length < 0 {
			return fmt.Errorf("road %s->%s negative length: %w", r.From, r.To, timing.ErrInvalidConfiguration)
		}
	}
	return nil
}

func (j Junction) validate() error {
	if len(j.Approaches) == 0 {
		return fmt.Errorf("junction %s has no approach: %w", j.ID, timing.ErrInvalidConfiguration)
	}
	if err := j.Bounds().Validate(); err != nil {
		return fmt.Errorf("junction %s: %w", j.ID, err)
	}
	if j.LostTime < 0 || j.Clearance < 0 {
		return fmt.Errorf("junction %s negative lost time or clearance: %w", j.ID, timing.ErrInvalidConfiguration)
	}
	names := make(map[string]struct{}, len(j.Approaches))
	for _, a := range j.Approaches {
		if _, ok := names[a.Name]; ok || a.Name == "" {
			return fmt.Errorf("junction %s approach %q empty or duplicated: %w", j.ID, a.Name, timing.ErrInvalidConfiguration)
		}
		names[a.Name] = struct{}{}
		if a.SaturationFlowOrDefault() <= 0 {
			return fmt.Errorf("junction %s approach %s saturation flow %v: %w", j.ID, a.Name, a.SaturationFlowOrDefault(), timing.ErrInvalidConfiguration)
		}
		for _, lane := range a.Lanes {
			if lane < 0 || (j.NumLanes > 0 && int(lane) >= j.NumLanes) {
				return fmt.Errorf("junction %s approach %s lane %d out of range: %w", j.ID, a.Name, lane, timing.ErrInvalidConfiguration)
			}
		}
	}
	seen := make(map[string]string, len(j.Approaches))
	for _, p := range j.Phases {
		for _, name := range p.Approaches {
			if _, ok := names[name]; !ok {
				return fmt.Errorf("junction %s phase %s references unknown approach %s: %w", j.ID, p.Name, name, timing.ErrInvalidConfiguration)
			}
			if other, ok := seen[name]; ok {
				return fmt.Errorf("junction %s approach %s in phases %s and %s: %w", j.ID, name, other, p.Name, timing.ErrInvalidConfiguration)
			}
			seen[name] = p.Name
		}
	}
	if len(j.Phases) > 0 && len(seen) != len(names) {
		return fmt.Errorf("junction %s phases do not cover every approach: %w", j.ID, timing.ErrInvalidConfiguration)
	}
	return nil
}
