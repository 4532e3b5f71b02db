package timing

import (
	"fmt"

	"github.com/samber/lo"
)

// Mode 配时方案来源
type Mode int

const (
	ModeNormal    Mode = iota // 正常配时
	ModeEmergency             // 紧急抢占强制配时
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeEmergency:
		return "emergency"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// MarshalText 以名称序列化
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText 从名称反序列化
func (m *Mode) UnmarshalText(text []byte) error {
	switch string(text) {
	case "normal":
		*m = ModeNormal
	case "emergency":
		*m = ModeEmergency
	default:
		return fmt.Errorf("unknown schedule mode %q", text)
	}
	return nil
}

// Bounds 路口的绿灯上下限与黄灯时间（秒）
type Bounds struct {
	MinGreen int
	MaxGreen int
	Yellow   int
}

// Validate 校验配置
// 返回：min_green>max_green或存在负值时返回ErrInvalidConfiguration
func (b Bounds) Validate() error {
	if b.MinGreen < 0 || b.MaxGreen < 0 || b.Yellow < 0 {
		return fmt.Errorf("negative timing bounds %+v: %w", b, ErrInvalidConfiguration)
	}
	if b.MinGreen > b.MaxGreen {
		return fmt.Errorf("min green %d > max green %d: %w", b.MinGreen, b.MaxGreen, ErrInvalidConfiguration)
	}
	return nil
}

// Clamp 将绿灯时间截断到[MinGreen, MaxGreen]
func (b Bounds) Clamp(green int) int {
	return lo.Clamp(green, b.MinGreen, b.MaxGreen)
}

// PhaseTiming 单个进口道在一个周期内的绿/黄/红时长（秒）
type PhaseTiming struct {
	Green  int `json:"green"`
	Yellow int `json:"yellow"`
	Red    int `json:"red"`
}

// NewPhaseTiming 以周期剩余时间作为红灯构造PhaseTiming
// 返回：剩余红灯为负时返回ErrConfiguration
func NewPhaseTiming(green, yellow, cycle int) (PhaseTiming, error) {
	red := cycle - green - yellow
	if red < 0 {
		return PhaseTiming{}, fmt.Errorf("green %d + yellow %d exceeds cycle %d: %w", green, yellow, cycle, ErrConfiguration)
	}
	return PhaseTiming{Green: green, Yellow: yellow, Red: red}, nil
}

// Total 绿黄红之和
func (t PhaseTiming) Total() int {
	return t.Green + t.Yellow + t.Red
}

// Schedule 一个路口当前周期的完整配时方案
// 说明：每步重新生成，引擎对每个路口至多持有一个当前方案
type Schedule struct {
	JunctionID string                 `json:"junction_id"`
	CycleTime  int                    `json:"cycle_time"`
	Phases     map[string]PhaseTiming `json:"phases"` // 进口道名称->配时
	Groups     []Phase                `json:"groups"` // 相位顺序与分组
	Mode       Mode                   `json:"mode"`
	IssuedAt   float64                `json:"issued_at"` // 生成时刻（仿真秒）

	OverrideID string `json:"override_id,omitempty"` // 紧急抢占ID（仅ModeEmergency）

	// 以下为建议性元数据
	FlowRatioSum       float64  `json:"flow_ratio_sum"`
	Profile            string   `json:"profile,omitempty"`
	CycleExtension     int      `json:"cycle_extension"`
	PriorityDirections []string `json:"priority_directions,omitempty"`
	CorridorGroup      string   `json:"corridor_group,omitempty"`
	Offset             *int     `json:"offset,omitempty"`
}

// Clone 深拷贝
func (s Schedule) Clone() Schedule {
	c := s
	c.Phases = make(map[string]PhaseTiming, len(s.Phases))
	for k, v := range s.Phases {
		c.Phases[k] = v
	}
	c.Groups = lo.Map(s.Groups, func(p Phase, _ int) Phase {
		return Phase{Name: p.Name, Approaches: append([]string(nil), p.Approaches...)}
	})
	c.PriorityDirections = append([]string(nil), s.PriorityDirections...)
	if s.Offset != nil {
		offset := *s.Offset
		c.Offset = &offset
	}
	return c
}

// Validate 校验方案的不变式
// 功能：所有进口道满足green+yellow+red==cycle；bounds非nil时同时校验绿灯上下限
func (s Schedule) Validate(bounds *Bounds) error {
	for name, t := range s.Phases {
		if t.Green < 0 || t.Yellow < 0 || t.Red < 0 {
			return fmt.Errorf("junction %s approach %s negative timing %+v: %w", s.JunctionID, name, t, ErrConfiguration)
		}
		if t.Total() != s.CycleTime {
			return fmt.Errorf("junction %s approach %s timing %+v does not sum to cycle %d: %w", s.JunctionID, name, t, s.CycleTime, ErrConfiguration)
		}
		if bounds != nil && (t.Green < bounds.MinGreen || t.Green > bounds.MaxGreen) {
			return fmt.Errorf("junction %s approach %s green %d outside [%d, %d]: %w", s.JunctionID, name, t.Green, bounds.MinGreen, bounds.MaxGreen, ErrConfiguration)
		}
	}
	return nil
}
